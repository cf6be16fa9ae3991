package payments

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"calltrack/internal/apperr"
)

// DefaultCurrency applies when a request names none.
const DefaultCurrency = "INR"

var (
	hundred  = decimal.NewFromInt(100)
	maxMinor = decimal.NewFromInt(math.MaxInt64)
)

// OrderCreator is the gateway side of order creation.
type OrderCreator interface {
	CreateOrder(ctx context.Context, req OrderRequest) (Order, error)
}

// Broker validates amounts and requests orders from the gateway.
type Broker struct {
	Gateway       OrderCreator
	ReceiptPrefix string
	Source        string
	Now           func() time.Time
}

func NewBroker(gw OrderCreator, receiptPrefix, source string) *Broker {
	if receiptPrefix == "" {
		receiptPrefix = "rento"
	}
	if source == "" {
		source = "rento-web"
	}
	return &Broker{Gateway: gw, ReceiptPrefix: receiptPrefix, Source: source, Now: time.Now}
}

// CreateOrder converts amount (major units) to minor units and creates an order.
// Invalid amounts are rejected before any network call.
func (b *Broker) CreateOrder(ctx context.Context, amount float64, currency string) (Order, error) {
	minor, err := MinorUnits(amount)
	if err != nil {
		return Order{}, err
	}
	if currency == "" {
		currency = DefaultCurrency
	}
	req := OrderRequest{
		Amount:   minor,
		Currency: currency,
		Receipt:  b.ReceiptPrefix + "_" + strconv.FormatInt(b.Now().UnixMilli(), 10),
		Notes:    map[string]string{"source": b.Source},
	}
	o, err := b.Gateway.CreateOrder(ctx, req)
	if err != nil {
		return Order{}, apperr.Upstream("", err)
	}
	return o, nil
}

// MinorUnits multiplies by 100 and rounds half away from zero, working on the
// shortest decimal form of amount so 1.005 becomes 101 rather than 100.
func MinorUnits(amount float64) (int64, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return 0, apperr.Invalid("Invalid amount")
	}
	m := decimal.NewFromFloat(amount).Mul(hundred).Round(0)
	// Sub-unit amounts round to zero; huge ones do not fit an int64.
	if !m.IsPositive() || m.GreaterThan(maxMinor) {
		return 0, apperr.Invalid("Invalid amount")
	}
	return m.IntPart(), nil
}

// ParseAmount reads a JSON amount that may be a number or a numeric string.
// A missing or empty amount is 0; anything unparsable is NaN. Both are then
// rejected by MinorUnits.
func ParseAmount(v any) float64 {
	switch x := v.(type) {
	case nil:
		return 0
	case float64:
		return x
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}
