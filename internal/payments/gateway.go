// Package payments creates gateway orders and checks payment signatures.
package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"calltrack/internal/metrics"
)

// DefaultBaseURL is the Razorpay REST endpoint.
const DefaultBaseURL = "https://api.razorpay.com"

// OrderRequest is the body of an order-creation call. Amount is in minor units.
type OrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt,omitempty"`
	Notes    map[string]string `json:"notes,omitempty"`
}

// Order is a gateway order. Raw keeps the gateway's JSON so callers receive it unchanged.
type Order struct {
	ID       string          `json:"id"`
	Amount   int64           `json:"amount"`
	Currency string          `json:"currency"`
	Receipt  string          `json:"receipt"`
	Status   string          `json:"status"`
	Raw      json.RawMessage `json:"-"`
}

// MarshalJSON echoes the gateway document when present.
func (o Order) MarshalJSON() ([]byte, error) {
	if len(o.Raw) > 0 {
		return o.Raw, nil
	}
	type plain Order
	return json.Marshal(plain(o))
}

// GatewayError is a non-2xx answer from the gateway.
type GatewayError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *GatewayError) Error() string {
	if e.Description != "" {
		return e.Description
	}
	return "gateway returned status " + strconv.Itoa(e.StatusCode)
}

// Gateway talks to the Razorpay orders API with basic auth.
type Gateway struct {
	BaseURL   string
	KeyID     string
	KeySecret string
	HTTP      *http.Client
}

func NewGateway(baseURL, keyID, keySecret string) *Gateway {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Gateway{
		BaseURL:   strings.TrimSuffix(baseURL, "/"),
		KeyID:     keyID,
		KeySecret: keySecret,
		HTTP:      &http.Client{Timeout: 15 * time.Second},
	}
}

// CreateOrder posts req to /v1/orders.
func (g *Gateway) CreateOrder(ctx context.Context, req OrderRequest) (Order, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Order{}, err
	}
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.BaseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return Order{}, err
	}
	hreq.Header.Set("Content-Type", "application/json")
	hreq.SetBasicAuth(g.KeyID, g.KeySecret)

	start := time.Now()
	resp, err := g.HTTP.Do(hreq)
	status := "error"
	if resp != nil {
		status = strconv.Itoa(resp.StatusCode)
	}
	metrics.GatewayLatency.WithLabelValues("create_order", status).Observe(float64(time.Since(start).Milliseconds()))
	if err != nil {
		return Order{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Order{}, fmt.Errorf("read gateway response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error struct {
				Code        string `json:"code"`
				Description string `json:"description"`
			} `json:"error"`
		}
		_ = json.Unmarshal(data, &e)
		return Order{}, &GatewayError{StatusCode: resp.StatusCode, Code: e.Error.Code, Description: e.Error.Description}
	}

	var o Order
	if err := json.Unmarshal(data, &o); err != nil {
		return Order{}, fmt.Errorf("decode gateway order: %w", err)
	}
	if o.ID == "" {
		return Order{}, fmt.Errorf("gateway order has no id")
	}
	o.Raw = json.RawMessage(data)
	return o, nil
}
