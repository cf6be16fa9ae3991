package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"calltrack/internal/apperr"
	"calltrack/internal/metrics"
	"calltrack/internal/payments"
)

// PaymentKeyHandler handles GET /payments/key: the public key id for checkout.
func (s *Server) PaymentKeyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if s.Config.Razorpay.KeyID == "" {
		s.fail(w, r, apperr.Config("Missing RAZORPAY_KEY_ID"))
		return
	}
	writeOK(w, map[string]any{"keyId": s.Config.Razorpay.KeyID})
}

// CreateOrderHandler handles POST /payments/create-order {amount, currency}.
func (s *Server) CreateOrderHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	body, err := readBody(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req struct {
		Amount   any `json:"amount"`
		Currency any `json:"currency"`
	}
	if err := decodeBody(body, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	amount := payments.ParseAmount(req.Amount)
	// Amount problems are reported before configuration problems.
	if _, err := payments.MinorUnits(amount); err != nil {
		s.fail(w, r, err)
		return
	}
	if s.Orders == nil {
		s.fail(w, r, apperr.Config("Missing Razorpay credentials in env vars"))
		return
	}
	order, err := s.Orders.CreateOrder(r.Context(), amount, currencyOf(req.Currency))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.Log.Info("order created", "order_id", order.ID, "amount", order.Amount, "currency", order.Currency)
	writeOK(w, map[string]any{"order": order, "keyId": s.Config.Razorpay.KeyID})
}

func currencyOf(v any) string {
	switch c := v.(type) {
	case nil:
		return payments.DefaultCurrency
	case string:
		if c == "" {
			return payments.DefaultCurrency
		}
		return c
	case bool:
		if !c {
			return payments.DefaultCurrency
		}
		return "true"
	case float64:
		if c == 0 {
			return payments.DefaultCurrency
		}
		return fmt.Sprint(c)
	default:
		return fmt.Sprint(c)
	}
}

// VerifyPaymentHandler handles POST /payments/verify with the checkout's
// razorpay_order_id, razorpay_payment_id and razorpay_signature.
func (s *Server) VerifyPaymentHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	body, err := readBody(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req struct {
		OrderID   any `json:"razorpay_order_id"`
		PaymentID any `json:"razorpay_payment_id"`
		Signature any `json:"razorpay_signature"`
	}
	if err := decodeBody(body, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	orderID, paymentID, signature := fieldString(req.OrderID), fieldString(req.PaymentID), fieldString(req.Signature)
	if orderID == "" || paymentID == "" || signature == "" {
		s.fail(w, r, apperr.Invalid("Missing payment fields"))
		return
	}
	secret := s.Config.Razorpay.KeySecret
	if secret == "" {
		s.fail(w, r, apperr.Config("Missing RAZORPAY_KEY_SECRET"))
		return
	}
	if !payments.VerifyPayment(secret, orderID, paymentID, signature) {
		metrics.SignatureChecks.WithLabelValues("payment", "mismatch").Inc()
		s.Log.Warn("payment signature mismatch", "order_id", orderID, "payment_id", paymentID)
		s.fail(w, r, apperr.Invalid("Signature verification failed"))
		return
	}
	metrics.SignatureChecks.WithLabelValues("payment", "ok").Inc()
	s.publish(TopicPayments, "payment.verified", map[string]any{"orderId": orderID, "paymentId": paymentID})
	writeOK(w, nil)
}

// fieldString accepts strings and numbers; anything else counts as missing.
func fieldString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return fmt.Sprint(x)
	default:
		return ""
	}
}

// WebhookHandler handles POST /payments/webhook. The signature is computed
// over the request bytes exactly as received.
func (s *Server) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	secret := s.Config.Razorpay.WebhookSecret
	if secret == "" {
		s.fail(w, r, apperr.Config("Missing RAZORPAY_WEBHOOK_SECRET"))
		return
	}
	raw, err := readBody(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	signature := r.Header.Get(payments.SignatureHeader)
	if signature == "" || len(raw) == 0 {
		s.fail(w, r, apperr.Invalid("Missing webhook signature or raw body"))
		return
	}
	if !payments.VerifyWebhook(secret, raw, signature) {
		metrics.SignatureChecks.WithLabelValues("webhook", "mismatch").Inc()
		s.Log.Warn("webhook signature mismatch", "bytes", len(raw))
		s.fail(w, r, apperr.Invalid("Invalid webhook signature"))
		return
	}
	metrics.SignatureChecks.WithLabelValues("webhook", "ok").Inc()

	// Only read after the digest over the raw bytes has been checked.
	var evt struct {
		Event     string          `json:"event"`
		AccountID string          `json:"account_id"`
		CreatedAt int64           `json:"created_at"`
		Contains  []string        `json:"contains"`
		Payload   json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(raw, &evt); err != nil {
		s.Log.Warn("verified webhook is not a JSON event", "error", err)
	}
	name := evt.Event
	if name == "" {
		name = "webhook"
	}
	s.Log.Info("webhook verified", "event", name, "account_id", evt.AccountID)
	s.publish(TopicPayments, name, map[string]any{"event": name, "accountId": evt.AccountID, "createdAt": evt.CreatedAt, "contains": evt.Contains})
	writeOK(w, nil)
}
