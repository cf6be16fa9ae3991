package api

import (
    "bytes"
    "context"
    "encoding/json"
    "errors"
    "io"
    "log/slog"
    "net/http"
    "net/http/httptest"
    "strings"
    "testing"
    "time"

    "calltrack/internal/config"
    "calltrack/internal/counter"
    "calltrack/internal/lock"
    "calltrack/internal/payments"
)

const (
    testKeyID   = "rzp_test_key"
    testSecret  = "key_secret"
    testWebhook = "hook_secret"
)

func testConfig(t *testing.T, env map[string]string) *config.Config {
    t.Helper()
    cfg, err := config.FromLookup(func(k string) (string, bool) { v, ok := env[k]; return v, ok })
    if err != nil { t.Fatalf("config: %v", err) }
    return cfg
}

func newTestServer(t *testing.T, env map[string]string) *Server {
    t.Helper()
    return &Server{
        Config: testConfig(t, env),
        Log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
        Broker: NewBroker(),
        checks: map[string]pinger{},
    }
}

func paymentsEnv() map[string]string {
    return map[string]string{
        "RAZORPAY_KEY_ID":         testKeyID,
        "RAZORPAY_KEY_SECRET":     testSecret,
        "RAZORPAY_WEBHOOK_SECRET": testWebhook,
    }
}

// withGateway points the server's order broker at a fake gateway that records
// the last order request it saw.
func withGateway(t *testing.T, s *Server, h http.HandlerFunc) {
    t.Helper()
    srv := httptest.NewServer(h)
    t.Cleanup(srv.Close)
    gw := payments.NewGateway(srv.URL, s.Config.Razorpay.KeyID, s.Config.Razorpay.KeySecret)
    s.Orders = payments.NewBroker(gw, s.Config.Razorpay.ReceiptPrefix, s.Config.Razorpay.Source)
    s.Orders.Now = func() time.Time { return time.UnixMilli(1700000000000) }
}

func do(h http.HandlerFunc, method, target string, body []byte, hdr map[string]string) *httptest.ResponseRecorder {
    req := httptest.NewRequest(method, target, bytes.NewReader(body))
    req.Header.Set("Content-Type", "application/json")
    for k, v := range hdr { req.Header.Set(k, v) }
    rr := httptest.NewRecorder()
    h(rr, req)
    return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
    t.Helper()
    var out map[string]any
    if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
        t.Fatalf("decode %q: %v", rr.Body.String(), err)
    }
    return out
}

func expectError(t *testing.T, rr *httptest.ResponseRecorder, status int, msg string) {
    t.Helper()
    if rr.Code != status { t.Fatalf("status: got %d, want %d (%s)", rr.Code, status, rr.Body.String()) }
    out := decode(t, rr)
    if out["ok"] != false { t.Fatalf("ok: got %v", out["ok"]) }
    if msg != "" && out["error"] != msg { t.Fatalf("error: got %q, want %q", out["error"], msg) }
}

func TestHealth(t *testing.T) {
    s := newTestServer(t, nil)
    rr := do(s.HealthHandler, http.MethodGet, "/health", nil, nil)
    if rr.Code != 200 || decode(t, rr)["ok"] != true { t.Fatalf("health: %d %s", rr.Code, rr.Body.String()) }

    rr = do(s.HealthHandler, http.MethodHead, "/health", nil, nil)
    if rr.Code != 200 || rr.Body.Len() != 0 { t.Fatalf("head: %d %q", rr.Code, rr.Body.String()) }

    rr = do(s.HealthHandler, http.MethodPost, "/health", nil, nil)
    expectError(t, rr, http.StatusMethodNotAllowed, "Method not allowed")
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func TestReady(t *testing.T) {
    s := newTestServer(t, nil)
    s.checks["redis"] = fakePinger{}
    rr := do(s.ReadyHandler, http.MethodGet, "/readyz", nil, nil)
    if rr.Code != 200 { t.Fatalf("ready: %d", rr.Code) }

    s.checks["postgres"] = fakePinger{err: errors.New("connection refused")}
    rr = do(s.ReadyHandler, http.MethodGet, "/readyz", nil, nil)
    if rr.Code != http.StatusServiceUnavailable { t.Fatalf("not ready: %d", rr.Code) }
    checks := decode(t, rr)["checks"].(map[string]any)
    if checks["redis"] != "ok" || checks["postgres"] != "connection refused" { t.Fatalf("checks: %v", checks) }
}

func TestPaymentKey(t *testing.T) {
    s := newTestServer(t, paymentsEnv())
    rr := do(s.PaymentKeyHandler, http.MethodGet, "/payments/key", nil, nil)
    if rr.Code != 200 { t.Fatalf("key: %d", rr.Code) }
    if got := decode(t, rr)["keyId"]; got != testKeyID { t.Fatalf("keyId: %v", got) }

    s = newTestServer(t, nil)
    rr = do(s.PaymentKeyHandler, http.MethodGet, "/payments/key", nil, nil)
    expectError(t, rr, 500, "Missing RAZORPAY_KEY_ID")
}

func TestCreateOrder(t *testing.T) {
    s := newTestServer(t, paymentsEnv())
    var seen payments.OrderRequest
    var user, pass string
    withGateway(t, s, func(w http.ResponseWriter, r *http.Request) {
        if r.URL.Path != "/v1/orders" { t.Errorf("path: %s", r.URL.Path) }
        user, pass, _ = r.BasicAuth()
        _ = json.NewDecoder(r.Body).Decode(&seen)
        w.Header().Set("Content-Type", "application/json")
        _, _ = io.WriteString(w, `{"id":"order_123","entity":"order","amount":1999,"currency":"INR","receipt":"rento_1700000000000","status":"created"}`)
    })

    rr := do(s.CreateOrderHandler, http.MethodPost, "/payments/create-order", []byte(`{"amount":19.99}`), nil)
    if rr.Code != 200 { t.Fatalf("create: %d %s", rr.Code, rr.Body.String()) }
    out := decode(t, rr)
    if out["ok"] != true || out["keyId"] != testKeyID { t.Fatalf("body: %v", out) }
    order := out["order"].(map[string]any)
    if order["id"] != "order_123" || order["entity"] != "order" { t.Fatalf("order passthrough: %v", order) }

    if seen.Amount != 1999 || seen.Currency != "INR" { t.Fatalf("gateway request: %+v", seen) }
    if seen.Receipt != "rento_1700000000000" || seen.Notes["source"] != "rento-web" { t.Fatalf("receipt/notes: %+v", seen) }
    if user != testKeyID || pass != testSecret { t.Fatalf("basic auth: %s/%s", user, pass) }

    rr = do(s.CreateOrderHandler, http.MethodPost, "/payments/create-order", []byte(`{"amount":"250","currency":"USD"}`), nil)
    if rr.Code != 200 { t.Fatalf("string amount: %d", rr.Code) }
    if seen.Amount != 25000 || seen.Currency != "USD" { t.Fatalf("gateway request: %+v", seen) }
}

func TestCreateOrderRejectsBadAmounts(t *testing.T) {
    s := newTestServer(t, paymentsEnv())
    called := false
    withGateway(t, s, func(w http.ResponseWriter, r *http.Request) { called = true })

    for _, body := range []string{
        `{"amount":0}`,
        `{"amount":-5}`,
        `{"amount":"NaN"}`,
        `{"amount":"abc"}`,
        `{"amount":true}`,
        `{"amount":1e17}`,
        `{"amount":"184467440737095520"}`,
        `{}`,
        ``,
    } {
        rr := do(s.CreateOrderHandler, http.MethodPost, "/payments/create-order", []byte(body), nil)
        expectError(t, rr, 400, "Invalid amount")
    }
    if called { t.Fatal("gateway called for an invalid amount") }

    rr := do(s.CreateOrderHandler, http.MethodPost, "/payments/create-order", []byte(`{"amount":`), nil)
    expectError(t, rr, 400, "Invalid JSON body")
}

func TestCreateOrderErrors(t *testing.T) {
    // amount is checked before credentials
    s := newTestServer(t, nil)
    rr := do(s.CreateOrderHandler, http.MethodPost, "/payments/create-order", []byte(`{"amount":0}`), nil)
    expectError(t, rr, 400, "Invalid amount")
    rr = do(s.CreateOrderHandler, http.MethodPost, "/payments/create-order", []byte(`{"amount":10}`), nil)
    expectError(t, rr, 500, "Missing Razorpay credentials in env vars")

    s = newTestServer(t, paymentsEnv())
    withGateway(t, s, func(w http.ResponseWriter, r *http.Request) {
        w.WriteHeader(http.StatusBadRequest)
        _, _ = io.WriteString(w, `{"error":{"code":"BAD_REQUEST_ERROR","description":"The amount must be atleast INR 1.00"}}`)
    })
    rr = do(s.CreateOrderHandler, http.MethodPost, "/payments/create-order", []byte(`{"amount":0.5}`), nil)
    expectError(t, rr, 500, "The amount must be atleast INR 1.00")

    rr = do(s.CreateOrderHandler, http.MethodGet, "/payments/create-order", nil, nil)
    expectError(t, rr, http.StatusMethodNotAllowed, "")
    if rr.Header().Get("Allow") != http.MethodPost { t.Fatalf("allow: %q", rr.Header().Get("Allow")) }
}

func verifyBody(orderID, paymentID, sig string) []byte {
    b, _ := json.Marshal(map[string]string{
        "razorpay_order_id":   orderID,
        "razorpay_payment_id": paymentID,
        "razorpay_signature":  sig,
    })
    return b
}

func TestVerifyPayment(t *testing.T) {
    s := newTestServer(t, paymentsEnv())
    ch := s.Broker.Subscribe(TopicPayments)
    defer s.Broker.Unsubscribe(TopicPayments, ch)

    sig := payments.Sign(testSecret, payments.PaymentMessage("order_1", "pay_1"))
    rr := do(s.VerifyPaymentHandler, http.MethodPost, "/payments/verify", verifyBody("order_1", "pay_1", sig), nil)
    if rr.Code != 200 || decode(t, rr)["ok"] != true { t.Fatalf("verify: %d %s", rr.Code, rr.Body.String()) }
    select {
    case evt := <-ch:
        if evt.Type != "payment.verified" || evt.Data["orderId"] != "order_1" { t.Fatalf("event: %+v", evt) }
    case <-time.After(time.Second):
        t.Fatal("no payment.verified event")
    }

    rr = do(s.VerifyPaymentHandler, http.MethodPost, "/payments/verify", verifyBody("order_1", "pay_2", sig), nil)
    expectError(t, rr, 400, "Signature verification failed")

    rr = do(s.VerifyPaymentHandler, http.MethodPost, "/payments/verify", verifyBody("order_1", "pay_1", strings.ToUpper(sig)), nil)
    expectError(t, rr, 400, "Signature verification failed")

    rr = do(s.VerifyPaymentHandler, http.MethodPost, "/payments/verify", verifyBody("order_1", "", sig), nil)
    expectError(t, rr, 400, "Missing payment fields")
    rr = do(s.VerifyPaymentHandler, http.MethodPost, "/payments/verify", []byte(`{}`), nil)
    expectError(t, rr, 400, "Missing payment fields")
}

func TestVerifyPaymentMissingSecret(t *testing.T) {
    s := newTestServer(t, nil)
    // missing fields win over a missing secret
    rr := do(s.VerifyPaymentHandler, http.MethodPost, "/payments/verify", []byte(`{"razorpay_order_id":"o"}`), nil)
    expectError(t, rr, 400, "Missing payment fields")
    rr = do(s.VerifyPaymentHandler, http.MethodPost, "/payments/verify", verifyBody("o", "p", "s"), nil)
    expectError(t, rr, 500, "Missing RAZORPAY_KEY_SECRET")
}

func TestWebhookUsesRawBytes(t *testing.T) {
    s := newTestServer(t, paymentsEnv())
    ch := s.Broker.Subscribe(TopicPayments)
    defer s.Broker.Unsubscribe(TopicPayments, ch)

    // Key order and spacing differ from what a re-encoder would produce.
    raw := []byte(`{ "payload": {"payment": {}},  "event":"payment.captured", "account_id":"acc_1" }`)
    sig := payments.Sign(testWebhook, raw)
    rr := do(s.WebhookHandler, http.MethodPost, "/payments/webhook", raw, map[string]string{payments.SignatureHeader: sig})
    if rr.Code != 200 { t.Fatalf("webhook: %d %s", rr.Code, rr.Body.String()) }
    select {
    case evt := <-ch:
        if evt.Type != "payment.captured" || evt.Data["accountId"] != "acc_1" { t.Fatalf("event: %+v", evt) }
    case <-time.After(time.Second):
        t.Fatal("no webhook event")
    }

    var parsed map[string]any
    _ = json.Unmarshal(raw, &parsed)
    reencoded, _ := json.Marshal(parsed)
    rr = do(s.WebhookHandler, http.MethodPost, "/payments/webhook", reencoded, map[string]string{payments.SignatureHeader: sig})
    expectError(t, rr, 400, "Invalid webhook signature")

    // Non-JSON bodies are still accepted once the digest matches.
    plain := []byte("not json")
    rr = do(s.WebhookHandler, http.MethodPost, "/payments/webhook", plain, map[string]string{payments.SignatureHeader: payments.Sign(testWebhook, plain)})
    if rr.Code != 200 { t.Fatalf("plain webhook: %d", rr.Code) }
}

func TestWebhookErrors(t *testing.T) {
    s := newTestServer(t, paymentsEnv())
    raw := []byte(`{"event":"order.paid"}`)
    rr := do(s.WebhookHandler, http.MethodPost, "/payments/webhook", raw, nil)
    expectError(t, rr, 400, "Missing webhook signature or raw body")
    rr = do(s.WebhookHandler, http.MethodPost, "/payments/webhook", nil, map[string]string{payments.SignatureHeader: "abc"})
    expectError(t, rr, 400, "Missing webhook signature or raw body")
    rr = do(s.WebhookHandler, http.MethodPost, "/payments/webhook", raw, map[string]string{payments.SignatureHeader: "abc"})
    expectError(t, rr, 400, "Invalid webhook signature")

    s = newTestServer(t, nil)
    rr = do(s.WebhookHandler, http.MethodPost, "/payments/webhook", raw, map[string]string{payments.SignatureHeader: "abc"})
    expectError(t, rr, 500, "Missing RAZORPAY_WEBHOOK_SECRET")
}

func sheetServer(t *testing.T, tbl *counter.MemoryTable, now *time.Time) *Server {
    t.Helper()
    s := newTestServer(t, nil)
    sheet := counter.NewSheet(tbl, "Sheet1", s.Config.Zone, lock.NewMemory(), s.Log)
    sheet.Now = func() time.Time { return *now }
    s.Counter = sheet
    return s
}

func TestTrackCall(t *testing.T) {
    tbl := counter.NewMemoryTable()
    tbl.Seed("Sheet1", []string{"date", "calls"})
    // 2024-01-01 10:00 in Asia/Kolkata
    now := time.Date(2024, 1, 1, 4, 30, 0, 0, time.UTC)
    s := sheetServer(t, tbl, &now)
    ch := s.Broker.Subscribe(TopicCalls)
    defer s.Broker.Unsubscribe(TopicCalls, ch)

    for want := 1; want <= 2; want++ {
        rr := do(s.TrackCallHandler, http.MethodPost, "/track-call", nil, nil)
        if rr.Code != 200 { t.Fatalf("track: %d %s", rr.Code, rr.Body.String()) }
        out := decode(t, rr)
        if out["date"] != "2024-01-01" || out["calls"] != float64(want) { t.Fatalf("track #%d: %v", want, out) }
        evt := <-ch
        if evt.Type != "call.tracked" || evt.Data["calls"] != want { t.Fatalf("event: %+v", evt) }
    }

    // 2024-01-01 20:00 UTC is already 2024-01-02 in Kolkata.
    now = time.Date(2024, 1, 1, 20, 0, 0, 0, time.UTC)
    rr := do(s.TrackCallHandler, http.MethodPost, "/track-call", nil, nil)
    out := decode(t, rr)
    if out["date"] != "2024-01-02" || out["calls"] != float64(1) { t.Fatalf("next day: %v", out) }

    rows := tbl.Rows("Sheet1")
    if len(rows) != 3 || rows[1][1] != "2" || rows[2][0] != "2024-01-02" { t.Fatalf("rows: %v", rows) }
}

func TestTrackCallErrors(t *testing.T) {
    s := newTestServer(t, nil)
    rr := do(s.TrackCallHandler, http.MethodPost, "/track-call", nil, nil)
    expectError(t, rr, 500, "Missing GOOGLE_SHEET_ID env var")

    tbl := counter.NewMemoryTable()
    tbl.ReadErr = errors.New("quota exceeded")
    now := time.Now()
    s = sheetServer(t, tbl, &now)
    rr = do(s.TrackCallHandler, http.MethodPost, "/track-call", nil, nil)
    expectError(t, rr, 500, "quota exceeded")

    rr = do(s.TrackCallHandler, http.MethodGet, "/track-call", nil, nil)
    expectError(t, rr, http.StatusMethodNotAllowed, "")
}

func TestRoutedServer(t *testing.T) {
    env := paymentsEnv()
    env["BODY_LIMIT_BYTES"] = "64"
    s := newTestServer(t, env)
    srv := httptest.NewServer(s.Handler())
    defer srv.Close()

    resp, err := http.Post(srv.URL+"/payments/webhook", "application/json", strings.NewReader(strings.Repeat("x", 200)))
    if err != nil { t.Fatal(err) }
    resp.Body.Close()
    // the webhook header is absent, but the oversized body is rejected first
    if resp.StatusCode != http.StatusRequestEntityTooLarge { t.Fatalf("oversized: %d", resp.StatusCode) }

    resp, err = http.Get(srv.URL + "/nope")
    if err != nil { t.Fatal(err) }
    resp.Body.Close()
    if resp.StatusCode != http.StatusNotFound { t.Fatalf("unknown route: %d", resp.StatusCode) }

    resp, err = http.Get(srv.URL + "/health")
    if err != nil { t.Fatal(err) }
    resp.Body.Close()
    if resp.Header.Get("X-Request-Id") == "" { t.Fatal("missing X-Request-Id") }

    resp, err = http.Get(srv.URL + "/metrics")
    if err != nil { t.Fatal(err) }
    b, _ := io.ReadAll(resp.Body)
    resp.Body.Close()
    if !strings.Contains(string(b), "http_requests_total") { t.Fatalf("metrics output missing request counter") }

    resp, err = http.Get(srv.URL + "/openapi.json")
    if err != nil { t.Fatal(err) }
    var doc map[string]any
    _ = json.NewDecoder(resp.Body).Decode(&doc)
    resp.Body.Close()
    if doc["openapi"] != "3.0.3" { t.Fatalf("openapi.json: %v", doc["openapi"]) }

    resp, err = http.Get(srv.URL + "/debug/info")
    if err != nil { t.Fatal(err) }
    b, _ = io.ReadAll(resp.Body)
    resp.Body.Close()
    if strings.Contains(string(b), testSecret) { t.Fatal("debug info leaks a secret") }

    // browser preflight from the checkout page
    req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/payments/create-order", nil)
    req.Header.Set("Origin", "https://shop.example")
    req.Header.Set("Access-Control-Request-Method", http.MethodPost)
    req.Header.Set("Access-Control-Request-Headers", "Content-Type")
    resp, err = http.DefaultClient.Do(req)
    if err != nil { t.Fatal(err) }
    resp.Body.Close()
    if got := resp.Header.Get("Access-Control-Allow-Origin"); got == "" { t.Fatalf("preflight: no Access-Control-Allow-Origin (status %d)", resp.StatusCode) }

    // a panicking handler becomes a 500 and the server keeps serving
    s.Counter = panicCounter{}
    resp, err = http.Post(srv.URL+"/track-call", "application/json", nil)
    if err != nil { t.Fatal(err) }
    var out map[string]any
    _ = json.NewDecoder(resp.Body).Decode(&out)
    resp.Body.Close()
    if resp.StatusCode != http.StatusInternalServerError || out["ok"] != false { t.Fatalf("panic: %d %v", resp.StatusCode, out) }
    resp, err = http.Get(srv.URL + "/health")
    if err != nil { t.Fatal(err) }
    resp.Body.Close()
    if resp.StatusCode != http.StatusOK { t.Fatalf("health after panic: %d", resp.StatusCode) }
}

type panicCounter struct{}

func (panicCounter) IncrementToday(context.Context) (counter.Tally, error) { panic("sheet client exploded") }

func TestRateLimit(t *testing.T) {
    s := newTestServer(t, map[string]string{"RATE_RPS": "1", "RATE_BURST": "1"})
    srv := httptest.NewServer(s.Handler())
    defer srv.Close()

    resp, err := http.Get(srv.URL + "/health")
    if err != nil { t.Fatal(err) }
    resp.Body.Close()
    if resp.StatusCode != http.StatusOK { t.Fatalf("first request: %d", resp.StatusCode) }

    resp, err = http.Get(srv.URL + "/health")
    if err != nil { t.Fatal(err) }
    var out map[string]any
    _ = json.NewDecoder(resp.Body).Decode(&out)
    resp.Body.Close()
    if resp.StatusCode != http.StatusTooManyRequests { t.Fatalf("second request: %d", resp.StatusCode) }
    if resp.Header.Get("Retry-After") == "" || out["ok"] != false { t.Fatalf("429 response: %v %v", resp.Header, out) }
}
