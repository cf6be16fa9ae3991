package api

import (
    "net/http"
    "time"

    "calltrack/internal/buildinfo"
)

// DebugJSON reports build info and which features are configured. Secrets
// are reported only as present or absent.
func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
    c := s.Config
    writeJSON(w, http.StatusOK, map[string]any{
        "build": buildinfo.Info(),
        "time":  time.Now().UTC().Format(time.RFC3339),
        "config": map[string]any{
            "PORT":                    c.Port,
            "ALLOW_ORIGINS":           c.AllowOrigins,
            "RATE_RPS":                c.RateRPS,
            "RATE_BURST":              c.RateBurst,
            "BODY_LIMIT_BYTES":        c.BodyLimit,
            "LOG_TIMEZONE":            c.ZoneName,
            "GOOGLE_SHEET_TAB":        c.Sheets.Tab,
            "COUNTER_BACKEND":         c.CounterBackend(),
            "PAYMENTS_ENABLED":        c.PaymentsEnabled(),
            "HAS_RAZORPAY_KEY_ID":     c.Razorpay.KeyID != "",
            "HAS_WEBHOOK_SECRET":      c.Razorpay.WebhookSecret != "",
            "HAS_GOOGLE_SHEET_ID":     c.Sheets.SpreadsheetID != "",
            "HAS_DATABASE_URL":        c.DatabaseURL != "",
            "HAS_REDIS_URL":           c.RedisURL != "",
        },
    })
}
