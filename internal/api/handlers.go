package api

import (
    "context"
    "net/http"
    "time"

    "calltrack/internal/apperr"
)

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
    switch r.Method {
    case http.MethodGet:
        writeOK(w, nil)
    case http.MethodHead:
        w.WriteHeader(http.StatusOK)
    default:
        methodNotAllowed(w, http.MethodGet, http.MethodHead)
    }
}

// ReadyHandler pings the configured backends.
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
    status := map[string]string{}
    ready := true
    for name, p := range s.checks {
        ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
        err := p.Ping(ctx)
        cancel()
        if err != nil {
            status[name] = err.Error()
            ready = false
            continue
        }
        status[name] = "ok"
    }
    if !ready {
        writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "checks": status})
        return
    }
    writeOK(w, map[string]any{"checks": status})
}

// TrackCallHandler handles POST /track-call: bump today's counter row.
func (s *Server) TrackCallHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        methodNotAllowed(w, http.MethodPost)
        return
    }
    if s.Counter == nil {
        s.fail(w, r, apperr.Config("Missing GOOGLE_SHEET_ID env var"))
        return
    }
    tally, err := s.Counter.IncrementToday(r.Context())
    if err != nil {
        // Every counter failure is a server-side failure.
        if apperr.Status(err) < 500 { err = apperr.Upstream("", err) }
        s.fail(w, r, err)
        return
    }
    s.publish(TopicCalls, "call.tracked", map[string]any{"date": tally.Date, "calls": tally.Calls})
    writeOK(w, map[string]any{"date": tally.Date, "calls": tally.Calls})
}
