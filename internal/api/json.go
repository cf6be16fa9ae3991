package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"calltrack/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeOK writes {"ok":true} merged with fields.
func writeOK(w http.ResponseWriter, fields map[string]any) {
	body := map[string]any{"ok": true}
	for k, v := range fields {
		body[k] = v
	}
	writeJSON(w, http.StatusOK, body)
}

// fail maps err to a status and writes {"ok":false,"error":...}. Server-side
// failures are logged; client errors are not.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.Status(err)
	if status >= 500 {
		s.Log.Error("request failed", "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, map[string]any{"ok": false, "error": err.Error()})
}

func methodNotAllowed(w http.ResponseWriter, allow ...string) {
	w.Header().Set("Allow", strings.Join(allow, ", "))
	writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"ok": false, "error": "Method not allowed"})
}

// readBody returns the exact request bytes. The body is already capped by the
// limit middleware; exceeding it is reported as TooLarge.
func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	b, err := io.ReadAll(r.Body)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, apperr.TooLarge("request body too large")
		}
		return nil, apperr.Invalid("could not read request body")
	}
	return b, nil
}

// decodeBody unmarshals a JSON object; an empty body leaves v untouched.
func decodeBody(body []byte, v any) error {
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return apperr.Invalid("Invalid JSON body")
	}
	return nil
}
