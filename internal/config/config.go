// Package config loads and validates service configuration once at startup.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	yaml "gopkg.in/yaml.v3"

	"calltrack/internal/datekey"
)

// DefaultBodyLimit caps request bodies.
const DefaultBodyLimit = 256 << 10

type Config struct {
	Port         string
	BodyLimit    int64
	AllowOrigins []string
	RateRPS      float64
	RateBurst    int
	LogLevel     slog.Level
	LogFormat    string

	ZoneName string
	Zone     *time.Location

	Razorpay Razorpay
	Sheets   Sheets

	DatabaseURL string
	RedisURL    string
}

type Razorpay struct {
	KeyID         string
	KeySecret     string
	WebhookSecret string
	BaseURL       string
	ReceiptPrefix string
	Source        string
}

type Sheets struct {
	SpreadsheetID string
	Tab           string
	// ServiceAccountJSON has its private key newlines already unescaped.
	ServiceAccountJSON []byte
}

// PaymentsEnabled reports whether gateway credentials are present.
func (c *Config) PaymentsEnabled() bool {
	return c.Razorpay.KeyID != "" && c.Razorpay.KeySecret != ""
}

// CounterBackend names the configured counter store: "sheets", "postgres" or "".
func (c *Config) CounterBackend() string {
	switch {
	case c.Sheets.SpreadsheetID != "":
		return "sheets"
	case c.DatabaseURL != "":
		return "postgres"
	default:
		return ""
	}
}

// LoadEnvFiles loads .env style files into the process environment without
// overriding variables that are already set. Missing files are skipped.
func LoadEnvFiles(paths ...string) {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			slog.Warn("could not load env file", "path", p, "error", err)
		}
	}
}

// Load builds a Config from the environment, falling back to the YAML file
// named by CONFIG_FILE for keys the environment does not set.
func Load() (*Config, error) {
	file := map[string]string{}
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		var err error
		if file, err = readYAML(path); err != nil {
			return nil, err
		}
	}
	return FromLookup(func(k string) (string, bool) {
		if v, ok := os.LookupEnv(k); ok {
			return v, true
		}
		v, ok := file[k]
		return v, ok
	})
}

func readYAML(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if v == nil {
			continue
		}
		out[strings.ToUpper(k)] = fmt.Sprint(v)
	}
	return out, nil
}

// FromLookup builds and validates a Config from lookup. Absent credentials
// disable the matching feature; malformed values are errors.
func FromLookup(lookup func(string) (string, bool)) (*Config, error) {
	get := func(k, def string) string {
		if v, ok := lookup(k); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return def
	}
	var errs []string
	fail := func(format string, args ...any) { errs = append(errs, fmt.Sprintf(format, args...)) }

	cfg := &Config{
		Port:      get("PORT", "8080"),
		LogFormat: strings.ToLower(get("LOG_FORMAT", "text")),
		ZoneName:  get("LOG_TIMEZONE", datekey.DefaultZone),
		Razorpay: Razorpay{
			KeyID:         get("RAZORPAY_KEY_ID", ""),
			KeySecret:     get("RAZORPAY_KEY_SECRET", ""),
			WebhookSecret: get("RAZORPAY_WEBHOOK_SECRET", ""),
			BaseURL:       get("RAZORPAY_BASE_URL", ""),
			ReceiptPrefix: get("ORDER_RECEIPT_PREFIX", "rento"),
			Source:        get("ORDER_SOURCE", "rento-web"),
		},
		Sheets: Sheets{
			SpreadsheetID: get("GOOGLE_SHEET_ID", ""),
			Tab:           get("GOOGLE_SHEET_TAB", "Sheet1"),
		},
		DatabaseURL: get("DATABASE_URL", ""),
		RedisURL:    get("REDIS_URL", ""),
	}

	if n, err := strconv.Atoi(cfg.Port); err != nil || n < 1 || n > 65535 {
		fail("PORT must be a TCP port, got %q", cfg.Port)
	}

	loc, err := datekey.LoadZone(cfg.ZoneName)
	if err != nil {
		fail("LOG_TIMEZONE: %v", err)
	}
	cfg.Zone = loc

	cfg.BodyLimit = DefaultBodyLimit
	if v := get("BODY_LIMIT_BYTES", ""); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			fail("BODY_LIMIT_BYTES must be a positive integer, got %q", v)
		} else {
			cfg.BodyLimit = n
		}
	}

	if v := get("RATE_RPS", ""); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			fail("RATE_RPS must be a non-negative number, got %q", v)
		}
		cfg.RateRPS = f
	}
	if v := get("RATE_BURST", ""); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			fail("RATE_BURST must be a non-negative integer, got %q", v)
		}
		cfg.RateBurst = n
	}
	if cfg.RateRPS > 0 && cfg.RateBurst == 0 {
		cfg.RateBurst = int(cfg.RateRPS) + 1
	}

	for _, o := range strings.Split(get("ALLOW_ORIGINS", "*"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.AllowOrigins = append(cfg.AllowOrigins, o)
		}
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(get("LOG_LEVEL", "info"))); err != nil {
		fail("LOG_LEVEL: %v", err)
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		fail("LOG_FORMAT must be text or json, got %q", cfg.LogFormat)
	}

	if (cfg.Razorpay.KeyID == "") != (cfg.Razorpay.KeySecret == "") {
		fail("RAZORPAY_KEY_ID and RAZORPAY_KEY_SECRET must be set together")
	}

	if raw := get("GOOGLE_SERVICE_ACCOUNT_JSON", ""); raw != "" {
		sa, err := NormalizeServiceAccount([]byte(raw))
		if err != nil {
			fail("GOOGLE_SERVICE_ACCOUNT_JSON: %v", err)
		}
		cfg.Sheets.ServiceAccountJSON = sa
	}
	if cfg.Sheets.SpreadsheetID != "" && len(cfg.Sheets.ServiceAccountJSON) == 0 {
		fail("GOOGLE_SHEET_ID requires GOOGLE_SERVICE_ACCOUNT_JSON")
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

// NormalizeServiceAccount parses a service-account credential and turns the
// literal "\n" sequences that environment variables tend to carry in
// private_key back into newlines.
func NormalizeServiceAccount(raw []byte) ([]byte, error) {
	var sa map[string]any
	if err := json.Unmarshal(raw, &sa); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if pk, ok := sa["private_key"].(string); ok {
		sa["private_key"] = strings.ReplaceAll(pk, `\n`, "\n")
	}
	return json.Marshal(sa)
}
