package api

import (
    "context"
    "errors"
    "fmt"
    "io"
    "log/slog"
    "net/http"

    "github.com/google/uuid"
    "github.com/prometheus/client_golang/prometheus/promhttp"
    redis "github.com/redis/go-redis/v9"
    "golang.org/x/time/rate"

    "calltrack/internal/config"
    "calltrack/internal/counter"
    "calltrack/internal/lock"
    "calltrack/internal/metrics"
    "calltrack/internal/payments"
    "calltrack/internal/sheets"
    "calltrack/internal/store"
)

// Server holds the handles every handler needs. Counter is nil when no counter
// store is configured and Orders is nil when gateway credentials are absent;
// the matching endpoints then answer with a configuration error.
type Server struct {
    Config  *config.Config
    Log     *slog.Logger
    Counter counter.Counter
    Orders  *payments.Broker
    Broker  EventBroker

    checks  map[string]pinger
    closers []io.Closer
}

type pinger interface{ Ping(ctx context.Context) error }

// NewServer connects every configured backend once. Call Close on shutdown.
func NewServer(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Server, error) {
    if log == nil { log = slog.Default() }
    s := &Server{Config: cfg, Log: log, checks: map[string]pinger{}}

    var locker lock.Locker = lock.NewMemory()
    s.Broker = NewBroker()
    if cfg.RedisURL != "" {
        opt, err := redis.ParseURL(cfg.RedisURL)
        if err != nil {
            return nil, fmt.Errorf("REDIS_URL: %w", err)
        }
        rdb := redis.NewClient(opt)
        rl := lock.NewRedisClient(rdb)
        locker = rl
        s.Broker = NewRedisBroker(rdb)
        s.checks["redis"] = rl
        s.closers = append(s.closers, rdb)
        log.Info("redis enabled for counter locks and events", "addr", opt.Addr)
    }

    switch cfg.CounterBackend() {
    case "sheets":
        tbl, err := sheets.New(ctx, cfg.Sheets.SpreadsheetID, cfg.Sheets.ServiceAccountJSON)
        if err != nil {
            _ = s.Close()
            return nil, err
        }
        s.Counter = counter.NewSheet(tbl, cfg.Sheets.Tab, cfg.Zone, locker, log)
        log.Info("call counter backed by google sheets", "tab", cfg.Sheets.Tab, "zone", cfg.ZoneName)
    case "postgres":
        pg, err := store.NewPostgres(cfg.DatabaseURL)
        if err != nil {
            _ = s.Close()
            return nil, fmt.Errorf("connect postgres: %w", err)
        }
        s.closers = append(s.closers, pg)
        if err := pg.Migrate(ctx); err != nil {
            _ = s.Close()
            return nil, fmt.Errorf("migrate postgres: %w", err)
        }
        s.Counter = counter.NewAtomic(pg, cfg.Zone)
        s.checks["postgres"] = pg
        log.Info("call counter backed by postgres", "zone", cfg.ZoneName)
    default:
        log.Warn("no counter store configured; /track-call is disabled")
    }

    if cfg.PaymentsEnabled() {
        gw := payments.NewGateway(cfg.Razorpay.BaseURL, cfg.Razorpay.KeyID, cfg.Razorpay.KeySecret)
        s.Orders = payments.NewBroker(gw, cfg.Razorpay.ReceiptPrefix, cfg.Razorpay.Source)
    } else {
        log.Warn("gateway credentials not set; payment endpoints are disabled")
    }
    return s, nil
}

// Close releases backend connections.
func (s *Server) Close() error {
    var errs []error
    for i := len(s.closers) - 1; i >= 0; i-- {
        if err := s.closers[i].Close(); err != nil { errs = append(errs, err) }
    }
    s.closers = nil
    return errors.Join(errs...)
}

// Handler returns the routed, middleware-wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
    metrics.RegisterDefault()
    mux := http.NewServeMux()

    // Health
    mux.HandleFunc("/health", instrument("health", s.HealthHandler))
    mux.HandleFunc("/readyz", instrument("readyz", s.ReadyHandler))

    // Payments
    mux.HandleFunc("/payments/key", instrument("payments_key", s.PaymentKeyHandler))
    mux.HandleFunc("/payments/create-order", instrument("payments_create_order", s.CreateOrderHandler))
    mux.HandleFunc("/payments/verify", instrument("payments_verify", s.VerifyPaymentHandler))
    mux.HandleFunc("/payments/webhook", instrument("payments_webhook", s.WebhookHandler))

    // Counter
    mux.HandleFunc("/track-call", instrument("track_call", s.TrackCallHandler))

    // Live feeds
    mux.HandleFunc("/events/stream", s.EventsStreamHandler)
    mux.HandleFunc("/events/ws", s.EventsWSHandler)

    // Docs, debug, metrics
    mux.HandleFunc("/openapi.yaml", s.OpenAPIHandler)
    mux.HandleFunc("/openapi.json", s.OpenAPIJSONHandler)
    mux.HandleFunc("/docs", s.DocsHandler)
    mux.HandleFunc("/debug/info", s.DebugJSON)
    mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

    mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
        writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "error": "Not found"})
    })

    var limiter *rate.Limiter
    if s.Config.RateRPS > 0 {
        limiter = rate.NewLimiter(rate.Limit(s.Config.RateRPS), s.Config.RateBurst)
    }
    var h http.Handler = mux
    h = bodyLimit(s.Config.BodyLimit, h)
    h = corsMiddleware(s.Config.AllowOrigins, h)
    h = rateLimit(limiter, h)
    h = recoverMiddleware(s.Log, h)
    return logMiddleware(s.Log, h)
}

func (s *Server) publish(topic, typ string, data map[string]any) {
    if s.Broker != nil {
        s.Broker.Publish(topic, Event{ID: uuid.NewString(), Type: typ, Data: data})
    }
}
