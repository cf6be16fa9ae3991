package metrics

import (
    "sync"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/collectors"
)

var (
    // Registry is the dedicated Prometheus registry for the API
    Registry = prometheus.NewRegistry()
    // HTTPRequests counts requests by handler, method, and status
    HTTPRequests = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
        []string{"handler", "method", "status"},
    )
    // HTTPDuration records request durations in seconds
    HTTPDuration = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
        []string{"handler", "method"},
    )

    // CallsTracked counts counter increments by outcome (incremented, appended, error)
    CallsTracked = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "calls_tracked_total", Help: "Daily call counter updates by outcome."},
        []string{"outcome"},
    )
    // DuplicateDateRows counts reads that found more than one row for the same date key
    DuplicateDateRows = prometheus.NewCounter(
        prometheus.CounterOpts{Name: "counter_duplicate_date_rows_total", Help: "Counter reads that found duplicate rows for a date key."},
    )
    // StoreLatency tracks remote counter store round-trips in seconds
    StoreLatency = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "counter_store_request_duration_seconds", Help: "Counter store request duration in seconds.", Buckets: prometheus.DefBuckets},
        []string{"op"},
    )

    // SignatureChecks counts payment and webhook signature checks by kind and result
    SignatureChecks = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "payment_signature_checks_total", Help: "Payment signature checks by kind and result."},
        []string{"kind", "result"},
    )
    // GatewayLatency tracks payment gateway calls in milliseconds
    GatewayLatency = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "gateway_request_latency_ms", Help: "Payment gateway latency in ms.", Buckets: []float64{50, 100, 200, 500, 1000, 2000, 5000}},
        []string{"op", "status"},
    )
)

// RegisterDefault registers collectors to the API registry.
func RegisterDefault() {
    regOnce.Do(func(){
        Registry.MustRegister(HTTPRequests)
        Registry.MustRegister(HTTPDuration)
        Registry.MustRegister(CallsTracked)
        Registry.MustRegister(DuplicateDateRows)
        Registry.MustRegister(StoreLatency)
        Registry.MustRegister(SignatureChecks)
        Registry.MustRegister(GatewayLatency)
        // Go/process collectors on our registry
        Registry.MustRegister(collectors.NewGoCollector())
        Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
    })
}

var regOnce sync.Once
