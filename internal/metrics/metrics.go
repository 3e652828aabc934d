package metrics

import (
    "sync"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/collectors"
)

var (
    // Registry is the dedicated Prometheus registry for the API
    Registry = prometheus.NewRegistry()

    // HTTPRequests counts requests by method, path, and status
    HTTPRequests = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
        []string{"method", "path", "status"},
    )
    // HTTPDuration records request durations in seconds
    HTTPDuration = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
        []string{"method", "path", "status"},
    )

    // ProviderAttempts counts routing provider attempts by outcome (success, retryable, terminal)
    ProviderAttempts = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "routing_provider_attempts_total", Help: "Routing provider attempts by outcome."},
        []string{"outcome"},
    )
    // RouteCacheHits / RouteCacheMisses track route cache effectiveness
    RouteCacheHits = prometheus.NewCounter(
        prometheus.CounterOpts{Name: "route_cache_hits_total", Help: "Route cache hits."},
    )
    RouteCacheMisses = prometheus.NewCounter(
        prometheus.CounterOpts{Name: "route_cache_misses_total", Help: "Route cache misses."},
    )

    // Reroutes counts route recomputations by trigger (offroute, hazard, obstacle, query)
    Reroutes = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "reroutes_total", Help: "Route recomputations by trigger."},
        []string{"trigger"},
    )
    // FallbackRoutes counts synthesized straight-line routes
    FallbackRoutes = prometheus.NewCounter(
        prometheus.CounterOpts{Name: "fallback_routes_total", Help: "Synthesized fallback routes."},
    )

    // BroadcastDropped counts position broadcasts dropped by the throttle
    BroadcastDropped = prometheus.NewCounter(
        prometheus.CounterOpts{Name: "broadcast_dropped_total", Help: "Position broadcasts dropped by the per-vehicle throttle."},
    )
    // ObserverConnections tracks currently connected WebSocket observers
    ObserverConnections = prometheus.NewGauge(
        prometheus.GaugeOpts{Name: "observer_connections", Help: "Connected WebSocket observers."},
    )
)

// RegisterDefault registers collectors to the dedicated registry.
func RegisterDefault() {
    regOnce.Do(func() {
        Registry.MustRegister(HTTPRequests)
        Registry.MustRegister(HTTPDuration)
        Registry.MustRegister(ProviderAttempts)
        Registry.MustRegister(RouteCacheHits)
        Registry.MustRegister(RouteCacheMisses)
        Registry.MustRegister(Reroutes)
        Registry.MustRegister(FallbackRoutes)
        Registry.MustRegister(BroadcastDropped)
        Registry.MustRegister(ObserverConnections)
        // Go/process collectors on our registry
        Registry.MustRegister(collectors.NewGoCollector())
        Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
    })
}

var regOnce sync.Once
