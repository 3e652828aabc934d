package api

import (
    "context"
    "strings"

    "navtrack/internal/config"
    "navtrack/internal/nav"
    "navtrack/internal/routing"
    "navtrack/internal/store"
)

type Server struct {
    Cfg    config.Config
    Store  store.Store
    Engine *nav.Engine
    Broker EventBroker
    Hub    *Hub
}

// NewServer creates a Server. If DATABASE_URL is unset, uses in-memory store;
// if REDIS_URL is unset, uses the in-process broker. Without a routing API
// key the engine runs fallback-only.
func NewServer(cfg config.Config) (*Server, error) {
    var st store.Store
    if strings.TrimSpace(cfg.DatabaseURL) == "" {
        st = store.NewMemory()
    } else {
        sp, err := store.NewPostgres(cfg.DatabaseURL)
        if err != nil {
            return nil, err
        }
        if err := sp.EnsureSchema(context.Background()); err != nil {
            return nil, err
        }
        st = sp
    }

    var broker EventBroker
    if cfg.RedisURL != "" {
        if rb, err := NewRedisBroker(cfg.RedisURL); err == nil { broker = rb } else { broker = NewBroker() }
    } else {
        broker = NewBroker()
    }

    throttle := NewThrottle(cfg.Broadcast.MaxPerSecond, 0)
    hub := NewHub(throttle, cfg.PingInterval(), cfg.PongWait(), cfg.WS.InboundPerSec, cfg.WS.InboundBurst)

    var src nav.RouteSource
    if cfg.Routing.APIKey != "" {
        cache := routing.NewCache(cfg.Routing.CacheSize, cfg.CacheTTL())
        src = routing.NewClient(cfg.Routing.BaseURL, cfg.Routing.APIKey, cache)
    }

    engCfg := nav.Config{
        Profile:            cfg.Routing.Profile,
        OffRouteThresholdM: cfg.OffRoute.ThresholdM,
        StrikeLimit:        cfg.OffRoute.StrikeLimit,
        Debounce:           cfg.Debounce(),
        HazardRadiusM:      cfg.Hazards.RadiusM,
        HazardMaxAge:       cfg.HazardMaxAge(),
        SweepInterval:      cfg.SweepInterval(),
    }
    s := &Server{Cfg: cfg, Store: st, Broker: broker, Hub: hub}
    s.Engine = nav.NewEngine(engCfg, src, st, &eventFanout{broker: broker, hub: hub})
    return s, nil
}
