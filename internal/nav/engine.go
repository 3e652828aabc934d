package nav

import (
    "context"
    "fmt"
    "log"
    "time"

    "github.com/google/uuid"

    "navtrack/internal/geo"
    "navtrack/internal/metrics"
    "navtrack/internal/model"
    "navtrack/internal/routing"
    "navtrack/internal/store"
)

// RouteSource obtains routes from the external provider. Nil when no
// credential is configured; every computation then falls back.
type RouteSource interface {
    Route(ctx context.Context, start, end model.Coordinate, profile string, instructions bool) (routing.Result, error)
}

// Publisher fans computed routes and alerts out to connected observers.
type Publisher interface {
    PublishRoute(rt model.ActiveRoute)
    PublishAlert(vehicleID string, hz model.Hazard, distanceM float64, rt *model.ActiveRoute)
}

// Config carries the engine tunables.
type Config struct {
    Profile            string
    OffRouteThresholdM float64
    StrikeLimit        int
    Debounce           time.Duration
    HazardRadiusM      float64
    HazardMaxAge       time.Duration
    SweepInterval      time.Duration
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
    return Config{
        Profile:            "car",
        OffRouteThresholdM: 50,
        StrikeLimit:        3,
        Debounce:           2 * time.Second,
        HazardRadiusM:      1000,
        HazardMaxAge:       24 * time.Hour,
        SweepInterval:      10 * time.Minute,
    }
}

// Engine is the reroute coordinator: it reacts to position reports, hazard
// and obstacle reports, owns the registries, and drives the routing client.
type Engine struct {
    State  *State
    Source RouteSource
    Store  store.Store
    Pub    Publisher

    cfg Config
    now func() time.Time
}

func NewEngine(cfg Config, src RouteSource, st store.Store, pub Publisher) *Engine {
    if cfg.Profile == "" { cfg = DefaultConfig() }
    return &Engine{State: NewState(), Source: src, Store: st, Pub: pub, cfg: cfg, now: time.Now}
}

// HandlePosition records a position report and runs the off-route monitor
// when the vehicle has an active route. The position is recorded even when
// the off-route evaluation is debounced away.
func (e *Engine) HandlePosition(ctx context.Context, rep model.PositionReport) (model.VehicleState, error) {
    if rep.VehicleID == "" {
        return model.VehicleState{}, fmt.Errorf("missing vehicleId")
    }
    pos := model.Coordinate{Lat: rep.Lat, Lng: rep.Lng}
    if !pos.Valid() {
        return model.VehicleState{}, fmt.Errorf("invalid coordinates: %v", pos)
    }
    v := e.State.UpsertVehicle(rep, e.now())

    rt, ok := e.State.Route(rep.VehicleID)
    if !ok { return v, nil }
    if e.evaluateOffRoute(rep.VehicleID, pos, rt.Coordinates, e.now()) {
        log.Printf("vehicle %s drifted off route, recomputing", rep.VehicleID)
        if _, err := e.Reroute(ctx, rep.VehicleID, pos, rt.End, "offroute"); err != nil {
            log.Printf("offroute reroute for %s failed: %v", rep.VehicleID, err)
        }
    }
    return v, nil
}

// ComputeRoute obtains a route (provider or fallback) and appends a history
// record. It never errors once the endpoints validate: provider failure of
// any class degrades to the synthesized straight-line route.
func (e *Engine) ComputeRoute(ctx context.Context, vehicleID string, start, end model.Coordinate, recalculated bool, trigger string) (model.ActiveRoute, error) {
    if !start.Valid() || !end.Valid() {
        return model.ActiveRoute{}, fmt.Errorf("invalid coordinates: start=%v end=%v", start, end)
    }
    var res routing.Result
    if e.Source == nil {
        res = routing.Fallback(start, end)
    } else {
        var err error
        res, err = e.Source.Route(ctx, start, end, e.cfg.Profile, true)
        if err != nil {
            log.Printf("provider routing failed (%v), using fallback", err)
            res = routing.Fallback(start, end)
        }
    }
    if res.Fallback { metrics.FallbackRoutes.Inc() }
    metrics.Reroutes.WithLabelValues(trigger).Inc()

    if e.Store != nil {
        delayMs, ok, err := e.Store.GetTrafficDelay(ctx, end)
        if err != nil {
            log.Printf("traffic delay lookup: %v", err)
        } else if ok {
            res.DurationMs += delayMs
        }
    }

    rt := model.ActiveRoute{
        ID:           uuid.New().String(),
        VehicleID:    vehicleID,
        Start:        start,
        End:          end,
        Coordinates:  res.Coordinates,
        DistanceM:    res.DistanceM,
        DurationMs:   res.DurationMs,
        Instructions: res.Instructions,
        Fallback:     res.Fallback,
        Recalculated: recalculated,
        CreatedAt:    e.now(),
    }
    if e.Store != nil {
        rec := model.RouteRecord{ID: rt.ID, VehicleID: vehicleID, DistanceM: rt.DistanceM, DurationMs: rt.DurationMs, Fallback: rt.Fallback, Recalculated: rt.Recalculated, CreatedAt: rt.CreatedAt}
        if err := e.Store.SaveRouteRecord(ctx, rec); err != nil {
            log.Printf("save route record: %v", err)
        }
    }
    return rt, nil
}

// Reroute recomputes a vehicle's route, replaces its active route and
// publishes the change.
func (e *Engine) Reroute(ctx context.Context, vehicleID string, start, end model.Coordinate, trigger string) (model.ActiveRoute, error) {
    rt, err := e.ComputeRoute(ctx, vehicleID, start, end, true, trigger)
    if err != nil { return model.ActiveRoute{}, err }
    e.State.SetRoute(vehicleID, rt)
    if e.Pub != nil { e.Pub.PublishRoute(rt) }
    return rt, nil
}

// AssignRoute computes and installs a fresh (not recalculated) route for a
// vehicle, e.g. from the route-query endpoint.
func (e *Engine) AssignRoute(ctx context.Context, vehicleID string, start, end model.Coordinate) (model.ActiveRoute, error) {
    rt, err := e.ComputeRoute(ctx, vehicleID, start, end, false, "query")
    if err != nil { return model.ActiveRoute{}, err }
    if vehicleID != "" {
        e.State.SetRoute(vehicleID, rt)
        if e.Pub != nil { e.Pub.PublishRoute(rt) }
    }
    return rt, nil
}

// HandleHazard stores a hazard/obstacle report and recomputes the route of
// every vehicle whose active polyline lies within the effective radius.
// Recompute failure is non-destructive: the previous route stays in place
// and the alert is still published.
func (e *Engine) HandleHazard(ctx context.Context, rep model.HazardReport) (model.Hazard, int, error) {
    loc := model.Coordinate{Lat: rep.Lat, Lng: rep.Lng}
    if !loc.Valid() {
        return model.Hazard{}, 0, fmt.Errorf("invalid coordinates: %v", loc)
    }
    kind := rep.Kind
    if kind != model.KindObstacle { kind = model.KindHazard }
    hz := model.Hazard{
        ID:          uuid.New().String(),
        Kind:        kind,
        Location:    loc,
        Severity:    rep.Severity,
        RadiusM:     rep.RadiusM,
        Description: rep.Description,
        ReportedAt:  e.now(),
    }
    if e.Store != nil {
        if err := e.Store.SaveHazard(ctx, hz); err != nil {
            log.Printf("save hazard: %v", err)
        }
    }

    radius := e.cfg.HazardRadiusM
    if hz.Kind == model.KindObstacle && hz.RadiusM > 0 { radius = hz.RadiusM }

    affected := 0
    for _, rt := range e.State.ActiveRoutes() {
        d := geo.PointToPolyline(hz.Location, rt.Coordinates)
        if d > radius { continue }
        affected++
        newRt, err := e.ComputeRoute(ctx, rt.VehicleID, rt.Start, rt.End, true, hz.Kind)
        if err != nil {
            log.Printf("hazard recompute for %s failed: %v", rt.VehicleID, err)
            if e.Pub != nil { e.Pub.PublishAlert(rt.VehicleID, hz, d, nil) }
            continue
        }
        e.State.SetRoute(rt.VehicleID, newRt)
        if e.Pub != nil {
            e.Pub.PublishRoute(newRt)
            e.Pub.PublishAlert(rt.VehicleID, hz, d, &newRt)
        }
    }
    return hz, affected, nil
}

// Probe checks provider reachability with a route between two fixed nearby
// points. It mutates no vehicle or route state and bypasses history.
func (e *Engine) Probe(ctx context.Context) error {
    if e.Source == nil {
        return fmt.Errorf("routing provider not configured")
    }
    a := model.Coordinate{Lat: 52.520008, Lng: 13.404954}
    b := model.Coordinate{Lat: 52.523430, Lng: 13.411440}
    _, err := e.Source.Route(ctx, a, b, e.cfg.Profile, false)
    return err
}

// Start launches the periodic sweeps: hazards past their maximum age and
// expired traffic rows. It returns immediately; the sweeps stop when ctx is
// canceled.
func (e *Engine) Start(ctx context.Context) {
    if e.Store == nil { return }
    go func() {
        ticker := time.NewTicker(e.cfg.SweepInterval)
        defer ticker.Stop()
        for {
            select {
            case <-ctx.Done():
                return
            case <-ticker.C:
                cutoff := e.now().Add(-e.cfg.HazardMaxAge)
                if n, err := e.Store.DeleteExpiredHazards(ctx, cutoff); err != nil {
                    log.Printf("hazard sweep: %v", err)
                } else if n > 0 {
                    log.Printf("expired %d hazards", n)
                }
                if err := e.Store.PurgeExpiredTraffic(ctx, e.now()); err != nil {
                    log.Printf("traffic sweep: %v", err)
                }
            }
        }
    }()
}
