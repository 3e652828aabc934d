package store

import (
    "context"
    "errors"
    "time"

    "navtrack/internal/model"
)

// Store is the persistence interface used by the engine and API server.
// Hazards, route history and traffic-delay rows live here; live vehicle and
// route registries stay in memory (nav.State).
type Store interface {
    // Hazards
    SaveHazard(ctx context.Context, hz model.Hazard) error
    ListActiveHazards(ctx context.Context, cutoff time.Time) ([]model.Hazard, error)
    DeleteExpiredHazards(ctx context.Context, cutoff time.Time) (int, error)

    // Route history
    SaveRouteRecord(ctx context.Context, rec model.RouteRecord) error
    ListRouteRecords(ctx context.Context, vehicleID string, limit int) ([]model.RouteRecord, error)

    // Traffic delays, keyed by a rounded destination cell
    SetTrafficDelay(ctx context.Context, at model.Coordinate, delayMs int64, ttl time.Duration) error
    GetTrafficDelay(ctx context.Context, at model.Coordinate) (delayMs int64, ok bool, err error)
    PurgeExpiredTraffic(ctx context.Context, now time.Time) error

    Ping(ctx context.Context) error
}

var ErrNotFound = errors.New("not found")
