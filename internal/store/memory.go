package store

import (
    "context"
    "fmt"
    "sync"
    "time"

    "navtrack/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
    mu      sync.Mutex
    hazards map[string]model.Hazard
    records map[string][]model.RouteRecord // vehicleId -> newest last ("" for anonymous)
    traffic map[string]trafficRow
}

type trafficRow struct {
    delayMs   int64
    expiresAt time.Time
}

func NewMemory() *Memory {
    return &Memory{
        hazards: map[string]model.Hazard{},
        records: map[string][]model.RouteRecord{},
        traffic: map[string]trafficRow{},
    }
}

func (m *Memory) SaveHazard(ctx context.Context, hz model.Hazard) error {
    m.mu.Lock(); defer m.mu.Unlock()
    m.hazards[hz.ID] = hz
    return nil
}

func (m *Memory) ListActiveHazards(ctx context.Context, cutoff time.Time) ([]model.Hazard, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := []model.Hazard{}
    for _, hz := range m.hazards {
        if hz.ReportedAt.After(cutoff) { out = append(out, hz) }
    }
    return out, nil
}

func (m *Memory) DeleteExpiredHazards(ctx context.Context, cutoff time.Time) (int, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    n := 0
    for id, hz := range m.hazards {
        if !hz.ReportedAt.After(cutoff) {
            delete(m.hazards, id)
            n++
        }
    }
    return n, nil
}

func (m *Memory) SaveRouteRecord(ctx context.Context, rec model.RouteRecord) error {
    m.mu.Lock(); defer m.mu.Unlock()
    m.records[rec.VehicleID] = append(m.records[rec.VehicleID], rec)
    return nil
}

func (m *Memory) ListRouteRecords(ctx context.Context, vehicleID string, limit int) ([]model.RouteRecord, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    recs := m.records[vehicleID]
    if limit <= 0 || limit > len(recs) { limit = len(recs) }
    // newest first
    out := make([]model.RouteRecord, 0, limit)
    for i := len(recs) - 1; i >= 0 && len(out) < limit; i-- {
        out = append(out, recs[i])
    }
    return out, nil
}

// trafficKey buckets a coordinate to a ~100m cell.
func trafficKey(at model.Coordinate) string {
    return fmt.Sprintf("%.3f,%.3f", at.Lat, at.Lng)
}

func (m *Memory) SetTrafficDelay(ctx context.Context, at model.Coordinate, delayMs int64, ttl time.Duration) error {
    m.mu.Lock(); defer m.mu.Unlock()
    m.traffic[trafficKey(at)] = trafficRow{delayMs: delayMs, expiresAt: time.Now().Add(ttl)}
    return nil
}

func (m *Memory) GetTrafficDelay(ctx context.Context, at model.Coordinate) (int64, bool, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    row, ok := m.traffic[trafficKey(at)]
    if !ok || time.Now().After(row.expiresAt) {
        return 0, false, nil
    }
    return row.delayMs, true, nil
}

func (m *Memory) PurgeExpiredTraffic(ctx context.Context, now time.Time) error {
    m.mu.Lock(); defer m.mu.Unlock()
    for k, row := range m.traffic {
        if now.After(row.expiresAt) { delete(m.traffic, k) }
    }
    return nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }
