package store

import (
    "context"
    "database/sql"
    "errors"
    "fmt"
    "time"

    _ "github.com/jackc/pgx/v5/stdlib"

    "navtrack/internal/model"
)

// Postgres persists hazards, route history and traffic rows when a
// DATABASE_URL is configured.
type Postgres struct {
    db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
    db, err := sql.Open("pgx", dsn)
    if err != nil {
        return nil, err
    }
    if err := db.Ping(); err != nil {
        return nil, err
    }
    return &Postgres{db: db}, nil
}

// EnsureSchema creates the tables when missing (dev helper; production
// deployments run migrations out of band).
func (p *Postgres) EnsureSchema(ctx context.Context) error {
    stmts := []string{
        `CREATE TABLE IF NOT EXISTS hazards (
            id UUID PRIMARY KEY,
            kind TEXT NOT NULL,
            lat DOUBLE PRECISION NOT NULL,
            lng DOUBLE PRECISION NOT NULL,
            severity TEXT,
            radius_m DOUBLE PRECISION,
            description TEXT,
            reported_at TIMESTAMPTZ NOT NULL
        )`,
        `CREATE TABLE IF NOT EXISTS route_history (
            id UUID PRIMARY KEY,
            vehicle_id TEXT,
            distance_m DOUBLE PRECISION NOT NULL,
            duration_ms BIGINT NOT NULL,
            fallback BOOLEAN NOT NULL,
            recalculated BOOLEAN NOT NULL,
            created_at TIMESTAMPTZ NOT NULL
        )`,
        `CREATE INDEX IF NOT EXISTS route_history_vehicle_idx ON route_history (vehicle_id, created_at DESC)`,
        `CREATE TABLE IF NOT EXISTS traffic_delays (
            cell TEXT PRIMARY KEY,
            delay_ms BIGINT NOT NULL,
            expires_at TIMESTAMPTZ NOT NULL
        )`,
    }
    for _, s := range stmts {
        if _, err := p.db.ExecContext(ctx, s); err != nil {
            return fmt.Errorf("ensure schema: %w", err)
        }
    }
    return nil
}

func (p *Postgres) SaveHazard(ctx context.Context, hz model.Hazard) error {
    _, err := p.db.ExecContext(ctx,
        `INSERT INTO hazards (id, kind, lat, lng, severity, radius_m, description, reported_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
         ON CONFLICT (id) DO NOTHING`,
        hz.ID, hz.Kind, hz.Location.Lat, hz.Location.Lng, nullIfEmpty(hz.Severity), hz.RadiusM, nullIfEmpty(hz.Description), hz.ReportedAt)
    return err
}

func (p *Postgres) ListActiveHazards(ctx context.Context, cutoff time.Time) ([]model.Hazard, error) {
    rows, err := p.db.QueryContext(ctx,
        `SELECT id::text, kind, lat, lng, COALESCE(severity,''), COALESCE(radius_m,0), COALESCE(description,''), reported_at
         FROM hazards WHERE reported_at > $1 ORDER BY reported_at DESC`, cutoff)
    if err != nil { return nil, err }
    defer func() { _ = rows.Close() }()
    out := []model.Hazard{}
    for rows.Next() {
        var hz model.Hazard
        if err := rows.Scan(&hz.ID, &hz.Kind, &hz.Location.Lat, &hz.Location.Lng, &hz.Severity, &hz.RadiusM, &hz.Description, &hz.ReportedAt); err != nil {
            return nil, err
        }
        out = append(out, hz)
    }
    return out, rows.Err()
}

func (p *Postgres) DeleteExpiredHazards(ctx context.Context, cutoff time.Time) (int, error) {
    res, err := p.db.ExecContext(ctx, `DELETE FROM hazards WHERE reported_at <= $1`, cutoff)
    if err != nil { return 0, err }
    n, _ := res.RowsAffected()
    return int(n), nil
}

func (p *Postgres) SaveRouteRecord(ctx context.Context, rec model.RouteRecord) error {
    _, err := p.db.ExecContext(ctx,
        `INSERT INTO route_history (id, vehicle_id, distance_m, duration_ms, fallback, recalculated, created_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7)`,
        rec.ID, nullIfEmpty(rec.VehicleID), rec.DistanceM, rec.DurationMs, rec.Fallback, rec.Recalculated, rec.CreatedAt)
    return err
}

func (p *Postgres) ListRouteRecords(ctx context.Context, vehicleID string, limit int) ([]model.RouteRecord, error) {
    if limit <= 0 { limit = 100 }
    rows, err := p.db.QueryContext(ctx,
        `SELECT id::text, COALESCE(vehicle_id,''), distance_m, duration_ms, fallback, recalculated, created_at
         FROM route_history WHERE vehicle_id = $1 ORDER BY created_at DESC LIMIT $2`, vehicleID, limit)
    if err != nil { return nil, err }
    defer func() { _ = rows.Close() }()
    out := []model.RouteRecord{}
    for rows.Next() {
        var rec model.RouteRecord
        if err := rows.Scan(&rec.ID, &rec.VehicleID, &rec.DistanceM, &rec.DurationMs, &rec.Fallback, &rec.Recalculated, &rec.CreatedAt); err != nil {
            return nil, err
        }
        out = append(out, rec)
    }
    return out, rows.Err()
}

func (p *Postgres) SetTrafficDelay(ctx context.Context, at model.Coordinate, delayMs int64, ttl time.Duration) error {
    _, err := p.db.ExecContext(ctx,
        `INSERT INTO traffic_delays (cell, delay_ms, expires_at) VALUES ($1,$2,$3)
         ON CONFLICT (cell) DO UPDATE SET delay_ms = EXCLUDED.delay_ms, expires_at = EXCLUDED.expires_at`,
        trafficKey(at), delayMs, time.Now().Add(ttl))
    return err
}

func (p *Postgres) GetTrafficDelay(ctx context.Context, at model.Coordinate) (int64, bool, error) {
    var delayMs int64
    err := p.db.QueryRowContext(ctx,
        `SELECT delay_ms FROM traffic_delays WHERE cell = $1 AND expires_at > now()`, trafficKey(at)).Scan(&delayMs)
    if errors.Is(err, sql.ErrNoRows) { return 0, false, nil }
    if err != nil { return 0, false, err }
    return delayMs, true, nil
}

func (p *Postgres) PurgeExpiredTraffic(ctx context.Context, now time.Time) error {
    _, err := p.db.ExecContext(ctx, `DELETE FROM traffic_delays WHERE expires_at <= $1`, now)
    return err
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func nullIfEmpty(s string) any {
    if s == "" { return nil }
    return s
}
