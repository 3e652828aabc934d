package model

import "time"

// Core domain types

// Coordinate is an immutable WGS84 point.
type Coordinate struct {
    Lat float64 `json:"lat"`
    Lng float64 `json:"lng"`
}

// Valid reports whether the coordinate is inside the WGS84 envelope.
func (c Coordinate) Valid() bool {
    return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

// VehicleState is the latest known state of a reporting vehicle.
type VehicleState struct {
    ID         string     `json:"id"`
    Position   Coordinate `json:"position"`
    HeadingDeg float64    `json:"headingDeg"` // 0 = north
    SpeedKmh   float64    `json:"speedKmh"`
    UpdatedAt  time.Time  `json:"updatedAt"`
}

// Instruction is a single turn instruction on a route.
type Instruction struct {
    Text       string  `json:"text"`
    DistanceM  float64 `json:"distanceM"`
    DurationMs int64   `json:"durationMs"`
}

// ActiveRoute is the route currently assigned to a vehicle. A new
// computation fully replaces the prior one.
type ActiveRoute struct {
    ID           string        `json:"id"`
    VehicleID    string        `json:"vehicleId,omitempty"` // empty for anonymous queries
    Start        Coordinate    `json:"start"`
    End          Coordinate    `json:"end"`
    Coordinates  []Coordinate  `json:"coordinates"`
    DistanceM    float64       `json:"distanceM"`
    DurationMs   int64         `json:"durationMs"` // includes any traffic delay
    Instructions []Instruction `json:"instructions,omitempty"`
    Fallback     bool          `json:"fallback"`
    Recalculated bool          `json:"recalculated"`
    CreatedAt    time.Time     `json:"createdAt"`
}

// PositionReport is an inbound high-frequency vehicle position update.
// Speed and heading are pointers so an explicit 0 (a stopped vehicle, a
// due-north heading) is distinguishable from an omitted field.
type PositionReport struct {
    VehicleID  string   `json:"vehicleId"`
    Lat        float64  `json:"lat"`
    Lng        float64  `json:"lng"`
    SpeedKmh   *float64 `json:"speedKmh,omitempty"`
    HeadingDeg *float64 `json:"headingDeg,omitempty"`
    TS         string   `json:"ts,omitempty"` // optional client timestamp, RFC3339
}

// Hazard kinds.
const (
    KindHazard   = "hazard"
    KindObstacle = "obstacle"
)

// Hazard is a reported road hazard or obstacle. Obstacles carry their own
// effective radius; hazards use the configured proximity radius.
type Hazard struct {
    ID          string     `json:"id"`
    Kind        string     `json:"kind"`
    Location    Coordinate `json:"location"`
    Severity    string     `json:"severity,omitempty"`
    RadiusM     float64    `json:"radiusM,omitempty"`
    Description string     `json:"description,omitempty"`
    ReportedAt  time.Time  `json:"reportedAt"`
}

// HazardReport is the inbound shape for hazard/obstacle reports.
type HazardReport struct {
    Kind        string  `json:"kind"`
    Lat         float64 `json:"lat"`
    Lng         float64 `json:"lng"`
    Severity    string  `json:"severity,omitempty"`
    RadiusM     float64 `json:"radiusM,omitempty"`
    Description string  `json:"description,omitempty"`
}

// RouteRecord is an append-only history row for computed routes.
type RouteRecord struct {
    ID           string    `json:"id"`
    VehicleID    string    `json:"vehicleId,omitempty"`
    DistanceM    float64   `json:"distanceM"`
    DurationMs   int64     `json:"durationMs"`
    Fallback     bool      `json:"fallback"`
    Recalculated bool      `json:"recalculated"`
    CreatedAt    time.Time `json:"createdAt"`
}
