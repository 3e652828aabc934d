package nav

import (
    "sync"
    "time"

    "navtrack/internal/model"
)

// State holds the per-process registries: vehicle states, active routes and
// off-route counters, all keyed by vehicle id. Entries are created lazily on
// first report and live for the process lifetime.
type State struct {
    mu       sync.Mutex
    vehicles map[string]model.VehicleState
    routes   map[string]model.ActiveRoute
    offroute map[string]*offRouteState
}

// offRouteState tracks consecutive out-of-tolerance evaluations.
type offRouteState struct {
    strikes  int
    lastEval time.Time
}

func NewState() *State {
    return &State{
        vehicles: map[string]model.VehicleState{},
        routes:   map[string]model.ActiveRoute{},
        offroute: map[string]*offRouteState{},
    }
}

// UpsertVehicle records a position report and returns the updated state.
func (s *State) UpsertVehicle(rep model.PositionReport, now time.Time) model.VehicleState {
    s.mu.Lock()
    defer s.mu.Unlock()
    v := s.vehicles[rep.VehicleID]
    v.ID = rep.VehicleID
    v.Position = model.Coordinate{Lat: rep.Lat, Lng: rep.Lng}
    if rep.SpeedKmh != nil { v.SpeedKmh = *rep.SpeedKmh }
    if rep.HeadingDeg != nil { v.HeadingDeg = *rep.HeadingDeg }
    v.UpdatedAt = now
    s.vehicles[rep.VehicleID] = v
    return v
}

// Vehicle returns the last known state for a vehicle id.
func (s *State) Vehicle(id string) (model.VehicleState, bool) {
    s.mu.Lock()
    defer s.mu.Unlock()
    v, ok := s.vehicles[id]
    return v, ok
}

// Vehicles returns a snapshot of all known vehicles.
func (s *State) Vehicles() []model.VehicleState {
    s.mu.Lock()
    defer s.mu.Unlock()
    out := make([]model.VehicleState, 0, len(s.vehicles))
    for _, v := range s.vehicles { out = append(out, v) }
    return out
}

// SetRoute replaces the vehicle's active route. A new computation fully
// replaces the prior one; concurrent writers are last-writer-wins.
func (s *State) SetRoute(vehicleID string, rt model.ActiveRoute) {
    s.mu.Lock()
    defer s.mu.Unlock()
    s.routes[vehicleID] = rt
}

// Route returns the vehicle's active route.
func (s *State) Route(vehicleID string) (model.ActiveRoute, bool) {
    s.mu.Lock()
    defer s.mu.Unlock()
    rt, ok := s.routes[vehicleID]
    return rt, ok
}

// ActiveRoutes returns a snapshot of all active routes.
func (s *State) ActiveRoutes() []model.ActiveRoute {
    s.mu.Lock()
    defer s.mu.Unlock()
    out := make([]model.ActiveRoute, 0, len(s.routes))
    for _, rt := range s.routes { out = append(out, rt) }
    return out
}

// offRoute returns the off-route record for a vehicle, creating it lazily.
func (s *State) offRoute(vehicleID string) *offRouteState {
    s.mu.Lock()
    defer s.mu.Unlock()
    o := s.offroute[vehicleID]
    if o == nil {
        o = &offRouteState{}
        s.offroute[vehicleID] = o
    }
    return o
}
