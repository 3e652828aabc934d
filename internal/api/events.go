package api

import (
    "navtrack/internal/metrics"
    "navtrack/internal/model"
)

// broadcastPosition forwards a vehicle position to the hub and the
// per-vehicle broker, subject to one per-vehicle rate-cap decision covering
// both. Excess updates are dropped without error; the next report carries
// the newest state anyway.
func (s *Server) broadcastPosition(v model.VehicleState) {
    if !s.Hub.throttle.Allow(v.ID) {
        metrics.BroadcastDropped.Inc()
        return
    }
    s.Hub.Broadcast("position", v)
    s.Broker.Publish(v.ID, Event{Type: "position", Data: map[string]any{"vehicle": v}})
}

// eventFanout implements nav.Publisher by mirroring each engine event to the
// per-vehicle broker (SSE) and the websocket hub.
type eventFanout struct {
    broker EventBroker
    hub    *Hub
}

// legacyRoute is the reduced route shape older clients consume.
//
// Deprecated: new clients should read route.updated instead; this message is
// kept only until the last consumers migrate.
func legacyRoute(rt model.ActiveRoute) map[string]any {
    return map[string]any{
        "vehicleId":   rt.VehicleID,
        "coordinates": rt.Coordinates,
        "distanceM":   rt.DistanceM,
        "durationMs":  rt.DurationMs,
        "fallback":    rt.Fallback,
    }
}

func (f *eventFanout) PublishRoute(rt model.ActiveRoute) {
    full := map[string]any{"route": rt}
    f.broker.Publish(rt.VehicleID, Event{Type: "route.updated", Data: full})
    f.hub.Broadcast("route.updated", rt)

    legacy := legacyRoute(rt)
    f.broker.Publish(rt.VehicleID, Event{Type: "route", Data: legacy})
    f.hub.Broadcast("route", legacy)
}

func (f *eventFanout) PublishAlert(vehicleID string, hz model.Hazard, distanceM float64, rt *model.ActiveRoute) {
    data := map[string]any{
        "vehicleId": vehicleID,
        "hazard":    hz,
        "distanceM": distanceM,
    }
    if rt != nil {
        data["route"] = *rt
    }
    f.broker.Publish(vehicleID, Event{Type: "alert", Data: data})
    f.hub.Broadcast("alert", data)
}
