package nav

import (
	"time"

	"navtrack/internal/geo"
	"navtrack/internal/model"
)

// evaluateOffRoute runs the per-vehicle off-route state machine against one
// position report. It returns true when the strike threshold is reached,
// which also resets the counter.
//
// A single noisy GPS sample must not trigger an expensive recompute, so
// consecutive out-of-tolerance evaluations (spaced by the debounce interval)
// are required before a reroute fires.
func (e *Engine) evaluateOffRoute(vehicleID string, pos model.Coordinate, polyline []model.Coordinate, now time.Time) bool {
	o := e.State.offRoute(vehicleID)

	e.State.mu.Lock()
	defer e.State.mu.Unlock()

	if !o.lastEval.IsZero() && now.Sub(o.lastEval) < e.cfg.Debounce {
		return false
	}
	o.lastEval = now

	d := geo.PointToPolyline(pos, polyline)
	if d > e.cfg.OffRouteThresholdM {
		o.strikes++
		if o.strikes >= e.cfg.StrikeLimit {
			o.strikes = 0
			return true
		}
		return false
	}
	if o.strikes != 0 {
		o.strikes = 0
	}
	return false
}
