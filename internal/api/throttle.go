package api

import (
	"sync"
	"time"
)

// Throttle rate-limits outbound position broadcasts per vehicle: at most
// max sends within the trailing window. Over-limit messages are dropped,
// never queued; the next tick carries the newest state anyway. Only the
// position message type goes through this gate.
type Throttle struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	sent   map[string][]time.Time
	now    func() time.Time
}

// NewThrottle constructs a Throttle. max <= 0 selects the default of 5
// sends per second.
func NewThrottle(max int, window time.Duration) *Throttle {
	if max <= 0 {
		max = 5
	}
	if window <= 0 {
		window = time.Second
	}
	return &Throttle{max: max, window: window, sent: map[string][]time.Time{}, now: time.Now}
}

// Allow reports whether a position broadcast for the vehicle may be sent
// now, recording the send when permitted.
func (t *Throttle) Allow(vehicleID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	cutoff := now.Add(-t.window)

	stamps := t.sent[vehicleID]
	kept := stamps[:0]
	for _, ts := range stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= t.max {
		t.sent[vehicleID] = kept
		return false
	}
	t.sent[vehicleID] = append(kept, now)
	return true
}
