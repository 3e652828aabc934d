package api

import (
	"testing"
	"time"
)

func TestThrottleBurst(t *testing.T) {
	th := NewThrottle(5, time.Second)
	now := time.Unix(1000, 0)
	th.now = func() time.Time { return now }

	allowed, dropped := 0, 0
	for i := 0; i < 10; i++ {
		if th.Allow("veh1") {
			allowed++
		} else {
			dropped++
		}
		now = now.Add(20 * time.Millisecond) // 10 sends inside 200ms
	}
	if allowed != 5 || dropped != 5 {
		t.Fatalf("allowed=%d dropped=%d, want 5/5", allowed, dropped)
	}
}

func TestThrottlePerVehicleIsolation(t *testing.T) {
	th := NewThrottle(5, time.Second)
	now := time.Unix(1000, 0)
	th.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		if !th.Allow("veh1") {
			t.Fatalf("send %d for veh1 should pass", i)
		}
	}
	if th.Allow("veh1") {
		t.Fatal("veh1 over limit should drop")
	}
	if !th.Allow("veh2") {
		t.Fatal("veh2 must be unaffected by veh1's window")
	}
}

func TestThrottleWindowSlides(t *testing.T) {
	th := NewThrottle(5, time.Second)
	now := time.Unix(1000, 0)
	th.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		th.Allow("veh1")
	}
	if th.Allow("veh1") {
		t.Fatal("should be throttled at the limit")
	}
	now = now.Add(1100 * time.Millisecond)
	if !th.Allow("veh1") {
		t.Fatal("window should have slid past the old sends")
	}
}
