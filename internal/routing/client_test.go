package routing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"navtrack/internal/model"
)

var (
	testStart = model.Coordinate{Lat: 37.7749, Lng: -122.4194}
	testEnd   = model.Coordinate{Lat: 37.7849, Lng: -122.4094}
)

func newTestClient(url string) *Client {
	c := NewClient(url, "test-key", nil)
	c.sleep = func(time.Duration) {}
	c.randF = func() float64 { return 0 }
	return c
}

func providerBody(nPoints int) string {
	pts := ""
	for i := 0; i < nPoints; i++ {
		if i > 0 {
			pts += ","
		}
		pts += fmt.Sprintf("[%f,%f]", -122.4194+float64(i)*0.001, 37.7749+float64(i)*0.001)
	}
	return fmt.Sprintf(`{"paths":[{"distance":1500,"time":120000,"points":{"coordinates":[%s]},"instructions":[{"text":"Head north","distance":750,"time":60000}]}]}`, pts)
}

func TestStrategySelection(t *testing.T) {
	cases := []struct {
		attempt int
		want    strategy
	}{
		{0, strategy{Nudge: -1}},
		{1, strategy{Swap: true, Nudge: -1}},
		{2, strategy{CHDisable: true, Nudge: -1}},
		{3, strategy{Swap: true, CHDisable: true, Nudge: -1}},
		{4, strategy{CHDisable: true, Nudge: 1}},
		{5, strategy{CHDisable: true, Nudge: 2}},
		{12, strategy{CHDisable: true, Nudge: 0}},
		{13, strategy{CHDisable: true, Nudge: 1}},
	}
	for _, c := range cases {
		if got := strategyFor(c.attempt); got != c.want {
			t.Fatalf("strategyFor(%d) = %+v, want %+v", c.attempt, got, c.want)
		}
	}
}

func TestBackoffBounds(t *testing.T) {
	for n := 0; n < 6; n++ {
		base := backoffDelay(n)
		wantMs := int64(100) << uint(n)
		if wantMs > 2000 {
			wantMs = 2000
		}
		if base != time.Duration(wantMs)*time.Millisecond {
			t.Fatalf("backoffDelay(%d) = %v, want %dms", n, base, wantMs)
		}
	}
	// jitter adds at most 30% on top of the base
	c := newTestClient("")
	c.randF = func() float64 { return 1 }
	if d := c.retryDelay(1, 0); d != 260*time.Millisecond {
		t.Fatalf("max jitter delay = %v, want 260ms", d)
	}
	c.randF = func() float64 { return 0 }
	if d := c.retryDelay(1, 0); d != 200*time.Millisecond {
		t.Fatalf("min jitter delay = %v, want 200ms", d)
	}
}

func TestRetryDelayHonorsRetryAfter(t *testing.T) {
	c := newTestClient("")
	if d := c.retryDelay(1, 3*time.Second); d != 3*time.Second {
		t.Fatalf("retry-after should win: %v", d)
	}
	if d := c.retryDelay(1, 50*time.Millisecond); d != 200*time.Millisecond {
		t.Fatalf("backoff should win: %v", d)
	}
}

func TestRouteSuccessFirstAttempt(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, providerBody(5))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	res, err := c.Route(context.Background(), testStart, testEnd, "car", true)
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	if res.DistanceM != 1500 || res.DurationMs != 120000 {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(res.Coordinates) != 5 {
		t.Fatalf("coords = %d, want 5", len(res.Coordinates))
	}
	if res.Coordinates[0].Lat != 37.7749 {
		t.Fatalf("lng/lat order not unpacked: %+v", res.Coordinates[0])
	}
	if res.Fallback {
		t.Fatal("provider result must not be marked fallback")
	}
}

func TestRouteUnauthorizedIsTerminal(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.Route(context.Background(), testStart, testEnd, "car", false)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want exactly 1 (no retries)", calls)
	}
}

func TestRouteRetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, providerBody(3))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	res, err := c.Route(context.Background(), testStart, testEnd, "car", false)
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
	if len(res.Coordinates) != 3 {
		t.Fatalf("coords = %d", len(res.Coordinates))
	}
}

func TestRouteRateLimitRecordsRetryAfter(t *testing.T) {
	var delays []time.Duration
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, providerBody(2))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	c.sleep = func(d time.Duration) { delays = append(delays, d) }
	if _, err := c.Route(context.Background(), testStart, testEnd, "car", false); err != nil {
		t.Fatalf("route: %v", err)
	}
	if len(delays) != 1 || delays[0] != 2*time.Second {
		t.Fatalf("expected one 2s wait, got %v", delays)
	}
}

func TestRouteExhaustsBudget(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, `{"paths":[]}`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.Route(context.Background(), testStart, testEnd, "car", false)
	if err == nil {
		t.Fatal("expected failure after exhausting attempts")
	}
	if !errors.Is(err, ErrNoRoute) {
		t.Fatalf("want ErrNoRoute reason, got %v", err)
	}
	if calls != 5 {
		t.Fatalf("calls = %d, want 5", calls)
	}
}

func TestRouteAttemptParamsFollowStrategy(t *testing.T) {
	var seen []struct {
		firstPoint string
		chDisable  string
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pts := r.URL.Query()["point"]
		seen = append(seen, struct {
			firstPoint string
			chDisable  string
		}{pts[0], r.URL.Query().Get("ch.disable")})
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, _ = c.Route(context.Background(), testStart, testEnd, "car", false)
	if len(seen) != 5 {
		t.Fatalf("attempts = %d, want 5", len(seen))
	}
	baseline := fmt.Sprintf("%f,%f", testStart.Lat, testStart.Lng)
	swapped := fmt.Sprintf("%f,%f", testStart.Lng, testStart.Lat)
	if seen[0].firstPoint != baseline || seen[0].chDisable != "" {
		t.Fatalf("attempt 0 not baseline: %+v", seen[0])
	}
	if seen[1].firstPoint != swapped {
		t.Fatalf("attempt 1 should swap axes: %+v", seen[1])
	}
	if seen[2].firstPoint != baseline || seen[2].chDisable != "true" {
		t.Fatalf("attempt 2 should be CH-disable only: %+v", seen[2])
	}
	if seen[3].firstPoint != swapped || seen[3].chDisable != "true" {
		t.Fatalf("attempt 3 should swap+CH: %+v", seen[3])
	}
	// attempt 4 nudges the origin north by ~0.00045
	nudged := fmt.Sprintf("%f,%f", testStart.Lat+nudgeDeg, testStart.Lng)
	if seen[4].firstPoint != nudged || seen[4].chDisable != "true" {
		t.Fatalf("attempt 4 should nudge north with CH-disable: %+v", seen[4])
	}
}

func TestRouteUsesCache(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, providerBody(2))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	c.Cache = NewCache(10, time.Minute)
	for i := 0; i < 3; i++ {
		if _, err := c.Route(context.Background(), testStart, testEnd, "car", false); err != nil {
			t.Fatalf("route %d: %v", i, err)
		}
	}
	if calls != 1 {
		t.Fatalf("provider calls = %d, want 1 (cache reuse)", calls)
	}
}

func TestRouteRejectsInvalidInput(t *testing.T) {
	c := newTestClient("http://unused.invalid")
	_, err := c.Route(context.Background(), model.Coordinate{Lat: 91, Lng: 0}, testEnd, "car", false)
	if err == nil {
		t.Fatal("out-of-range latitude must be rejected before any provider call")
	}
}

func TestFallbackRoute(t *testing.T) {
	res := Fallback(testStart, testEnd)
	if !res.Fallback {
		t.Fatal("fallback flag not set")
	}
	if len(res.Coordinates) != 51 {
		t.Fatalf("coords = %d, want 51", len(res.Coordinates))
	}
	if len(res.Instructions) != 3 {
		t.Fatalf("instructions = %d, want 3", len(res.Instructions))
	}
	if res.Instructions[0].Text != "Head northeast" {
		t.Fatalf("heading instruction = %q", res.Instructions[0].Text)
	}
	if res.Instructions[2].Text != "Arrive at destination" || res.Instructions[2].DistanceM != 0 {
		t.Fatalf("arrival step wrong: %+v", res.Instructions[2])
	}
	// duration at 50 km/h: dist / 13.89 m/s
	wantMs := int64(res.DistanceM / (50.0 / 3.6) * 1000)
	if res.DurationMs != wantMs {
		t.Fatalf("duration = %d, want %d", res.DurationMs, wantMs)
	}
}
