package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"navtrack/internal/metrics"
	"navtrack/internal/model"
)

// Result is a computed route: distance, duration, polyline and optional
// turn instructions. Fallback marks routes synthesized without the provider.
type Result struct {
	DistanceM    float64
	DurationMs   int64
	Coordinates  []model.Coordinate
	Instructions []model.Instruction
	Fallback     bool
}

// ErrUnauthorized marks a terminal credential failure; the client does not
// retry past it.
var ErrUnauthorized = errors.New("routing provider rejected credential")

// ErrNoRoute is returned when the provider answered but produced no usable
// path.
var ErrNoRoute = errors.New("no route in provider response")

const (
	maxAttempts    = 5
	nudgeDeg       = 0.00045 // ~50m
	backoffBaseMs  = 100
	backoffCapMs   = 2000
	backoffJitter  = 0.3
	defaultProfile = "car"
)

// nudgeOffsets are the fixed origin displacements tried from attempt 4 on:
// none, N, E, S, W, NE, NW, SE, SW.
var nudgeOffsets = [9][2]float64{
	{0, 0},
	{nudgeDeg, 0},
	{0, nudgeDeg},
	{-nudgeDeg, 0},
	{0, -nudgeDeg},
	{nudgeDeg, nudgeDeg},
	{nudgeDeg, -nudgeDeg},
	{-nudgeDeg, nudgeDeg},
	{-nudgeDeg, -nudgeDeg},
}

// strategy is the coordinate-repair plan for a single attempt.
type strategy struct {
	Swap      bool // send lng,lat instead of lat,lng
	CHDisable bool // bypass contraction-hierarchy shortcut
	Nudge     int  // index into nudgeOffsets, -1 for none
}

// strategyFor selects the repair strategy for an attempt number. Pure.
func strategyFor(attempt int) strategy {
	switch attempt {
	case 0:
		return strategy{Nudge: -1}
	case 1:
		return strategy{Swap: true, Nudge: -1}
	case 2:
		return strategy{CHDisable: true, Nudge: -1}
	case 3:
		return strategy{Swap: true, CHDisable: true, Nudge: -1}
	default:
		return strategy{CHDisable: true, Nudge: (attempt - 3) % 9}
	}
}

// backoffDelay computes the exponential backoff for an attempt before
// jitter is considered by the caller: min(100ms * 2^attempt, 2000ms).
func backoffDelay(attempt int) time.Duration {
	ms := int64(backoffBaseMs) << uint(attempt)
	if ms > backoffCapMs {
		ms = backoffCapMs
	}
	return time.Duration(ms) * time.Millisecond
}

// attemptOutcome carries a single attempt's classification through the
// retry loop.
type attemptOutcome struct {
	result     *Result
	retryAfter time.Duration // provider-supplied wait on rate limiting
	terminal   bool
	reason     error
}

// Client calls the external routing provider, applying repair strategies
// and backoff across attempts and consulting the response cache.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
	Cache   *Cache

	sleep func(time.Duration) // test hook
	randF func() float64      // test hook for jitter
}

// NewClient constructs a Client with a short per-call timeout.
func NewClient(baseURL, apiKey string, cache *Cache) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: 5 * time.Second},
		Cache:   cache,
		sleep:   time.Sleep,
		randF:   rand.Float64,
	}
}

// Route obtains a route from start to end for the profile, retrying with
// repair strategies on failure. It returns ErrUnauthorized without further
// retries on credential rejection.
func (c *Client) Route(ctx context.Context, start, end model.Coordinate, profile string, instructions bool) (Result, error) {
	if !start.Valid() || !end.Valid() {
		return Result{}, fmt.Errorf("invalid coordinates: start=%v end=%v", start, end)
	}
	if profile == "" {
		profile = defaultProfile
	}

	key := CacheKey(start, end, profile)
	if c.Cache != nil {
		if res, ok := c.Cache.Get(key); ok {
			metrics.RouteCacheHits.Inc()
			return res, nil
		}
		metrics.RouteCacheMisses.Inc()
	}

	var lastReason error
	var retryAfter time.Duration
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			c.sleep(c.retryDelay(attempt, retryAfter))
			retryAfter = 0
		}
		out := c.attempt(ctx, start, end, profile, instructions, strategyFor(attempt))
		if out.result != nil {
			metrics.ProviderAttempts.WithLabelValues("success").Inc()
			if c.Cache != nil {
				c.Cache.Put(key, *out.result)
			}
			return *out.result, nil
		}
		if out.terminal {
			metrics.ProviderAttempts.WithLabelValues("terminal").Inc()
			return Result{}, out.reason
		}
		metrics.ProviderAttempts.WithLabelValues("retryable").Inc()
		retryAfter = out.retryAfter
		if out.reason != nil {
			lastReason = out.reason
		}
	}
	if lastReason == nil {
		lastReason = ErrNoRoute
	}
	return Result{}, fmt.Errorf("routing failed after %d attempts: %w", maxAttempts, lastReason)
}

// retryDelay picks the larger of the provider's retry-after hint and the
// exponential backoff with up to 30% random jitter on top.
func (c *Client) retryDelay(attempt int, retryAfter time.Duration) time.Duration {
	base := backoffDelay(attempt)
	d := base + time.Duration(float64(base)*backoffJitter*c.randF())
	if retryAfter > d {
		d = retryAfter
	}
	return d
}

func (c *Client) attempt(ctx context.Context, start, end model.Coordinate, profile string, instructions bool, st strategy) attemptOutcome {
	origin := start
	if st.Nudge >= 0 {
		origin.Lat += nudgeOffsets[st.Nudge][0]
		origin.Lng += nudgeOffsets[st.Nudge][1]
	}

	q := url.Values{}
	q.Add("point", formatPoint(origin, st.Swap))
	q.Add("point", formatPoint(end, st.Swap))
	q.Set("profile", profile)
	q.Set("points_encoded", "false")
	q.Set("instructions", strconv.FormatBool(instructions))
	if st.CHDisable {
		q.Set("ch.disable", "true")
	}
	if c.APIKey != "" {
		q.Set("key", c.APIKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/route?"+q.Encode(), nil)
	if err != nil {
		return attemptOutcome{reason: err}
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		// timeouts, DNS and connection failures are retryable
		return attemptOutcome{reason: err}
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return attemptOutcome{
			retryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			reason:     fmt.Errorf("provider rate limited"),
		}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return attemptOutcome{terminal: true, reason: fmt.Errorf("%w (status %d)", ErrUnauthorized, resp.StatusCode)}
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return attemptOutcome{reason: fmt.Errorf("provider client error %d", resp.StatusCode)}
	case resp.StatusCode >= 500:
		return attemptOutcome{reason: fmt.Errorf("provider server error %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return attemptOutcome{reason: err}
	}
	res, err := parseProviderResponse(body, st.Swap)
	if err != nil {
		return attemptOutcome{reason: err}
	}
	return attemptOutcome{result: res}
}

func formatPoint(c model.Coordinate, swap bool) string {
	if swap {
		return fmt.Sprintf("%f,%f", c.Lng, c.Lat)
	}
	return fmt.Sprintf("%f,%f", c.Lat, c.Lng)
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

// providerResponse is the subset of the provider payload the client reads.
type providerResponse struct {
	Paths []struct {
		Distance float64 `json:"distance"`
		Time     int64   `json:"time"`
		Points   struct {
			Coordinates [][]float64 `json:"coordinates"` // [lng, lat]
		} `json:"points"`
		Instructions []struct {
			Text     string  `json:"text"`
			Distance float64 `json:"distance"`
			Time     int64   `json:"time"`
		} `json:"instructions"`
	} `json:"paths"`
}

func parseProviderResponse(body []byte, swapped bool) (*Result, error) {
	var pr providerResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return nil, fmt.Errorf("malformed provider payload: %w", err)
	}
	if len(pr.Paths) == 0 {
		return nil, ErrNoRoute
	}
	p := pr.Paths[0]
	if len(p.Points.Coordinates) < 2 {
		return nil, ErrNoRoute
	}
	res := &Result{DistanceM: p.Distance, DurationMs: p.Time}
	for _, pair := range p.Points.Coordinates {
		if len(pair) < 2 {
			continue
		}
		c := model.Coordinate{Lat: pair[1], Lng: pair[0]}
		if swapped {
			c = model.Coordinate{Lat: pair[0], Lng: pair[1]}
		}
		res.Coordinates = append(res.Coordinates, c)
	}
	for _, in := range p.Instructions {
		res.Instructions = append(res.Instructions, model.Instruction{Text: in.Text, DistanceM: in.Distance, DurationMs: in.Time})
	}
	return res, nil
}
