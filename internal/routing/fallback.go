package routing

import (
	"navtrack/internal/geo"
	"navtrack/internal/model"
)

const (
	fallbackSteps    = 50
	fallbackSpeedKmh = 50.0
)

// Fallback synthesizes a straight-line route used when the provider is
// unusable or no credential is configured: 50 interpolation segments,
// haversine distance, a duration estimate at a constant 50 km/h, and a
// three-step instruction list.
func Fallback(start, end model.Coordinate) Result {
	distM := geo.Distance(start, end)
	durMs := int64(distM / (fallbackSpeedKmh / 3.6) * 1000)
	heading := geo.DirectionName(geo.Bearing(start, end))

	return Result{
		DistanceM:   distM,
		DurationMs:  durMs,
		Coordinates: geo.InterpolateLine(start, end, fallbackSteps),
		Instructions: []model.Instruction{
			{Text: "Head " + heading, DistanceM: distM / 2, DurationMs: durMs / 2},
			{Text: "Continue straight", DistanceM: distM / 2, DurationMs: durMs / 2},
			{Text: "Arrive at destination"},
		},
		Fallback: true,
	}
}
