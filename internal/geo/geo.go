// Package geo provides the great-circle and polyline math used by the
// off-route monitor and the fallback route synthesizer. All functions are
// pure and perform no I/O.
package geo

import (
	"math"

	"navtrack/internal/model"
)

const earthRadiusM = 6371000.0

// Distance returns the haversine great-circle distance between a and b in
// meters.
func Distance(a, b model.Coordinate) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dlat := (b.Lat - a.Lat) * math.Pi / 180
	dlng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dlng/2)*math.Sin(dlng/2)
	return earthRadiusM * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Bearing returns the initial compass bearing from a to b in degrees [0,360).
func Bearing(a, b model.Coordinate) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dlng := (b.Lng - a.Lng) * math.Pi / 180

	y := math.Sin(dlng) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dlng)
	deg := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}

// PointToPolyline returns the minimum distance in meters from point to the
// polyline. An empty polyline yields +Inf; a single vertex degenerates to a
// point distance.
func PointToPolyline(point model.Coordinate, line []model.Coordinate) float64 {
	if len(line) == 0 {
		return math.Inf(1)
	}
	if len(line) == 1 {
		return Distance(point, line[0])
	}
	min := math.Inf(1)
	for i := 0; i < len(line)-1; i++ {
		if d := pointToSegment(point, line[i], line[i+1]); d < min {
			min = d
		}
	}
	return min
}

// pointToSegment projects point onto the segment [a,b] using an
// equirectangular approximation centered on the segment midpoint's latitude,
// clamps the projection parameter to [0,1], and measures the haversine
// distance to the clamped point.
func pointToSegment(point, a, b model.Coordinate) float64 {
	midLat := (a.Lat + b.Lat) / 2 * math.Pi / 180
	scale := math.Cos(midLat)

	ax, ay := a.Lng*scale, a.Lat
	bx, by := b.Lng*scale, b.Lat
	px, py := point.Lng*scale, point.Lat

	dx, dy := bx-ax, by-ay
	segLenSq := dx*dx + dy*dy
	if segLenSq == 0 {
		// zero-length segment: the vertex is the closest point
		return Distance(point, a)
	}
	t := ((px-ax)*dx + (py-ay)*dy) / segLenSq
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	closest := model.Coordinate{
		Lat: a.Lat + t*(b.Lat-a.Lat),
		Lng: a.Lng + t*(b.Lng-a.Lng),
	}
	return Distance(point, closest)
}

// InterpolateLine returns steps+1 evenly spaced points from a to b inclusive.
func InterpolateLine(a, b model.Coordinate, steps int) []model.Coordinate {
	if steps < 1 {
		steps = 1
	}
	out := make([]model.Coordinate, 0, steps+1)
	for i := 0; i <= steps; i++ {
		f := float64(i) / float64(steps)
		out = append(out, model.Coordinate{
			Lat: a.Lat + f*(b.Lat-a.Lat),
			Lng: a.Lng + f*(b.Lng-a.Lng),
		})
	}
	return out
}

var compassNames = [8]string{"north", "northeast", "east", "southeast", "south", "southwest", "west", "northwest"}

// DirectionName maps a bearing to the nearest of 8 compass points.
func DirectionName(bearing float64) string {
	idx := int(math.Round(math.Mod(bearing+360, 360)/45)) % 8
	return compassNames[idx]
}
