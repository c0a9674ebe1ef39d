// Package geo holds the coordinate math the rest of the system leans on:
// great-circle distance, boundary-inclusive circle membership, and bearing.
// All functions are total over validated coordinates.
package geo

import (
	"errors"
	"math"
)

// EarthRadiusMeters is the mean Earth radius used for haversine distances.
const EarthRadiusMeters = 6371000.0

var ErrInvalidCoordinate = errors.New("invalid coordinate")

// Coordinate is a WGS 84 latitude/longitude pair.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (c Coordinate) Validate() error {
	if c.Lat < -90 || c.Lat > 90 || c.Lng < -180 || c.Lng > 180 {
		return ErrInvalidCoordinate
	}
	return nil
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

// Distance returns the haversine great-circle distance between a and b in
// meters. Symmetric, and zero iff a == b.
func Distance(a, b Coordinate) float64 {
	lat1 := radians(a.Lat)
	lat2 := radians(b.Lat)
	dLat := radians(b.Lat - a.Lat)
	dLng := radians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * EarthRadiusMeters * math.Asin(math.Sqrt(h))
}

// IsInside reports whether point lies within radiusMeters of center.
// Boundary-inclusive: a point exactly radiusMeters away is inside.
func IsInside(point, center Coordinate, radiusMeters float64) bool {
	return Distance(point, center) <= radiusMeters
}

// Bearing returns the initial forward azimuth from a to b in degrees,
// normalized to [0, 360).
func Bearing(a, b Coordinate) float64 {
	lat1 := radians(a.Lat)
	lat2 := radians(b.Lat)
	dLng := radians(b.Lng - a.Lng)

	y := math.Sin(dLng) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLng)
	deg := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}
