// Package geo implements the circular geofence test used by location checks.
package geo

import "math"

const earthRadiusMeters = 6371000

// Point is a WGS84 coordinate pair.
type Point struct {
	Lat float64 `json:"latitude"`
	Lng float64 `json:"longitude"`
}

// Region is a circular geofence around a center point.
type Region struct {
	Center       Point   `json:"center"`
	RadiusMeters float64 `json:"radiusMeters"`
}

// DistanceMeters returns the haversine great-circle distance between two
// points. Invalid coordinates yield NaN.
func DistanceMeters(a, b Point) float64 {
	if !a.valid() || !b.valid() {
		return math.NaN()
	}
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
}

// Contains reports whether p falls inside the region. The boundary is
// inclusive. Invalid coordinates are never inside.
func (r Region) Contains(p Point) bool {
	d := DistanceMeters(r.Center, p)
	if math.IsNaN(d) {
		return false
	}
	return d <= r.RadiusMeters
}

func (p Point) valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}
