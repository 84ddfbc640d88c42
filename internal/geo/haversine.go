// Package geo provides great-circle distance math shared by the discovery
// radius filter and the sqlite store's geo queries.
package geo

import "math"

const earthRadiusMeters = 6_371_000

// Haversine returns the great-circle distance in meters between two
// (lat, lng) points in degrees.
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	rlat1 := lat1 * math.Pi / 180
	rlat2 := lat2 * math.Pi / 180
	dlat := (lat2 - lat1) * math.Pi / 180
	dlng := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(rlat1)*math.Cos(rlat2)*math.Sin(dlng/2)*math.Sin(dlng/2)
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(a))
}
