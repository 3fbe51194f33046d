/**
 * @description
 * Great-circle distance helpers used for check-in geofencing and companion-join
 * proximity checks. Pure functions, no I/O.
 */

package geo

import "math"

// earthRadiusMeters is the mean Earth radius used by the haversine formula.
const earthRadiusMeters = 6371000.0

// DistanceMeters returns the haversine great-circle distance between two
// coordinates in meters.
func DistanceMeters(lat1, lng1, lat2, lng2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}

// WithinRadius reports whether the two coordinates are at most radiusMeters apart.
func WithinRadius(lat1, lng1, lat2, lng2, radiusMeters float64) bool {
	return DistanceMeters(lat1, lng1, lat2, lng2) <= radiusMeters
}
