// Package geo provides great-circle distance math for store ranking.
package geo

import "math"

// EarthRadiusKM is the mean Earth radius used by the Haversine formula.
const EarthRadiusKM = 6371.0

// DistanceKM returns the Haversine distance in kilometres between two
// latitude/longitude points given in decimal degrees.
func DistanceKM(lat1, lng1, lat2, lng2 float64) float64 {
	dlat := toRadians(lat2 - lat1)
	dlng := toRadians(lng2 - lng1)

	sinDlat := math.Sin(dlat / 2)
	sinDlng := math.Sin(dlng / 2)
	a := sinDlat*sinDlat + math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*sinDlng*sinDlng
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusKM * c
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
