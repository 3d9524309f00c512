package geo

import "math"

// EarthRadiusKm is the mean Earth radius used for great-circle distances.
const EarthRadiusKm = 6371.0

// Haversine returns the great-circle distance in kilometers between two
// points given in degrees, rounded to 2 decimal places.
// ok is false when any coordinate is missing.
func Haversine(lat1, lon1, lat2, lon2 *float64) (distance float64, ok bool) {
	if lat1 == nil || lon1 == nil || lat2 == nil || lon2 == nil {
		return 0, false
	}

	phi1 := toRadians(*lat1)
	phi2 := toRadians(*lat2)
	deltaPhi := toRadians(*lat2 - *lat1)
	deltaLambda := toRadians(*lon2 - *lon1)

	a := math.Pow(math.Sin(deltaPhi/2), 2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Pow(math.Sin(deltaLambda/2), 2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	d := EarthRadiusKm * c
	if math.IsNaN(d) || math.IsInf(d, 0) {
		return 0, false
	}
	return math.Round(d*100) / 100, true
}

// ValidCoordinates reports whether lat/lng are within the WGS84 ranges.
func ValidCoordinates(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
