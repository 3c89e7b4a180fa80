package utils

import "math"

// EarthRadiusMeters is the mean radius of the spherical earth model.
const EarthRadiusMeters = 6371000

func toRadians(deg float64) float64 {
	return deg * (math.Pi / 180.0)
}

// CalculateHaversineDistance returns the great-circle distance in meters.
func CalculateHaversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLon := toRadians(lon2 - lon1)

	lat1Rad := toRadians(lat1)
	lat2Rad := toRadians(lat2)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Sin(dLon/2)*math.Sin(dLon/2)*math.Cos(lat1Rad)*math.Cos(lat2Rad)

	// rounding can push a just past 1 for antipodal points
	a = math.Min(1, math.Max(0, a))

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusMeters * c
}

// OffsetNorth returns the latitude reached by moving meters due north along a meridian.
func OffsetNorth(lat, meters float64) float64 {
	return lat + meters/EarthRadiusMeters*(180.0/math.Pi)
}
