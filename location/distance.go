package location

import "math"

const earthRadiusMeters = 6371000.0

// Distance returns the great-circle distance in meters.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(a)))
}

// BoundingBox returns the latitude and longitude ranges enclosing a circle
// of radius meters. Stores use it to prefilter before Distance.
func BoundingBox(lat, lon, radiusMeters float64) (minLat, maxLat, minLon, maxLon float64) {
	dLat := radiusMeters / earthRadiusMeters * 180 / math.Pi
	cos := math.Cos(lat * math.Pi / 180)
	dLon := 180.0
	if cos > 1e-9 {
		dLon = math.Min(180, dLat/cos)
	}
	return lat - dLat, lat + dLat, lon - dLon, lon + dLon
}
