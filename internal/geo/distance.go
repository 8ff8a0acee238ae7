// Package geo implements great-circle math on a spherical Earth.
package geo

import "math"

// EarthRadiusMeters is the mean Earth radius used by every calculation here.
const EarthRadiusMeters = 6371000

// Distance returns the haversine distance in meters between two coordinates.
func Distance(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)

	// Rounding can push a slightly outside [0, 1] for antipodal points.
	a = math.Min(1, math.Max(0, a))

	return EarthRadiusMeters * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// Bearing returns the initial course in degrees [0, 360) from the first point to the second.
func Bearing(lat1, lng1, lat2, lng2 float64) float64 {
	phi1, phi2 := toRad(lat1), toRad(lat2)
	dLng := toRad(lng2 - lng1)

	y := math.Sin(dLng) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLng)

	return math.Mod(toDeg(math.Atan2(y, x))+360, 360)
}

// Offset returns the point reached by travelling meters along bearing from the origin.
func Offset(lat, lng, bearing, meters float64) (float64, float64) {
	delta := meters / EarthRadiusMeters
	theta := toRad(bearing)
	phi1, lambda1 := toRad(lat), toRad(lng)

	phi2 := math.Asin(math.Sin(phi1)*math.Cos(delta) + math.Cos(phi1)*math.Sin(delta)*math.Cos(theta))
	lambda2 := lambda1 + math.Atan2(
		math.Sin(theta)*math.Sin(delta)*math.Cos(phi1),
		math.Cos(delta)-math.Sin(phi1)*math.Sin(phi2),
	)

	return toDeg(phi2), math.Mod(toDeg(lambda2)+540, 360) - 180
}

// Valid reports whether the coordinate lies inside WGS84 bounds.
func Valid(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lng) {
		return false
	}

	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}

func toDeg(rad float64) float64 {
	return rad * 180 / math.Pi
}
