// Package geo provides great-circle distance and offsets on the WGS84 sphere.
package geo

import (
	"math"

	"github.com/pkordes/little-escape/internal/domain"
)

// EarthRadiusM is the mean Earth radius in meters.
const EarthRadiusM = 6_371_000.0

// Distance returns the haversine distance in meters between a and b.
// It is symmetric and zero for identical points.
func Distance(a, b domain.Coordinate) float64 {
	lat1 := toRad(a.Lat)
	lat2 := toRad(b.Lat)
	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)

	sLat := math.Sin(dLat / 2)
	sLng := math.Sin(dLng / 2)
	h := sLat*sLat + math.Cos(lat1)*math.Cos(lat2)*sLng*sLng

	// Rounding can push h a hair outside [0, 1] for antipodal points.
	h = math.Min(1, math.Max(0, h))
	return 2 * EarthRadiusM * math.Asin(math.Sqrt(h))
}

// Offset returns the point distanceM meters from origin along the initial
// bearing bearingDeg (clockwise from north). Longitude is normalised to
// [-180, 180].
func Offset(origin domain.Coordinate, bearingDeg, distanceM float64) domain.Coordinate {
	lat1 := toRad(origin.Lat)
	lng1 := toRad(origin.Lng)
	brg := toRad(bearingDeg)
	ang := distanceM / EarthRadiusM

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(ang) + math.Cos(lat1)*math.Sin(ang)*math.Cos(brg))
	lng2 := lng1 + math.Atan2(
		math.Sin(brg)*math.Sin(ang)*math.Cos(lat1),
		math.Cos(ang)-math.Sin(lat1)*math.Sin(lat2),
	)
	lngDeg := math.Mod(toDeg(lng2)+540, 360) - 180
	return domain.Coordinate{Lat: toDeg(lat2), Lng: lngDeg}
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}

func toDeg(rad float64) float64 {
	return rad * 180 / math.Pi
}
