package geo_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pkordes/little-escape/internal/domain"
	"github.com/pkordes/little-escape/internal/geo"
)

var (
	seoulCityHall = domain.Coordinate{Lat: 37.5663, Lng: 126.9779}
	gangnamStn    = domain.Coordinate{Lat: 37.4979, Lng: 127.0276}
)

func TestDistance_IdenticalPointsIsZero(t *testing.T) {
	assert.Equal(t, 0.0, geo.Distance(seoulCityHall, seoulCityHall))
}

func TestDistance_Symmetric(t *testing.T) {
	assert.Equal(t, geo.Distance(seoulCityHall, gangnamStn), geo.Distance(gangnamStn, seoulCityHall))
}

func TestDistance_KnownPair(t *testing.T) {
	d := geo.Distance(seoulCityHall, gangnamStn)
	// City Hall to Gangnam station is roughly 8.8 km as the crow flies.
	assert.InDelta(t, 8800, d, 150)
}

func TestDistance_OneDegreeOfLatitude(t *testing.T) {
	d := geo.Distance(domain.Coordinate{Lat: 0, Lng: 0}, domain.Coordinate{Lat: 1, Lng: 0})
	assert.InDelta(t, geo.EarthRadiusM*math.Pi/180, d, 0.001)
}

func TestDistance_AntipodalIsFinite(t *testing.T) {
	d := geo.Distance(domain.Coordinate{Lat: 0, Lng: 0}, domain.Coordinate{Lat: 0, Lng: 180})
	assert.False(t, math.IsNaN(d))
	assert.InDelta(t, math.Pi*geo.EarthRadiusM, d, 1)
}

func TestOffset_RoundTripsDistance(t *testing.T) {
	for _, bearing := range []float64{0, 45, 90, 180, 270, 333} {
		p := geo.Offset(seoulCityHall, bearing, 1200)
		assert.InDelta(t, 1200, geo.Distance(seoulCityHall, p), 0.5, "bearing %v", bearing)
	}
}

func TestOffset_NorthMovesLatitudeOnly(t *testing.T) {
	p := geo.Offset(domain.Coordinate{Lat: 10, Lng: 20}, 0, geo.EarthRadiusM*math.Pi/180)
	assert.InDelta(t, 11, p.Lat, 1e-9)
	assert.InDelta(t, 20, p.Lng, 1e-9)
}

func TestOffset_WrapsAntimeridian(t *testing.T) {
	p := geo.Offset(domain.Coordinate{Lat: 0, Lng: 179.999}, 90, 1000)
	assert.Less(t, p.Lng, 0.0)
	assert.GreaterOrEqual(t, p.Lng, -180.0)
}
