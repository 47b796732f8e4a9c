package testutil

import (
	"context"
	"fmt"
	"testing"

	"github.com/pkordes/little-escape/internal/domain"
	"github.com/pkordes/little-escape/internal/geo"
	"github.com/pkordes/little-escape/internal/repo"
)

// SeedCentre is the default origin for seeded places (Seoul City Hall).
var SeedCentre = domain.Coordinate{Lat: 37.5665, Lng: 126.9780}

// SeedPOIs inserts one active place per distance, each distancesM[i] meters
// from centre on its own bearing, and returns them in the same order.
// Subtitles are teasers; names are "Place <i>".
func SeedPOIs(t *testing.T, pool repo.PoolRepo, centre domain.Coordinate, distancesM ...float64) []domain.POI {
	t.Helper()
	out := make([]domain.POI, 0, len(distancesM))
	for i, d := range distancesM {
		bearing := float64((i * 137) % 360)
		poi, err := pool.Create(context.Background(), domain.POI{
			Name:     fmt.Sprintf("Place %d", i+1),
			Subtitle: fmt.Sprintf("Teaser %d", i+1),
			Point:    geo.Offset(centre, bearing, d),
		})
		if err != nil {
			t.Fatalf("testutil.SeedPOIs: create place %d: %v", i+1, err)
		}
		out = append(out, poi)
	}
	return out
}
