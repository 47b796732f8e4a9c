// Command seed fills the candidate pool with fake places scattered around a
// centre point. It is meant for local development and demos.
package main

import (
	"context"
	"flag"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/pkordes/little-escape/internal/domain"
	"github.com/pkordes/little-escape/internal/geo"
	"github.com/pkordes/little-escape/internal/repo"
)

var kinds = []string{
	"Garden", "Park", "Cafe", "Library", "Gallery", "Viewpoint",
	"Market", "Bookshop", "Riverside", "Courtyard", "Tea House", "Bench",
}

// moods become place subtitles. They tease the outing without naming the place.
var moods = []string{
	"Walk by the water and clear your head",
	"Somewhere green to slow down",
	"A quiet corner with a view",
	"Warm drinks and people watching",
	"Pages, shelves and silence",
	"Fresh air and an open sky",
}

func main() {
	count := flag.Int("count", 40, "number of places to create")
	lat := flag.Float64("lat", 37.5665, "centre latitude")
	lng := flag.Float64("lng", 126.9780, "centre longitude")
	radius := flag.Float64("radius", 5000, "maximum distance from the centre in meters")
	seed := flag.Uint64("seed", 0, "random seed; 0 picks one from the clock")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	_ = godotenv.Load()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	centre := domain.Coordinate{Lat: *lat, Lng: *lng}
	if err := centre.Validate(); err != nil {
		logger.Error("invalid centre", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		logger.Error("connect postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if *seed == 0 {
		*seed = uint64(time.Now().UnixNano())
	}
	places := generate(gofakeit.New(*seed), centre, *radius, *count)

	pois := repo.NewPoolRepo(pool)
	for _, p := range places {
		if _, err := pois.Create(ctx, p); err != nil {
			logger.Error("create place", "name", p.Name, "error", err)
			os.Exit(1)
		}
	}
	logger.Info("seed complete", "places", len(places), "seed", *seed)
}

// generate returns n places spread uniformly over the disc of radiusM around
// centre.
func generate(f *gofakeit.Faker, centre domain.Coordinate, radiusM float64, n int) []domain.POI {
	out := make([]domain.POI, 0, n)
	for range n {
		// sqrt keeps the density uniform over the area, not the radius.
		d := radiusM * math.Sqrt(f.Float64Range(0, 1))
		p := geo.Offset(centre, f.Float64Range(0, 360), d)
		kind := kinds[f.Number(0, len(kinds)-1)]
		out = append(out, domain.POI{
			Name:     f.Adjective() + " " + f.LastName() + " " + kind,
			Subtitle: f.RandomString(moods),
			Point:    p,
			Active:   true,
		})
	}
	return out
}
