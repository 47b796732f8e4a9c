// Package recommend turns a pool of places into a short, ranked list of
// identity-free destination candidates for one appointment.
package recommend

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/google/uuid"

	"github.com/pkordes/little-escape/internal/domain"
	"github.com/pkordes/little-escape/internal/geo"
	"github.com/pkordes/little-escape/internal/travel"
)

// MaxCandidates is the longest list Recommend returns.
const MaxCandidates = 5

// Base search radius per mode in meters, before duration scaling.
var baseRadiusM = map[domain.TravelMode]float64{
	domain.Walk:    2500,
	domain.Bicycle: 6500,
	domain.Transit: 14000,
	domain.Car:     22000,
}

// PoolItem is one place the recommender may propose. The place name is not
// part of it on purpose; Subtitle is a teaser that must not identify it.
type PoolItem struct {
	ID       uuid.UUID
	Point    domain.Coordinate
	Subtitle string
}

// Recommender ranks pool items. The zero value is ready to use.
type Recommender struct{}

// Recommend filters pool to places reachable within the appointment's time
// budget, annotates each with a travel estimate and two itinerary lines, and
// returns at most MaxCandidates sorted by total travel minutes.
// Items with equal travel time keep their pool order.
func (Recommender) Recommend(pool []PoolItem, origin domain.Coordinate, appt domain.Appointment, mode domain.TravelMode) []domain.Candidate {
	radius := MaxRadiusM(mode, appt.DurationMin)

	out := make([]domain.Candidate, 0, min(len(pool), MaxCandidates))
	for _, item := range pool {
		d := geo.Distance(origin, item.Point)
		if d > radius {
			continue
		}
		tb := travel.Estimate(mode, d)
		out = append(out, domain.Candidate{
			ID:             item.ID,
			Point:          item.Point,
			Subtitle:       item.Subtitle,
			ItineraryLines: ItineraryLines(appt, tb.TotalMin),
			Travel:         tb,
		})
	}

	slices.SortStableFunc(out, func(a, b domain.Candidate) int {
		return a.Travel.TotalMin - b.Travel.TotalMin
	})
	if len(out) > MaxCandidates {
		out = out[:MaxCandidates]
	}
	return out
}

// MaxRadiusM is the search radius for mode scaled by the appointment length.
// Short appointments shrink it to 60%, long ones stretch it to 160%.
func MaxRadiusM(mode domain.TravelMode, durationMin int) float64 {
	scale := min(1.6, max(0.6, float64(durationMin)/90))
	base, ok := baseRadiusM[mode]
	if !ok {
		base = baseRadiusM[domain.Walk]
	}
	return base * scale
}

// ItineraryLines splits the time left after travel into two activities.
// The text describes what to do, never where.
func ItineraryLines(appt domain.Appointment, travelMin int) []string {
	usable := max(25, appt.DurationMin-min(travelMin, 35))
	first := max(10, int(math.Round(float64(usable)*0.45)))
	second := max(10, usable-first)

	return []string{
		fmt.Sprintf("%d min · %s one", first, slotDescriptor(appt.TimeSlot)),
		fmt.Sprintf("%d min · note it and wrap up", second),
	}
}

func slotDescriptor(ts domain.TimeSlot) string {
	switch ts {
	case domain.Morning:
		return "light"
	case domain.Afternoon:
		return "refresh"
	default:
		return "wind-down"
	}
}

// Shuffle returns a shuffled copy of pool so equally-ranked places vary
// between preps. A nil rng uses the global source.
func Shuffle(pool []PoolItem, rng *rand.Rand) []PoolItem {
	out := slices.Clone(pool)
	swap := func(i, j int) { out[i], out[j] = out[j], out[i] }
	if rng == nil {
		rand.Shuffle(len(out), swap)
	} else {
		rng.Shuffle(len(out), swap)
	}
	return out
}
