// Package travel estimates door-to-door travel time per mode from a
// straight-line distance.
package travel

import (
	"fmt"
	"math"
	"strings"

	"github.com/pkordes/little-escape/internal/domain"
)

// Average speeds in meters per minute.
var speeds = map[domain.TravelMode]float64{
	domain.Walk:    80,
	domain.Bicycle: 220,
	domain.Transit: 350,
	domain.Car:     550,
}

const (
	bicycleWindDownMin = 3
	carParkingMin      = 8
	transitWaitMin     = 6
	transitTransferMin = 4
)

// Estimate returns the travel breakdown for covering distanceM meters in mode.
// Negative or NaN distances count as zero; every leg is at least one minute.
func Estimate(mode domain.TravelMode, distanceM float64) domain.TravelBreakdown {
	if math.IsNaN(distanceM) || distanceM < 0 {
		distanceM = 0
	}

	speed, ok := speeds[mode]
	if !ok {
		speed = speeds[domain.Walk]
		mode = domain.Walk
	}
	baseMove := max(1, int(math.Round(distanceM/speed)))

	var lines []domain.TravelLine
	switch mode {
	case domain.Bicycle:
		lines = []domain.TravelLine{
			{Label: "ride", Min: baseMove},
			{Label: "wind-down", Min: bicycleWindDownMin},
		}
	case domain.Car:
		lines = []domain.TravelLine{
			{Label: "drive", Min: baseMove},
			{Label: "park/walk-in", Min: carParkingMin},
		}
	case domain.Transit:
		lastMile := min(10, max(4, int(math.Round(distanceM/2500))+4))
		lines = []domain.TravelLine{
			{Label: "wait", Min: transitWaitMin},
			{Label: "transfer", Min: transitTransferMin},
			{Label: "ride", Min: max(3, baseMove-lastMile)},
			{Label: "walk", Min: lastMile},
		}
	default:
		lines = []domain.TravelLine{{Label: "walk", Min: baseMove}}
	}

	total := 0
	for _, l := range lines {
		total += l.Min
	}

	return domain.TravelBreakdown{
		TotalMin: total,
		Lines:    lines,
		Summary:  fmt.Sprintf("%s %d min", strings.ToLower(string(mode)), total),
	}
}
