package tracker

import "time"

var missions = []string{
	"Take a photo of the prettiest patch of sky within 50 m",
	"Grab a drink nearby and sit with it for five minutes",
	"Take a ten-minute stroll within 200 m of where you arrived",
	"Write down today's mood in one sentence",
	"Close your eyes and listen to the surroundings for 30 seconds",
}

// PickMission returns the arrival mission for a run. The choice is fixed by
// the acceptance instant so it never changes during the run.
func PickMission(acceptedAt time.Time) string {
	ms := acceptedAt.UnixMilli()
	if ms < 0 {
		ms = -ms
	}
	return missions[ms%int64(len(missions))]
}
