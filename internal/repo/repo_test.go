package repo_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pkordes/little-escape/internal/domain"
	"github.com/pkordes/little-escape/internal/repo"
	"github.com/pkordes/little-escape/testutil"
)

// repos are all backed by one transaction that is rolled back when the test
// finishes, so tests can build appointment → prep → run → tag chains freely.
type repos struct {
	appointments repo.AppointmentRepo
	pool         repo.PoolRepo
	preps        repo.PrepRepo
	runs         repo.RunRepo
	tags         repo.TagRepo
}

func newTestRepos(t *testing.T) repos {
	t.Helper()
	tx := testutil.NewTx(t)

	return repos{
		appointments: repo.NewAppointmentRepo(tx),
		pool:         repo.NewPoolRepo(tx),
		preps:        repo.NewPrepRepo(tx),
		runs:         repo.NewRunRepo(tx),
		tags:         repo.NewTagRepo(tx),
	}
}

func mustCreateAppointment(t *testing.T, r repos) domain.Appointment {
	t.Helper()
	appt, err := r.appointments.Create(context.Background(), domain.Appointment{
		Day:         domain.Saturday,
		TimeSlot:    domain.Afternoon,
		DurationMin: 90,
	})
	require.NoError(t, err)
	return appt
}

func mustCreatePOI(t *testing.T, r repos, name string, lat, lng float64) domain.POI {
	t.Helper()
	poi, err := r.pool.Create(context.Background(), domain.POI{
		Name:     name,
		Subtitle: "test place",
		Point:    domain.Coordinate{Lat: lat, Lng: lng},
	})
	require.NoError(t, err)
	return poi
}

// runFixture returns a completed run for appt with arrival observed.
func runFixture(appt domain.Appointment, poi domain.POI) domain.Run {
	accepted := time.Date(2025, 6, 7, 14, 0, 0, 0, time.UTC)
	arrived := accepted.Add(25 * time.Minute)
	completed := accepted.Add(70 * time.Minute)
	return domain.Run{
		AppointmentID:   appt.ID,
		CandidateID:     poi.ID,
		TravelMode:      domain.Walk,
		CompletionMode:  domain.CompletionGeofence,
		Origin:          domain.Coordinate{Lat: 37.5665, Lng: 126.9780},
		Destination:     poi.Point,
		DestinationName: poi.Name,
		Mission:         "Write down today's mood in one sentence",
		Payload:         domain.NewCompletionPayload(accepted, &arrived, completed),
	}
}

func mustCreateRun(t *testing.T, r repos) domain.Run {
	t.Helper()
	appt := mustCreateAppointment(t, r)
	poi := mustCreatePOI(t, r, "Quiet Garden", 37.57, 126.98)
	run, err := r.runs.Create(context.Background(), runFixture(appt, poi))
	require.NoError(t, err)
	return run
}
