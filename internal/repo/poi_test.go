package repo_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/little-escape/internal/domain"
	"github.com/pkordes/little-escape/internal/geo"
	"github.com/pkordes/little-escape/internal/recommend"
	"github.com/pkordes/little-escape/testutil"
)

func TestPoolRepo_CreateAndGet(t *testing.T) {
	r := newTestRepos(t)
	ctx := context.Background()

	created := mustCreatePOI(t, r, "River Bench", 37.51, 127.01)

	got, err := r.pool.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "River Bench", got.Name)
	assert.Equal(t, "test place", got.Subtitle)
	assert.InDelta(t, 37.51, got.Point.Lat, 1e-9)
	assert.True(t, got.Active)
}

func TestPoolRepo_ListActive_SkipsInactive(t *testing.T) {
	r := newTestRepos(t)
	ctx := context.Background()

	kept := mustCreatePOI(t, r, "Kept", 37.50, 127.00)
	hidden := mustCreatePOI(t, r, "Hidden", 37.52, 127.02)
	require.NoError(t, r.pool.SetActive(ctx, hidden.ID, false))

	got, err := r.pool.ListActive(ctx)

	require.NoError(t, err)
	ids := make([]uuid.UUID, 0, len(got))
	for _, p := range got {
		ids = append(ids, p.ID)
	}
	assert.Contains(t, ids, kept.ID)
	assert.NotContains(t, ids, hidden.ID)
}

func TestPoolRepo_SetActive_NotFound(t *testing.T) {
	r := newTestRepos(t)

	err := r.pool.SetActive(context.Background(), uuid.New(), false)

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPoolRepo_GetByID_NotFound(t *testing.T) {
	r := newTestRepos(t)

	_, err := r.pool.GetByID(context.Background(), uuid.New())

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPoolRepo_SeededPlacesFeedRecommender(t *testing.T) {
	r := newTestRepos(t)
	ctx := context.Background()
	centre := testutil.SeedCentre

	seeded := testutil.SeedPOIs(t, r.pool, centre, 1800, 600, 5000)
	for i, d := range []float64{1800, 600, 5000} {
		assert.InDelta(t, d, geo.Distance(centre, seeded[i].Point), 1)
	}

	active, err := r.pool.ListActive(ctx)
	require.NoError(t, err)
	wanted := map[uuid.UUID]bool{}
	for _, p := range seeded {
		wanted[p.ID] = true
	}
	var items []recommend.PoolItem
	for _, p := range active {
		if wanted[p.ID] {
			items = append(items, recommend.PoolItem{ID: p.ID, Point: p.Point, Subtitle: p.Subtitle})
		}
	}
	require.Len(t, items, 3)

	appt := domain.Appointment{Day: domain.Saturday, TimeSlot: domain.Afternoon, DurationMin: 90}
	got := recommend.Recommender{}.Recommend(items, centre, appt, domain.Walk)

	require.Len(t, got, 2, "5 km is beyond a 90 minute walk")
	assert.Equal(t, seeded[1].ID, got[0].ID)
	assert.Equal(t, "Teaser 2", got[0].Subtitle)
	assert.Equal(t, seeded[0].ID, got[1].ID)
}
