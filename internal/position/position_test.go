package position_test

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/little-escape/internal/domain"
	"github.com/pkordes/little-escape/internal/position"
	"github.com/pkordes/little-escape/internal/tracker"
)

var now = time.Date(2026, 3, 14, 10, 5, 0, 0, time.UTC)

type recorder struct {
	samples []tracker.Sample
	errs    []error
}

func (r *recorder) onSample(s tracker.Sample) { r.samples = append(r.samples, s) }
func (r *recorder) onError(err error)         { r.errs = append(r.errs, err) }

// ---- Message ---------------------------------------------------------------

func TestDecode_FillsMissingTimestamp(t *testing.T) {
	m, err := position.Decode([]byte(`{"lat":37.55,"lng":126.98,"accuracy_m":12}`), now)

	require.NoError(t, err)
	assert.Equal(t, now, m.At)
	require.NotNil(t, m.AccuracyM)
	assert.Equal(t, 12.0, *m.AccuracyM)
}

func TestDecode_Malformed(t *testing.T) {
	_, err := position.Decode([]byte(`{"lat":`), now)
	assert.Error(t, err)
}

func TestMessage_DeliverRoutesFaults(t *testing.T) {
	var rec recorder

	position.Message{Error: position.ErrorPermissionDenied}.Deliver(rec.onSample, rec.onError)
	position.Message{Error: "timeout"}.Deliver(rec.onSample, rec.onError)
	position.Message{Lat: 95, Lng: 0, At: now}.Deliver(rec.onSample, rec.onError)
	position.Message{Lat: 37.5, Lng: 127, At: now}.Deliver(rec.onSample, rec.onError)

	require.Len(t, rec.errs, 3)
	assert.ErrorIs(t, rec.errs[0], tracker.ErrPermissionDenied)
	assert.EqualError(t, rec.errs[1], "timeout")
	assert.ErrorIs(t, rec.errs[2], domain.ErrValidation)
	require.Len(t, rec.samples, 1)
	assert.Equal(t, domain.Coordinate{Lat: 37.5, Lng: 127}, rec.samples[0].Point)
}

// ---- Feed ------------------------------------------------------------------

func TestFeed_PublishReachesSubscribersUntilUnsubscribed(t *testing.T) {
	f := position.NewFeed()
	var a, b recorder

	unsubA, err := f.Subscribe(a.onSample, a.onError)
	require.NoError(t, err)
	_, err = f.Subscribe(b.onSample, b.onError)
	require.NoError(t, err)

	assert.Equal(t, 2, f.Publish(tracker.Sample{At: now}))

	unsubA()
	unsubA()
	assert.Equal(t, 1, f.Subscribers())
	assert.Equal(t, 1, f.Fail(errors.New("gps lost")))

	assert.Len(t, a.samples, 1)
	assert.Empty(t, a.errs)
	assert.Len(t, b.samples, 1)
	assert.Len(t, b.errs, 1)
}

func TestFeed_PublishWithoutSubscribersIsDropped(t *testing.T) {
	f := position.NewFeed()
	assert.Equal(t, 0, f.Publish(tracker.Sample{At: now}))
}

func TestHub_FeedPerTrip(t *testing.T) {
	h := position.NewHub()
	id := uuid.New()

	assert.Same(t, h.Feed(id), h.Feed(id))
	assert.NotSame(t, h.Feed(id), h.Feed(uuid.New()))

	first := h.Feed(id)
	h.Remove(id)
	assert.NotSame(t, first, h.Feed(id))
}

// ---- Merge -----------------------------------------------------------------

type failingSource struct{}

func (failingSource) Subscribe(func(tracker.Sample), func(error)) (func(), error) {
	return nil, errors.New("unavailable")
}

func TestMerge_FansInAndReleasesAll(t *testing.T) {
	f1, f2 := position.NewFeed(), position.NewFeed()
	var rec recorder

	unsub, err := position.Merge(f1, nil, f2).Subscribe(rec.onSample, rec.onError)
	require.NoError(t, err)

	f1.Publish(tracker.Sample{At: now})
	f2.Publish(tracker.Sample{At: now.Add(time.Second)})
	assert.Len(t, rec.samples, 2)

	unsub()
	assert.Zero(t, f1.Subscribers())
	assert.Zero(t, f2.Subscribers())
}

func TestMerge_FailureReleasesEarlierSubscriptions(t *testing.T) {
	f := position.NewFeed()
	var rec recorder

	_, err := position.Merge(f, failingSource{}).Subscribe(rec.onSample, rec.onError)

	assert.Error(t, err)
	assert.Zero(t, f.Subscribers())
}

// ---- NATS ------------------------------------------------------------------

func TestPositionSubject(t *testing.T) {
	id := uuid.MustParse("8a4f6b8e-2f77-4b55-9a57-1d0f1f7f6c01")
	assert.Equal(t, "escape.positions."+id.String(), position.PositionSubject("escape.positions.", id))
}

// TestNATSSource_RoundTrip needs a reachable server; set NATS_TEST_URL to run it.
func TestNATSSource_RoundTrip(t *testing.T) {
	url := os.Getenv("NATS_TEST_URL")
	if url == "" {
		t.Skip("NATS_TEST_URL not set; skipping integration test")
	}

	nc, err := position.Connect(url, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	id := uuid.New()
	got := make(chan tracker.Sample, 1)
	unsub, err := position.NewNATSSource(nc, "test.positions", id).Subscribe(
		func(s tracker.Sample) { got <- s },
		func(error) {},
	)
	require.NoError(t, err)
	defer unsub()

	require.NoError(t, nc.Publish(position.PositionSubject("test.positions", id),
		[]byte(`{"lat":37.5,"lng":127,"at":"2026-03-14T10:05:00Z"}`)))
	require.NoError(t, nc.Flush())

	select {
	case s := <-got:
		assert.Equal(t, domain.Coordinate{Lat: 37.5, Lng: 127}, s.Point)
	case <-time.After(2 * time.Second):
		t.Fatal("no sample received")
	}
}

func TestHub_LookupDoesNotCreate(t *testing.T) {
	h := position.NewHub()
	id := uuid.New()

	_, ok := h.Lookup(id)
	assert.False(t, ok)
	assert.Zero(t, h.Len())

	f := h.Feed(id)
	got, ok := h.Lookup(id)
	assert.True(t, ok)
	assert.Same(t, f, got)
	assert.Equal(t, 1, h.Len())

	h.Remove(id)
	assert.Zero(t, h.Len())
}
