package handler_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/little-escape/internal/clock"
	"github.com/pkordes/little-escape/internal/domain"
	"github.com/pkordes/little-escape/internal/handler"
	"github.com/pkordes/little-escape/internal/lock"
	"github.com/pkordes/little-escape/internal/position"
	"github.com/pkordes/little-escape/internal/schedule"
	"github.com/pkordes/little-escape/internal/service"
	"github.com/pkordes/little-escape/internal/tracker"
)

var handlerNow = time.Date(2025, 6, 7, 13, 0, 0, 0, time.UTC)

// newTripHTTPHandler wires a Server with only the trip service mock.
func newTripHTTPHandler(svc handler.TripServicer) http.Handler {
	return handler.NewServer(handler.Deps{
		Trips: svc,
		Clock: clock.NewManual(handlerNow),
	}).Handler()
}

func serve(h http.Handler, method, target string, body any, t *testing.T) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	switch b := body.(type) {
	case nil:
	case string:
		req = httptest.NewRequest(method, target, strings.NewReader(b))
	default:
		req = httptest.NewRequest(method, target, jsonBody(t, b))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func tripView(id uuid.UUID, stage domain.Stage) service.TripView {
	v := service.TripView{ID: id}
	v.Stage = stage
	return v
}

// ---- POST /trips -----------------------------------------------------------

func TestCreateTrip_ParsesWireValues(t *testing.T) {
	id := uuid.New()
	var got service.AppointmentInput
	svc := &mockTripServicer{
		create: func(_ context.Context, in service.AppointmentInput) (service.TripView, error) {
			got = in
			return tripView(id, domain.StagePrepOrigin), nil
		},
	}

	rec := serve(newTripHTTPHandler(svc), http.MethodPost, "/trips",
		map[string]any{"day": "sat", "time_slot": "afternoon", "duration_min": 90}, t)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, service.AppointmentInput{Day: domain.Saturday, TimeSlot: domain.Afternoon, DurationMin: 90}, got)
	view := decodeData[service.TripView](t, rec.Body)
	assert.Equal(t, id, view.ID)
	assert.Equal(t, domain.StagePrepOrigin, view.Stage)
}

func TestCreateTrip_UnknownDayIs422(t *testing.T) {
	rec := serve(newTripHTTPHandler(&mockTripServicer{}), http.MethodPost, "/trips",
		map[string]any{"day": "someday", "time_slot": "MORNING", "duration_min": 60}, t)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	e := decodeError(t, rec.Body)
	assert.Equal(t, "validation_error", e.Code)
	assert.Contains(t, e.Message, "unknown day")
}

func TestCreateTrip_ServiceValidationIs422(t *testing.T) {
	svc := &mockTripServicer{
		create: func(context.Context, service.AppointmentInput) (service.TripView, error) {
			return service.TripView{}, fmt.Errorf("service.TripService.Create: %w: duration_min must be between 20 and 480", domain.ErrValidation)
		},
	}

	rec := serve(newTripHTTPHandler(svc), http.MethodPost, "/trips",
		map[string]any{"day": "MON", "time_slot": "MORNING", "duration_min": 5}, t)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "duration_min must be between 20 and 480", decodeError(t, rec.Body).Message)
}

func TestCreateTrip_MalformedBodyIs400(t *testing.T) {
	h := newTripHTTPHandler(&mockTripServicer{})

	rec := serve(h, http.MethodPost, "/trips", "{not json", t)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(h, http.MethodPost, "/trips", nil, t)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "request body is required", decodeError(t, rec.Body).Message)
}

// ---- GET /trips/{id} -------------------------------------------------------

func TestGetTrip_InvalidIDIs400(t *testing.T) {
	rec := serve(newTripHTTPHandler(&mockTripServicer{}), http.MethodGet, "/trips/not-a-uuid", nil, t)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", decodeError(t, rec.Body).Code)
}

func TestGetTrip_NotFound(t *testing.T) {
	svc := &mockTripServicer{
		get: func(_ context.Context, id uuid.UUID) (service.TripView, error) {
			return service.TripView{}, fmt.Errorf("service.TripService.Get: %w: trip %s", domain.ErrNotFound, id)
		},
	}
	id := uuid.New()

	rec := serve(newTripHTTPHandler(svc), http.MethodGet, "/trips/"+id.String(), nil, t)

	require.Equal(t, http.StatusNotFound, rec.Code)
	e := decodeError(t, rec.Body)
	assert.Equal(t, "not_found", e.Code)
	assert.Equal(t, "trip "+id.String(), e.Message)
}

// ---- PUT /trips/{id}/origin ------------------------------------------------

func TestSetOrigin(t *testing.T) {
	var got domain.Coordinate
	svc := &mockTripServicer{
		setOrigin: func(_ context.Context, id uuid.UUID, origin domain.Coordinate) (service.TripView, error) {
			got = origin
			return tripView(id, domain.StagePrepItinerary), nil
		},
	}
	h := newTripHTTPHandler(svc)
	target := "/trips/" + uuid.NewString() + "/origin"

	rec := serve(h, http.MethodPut, target, map[string]any{"lat": 37.5665, "lng": 126.978}, t)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.Coordinate{Lat: 37.5665, Lng: 126.978}, got)

	rec = serve(h, http.MethodPut, target, map[string]any{"lat": 37.5665}, t)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

// ---- POST /trips/{id}/prep -------------------------------------------------

func TestSelectMode(t *testing.T) {
	cand := domain.Candidate{ID: uuid.New(), Point: domain.Coordinate{Lat: 37.57, Lng: 126.98}}
	svc := &mockTripServicer{
		selectMode: func(_ context.Context, _ uuid.UUID, mode domain.TravelMode) (domain.Prep, []domain.Candidate, error) {
			return domain.Prep{TravelMode: mode}, []domain.Candidate{cand}, nil
		},
	}

	rec := serve(newTripHTTPHandler(svc), http.MethodPost, "/trips/"+uuid.NewString()+"/prep",
		map[string]any{"travel_mode": "walk"}, t)

	require.Equal(t, http.StatusCreated, rec.Code)
	got := decodeData[handler.PrepResponse](t, rec.Body)
	assert.Equal(t, domain.Walk, got.Prep.TravelMode)
	require.Len(t, got.Candidates, 1)
	assert.Equal(t, cand.ID, got.Candidates[0].ID)
}

func TestSelectMode_NoCandidatesIs409(t *testing.T) {
	svc := &mockTripServicer{
		selectMode: func(context.Context, uuid.UUID, domain.TravelMode) (domain.Prep, []domain.Candidate, error) {
			return domain.Prep{}, nil, fmt.Errorf("service.TripService.SelectMode: %w", domain.ErrNoCandidates)
		},
	}

	rec := serve(newTripHTTPHandler(svc), http.MethodPost, "/trips/"+uuid.NewString()+"/prep",
		map[string]any{"travel_mode": "CAR"}, t)

	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "no_candidates", decodeError(t, rec.Body).Code)
}

// ---- countdown and reveal --------------------------------------------------

func TestGetCountdown(t *testing.T) {
	target := handlerNow.Add(90 * time.Minute)
	svc := &mockTripServicer{
		countdown: func(context.Context, uuid.UUID) (schedule.Countdown, error) {
			return schedule.Countdown{Target: target, Remaining: 90 * time.Minute}, nil
		},
	}

	rec := serve(newTripHTTPHandler(svc), http.MethodGet, "/trips/"+uuid.NewString()+"/countdown", nil, t)

	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeData[handler.CountdownResponse](t, rec.Body)
	assert.True(t, target.Equal(got.Target))
	assert.Equal(t, int64(5_400_000), got.RemainingMs)
	assert.False(t, got.Due)
}

func TestReveal_NotDueIs409(t *testing.T) {
	svc := &mockTripServicer{
		reveal: func(context.Context, uuid.UUID) (domain.Candidate, int, error) {
			return domain.Candidate{}, 0, fmt.Errorf("service.TripService.Reveal: lifecycle.Trip.Reveal: %w: %w: 1h0m0s remaining",
				domain.ErrPrecondition, domain.ErrRevealNotDue)
		},
	}

	rec := serve(newTripHTTPHandler(svc), http.MethodPost, "/trips/"+uuid.NewString()+"/reveal", nil, t)

	require.Equal(t, http.StatusConflict, rec.Code)
	e := decodeError(t, rec.Body)
	assert.Equal(t, "reveal_not_due", e.Code)
	assert.Equal(t, "1h0m0s remaining", e.Message)
}

func TestNextCandidate(t *testing.T) {
	cand := domain.Candidate{ID: uuid.New()}
	svc := &mockTripServicer{
		next: func(context.Context, uuid.UUID) (domain.Candidate, int, error) {
			return cand, 2, nil
		},
	}

	rec := serve(newTripHTTPHandler(svc), http.MethodPost, "/trips/"+uuid.NewString()+"/candidates/next", nil, t)

	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeData[handler.CandidateResponse](t, rec.Body)
	assert.Equal(t, 2, got.Index)
	assert.Equal(t, cand.ID, got.Candidate.ID)
}

// ---- POST /trips/{id}/accept -----------------------------------------------

func TestAccept_EmptyBodyAcceptsCursor(t *testing.T) {
	var got service.AcceptInput
	svc := &mockTripServicer{
		accept: func(_ context.Context, _ uuid.UUID, in service.AcceptInput) (domain.Acceptance, error) {
			got = in
			return domain.Acceptance{DestinationName: "Quiet Garden"}, nil
		},
	}

	rec := serve(newTripHTTPHandler(svc), http.MethodPost, "/trips/"+uuid.NewString()+"/accept", nil, t)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, service.AcceptInput{}, got)
	assert.Equal(t, "Quiet Garden", decodeData[domain.Acceptance](t, rec.Body).DestinationName)
}

func TestAccept_SpecificCandidateAndMode(t *testing.T) {
	candID := uuid.New()
	var got service.AcceptInput
	svc := &mockTripServicer{
		accept: func(_ context.Context, _ uuid.UUID, in service.AcceptInput) (domain.Acceptance, error) {
			got = in
			return domain.Acceptance{CandidateID: in.CandidateID}, nil
		},
	}

	rec := serve(newTripHTTPHandler(svc), http.MethodPost, "/trips/"+uuid.NewString()+"/accept",
		map[string]any{"candidate_id": candID, "completion_mode": "checklist"}, t)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, candID, got.CandidateID)
	assert.Equal(t, domain.CompletionChecklist, got.CompletionMode)
}

func TestAccept_UnknownModeIs422(t *testing.T) {
	rec := serve(newTripHTTPHandler(&mockTripServicer{}), http.MethodPost, "/trips/"+uuid.NewString()+"/accept",
		map[string]any{"completion_mode": "teleport"}, t)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestAccept_LockBusyIs409(t *testing.T) {
	svc := &mockTripServicer{
		accept: func(context.Context, uuid.UUID, service.AcceptInput) (domain.Acceptance, error) {
			return domain.Acceptance{}, fmt.Errorf("service.TripService.Accept: %w", lock.ErrLockNotAcquired)
		},
	}

	rec := serve(newTripHTTPHandler(svc), http.MethodPost, "/trips/"+uuid.NewString()+"/accept", nil, t)

	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "trip_busy", decodeError(t, rec.Body).Code)
}

// ---- POST /trips/{id}/positions --------------------------------------------

func TestPushPosition_FillsMissingTimestamp(t *testing.T) {
	var got position.Message
	svc := &mockTripServicer{
		pushPosition: func(_ context.Context, _ uuid.UUID, msg position.Message) (tracker.Status, error) {
			got = msg
			return tracker.Status{State: tracker.StateAccepted}, nil
		},
	}

	rec := serve(newTripHTTPHandler(svc), http.MethodPost, "/trips/"+uuid.NewString()+"/positions",
		`{"lat":37.57,"lng":126.98,"accuracy_m":12}`, t)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 37.57, got.Lat)
	require.NotNil(t, got.AccuracyM)
	assert.Equal(t, 12.0, *got.AccuracyM)
	assert.True(t, handlerNow.Equal(got.At))
	assert.Equal(t, tracker.StateAccepted, decodeData[tracker.Status](t, rec.Body).State)
}

func TestPushPosition_ForwardsDeviceError(t *testing.T) {
	var got position.Message
	svc := &mockTripServicer{
		pushPosition: func(_ context.Context, _ uuid.UUID, msg position.Message) (tracker.Status, error) {
			got = msg
			return tracker.Status{State: tracker.StateAccepted, Live: domain.LiveDenied}, nil
		},
	}

	rec := serve(newTripHTTPHandler(svc), http.MethodPost, "/trips/"+uuid.NewString()+"/positions",
		`{"error":"permission_denied"}`, t)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, position.ErrorPermissionDenied, got.Error)
	assert.Equal(t, domain.LiveDenied, decodeData[tracker.Status](t, rec.Body).Live)
}

func TestPushPosition_MalformedIs400(t *testing.T) {
	rec := serve(newTripHTTPHandler(&mockTripServicer{}), http.MethodPost, "/trips/"+uuid.NewString()+"/positions",
		`{"lat":"north"}`, t)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

// ---- missions and completion -----------------------------------------------

func TestMarkMission(t *testing.T) {
	var gotIdx int
	var gotDone bool
	svc := &mockTripServicer{
		markMission: func(_ context.Context, _ uuid.UUID, idx int, done bool) (domain.Mission, error) {
			gotIdx, gotDone = idx, done
			return domain.Mission{Text: "Find a bench"}, nil
		},
	}
	h := newTripHTTPHandler(svc)
	base := "/trips/" + uuid.NewString() + "/missions/"

	rec := serve(h, http.MethodPut, base+"1", nil, t)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, gotIdx)
	assert.True(t, gotDone)

	rec = serve(h, http.MethodPut, base+"0", map[string]any{"done": false}, t)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, gotIdx)
	assert.False(t, gotDone)

	rec = serve(h, http.MethodPut, base+"first", nil, t)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestComplete_ConfirmFlag(t *testing.T) {
	var confirms []bool
	svc := &mockTripServicer{
		complete: func(_ context.Context, _ uuid.UUID, confirm bool) (domain.CompletionPayload, error) {
			confirms = append(confirms, confirm)
			if !confirm {
				return domain.CompletionPayload{}, fmt.Errorf("service.TripService.Complete: %w: 2 missions not done", domain.ErrConfirmationRequired)
			}
			return domain.CompletionPayload{TotalMs: 4_200_000}, nil
		},
	}
	h := newTripHTTPHandler(svc)
	target := "/trips/" + uuid.NewString() + "/complete"

	rec := serve(h, http.MethodPost, target, nil, t)
	require.Equal(t, http.StatusConflict, rec.Code)
	e := decodeError(t, rec.Body)
	assert.Equal(t, "confirmation_required", e.Code)
	assert.Equal(t, "2 missions not done", e.Message)

	rec = serve(h, http.MethodPost, target, map[string]any{"confirm": true}, t)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(4_200_000), decodeData[domain.CompletionPayload](t, rec.Body).TotalMs)
	assert.Equal(t, []bool{false, true}, confirms)
}

func TestComplete_WrongStageIs409(t *testing.T) {
	svc := &mockTripServicer{
		complete: func(context.Context, uuid.UUID, bool) (domain.CompletionPayload, error) {
			return domain.CompletionPayload{}, fmt.Errorf("service.TripService.Complete: %w: cannot complete in stage PREP_ORIGIN", domain.ErrPrecondition)
		},
	}

	rec := serve(newTripHTTPHandler(svc), http.MethodPost, "/trips/"+uuid.NewString()+"/complete", nil, t)

	require.Equal(t, http.StatusConflict, rec.Code)
	e := decodeError(t, rec.Body)
	assert.Equal(t, "precondition_failed", e.Code)
	assert.Equal(t, "cannot complete in stage PREP_ORIGIN", e.Message)
}

// ---- POST /trips/{id}/review -----------------------------------------------

func TestReview(t *testing.T) {
	reviewedAt := handlerNow.Add(2 * time.Hour)
	var got service.ReviewInput
	svc := &mockTripServicer{
		review: func(_ context.Context, _ uuid.UUID, in service.ReviewInput) (domain.Run, error) {
			got = in
			return domain.Run{
				ID:     uuid.New(),
				Review: &domain.Review{Rating: in.Rating, Comment: in.Comment, Tags: []string{"quiet"}, ReviewedAt: reviewedAt},
			}, nil
		},
	}

	rec := serve(newTripHTTPHandler(svc), http.MethodPost, "/trips/"+uuid.NewString()+"/review",
		map[string]any{"rating": 5, "comment": "lovely", "tags": []string{"Quiet"}}, t)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, service.ReviewInput{Rating: 5, Comment: "lovely", Tags: []string{"Quiet"}}, got)
	run := decodeData[handler.RunResponse](t, rec.Body)
	require.NotNil(t, run.Review)
	assert.Equal(t, 5, run.Review.Rating)
	assert.Equal(t, []string{"quiet"}, run.Review.Tags)
}

// ---- back, restart, unexpected errors --------------------------------------

func TestBackAndRestart(t *testing.T) {
	id := uuid.New()
	svc := &mockTripServicer{
		back: func(_ context.Context, id uuid.UUID) (service.TripView, error) {
			return tripView(id, domain.StageTodayRevealed), nil
		},
		restart: func(_ context.Context, id uuid.UUID) (service.TripView, error) {
			return tripView(id, domain.StageCreate), nil
		},
	}
	h := newTripHTTPHandler(svc)

	rec := serve(h, http.MethodPost, "/trips/"+id.String()+"/back", nil, t)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.StageTodayRevealed, decodeData[service.TripView](t, rec.Body).Stage)

	rec = serve(h, http.MethodPost, "/trips/"+id.String()+"/restart", nil, t)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.StageCreate, decodeData[service.TripView](t, rec.Body).Stage)
}

func TestUnexpectedErrorIs500WithoutDetail(t *testing.T) {
	svc := &mockTripServicer{
		get: func(context.Context, uuid.UUID) (service.TripView, error) {
			return service.TripView{}, errors.New("connection reset by peer")
		},
	}

	rec := serve(newTripHTTPHandler(svc), http.MethodGet, "/trips/"+uuid.NewString(), nil, t)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	e := decodeError(t, rec.Body)
	assert.Equal(t, "internal_error", e.Code)
	assert.NotContains(t, e.Message, "connection reset")
}
