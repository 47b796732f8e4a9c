package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/little-escape/internal/domain"
	"github.com/pkordes/little-escape/internal/handler"
	"github.com/pkordes/little-escape/internal/navigation"
	"github.com/pkordes/little-escape/internal/position"
	"github.com/pkordes/little-escape/internal/schedule"
	"github.com/pkordes/little-escape/internal/service"
	"github.com/pkordes/little-escape/internal/tracker"
)

// ---- mock TripServicer -----------------------------------------------------

// mockTripServicer lets each test supply only the methods it exercises.
// Calling an unset method panics, which fails the test loudly.
type mockTripServicer struct {
	create       func(ctx context.Context, in service.AppointmentInput) (service.TripView, error)
	reschedule   func(ctx context.Context, id uuid.UUID, in service.AppointmentInput) (service.TripView, error)
	get          func(ctx context.Context, id uuid.UUID) (service.TripView, error)
	setOrigin    func(ctx context.Context, id uuid.UUID, origin domain.Coordinate) (service.TripView, error)
	selectMode   func(ctx context.Context, id uuid.UUID, mode domain.TravelMode) (domain.Prep, []domain.Candidate, error)
	countdown    func(ctx context.Context, id uuid.UUID) (schedule.Countdown, error)
	reveal       func(ctx context.Context, id uuid.UUID) (domain.Candidate, int, error)
	current      func(ctx context.Context, id uuid.UUID) (domain.Candidate, int, error)
	next         func(ctx context.Context, id uuid.UUID) (domain.Candidate, int, error)
	accept       func(ctx context.Context, id uuid.UUID, in service.AcceptInput) (domain.Acceptance, error)
	pushPosition func(ctx context.Context, id uuid.UUID, msg position.Message) (tracker.Status, error)
	status       func(ctx context.Context, id uuid.UUID) (tracker.Status, error)
	markMission  func(ctx context.Context, id uuid.UUID, idx int, done bool) (domain.Mission, error)
	complete     func(ctx context.Context, id uuid.UUID, confirm bool) (domain.CompletionPayload, error)
	navigation   func(ctx context.Context, id uuid.UUID) (navigation.Links, error)
	review       func(ctx context.Context, id uuid.UUID, in service.ReviewInput) (domain.Run, error)
	back         func(ctx context.Context, id uuid.UUID) (service.TripView, error)
	restart      func(ctx context.Context, id uuid.UUID) (service.TripView, error)
}

func (m *mockTripServicer) Create(ctx context.Context, in service.AppointmentInput) (service.TripView, error) {
	return m.create(ctx, in)
}

func (m *mockTripServicer) Reschedule(ctx context.Context, id uuid.UUID, in service.AppointmentInput) (service.TripView, error) {
	return m.reschedule(ctx, id, in)
}

func (m *mockTripServicer) Get(ctx context.Context, id uuid.UUID) (service.TripView, error) {
	return m.get(ctx, id)
}

func (m *mockTripServicer) SetOrigin(ctx context.Context, id uuid.UUID, origin domain.Coordinate) (service.TripView, error) {
	return m.setOrigin(ctx, id, origin)
}

func (m *mockTripServicer) SelectMode(ctx context.Context, id uuid.UUID, mode domain.TravelMode) (domain.Prep, []domain.Candidate, error) {
	return m.selectMode(ctx, id, mode)
}

func (m *mockTripServicer) Countdown(ctx context.Context, id uuid.UUID) (schedule.Countdown, error) {
	return m.countdown(ctx, id)
}

func (m *mockTripServicer) Reveal(ctx context.Context, id uuid.UUID) (domain.Candidate, int, error) {
	return m.reveal(ctx, id)
}

func (m *mockTripServicer) Current(ctx context.Context, id uuid.UUID) (domain.Candidate, int, error) {
	return m.current(ctx, id)
}

func (m *mockTripServicer) Next(ctx context.Context, id uuid.UUID) (domain.Candidate, int, error) {
	return m.next(ctx, id)
}

func (m *mockTripServicer) Accept(ctx context.Context, id uuid.UUID, in service.AcceptInput) (domain.Acceptance, error) {
	return m.accept(ctx, id, in)
}

func (m *mockTripServicer) PushPosition(ctx context.Context, id uuid.UUID, msg position.Message) (tracker.Status, error) {
	return m.pushPosition(ctx, id, msg)
}

func (m *mockTripServicer) Status(ctx context.Context, id uuid.UUID) (tracker.Status, error) {
	return m.status(ctx, id)
}

func (m *mockTripServicer) MarkMission(ctx context.Context, id uuid.UUID, idx int, done bool) (domain.Mission, error) {
	return m.markMission(ctx, id, idx, done)
}

func (m *mockTripServicer) Complete(ctx context.Context, id uuid.UUID, confirm bool) (domain.CompletionPayload, error) {
	return m.complete(ctx, id, confirm)
}

func (m *mockTripServicer) Navigation(ctx context.Context, id uuid.UUID) (navigation.Links, error) {
	return m.navigation(ctx, id)
}

func (m *mockTripServicer) Review(ctx context.Context, id uuid.UUID, in service.ReviewInput) (domain.Run, error) {
	return m.review(ctx, id, in)
}

func (m *mockTripServicer) Back(ctx context.Context, id uuid.UUID) (service.TripView, error) {
	return m.back(ctx, id)
}

func (m *mockTripServicer) Restart(ctx context.Context, id uuid.UUID) (service.TripView, error) {
	return m.restart(ctx, id)
}

// compile-time check: mockTripServicer must satisfy handler.TripServicer.
var _ handler.TripServicer = (*mockTripServicer)(nil)

// ---- mock HistoryServicer / TagServicer / ExportServicer --------------------

type mockHistoryServicer struct {
	list func(ctx context.Context, p domain.PaginationParams) (domain.Page[domain.Run], error)
}

func (m *mockHistoryServicer) List(ctx context.Context, p domain.PaginationParams) (domain.Page[domain.Run], error) {
	return m.list(ctx, p)
}

type mockTagServicer struct {
	list func(ctx context.Context, prefix string, p domain.PaginationParams) (domain.Page[domain.Tag], error)
}

func (m *mockTagServicer) List(ctx context.Context, prefix string, p domain.PaginationParams) (domain.Page[domain.Tag], error) {
	return m.list(ctx, prefix, p)
}

type mockExportServicer struct {
	export func(ctx context.Context) ([]domain.ExportRow, error)
}

func (m *mockExportServicer) Export(ctx context.Context) ([]domain.ExportRow, error) {
	return m.export(ctx)
}

var (
	_ handler.HistoryServicer = (*mockHistoryServicer)(nil)
	_ handler.TagServicer     = (*mockTagServicer)(nil)
	_ handler.ExportServicer  = (*mockExportServicer)(nil)
)

// ---- helpers ---------------------------------------------------------------

// jsonBody encodes v as a JSON request body.
func jsonBody(t *testing.T, v any) io.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(b)
}

// decodeData unwraps a {"data": ...} envelope into T.
func decodeData[T any](t *testing.T, r io.Reader) T {
	t.Helper()
	var body handler.DataResponse[T]
	require.NoError(t, json.NewDecoder(r).Decode(&body))
	return body.Data
}

// decodeError reads an error envelope.
func decodeError(t *testing.T, r io.Reader) handler.ErrorDetail {
	t.Helper()
	var body handler.ErrorResponse
	require.NoError(t, json.NewDecoder(r).Decode(&body))
	return body.Error
}
