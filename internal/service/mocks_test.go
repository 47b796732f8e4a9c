package service_test

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pkordes/little-escape/internal/domain"
	"github.com/pkordes/little-escape/internal/position"
	"github.com/pkordes/little-escape/internal/repo"
)

// Hand-written test doubles. Each method is a function field; set only the
// ones a test needs.

type mockAppointmentRepo struct {
	create  func(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	getByID func(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
}

func (m *mockAppointmentRepo) Create(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	return m.create(ctx, appt)
}
func (m *mockAppointmentRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	return m.getByID(ctx, id)
}

type mockPrepRepo struct {
	save   func(ctx context.Context, prep domain.Prep, candidates []domain.Candidate) (uuid.UUID, error)
	latest func(ctx context.Context, appointmentID uuid.UUID) (domain.Prep, []domain.Candidate, error)
}

func (m *mockPrepRepo) Save(ctx context.Context, prep domain.Prep, candidates []domain.Candidate) (uuid.UUID, error) {
	return m.save(ctx, prep, candidates)
}
func (m *mockPrepRepo) Latest(ctx context.Context, appointmentID uuid.UUID) (domain.Prep, []domain.Candidate, error) {
	return m.latest(ctx, appointmentID)
}

type mockPoolRepo struct {
	create     func(ctx context.Context, poi domain.POI) (domain.POI, error)
	listActive func(ctx context.Context) ([]domain.POI, error)
	getByID    func(ctx context.Context, id uuid.UUID) (domain.POI, error)
	setActive  func(ctx context.Context, id uuid.UUID, active bool) error
}

func (m *mockPoolRepo) Create(ctx context.Context, poi domain.POI) (domain.POI, error) {
	return m.create(ctx, poi)
}
func (m *mockPoolRepo) ListActive(ctx context.Context) ([]domain.POI, error) {
	return m.listActive(ctx)
}
func (m *mockPoolRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.POI, error) {
	return m.getByID(ctx, id)
}
func (m *mockPoolRepo) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	return m.setActive(ctx, id, active)
}

type mockRunRepo struct {
	create           func(ctx context.Context, run domain.Run) (domain.Run, error)
	getByAppointment func(ctx context.Context, appointmentID uuid.UUID) (domain.Run, error)
	setReview        func(ctx context.Context, runID uuid.UUID, rating int, comment string, reviewedAt time.Time) (domain.Run, error)
	listPaged        func(ctx context.Context, p domain.PaginationParams) ([]domain.Run, int64, error)
	export           func(ctx context.Context) ([]domain.ExportRow, error)
}

func (m *mockRunRepo) Create(ctx context.Context, run domain.Run) (domain.Run, error) {
	return m.create(ctx, run)
}
func (m *mockRunRepo) GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (domain.Run, error) {
	return m.getByAppointment(ctx, appointmentID)
}
func (m *mockRunRepo) SetReview(ctx context.Context, runID uuid.UUID, rating int, comment string, reviewedAt time.Time) (domain.Run, error) {
	return m.setReview(ctx, runID, rating, comment, reviewedAt)
}
func (m *mockRunRepo) ListPaged(ctx context.Context, p domain.PaginationParams) ([]domain.Run, int64, error) {
	return m.listPaged(ctx, p)
}
func (m *mockRunRepo) Export(ctx context.Context) ([]domain.ExportRow, error) {
	return m.export(ctx)
}

type mockTagRepo struct {
	upsert        func(ctx context.Context, name, slug string) (domain.Tag, error)
	listPaged     func(ctx context.Context, prefix string, p domain.PaginationParams) ([]domain.Tag, int64, error)
	addToRun      func(ctx context.Context, runID, tagID uuid.UUID) error
	removeFromRun func(ctx context.Context, runID uuid.UUID, slug string) error
	listByRun     func(ctx context.Context, runID uuid.UUID) ([]domain.Tag, error)
}

func (m *mockTagRepo) Upsert(ctx context.Context, name, slug string) (domain.Tag, error) {
	return m.upsert(ctx, name, slug)
}
func (m *mockTagRepo) ListPaged(ctx context.Context, prefix string, p domain.PaginationParams) ([]domain.Tag, int64, error) {
	return m.listPaged(ctx, prefix, p)
}
func (m *mockTagRepo) AddToRun(ctx context.Context, runID, tagID uuid.UUID) error {
	return m.addToRun(ctx, runID, tagID)
}
func (m *mockTagRepo) RemoveFromRun(ctx context.Context, runID uuid.UUID, slug string) error {
	return m.removeFromRun(ctx, runID, slug)
}
func (m *mockTagRepo) ListByRun(ctx context.Context, runID uuid.UUID) ([]domain.Tag, error) {
	return m.listByRun(ctx, runID)
}

type recordingEvents struct {
	mu     sync.Mutex
	events []position.Event
}

func (r *recordingEvents) Publish(ev position.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingEvents) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

// compile-time checks: mocks must satisfy the repo interfaces.
var (
	_ repo.AppointmentRepo = (*mockAppointmentRepo)(nil)
	_ repo.PrepRepo        = (*mockPrepRepo)(nil)
	_ repo.PoolRepo        = (*mockPoolRepo)(nil)
	_ repo.RunRepo         = (*mockRunRepo)(nil)
	_ repo.TagRepo         = (*mockTagRepo)(nil)
)
