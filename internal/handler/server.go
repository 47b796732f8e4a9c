// Package handler implements the HTTP handlers for the Little Escape API.
// All handlers are methods on Server. Methods are split into domain-specific
// files (trip.go, run.go, history.go, etc.) but share the same Server struct
// so they can reach its dependencies.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pkordes/little-escape/internal/clock"
	"github.com/pkordes/little-escape/internal/domain"
	"github.com/pkordes/little-escape/internal/navigation"
	"github.com/pkordes/little-escape/internal/position"
	"github.com/pkordes/little-escape/internal/schedule"
	"github.com/pkordes/little-escape/internal/service"
	"github.com/pkordes/little-escape/internal/tracker"
)

// TripServicer defines the trip operations the handlers depend on.
// Defining the interface here, in the consumer package, lets handler tests
// inject a mock without a database or a live trip registry.
type TripServicer interface {
	Create(ctx context.Context, in service.AppointmentInput) (service.TripView, error)
	Reschedule(ctx context.Context, id uuid.UUID, in service.AppointmentInput) (service.TripView, error)
	Get(ctx context.Context, id uuid.UUID) (service.TripView, error)
	SetOrigin(ctx context.Context, id uuid.UUID, origin domain.Coordinate) (service.TripView, error)
	SelectMode(ctx context.Context, id uuid.UUID, mode domain.TravelMode) (domain.Prep, []domain.Candidate, error)
	Countdown(ctx context.Context, id uuid.UUID) (schedule.Countdown, error)
	Reveal(ctx context.Context, id uuid.UUID) (domain.Candidate, int, error)
	Current(ctx context.Context, id uuid.UUID) (domain.Candidate, int, error)
	Next(ctx context.Context, id uuid.UUID) (domain.Candidate, int, error)
	Accept(ctx context.Context, id uuid.UUID, in service.AcceptInput) (domain.Acceptance, error)
	PushPosition(ctx context.Context, id uuid.UUID, msg position.Message) (tracker.Status, error)
	Status(ctx context.Context, id uuid.UUID) (tracker.Status, error)
	MarkMission(ctx context.Context, id uuid.UUID, idx int, done bool) (domain.Mission, error)
	Complete(ctx context.Context, id uuid.UUID, confirm bool) (domain.CompletionPayload, error)
	Navigation(ctx context.Context, id uuid.UUID) (navigation.Links, error)
	Review(ctx context.Context, id uuid.UUID, in service.ReviewInput) (domain.Run, error)
	Back(ctx context.Context, id uuid.UUID) (service.TripView, error)
	Restart(ctx context.Context, id uuid.UUID) (service.TripView, error)
}

// HistoryServicer lists completed runs.
type HistoryServicer interface {
	List(ctx context.Context, p domain.PaginationParams) (domain.Page[domain.Run], error)
}

// TagServicer lists the global tag vocabulary.
type TagServicer interface {
	List(ctx context.Context, prefix string, p domain.PaginationParams) (domain.Page[domain.Tag], error)
}

// ExportServicer defines the export operation.
type ExportServicer interface {
	Export(ctx context.Context) ([]domain.ExportRow, error)
}

// Deps wires a Server. Any servicer may be nil when a test only exercises
// part of the API; its routes are then not registered.
type Deps struct {
	Trips   TripServicer
	History HistoryServicer
	Tags    TagServicer
	Export  ExportServicer

	Clock  clock.Clock
	Logger *slog.Logger

	// AllowedOrigins is checked on WebSocket upgrades. Empty allows any origin.
	AllowedOrigins []string
	// LiveInterval is how often /live pushes the run status. Defaults to 1s.
	LiveInterval time.Duration
}

// Server holds the handler dependencies.
type Server struct {
	trips   TripServicer
	history HistoryServicer
	tags    TagServicer
	export  ExportServicer

	clock        clock.Clock
	log          *slog.Logger
	origins      []string
	liveInterval time.Duration
}

// NewServer constructs the Server with all its dependencies.
func NewServer(d Deps) *Server {
	if d.Clock == nil {
		d.Clock = clock.System{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.LiveInterval <= 0 {
		d.LiveInterval = time.Second
	}
	return &Server{
		trips:        d.Trips,
		history:      d.History,
		tags:         d.Tags,
		export:       d.Export,
		clock:        d.Clock,
		log:          d.Logger,
		origins:      d.AllowedOrigins,
		liveInterval: d.LiveInterval,
	}
}

// Register mounts every API route on r.
func (s *Server) Register(r chi.Router) {
	r.Get("/healthz", s.GetHealth)

	if s.trips != nil {
		r.Route("/trips", func(r chi.Router) {
			r.Post("/", s.CreateTrip)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.GetTrip)
				r.Post("/appointment", s.RescheduleTrip)
				r.Put("/origin", s.SetOrigin)
				r.Post("/prep", s.SelectMode)
				r.Get("/countdown", s.GetCountdown)
				r.Post("/reveal", s.Reveal)
				r.Get("/candidates/current", s.CurrentCandidate)
				r.Post("/candidates/next", s.NextCandidate)
				r.Post("/accept", s.Accept)
				r.Get("/status", s.GetStatus)
				r.Post("/positions", s.PushPosition)
				r.Get("/live", s.Live)
				r.Put("/missions/{index}", s.MarkMission)
				r.Post("/complete", s.Complete)
				r.Get("/navigation", s.GetNavigation)
				r.Get("/navigation.png", s.GetNavigationQR)
				r.Post("/review", s.Review)
				r.Post("/back", s.Back)
				r.Post("/restart", s.Restart)
			})
		})
	}
	if s.history != nil {
		r.Get("/runs", s.ListRuns)
	}
	if s.tags != nil {
		r.Get("/tags", s.ListTags)
	}
	if s.export != nil {
		r.Get("/export", s.GetExport)
	}
}

// Handler returns a chi router with every API route registered and no
// middleware. Tests drive it directly.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	s.Register(r)
	return r
}
