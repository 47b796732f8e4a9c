// Package service contains the business logic for the Little Escape API.
// Services validate inputs, enforce business rules, and orchestrate repo calls.
// No SQL lives here; services depend on repo interfaces, not implementations.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/pkordes/little-escape/internal/clock"
	"github.com/pkordes/little-escape/internal/domain"
	"github.com/pkordes/little-escape/internal/lifecycle"
	"github.com/pkordes/little-escape/internal/lock"
	"github.com/pkordes/little-escape/internal/metrics"
	"github.com/pkordes/little-escape/internal/navigation"
	"github.com/pkordes/little-escape/internal/position"
	"github.com/pkordes/little-escape/internal/recommend"
	"github.com/pkordes/little-escape/internal/repo"
	"github.com/pkordes/little-escape/internal/schedule"
	"github.com/pkordes/little-escape/internal/tracker"
)

// Appointment duration bounds accepted from clients, in minutes.
const (
	MinDurationMin = 20
	MaxDurationMin = 480
)

// EventPublisher broadcasts trip milestones. *position.NATSEvents satisfies it.
type EventPublisher interface {
	Publish(ev position.Event) error
}

// SourceFactory returns an extra position source for a trip, such as a NATS
// subscription. It is consulted on every acceptance.
type SourceFactory func(tripID uuid.UUID) tracker.PositionSource

// TripServiceConfig wires the TripService. Repos are required; every other
// field has a working default.
type TripServiceConfig struct {
	Appointments repo.AppointmentRepo
	Preps        repo.PrepRepo
	Pool         repo.PoolRepo
	Runs         repo.RunRepo
	Reviews      *ReviewService

	Locker  lock.Locker
	Hub     *position.Hub
	Remote  SourceFactory
	Events  EventPublisher
	Metrics *metrics.Collector

	Clock          clock.Clock
	Policy         tracker.ArrivalPolicy
	CompletionMode domain.CompletionMode
	Shuffle        func([]recommend.PoolItem) []recommend.PoolItem
	Logger         *slog.Logger

	// Evict drops trips untouched for IdleTTL, or RunTTL while a run is in
	// progress. Defaults: 2h and 12h.
	IdleTTL time.Duration
	RunTTL  time.Duration
}

// AppointmentInput is a client's request for a new appointment.
type AppointmentInput struct {
	Day         domain.Day
	TimeSlot    domain.TimeSlot
	DurationMin int
}

// AcceptInput selects the candidate to commit to. A nil CandidateID accepts
// the candidate under the cursor.
type AcceptInput struct {
	CandidateID    uuid.UUID
	CompletionMode domain.CompletionMode
}

// TripView is a trip snapshot tagged with its id.
type TripView struct {
	ID uuid.UUID `json:"id"`
	lifecycle.Snapshot
}

// TripService holds the live trips of this process and persists their
// milestones.
type TripService struct {
	cfg TripServiceConfig

	mu    sync.RWMutex
	trips map[uuid.UUID]*session
}

type session struct {
	trip    *lifecycle.Trip
	touched atomic.Int64 // UnixNano of the last access
}

// NewTripService constructs a TripService.
func NewTripService(cfg TripServiceConfig) *TripService {
	if cfg.Locker == nil {
		cfg.Locker = lock.NewLocal()
	}
	if cfg.Hub == nil {
		cfg.Hub = position.NewHub()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewCollector()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System{}
	}
	if cfg.Policy == (tracker.ArrivalPolicy{}) {
		cfg.Policy = tracker.DefaultPolicy()
	}
	if cfg.Shuffle == nil {
		cfg.Shuffle = func(p []recommend.PoolItem) []recommend.PoolItem { return recommend.Shuffle(p, nil) }
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 2 * time.Hour
	}
	if cfg.RunTTL <= 0 {
		cfg.RunTTL = 12 * time.Hour
	}
	return &TripService{cfg: cfg, trips: make(map[uuid.UUID]*session)}
}

// ---- Creation --------------------------------------------------------------

// Create persists a new appointment and opens a trip for it.
func (s *TripService) Create(ctx context.Context, in AppointmentInput) (TripView, error) {
	appt, err := s.newAppointment(ctx, in)
	if err != nil {
		return TripView{}, fmt.Errorf("service.TripService.Create: %w", err)
	}

	id := uuid.New()
	trip := lifecycle.New(s.lifecycleConfig(id))
	if err := trip.Create(appt); err != nil {
		return TripView{}, fmt.Errorf("service.TripService.Create: %w", err)
	}

	ss := &session{trip: trip}
	ss.touched.Store(s.cfg.Clock.Now().UnixNano())
	s.mu.Lock()
	s.trips[id] = ss
	s.mu.Unlock()

	s.cfg.Metrics.TripsCreated.Inc()
	s.cfg.Logger.InfoContext(ctx, "trip created", "trip_id", id, "appointment_id", appt.ID,
		"day", appt.Day, "time_slot", appt.TimeSlot)
	return TripView{ID: id, Snapshot: trip.Snapshot()}, nil
}

// Reschedule binds a new appointment to a trip that was restarted.
func (s *TripService) Reschedule(ctx context.Context, id uuid.UUID, in AppointmentInput) (TripView, error) {
	err := s.withTrip(ctx, id, func(ctx context.Context, trip *lifecycle.Trip) error {
		if st := trip.Stage(); st != domain.StageCreate {
			return fmt.Errorf("%w: cannot schedule in stage %s", domain.ErrPrecondition, st)
		}
		appt, err := s.newAppointment(ctx, in)
		if err != nil {
			return err
		}
		return trip.Create(appt)
	})
	if err != nil {
		return TripView{}, fmt.Errorf("service.TripService.Reschedule: %w", err)
	}
	return s.Get(ctx, id)
}

func (s *TripService) newAppointment(ctx context.Context, in AppointmentInput) (domain.Appointment, error) {
	appt := domain.Appointment{Day: in.Day, TimeSlot: in.TimeSlot, DurationMin: in.DurationMin}
	if err := appt.Validate(); err != nil {
		return domain.Appointment{}, err
	}
	if in.DurationMin < MinDurationMin || in.DurationMin > MaxDurationMin {
		return domain.Appointment{}, fmt.Errorf("%w: duration_min must be between %d and %d",
			domain.ErrValidation, MinDurationMin, MaxDurationMin)
	}
	return s.cfg.Appointments.Create(ctx, appt)
}

// Get returns the trip's current snapshot.
func (s *TripService) Get(_ context.Context, id uuid.UUID) (TripView, error) {
	trip, err := s.trip(id)
	if err != nil {
		return TripView{}, fmt.Errorf("service.TripService.Get: %w", err)
	}
	return TripView{ID: id, Snapshot: trip.Snapshot()}, nil
}

// ---- Prep ------------------------------------------------------------------

// SetOrigin records the traveller's starting point.
func (s *TripService) SetOrigin(ctx context.Context, id uuid.UUID, origin domain.Coordinate) (TripView, error) {
	err := s.withTrip(ctx, id, func(_ context.Context, trip *lifecycle.Trip) error {
		return trip.SetOrigin(origin)
	})
	if err != nil {
		return TripView{}, fmt.Errorf("service.TripService.SetOrigin: %w", err)
	}
	return s.Get(ctx, id)
}

// SelectMode ranks the active pool for mode and persists the resulting prep.
// A failed save rolls the trip back to PREP_ITINERARY.
func (s *TripService) SelectMode(ctx context.Context, id uuid.UUID, mode domain.TravelMode) (domain.Prep, []domain.Candidate, error) {
	var (
		prep  domain.Prep
		cands []domain.Candidate
	)
	err := s.withTrip(ctx, id, func(ctx context.Context, trip *lifecycle.Trip) error {
		start := time.Now()
		pois, err := s.cfg.Pool.ListActive(ctx)
		if err != nil {
			return err
		}
		items := make([]recommend.PoolItem, len(pois))
		for i, p := range pois {
			items[i] = recommend.PoolItem{ID: p.ID, Point: p.Point, Subtitle: p.Subtitle}
		}

		prep, cands, err = trip.SelectMode(mode, s.cfg.Shuffle(items))
		s.cfg.Metrics.ObserveRecommend(time.Since(start), len(cands))
		if err != nil {
			return err
		}

		if _, err := s.cfg.Preps.Save(ctx, prep, cands); err != nil {
			if backErr := trip.Back(); backErr != nil {
				s.cfg.Logger.ErrorContext(ctx, "roll back prep", "trip_id", id, "error", backErr)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return domain.Prep{}, nil, fmt.Errorf("service.TripService.SelectMode: %w", err)
	}
	s.cfg.Logger.InfoContext(ctx, "prep saved", "trip_id", id, "travel_mode", mode, "candidates", len(cands))
	return prep, cands, nil
}

// Countdown returns the wait until the trip's occurrence.
func (s *TripService) Countdown(ctx context.Context, id uuid.UUID) (schedule.Countdown, error) {
	trip, err := s.trip(id)
	if err != nil {
		return schedule.Countdown{}, fmt.Errorf("service.TripService.Countdown: %w", err)
	}
	cd, err := trip.Countdown()
	if err != nil {
		s.reject(err)
		return schedule.Countdown{}, fmt.Errorf("service.TripService.Countdown: %w", err)
	}
	return cd, nil
}

// ---- Reveal and browsing ---------------------------------------------------

// Reveal opens the candidates once the occurrence is due and returns the
// first one.
func (s *TripService) Reveal(ctx context.Context, id uuid.UUID) (domain.Candidate, int, error) {
	var (
		cand domain.Candidate
		idx  int
	)
	err := s.withTrip(ctx, id, func(_ context.Context, trip *lifecycle.Trip) error {
		if err := trip.Reveal(); err != nil {
			return err
		}
		var err error
		cand, idx, err = trip.Current()
		return err
	})
	if err != nil {
		return domain.Candidate{}, 0, fmt.Errorf("service.TripService.Reveal: %w", err)
	}
	return cand, idx, nil
}

// Current returns the candidate under the cursor.
func (s *TripService) Current(ctx context.Context, id uuid.UUID) (domain.Candidate, int, error) {
	trip, err := s.trip(id)
	if err != nil {
		return domain.Candidate{}, 0, fmt.Errorf("service.TripService.Current: %w", err)
	}
	c, i, err := trip.Current()
	if err != nil {
		s.reject(err)
		return domain.Candidate{}, 0, fmt.Errorf("service.TripService.Current: %w", err)
	}
	return c, i, nil
}

// Next advances the cursor, wrapping after the last candidate.
func (s *TripService) Next(ctx context.Context, id uuid.UUID) (domain.Candidate, int, error) {
	var (
		cand domain.Candidate
		idx  int
	)
	err := s.withTrip(ctx, id, func(_ context.Context, trip *lifecycle.Trip) error {
		var err error
		cand, idx, err = trip.NextCandidate()
		return err
	})
	if err != nil {
		return domain.Candidate{}, 0, fmt.Errorf("service.TripService.Next: %w", err)
	}
	return cand, idx, nil
}

// ---- Run -------------------------------------------------------------------

// Accept commits to a candidate, reveals its name, and starts tracking.
func (s *TripService) Accept(ctx context.Context, id uuid.UUID, in AcceptInput) (domain.Acceptance, error) {
	var acc domain.Acceptance
	err := s.withTrip(ctx, id, func(ctx context.Context, trip *lifecycle.Trip) error {
		candID := in.CandidateID
		if candID == uuid.Nil {
			c, _, err := trip.Current()
			if err != nil {
				return err
			}
			candID = c.ID
		}

		var name string
		poi, err := s.cfg.Pool.GetByID(ctx, candID)
		switch {
		case err == nil:
			name = poi.Name
		case !errors.Is(err, domain.ErrNotFound):
			return err
		}

		acc, err = trip.Accept(lifecycle.AcceptRequest{
			CandidateID:     candID,
			DestinationName: name,
			CompletionMode:  in.CompletionMode,
		}, s.source(id))
		return err
	})
	if err != nil {
		return domain.Acceptance{}, fmt.Errorf("service.TripService.Accept: %w", err)
	}

	s.cfg.Metrics.RunsAccepted.Inc()
	s.cfg.Metrics.ActiveRuns.Inc()
	s.publish(id, position.EventAccepted, acc.AcceptedAt, acc)
	s.cfg.Logger.InfoContext(ctx, "candidate accepted", "trip_id", id, "candidate_id", acc.CandidateID,
		"completion_mode", acc.CompletionMode)
	return acc, nil
}

// PushPosition feeds one device report into the running trip and returns the
// run's status afterwards.
func (s *TripService) PushPosition(ctx context.Context, id uuid.UUID, msg position.Message) (tracker.Status, error) {
	trip, err := s.trip(id)
	if err != nil {
		return tracker.Status{}, fmt.Errorf("service.TripService.PushPosition: %w", err)
	}
	if st := trip.Stage(); st != domain.StageRunning {
		err := fmt.Errorf("%w: cannot report position in stage %s", domain.ErrPrecondition, st)
		s.reject(err)
		return tracker.Status{}, fmt.Errorf("service.TripService.PushPosition: %w", err)
	}
	if msg.Fault() == nil {
		if _, err := msg.Sample(); err != nil {
			s.reject(err)
			return tracker.Status{}, fmt.Errorf("service.TripService.PushPosition: %w", err)
		}
	}

	feed, ok := s.cfg.Hub.Lookup(id)
	if !ok {
		err := fmt.Errorf("%w: run has ended", domain.ErrPrecondition)
		s.reject(err)
		return tracker.Status{}, fmt.Errorf("service.TripService.PushPosition: %w", err)
	}
	msg.Deliver(
		func(smp tracker.Sample) { feed.Publish(smp) },
		func(err error) { feed.Fail(err) },
	)
	return s.Status(ctx, id)
}

// Status returns the running or completed run's status.
func (s *TripService) Status(_ context.Context, id uuid.UUID) (tracker.Status, error) {
	trip, err := s.trip(id)
	if err != nil {
		return tracker.Status{}, fmt.Errorf("service.TripService.Status: %w", err)
	}
	snap := trip.Snapshot()
	if snap.Run == nil {
		return tracker.Status{}, fmt.Errorf("service.TripService.Status: %w: no run in stage %s", domain.ErrPrecondition, snap.Stage)
	}
	return *snap.Run, nil
}

// MarkMission ticks or unticks one itinerary mission.
func (s *TripService) MarkMission(ctx context.Context, id uuid.UUID, idx int, done bool) (domain.Mission, error) {
	var m domain.Mission
	err := s.withTrip(ctx, id, func(_ context.Context, trip *lifecycle.Trip) error {
		var err error
		m, err = trip.MarkMission(idx, done)
		return err
	})
	if err != nil {
		return domain.Mission{}, fmt.Errorf("service.TripService.MarkMission: %w", err)
	}
	return m, nil
}

// Complete finishes the run and records it. Completing again returns the
// same payload; a run whose first save failed is saved on the retry.
func (s *TripService) Complete(ctx context.Context, id uuid.UUID, confirm bool) (domain.CompletionPayload, error) {
	var payload domain.CompletionPayload
	err := s.withTrip(ctx, id, func(ctx context.Context, trip *lifecycle.Trip) error {
		p, created, err := trip.Complete(confirm)
		if err != nil {
			return err
		}
		if created {
			s.cfg.Hub.Remove(id)
		}
		snap := trip.Snapshot()
		if !created {
			_, err := s.cfg.Runs.GetByAppointment(ctx, snap.Appointment.ID)
			if err == nil {
				payload = p
				return nil
			}
			if !errors.Is(err, domain.ErrNotFound) {
				return err
			}
		}
		if _, err := s.cfg.Runs.Create(ctx, runFromSnapshot(snap, p)); err != nil {
			return err
		}
		payload = p
		return nil
	})
	if err != nil {
		return domain.CompletionPayload{}, fmt.Errorf("service.TripService.Complete: %w", err)
	}
	return payload, nil
}

func runFromSnapshot(snap lifecycle.Snapshot, p domain.CompletionPayload) domain.Run {
	run := domain.Run{
		AppointmentID:   snap.Appointment.ID,
		CandidateID:     snap.Acceptance.CandidateID,
		TravelMode:      snap.Prep.TravelMode,
		CompletionMode:  snap.Acceptance.CompletionMode,
		Origin:          snap.Acceptance.Origin,
		Destination:     snap.Acceptance.Destination,
		DestinationName: snap.Acceptance.DestinationName,
		Payload:         p,
	}
	if snap.Run != nil {
		run.Mission = snap.Run.Mission
	}
	return run
}

// ---- Navigation and review -------------------------------------------------

// Navigation returns map links to the accepted destination.
func (s *TripService) Navigation(_ context.Context, id uuid.UUID) (navigation.Links, error) {
	trip, err := s.trip(id)
	if err != nil {
		return navigation.Links{}, fmt.Errorf("service.TripService.Navigation: %w", err)
	}
	snap := trip.Snapshot()
	if snap.Acceptance == nil || snap.Prep == nil {
		return navigation.Links{}, fmt.Errorf("service.TripService.Navigation: %w: no accepted destination in stage %s",
			domain.ErrPrecondition, snap.Stage)
	}
	acc := snap.Acceptance
	return navigation.Build(acc.Origin, acc.Destination, acc.DestinationName, snap.Prep.TravelMode), nil
}

// Review rates the completed run of the trip.
func (s *TripService) Review(ctx context.Context, id uuid.UUID, in ReviewInput) (domain.Run, error) {
	var run domain.Run
	err := s.withTrip(ctx, id, func(ctx context.Context, trip *lifecycle.Trip) error {
		snap := trip.Snapshot()
		if snap.Stage != domain.StageReview {
			return fmt.Errorf("%w: cannot review in stage %s", domain.ErrPrecondition, snap.Stage)
		}
		var err error
		run, err = s.cfg.Reviews.Review(ctx, snap.Appointment.ID, in)
		return err
	})
	if err != nil {
		return domain.Run{}, fmt.Errorf("service.TripService.Review: %w", err)
	}
	return run, nil
}

// ---- Navigation between stages ---------------------------------------------

// Back steps one stage towards the start.
func (s *TripService) Back(ctx context.Context, id uuid.UUID) (TripView, error) {
	err := s.withTrip(ctx, id, func(_ context.Context, trip *lifecycle.Trip) error {
		wasRunning := trip.Stage() == domain.StageRunning
		if err := trip.Back(); err != nil {
			return err
		}
		if wasRunning {
			s.cfg.Metrics.ActiveRuns.Dec()
			s.cfg.Hub.Remove(id)
		}
		return nil
	})
	if err != nil {
		return TripView{}, fmt.Errorf("service.TripService.Back: %w", err)
	}
	return s.Get(ctx, id)
}

// Restart abandons the trip and returns it to CREATE. Persisted appointments
// and runs are kept.
func (s *TripService) Restart(ctx context.Context, id uuid.UUID) (TripView, error) {
	err := s.withTrip(ctx, id, func(_ context.Context, trip *lifecycle.Trip) error {
		wasRunning := trip.Stage() == domain.StageRunning
		trip.Restart()
		if wasRunning {
			s.cfg.Metrics.ActiveRuns.Dec()
		}
		s.cfg.Hub.Remove(id)
		return nil
	})
	if err != nil {
		return TripView{}, fmt.Errorf("service.TripService.Restart: %w", err)
	}
	return s.Get(ctx, id)
}

// ---- Eviction --------------------------------------------------------------

// Len reports how many trips the service holds.
func (s *TripService) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.trips)
}

// Evict forgets trips nobody has touched for IdleTTL, or for RunTTL while a
// run is in progress. An evicted run is abandoned without being recorded.
// Trips whose lock cannot be taken are left for the next pass. It returns
// how many trips were evicted.
func (s *TripService) Evict(ctx context.Context) int {
	now := s.cfg.Clock.Now()

	s.mu.RLock()
	var stale []uuid.UUID
	for id, ss := range s.trips {
		if s.expired(ss, now) {
			stale = append(stale, id)
		}
	}
	s.mu.RUnlock()

	evicted := 0
	for _, id := range stale {
		var gone *lifecycle.Trip
		err := s.cfg.Locker.WithTripLock(ctx, id, func(context.Context) error {
			s.mu.Lock()
			ss, ok := s.trips[id]
			if ok && s.expired(ss, now) {
				delete(s.trips, id)
				gone = ss.trip
			}
			s.mu.Unlock()
			if gone == nil {
				return nil
			}
			if gone.Stage() == domain.StageRunning {
				s.cfg.Metrics.ActiveRuns.Dec()
			}
			gone.Restart()
			s.cfg.Hub.Remove(id)
			return nil
		})
		if err != nil {
			s.cfg.Logger.DebugContext(ctx, "evict trip skipped", "trip_id", id, "error", err)
			continue
		}
		if gone != nil {
			evicted++
			s.cfg.Logger.InfoContext(ctx, "trip evicted", "trip_id", id)
		}
	}
	return evicted
}

func (s *TripService) expired(ss *session, now time.Time) bool {
	ttl := s.cfg.IdleTTL
	if ss.trip.Stage() == domain.StageRunning {
		ttl = s.cfg.RunTTL
	}
	return now.Sub(time.Unix(0, ss.touched.Load())) >= ttl
}

// ---- helpers ---------------------------------------------------------------

// trip looks up a live trip and marks it as recently used.
func (s *TripService) trip(id uuid.UUID) (*lifecycle.Trip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ss, ok := s.trips[id]
	if !ok {
		return nil, fmt.Errorf("%w: trip %s", domain.ErrNotFound, id)
	}
	// Stored under the read lock so Evict's re-check cannot miss it.
	ss.touched.Store(s.cfg.Clock.Now().UnixNano())
	return ss.trip, nil
}

// withTrip runs fn on the trip while holding its lock.
func (s *TripService) withTrip(ctx context.Context, id uuid.UUID, fn func(context.Context, *lifecycle.Trip) error) error {
	trip, err := s.trip(id)
	if err != nil {
		return err
	}
	err = s.cfg.Locker.WithTripLock(ctx, id, func(ctx context.Context) error {
		return fn(ctx, trip)
	})
	if err != nil {
		s.reject(err)
	}
	return err
}

func (s *TripService) reject(err error) {
	var reason string
	switch {
	case errors.Is(err, domain.ErrRevealNotDue):
		reason = "not_due"
	case errors.Is(err, domain.ErrNoCandidates):
		reason = "no_candidates"
	case errors.Is(err, domain.ErrConfirmationRequired):
		reason = "confirm"
	case errors.Is(err, domain.ErrValidation):
		reason = "validation"
	case errors.Is(err, domain.ErrPrecondition):
		reason = "precondition"
	default:
		return
	}
	s.cfg.Metrics.Reject(reason)
}

func (s *TripService) source(id uuid.UUID) tracker.PositionSource {
	feed := s.cfg.Hub.Feed(id)
	if s.cfg.Remote == nil {
		return feed
	}
	return position.Merge(feed, s.cfg.Remote(id))
}

func (s *TripService) lifecycleConfig(id uuid.UUID) lifecycle.Config {
	log := s.cfg.Logger.With("trip_id", id)
	m := s.cfg.Metrics
	return lifecycle.Config{
		Clock:          s.cfg.Clock,
		Policy:         s.cfg.Policy,
		CompletionMode: s.cfg.CompletionMode,
		Logger:         log,
		Hooks: tracker.Hooks{
			OnSample: func(float64) { m.Samples.Inc() },
			OnArrived: func(at time.Time) {
				m.Arrivals.Inc()
				s.publish(id, position.EventArrived, at, map[string]time.Time{"arrived_at": at})
			},
			OnCompleted: func(p domain.CompletionPayload) {
				m.RunCompleted(p.ArrivedAt != nil)
				s.publish(id, position.EventCompleted, p.CompletedAt, p)
			},
			OnStreamErr: func(err error) {
				m.StreamErrors.Inc()
				log.Warn("position stream error", "error", err)
			},
		},
	}
}

func (s *TripService) publish(id uuid.UUID, typ string, at time.Time, data any) {
	if s.cfg.Events == nil {
		return
	}
	ev := position.Event{Type: typ, TripID: id, At: at, Data: data}
	if err := s.cfg.Events.Publish(ev); err != nil {
		s.cfg.Logger.Warn("publish trip event", "trip_id", id, "type", typ, "error", err)
	}
}
