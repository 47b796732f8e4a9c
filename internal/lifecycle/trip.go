// Package lifecycle implements the trip state machine, from appointment
// creation through the time-gated reveal to the completed run.
//
// Every operation either moves the trip forward and returns nil, or returns
// an error wrapping domain.ErrPrecondition (or a more specific sentinel) and
// leaves the trip exactly as it was.
package lifecycle

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pkordes/little-escape/internal/clock"
	"github.com/pkordes/little-escape/internal/domain"
	"github.com/pkordes/little-escape/internal/recommend"
	"github.com/pkordes/little-escape/internal/schedule"
	"github.com/pkordes/little-escape/internal/tracker"
)

// Recommender produces ranked candidates for a prep.
type Recommender interface {
	Recommend(pool []recommend.PoolItem, origin domain.Coordinate, appt domain.Appointment, mode domain.TravelMode) []domain.Candidate
}

// Config bundles the collaborators shared by every trip.
type Config struct {
	Clock          clock.Clock
	Recommender    Recommender
	Policy         tracker.ArrivalPolicy
	CompletionMode domain.CompletionMode
	Logger         *slog.Logger
	Hooks          tracker.Hooks
}

// Trip is one traveller's journey through the stages. It is safe for
// concurrent use.
type Trip struct {
	mu  sync.Mutex
	cfg Config

	stage      domain.Stage
	appt       *domain.Appointment
	origin     *domain.Coordinate
	prep       *domain.Prep
	candidates []domain.Candidate
	occurrence time.Time
	cursor     int
	acceptance *domain.Acceptance
	run        *tracker.Tracker
	payload    *domain.CompletionPayload
}

// New returns a trip in the CREATE stage.
func New(cfg Config) *Trip {
	if cfg.Clock == nil {
		cfg.Clock = clock.System{}
	}
	if cfg.Recommender == nil {
		cfg.Recommender = recommend.Recommender{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.CompletionMode == "" {
		cfg.CompletionMode = domain.CompletionGeofence
	}
	return &Trip{cfg: cfg, stage: domain.StageCreate}
}

// Stage returns the current stage.
func (t *Trip) Stage() domain.Stage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stage
}

// Create binds the appointment and moves to PREP_ORIGIN.
func (t *Trip) Create(appt domain.Appointment) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.require("create", domain.StageCreate); err != nil {
		return err
	}
	if err := appt.Validate(); err != nil {
		return fmt.Errorf("lifecycle.Trip.Create: %w", err)
	}

	t.appt = &appt
	t.moveLocked(domain.StagePrepOrigin)
	return nil
}

// SetOrigin records where the traveller starts and moves to PREP_ITINERARY.
// It may be called again from PREP_ITINERARY to pick a different origin.
func (t *Trip) SetOrigin(c domain.Coordinate) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.require("set origin", domain.StagePrepOrigin, domain.StagePrepItinerary); err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("lifecycle.Trip.SetOrigin: %w", err)
	}

	t.origin = &c
	t.moveLocked(domain.StagePrepItinerary)
	return nil
}

// SelectMode runs the recommender over pool for the chosen travel mode.
// An empty result returns domain.ErrNoCandidates and keeps the trip in
// PREP_ITINERARY so another mode can be tried. On success the prep is pinned,
// the occurrence is fixed from the prep time, and the trip moves to
// SCHEDULE_REVEALED.
func (t *Trip) SelectMode(mode domain.TravelMode, pool []recommend.PoolItem) (domain.Prep, []domain.Candidate, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.require("select travel mode", domain.StagePrepItinerary); err != nil {
		return domain.Prep{}, nil, err
	}
	if !mode.Valid() {
		return domain.Prep{}, nil, fmt.Errorf("lifecycle.Trip.SelectMode: %w: unknown travel mode %q", domain.ErrValidation, mode)
	}

	candidates := t.cfg.Recommender.Recommend(pool, *t.origin, *t.appt, mode)
	if len(candidates) == 0 {
		return domain.Prep{}, nil, fmt.Errorf("lifecycle.Trip.SelectMode: %w for %s within budget", domain.ErrNoCandidates, mode)
	}

	preparedAt := t.cfg.Clock.Now()
	if preparedAt.Before(t.appt.CreatedAt) {
		preparedAt = t.appt.CreatedAt
	}
	prep := domain.Prep{
		AppointmentID: t.appt.ID,
		TravelMode:    mode,
		Origin:        *t.origin,
		PreparedAt:    preparedAt,
	}

	t.prep = &prep
	t.candidates = candidates
	t.cursor = 0
	t.occurrence = schedule.NextOccurrence(t.appt.Day, t.appt.TimeSlot, preparedAt)
	t.moveLocked(domain.StageScheduleRevealed)
	return prep, slices.Clone(candidates), nil
}

// Countdown returns the wait until the pinned occurrence.
func (t *Trip) Countdown() (schedule.Countdown, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.require("count down", domain.StageScheduleRevealed, domain.StageTodayRevealed); err != nil {
		return schedule.Countdown{}, err
	}
	return schedule.CountdownTo(t.occurrence, t.cfg.Clock.Now()), nil
}

// Candidates returns the ranked candidates once a prep exists.
func (t *Trip) Candidates() ([]domain.Candidate, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.require("list candidates", domain.StageScheduleRevealed, domain.StageTodayRevealed); err != nil {
		return nil, err
	}
	return slices.Clone(t.candidates), nil
}

// Reveal opens today's candidates once the occurrence has been reached.
func (t *Trip) Reveal() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.require("reveal", domain.StageScheduleRevealed); err != nil {
		return err
	}
	if len(t.candidates) == 0 {
		return fmt.Errorf("lifecycle.Trip.Reveal: %w", domain.ErrNoCandidates)
	}
	cd := schedule.CountdownTo(t.occurrence, t.cfg.Clock.Now())
	if !cd.Due() {
		return fmt.Errorf("lifecycle.Trip.Reveal: %w: %w: %s remaining",
			domain.ErrPrecondition, domain.ErrRevealNotDue, cd.Remaining.Round(time.Second))
	}

	t.cursor = 0
	t.moveLocked(domain.StageTodayRevealed)
	return nil
}

// Current returns the candidate under the browsing cursor and its index.
func (t *Trip) Current() (domain.Candidate, int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.require("browse candidates", domain.StageTodayRevealed); err != nil {
		return domain.Candidate{}, 0, err
	}
	i := t.cursor % len(t.candidates)
	return t.candidates[i], i, nil
}

// NextCandidate advances the cursor, wrapping after the last candidate.
func (t *Trip) NextCandidate() (domain.Candidate, int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.require("browse candidates", domain.StageTodayRevealed); err != nil {
		return domain.Candidate{}, 0, err
	}
	t.cursor = (t.cursor + 1) % len(t.candidates)
	return t.candidates[t.cursor], t.cursor, nil
}

// AcceptRequest selects the candidate to commit to. A nil CandidateID means
// the one under the cursor; an empty CompletionMode uses the trip default.
type AcceptRequest struct {
	CandidateID     uuid.UUID
	DestinationName string
	CompletionMode  domain.CompletionMode
}

// Accept commits to one candidate, starts tracking against src (which may
// be nil), and moves to RUNNING. A trip accepts at most once per run.
func (t *Trip) Accept(req AcceptRequest, src tracker.PositionSource) (domain.Acceptance, error) {
	t.mu.Lock()

	if err := t.require("accept", domain.StageTodayRevealed); err != nil {
		t.mu.Unlock()
		return domain.Acceptance{}, err
	}

	chosen := t.candidates[t.cursor%len(t.candidates)]
	if req.CandidateID != uuid.Nil {
		i := slices.IndexFunc(t.candidates, func(c domain.Candidate) bool { return c.ID == req.CandidateID })
		if i < 0 {
			t.mu.Unlock()
			return domain.Acceptance{}, fmt.Errorf("lifecycle.Trip.Accept: %w: candidate %s is not on offer", domain.ErrValidation, req.CandidateID)
		}
		chosen = t.candidates[i]
	}

	mode := req.CompletionMode
	if mode == "" {
		mode = t.cfg.CompletionMode
	}

	acceptedAt := t.cfg.Clock.Now()
	if acceptedAt.Before(t.prep.PreparedAt) {
		acceptedAt = t.prep.PreparedAt
	}
	acc := domain.Acceptance{
		CandidateID:     chosen.ID,
		AcceptedAt:      acceptedAt,
		Origin:          t.prep.Origin,
		Destination:     chosen.Point,
		DestinationName: req.DestinationName,
		ItineraryLines:  slices.Clone(chosen.ItineraryLines),
		CompletionMode:  mode,
	}

	run := tracker.New(acc, tracker.Config{
		Policy: t.cfg.Policy,
		Clock:  t.cfg.Clock,
		Logger: t.cfg.Logger.With("candidate_id", chosen.ID),
		Hooks:  t.cfg.Hooks,
	})
	t.acceptance = &acc
	t.run = run
	t.moveLocked(domain.StageRunning)
	t.mu.Unlock()

	// Subscribing may deliver samples synchronously; the trip lock is released
	// so a concurrent Back or Restart can still stop the run.
	run.Start(src)
	return acc, nil
}

// MarkMission ticks or unticks an itinerary mission of the running trip.
func (t *Trip) MarkMission(idx int, done bool) (domain.Mission, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.require("mark mission", domain.StageRunning); err != nil {
		return domain.Mission{}, err
	}
	m, err := t.run.MarkMission(idx, done)
	if err != nil {
		return domain.Mission{}, fmt.Errorf("lifecycle.Trip.MarkMission: %w", err)
	}
	return m, nil
}

// Complete finishes the running trip and moves to REVIEW. Calling it again in
// REVIEW returns the same payload; created reports whether this call made it.
func (t *Trip) Complete(confirm bool) (payload domain.CompletionPayload, created bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stage == domain.StageReview && t.payload != nil {
		return *t.payload, false, nil
	}
	if err := t.require("complete", domain.StageRunning); err != nil {
		return domain.CompletionPayload{}, false, err
	}

	p, err := t.run.Complete(confirm)
	if err != nil {
		return domain.CompletionPayload{}, false, fmt.Errorf("lifecycle.Trip.Complete: %w", err)
	}
	t.payload = &p
	t.moveLocked(domain.StageReview)
	return p, true, nil
}

// Back steps one stage towards the start. Leaving RUNNING abandons the run:
// the position stream is released and the acceptance discarded.
func (t *Trip) Back() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.stage {
	case domain.StagePrepItinerary:
		t.moveLocked(domain.StagePrepOrigin)
	case domain.StageScheduleRevealed:
		t.prep = nil
		t.candidates = nil
		t.occurrence = time.Time{}
		t.moveLocked(domain.StagePrepItinerary)
	case domain.StageTodayRevealed:
		t.moveLocked(domain.StageScheduleRevealed)
	case domain.StageRunning:
		t.run.Stop()
		t.run = nil
		t.acceptance = nil
		t.moveLocked(domain.StageTodayRevealed)
	default:
		return fmt.Errorf("%w: cannot go back from stage %s", domain.ErrPrecondition, t.stage)
	}
	return nil
}

// Restart abandons everything, releases any stream, and returns to CREATE.
func (t *Trip) Restart() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.run != nil {
		t.run.Stop()
	}
	t.appt = nil
	t.origin = nil
	t.prep = nil
	t.candidates = nil
	t.occurrence = time.Time{}
	t.cursor = 0
	t.acceptance = nil
	t.run = nil
	t.payload = nil
	t.moveLocked(domain.StageCreate)
}

// Snapshot is a read-only copy of the trip for transport and persistence.
type Snapshot struct {
	Stage       domain.Stage              `json:"stage"`
	Appointment *domain.Appointment       `json:"appointment,omitempty"`
	Origin      *domain.Coordinate        `json:"origin,omitempty"`
	Prep        *domain.Prep              `json:"prep,omitempty"`
	Candidates  []domain.Candidate        `json:"candidates,omitempty"`
	Occurrence  *time.Time                `json:"occurrence,omitempty"`
	CursorIndex int                       `json:"cursor_index"`
	Acceptance  *domain.Acceptance        `json:"acceptance,omitempty"`
	Run         *tracker.Status           `json:"run,omitempty"`
	Payload     *domain.CompletionPayload `json:"payload,omitempty"`
}

// Snapshot returns the current state.
func (t *Trip) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Snapshot{
		Stage:       t.stage,
		Appointment: clonePtr(t.appt),
		Origin:      clonePtr(t.origin),
		Prep:        clonePtr(t.prep),
		Candidates:  slices.Clone(t.candidates),
		Acceptance:  clonePtr(t.acceptance),
		Payload:     clonePtr(t.payload),
	}
	if len(t.candidates) > 0 {
		s.CursorIndex = t.cursor % len(t.candidates)
	}
	if !t.occurrence.IsZero() {
		s.Occurrence = clonePtr(&t.occurrence)
	}
	if t.run != nil {
		st := t.run.Status()
		s.Run = &st
	}
	return s
}

func (t *Trip) require(op string, allowed ...domain.Stage) error {
	if slices.Contains(allowed, t.stage) {
		return nil
	}
	return fmt.Errorf("%w: cannot %s in stage %s", domain.ErrPrecondition, op, t.stage)
}

func (t *Trip) moveLocked(next domain.Stage) {
	t.cfg.Logger.Debug("stage transition", "from", t.stage, "to", next)
	t.stage = next
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}
