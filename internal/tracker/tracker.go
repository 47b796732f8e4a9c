// Package tracker follows a traveller from acceptance to completion: it
// consumes a position stream, latches arrival once, and produces the
// completion payload exactly once.
package tracker

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/pkordes/little-escape/internal/clock"
	"github.com/pkordes/little-escape/internal/domain"
	"github.com/pkordes/little-escape/internal/geo"
)

// State is the tracker's position in its own small lifecycle.
type State string

const (
	StateAccepted  State = "ACCEPTED"
	StateArrived   State = "ARRIVED"
	StateCompleted State = "COMPLETED"
)

// ErrPermissionDenied is reported by a position source when the device
// refused to share its location.
var ErrPermissionDenied = errors.New("location permission denied")

// Sample is one position fix from the traveller's device.
type Sample struct {
	Point     domain.Coordinate `json:"point"`
	AccuracyM *float64          `json:"accuracy_m,omitempty"`
	At        time.Time         `json:"at"`
}

// PositionSource delivers samples until the returned unsubscribe is called.
// Callbacks may run on any goroutine.
type PositionSource interface {
	Subscribe(onSample func(Sample), onError func(error)) (unsubscribe func(), err error)
}

// Hooks are optional callbacks fired outside the tracker's state lock. They
// fire one at a time in the order the state changed, so OnArrived always
// precedes OnCompleted. Hooks must not call back into the Tracker.
type Hooks struct {
	OnSample    func(distanceM float64)
	OnArrived   func(at time.Time)
	OnCompleted func(p domain.CompletionPayload)
	OnStreamErr func(err error)
}

// Config bundles the tracker's collaborators.
type Config struct {
	Policy ArrivalPolicy
	Clock  clock.Clock
	Logger *slog.Logger
	Hooks  Hooks
}

// Tracker is safe for concurrent use by the position stream and user actions.
type Tracker struct {
	mu sync.Mutex
	// hookMu is taken before mu is released so hooks keep state order.
	hookMu sync.Mutex

	acc    domain.Acceptance
	policy ArrivalPolicy
	clock  clock.Clock
	log    *slog.Logger
	hooks  Hooks

	missions    []domain.Mission
	arrivedAt   *time.Time
	last        *Sample
	lastDistM   *float64
	live        domain.LiveStatus
	liveErr     string
	payload     *domain.CompletionPayload
	unsubscribe func()
	stopped     bool
}

// New returns a tracker for acc. Call Start to attach a position stream.
func New(acc domain.Acceptance, cfg Config) *Tracker {
	if cfg.Clock == nil {
		cfg.Clock = clock.System{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if acc.CompletionMode == "" {
		acc.CompletionMode = domain.CompletionGeofence
	}

	missions := make([]domain.Mission, len(acc.ItineraryLines))
	for i, line := range acc.ItineraryLines {
		missions[i] = domain.Mission{Text: line}
	}

	return &Tracker{
		acc:      acc,
		policy:   cfg.Policy,
		clock:    cfg.Clock,
		log:      cfg.Logger,
		hooks:    cfg.Hooks,
		missions: missions,
		live:     domain.LiveIdle,
	}
}

// Start subscribes to src. A nil source or a failed subscription leaves the
// tracker usable for manual completion with a degraded live status.
func (t *Tracker) Start(src PositionSource) {
	if src == nil {
		return
	}

	t.mu.Lock()
	if t.stopped || t.payload != nil {
		t.mu.Unlock()
		return
	}
	t.live = domain.LiveWatching
	t.mu.Unlock()

	unsub, err := src.Subscribe(t.HandleSample, t.HandleError)
	if err != nil {
		t.HandleError(fmt.Errorf("tracker.Start: %w", err))
		return
	}

	t.mu.Lock()
	if t.stopped || t.payload != nil {
		// Completed or abandoned while subscribing.
		t.mu.Unlock()
		unsub()
		return
	}
	t.unsubscribe = unsub
	t.mu.Unlock()
}

// HandleSample folds one position fix into the tracker. Samples after
// completion or stop are ignored. A sample older than the latest one seen
// does not replace the displayed position but can still latch arrival.
func (t *Tracker) HandleSample(s Sample) {
	t.mu.Lock()
	if t.stopped || t.payload != nil {
		t.mu.Unlock()
		return
	}

	d := geo.Distance(s.Point, t.acc.Destination)
	if t.last == nil || !s.At.Before(t.last.At) {
		sample := s
		t.last = &sample
		t.lastDistM = &d
	}
	if t.live != domain.LiveWatching {
		t.live = domain.LiveWatching
		t.liveErr = ""
	}

	var arrived *time.Time
	if t.arrivedAt == nil && t.policy.Admits(d, s.AccuracyM) {
		at := strictlyAfter(t.acc.AcceptedAt, t.clock.Now())
		t.arrivedAt = &at
		arrived = &at
	}
	t.hookMu.Lock()
	t.mu.Unlock()
	defer t.hookMu.Unlock()

	if t.hooks.OnSample != nil {
		t.hooks.OnSample(d)
	}
	if arrived != nil {
		t.log.Info("arrival latched", "distance_m", d, "arrived_at", *arrived)
		if t.hooks.OnArrived != nil {
			t.hooks.OnArrived(*arrived)
		}
	}
}

// HandleError records a stream fault. Manual completion stays available.
func (t *Tracker) HandleError(err error) {
	if err == nil {
		return
	}

	t.mu.Lock()
	if t.stopped || t.payload != nil {
		t.mu.Unlock()
		return
	}
	if errors.Is(err, ErrPermissionDenied) {
		t.live = domain.LiveDenied
	} else {
		t.live = domain.LiveError
	}
	t.liveErr = err.Error()
	t.hookMu.Lock()
	t.mu.Unlock()
	defer t.hookMu.Unlock()

	t.log.Warn("position stream degraded", "error", err)
	if t.hooks.OnStreamErr != nil {
		t.hooks.OnStreamErr(err)
	}
}

// MarkMission sets or clears the done timestamp of mission idx.
func (t *Tracker) MarkMission(idx int, done bool) (domain.Mission, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.payload != nil {
		return domain.Mission{}, fmt.Errorf("%w: run already completed", domain.ErrPrecondition)
	}
	if idx < 0 || idx >= len(t.missions) {
		return domain.Mission{}, fmt.Errorf("%w: mission index %d out of range", domain.ErrValidation, idx)
	}

	m := &t.missions[idx]
	switch {
	case done && m.DoneAt == nil:
		at := strictlyAfter(t.acc.AcceptedAt, t.clock.Now())
		m.DoneAt = &at
	case !done:
		m.DoneAt = nil
	}
	return *m, nil
}

// Complete finalises the run. The first successful call computes the payload
// and releases the position stream; later calls return the same payload.
// In checklist mode, undone missions require confirm.
func (t *Tracker) Complete(confirm bool) (domain.CompletionPayload, error) {
	t.mu.Lock()
	if t.payload != nil {
		p := *t.payload
		t.mu.Unlock()
		return p, nil
	}

	if t.acc.CompletionMode == domain.CompletionChecklist && t.undoneLocked() > 0 && !confirm {
		n := t.undoneLocked()
		t.mu.Unlock()
		return domain.CompletionPayload{}, fmt.Errorf("%w: %d missions not done", domain.ErrConfirmationRequired, n)
	}

	arrived := t.arrivalLocked()
	completedAt := t.clock.Now()
	if completedAt.Before(t.acc.AcceptedAt) {
		completedAt = t.acc.AcceptedAt
	}
	if arrived != nil && completedAt.Before(*arrived) {
		completedAt = *arrived
	}

	p := domain.NewCompletionPayload(t.acc.AcceptedAt, arrived, completedAt)
	t.payload = &p
	t.live = domain.LiveStopped
	unsub := t.unsubscribe
	t.unsubscribe = nil
	t.hookMu.Lock()
	t.mu.Unlock()
	defer t.hookMu.Unlock()

	if unsub != nil {
		unsub()
	}
	t.log.Info("run completed", "total_ms", p.TotalMs, "arrived", p.ArrivedAt != nil)
	if t.hooks.OnCompleted != nil {
		t.hooks.OnCompleted(p)
	}
	return p, nil
}

// Stop releases the position stream without completing. It is idempotent.
func (t *Tracker) Stop() {
	t.mu.Lock()
	t.stopped = true
	if t.payload == nil {
		t.live = domain.LiveStopped
	}
	unsub := t.unsubscribe
	t.unsubscribe = nil
	t.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

// Status is a point-in-time copy of the tracker.
type Status struct {
	State          State                     `json:"state"`
	Acceptance     domain.Acceptance         `json:"acceptance"`
	Missions       []domain.Mission          `json:"missions"`
	ArrivedAt      *time.Time                `json:"arrived_at,omitempty"`
	DistanceM      *float64                  `json:"distance_m,omitempty"`
	LastSample     *Sample                   `json:"last_sample,omitempty"`
	Live           domain.LiveStatus         `json:"live"`
	LiveError      string                    `json:"live_error,omitempty"`
	Payload        *domain.CompletionPayload `json:"payload,omitempty"`
	Mission        string                    `json:"mission"`
	MissionsUndone int                       `json:"missions_undone"`
}

// Status returns a snapshot safe to hand to other goroutines.
func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	missions := make([]domain.Mission, len(t.missions))
	for i, m := range t.missions {
		missions[i] = domain.Mission{Text: m.Text, DoneAt: copyTime(m.DoneAt)}
	}

	st := Status{
		State:          StateAccepted,
		Acceptance:     t.acc,
		Missions:       missions,
		ArrivedAt:      copyTime(t.arrivalLocked()),
		Live:           t.live,
		LiveError:      t.liveErr,
		Mission:        PickMission(t.acc.AcceptedAt),
		MissionsUndone: t.undoneLocked(),
	}
	st.Acceptance.ItineraryLines = slices.Clone(t.acc.ItineraryLines)
	if st.ArrivedAt != nil {
		st.State = StateArrived
	}
	if t.lastDistM != nil {
		d := *t.lastDistM
		st.DistanceM = &d
	}
	if t.last != nil {
		s := *t.last
		st.LastSample = &s
	}
	if t.payload != nil {
		p := *t.payload
		st.Payload = &p
		st.State = StateCompleted
	}
	return st
}

// arrivalLocked returns the arrival instant under the run's completion mode.
func (t *Tracker) arrivalLocked() *time.Time {
	if t.acc.CompletionMode != domain.CompletionChecklist {
		return t.arrivedAt
	}
	var earliest *time.Time
	for _, m := range t.missions {
		if m.DoneAt != nil && (earliest == nil || m.DoneAt.Before(*earliest)) {
			earliest = m.DoneAt
		}
	}
	return earliest
}

func (t *Tracker) undoneLocked() int {
	n := 0
	for _, m := range t.missions {
		if m.DoneAt == nil {
			n++
		}
	}
	return n
}

// strictlyAfter returns at, nudged to one millisecond past floor when the
// clock has not moved beyond it.
func strictlyAfter(floor, at time.Time) time.Time {
	if at.After(floor) {
		return at
	}
	return floor.Add(time.Millisecond)
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
