package position

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/pkordes/little-escape/internal/tracker"
)

// ConnectionMetrics receives NATS connection state changes.
type ConnectionMetrics interface {
	NATSSetConnected(connected bool)
}

// Connect dials NATS and reports connection state to m (which may be nil).
func Connect(url string, log *slog.Logger, m ConnectionMetrics) (*nats.Conn, error) {
	set := func(up bool) {
		if m != nil {
			m.NATSSetConnected(up)
		}
	}
	nc, err := nats.Connect(url,
		nats.Name("little-escape"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			set(false)
			log.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			set(true)
			log.Info("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			set(false)
			log.Info("nats closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("position.Connect: %w", err)
	}
	set(true)
	return nc, nil
}

// NATSSource streams a single trip's fixes from the subject
// "<prefix>.<tripID>".
type NATSSource struct {
	nc      *nats.Conn
	subject string
	now     func() time.Time
}

// NewNATSSource returns a source for tripID under prefix.
func NewNATSSource(nc *nats.Conn, prefix string, tripID uuid.UUID) *NATSSource {
	return &NATSSource{nc: nc, subject: PositionSubject(prefix, tripID), now: time.Now}
}

// PositionSubject is the subject devices publish a trip's fixes to.
func PositionSubject(prefix string, tripID uuid.UUID) string {
	return strings.TrimSuffix(prefix, ".") + "." + tripID.String()
}

// Subscribe implements tracker.PositionSource.
func (s *NATSSource) Subscribe(onSample func(tracker.Sample), onError func(error)) (func(), error) {
	sub, err := s.nc.Subscribe(s.subject, func(msg *nats.Msg) {
		m, err := Decode(msg.Data, s.now())
		if err != nil {
			onError(err)
			return
		}
		m.Deliver(onSample, onError)
	})
	if err != nil {
		return nil, fmt.Errorf("position.NATSSource.Subscribe: %w", err)
	}
	return func() { _ = sub.Unsubscribe() }, nil
}

// Event is a trip milestone broadcast to other services.
type Event struct {
	Type   string    `json:"type"`
	TripID uuid.UUID `json:"trip_id"`
	At     time.Time `json:"at"`
	Data   any       `json:"data,omitempty"`
}

const (
	EventAccepted  = "accepted"
	EventArrived   = "arrived"
	EventCompleted = "completed"
)

// NATSEvents publishes Events to "<prefix>.<tripID>.<type>".
// The prefix may itself contain dots.
type NATSEvents struct {
	nc     *nats.Conn
	prefix string
}

// NewNATSEvents returns a publisher rooted at prefix.
func NewNATSEvents(nc *nats.Conn, prefix string) *NATSEvents {
	return &NATSEvents{nc: nc, prefix: strings.TrimSuffix(prefix, ".")}
}

// Publish marshals and sends ev.
func (p *NATSEvents) Publish(ev Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("position.NATSEvents.Publish: %w", err)
	}
	subject := fmt.Sprintf("%s.%s.%s", p.prefix, ev.TripID, subjectToken(ev.Type))
	if err := p.nc.Publish(subject, b); err != nil {
		return fmt.Errorf("position.NATSEvents.Publish: %w", err)
	}
	return nil
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// Tokens cannot contain spaces, wildcards or dots.
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
