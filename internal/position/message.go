// Package position carries device position fixes to running trips, either
// in-process (HTTP and WebSocket ingestion) or over NATS.
package position

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pkordes/little-escape/internal/domain"
	"github.com/pkordes/little-escape/internal/tracker"
)

// ErrorPermissionDenied is the wire value a device sends when location
// sharing was refused.
const ErrorPermissionDenied = "permission_denied"

// Message is the JSON shape of one device report. Either the coordinates or
// Error is set.
type Message struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	AccuracyM *float64  `json:"accuracy_m,omitempty"`
	At        time.Time `json:"at,omitzero"`
	Error     string    `json:"error,omitempty"`
}

// Decode parses a message. A missing timestamp is filled with now.
func Decode(b []byte, now time.Time) (Message, error) {
	var m Message
	if err := json.Unmarshal(b, &m); err != nil {
		return Message{}, fmt.Errorf("position.Decode: %w", err)
	}
	if m.At.IsZero() {
		m.At = now
	}
	return m, nil
}

// Fault returns the stream error the message reports, or nil for a fix.
func (m Message) Fault() error {
	switch m.Error {
	case "":
		return nil
	case ErrorPermissionDenied:
		return tracker.ErrPermissionDenied
	default:
		return errors.New(m.Error)
	}
}

// Sample converts a fix into a tracker sample after validating the point.
func (m Message) Sample() (tracker.Sample, error) {
	p := domain.Coordinate{Lat: m.Lat, Lng: m.Lng}
	if err := p.Validate(); err != nil {
		return tracker.Sample{}, err
	}
	if m.AccuracyM != nil && *m.AccuracyM < 0 {
		return tracker.Sample{}, fmt.Errorf("%w: accuracy_m must not be negative", domain.ErrValidation)
	}
	return tracker.Sample{Point: p, AccuracyM: m.AccuracyM, At: m.At}, nil
}

// Deliver routes m to the matching callback.
func (m Message) Deliver(onSample func(tracker.Sample), onError func(error)) {
	if err := m.Fault(); err != nil {
		onError(err)
		return
	}
	s, err := m.Sample()
	if err != nil {
		onError(err)
		return
	}
	onSample(s)
}
