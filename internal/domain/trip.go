// Package domain contains the core data types for the Little Escape service.
// It depends only on the standard library and uuid, and is imported by every
// other internal package.
package domain

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Coordinate is a WGS84 point in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Validate reports an ErrValidation when the point is outside the valid range.
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Lat) || c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("%w: lat must be within [-90, 90]", ErrValidation)
	}
	if math.IsNaN(c.Lng) || c.Lng < -180 || c.Lng > 180 {
		return fmt.Errorf("%w: lng must be within [-180, 180]", ErrValidation)
	}
	return nil
}

// Appointment is the recurring slot a trip is planned for. It never changes
// after creation.
type Appointment struct {
	ID          uuid.UUID `json:"id"`
	Day         Day       `json:"day"`
	TimeSlot    TimeSlot  `json:"time_slot"`
	DurationMin int       `json:"duration_min"`
	CreatedAt   time.Time `json:"created_at"`
}

// Validate checks the structural rules every appointment must satisfy.
func (a Appointment) Validate() error {
	if !a.Day.Valid() {
		return fmt.Errorf("%w: unknown day %q", ErrValidation, a.Day)
	}
	if !a.TimeSlot.Valid() {
		return fmt.Errorf("%w: unknown time slot %q", ErrValidation, a.TimeSlot)
	}
	if a.DurationMin <= 0 {
		return fmt.Errorf("%w: duration_min must be positive", ErrValidation)
	}
	return nil
}

// TravelLine is one labelled leg of a travel estimate.
type TravelLine struct {
	Label string `json:"label"`
	Min   int    `json:"min"`
}

// TravelBreakdown is the estimated travel time to a candidate.
// TotalMin always equals the sum of Lines.
type TravelBreakdown struct {
	TotalMin int          `json:"total_min"`
	Lines    []TravelLine `json:"lines"`
	Summary  string       `json:"summary"`
}

// Candidate is a ranked destination. It deliberately carries no place name.
type Candidate struct {
	ID             uuid.UUID       `json:"id"`
	Point          Coordinate      `json:"point"`
	Subtitle       string          `json:"subtitle,omitempty"`
	ItineraryLines []string        `json:"itinerary_lines"`
	Travel         TravelBreakdown `json:"travel"`
}

// Prep records the itinerary choices made for an appointment.
type Prep struct {
	AppointmentID uuid.UUID  `json:"appointment_id"`
	TravelMode    TravelMode `json:"travel_mode"`
	Origin        Coordinate `json:"origin"`
	PreparedAt    time.Time  `json:"prepared_at"`
}

// Acceptance is the traveller's commitment to one candidate.
type Acceptance struct {
	CandidateID     uuid.UUID      `json:"candidate_id"`
	AcceptedAt      time.Time      `json:"accepted_at"`
	Origin          Coordinate     `json:"origin"`
	Destination     Coordinate     `json:"destination"`
	DestinationName string         `json:"destination_name,omitempty"`
	ItineraryLines  []string       `json:"itinerary_lines"`
	CompletionMode  CompletionMode `json:"completion_mode"`
}

// Mission is an itinerary line the traveller can tick off during a run.
type Mission struct {
	Text   string     `json:"text"`
	DoneAt *time.Time `json:"done_at,omitempty"`
}

// CompletionPayload is the immutable record produced when a run completes.
type CompletionPayload struct {
	AcceptedAt  time.Time  `json:"accepted_at"`
	ArrivedAt   *time.Time `json:"arrived_at"`
	CompletedAt time.Time  `json:"completed_at"`
	TotalMs     int64      `json:"total_ms"`
	ToArriveMs  *int64     `json:"to_arrive_ms"`
}

// NewCompletionPayload derives the durations from the three instants.
// arrivedAt may be nil when arrival was never observed.
func NewCompletionPayload(acceptedAt time.Time, arrivedAt *time.Time, completedAt time.Time) CompletionPayload {
	p := CompletionPayload{
		AcceptedAt:  acceptedAt,
		CompletedAt: completedAt,
		TotalMs:     completedAt.Sub(acceptedAt).Milliseconds(),
	}
	if arrivedAt != nil {
		at := *arrivedAt
		ms := at.Sub(acceptedAt).Milliseconds()
		p.ArrivedAt = &at
		p.ToArriveMs = &ms
	}
	return p
}
