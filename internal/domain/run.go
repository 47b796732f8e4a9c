package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// POI is one place in the candidate pool. Name stays server-side until the
// traveller accepts the place; Subtitle is the teaser shown on candidates.
type POI struct {
	ID        uuid.UUID
	Name      string
	Subtitle  string
	Point     Coordinate
	Active    bool
	CreatedAt time.Time
}

// Run is the persisted record of an accepted and completed trip.
type Run struct {
	ID              uuid.UUID
	AppointmentID   uuid.UUID
	CandidateID     uuid.UUID
	TravelMode      TravelMode
	CompletionMode  CompletionMode
	Origin          Coordinate
	Destination     Coordinate
	DestinationName string
	Mission         string
	Payload         CompletionPayload
	Review          *Review
	CreatedAt       time.Time
}

// Review is the traveller's feedback on a completed run.
type Review struct {
	Rating     int
	Comment    string
	Tags       []string
	ReviewedAt time.Time
}

// Validate enforces the rating range and comment length.
func (r Review) Validate() error {
	if r.Rating < 1 || r.Rating > 5 {
		return fmt.Errorf("%w: rating must be between 1 and 5", ErrValidation)
	}
	if len(strings.TrimSpace(r.Comment)) > 1000 {
		return fmt.Errorf("%w: comment must be at most 1000 characters", ErrValidation)
	}
	return nil
}
