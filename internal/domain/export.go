package domain

import "time"

// ExportRow is one completed run in the flat export.
// Appointment fields are repeated on every row; review fields are zero when
// the run was never reviewed.
//
// Tags holds slugs ordered alphabetically. CSV callers join them with "|".
type ExportRow struct {
	RunID         string
	AppointmentID string
	Day           string
	TimeSlot      string
	DurationMin   int

	TravelMode      string
	DestinationName string
	AcceptedAt      time.Time
	ArrivedAt       *time.Time
	CompletedAt     time.Time
	TotalMs         int64
	ToArriveMs      *int64

	Rating  *int
	Comment string
	Tags    []string
}
