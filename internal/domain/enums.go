package domain

import (
	"fmt"
	"strings"
	"time"
)

// Day is a day of the week on which an appointment recurs.
type Day string

const (
	Monday    Day = "MON"
	Tuesday   Day = "TUE"
	Wednesday Day = "WED"
	Thursday  Day = "THU"
	Friday    Day = "FRI"
	Saturday  Day = "SAT"
	Sunday    Day = "SUN"
)

var dayWeekdays = map[Day]time.Weekday{
	Monday:    time.Monday,
	Tuesday:   time.Tuesday,
	Wednesday: time.Wednesday,
	Thursday:  time.Thursday,
	Friday:    time.Friday,
	Saturday:  time.Saturday,
	Sunday:    time.Sunday,
}

// ParseDay converts a wire value such as "sat" or "SAT" into a Day.
func ParseDay(s string) (Day, error) {
	d := Day(strings.ToUpper(strings.TrimSpace(s)))
	if !d.Valid() {
		return "", fmt.Errorf("%w: unknown day %q", ErrValidation, s)
	}
	return d, nil
}

// Valid reports whether d is one of the seven known days.
func (d Day) Valid() bool {
	_, ok := dayWeekdays[d]
	return ok
}

// Weekday returns the time.Weekday for d. Invalid days map to Sunday;
// call Valid first when the value is untrusted.
func (d Day) Weekday() time.Weekday {
	return dayWeekdays[d]
}

// TimeSlot is the part of the day an appointment takes place in.
type TimeSlot string

const (
	Morning   TimeSlot = "MORNING"
	Afternoon TimeSlot = "AFTERNOON"
	Evening   TimeSlot = "EVENING"
	Night     TimeSlot = "NIGHT"
)

var slotHours = map[TimeSlot]int{
	Morning:   10,
	Afternoon: 14,
	Evening:   19,
	Night:     21,
}

// ParseTimeSlot converts a wire value into a TimeSlot.
func ParseTimeSlot(s string) (TimeSlot, error) {
	ts := TimeSlot(strings.ToUpper(strings.TrimSpace(s)))
	if !ts.Valid() {
		return "", fmt.Errorf("%w: unknown time slot %q", ErrValidation, s)
	}
	return ts, nil
}

// Valid reports whether ts is a known slot.
func (ts TimeSlot) Valid() bool {
	_, ok := slotHours[ts]
	return ok
}

// StartHour is the local hour at which the slot begins.
func (ts TimeSlot) StartHour() int {
	return slotHours[ts]
}

// TravelMode is how the traveller gets to the destination.
type TravelMode string

const (
	Car     TravelMode = "CAR"
	Transit TravelMode = "TRANSIT"
	Walk    TravelMode = "WALK"
	Bicycle TravelMode = "BICYCLE"
)

// ParseTravelMode converts a wire value into a TravelMode.
func ParseTravelMode(s string) (TravelMode, error) {
	m := TravelMode(strings.ToUpper(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("%w: unknown travel mode %q", ErrValidation, s)
	}
	return m, nil
}

// Valid reports whether m is a known mode.
func (m TravelMode) Valid() bool {
	switch m {
	case Car, Transit, Walk, Bicycle:
		return true
	}
	return false
}

// Stage is the position of a trip in its lifecycle.
type Stage string

const (
	StageCreate           Stage = "CREATE"
	StagePrepOrigin       Stage = "PREP_ORIGIN"
	StagePrepItinerary    Stage = "PREP_ITINERARY"
	StageScheduleRevealed Stage = "SCHEDULE_REVEALED"
	StageTodayRevealed    Stage = "TODAY_REVEALED"
	StageRunning          Stage = "RUNNING"
	StageReview           Stage = "REVIEW"
)

// CompletionMode selects how a run derives its arrival time.
type CompletionMode string

const (
	// CompletionGeofence latches arrival from the position stream.
	CompletionGeofence CompletionMode = "GEOFENCE"
	// CompletionChecklist takes arrival from the first mission marked done.
	CompletionChecklist CompletionMode = "CHECKLIST"
)

// ParseCompletionMode converts a wire value into a CompletionMode.
// An empty string yields the zero value so callers can apply their default.
func ParseCompletionMode(s string) (CompletionMode, error) {
	if strings.TrimSpace(s) == "" {
		return "", nil
	}
	m := CompletionMode(strings.ToUpper(strings.TrimSpace(s)))
	if m != CompletionGeofence && m != CompletionChecklist {
		return "", fmt.Errorf("%w: unknown completion mode %q", ErrValidation, s)
	}
	return m, nil
}

// LiveStatus describes the health of a run's position stream.
type LiveStatus string

const (
	LiveIdle     LiveStatus = "IDLE"
	LiveWatching LiveStatus = "WATCHING"
	LiveDenied   LiveStatus = "DENIED"
	LiveError    LiveStatus = "ERROR"
	LiveStopped  LiveStatus = "STOPPED"
)
