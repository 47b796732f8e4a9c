// Package schedule computes when a recurring appointment next takes place.
package schedule

import (
	"time"

	"github.com/pkordes/little-escape/internal/domain"
)

// scanDays bounds the search for the next matching weekday.
const scanDays = 14

// NextOccurrence returns the first instant strictly after now that falls on
// day at the slot's start hour, in now's location. It returns now unchanged
// when no match is found within two weeks, which only happens for invalid input.
func NextOccurrence(day domain.Day, slot domain.TimeSlot, now time.Time) time.Time {
	if !day.Valid() || !slot.Valid() {
		return now
	}

	y, m, d := now.Date()
	for i := 0; i < scanDays; i++ {
		candidate := time.Date(y, m, d+i, slot.StartHour(), 0, 0, 0, now.Location())
		if candidate.Weekday() == day.Weekday() && candidate.After(now) {
			return candidate
		}
	}
	return now
}

// Countdown is the remaining wait until an occurrence.
type Countdown struct {
	Target    time.Time
	Remaining time.Duration
}

// Due reports whether the occurrence has been reached.
func (c Countdown) Due() bool {
	return c.Remaining == 0
}

// CountdownTo returns the wait from now until target, floored at zero.
func CountdownTo(target, now time.Time) Countdown {
	return Countdown{Target: target, Remaining: max(0, target.Sub(now))}
}
