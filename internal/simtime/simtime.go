// Package simtime models an agent's notion of "now" for simulations.
//
// A SimulationTime is a closed sum over two mutually exclusive modes:
// calendar mode wraps a timezone-aware timestamp normalized to UTC, and
// round mode carries an abstract (day, hour) pair for simulations that do
// not map onto real wall-clock time. Exactly one mode is ever populated.
package simtime

import (
	"fmt"
	"time"

	"github.com/nidhogg/ghostkg/internal/kgerr"
)

const hoursPerDay = 24

// SimulationTime is a point in simulated time, in calendar or round mode.
// The zero value is invalid; construct via FromTime, FromRound, or Parse.
type SimulationTime struct {
	calendar time.Time
	round    bool
	day      int
	hour     int
}

// FromTime builds a calendar-mode time. The timestamp is normalized to
// UTC; a zero-location timestamp is treated as already being UTC.
func FromTime(t time.Time) SimulationTime {
	return SimulationTime{calendar: t.UTC()}
}

// FromRound builds a round-mode time. Day counts from 1, hour is [0, 23].
func FromRound(day, hour int) (SimulationTime, error) {
	if day < 1 {
		return SimulationTime{}, kgerr.Validationf("simtime: day must be >= 1, got %d", day)
	}
	if hour < 0 || hour > 23 {
		return SimulationTime{}, kgerr.Validationf("simtime: hour must be in [0, 23], got %d", hour)
	}
	return SimulationTime{round: true, day: day, hour: hour}, nil
}

// Now returns the current wall-clock time in calendar mode.
func Now() SimulationTime {
	return FromTime(time.Now())
}

// Parse converts the accepted input shapes into a SimulationTime:
// a time.Time, a [2]int (day, hour) pair, or an existing SimulationTime
// (returned as-is). Anything else is a validation error.
func Parse(input any) (SimulationTime, error) {
	switch v := input.(type) {
	case SimulationTime:
		if !v.IsCalendar() && !v.IsRound() {
			return SimulationTime{}, kgerr.Validationf("simtime: zero SimulationTime")
		}
		return v, nil
	case time.Time:
		return FromTime(v), nil
	case [2]int:
		return FromRound(v[0], v[1])
	default:
		return SimulationTime{}, kgerr.Validationf(
			"simtime: unsupported time input %T (want time.Time, [2]int, or SimulationTime)", input)
	}
}

// IsCalendar reports whether the value is in calendar mode.
func (t SimulationTime) IsCalendar() bool { return !t.round && !t.calendar.IsZero() }

// IsRound reports whether the value is in round mode.
func (t SimulationTime) IsRound() bool { return t.round }

// Time returns the calendar timestamp; ok is false in round mode.
func (t SimulationTime) Time() (time.Time, bool) {
	if t.round || t.calendar.IsZero() {
		return time.Time{}, false
	}
	return t.calendar, true
}

// Round returns the (day, hour) pair; ok is false in calendar mode.
func (t SimulationTime) Round() (day, hour int, ok bool) {
	if !t.round {
		return 0, 0, false
	}
	return t.day, t.hour, true
}

// Equal reports mode-and-value equality. Values in different modes are
// never equal.
func (t SimulationTime) Equal(other SimulationTime) bool {
	if t.round != other.round {
		return false
	}
	if t.round {
		return t.day == other.day && t.hour == other.hour
	}
	return t.calendar.Equal(other.calendar)
}

func (t SimulationTime) String() string {
	if t.round {
		return fmt.Sprintf("SimulationTime(day=%d, hour=%d)", t.day, t.hour)
	}
	return fmt.Sprintf("SimulationTime(%s)", t.calendar.Format(time.RFC3339))
}

// ElapsedDays returns the fractional days between lastReview and now.
//
// Calendar mode computes the difference exactly and clamps negatives to 0.
// Round mode has no calendar projection, so elapsed time is not computable;
// the fallback is 0 days (a same-day review). That is a deliberate
// conservative approximation, not a correctness guarantee: memories never
// look older than they are in pure round-based simulations.
func (t SimulationTime) ElapsedDays(lastReview time.Time) float64 {
	now, ok := t.Time()
	if !ok {
		return 0
	}
	days := now.Sub(lastReview.UTC()).Seconds() / 86400
	if days < 0 {
		return 0
	}
	return days
}

// RoundsBetween returns elapsed hours between two round-mode values, or
// false when either side is calendar mode. Used by stores that filter on
// simulated recency without a calendar projection.
func RoundsBetween(from, to SimulationTime) (hours int, ok bool) {
	if !from.round || !to.round {
		return 0, false
	}
	return (to.day-from.day)*hoursPerDay + (to.hour - from.hour), true
}
