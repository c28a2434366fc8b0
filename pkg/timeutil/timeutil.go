// Package timeutil provides calendar-day utilities for streak tracking.
// A day is always read in the location of the time it is computed from, so
// the clock that produces "now" decides which calendar every action uses.
// No external dependencies - uses only standard library.
package timeutil

import (
	"fmt"
	"time"
)

// Date layout used on the wire and in storage.
const FormatDate = "2006-01-02"

// LoadLocation resolves an IANA name. An empty name means UTC.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("timeutil: load location %q: %w", name, err)
	}
	return loc, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// Clock
// ══════════════════════════════════════════════════════════════════════════════

// Clock abstracts the current time so day boundaries can be tested. The
// location of the returned time is the location calendar days are counted in.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in Loc. A nil Loc means UTC.
type SystemClock struct {
	Loc *time.Location
}

// Now returns the current time in the clock's location.
func (c SystemClock) Now() time.Time {
	if c.Loc == nil {
		return time.Now().UTC()
	}
	return time.Now().In(c.Loc)
}

// FixedClock always returns the same instant. Used by tests and replays.
type FixedClock struct {
	T time.Time
}

// Now returns the fixed instant.
func (c FixedClock) Now() time.Time {
	return c.T
}

// Location reports the location c counts days in.
func Location(c Clock) *time.Location {
	return c.Now().Location()
}

// ══════════════════════════════════════════════════════════════════════════════
// Calendar days
// ══════════════════════════════════════════════════════════════════════════════

// StartOfDay returns midnight of the calendar day of t in t's location.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// DayIn rebuilds the calendar date of d as midnight in loc, ignoring the
// location d carries. Storage drivers hand DATE columns back as UTC midnight.
func DayIn(d time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
}

// civilDay maps t, read in loc, to a UTC midnight with the same calendar
// date, so that subtracting two of them is free of DST shifts.
func civilDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the signed number of calendar days from t1 to t2,
// both read in t2's location. It is positive when t2 is on a later day.
func DaysBetween(t1, t2 time.Time) int {
	loc := t2.Location()
	return int(civilDay(t2, loc).Sub(civilDay(t1, loc)) / (24 * time.Hour))
}

// IsSameDay checks if two times fall on the same calendar day.
func IsSameDay(t1, t2 time.Time) bool {
	return DaysBetween(t1, t2) == 0
}

// IsConsecutiveDay checks if t2 is the calendar day after t1.
func IsConsecutiveDay(t1, t2 time.Time) bool {
	return DaysBetween(t1, t2) == 1
}

// DaysSince returns full calendar days elapsed from t until now, never negative.
func DaysSince(t time.Time, now time.Time) int {
	d := DaysBetween(t, now)
	if d < 0 {
		return 0
	}
	return d
}

// ══════════════════════════════════════════════════════════════════════════════
// Formatting
// ══════════════════════════════════════════════════════════════════════════════

// FormatDateStr formats the calendar day of t, in t's location, as YYYY-MM-DD.
func FormatDateStr(t time.Time) string {
	return t.Format(FormatDate)
}

// ParseDate parses YYYY-MM-DD as midnight in loc. A nil loc means UTC.
func ParseDate(value string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	return time.ParseInLocation(FormatDate, value, loc)
}
