// Package domain holds the pure types of the gamification cycle engine.
// Cycle identity, quest state, streaks, leagues and experiments live here;
// no I/O, no storage, no clocks — every function takes an explicit instant.
package domain

import (
	"fmt"
	"time"
)

// CycleKeys identifies the daily/weekly/monthly accounting periods that a
// single wall-clock instant belongs to.
type CycleKeys struct {
	Daily   string `json:"daily"`
	Weekly  string `json:"weekly"`
	Monthly string `json:"monthly"`
}

// DateKey formats the calendar date of t as YYYY-MM-DD in t's location.
// Every date comparison in the engine goes through this format.
func DateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// WeekStartKey returns the date key of the Monday on or before t.
// The weekly cycle is anchored on a concrete Monday date rather than an ISO
// week number, so year boundaries cannot produce ambiguous identifiers.
func WeekStartKey(t time.Time) string {
	daysSinceMonday := (int(t.Weekday()) + 6) % 7
	monday := t.AddDate(0, 0, -daysSinceMonday)
	return DateKey(monday)
}

// MonthKey formats the calendar month of t as YYYY-MM.
func MonthKey(t time.Time) string {
	return t.Format("2006-01")
}

// CycleKeysAt resolves all three period identifiers for t.
func CycleKeysAt(t time.Time) CycleKeys {
	return CycleKeys{
		Daily:   DateKey(t),
		Weekly:  WeekStartKey(t),
		Monthly: MonthKey(t),
	}
}

// CycleIDFor resolves the cycle identifier of a single period at t.
func CycleIDFor(period QuestPeriod, t time.Time) string {
	switch period {
	case PeriodWeekly:
		return WeekStartKey(t)
	case PeriodMonthly:
		return MonthKey(t)
	default:
		return DateKey(t)
	}
}

// DayIndex converts a YYYY-MM-DD date key into a count of days since the
// Unix epoch. Parsing in UTC keeps date arithmetic independent of the
// device timezone.
func DayIndex(dateKey string) (int, error) {
	t, err := time.ParseInLocation("2006-01-02", dateKey, time.UTC)
	if err != nil {
		return 0, fmt.Errorf("parse date key %q: %w", dateKey, err)
	}
	return int(t.Unix() / 86400), nil
}

// DaysBetween returns to − from in whole days. Malformed keys count as a
// zero-day distance; callers treat that as "no gap" rather than failing.
func DaysBetween(from, to string) int {
	a, err := DayIndex(from)
	if err != nil {
		return 0
	}
	b, err := DayIndex(to)
	if err != nil {
		return 0
	}
	return b - a
}

// ISOWeekID formats t as "YYYY-Www". This is only the offline fallback for
// week identity — the ranking authority's week id is the source of truth.
func ISOWeekID(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}
