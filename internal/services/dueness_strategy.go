// Package services provides the scheduling side of report delivery.
//
// This file implements the Strategy Pattern for report batch triggers.
// Each granularity has its own trigger that knows when, in wall-clock terms,
// the batch for the previous full period should go out.

package services

import (
	"fmt"
	"time"

	"spese-report/internal/period"
)

// Trigger is the strategy interface for batch firing times.
type Trigger interface {
	// LastFiring returns the most recent scheduled instant at or before now,
	// in now's location.
	LastFiring(now time.Time) time.Time
}

// DailyTrigger fires every day at Hour.
type DailyTrigger struct {
	Hour int
}

func (t DailyTrigger) LastFiring(now time.Time) time.Time {
	y, m, d := now.Date()
	candidate := time.Date(y, m, d, t.Hour, 0, 0, 0, now.Location())
	if candidate.After(now) {
		candidate = candidate.AddDate(0, 0, -1)
	}
	return candidate
}

// WeeklyTrigger fires every week on Weekday at Hour.
type WeeklyTrigger struct {
	Weekday time.Weekday
	Hour    int
}

func (t WeeklyTrigger) LastFiring(now time.Time) time.Time {
	y, m, d := now.Date()
	candidate := time.Date(y, m, d, t.Hour, 0, 0, 0, now.Location())
	offset := (int(now.Weekday()) - int(t.Weekday) + 7) % 7
	candidate = candidate.AddDate(0, 0, -offset)
	if candidate.After(now) {
		candidate = candidate.AddDate(0, 0, -7)
	}
	return candidate
}

// MonthlyTrigger fires on Day of every month at Hour. Day must be 1..28.
type MonthlyTrigger struct {
	Day  int
	Hour int
}

func (t MonthlyTrigger) LastFiring(now time.Time) time.Time {
	y, m, _ := now.Date()
	candidate := time.Date(y, m, t.Day, t.Hour, 0, 0, 0, now.Location())
	if candidate.After(now) {
		candidate = time.Date(y, m-1, t.Day, t.Hour, 0, 0, 0, now.Location())
	}
	return candidate
}

// QuarterlyTrigger fires on Day of the first month of each quarter at Hour.
type QuarterlyTrigger struct {
	Day  int
	Hour int
}

func (t QuarterlyTrigger) LastFiring(now time.Time) time.Time {
	y, m, _ := now.Date()
	first := time.Month((int(m)-1)/3*3 + 1)
	candidate := time.Date(y, first, t.Day, t.Hour, 0, 0, 0, now.Location())
	if candidate.After(now) {
		candidate = time.Date(y, first-3, t.Day, t.Hour, 0, 0, 0, now.Location())
	}
	return candidate
}

// YearlyTrigger fires once a year on Month/Day at Hour.
type YearlyTrigger struct {
	Month time.Month
	Day   int
	Hour  int
}

func (t YearlyTrigger) LastFiring(now time.Time) time.Time {
	y := now.Year()
	candidate := time.Date(y, t.Month, t.Day, t.Hour, 0, 0, 0, now.Location())
	if candidate.After(now) {
		candidate = time.Date(y-1, t.Month, t.Day, t.Hour, 0, 0, 0, now.Location())
	}
	return candidate
}

// DefaultTriggers returns a fresh copy of the standard schedule: weekly on
// Monday 09:00, monthly on the 2nd 10:00, quarterly on the 2nd of
// Jan/Apr/Jul/Oct 11:00, yearly on January 10th 12:00.
func DefaultTriggers() map[period.Granularity]Trigger {
	return map[period.Granularity]Trigger{
		period.Week:    WeeklyTrigger{Weekday: time.Monday, Hour: 9},
		period.Month:   MonthlyTrigger{Day: 2, Hour: 10},
		period.Quarter: QuarterlyTrigger{Day: 2, Hour: 11},
		period.Yearly:  YearlyTrigger{Month: time.January, Day: 10, Hour: 12},
	}
}

// GetTrigger returns the trigger registered for g in triggers.
func GetTrigger(triggers map[period.Granularity]Trigger, g period.Granularity) (Trigger, error) {
	t, ok := triggers[g]
	if !ok {
		return nil, fmt.Errorf("no trigger for granularity: %s", g)
	}
	return t, nil
}

// TargetPeriod is the period a batch fired at firing reports on: the full
// period of g before the one containing the firing date.
func TargetPeriod(r period.Resolver, g period.Granularity, firing time.Time) period.Boundary {
	return r.ResolveDate(firing, g).Previous
}
