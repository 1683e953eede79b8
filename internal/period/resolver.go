package period

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"spese-report/internal/core"
)

// Granularity is the reporting unit.
type Granularity string

const (
	Week    Granularity = "weekly"
	Month   Granularity = "monthly"
	Quarter Granularity = "quarterly"
	Yearly  Granularity = "yearly"
)

// All lists the granularities in ascending size.
var All = []Granularity{Week, Month, Quarter, Yearly}

var ErrInvalidGranularity = errors.New("invalid granularity")

// ParseGranularity accepts both "week" and "weekly" style names.
func ParseGranularity(s string) (Granularity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "week", "weekly":
		return Week, nil
	case "month", "monthly":
		return Month, nil
	case "quarter", "quarterly":
		return Quarter, nil
	case "year", "yearly":
		return Yearly, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidGranularity, s)
}

func (g Granularity) Valid() bool {
	switch g {
	case Week, Month, Quarter, Yearly:
		return true
	}
	return false
}

// Boundary is an inclusive [Start, End] calendar range.
type Boundary struct {
	Start core.Date
	End   core.Date
}

// Contains reports whether d falls inside the boundary.
func (b Boundary) Contains(d core.Date) bool {
	return !d.Before(b.Start.Time) && !d.After(b.End.Time)
}

// Days returns the number of calendar days covered.
func (b Boundary) Days() int {
	return int(b.End.Sub(b.Start.Time).Hours()/24) + 1
}

func (b Boundary) String() string {
	return b.Start.String() + ".." + b.End.String()
}

// Resolution is the outcome of resolving a token for a granularity.
type Resolution struct {
	Granularity Granularity
	Anchor      core.Date
	Current     Boundary
	Previous    Boundary
}

// Resolver computes calendar boundaries. The zero value starts weeks on Sunday.
type Resolver struct {
	WeekStart time.Weekday
}

func NewResolver(weekStart time.Weekday) Resolver {
	return Resolver{WeekStart: weekStart}
}

// Resolve parses token and derives the current and previous boundaries.
func (r Resolver) Resolve(token string, g Granularity) (Resolution, error) {
	if !g.Valid() {
		return Resolution{}, fmt.Errorf("%w: %q", ErrInvalidGranularity, g)
	}
	t, err := ParseToken(token)
	if err != nil {
		return Resolution{}, err
	}
	return r.ResolveDate(t.Anchor(), g), nil
}

// ResolveDate is the convenience overload for callers that already hold a date.
func (r Resolver) ResolveDate(anchor time.Time, g Granularity) Resolution {
	a := core.DateOf(anchor)
	return Resolution{
		Granularity: g,
		Anchor:      a,
		Current:     r.BoundaryFor(a.Time, g),
		Previous:    r.BoundaryFor(Shift(a.Time, g, -1), g),
	}
}

// BoundaryFor returns the calendar period of granularity g containing anchor.
func (r Resolver) BoundaryFor(anchor time.Time, g Granularity) Boundary {
	y, m, d := anchor.Date()
	var start, end time.Time
	switch g {
	case Week:
		day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		offset := (int(day.Weekday()) - int(r.WeekStart) + 7) % 7
		start = day.AddDate(0, 0, -offset)
		end = start.AddDate(0, 0, 6)
	case Month:
		start = time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
		end = start.AddDate(0, 1, -1)
	case Quarter:
		start = time.Date(y, quarterStartMonth(m), 1, 0, 0, 0, 0, time.UTC)
		end = start.AddDate(0, 3, -1)
	default:
		start = time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC)
		end = time.Date(y, time.December, 31, 0, 0, 0, 0, time.UTC)
	}
	return Boundary{Start: core.Date{Time: start}, End: core.Date{Time: end}}
}

// Shift moves anchor by n units of g. Month, quarter and year shifts first move
// the anchor to the start of its period, so day-of-month overflow never carries
// into the result.
func Shift(anchor time.Time, g Granularity, n int) time.Time {
	y, m, d := anchor.Date()
	switch g {
	case Week:
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 7*n)
	case Month:
		return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC).AddDate(0, n, 0)
	case Quarter:
		return time.Date(y, quarterStartMonth(m), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 3*n, 0)
	default:
		return time.Date(y+n, time.January, 1, 0, 0, 0, 0, time.UTC)
	}
}

func quarterStartMonth(m time.Month) time.Month {
	return time.Month((int(m)-1)/3*3 + 1)
}
