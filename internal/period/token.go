// Package period turns loosely formatted period tokens into exact calendar
// boundaries for the four report granularities.
package period

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidPeriod is matched by every token parsing failure.
var ErrInvalidPeriod = errors.New("invalid period")

// InvalidPeriodError carries the rejected token back to the caller.
type InvalidPeriodError struct {
	Token  string
	Reason string
}

func (e *InvalidPeriodError) Error() string {
	return fmt.Sprintf("invalid period %q: %s", e.Token, e.Reason)
}

func (e *InvalidPeriodError) Is(target error) bool {
	return target == ErrInvalidPeriod
}

// TokenKind tags which shape a Token was parsed from.
type TokenKind int

const (
	FullDate TokenKind = iota + 1
	YearMonth
	Year
	YearQuarter
)

func (k TokenKind) String() string {
	switch k {
	case FullDate:
		return "full_date"
	case YearMonth:
		return "year_month"
	case Year:
		return "year"
	case YearQuarter:
		return "year_quarter"
	default:
		return "unknown"
	}
}

// Token is a parsed period token. Only the fields relevant to Kind are set.
type Token struct {
	Kind    TokenKind
	Year    int
	Month   int
	Day     int
	Quarter int
	Raw     string
}

var (
	fullDateRe    = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})$`)
	yearMonthRe   = regexp.MustCompile(`^(\d{4})-(\d{2})$`)
	yearRe        = regexp.MustCompile(`^(\d{4})$`)
	yearQuarterRe = regexp.MustCompile(`^(\d{4})-Q([1-4])$`)
)

// ParseToken accepts YYYY-MM-DD, YYYY-MM, YYYY and YYYY-Qn.
func ParseToken(raw string) (Token, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Token{}, &InvalidPeriodError{Token: raw, Reason: "empty period"}
	}

	if m := yearQuarterRe.FindStringSubmatch(s); m != nil {
		return Token{Kind: YearQuarter, Year: atoi(m[1]), Quarter: atoi(m[2]), Raw: raw}, nil
	}
	if m := yearRe.FindStringSubmatch(s); m != nil {
		return Token{Kind: Year, Year: atoi(m[1]), Raw: raw}, nil
	}
	if m := yearMonthRe.FindStringSubmatch(s); m != nil {
		month := atoi(m[2])
		if month < 1 || month > 12 {
			return Token{}, &InvalidPeriodError{Token: raw, Reason: "month out of range"}
		}
		return Token{Kind: YearMonth, Year: atoi(m[1]), Month: month, Raw: raw}, nil
	}
	if m := fullDateRe.FindStringSubmatch(s); m != nil {
		y, mo, d := atoi(m[1]), atoi(m[2]), atoi(m[3])
		if mo < 1 || mo > 12 {
			return Token{}, &InvalidPeriodError{Token: raw, Reason: "month out of range"}
		}
		// time.Date normalizes overflow, so a round trip exposes impossible dates.
		t := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, time.UTC)
		if t.Year() != y || int(t.Month()) != mo || t.Day() != d {
			return Token{}, &InvalidPeriodError{Token: raw, Reason: "not a calendar date"}
		}
		return Token{Kind: FullDate, Year: y, Month: mo, Day: d, Raw: raw}, nil
	}

	return Token{}, &InvalidPeriodError{Token: raw, Reason: "expected YYYY-MM-DD, YYYY-MM, YYYY or YYYY-Qn"}
}

// Anchor returns the canonical date the token stands for.
func (t Token) Anchor() time.Time {
	switch t.Kind {
	case FullDate:
		return time.Date(t.Year, time.Month(t.Month), t.Day, 0, 0, 0, 0, time.UTC)
	case YearMonth:
		return time.Date(t.Year, time.Month(t.Month), 1, 0, 0, 0, 0, time.UTC)
	case Year:
		return time.Date(t.Year, time.January, 1, 0, 0, 0, 0, time.UTC)
	case YearQuarter:
		return time.Date(t.Year, time.Month((t.Quarter-1)*3+1), 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Time{}
	}
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
