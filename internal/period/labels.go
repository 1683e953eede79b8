package period

import (
	"fmt"
	"strconv"
	"time"

	"spese-report/internal/core"
)

// MonthLabel formats a month as "March 2024".
func MonthLabel(d core.Date) string {
	return d.Format("January 2006")
}

// QuarterLabel formats a quarter as "Q2 2024".
func QuarterLabel(d core.Date) string {
	return fmt.Sprintf("Q%d %d", core.QuarterOf(d.Month()), d.Year())
}

// QuarterMonths returns the short names of the three months of d's quarter.
func QuarterMonths(d core.Date) []string {
	start := quarterStartMonth(d.Month())
	months := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		months = append(months, (start + time.Month(i)).String()[:3])
	}
	return months
}

// YearMonths returns the twelve short month names.
func YearMonths() []string {
	return []string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}
}

// YearQuarters returns the four quarter names.
func YearQuarters() []string {
	return []string{"Q1", "Q2", "Q3", "Q4"}
}

// WeekLabel formats a week as "Mar 10 - Mar 16, 2024", showing both years
// when the week crosses a year boundary.
func WeekLabel(b Boundary) string {
	if b.Start.Year() != b.End.Year() {
		return b.Start.Format("Jan 2, 2006") + " - " + b.End.Format("Jan 2, 2006")
	}
	return b.Start.Format("Jan 2") + " - " + b.End.Format("Jan 2, 2006")
}

// Label returns the human readable name of boundary b for granularity g.
func Label(g Granularity, b Boundary) string {
	switch g {
	case Week:
		return WeekLabel(b)
	case Month:
		return MonthLabel(b.Start)
	case Quarter:
		return QuarterLabel(b.Start)
	default:
		return strconv.Itoa(b.Start.Year())
	}
}

// Value returns the canonical token that resolves back to boundary b.
func Value(g Granularity, b Boundary) string {
	switch g {
	case Week:
		return b.Start.String()
	case Month:
		return b.Start.MonthKey()
	case Quarter:
		return fmt.Sprintf("%d-Q%d", b.Start.Year(), core.QuarterOf(b.Start.Month()))
	default:
		return strconv.Itoa(b.Start.Year())
	}
}
