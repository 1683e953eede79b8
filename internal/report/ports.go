// Package report assembles period reports from aggregate reads of the entry store.
package report

import (
	"context"

	"spese-report/internal/core"
	"spese-report/internal/period"
)

// Store is the read side of the entry store. Every method is scoped to one user
// and joins item -> daily entry -> bill -> user. Boundaries are inclusive.
//
// Implementations must return amounts as core.Money, fold blank or NULL
// categories into core.Uncategorized and treat missing rows as zero, never as
// an error.
type Store interface {
	// CategoryTotals is ordered by amount descending, then category name.
	CategoryTotals(ctx context.Context, userID string, b period.Boundary) ([]core.CategoryTotal, error)
	// DailyTotals is ordered by date.
	DailyTotals(ctx context.Context, userID string, b period.Boundary) ([]core.DailyTotal, error)
	// DetailedDaily is ordered by date, then category.
	DetailedDaily(ctx context.Context, userID string, b period.Boundary) ([]core.DetailedDaily, error)
	MonthlyTotals(ctx context.Context, userID string, b period.Boundary) ([]core.MonthTotal, error)
	DetailedMonthly(ctx context.Context, userID string, b period.Boundary) ([]core.DetailedMonthly, error)
	QuarterlyTotals(ctx context.Context, userID string, b period.Boundary) ([]core.QuarterTotal, error)

	// IncomeForMonth returns the balance of the bill for month, or zero.
	IncomeForMonth(ctx context.Context, userID string, month core.Date) (core.Money, error)
	// IncomeForRange sums the bills whose month falls inside b.
	IncomeForRange(ctx context.Context, userID string, b period.Boundary) (core.Money, error)

	HasEntries(ctx context.Context, userID string, b period.Boundary) (bool, error)

	// DailyActivity lists every date with logged items, oldest first.
	DailyActivity(ctx context.Context, userID string) ([]core.DayActivity, error)
}
