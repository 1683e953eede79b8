package sheets

import (
	"context"
	"time"

	"spese-report/internal/core"
	"spese-report/internal/report"
)

// SummaryRow is the one-line digest of a delivered report.
type SummaryRow struct {
	UserID      string
	Granularity string
	Period      string
	Label       string
	// Income, Savings and SavingsRate stay zero for weekly reports.
	Income      core.Money
	Expense     core.Money
	Savings     core.Money
	SavingsRate int
	TopCategory string
	ExportedAt  time.Time
}

// Ports for outbound adapters.
type (
	ReportExporter interface {
		AppendSummary(ctx context.Context, row SummaryRow) (rowRef string, err error)
	}
)

// SummaryFromReport flattens rep for export.
func SummaryFromReport(userID string, rep *report.Report, now time.Time) SummaryRow {
	row := SummaryRow{
		UserID:      userID,
		Granularity: string(rep.Type),
		Period:      rep.Period.Value,
		Label:       rep.Period.Label,
		Expense:     rep.TotalExpense,
		ExportedAt:  now.UTC(),
	}
	if rep.Income != nil {
		row.Income = rep.TotalIncome
		row.Savings = rep.Savings
		row.SavingsRate = rep.SavingsRate
	}
	// Category is ordered by amount descending.
	if len(rep.Category) > 0 {
		row.TopCategory = rep.Category[0].Category
	}
	return row
}
