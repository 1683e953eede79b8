package report

import (
	"spese-report/internal/core"
	"spese-report/internal/insights"
	"spese-report/internal/period"
)

// Report is the assembled, period-scoped rollup returned to every caller.
// Optional blocks are pointers and are omitted from JSON when nil. Slices are
// never nil so they always encode as arrays.
type Report struct {
	Type   period.Granularity `json:"type"`
	Period PeriodInfo         `json:"period"`
	*Income
	TotalExpense core.Money           `json:"totalExpense"`
	Category     []core.CategoryTotal `json:"category"`

	*DailyBreakdown
	*YearlyBreakdown

	HasPreviousData bool               `json:"hasPreviousData"`
	PreviousWeek    *PreviousPeriod    `json:"previousWeek,omitempty"`
	PreviousMonth   *PreviousPeriod    `json:"previousMonth,omitempty"`
	PreviousQuarter *PreviousPeriod    `json:"previousQuarter,omitempty"`
	PreviousYear    *PreviousPeriod    `json:"previousYear,omitempty"`
	Insights        []insights.Insight `json:"insights"`
}

// Previous returns whichever previous-period block is set, or nil.
func (r *Report) Previous() *PreviousPeriod {
	switch {
	case r.PreviousWeek != nil:
		return r.PreviousWeek
	case r.PreviousMonth != nil:
		return r.PreviousMonth
	case r.PreviousQuarter != nil:
		return r.PreviousQuarter
	default:
		return r.PreviousYear
	}
}

// PeriodInfo describes the calendar range a report covers.
type PeriodInfo struct {
	Label    string    `json:"label"`
	Value    string    `json:"value"`
	Start    core.Date `json:"start"`
	End      core.Date `json:"end"`
	Year     int       `json:"year"`
	Month    int       `json:"month,omitempty"`
	Quarter  int       `json:"quarter,omitempty"`
	Months   []string  `json:"months,omitempty"`
	Quarters []string  `json:"quarters,omitempty"`
}

// Income is present for monthly, quarterly and yearly reports only.
type Income struct {
	TotalIncome core.Money `json:"totalIncome"`
	Savings     core.Money `json:"savings"`
	SavingsRate int        `json:"savingsRate"`
}

// DailyBreakdown is present for weekly, monthly and quarterly reports.
type DailyBreakdown struct {
	Daily         []core.DailyTotal    `json:"daily"`
	DetailedDaily []core.DetailedDaily `json:"detailed_daily"`
}

// YearlyBreakdown is present for yearly reports.
type YearlyBreakdown struct {
	Monthly         []core.MonthTotal      `json:"monthly"`
	Quarterly       []core.QuarterTotal    `json:"quarterly"`
	DetailedMonthly []core.DetailedMonthly `json:"detailed_monthly"`
}

// PreviousPeriod is the comparison block for the immediately preceding period.
type PreviousPeriod struct {
	Period PeriodInfo `json:"period"`
	*Income
	TotalExpense core.Money `json:"totalExpense"`
	// ExpenseChange is the integer percent change of the current expense against
	// this one, nil when this period spent nothing.
	ExpenseChange *int                 `json:"expenseChange"`
	Category      []core.CategoryTotal `json:"category"`

	*DailyBreakdown
	*YearlyBreakdown
}
