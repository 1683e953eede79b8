package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spese-report/internal/core"
	"spese-report/internal/period"
)

const alice = "user-1"

func marchStore() *fakeStore {
	f := newFakeStore()
	f.bill(alice, core.NewDate(2024, 3, 1), 50000)
	f.add(alice, core.NewDate(2024, 3, 2), "Food", 4000)
	f.add(alice, core.NewDate(2024, 3, 10), "Transport", 5000)
	f.add(alice, core.NewDate(2024, 3, 15), "Food", 3000)
	// another user's data never leaks in
	f.add("user-2", core.NewDate(2024, 3, 3), "Food", 999)
	return f
}

func TestMonthlyReportScenario(t *testing.T) {
	svc := NewService(marchStore(), Config{})

	r, err := svc.Monthly(context.Background(), alice, "2024-03-15")
	require.NoError(t, err)

	assert.Equal(t, period.Month, r.Type)
	assert.Equal(t, "March 2024", r.Period.Label)
	assert.Equal(t, "2024-03-01", r.Period.Start.String())
	assert.Equal(t, "2024-03-31", r.Period.End.String())
	require.NotNil(t, r.Income)
	assert.Equal(t, "50000.00", r.TotalIncome.String())
	assert.Equal(t, "12000.00", r.TotalExpense.String())
	assert.Equal(t, "38000.00", r.Savings.String())
	assert.Equal(t, 76, r.SavingsRate)

	require.Len(t, r.Category, 2)
	assert.Equal(t, "Food", r.Category[0].Category)
	assert.Equal(t, "7000.00", r.Category[0].Amount.String())
	assert.Equal(t, "Transport", r.Category[1].Category)
	assert.Equal(t, "5000.00", r.Category[1].Amount.String())

	require.NotNil(t, r.DailyBreakdown)
	assert.Len(t, r.Daily, 3)
	assert.Len(t, r.DetailedDaily, 3)
	assert.Nil(t, r.YearlyBreakdown)

	assert.False(t, r.HasPreviousData)
	assert.Nil(t, r.PreviousMonth)

	raw, err := json.Marshal(r)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.NotContains(t, decoded, "previousMonth")
	assert.Contains(t, string(raw), `"totalIncome":50000.00`)
	assert.Contains(t, string(raw), `"savingsRate":76`)
}

func TestMonthlyReportWithPreviousMonth(t *testing.T) {
	f := marchStore()
	f.bill(alice, core.NewDate(2024, 2, 1), 40000)
	f.add(alice, core.NewDate(2024, 2, 20), "", 8000)
	svc := NewService(f, Config{})

	r, err := svc.Monthly(context.Background(), alice, "2024-03")
	require.NoError(t, err)

	assert.True(t, r.HasPreviousData)
	require.NotNil(t, r.PreviousMonth)
	p := r.PreviousMonth
	assert.Equal(t, "February 2024", p.Period.Label)
	assert.Equal(t, "2024-02-29", p.Period.End.String())
	assert.Equal(t, "8000.00", p.TotalExpense.String())
	assert.Equal(t, "40000.00", p.TotalIncome.String())
	assert.Equal(t, 80, p.SavingsRate)
	require.NotNil(t, p.ExpenseChange)
	assert.Equal(t, 50, *p.ExpenseChange)
	require.Len(t, p.Category, 1)
	assert.Equal(t, core.Uncategorized, p.Category[0].Category)
	assert.Same(t, p, r.Previous())
}

func TestZeroIncomeSavingsRate(t *testing.T) {
	f := newFakeStore()
	f.add(alice, core.NewDate(2024, 5, 4), "Food", 1200)
	svc := NewService(f, Config{})

	r, err := svc.Monthly(context.Background(), alice, "2024-05")
	require.NoError(t, err)
	assert.Equal(t, "0.00", r.TotalIncome.String())
	assert.Equal(t, "-1200.00", r.Savings.String())
	assert.Equal(t, 0, r.SavingsRate)
}

func TestReportIsIdempotent(t *testing.T) {
	f := marchStore()
	f.add(alice, core.NewDate(2024, 2, 5), "Rent", 900)
	svc := NewService(f, Config{})

	for _, g := range period.All {
		t.Run(string(g), func(t *testing.T) {
			first, err := svc.Generate(context.Background(), alice, g, "2024-03-15")
			require.NoError(t, err)
			second, err := svc.Generate(context.Background(), alice, g, "2024-03-15")
			require.NoError(t, err)

			a, err := json.Marshal(first)
			require.NoError(t, err)
			b, err := json.Marshal(second)
			require.NoError(t, err)
			assert.True(t, bytes.Equal(a, b), "reports differ:\n%s\n%s", a, b)
		})
	}
}

func TestNoDataReport(t *testing.T) {
	svc := NewService(newFakeStore(), Config{})

	for _, g := range period.All {
		t.Run(string(g), func(t *testing.T) {
			r, err := svc.Generate(context.Background(), "nobody", g, "2024-06-10")
			require.NoError(t, err)
			assert.True(t, r.TotalExpense.IsZero())
			assert.Empty(t, r.Category)
			assert.Nil(t, r.Previous())

			raw, err := json.Marshal(r)
			require.NoError(t, err)
			assert.Contains(t, string(raw), `"category":[]`)
			assert.Contains(t, string(raw), `"totalExpense":0.00`)
			if g == period.Yearly {
				assert.Contains(t, string(raw), `"monthly":[]`)
			} else {
				assert.Contains(t, string(raw), `"daily":[]`)
			}
		})
	}
}

func TestWeeklyReportOmitsIncome(t *testing.T) {
	svc := NewService(marchStore(), Config{})

	r, err := svc.Weekly(context.Background(), alice, "2024-03-12")
	require.NoError(t, err)
	assert.Equal(t, "Mar 10 - Mar 16, 2024", r.Period.Label)
	assert.Nil(t, r.Income)
	assert.Equal(t, "8000.00", r.TotalExpense.String())

	raw, err := json.Marshal(r)
	require.NoError(t, err)
	for _, key := range []string{"totalIncome", "savings", "savingsRate"} {
		assert.NotContains(t, string(raw), `"`+key+`"`)
	}
}

func TestQuarterlyReport(t *testing.T) {
	f := newFakeStore()
	f.bill(alice, core.NewDate(2024, 4, 1), 1000)
	f.bill(alice, core.NewDate(2024, 6, 1), 1000)
	f.bill(alice, core.NewDate(2024, 7, 1), 5000)
	f.add(alice, core.NewDate(2024, 5, 1), "Food", 500)
	svc := NewService(f, Config{})

	r, err := svc.Quarterly(context.Background(), alice, "2024-Q2")
	require.NoError(t, err)
	assert.Equal(t, "Q2 2024", r.Period.Label)
	assert.Equal(t, 2, r.Period.Quarter)
	assert.Equal(t, []string{"Apr", "May", "Jun"}, r.Period.Months)
	assert.Equal(t, "2000.00", r.TotalIncome.String())
	assert.Equal(t, 75, r.SavingsRate)
	assert.Nil(t, r.PreviousQuarter)
}

func TestYearlyReport(t *testing.T) {
	f := newFakeStore()
	f.bill(alice, core.NewDate(2024, 1, 1), 3000)
	f.bill(alice, core.NewDate(2024, 8, 1), 3000)
	f.add(alice, core.NewDate(2024, 1, 3), "Food", 100)
	f.add(alice, core.NewDate(2024, 8, 3), "Food", 200)
	f.add(alice, core.NewDate(2024, 8, 4), "Bills", 300)
	f.add(alice, core.NewDate(2023, 12, 31), "Food", 600)
	svc := NewService(f, Config{})

	r, err := svc.Yearly(context.Background(), alice, "2024")
	require.NoError(t, err)
	assert.Equal(t, "2024", r.Period.Label)
	assert.Len(t, r.Period.Months, 12)
	assert.Equal(t, []string{"Q1", "Q2", "Q3", "Q4"}, r.Period.Quarters)
	assert.Equal(t, "6000.00", r.TotalIncome.String())
	assert.Equal(t, "600.00", r.TotalExpense.String())
	assert.Equal(t, 90, r.SavingsRate)
	assert.Nil(t, r.DailyBreakdown)
	require.NotNil(t, r.YearlyBreakdown)
	require.Len(t, r.Monthly, 2)
	assert.Equal(t, "2024-08", r.Monthly[1].Month)
	assert.Equal(t, "500.00", r.Monthly[1].Total.String())
	require.Len(t, r.Quarterly, 2)
	assert.Equal(t, "Q3 2024", r.Quarterly[1].Quarter)
	assert.Len(t, r.DetailedMonthly, 3)

	require.NotNil(t, r.PreviousYear)
	assert.Equal(t, "600.00", r.PreviousYear.TotalExpense.String())
	require.NotNil(t, r.PreviousYear.ExpenseChange)
	assert.Equal(t, 0, *r.PreviousYear.ExpenseChange)
}

func TestInvalidTokenIssuesNoReads(t *testing.T) {
	f := marchStore()
	svc := NewService(f, Config{})

	_, err := svc.Monthly(context.Background(), alice, "2024-13")
	require.Error(t, err)
	assert.ErrorIs(t, err, period.ErrInvalidPeriod)

	var ipe *period.InvalidPeriodError
	require.ErrorAs(t, err, &ipe)
	assert.Equal(t, "2024-13", ipe.Token)
	assert.Zero(t, f.calls)
}

func TestAggregationFailure(t *testing.T) {
	tests := []struct {
		failOp string
		g      period.Granularity
		want   string
	}{
		{OpDailyTotals, period.Month, scopeCurrent},
		{OpIncomeForMonth, period.Month, scopeCurrent},
		{OpPreviousExists, period.Week, scopePrevious},
		{OpQuarterlyTotals, period.Yearly, scopeCurrent},
		{OpIncomeForRange, period.Quarter, scopeCurrent},
	}
	for _, tt := range tests {
		t.Run(tt.failOp, func(t *testing.T) {
			f := marchStore()
			f.failOp = tt.failOp
			svc := NewService(f, Config{})

			r, err := svc.Generate(context.Background(), alice, tt.g, "2024-03-15")
			require.Error(t, err)
			assert.Nil(t, r)
			assert.True(t, errors.Is(err, ErrAggregation))
			assert.ErrorIs(t, err, errStore)

			var ae *AggregationError
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, tt.failOp, ae.Op)
			assert.Equal(t, tt.want, ae.Period)
		})
	}
}

func TestPreviousReadFailureFailsReport(t *testing.T) {
	f := marchStore()
	f.add(alice, core.NewDate(2024, 2, 1), "Food", 10)
	f.failOp = OpDetailedDaily
	svc := NewService(f, Config{})

	_, err := svc.Monthly(context.Background(), alice, "2024-03")
	require.ErrorIs(t, err, ErrAggregation)
}

func TestInsightsAttached(t *testing.T) {
	svc := NewService(marchStore(), Config{})
	r, err := svc.Monthly(context.Background(), alice, "2024-03")
	require.NoError(t, err)
	require.NotEmpty(t, r.Insights)
}
