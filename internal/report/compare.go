package report

import (
	"github.com/shopspring/decimal"

	"spese-report/internal/core"
)

var (
	hundred = decimal.NewFromInt(100)
	half    = decimal.NewFromFloat(0.5)
)

// roundPercent rounds half up to the nearest integer, so -2.5 becomes -2.
func roundPercent(d decimal.Decimal) int {
	return int(d.Add(half).Floor().IntPart())
}

// SavingsRate returns round(100 * savings / income), or 0 when income is not positive.
func SavingsRate(income, savings core.Money) int {
	if income.IsZero() || income.IsNegative() {
		return 0
	}
	return roundPercent(savings.Decimal().Mul(hundred).Div(income.Decimal()))
}

// PercentChange returns the integer percent change from previous to current, or
// nil when previous is zero.
func PercentChange(current, previous core.Money) *int {
	if previous.IsZero() {
		return nil
	}
	pct := roundPercent(current.Sub(previous).Decimal().Mul(hundred).Div(previous.Decimal().Abs()))
	return &pct
}

// NewIncome derives savings and the savings rate from income and expense.
func NewIncome(income, expense core.Money) *Income {
	savings := income.Sub(expense)
	return &Income{
		TotalIncome: income,
		Savings:     savings,
		SavingsRate: SavingsRate(income, savings),
	}
}

func sumCategories(totals []core.CategoryTotal) core.Money {
	sum := core.Zero
	for _, t := range totals {
		sum = sum.Add(t.Amount)
	}
	return sum
}
