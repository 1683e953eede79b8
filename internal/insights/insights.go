// Package insights derives short, human readable observations from a period's
// aggregated spending. Generate is deterministic: the same input always yields the
// same insights in the same order.
package insights

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"spese-report/internal/core"
)

// Insight kinds.
const (
	KindNoSpendDays   = "no_spend_days"
	KindHighSpendDays = "high_spend_days"
	KindPeakDay       = "peak_day"
	KindTopCategory   = "top_category"
	KindWantsShare    = "wants_share"
	KindExpenseChange = "expense_change"
	KindSavings       = "savings"
	KindTip           = "tip"
)

type Insight struct {
	Kind     string `json:"type"`
	Priority int    `json:"priority"`
	Message  string `json:"message"`
}

// Rules holds the thresholds used by Generate.
type Rules struct {
	NoSpendDaysMin     int
	HighSpendThreshold core.Money
	NeedCategories     []string
	WantsWarnPercent   int
	ChangeMinPercent   int
	SavingsPraiseMin   core.Money
}

func DefaultRules() Rules {
	return Rules{
		NoSpendDaysMin:     3,
		HighSpendThreshold: core.MoneyFromInt(3000),
		NeedCategories:     []string{"Rent", "Groceries", "Bills", "Transport"},
		WantsWarnPercent:   40,
		ChangeMinPercent:   10,
		SavingsPraiseMin:   core.MoneyFromInt(3000),
	}
}

// Input is the slice of a report the rules look at.
type Input struct {
	Unit            string // "week", "month", "quarter" or "year"
	Start           core.Date
	End             core.Date
	Daily           []core.DailyTotal
	Categories      []core.CategoryTotal
	TotalExpense    core.Money
	Savings         *core.Money
	PreviousExpense *core.Money
}

var tips = []string{
	"Avoid impulse buys: wait 24 hours before making a purchase.",
	"Try a no-spend weekend to reset your budget.",
	"Track subscriptions, they quietly drain your wallet.",
	"Small daily expenses add up fast. Stay mindful.",
	"Set a weekly category limit to control overspending.",
}

// Generate applies rules to in.
func Generate(in Input, rules Rules) []Insight {
	var out []Insight

	if n := noSpendDays(in); n >= rules.NoSpendDaysMin && rules.NoSpendDaysMin > 0 {
		out = append(out, Insight{KindNoSpendDays, 3, fmt.Sprintf("You had %d no-spend %s. Great self-control!", n, plural(n, "day"))})
	}

	high := 0
	for _, d := range in.Daily {
		if d.Total.Cmp(rules.HighSpendThreshold) >= 0 {
			high++
		}
	}
	if high > 0 {
		out = append(out, Insight{KindHighSpendDays, 2, fmt.Sprintf("%d %s reached %s or more in spending. Watch for costly days.", high, plural(high, "day"), rules.HighSpendThreshold)})
	}

	if peak, ok := peakDay(in.Daily); ok {
		out = append(out, Insight{KindPeakDay, 2, fmt.Sprintf("Your most expensive day was %s (%s), spending %s.", peak.Date, peak.Date.Weekday(), peak.Total)})
	}

	if len(in.Categories) > 0 {
		top := in.Categories[0]
		out = append(out, Insight{KindTopCategory, 1, fmt.Sprintf("Top spending category: %s with %s.", top.Category, top.Amount)})
	}

	if share, ok := wantsShare(in, rules.NeedCategories); ok {
		priority := 3
		if share.GreaterThan(decimal.NewFromInt(int64(rules.WantsWarnPercent))) {
			priority = 1
		}
		out = append(out, Insight{KindWantsShare, priority, fmt.Sprintf("Spending on wants was %s%% of your total. Aim for below 30%% to grow savings.", share.StringFixed(1))})
	}

	if in.PreviousExpense != nil && !in.PreviousExpense.IsZero() {
		change := in.TotalExpense.Sub(*in.PreviousExpense)
		pct := change.Decimal().Mul(decimal.NewFromInt(100)).Div(in.PreviousExpense.Decimal())
		if pct.Abs().GreaterThan(decimal.NewFromInt(int64(rules.ChangeMinPercent))) {
			direction := "increased"
			if change.IsNegative() {
				direction = "decreased"
			}
			out = append(out, Insight{KindExpenseChange, 1, fmt.Sprintf("Spending %s by %s (%s%%) compared to last %s.",
				direction, core.NewMoney(change.Decimal().Abs()), pct.Abs().StringFixed(1), in.Unit)})
		}
	}

	if in.Savings != nil && in.Savings.Cmp(rules.SavingsPraiseMin) >= 0 {
		out = append(out, Insight{KindSavings, 3, fmt.Sprintf("You saved %s this %s. Keep it up!", *in.Savings, in.Unit)})
	}

	// Rotate tips by period start so a given period always gets the same one.
	if !in.Start.IsZero() {
		idx := (in.Start.Year() + in.Start.YearDay()) % len(tips)
		out = append(out, Insight{KindTip, 4, tips[idx]})
	}

	return out
}

// noSpendDays counts days without spending between the period start and the
// last day with spending, so days that have not happened yet are not counted.
func noSpendDays(in Input) int {
	if len(in.Daily) == 0 {
		return 0
	}
	last := in.Daily[len(in.Daily)-1].Date
	if last.After(in.End.Time) {
		last = in.End
	}
	span := int(last.Sub(in.Start.Time).Hours()/24) + 1
	spent := 0
	for _, d := range in.Daily {
		if !d.Total.IsZero() {
			spent++
		}
	}
	if n := span - spent; n > 0 {
		return n
	}
	return 0
}

func peakDay(daily []core.DailyTotal) (core.DailyTotal, bool) {
	var peak core.DailyTotal
	found := false
	for _, d := range daily {
		if d.Total.IsZero() {
			continue
		}
		if !found || d.Total.Cmp(peak.Total) > 0 {
			peak = d
			found = true
		}
	}
	return peak, found
}

func wantsShare(in Input, needs []string) (decimal.Decimal, bool) {
	if in.TotalExpense.IsZero() {
		return decimal.Zero, false
	}
	isNeed := make(map[string]bool, len(needs))
	for _, n := range needs {
		isNeed[strings.ToLower(n)] = true
	}
	wants := core.Zero
	for _, c := range in.Categories {
		if !isNeed[strings.ToLower(c.Category)] {
			wants = wants.Add(c.Amount)
		}
	}
	if wants.IsZero() {
		return decimal.Zero, false
	}
	return wants.Decimal().Mul(decimal.NewFromInt(100)).Div(in.TotalExpense.Decimal()), true
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
