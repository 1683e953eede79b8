package report

import (
	"errors"
	"fmt"
)

// ErrAggregation is matched by every AggregationError.
var ErrAggregation = errors.New("aggregation failed")

// AggregationError reports which aggregate read failed. Err holds the raw store
// error and must not be shown to external callers outside debug mode.
type AggregationError struct {
	Op     string
	Period string // "current", "previous" or empty
	Err    error
}

func (e *AggregationError) Error() string {
	if e.Period == "" {
		return fmt.Sprintf("aggregation %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("aggregation %s (%s period): %v", e.Op, e.Period, e.Err)
}

func (e *AggregationError) Unwrap() error { return e.Err }

func (e *AggregationError) Is(target error) bool {
	return target == ErrAggregation
}

// Operation names carried by AggregationError.
const (
	OpCategoryTotals  = "categoryTotals"
	OpDailyTotals     = "dailyTotals"
	OpDetailedDaily   = "detailedDaily"
	OpMonthlyTotals   = "monthlyTotals"
	OpDetailedMonthly = "detailedMonthly"
	OpQuarterlyTotals = "quarterlyTotals"
	OpIncomeForMonth  = "incomeForMonth"
	OpIncomeForRange  = "incomeForRange"
	OpPreviousExists  = "previousPeriodDataExists"
	OpDailyActivity   = "dailyActivity"
)
