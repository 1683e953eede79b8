package report

import (
	"context"
	"fmt"
	"sort"

	"spese-report/internal/core"
	"spese-report/internal/period"
)

// Available lists the periods of granularity g in which the user logged items,
// newest first.
func (s *Service) Available(ctx context.Context, userID string, g period.Granularity) ([]core.AvailablePeriod, error) {
	if !g.Valid() {
		return nil, fmt.Errorf("%w: %q", period.ErrInvalidGranularity, g)
	}
	days, err := s.store.DailyActivity(ctx, userID)
	if err != nil {
		return nil, &AggregationError{Op: OpDailyActivity, Err: err}
	}

	byValue := make(map[string]*core.AvailablePeriod)
	for _, day := range days {
		b := s.resolver.BoundaryFor(day.Date.Time, g)
		value := period.Value(g, b)
		p, ok := byValue[value]
		if !ok {
			p = &core.AvailablePeriod{
				Label: period.Label(g, b),
				Value: value,
				Year:  b.Start.Year(),
				Start: b.Start,
				End:   b.End,
			}
			switch g {
			case period.Month:
				p.Month = int(b.Start.Month())
			case period.Quarter:
				p.Quarter = core.QuarterOf(b.Start.Month())
			}
			byValue[value] = p
		}
		p.EntryCount += day.Items
		p.TotalAmount = p.TotalAmount.Add(day.Total)
	}

	out := make([]core.AvailablePeriod, 0, len(byValue))
	for _, p := range byValue {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.After(out[j].Start.Time) })
	return out, nil
}
