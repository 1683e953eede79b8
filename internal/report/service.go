package report

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"spese-report/internal/core"
	"spese-report/internal/insights"
	"spese-report/internal/log"
	"spese-report/internal/period"
)

const (
	scopeCurrent  = "current"
	scopePrevious = "previous"
)

// Config configures a Service. The zero value is usable.
type Config struct {
	Resolver period.Resolver
	Logger   *log.Logger
	Rules    *insights.Rules
}

// Service assembles reports. It holds no per-request state and is safe for
// concurrent use.
type Service struct {
	store    Store
	resolver period.Resolver
	logger   *log.Logger
	rules    insights.Rules
}

func NewService(store Store, cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Discard()
	}
	rules := insights.DefaultRules()
	if cfg.Rules != nil {
		rules = *cfg.Rules
	}
	return &Service{
		store:    store,
		resolver: cfg.Resolver,
		logger:   logger.WithComponent(log.ComponentReport),
		rules:    rules,
	}
}

// Resolver returns the resolver reports are computed with.
func (s *Service) Resolver() period.Resolver { return s.resolver }

func (s *Service) Weekly(ctx context.Context, userID, token string) (*Report, error) {
	return s.Generate(ctx, userID, period.Week, token)
}

func (s *Service) Monthly(ctx context.Context, userID, token string) (*Report, error) {
	return s.Generate(ctx, userID, period.Month, token)
}

func (s *Service) Quarterly(ctx context.Context, userID, token string) (*Report, error) {
	return s.Generate(ctx, userID, period.Quarter, token)
}

func (s *Service) Yearly(ctx context.Context, userID, token string) (*Report, error) {
	return s.Generate(ctx, userID, period.Yearly, token)
}

// Generate resolves token for g and assembles the report. A malformed token
// fails with an *period.InvalidPeriodError before any read is issued.
func (s *Service) Generate(ctx context.Context, userID string, g period.Granularity, token string) (*Report, error) {
	res, err := s.resolver.Resolve(token, g)
	if err != nil {
		return nil, err
	}
	return s.GenerateFor(ctx, userID, res)
}

// snapshot collects the reads of one period.
type snapshot struct {
	categories      []core.CategoryTotal
	daily           []core.DailyTotal
	detailed        []core.DetailedDaily
	monthly         []core.MonthTotal
	detailedMonthly []core.DetailedMonthly
	quarterly       []core.QuarterTotal
	income          core.Money
}

// GenerateFor assembles the report of an already resolved period. Current and
// previous reads run concurrently; the previous reads are only issued when the
// previous period has entries. Any failed read fails the whole report.
func (s *Service) GenerateFor(ctx context.Context, userID string, res period.Resolution) (*Report, error) {
	started := time.Now()
	fields := log.NewFields().WithReport(userID, string(res.Granularity), res.Current.String())

	var (
		cur, prev snapshot
		hasPrev   bool
	)
	eg, egctx := errgroup.WithContext(ctx)
	s.schedule(egctx, eg, userID, res.Granularity, res.Current, scopeCurrent, &cur)
	eg.Go(func() error {
		ok, err := s.store.HasEntries(egctx, userID, res.Previous)
		if err != nil {
			return &AggregationError{Op: OpPreviousExists, Period: scopePrevious, Err: err}
		}
		if !ok {
			return nil
		}
		hasPrev = true
		peg, pctx := errgroup.WithContext(egctx)
		s.schedule(pctx, peg, userID, res.Granularity, res.Previous, scopePrevious, &prev)
		return peg.Wait()
	})
	if err := eg.Wait(); err != nil {
		s.logger.ErrorContext(ctx, "report generation failed", fields.WithError(err).ToSlice()...)
		return nil, err
	}

	r := s.compose(res, &cur, &prev, hasPrev)
	s.logger.DebugContext(ctx, "report generated", append(fields.ToSlice(),
		log.FieldDuration, time.Since(started).Milliseconds(),
		"has_previous", hasPrev)...)
	return r, nil
}

// schedule queues on eg every read the granularity needs for boundary b.
func (s *Service) schedule(ctx context.Context, eg *errgroup.Group, userID string, g period.Granularity, b period.Boundary, scope string, dst *snapshot) {
	read := func(op string, fn func(context.Context) error) {
		eg.Go(func() error {
			if err := fn(ctx); err != nil {
				return &AggregationError{Op: op, Period: scope, Err: err}
			}
			return nil
		})
	}

	read(OpCategoryTotals, func(ctx context.Context) (err error) {
		dst.categories, err = s.store.CategoryTotals(ctx, userID, b)
		return err
	})

	if g == period.Yearly {
		read(OpMonthlyTotals, func(ctx context.Context) (err error) {
			dst.monthly, err = s.store.MonthlyTotals(ctx, userID, b)
			return err
		})
		read(OpDetailedMonthly, func(ctx context.Context) (err error) {
			dst.detailedMonthly, err = s.store.DetailedMonthly(ctx, userID, b)
			return err
		})
		read(OpQuarterlyTotals, func(ctx context.Context) (err error) {
			dst.quarterly, err = s.store.QuarterlyTotals(ctx, userID, b)
			return err
		})
	} else {
		read(OpDailyTotals, func(ctx context.Context) (err error) {
			dst.daily, err = s.store.DailyTotals(ctx, userID, b)
			return err
		})
		read(OpDetailedDaily, func(ctx context.Context) (err error) {
			dst.detailed, err = s.store.DetailedDaily(ctx, userID, b)
			return err
		})
	}

	switch g {
	case period.Month:
		read(OpIncomeForMonth, func(ctx context.Context) (err error) {
			dst.income, err = s.store.IncomeForMonth(ctx, userID, b.Start)
			return err
		})
	case period.Quarter, period.Yearly:
		read(OpIncomeForRange, func(ctx context.Context) (err error) {
			dst.income, err = s.store.IncomeForRange(ctx, userID, b)
			return err
		})
	}
}

func (s *Service) compose(res period.Resolution, cur, prev *snapshot, hasPrev bool) *Report {
	g := res.Granularity
	r := &Report{
		Type:     g,
		Period:   periodInfo(g, res.Current),
		Category: orEmpty(cur.categories),
	}
	core.SortCategoryTotals(r.Category)
	r.TotalExpense = sumCategories(r.Category)
	if g != period.Week {
		r.Income = NewIncome(cur.income, r.TotalExpense)
	}
	r.DailyBreakdown, r.YearlyBreakdown = breakdowns(g, cur)

	if hasPrev {
		p := &PreviousPeriod{
			Period:   periodInfo(g, res.Previous),
			Category: orEmpty(prev.categories),
		}
		core.SortCategoryTotals(p.Category)
		p.TotalExpense = sumCategories(p.Category)
		p.ExpenseChange = PercentChange(r.TotalExpense, p.TotalExpense)
		if g != period.Week {
			p.Income = NewIncome(prev.income, p.TotalExpense)
		}
		p.DailyBreakdown, p.YearlyBreakdown = breakdowns(g, prev)

		r.HasPreviousData = true
		switch g {
		case period.Week:
			r.PreviousWeek = p
		case period.Month:
			r.PreviousMonth = p
		case period.Quarter:
			r.PreviousQuarter = p
		default:
			r.PreviousYear = p
		}
	}

	in := insights.Input{
		Unit:         unit(g),
		Start:        res.Current.Start,
		End:          res.Current.End,
		Categories:   r.Category,
		TotalExpense: r.TotalExpense,
	}
	if r.DailyBreakdown != nil {
		in.Daily = r.Daily
	}
	if r.Income != nil {
		in.Savings = &r.Savings
	}
	if p := r.Previous(); p != nil {
		in.PreviousExpense = &p.TotalExpense
	}
	r.Insights = orEmpty(insights.Generate(in, s.rules))
	return r
}

func breakdowns(g period.Granularity, snap *snapshot) (*DailyBreakdown, *YearlyBreakdown) {
	if g == period.Yearly {
		return nil, &YearlyBreakdown{
			Monthly:         orEmpty(snap.monthly),
			Quarterly:       orEmpty(snap.quarterly),
			DetailedMonthly: orEmpty(snap.detailedMonthly),
		}
	}
	detailed := orEmpty(snap.detailed)
	core.SortDetailedDaily(detailed)
	return &DailyBreakdown{Daily: orEmpty(snap.daily), DetailedDaily: detailed}, nil
}

func periodInfo(g period.Granularity, b period.Boundary) PeriodInfo {
	info := PeriodInfo{
		Label: period.Label(g, b),
		Value: period.Value(g, b),
		Start: b.Start,
		End:   b.End,
		Year:  b.Start.Year(),
	}
	switch g {
	case period.Month:
		info.Month = int(b.Start.Month())
	case period.Quarter:
		info.Quarter = core.QuarterOf(b.Start.Month())
		info.Months = period.QuarterMonths(b.Start)
	case period.Yearly:
		info.Months = period.YearMonths()
		info.Quarters = period.YearQuarters()
	}
	return info
}

func unit(g period.Granularity) string {
	switch g {
	case period.Week:
		return "week"
	case period.Month:
		return "month"
	case period.Quarter:
		return "quarter"
	default:
		return "year"
	}
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
