package report

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"spese-report/internal/core"
	"spese-report/internal/period"
)

type fakeItem struct {
	user     string
	date     core.Date
	category string
	amount   core.Money
}

// fakeStore is a hand-rolled Store over a flat item list.
type fakeStore struct {
	items []fakeItem
	bills map[string]core.Money // user|YYYY-MM

	failOp string // operation name that returns errStore
	mu     sync.Mutex
	calls  int
}

var errStore = errors.New("connection refused")

func newFakeStore() *fakeStore {
	return &fakeStore{bills: make(map[string]core.Money)}
}

func (f *fakeStore) add(user string, date core.Date, category string, amount int64) {
	f.items = append(f.items, fakeItem{user, date, core.NormalizeCategory(category), core.MoneyFromInt(amount)})
}

func (f *fakeStore) bill(user string, month core.Date, amount int64) {
	f.bills[user+"|"+month.MonthKey()] = core.MoneyFromInt(amount)
}

func (f *fakeStore) enter(op string) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if op == f.failOp {
		return errStore
	}
	return nil
}

func (f *fakeStore) each(user string, b period.Boundary, fn func(fakeItem)) {
	for _, it := range f.items {
		if it.user == user && b.Contains(it.date) {
			fn(it)
		}
	}
}

func (f *fakeStore) CategoryTotals(_ context.Context, user string, b period.Boundary) ([]core.CategoryTotal, error) {
	if err := f.enter(OpCategoryTotals); err != nil {
		return nil, err
	}
	sums := map[string]core.Money{}
	f.each(user, b, func(it fakeItem) { sums[it.category] = sums[it.category].Add(it.amount) })
	var out []core.CategoryTotal
	for c, a := range sums {
		out = append(out, core.CategoryTotal{Category: c, Amount: a})
	}
	core.SortCategoryTotals(out)
	return out, nil
}

func (f *fakeStore) DailyTotals(_ context.Context, user string, b period.Boundary) ([]core.DailyTotal, error) {
	if err := f.enter(OpDailyTotals); err != nil {
		return nil, err
	}
	sums := map[string]core.DailyTotal{}
	f.each(user, b, func(it fakeItem) {
		d := sums[it.date.String()]
		d.Date = it.date
		d.Total = d.Total.Add(it.amount)
		sums[it.date.String()] = d
	})
	var out []core.DailyTotal
	for _, d := range sums {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date.Time) })
	return out, nil
}

func (f *fakeStore) DetailedDaily(_ context.Context, user string, b period.Boundary) ([]core.DetailedDaily, error) {
	if err := f.enter(OpDetailedDaily); err != nil {
		return nil, err
	}
	sums := map[string]core.DetailedDaily{}
	f.each(user, b, func(it fakeItem) {
		key := it.date.String() + "|" + it.category
		d := sums[key]
		d.Date, d.Category = it.date, it.category
		d.Amount = d.Amount.Add(it.amount)
		sums[key] = d
	})
	var out []core.DetailedDaily
	for _, d := range sums {
		out = append(out, d)
	}
	core.SortDetailedDaily(out)
	return out, nil
}

func (f *fakeStore) MonthlyTotals(_ context.Context, user string, b period.Boundary) ([]core.MonthTotal, error) {
	if err := f.enter(OpMonthlyTotals); err != nil {
		return nil, err
	}
	sums := map[string]core.Money{}
	f.each(user, b, func(it fakeItem) { sums[it.date.MonthKey()] = sums[it.date.MonthKey()].Add(it.amount) })
	var out []core.MonthTotal
	for m, a := range sums {
		out = append(out, core.MonthTotal{Month: m, Total: a})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out, nil
}

func (f *fakeStore) DetailedMonthly(_ context.Context, user string, b period.Boundary) ([]core.DetailedMonthly, error) {
	if err := f.enter(OpDetailedMonthly); err != nil {
		return nil, err
	}
	sums := map[string]core.DetailedMonthly{}
	f.each(user, b, func(it fakeItem) {
		key := it.date.MonthKey() + "|" + it.category
		d := sums[key]
		d.Month, d.Category = it.date.MonthKey(), it.category
		d.Amount = d.Amount.Add(it.amount)
		sums[key] = d
	})
	var out []core.DetailedMonthly
	for _, d := range sums {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Month != out[j].Month {
			return out[i].Month < out[j].Month
		}
		return out[i].Category < out[j].Category
	})
	return out, nil
}

func (f *fakeStore) QuarterlyTotals(_ context.Context, user string, b period.Boundary) ([]core.QuarterTotal, error) {
	if err := f.enter(OpQuarterlyTotals); err != nil {
		return nil, err
	}
	sums := map[int]core.Money{}
	f.each(user, b, func(it fakeItem) {
		q := core.QuarterOf(it.date.Month())
		sums[q] = sums[q].Add(it.amount)
	})
	var out []core.QuarterTotal
	for q := 1; q <= 4; q++ {
		if a, ok := sums[q]; ok {
			out = append(out, core.QuarterTotal{Quarter: fmt.Sprintf("Q%d %d", q, b.Start.Year()), Total: a})
		}
	}
	return out, nil
}

func (f *fakeStore) IncomeForMonth(_ context.Context, user string, month core.Date) (core.Money, error) {
	if err := f.enter(OpIncomeForMonth); err != nil {
		return core.Zero, err
	}
	return f.bills[user+"|"+month.MonthKey()], nil
}

func (f *fakeStore) IncomeForRange(_ context.Context, user string, b period.Boundary) (core.Money, error) {
	if err := f.enter(OpIncomeForRange); err != nil {
		return core.Zero, err
	}
	sum := core.Zero
	for d := b.Start.Time; !d.After(b.End.Time); d = d.AddDate(0, 1, 0) {
		sum = sum.Add(f.bills[user+"|"+core.DateOf(d).MonthKey()])
	}
	return sum, nil
}

func (f *fakeStore) HasEntries(_ context.Context, user string, b period.Boundary) (bool, error) {
	if err := f.enter(OpPreviousExists); err != nil {
		return false, err
	}
	found := false
	f.each(user, b, func(fakeItem) { found = true })
	return found, nil
}

func (f *fakeStore) DailyActivity(_ context.Context, user string) ([]core.DayActivity, error) {
	if err := f.enter(OpDailyActivity); err != nil {
		return nil, err
	}
	byDate := map[string]*core.DayActivity{}
	for _, it := range f.items {
		if it.user != user {
			continue
		}
		a, ok := byDate[it.date.String()]
		if !ok {
			a = &core.DayActivity{Date: it.date}
			byDate[it.date.String()] = a
		}
		a.Items++
		a.Total = a.Total.Add(it.amount)
	}
	var out []core.DayActivity
	for _, a := range byDate {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date.Time) })
	return out, nil
}
