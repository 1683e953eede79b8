// Package memory is an in-process entry store for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"spese-report/internal/core"
	"spese-report/internal/period"
)

type item struct {
	userID   string
	date     core.Date
	category string
	amount   core.Money
}

type Store struct {
	mu            sync.RWMutex
	users         map[string]core.User
	bills         map[string]core.Money // userID|YYYY-MM
	items         []item
	notifications []core.Notification
	runs          map[string]core.RunRecord
}

func New() *Store {
	return &Store{
		users: make(map[string]core.User),
		bills: make(map[string]core.Money),
		runs:  make(map[string]core.RunRecord),
	}
}

// NewFromFile returns a store seeded from a JSON or YAML dataset file. An
// empty path yields an empty store.
func NewFromFile(ctx context.Context, path string) (*Store, error) {
	s := New()
	if path == "" {
		return s, nil
	}
	ds, err := core.LoadDataset(path)
	if err != nil {
		return nil, err
	}
	if err := s.Load(ctx, ds); err != nil {
		return nil, err
	}
	return s, nil
}

func billKey(userID string, month core.Date) string {
	return userID + "|" + month.MonthKey()
}

func (s *Store) Load(_ context.Context, ds core.Dataset) error {
	if err := ds.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range ds.Users {
		s.users[u.ID] = core.User{ID: u.ID, Email: u.Email, Name: u.Name}
	}
	for _, sb := range ds.Bills {
		b, _ := sb.Bill()
		s.bills[billKey(b.UserID, b.BillMonth)] = b.TotalBalance
	}
	for _, se := range ds.Entries {
		date, _ := core.ParseDate(se.Date)
		for _, si := range se.Items {
			it, _ := si.Item()
			s.items = append(s.items, item{
				userID:   se.UserID,
				date:     date,
				category: core.NormalizeCategory(it.Category),
				amount:   it.Amount,
			})
		}
	}
	return nil
}

func (s *Store) Close() error { return nil }

// Ping always succeeds; the store lives in process.
func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) each(userID string, b period.Boundary, fn func(item)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, it := range s.items {
		if it.userID == userID && b.Contains(it.date) {
			fn(it)
		}
	}
}

func (s *Store) CategoryTotals(_ context.Context, userID string, b period.Boundary) ([]core.CategoryTotal, error) {
	sums := map[string]core.Money{}
	s.each(userID, b, func(it item) { sums[it.category] = sums[it.category].Add(it.amount) })
	out := make([]core.CategoryTotal, 0, len(sums))
	for c, a := range sums {
		out = append(out, core.CategoryTotal{Category: c, Amount: a})
	}
	core.SortCategoryTotals(out)
	return out, nil
}

func (s *Store) DailyTotals(_ context.Context, userID string, b period.Boundary) ([]core.DailyTotal, error) {
	sums := map[core.Date]core.Money{}
	s.each(userID, b, func(it item) { sums[it.date] = sums[it.date].Add(it.amount) })
	out := make([]core.DailyTotal, 0, len(sums))
	for d, a := range sums {
		out = append(out, core.DailyTotal{Date: d, Total: a})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date.Time) })
	return out, nil
}

type dayCategory struct {
	date     core.Date
	category string
}

func (s *Store) DetailedDaily(_ context.Context, userID string, b period.Boundary) ([]core.DetailedDaily, error) {
	sums := map[dayCategory]core.Money{}
	s.each(userID, b, func(it item) {
		k := dayCategory{it.date, it.category}
		sums[k] = sums[k].Add(it.amount)
	})
	out := make([]core.DetailedDaily, 0, len(sums))
	for k, a := range sums {
		out = append(out, core.DetailedDaily{Date: k.date, Category: k.category, Amount: a})
	}
	core.SortDetailedDaily(out)
	return out, nil
}

func (s *Store) MonthlyTotals(_ context.Context, userID string, b period.Boundary) ([]core.MonthTotal, error) {
	sums := map[string]core.Money{}
	s.each(userID, b, func(it item) { sums[it.date.MonthKey()] = sums[it.date.MonthKey()].Add(it.amount) })
	out := make([]core.MonthTotal, 0, len(sums))
	for m, a := range sums {
		out = append(out, core.MonthTotal{Month: m, Total: a})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out, nil
}

func (s *Store) DetailedMonthly(_ context.Context, userID string, b period.Boundary) ([]core.DetailedMonthly, error) {
	type key struct{ month, category string }
	sums := map[key]core.Money{}
	s.each(userID, b, func(it item) {
		k := key{it.date.MonthKey(), it.category}
		sums[k] = sums[k].Add(it.amount)
	})
	out := make([]core.DetailedMonthly, 0, len(sums))
	for k, a := range sums {
		out = append(out, core.DetailedMonthly{Month: k.month, Category: k.category, Amount: a})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Month != out[j].Month {
			return out[i].Month < out[j].Month
		}
		return out[i].Category < out[j].Category
	})
	return out, nil
}

func (s *Store) QuarterlyTotals(_ context.Context, userID string, b period.Boundary) ([]core.QuarterTotal, error) {
	var sums [5]core.Money
	var seen [5]bool
	s.each(userID, b, func(it item) {
		q := core.QuarterOf(it.date.Month())
		sums[q] = sums[q].Add(it.amount)
		seen[q] = true
	})
	out := []core.QuarterTotal{}
	for q := 1; q <= 4; q++ {
		if seen[q] {
			out = append(out, core.QuarterTotal{Quarter: fmt.Sprintf("Q%d %d", q, b.Start.Year()), Total: sums[q]})
		}
	}
	return out, nil
}

func (s *Store) IncomeForMonth(_ context.Context, userID string, month core.Date) (core.Money, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bills[billKey(userID, month)], nil
}

func (s *Store) IncomeForRange(_ context.Context, userID string, b period.Boundary) (core.Money, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := core.Zero
	for m := core.NewDate(b.Start.Year(), int(b.Start.Month()), 1); !m.After(b.End.Time); m = core.DateOf(m.AddDate(0, 1, 0)) {
		total = total.Add(s.bills[billKey(userID, m)])
	}
	return total, nil
}

func (s *Store) HasEntries(_ context.Context, userID string, b period.Boundary) (bool, error) {
	found := false
	s.each(userID, b, func(item) { found = true })
	return found, nil
}

func (s *Store) DailyActivity(_ context.Context, userID string) ([]core.DayActivity, error) {
	s.mu.RLock()
	byDate := map[core.Date]*core.DayActivity{}
	for _, it := range s.items {
		if it.userID != userID {
			continue
		}
		a, ok := byDate[it.date]
		if !ok {
			a = &core.DayActivity{Date: it.date}
			byDate[it.date] = a
		}
		a.Items++
		a.Total = a.Total.Add(it.amount)
	}
	s.mu.RUnlock()

	out := make([]core.DayActivity, 0, len(byDate))
	for _, a := range byDate {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date.Time) })
	return out, nil
}

func (s *Store) ListUsers(_ context.Context) ([]core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListBillingUsers returns the users holding at least one bill, that is a
// bill of their own or a month with entries.
func (s *Store) ListBillingUsers(_ context.Context) ([]core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	billed := map[string]bool{}
	for key := range s.bills {
		id, _, _ := strings.Cut(key, "|")
		billed[id] = true
	}
	for _, it := range s.items {
		billed[it.userID] = true
	}
	out := []core.User{}
	for id := range billed {
		if u, ok := s.users[id]; ok {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetUser(_ context.Context, id string) (core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return core.User{}, fmt.Errorf("user %s: %w", id, core.ErrNotFound)
	}
	return u, nil
}

func (s *Store) CreateNotification(_ context.Context, n core.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, n)
	return nil
}

// ListNotifications returns the user's feed newest first. An empty kind
// matches every type.
func (s *Store) ListNotifications(_ context.Context, userID, kind string, limit int) ([]core.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []core.Notification{}
	for _, n := range s.notifications {
		if n.UserID == userID && (kind == "" || n.Type == kind) {
			out = append(out, n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) MarkNotificationRead(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.notifications {
		if s.notifications[i].ID == id && s.notifications[i].UserID == userID {
			s.notifications[i].IsRead = true
			return nil
		}
	}
	return fmt.Errorf("notification %s: %w", id, core.ErrNotFound)
}

func (s *Store) CountUnread(_ context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, n := range s.notifications {
		if n.UserID == userID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (s *Store) MarkAllNotificationsRead(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	updated := 0
	for i := range s.notifications {
		if s.notifications[i].UserID == userID && !s.notifications[i].IsRead {
			s.notifications[i].IsRead = true
			updated++
		}
	}
	return updated, nil
}

func (s *Store) DeleteNotification(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, n := range s.notifications {
		if n.ID == id && n.UserID == userID {
			s.notifications = append(s.notifications[:i], s.notifications[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("notification %s: %w", id, core.ErrNotFound)
}

func (s *Store) LastRun(_ context.Context, job string) (core.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.runs[job]
	return rec, ok, nil
}

func (s *Store) RecordRun(_ context.Context, rec core.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[rec.Job] = rec
	return nil
}
