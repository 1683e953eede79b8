package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spese-report/internal/core"
	"spese-report/internal/period"
)

const seedYAML = `
users:
  - id: u1
    email: ada@example.com
bills:
  - userId: u1
    month: "2024-03"
    totalBalance: "50000"
entries:
  - userId: u1
    date: "2024-03-02"
    items:
      - category: Food
        amount: "7000"
      - category: ""
        amount: "2,50"
  - userId: u1
    date: "2024-03-10"
    items:
      - category: Transport
        amount: "5000"
`

func seeded(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seedYAML), 0o644))
	s, err := NewFromFile(context.Background(), path)
	require.NoError(t, err)
	return s
}

func TestAggregates(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	r := period.NewResolver(time.Sunday)
	march := r.BoundaryFor(time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), period.Month)

	totals, err := s.CategoryTotals(ctx, "u1", march)
	require.NoError(t, err)
	require.Len(t, totals, 3)
	assert.Equal(t, "Food", totals[0].Category)
	assert.Equal(t, core.Uncategorized, totals[2].Category)
	assert.Equal(t, "2.50", totals[2].Amount.String())

	daily, err := s.DailyTotals(ctx, "u1", march)
	require.NoError(t, err)
	require.Len(t, daily, 2)
	assert.Equal(t, "7002.50", daily[0].Total.String())

	income, err := s.IncomeForMonth(ctx, "u1", core.NewDate(2024, 3, 1))
	require.NoError(t, err)
	assert.Equal(t, "50000.00", income.String())

	q1 := r.BoundaryFor(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), period.Quarter)
	income, err = s.IncomeForRange(ctx, "u1", q1)
	require.NoError(t, err)
	assert.Equal(t, "50000.00", income.String())

	quarters, err := s.QuarterlyTotals(ctx, "u1", r.BoundaryFor(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), period.Yearly))
	require.NoError(t, err)
	require.Len(t, quarters, 1)
	assert.Equal(t, "Q1 2024", quarters[0].Quarter)

	ok, err := s.HasEntries(ctx, "u1", r.BoundaryFor(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), period.Month))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLoadRejectsUnknownUser(t *testing.T) {
	err := New().Load(context.Background(), core.Dataset{
		Entries: []core.SeedEntry{{UserID: "ghost", Date: "2024-01-01"}},
	})
	assert.Error(t, err)
}

func TestNotifications(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.CreateNotification(ctx, core.Notification{ID: "a", UserID: "u1", Type: core.NotificationReport, CreatedAt: base}))
	require.NoError(t, s.CreateNotification(ctx, core.Notification{ID: "b", UserID: "u1", Type: core.NotificationInfo, CreatedAt: base.Add(time.Minute)}))
	require.NoError(t, s.CreateNotification(ctx, core.Notification{ID: "c", UserID: "u2", CreatedAt: base}))

	list, err := s.ListNotifications(ctx, "u1", "", 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].ID)

	list, err = s.ListNotifications(ctx, "u1", core.NotificationReport, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "a", list[0].ID)

	unread, err := s.CountUnread(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, unread)

	require.NoError(t, s.MarkNotificationRead(ctx, "u1", "a"))
	assert.ErrorIs(t, s.MarkNotificationRead(ctx, "u1", "c"), core.ErrNotFound)

	updated, err := s.MarkAllNotificationsRead(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, updated)
	unread, err = s.CountUnread(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, unread)

	assert.ErrorIs(t, s.DeleteNotification(ctx, "u1", "c"), core.ErrNotFound)
	require.NoError(t, s.DeleteNotification(ctx, "u1", "a"))
	list, err = s.ListNotifications(ctx, "u1", "", 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "b", list[0].ID)
}

func TestListBillingUsers(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Load(ctx, core.Dataset{
		Users:   []core.SeedUser{{ID: "u3"}, {ID: "u1"}, {ID: "u2"}},
		Bills:   []core.SeedBill{{UserID: "u1", Month: "2024-03", TotalBalance: "100"}},
		Entries: []core.SeedEntry{{UserID: "u2", Date: "2024-03-02", Items: []core.SeedItem{{Category: "Food", Amount: "5"}}}},
	}))

	users, err := s.ListBillingUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "u1", users[0].ID)
	assert.Equal(t, "u2", users[1].ID)
}

func TestGetUser(t *testing.T) {
	s := seeded(t)
	u, err := s.GetUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", u.Email)

	_, err = s.GetUser(context.Background(), "ghost")
	assert.ErrorIs(t, err, core.ErrNotFound)
}
