package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spese-report/internal/amqp"
	"spese-report/internal/core"
	"spese-report/internal/period"
	"spese-report/internal/storage/memory"
)

type recordingPublisher struct {
	mu     sync.Mutex
	msgs   []*amqp.ReportReadyMessage
	failOn map[string]bool
}

func (p *recordingPublisher) Publish(_ context.Context, msg *amqp.ReportReadyMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failOn[msg.UserID] {
		return errors.New("broker unavailable")
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

func (p *recordingPublisher) users() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.msgs))
	for i, m := range p.msgs {
		out[i] = m.UserID
	}
	return out
}

func schedulerStore(t *testing.T) *memory.Store {
	t.Helper()
	s := memory.New()
	require.NoError(t, s.Load(context.Background(), core.Dataset{
		Users: []core.SeedUser{{ID: "u1"}, {ID: "u2"}, {ID: "u3"}},
		Entries: []core.SeedEntry{
			{UserID: "u1", Date: "2024-03-05", Items: []core.SeedItem{{Category: "Food", Amount: "1000"}}},
			{UserID: "u3", Date: "2024-03-28", Items: []core.SeedItem{{Category: "Rent", Amount: "50000"}}},
			// u2 only spent in April, so March has nothing to report.
			{UserID: "u2", Date: "2024-04-01", Items: []core.SeedItem{{Category: "Food", Amount: "500"}}},
		},
	}))
	return s
}

func newTestScheduler(store Store, pub Publisher, now time.Time, gs ...period.Granularity) *Scheduler {
	cfg := DefaultSchedulerConfig()
	cfg.Granularities = gs
	s := NewScheduler(store, pub, period.NewResolver(time.Sunday), cfg, nil)
	s.now = func() time.Time { return now }
	return s
}

func TestScheduler_TickPublishesPreviousMonth(t *testing.T) {
	store := schedulerStore(t)
	pub := &recordingPublisher{}
	s := newTestScheduler(store, pub, at(2024, 4, 2, 10, 30), period.Month)

	results := s.Tick(context.Background())
	require.Len(t, results, 1)
	assert.Equal(t, BatchResult{Granularity: period.Month, Period: "2024-03", Users: 3, Published: 2, Skipped: 1}, results[0])
	assert.Equal(t, []string{"u1", "u3"}, pub.users())

	msg := pub.msgs[0]
	assert.Equal(t, "2024-03", msg.PeriodValue)
	assert.Equal(t, amqp.TriggerScheduled, msg.Trigger)
	assert.NoError(t, msg.Validate())

	rec, ok, err := store.LastRun(context.Background(), JobName(period.Month))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2024-03", rec.PeriodValue)
}

func TestScheduler_TickDoesNotRunTwice(t *testing.T) {
	store := schedulerStore(t)
	pub := &recordingPublisher{}
	s := newTestScheduler(store, pub, at(2024, 4, 2, 10, 30), period.Month)

	s.Tick(context.Background())
	s.now = func() time.Time { return at(2024, 4, 20, 0, 0) }
	assert.Empty(t, s.Tick(context.Background()))
	assert.Len(t, pub.users(), 2)
}

func TestScheduler_TickBeforeFiringUsesEarlierPeriod(t *testing.T) {
	store := schedulerStore(t)
	require.NoError(t, store.RecordRun(context.Background(), core.RunRecord{Job: JobName(period.Month), PeriodValue: "2024-02"}))
	pub := &recordingPublisher{}
	// April 2nd, 09:59: the March batch is not due yet.
	s := newTestScheduler(store, pub, at(2024, 4, 2, 9, 59), period.Month)

	assert.Empty(t, s.Tick(context.Background()))
	assert.Empty(t, pub.users())
}

func TestScheduler_PerUserIsolation(t *testing.T) {
	store := schedulerStore(t)
	pub := &recordingPublisher{failOn: map[string]bool{"u1": true}}
	s := newTestScheduler(store, pub, at(2024, 4, 2, 10, 30), period.Month)

	results := s.Tick(context.Background())
	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].Failed)
	assert.Equal(t, 1, results[0].Published)
	assert.Equal(t, []string{"u3"}, pub.users())

	_, ok, _ := store.LastRun(context.Background(), JobName(period.Month))
	assert.True(t, ok, "partially successful batch is recorded")
}

func TestScheduler_TotalFailureIsRetried(t *testing.T) {
	store := schedulerStore(t)
	pub := &recordingPublisher{failOn: map[string]bool{"u1": true, "u3": true}}
	s := newTestScheduler(store, pub, at(2024, 4, 2, 10, 30), period.Month)

	s.Tick(context.Background())
	_, ok, _ := store.LastRun(context.Background(), JobName(period.Month))
	assert.False(t, ok)

	pub.mu.Lock()
	pub.failOn = nil
	pub.mu.Unlock()
	results := s.Tick(context.Background())
	require.Len(t, results, 1)
	assert.Equal(t, 2, results[0].Published)
}

func TestScheduler_MissedFiringPastCatchUp(t *testing.T) {
	store := schedulerStore(t)
	pub := &recordingPublisher{}
	s := newTestScheduler(store, pub, at(2024, 4, 10, 0, 0), period.Month)

	assert.Empty(t, s.Tick(context.Background()))
	assert.Empty(t, pub.users())

	rec, ok, _ := store.LastRun(context.Background(), JobName(period.Month))
	require.True(t, ok)
	assert.Equal(t, "2024-03", rec.PeriodValue)
}

func TestScheduler_RunFor(t *testing.T) {
	store := schedulerStore(t)
	pub := &recordingPublisher{}
	s := newTestScheduler(store, pub, at(2024, 6, 1, 0, 0), period.Month)

	res, err := s.RunFor(context.Background(), period.Quarter, "2024-Q1")
	require.NoError(t, err)
	assert.Equal(t, "2024-Q1", res.Period)
	assert.Equal(t, 2, res.Published)
	assert.Equal(t, amqp.TriggerManual, pub.msgs[0].Trigger)

	_, ok, _ := store.LastRun(context.Background(), JobName(period.Quarter))
	assert.False(t, ok, "manual runs leave the run log alone")

	_, err = s.RunFor(context.Background(), period.Month, "2024-13")
	assert.ErrorIs(t, err, period.ErrInvalidPeriod)
}

func TestScheduler_StartStop(t *testing.T) {
	s := newTestScheduler(schedulerStore(t), &recordingPublisher{}, at(2024, 4, 2, 10, 30), period.Month)
	ctx := context.Background()

	require.NoError(t, s.Start(ctx))
	assert.True(t, s.IsRunning())
	assert.Error(t, s.Start(ctx), "second start must fail")

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(stopCtx))
	assert.False(t, s.IsRunning())
	assert.NoError(t, s.Stop(stopCtx), "stop when not running is a no-op")
}

func TestScheduler_ConcurrentStop(t *testing.T) {
	s := newTestScheduler(schedulerStore(t), &recordingPublisher{}, at(2024, 4, 2, 10, 30), period.Month)
	require.NoError(t, s.Start(context.Background()))

	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.Stop(stopCtx)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
	assert.False(t, s.IsRunning())

	// The scheduler can be started again after a stop.
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop(stopCtx))
}

type recordingReminder struct {
	mu     sync.Mutex
	sent   []string
	failOn map[string]bool
}

func (r *recordingReminder) Remind(_ context.Context, u core.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failOn[u.ID] {
		return errors.New("relay refused")
	}
	r.sent = append(r.sent, u.ID)
	return nil
}

func reminderStore(t *testing.T) *memory.Store {
	t.Helper()
	s := memory.New()
	require.NoError(t, s.Load(context.Background(), core.Dataset{
		Users: []core.SeedUser{
			{ID: "u1", Email: "ada@example.com"},
			{ID: "u2", Email: "bob@example.com"},
			{ID: "u3"},
			{ID: "u4", Email: "idle@example.com"},
		},
		Bills: []core.SeedBill{{UserID: "u1", Month: "2024-04", TotalBalance: "1000"}},
		Entries: []core.SeedEntry{
			{UserID: "u2", Date: "2024-04-01", Items: []core.SeedItem{{Category: "Food", Amount: "5"}}},
			{UserID: "u3", Date: "2024-04-01", Items: []core.SeedItem{{Category: "Food", Amount: "5"}}},
		},
	}))
	return s
}

func TestScheduler_DailyReminder(t *testing.T) {
	store := reminderStore(t)
	rem := &recordingReminder{}
	s := newTestScheduler(store, &recordingPublisher{}, at(2024, 4, 3, 9, 30), period.Month)
	s.EnableReminder(store, rem, DailyTrigger{Hour: 9})

	s.Tick(context.Background())
	assert.Equal(t, []string{"u1", "u2"}, rem.sent, "only billed users with an address")
	rec, ok, err := store.LastRun(context.Background(), ReminderJob)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2024-04-03", rec.PeriodValue)

	s.Tick(context.Background())
	assert.Len(t, rem.sent, 2, "one reminder per day")
}

func TestScheduler_DailyReminderMissedDayIsSkipped(t *testing.T) {
	store := reminderStore(t)
	rem := &recordingReminder{}
	// Before 09:00 the last firing is yesterday's, which is over.
	s := newTestScheduler(store, &recordingPublisher{}, at(2024, 4, 3, 8, 0), period.Month)
	s.EnableReminder(store, rem, DailyTrigger{Hour: 9})

	s.Tick(context.Background())
	assert.Empty(t, rem.sent)
	rec, ok, err := store.LastRun(context.Background(), ReminderJob)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2024-04-02", rec.PeriodValue)
}

func TestScheduler_RunReminders(t *testing.T) {
	tests := []struct {
		name   string
		failOn map[string]bool
		want   ReminderResult
	}{
		{"all sent", nil, ReminderResult{Date: "2024-04-03", Users: 3, Sent: 2, Skipped: 1}},
		{"one failure", map[string]bool{"u2": true}, ReminderResult{Date: "2024-04-03", Users: 3, Sent: 1, Skipped: 1, Failed: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := reminderStore(t)
			s := newTestScheduler(store, &recordingPublisher{}, at(2024, 4, 3, 9, 30))
			s.EnableReminder(store, &recordingReminder{failOn: tt.failOn}, DailyTrigger{Hour: 9})

			got, err := s.RunReminders(context.Background(), "2024-04-03")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestScheduler_RunRemindersDisabled(t *testing.T) {
	s := newTestScheduler(schedulerStore(t), &recordingPublisher{}, at(2024, 4, 3, 9, 30), period.Month)
	_, err := s.RunReminders(context.Background(), "2024-04-03")
	assert.Error(t, err)
}

func TestScheduler_TotalReminderFailureIsRetried(t *testing.T) {
	store := reminderStore(t)
	rem := &recordingReminder{failOn: map[string]bool{"u1": true, "u2": true}}
	s := newTestScheduler(store, &recordingPublisher{}, at(2024, 4, 3, 9, 30), period.Month)
	s.EnableReminder(store, rem, DailyTrigger{Hour: 9})

	s.Tick(context.Background())
	_, ok, _ := store.LastRun(context.Background(), ReminderJob)
	assert.False(t, ok)
}

type failingUsers struct{ *memory.Store }

func (failingUsers) ListUsers(context.Context) ([]core.User, error) {
	return nil, errors.New("db down")
}

func TestScheduler_ListUsersFailureSkipsRecord(t *testing.T) {
	store := failingUsers{schedulerStore(t)}
	s := newTestScheduler(store, &recordingPublisher{}, at(2024, 4, 2, 10, 30), period.Month)

	assert.Empty(t, s.Tick(context.Background()))
	_, ok, _ := store.LastRun(context.Background(), JobName(period.Month))
	assert.False(t, ok)
}
