package worker

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spese-report/internal/amqp"
	"spese-report/internal/core"
	"spese-report/internal/period"
	"spese-report/internal/report"
	sheetsmem "spese-report/internal/sheets/memory"
	"spese-report/internal/storage/memory"
)

type sentMail struct {
	to   string
	mail Email
}

type fakeMailer struct {
	mu    sync.Mutex
	sent  []sentMail
	fails int
}

func (m *fakeMailer) Send(_ context.Context, to string, mail Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fails > 0 {
		m.fails--
		return errors.New("relay refused")
	}
	m.sent = append(m.sent, sentMail{to: to, mail: mail})
	return nil
}

type fakePublisher struct {
	msgs []*amqp.ReportReadyMessage
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, msg *amqp.ReportReadyMessage) error {
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

type harness struct {
	worker    *DeliveryWorker
	store     *memory.Store
	mailer    *fakeMailer
	exporter  *sheetsmem.Store
	publisher *fakePublisher
	slept     []time.Duration
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := memory.New()
	require.NoError(t, store.Load(context.Background(), core.Dataset{
		Users: []core.SeedUser{
			{ID: "u1", Email: "ada@example.com", Name: "Ada"},
			{ID: "u2"},
		},
		Bills: []core.SeedBill{{UserID: "u1", Month: "2024-03", TotalBalance: "50000"}},
		Entries: []core.SeedEntry{
			{UserID: "u1", Date: "2024-03-02", Items: []core.SeedItem{{Category: "Food", Amount: "7000"}}},
			{UserID: "u1", Date: "2024-03-10", Items: []core.SeedItem{{Category: "Transport", Amount: "5000"}}},
			{UserID: "u2", Date: "2024-03-10", Items: []core.SeedItem{{Category: "Food", Amount: "10"}}},
		},
	}))

	renderer, err := NewRenderer()
	require.NoError(t, err)

	h := &harness{
		store:     store,
		mailer:    &fakeMailer{},
		exporter:  sheetsmem.New(),
		publisher: &fakePublisher{},
	}
	reports := report.NewService(store, report.Config{Resolver: period.NewResolver(time.Sunday)})
	h.worker = NewDeliveryWorker(reports, store, h.mailer, renderer, h.exporter, h.publisher, DeliveryConfig{MaxRetries: 2}, nil)
	h.worker.now = func() time.Time { return time.Date(2024, 4, 2, 10, 0, 0, 0, time.UTC) }
	h.worker.sleep = func(_ context.Context, d time.Duration) error {
		h.slept = append(h.slept, d)
		return nil
	}
	return h
}

func message(userID, value string) *amqp.ReportReadyMessage {
	return amqp.NewReportReadyMessage(userID, period.Month, value, amqp.TriggerScheduled, time.Date(2024, 4, 2, 10, 0, 0, 0, time.UTC))
}

func TestHandleReportMessage_Delivers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.worker.HandleReportMessage(ctx, message("u1", "2024-03")))

	require.Len(t, h.mailer.sent, 1)
	sent := h.mailer.sent[0]
	assert.Equal(t, "ada@example.com", sent.to)
	assert.Contains(t, sent.mail.Subject, "monthly report")
	assert.Contains(t, sent.mail.HTML, "12000.00")
	assert.Contains(t, sent.mail.Text, "Saved: 38000.00 (76%)")

	list, err := h.store.ListNotifications(ctx, "u1", "", 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	n := list[0]
	assert.Equal(t, core.NotificationReport, n.Type)
	assert.Equal(t, "/api/reports/monthly/data/2024-03", n.RouteURL)
	assert.Len(t, n.ID, 26, "notification ids are ULIDs")

	var data map[string]any
	require.NoError(t, json.Unmarshal(n.Data, &data))
	assert.Equal(t, "2024-03", data["period"])
	assert.Equal(t, 12000.0, data["totalExpense"])

	rows := h.exporter.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, "Food", rows[0].TopCategory)
	assert.Equal(t, 76, rows[0].SavingsRate)

	assert.Empty(t, h.publisher.msgs)
}

func TestHandleReportMessage_NoEmailStillNotifies(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.worker.HandleReportMessage(context.Background(), message("u2", "2024-03")))

	assert.Empty(t, h.mailer.sent)
	list, _ := h.store.ListNotifications(context.Background(), "u2", "", 10)
	assert.Len(t, list, 1)
}

func TestHandleReportMessage_RetriesWithBackoff(t *testing.T) {
	h := newHarness(t)
	h.mailer.fails = 1
	msg := message("u1", "2024-03")

	require.NoError(t, h.worker.HandleReportMessage(context.Background(), msg))
	require.Len(t, h.publisher.msgs, 1)
	retry := h.publisher.msgs[0]
	assert.Equal(t, msg.ID, retry.ID)
	assert.Equal(t, 1, retry.Attempt)
	assert.Equal(t, []time.Duration{time.Second}, h.slept)

	// Nothing was recorded for the failed attempt.
	list, _ := h.store.ListNotifications(context.Background(), "u1", "", 10)
	assert.Empty(t, list)

	require.NoError(t, h.worker.HandleReportMessage(context.Background(), retry))
	assert.Len(t, h.mailer.sent, 1)
	assert.Len(t, h.publisher.msgs, 1, "successful retry publishes nothing")
}

func TestHandleReportMessage_GivesUpAfterMaxRetries(t *testing.T) {
	h := newHarness(t)
	h.mailer.fails = 10
	msg := message("u1", "2024-03")
	msg.Attempt = 2

	require.NoError(t, h.worker.HandleReportMessage(context.Background(), msg))
	assert.Empty(t, h.publisher.msgs)
	assert.Empty(t, h.slept)
}

func TestHandleReportMessage_DropsPermanentFailures(t *testing.T) {
	tests := []struct {
		name string
		msg  *amqp.ReportReadyMessage
	}{
		{"unknown user", message("ghost", "2024-03")},
		{"bad period", message("u1", "2024-13")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			require.NoError(t, h.worker.HandleReportMessage(context.Background(), tt.msg))
			assert.Empty(t, h.publisher.msgs)
			assert.Empty(t, h.mailer.sent)
		})
	}
}

func TestHandleReportMessage_RepublishFailureIsReturned(t *testing.T) {
	h := newHarness(t)
	h.mailer.fails = 1
	h.publisher.err = errors.New("channel closed")

	err := h.worker.HandleReportMessage(context.Background(), message("u1", "2024-03"))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "republish"))
}
