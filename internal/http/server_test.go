package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spese-report/internal/cache"
	"spese-report/internal/core"
	"spese-report/internal/period"
	"spese-report/internal/report"
	"spese-report/internal/storage/memory"
)

func seededStore(t *testing.T) *memory.Store {
	t.Helper()
	s := memory.New()
	require.NoError(t, s.Load(context.Background(), core.Dataset{
		Users: []core.SeedUser{{ID: "u1", Email: "ada@example.com"}},
		Bills: []core.SeedBill{{UserID: "u1", Month: "2024-03", TotalBalance: "50000"}},
		Entries: []core.SeedEntry{
			{UserID: "u1", Date: "2024-03-02", Items: []core.SeedItem{{Category: "Food", Amount: "7000"}}},
			{UserID: "u1", Date: "2024-03-10", Items: []core.SeedItem{{Category: "Transport", Amount: "5000"}}},
		},
	}))
	return s
}

type testServer struct {
	*Server
	store *memory.Store
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	store := seededStore(t)
	if opts.Reports == nil {
		opts.Reports = report.NewService(store, report.Config{Resolver: period.NewResolver(time.Sunday)})
	}
	if opts.Notifications == nil {
		opts.Notifications = store
	}
	opts.Now = func() time.Time { return time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC) }
	srv := NewServer(opts)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testServer{Server: srv, store: store}
}

func (ts *testServer) get(t *testing.T, path, user string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	return ts.do(t, http.MethodGet, path, user)
}

func (ts *testServer) do(t *testing.T, method, path, user string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "198.51.100.10:5555"
	if user != "" {
		req.Header.Set(HeaderUserID, user)
	}
	rr := httptest.NewRecorder()
	ts.Handler.ServeHTTP(rr, req)

	var body map[string]any
	if rr.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body), rr.Body.String())
	}
	return rr, body
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t, Options{Ready: func(context.Context) error { return nil }})

	for _, path := range []string{"/healthz", "/readyz"} {
		rr, _ := ts.get(t, path, "")
		assert.Equal(t, http.StatusOK, rr.Code, path)
	}

	rr, body := ts.get(t, "/api/reports/health", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Report service is healthy", body["message"])
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
}

func TestReadyReportsStoreFailure(t *testing.T) {
	ts := newTestServer(t, Options{Ready: func(context.Context) error { return errors.New("down") }})
	rr, body := ts.get(t, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "not_ready", body["status"])
}

func TestMonthlyReportData(t *testing.T) {
	ts := newTestServer(t, Options{})

	rr, body := ts.get(t, "/api/reports/monthly/data/2024-03", "u1")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Monthly report generated successfully", body["message"])

	data := body["data"].(map[string]any)
	assert.Equal(t, "monthly", data["type"])
	assert.Equal(t, 50000.0, data["totalIncome"])
	assert.Equal(t, 12000.0, data["totalExpense"])
	assert.Equal(t, 38000.0, data["savings"])
	assert.Equal(t, 76.0, data["savingsRate"])
	assert.NotContains(t, data, "previousMonth")

	p := data["period"].(map[string]any)
	assert.Equal(t, "2024-03-01", p["start"])
	assert.Equal(t, "2024-03-31", p["end"])
}

func TestLegacyQueryRoute(t *testing.T) {
	ts := newTestServer(t, Options{})

	rr, body := ts.get(t, "/api/reports/quarterly?date=2024-02-15", "u1")
	require.Equal(t, http.StatusOK, rr.Code)
	p := body["data"].(map[string]any)["period"].(map[string]any)
	assert.Equal(t, "2024-01-01", p["start"])
	assert.Equal(t, "2024-03-31", p["end"])

	rr, body = ts.get(t, "/api/reports/monthly", "u1")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "date parameter is required", body["error"])
}

func TestInvalidPeriodIs400(t *testing.T) {
	ts := newTestServer(t, Options{})

	rr, body := ts.get(t, "/api/reports/monthly/data/2024-13", "u1")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["message"], "2024-13")
}

func TestMissingUserIs401(t *testing.T) {
	ts := newTestServer(t, Options{})
	rr, body := ts.get(t, "/api/reports/monthly/data/2024-03", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "UNAUTHORIZED", body["error"])
}

type failingReporter struct{}

func (failingReporter) Resolver() period.Resolver { return period.NewResolver(time.Sunday) }

func (failingReporter) GenerateFor(context.Context, string, period.Resolution) (*report.Report, error) {
	return nil, &report.AggregationError{Op: report.OpCategoryTotals, Period: "current", Err: errors.New("pq: relation does not exist")}
}

func (failingReporter) Available(context.Context, string, period.Granularity) ([]core.AvailablePeriod, error) {
	return nil, errors.New("boom")
}

func TestAggregationErrorHidesDetail(t *testing.T) {
	tests := []struct {
		name       string
		debug      bool
		wantDetail string
	}{
		{"production", false, "AGGREGATION_FAILED"},
		{"debug", true, "aggregation categoryTotals (current period): pq: relation does not exist"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, Options{Reports: failingReporter{}, Debug: tt.debug})
			rr, body := ts.get(t, "/api/reports/monthly/data/2024-03", "u1")
			assert.Equal(t, http.StatusInternalServerError, rr.Code)
			assert.Equal(t, "Failed to generate report", body["message"])
			assert.Equal(t, tt.wantDetail, body["error"])
		})
	}
}

func TestAvailableMonths(t *testing.T) {
	ts := newTestServer(t, Options{})

	rr, body := ts.get(t, "/api/reports/monthly/available-months", "u1")
	require.Equal(t, http.StatusOK, rr.Code)
	list := body["data"].([]any)
	require.Len(t, list, 1)
	first := list[0].(map[string]any)
	assert.Equal(t, "2024-03", first["value"])
	assert.Equal(t, 2.0, first["entryCount"])

	rr, _ = ts.get(t, "/api/reports/years/available", "u1")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestReportCache(t *testing.T) {
	store := cache.NewLRUStore(10, time.Minute)
	ts := newTestServer(t, Options{Cache: store})

	rr, first := ts.get(t, "/api/reports/monthly/data/2024-03-20", "u1")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "MISS", rr.Header().Get("X-Cache"))

	// Any token inside March maps to the same entry.
	rr, second := ts.get(t, "/api/reports/monthly/data/2024-03", "u1")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "HIT", rr.Header().Get("X-Cache"))
	assert.Equal(t, first["data"], second["data"])

	_, ok, err := store.Get(context.Background(), cache.ReportKey("u1", "monthly", "2024-03"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNotifications(t *testing.T) {
	ts := newTestServer(t, Options{})
	ctx := context.Background()
	base := time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"n1", "n2", "n3"} {
		require.NoError(t, ts.store.CreateNotification(ctx, core.Notification{
			ID: id, UserID: "u1", Type: core.NotificationReport, Title: "Report ready",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	rr, body := ts.get(t, "/api/notifications?limit=2", "u1")
	require.Equal(t, http.StatusOK, rr.Code)
	page := body["data"].(map[string]any)
	assert.Equal(t, true, page["hasMore"])
	assert.Equal(t, 3.0, page["unreadCount"])
	assert.Len(t, page["notifications"], 2)

	rr, _ = ts.do(t, http.MethodPost, "/api/notifications/n3/read", "u1")
	assert.Equal(t, http.StatusOK, rr.Code)

	rr, body = ts.do(t, http.MethodPost, "/api/notifications/missing/read", "u1")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, false, body["success"])

	rr, body = ts.get(t, "/api/notifications", "u2")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, body["data"].(map[string]any)["notifications"])
}

func TestNotificationUnreadCountSpansAllPages(t *testing.T) {
	ts := newTestServer(t, Options{})
	ctx := context.Background()
	base := time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, ts.store.CreateNotification(ctx, core.Notification{
			ID: fmt.Sprintf("n%d", i), UserID: "u1", Type: core.NotificationReport, Title: "Report ready",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, ts.store.CreateNotification(ctx, core.Notification{
		ID: "info", UserID: "u1", Type: core.NotificationInfo, Title: "Welcome", CreatedAt: base,
	}))

	rr, body := ts.get(t, "/api/notifications?limit=2", "u1")
	require.Equal(t, http.StatusOK, rr.Code)
	page := body["data"].(map[string]any)
	assert.Equal(t, true, page["hasMore"])
	assert.Equal(t, 6.0, page["unreadCount"])
	assert.Len(t, page["notifications"], 2)

	rr, body = ts.get(t, "/api/notifications?type=info", "u1")
	require.Equal(t, http.StatusOK, rr.Code)
	page = body["data"].(map[string]any)
	require.Len(t, page["notifications"], 1)
	assert.Equal(t, "info", page["notifications"].([]any)[0].(map[string]any)["id"])
	assert.Equal(t, false, page["hasMore"])

	rr, body = ts.get(t, "/api/notifications/unread-count", "u1")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 6.0, body["data"].(map[string]any)["unreadCount"])
}

func TestNotificationMarkAllAndDelete(t *testing.T) {
	ts := newTestServer(t, Options{})
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, ts.store.CreateNotification(ctx, core.Notification{ID: id, UserID: "u1", Type: core.NotificationReport}))
	}
	require.NoError(t, ts.store.CreateNotification(ctx, core.Notification{ID: "z", UserID: "u2", Type: core.NotificationReport}))

	rr, body := ts.do(t, http.MethodPatch, "/api/notifications/mark-all-read", "u1")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 3.0, body["data"].(map[string]any)["updated"])

	rr, body = ts.get(t, "/api/notifications/unread-count", "u1")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 0.0, body["data"].(map[string]any)["unreadCount"])

	rr, body = ts.get(t, "/api/notifications/unread-count", "u2")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1.0, body["data"].(map[string]any)["unreadCount"])

	rr, _ = ts.do(t, http.MethodDelete, "/api/notifications/b", "u1")
	assert.Equal(t, http.StatusOK, rr.Code)

	rr, body = ts.do(t, http.MethodDelete, "/api/notifications/z", "u1")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, false, body["success"])

	rr, body = ts.get(t, "/api/notifications", "u1")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, body["data"].(map[string]any)["notifications"], 2)
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, Options{RateLimitRPM: 2})

	for i := 0; i < 2; i++ {
		rr, _ := ts.get(t, "/api/reports/health", "u1")
		require.Equal(t, http.StatusOK, rr.Code)
	}
	rr, body := ts.get(t, "/api/reports/health", "u1")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "RATE_LIMITED", body["error"])

	rr, _ = ts.get(t, "/api/reports/health", "u2")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestUnknownRoute(t *testing.T) {
	ts := newTestServer(t, Options{})
	rr, body := ts.get(t, "/api/nope", "u1")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, false, body["success"])
}
