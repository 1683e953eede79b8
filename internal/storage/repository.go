// Package storage is the SQLite entry store. Amounts are stored as integer
// cents and dates as YYYY-MM-DD text, so range filters compare lexically.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"spese-report/internal/core"
	"spese-report/internal/period"
)

// timestampLayout is RFC 3339 with a fixed nine-digit fraction, so stored
// timestamps sort lexically in the same order as chronologically.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, queries: New(db)}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func rangeOf(userID string, b period.Boundary) RangeParams {
	return RangeParams{UserID: userID, Start: b.Start.String(), End: b.End.String()}
}

func (r *SQLiteRepository) CategoryTotals(ctx context.Context, userID string, b period.Boundary) ([]core.CategoryTotal, error) {
	rows, err := r.queries.CategoryTotals(ctx, rangeOf(userID, b))
	if err != nil {
		return nil, fmt.Errorf("category totals: %w", err)
	}
	out := make([]core.CategoryTotal, 0, len(rows))
	for _, row := range rows {
		out = append(out, core.CategoryTotal{Category: core.NormalizeCategory(row.Key), Amount: core.MoneyFromCents(row.Total)})
	}
	return out, nil
}

func (r *SQLiteRepository) DailyTotals(ctx context.Context, userID string, b period.Boundary) ([]core.DailyTotal, error) {
	rows, err := r.queries.DailyTotals(ctx, rangeOf(userID, b))
	if err != nil {
		return nil, fmt.Errorf("daily totals: %w", err)
	}
	out := make([]core.DailyTotal, 0, len(rows))
	for _, row := range rows {
		d, err := core.ParseDate(row.Key)
		if err != nil {
			return nil, fmt.Errorf("daily totals: bad entry date %q: %w", row.Key, err)
		}
		out = append(out, core.DailyTotal{Date: d, Total: core.MoneyFromCents(row.Total)})
	}
	return out, nil
}

func (r *SQLiteRepository) DetailedDaily(ctx context.Context, userID string, b period.Boundary) ([]core.DetailedDaily, error) {
	rows, err := r.queries.DetailedDaily(ctx, rangeOf(userID, b))
	if err != nil {
		return nil, fmt.Errorf("detailed daily: %w", err)
	}
	out := make([]core.DetailedDaily, 0, len(rows))
	for _, row := range rows {
		d, err := core.ParseDate(row.Key)
		if err != nil {
			return nil, fmt.Errorf("detailed daily: bad entry date %q: %w", row.Key, err)
		}
		out = append(out, core.DetailedDaily{Date: d, Category: core.NormalizeCategory(row.Category), Amount: core.MoneyFromCents(row.Total)})
	}
	return out, nil
}

func (r *SQLiteRepository) MonthlyTotals(ctx context.Context, userID string, b period.Boundary) ([]core.MonthTotal, error) {
	rows, err := r.queries.MonthlyTotals(ctx, rangeOf(userID, b))
	if err != nil {
		return nil, fmt.Errorf("monthly totals: %w", err)
	}
	out := make([]core.MonthTotal, 0, len(rows))
	for _, row := range rows {
		out = append(out, core.MonthTotal{Month: row.Key, Total: core.MoneyFromCents(row.Total)})
	}
	return out, nil
}

func (r *SQLiteRepository) DetailedMonthly(ctx context.Context, userID string, b period.Boundary) ([]core.DetailedMonthly, error) {
	rows, err := r.queries.DetailedMonthly(ctx, rangeOf(userID, b))
	if err != nil {
		return nil, fmt.Errorf("detailed monthly: %w", err)
	}
	out := make([]core.DetailedMonthly, 0, len(rows))
	for _, row := range rows {
		out = append(out, core.DetailedMonthly{Month: row.Key, Category: core.NormalizeCategory(row.Category), Amount: core.MoneyFromCents(row.Total)})
	}
	return out, nil
}

func (r *SQLiteRepository) QuarterlyTotals(ctx context.Context, userID string, b period.Boundary) ([]core.QuarterTotal, error) {
	rows, err := r.queries.QuarterlyTotals(ctx, rangeOf(userID, b))
	if err != nil {
		return nil, fmt.Errorf("quarterly totals: %w", err)
	}
	out := make([]core.QuarterTotal, 0, len(rows))
	for _, row := range rows {
		q, err := strconv.Atoi(row.Key)
		if err != nil {
			return nil, fmt.Errorf("quarterly totals: bad quarter %q: %w", row.Key, err)
		}
		out = append(out, core.QuarterTotal{Quarter: fmt.Sprintf("Q%d %d", q, b.Start.Year()), Total: core.MoneyFromCents(row.Total)})
	}
	return out, nil
}

func (r *SQLiteRepository) IncomeForMonth(ctx context.Context, userID string, month core.Date) (core.Money, error) {
	billMonth := core.NewDate(month.Year(), int(month.Month()), 1)
	cents, err := r.queries.IncomeForMonth(ctx, userID, billMonth.String())
	if err != nil {
		return core.Zero, fmt.Errorf("income for month: %w", err)
	}
	return core.MoneyFromCents(cents), nil
}

func (r *SQLiteRepository) IncomeForRange(ctx context.Context, userID string, b period.Boundary) (core.Money, error) {
	cents, err := r.queries.IncomeForRange(ctx, rangeOf(userID, b))
	if err != nil {
		return core.Zero, fmt.Errorf("income for range: %w", err)
	}
	return core.MoneyFromCents(cents), nil
}

func (r *SQLiteRepository) HasEntries(ctx context.Context, userID string, b period.Boundary) (bool, error) {
	ok, err := r.queries.HasEntries(ctx, rangeOf(userID, b))
	if err != nil {
		return false, fmt.Errorf("has entries: %w", err)
	}
	return ok, nil
}

func (r *SQLiteRepository) DailyActivity(ctx context.Context, userID string) ([]core.DayActivity, error) {
	rows, err := r.queries.DailyActivity(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("daily activity: %w", err)
	}
	out := make([]core.DayActivity, 0, len(rows))
	for _, row := range rows {
		d, err := core.ParseDate(row.Date)
		if err != nil {
			return nil, fmt.Errorf("daily activity: bad entry date %q: %w", row.Date, err)
		}
		out = append(out, core.DayActivity{Date: d, Items: int(row.Items), Total: core.MoneyFromCents(row.Total)})
	}
	return out, nil
}

func (r *SQLiteRepository) ListUsers(ctx context.Context) ([]core.User, error) {
	rows, err := r.queries.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return toUsers(rows), nil
}

// ListBillingUsers returns the users holding at least one bill.
func (r *SQLiteRepository) ListBillingUsers(ctx context.Context) ([]core.User, error) {
	rows, err := r.queries.ListBillingUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list billing users: %w", err)
	}
	return toUsers(rows), nil
}

func toUsers(rows []UserRow) []core.User {
	users := make([]core.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, core.User{ID: row.ID, Email: row.Email, Name: row.Name})
	}
	return users
}

func (r *SQLiteRepository) GetUser(ctx context.Context, id string) (core.User, error) {
	row, err := r.queries.GetUser(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, fmt.Errorf("user %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", err)
	}
	return core.User{ID: row.ID, Email: row.Email, Name: row.Name}, nil
}

func (r *SQLiteRepository) CreateNotification(ctx context.Context, n core.Notification) error {
	data := string(n.Data)
	if data == "" {
		data = "{}"
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	err := r.queries.InsertNotification(ctx, NotificationRow{
		ID:         n.ID,
		UserID:     n.UserID,
		Type:       n.Type,
		Title:      n.Title,
		Message:    n.Message,
		Data:       data,
		RouteURL:   n.RouteURL,
		ActionText: n.ActionText,
		IsRead:     n.IsRead,
		CreatedAt:  n.CreatedAt.UTC().Format(timestampLayout),
	})
	if err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListNotifications(ctx context.Context, userID, kind string, limit int) ([]core.Notification, error) {
	rows, err := r.queries.ListNotifications(ctx, userID, kind, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	out := make([]core.Notification, 0, len(rows))
	for _, row := range rows {
		created, err := time.Parse(time.RFC3339Nano, row.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("list notifications: bad timestamp %q: %w", row.CreatedAt, err)
		}
		out = append(out, core.Notification{
			ID:         row.ID,
			UserID:     row.UserID,
			Type:       row.Type,
			Title:      row.Title,
			Message:    row.Message,
			Data:       []byte(row.Data),
			RouteURL:   row.RouteURL,
			ActionText: row.ActionText,
			IsRead:     row.IsRead,
			CreatedAt:  created,
		})
	}
	return out, nil
}

func (r *SQLiteRepository) MarkNotificationRead(ctx context.Context, userID, id string) error {
	n, err := r.queries.MarkNotificationRead(ctx, id, userID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("notification %s: %w", id, core.ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	n, err := r.queries.CountUnread(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return int(n), nil
}

func (r *SQLiteRepository) MarkAllNotificationsRead(ctx context.Context, userID string) (int, error) {
	n, err := r.queries.MarkAllNotificationsRead(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return int(n), nil
}

func (r *SQLiteRepository) DeleteNotification(ctx context.Context, userID, id string) error {
	n, err := r.queries.DeleteNotification(ctx, id, userID)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("notification %s: %w", id, core.ErrNotFound)
	}
	return nil
}

// LastRun returns the last recorded run of job, or ok=false when it never ran.
func (r *SQLiteRepository) LastRun(ctx context.Context, job string) (core.RunRecord, bool, error) {
	row, err := r.queries.LastRun(ctx, job)
	if errors.Is(err, sql.ErrNoRows) {
		return core.RunRecord{}, false, nil
	}
	if err != nil {
		return core.RunRecord{}, false, fmt.Errorf("last run: %w", err)
	}
	ranAt, err := time.Parse(time.RFC3339Nano, row.RanAt)
	if err != nil {
		return core.RunRecord{}, false, fmt.Errorf("last run: bad timestamp %q: %w", row.RanAt, err)
	}
	return core.RunRecord{Job: row.Job, PeriodValue: row.PeriodValue, RanAt: ranAt}, true, nil
}

func (r *SQLiteRepository) RecordRun(ctx context.Context, rec core.RunRecord) error {
	err := r.queries.RecordRun(ctx, RunRow{
		Job:         rec.Job,
		PeriodValue: rec.PeriodValue,
		RanAt:       rec.RanAt.UTC().Format(timestampLayout),
	})
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// Load writes ds in a single transaction. Users and bills are upserted; entry
// items are appended to the daily entry of their date.
func (r *SQLiteRepository) Load(ctx context.Context, ds core.Dataset) error {
	if err := ds.Validate(); err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin load: %w", err)
	}
	defer tx.Rollback()
	q := r.queries.WithTx(tx)

	for _, u := range ds.Users {
		if err := q.UpsertUser(ctx, UserRow{ID: u.ID, Email: u.Email, Name: u.Name}); err != nil {
			return fmt.Errorf("load user %s: %w", u.ID, err)
		}
	}
	for _, sb := range ds.Bills {
		b, _ := sb.Bill()
		if err := q.UpsertBill(ctx, b.UserID, b.BillMonth.String(), b.TotalBalance.Cents()); err != nil {
			return fmt.Errorf("load bill %s: %w", sb.Month, err)
		}
	}
	for _, se := range ds.Entries {
		date, _ := core.ParseDate(se.Date)
		billID, err := q.EnsureBill(ctx, se.UserID, core.NewDate(date.Year(), int(date.Month()), 1).String())
		if err != nil {
			return fmt.Errorf("load entry %s: %w", se.Date, err)
		}
		entryID, err := q.EnsureDailyEntry(ctx, billID, date.String())
		if err != nil {
			return fmt.Errorf("load entry %s: %w", se.Date, err)
		}
		for _, si := range se.Items {
			item, _ := si.Item()
			err := q.InsertItem(ctx, InsertItemParams{
				DailyEntryID: entryID,
				Category:     sql.NullString{String: item.Category, Valid: item.Category != ""},
				AmountCents:  item.Amount.Cents(),
				Description:  sql.NullString{String: item.Description, Valid: item.Description != ""},
				ProofURL:     sql.NullString{String: item.ProofURL, Valid: item.ProofURL != ""},
			})
			if err != nil {
				return fmt.Errorf("load item on %s: %w", se.Date, err)
			}
		}
		if err := q.RefreshTotalDebit(ctx, entryID); err != nil {
			return fmt.Errorf("load entry %s: %w", se.Date, err)
		}
	}
	return tx.Commit()
}
