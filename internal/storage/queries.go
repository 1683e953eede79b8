package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// scopedItems joins items to their owning user. Every aggregate read starts here.
const scopedItems = `
FROM entry_items ei
JOIN daily_entries de ON de.id = ei.daily_entry_id
JOIN work_bills wb ON wb.id = de.bill_id
WHERE wb.user_id = ? AND de.entry_date BETWEEN ? AND ?`

const categoryExpr = `COALESCE(NULLIF(TRIM(ei.category), ''), 'Uncategorized')`

const categoryTotals = `SELECT ` + categoryExpr + ` AS category, SUM(ei.amount_cents) AS total` + scopedItems + `
GROUP BY 1
ORDER BY total DESC, category ASC`

const dailyTotals = `SELECT de.entry_date, SUM(ei.amount_cents) AS total` + scopedItems + `
GROUP BY de.entry_date
ORDER BY de.entry_date`

const detailedDaily = `SELECT de.entry_date, ` + categoryExpr + ` AS category, SUM(ei.amount_cents) AS total` + scopedItems + `
GROUP BY de.entry_date, 2
ORDER BY de.entry_date, category`

const monthlyTotals = `SELECT substr(de.entry_date, 1, 7) AS month, SUM(ei.amount_cents) AS total` + scopedItems + `
GROUP BY month
ORDER BY month`

const detailedMonthly = `SELECT substr(de.entry_date, 1, 7) AS month, ` + categoryExpr + ` AS category, SUM(ei.amount_cents) AS total` + scopedItems + `
GROUP BY month, 2
ORDER BY month, category`

const quarterlyTotals = `SELECT (CAST(substr(de.entry_date, 6, 2) AS INTEGER) - 1) / 3 + 1 AS quarter, SUM(ei.amount_cents) AS total` + scopedItems + `
GROUP BY quarter
ORDER BY quarter`

const hasEntries = `SELECT EXISTS (SELECT 1` + scopedItems + `)`

const incomeForMonth = `SELECT COALESCE(SUM(total_balance_cents), 0)
FROM work_bills
WHERE user_id = ? AND bill_month = ?`

const incomeForRange = `SELECT COALESCE(SUM(total_balance_cents), 0)
FROM work_bills
WHERE user_id = ? AND bill_month BETWEEN ? AND ?`

const dailyActivity = `SELECT de.entry_date, COUNT(ei.id), COALESCE(SUM(ei.amount_cents), 0)
FROM entry_items ei
JOIN daily_entries de ON de.id = ei.daily_entry_id
JOIN work_bills wb ON wb.id = de.bill_id
WHERE wb.user_id = ?
GROUP BY de.entry_date
ORDER BY de.entry_date`

type GroupRow struct {
	Key   string
	Total int64
}

type DetailRow struct {
	Key      string
	Category string
	Total    int64
}

type ActivityRow struct {
	Date  string
	Items int64
	Total int64
}

type RangeParams struct {
	UserID string
	Start  string
	End    string
}

func (q *Queries) groupRows(ctx context.Context, query string, arg RangeParams) ([]GroupRow, error) {
	rows, err := q.db.QueryContext(ctx, query, arg.UserID, arg.Start, arg.End)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []GroupRow
	for rows.Next() {
		var i GroupRow
		if err := rows.Scan(&i.Key, &i.Total); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

func (q *Queries) detailRows(ctx context.Context, query string, arg RangeParams) ([]DetailRow, error) {
	rows, err := q.db.QueryContext(ctx, query, arg.UserID, arg.Start, arg.End)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []DetailRow
	for rows.Next() {
		var i DetailRow
		if err := rows.Scan(&i.Key, &i.Category, &i.Total); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

func (q *Queries) CategoryTotals(ctx context.Context, arg RangeParams) ([]GroupRow, error) {
	return q.groupRows(ctx, categoryTotals, arg)
}

func (q *Queries) DailyTotals(ctx context.Context, arg RangeParams) ([]GroupRow, error) {
	return q.groupRows(ctx, dailyTotals, arg)
}

func (q *Queries) MonthlyTotals(ctx context.Context, arg RangeParams) ([]GroupRow, error) {
	return q.groupRows(ctx, monthlyTotals, arg)
}

func (q *Queries) QuarterlyTotals(ctx context.Context, arg RangeParams) ([]GroupRow, error) {
	return q.groupRows(ctx, quarterlyTotals, arg)
}

func (q *Queries) DetailedDaily(ctx context.Context, arg RangeParams) ([]DetailRow, error) {
	return q.detailRows(ctx, detailedDaily, arg)
}

func (q *Queries) DetailedMonthly(ctx context.Context, arg RangeParams) ([]DetailRow, error) {
	return q.detailRows(ctx, detailedMonthly, arg)
}

func (q *Queries) HasEntries(ctx context.Context, arg RangeParams) (bool, error) {
	var exists int64
	err := q.db.QueryRowContext(ctx, hasEntries, arg.UserID, arg.Start, arg.End).Scan(&exists)
	return exists == 1, err
}

func (q *Queries) IncomeForMonth(ctx context.Context, userID, billMonth string) (int64, error) {
	var cents int64
	err := q.db.QueryRowContext(ctx, incomeForMonth, userID, billMonth).Scan(&cents)
	return cents, err
}

func (q *Queries) IncomeForRange(ctx context.Context, arg RangeParams) (int64, error) {
	var cents int64
	err := q.db.QueryRowContext(ctx, incomeForRange, arg.UserID, arg.Start, arg.End).Scan(&cents)
	return cents, err
}

func (q *Queries) DailyActivity(ctx context.Context, userID string) ([]ActivityRow, error) {
	rows, err := q.db.QueryContext(ctx, dailyActivity, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ActivityRow
	for rows.Next() {
		var i ActivityRow
		if err := rows.Scan(&i.Date, &i.Items, &i.Total); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const listUsers = `SELECT id, email, name FROM users ORDER BY id`

const listBillingUsers = `SELECT DISTINCT u.id, u.email, u.name
FROM users u
JOIN work_bills wb ON wb.user_id = u.id
ORDER BY u.id`

type UserRow struct {
	ID    string
	Email string
	Name  string
}

func (q *Queries) ListUsers(ctx context.Context) ([]UserRow, error) {
	return q.queryUsers(ctx, listUsers)
}

func (q *Queries) ListBillingUsers(ctx context.Context) ([]UserRow, error) {
	return q.queryUsers(ctx, listBillingUsers)
}

func (q *Queries) queryUsers(ctx context.Context, query string) ([]UserRow, error) {
	rows, err := q.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []UserRow
	for rows.Next() {
		var i UserRow
		if err := rows.Scan(&i.ID, &i.Email, &i.Name); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const getUser = `SELECT id, email, name FROM users WHERE id = ?`

func (q *Queries) GetUser(ctx context.Context, id string) (UserRow, error) {
	row := q.db.QueryRowContext(ctx, getUser, id)
	var i UserRow
	err := row.Scan(&i.ID, &i.Email, &i.Name)
	return i, err
}

const upsertUser = `INSERT INTO users (id, email, name) VALUES (?, ?, ?)
ON CONFLICT(id) DO UPDATE SET email = excluded.email, name = excluded.name`

func (q *Queries) UpsertUser(ctx context.Context, arg UserRow) error {
	_, err := q.db.ExecContext(ctx, upsertUser, arg.ID, arg.Email, arg.Name)
	return err
}

const upsertBill = `INSERT INTO work_bills (user_id, bill_month, total_balance_cents) VALUES (?, ?, ?)
ON CONFLICT(user_id, bill_month) DO UPDATE SET total_balance_cents = excluded.total_balance_cents`

func (q *Queries) UpsertBill(ctx context.Context, userID, billMonth string, cents int64) error {
	_, err := q.db.ExecContext(ctx, upsertBill, userID, billMonth, cents)
	return err
}

const ensureBill = `INSERT INTO work_bills (user_id, bill_month) VALUES (?, ?)
ON CONFLICT(user_id, bill_month) DO NOTHING`

const billID = `SELECT id FROM work_bills WHERE user_id = ? AND bill_month = ?`

// EnsureBill returns the id of the user's bill for month, creating a zero
// balance bill when none exists.
func (q *Queries) EnsureBill(ctx context.Context, userID, billMonth string) (int64, error) {
	if _, err := q.db.ExecContext(ctx, ensureBill, userID, billMonth); err != nil {
		return 0, err
	}
	var id int64
	err := q.db.QueryRowContext(ctx, billID, userID, billMonth).Scan(&id)
	return id, err
}

const ensureDailyEntry = `INSERT INTO daily_entries (bill_id, entry_date) VALUES (?, ?)
ON CONFLICT(bill_id, entry_date) DO NOTHING`

const dailyEntryID = `SELECT id FROM daily_entries WHERE bill_id = ? AND entry_date = ?`

func (q *Queries) EnsureDailyEntry(ctx context.Context, billID int64, entryDate string) (int64, error) {
	if _, err := q.db.ExecContext(ctx, ensureDailyEntry, billID, entryDate); err != nil {
		return 0, err
	}
	var id int64
	err := q.db.QueryRowContext(ctx, dailyEntryID, billID, entryDate).Scan(&id)
	return id, err
}

const insertItem = `INSERT INTO entry_items (daily_entry_id, category, amount_cents, description, proof_url)
VALUES (?, ?, ?, ?, ?)`

type InsertItemParams struct {
	DailyEntryID int64
	Category     sql.NullString
	AmountCents  int64
	Description  sql.NullString
	ProofURL     sql.NullString
}

func (q *Queries) InsertItem(ctx context.Context, arg InsertItemParams) error {
	_, err := q.db.ExecContext(ctx, insertItem, arg.DailyEntryID, arg.Category, arg.AmountCents, arg.Description, arg.ProofURL)
	return err
}

const refreshTotalDebit = `UPDATE daily_entries
SET total_debit_cents = (SELECT COALESCE(SUM(amount_cents), 0) FROM entry_items WHERE daily_entry_id = daily_entries.id)
WHERE id = ?`

func (q *Queries) RefreshTotalDebit(ctx context.Context, dailyEntryID int64) error {
	_, err := q.db.ExecContext(ctx, refreshTotalDebit, dailyEntryID)
	return err
}

const insertNotification = `INSERT INTO notifications (id, user_id, type, title, message, data, route_url, action_text, is_read, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

type NotificationRow struct {
	ID         string
	UserID     string
	Type       string
	Title      string
	Message    string
	Data       string
	RouteURL   string
	ActionText string
	IsRead     bool
	CreatedAt  string
}

func (q *Queries) InsertNotification(ctx context.Context, arg NotificationRow) error {
	_, err := q.db.ExecContext(ctx, insertNotification,
		arg.ID, arg.UserID, arg.Type, arg.Title, arg.Message, arg.Data, arg.RouteURL, arg.ActionText, arg.IsRead, arg.CreatedAt)
	return err
}

const listNotifications = `SELECT id, user_id, type, title, message, data, route_url, action_text, is_read, created_at
FROM notifications
WHERE user_id = ? AND (? = '' OR type = ?)
ORDER BY created_at DESC, id DESC
LIMIT ?`

func (q *Queries) ListNotifications(ctx context.Context, userID, kind string, limit int) ([]NotificationRow, error) {
	rows, err := q.db.QueryContext(ctx, listNotifications, userID, kind, kind, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []NotificationRow
	for rows.Next() {
		var i NotificationRow
		if err := rows.Scan(&i.ID, &i.UserID, &i.Type, &i.Title, &i.Message, &i.Data,
			&i.RouteURL, &i.ActionText, &i.IsRead, &i.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const markNotificationRead = `UPDATE notifications SET is_read = 1 WHERE id = ? AND user_id = ?`

func (q *Queries) MarkNotificationRead(ctx context.Context, id, userID string) (int64, error) {
	res, err := q.db.ExecContext(ctx, markNotificationRead, id, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const countUnread = `SELECT COUNT(*) FROM notifications WHERE user_id = ? AND is_read = 0`

func (q *Queries) CountUnread(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, countUnread, userID).Scan(&n)
	return n, err
}

const markAllNotificationsRead = `UPDATE notifications SET is_read = 1 WHERE user_id = ? AND is_read = 0`

func (q *Queries) MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error) {
	res, err := q.db.ExecContext(ctx, markAllNotificationsRead, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteNotification = `DELETE FROM notifications WHERE id = ? AND user_id = ?`

func (q *Queries) DeleteNotification(ctx context.Context, id, userID string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteNotification, id, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const lastRun = `SELECT job, period_value, ran_at FROM report_runs WHERE job = ?`

type RunRow struct {
	Job         string
	PeriodValue string
	RanAt       string
}

func (q *Queries) LastRun(ctx context.Context, job string) (RunRow, error) {
	var i RunRow
	err := q.db.QueryRowContext(ctx, lastRun, job).Scan(&i.Job, &i.PeriodValue, &i.RanAt)
	return i, err
}

const recordRun = `INSERT INTO report_runs (job, period_value, ran_at) VALUES (?, ?, ?)
ON CONFLICT(job) DO UPDATE SET period_value = excluded.period_value, ran_at = excluded.ran_at`

func (q *Queries) RecordRun(ctx context.Context, arg RunRow) error {
	_, err := q.db.ExecContext(ctx, recordRun, arg.Job, arg.PeriodValue, arg.RanAt)
	return err
}
