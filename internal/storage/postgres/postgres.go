// Package postgres is the PostgreSQL entry store built on a pgx connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"spese-report/internal/core"
	"spese-report/internal/period"
)

type Store struct {
	pool *pgxpool.Pool
}

// PoolConfig tunes the connection pool. Zero values keep pgx defaults.
type PoolConfig struct {
	MaxConns        int32
	MinConns        int32
	MaxConnIdleTime time.Duration
}

// Connect opens a pool against url, pings it and applies pending migrations.
func Connect(ctx context.Context, url string, pc PoolConfig) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if pc.MaxConns > 0 {
		cfg.MaxConns = pc.MaxConns
	}
	if pc.MinConns > 0 {
		cfg.MinConns = pc.MinConns
	}
	if pc.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = pc.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := RunMigrations(url); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const scopedItems = `
FROM entry_items ei
JOIN daily_entries de ON de.id = ei.daily_entry_id
JOIN work_bills wb ON wb.id = de.bill_id
WHERE wb.user_id = $1 AND de.entry_date BETWEEN $2 AND $3`

const categoryExpr = `COALESCE(NULLIF(TRIM(ei.category), ''), 'Uncategorized')`

func money(s string) (core.Money, error) {
	m, err := core.ParseMoney(s)
	if err != nil {
		return core.Zero, fmt.Errorf("decode amount: %w", err)
	}
	return m, nil
}

func (s *Store) query(ctx context.Context, op, sql string, args []any, scan func(pgx.Rows) error) error {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func rangeArgs(userID string, b period.Boundary) []any {
	return []any{userID, b.Start.Time, b.End.Time}
}

func (s *Store) CategoryTotals(ctx context.Context, userID string, b period.Boundary) ([]core.CategoryTotal, error) {
	out := []core.CategoryTotal{}
	err := s.query(ctx, "category totals",
		`SELECT `+categoryExpr+` AS category, SUM(ei.amount)::text AS total`+scopedItems+`
		GROUP BY 1 ORDER BY SUM(ei.amount) DESC, category ASC`,
		rangeArgs(userID, b), func(rows pgx.Rows) error {
			var category, total string
			if err := rows.Scan(&category, &total); err != nil {
				return err
			}
			amount, err := money(total)
			if err != nil {
				return err
			}
			out = append(out, core.CategoryTotal{Category: core.NormalizeCategory(category), Amount: amount})
			return nil
		})
	return out, err
}

func (s *Store) DailyTotals(ctx context.Context, userID string, b period.Boundary) ([]core.DailyTotal, error) {
	out := []core.DailyTotal{}
	err := s.query(ctx, "daily totals",
		`SELECT de.entry_date, SUM(ei.amount)::text`+scopedItems+`
		GROUP BY de.entry_date ORDER BY de.entry_date`,
		rangeArgs(userID, b), func(rows pgx.Rows) error {
			var day time.Time
			var total string
			if err := rows.Scan(&day, &total); err != nil {
				return err
			}
			amount, err := money(total)
			if err != nil {
				return err
			}
			out = append(out, core.DailyTotal{Date: core.DateOf(day), Total: amount})
			return nil
		})
	return out, err
}

func (s *Store) DetailedDaily(ctx context.Context, userID string, b period.Boundary) ([]core.DetailedDaily, error) {
	out := []core.DetailedDaily{}
	err := s.query(ctx, "detailed daily",
		`SELECT de.entry_date, `+categoryExpr+` AS category, SUM(ei.amount)::text`+scopedItems+`
		GROUP BY de.entry_date, 2 ORDER BY de.entry_date, category`,
		rangeArgs(userID, b), func(rows pgx.Rows) error {
			var day time.Time
			var category, total string
			if err := rows.Scan(&day, &category, &total); err != nil {
				return err
			}
			amount, err := money(total)
			if err != nil {
				return err
			}
			out = append(out, core.DetailedDaily{Date: core.DateOf(day), Category: core.NormalizeCategory(category), Amount: amount})
			return nil
		})
	return out, err
}

func (s *Store) MonthlyTotals(ctx context.Context, userID string, b period.Boundary) ([]core.MonthTotal, error) {
	out := []core.MonthTotal{}
	err := s.query(ctx, "monthly totals",
		`SELECT TO_CHAR(DATE_TRUNC('month', de.entry_date), 'YYYY-MM') AS month, SUM(ei.amount)::text`+scopedItems+`
		GROUP BY 1 ORDER BY 1`,
		rangeArgs(userID, b), func(rows pgx.Rows) error {
			var month, total string
			if err := rows.Scan(&month, &total); err != nil {
				return err
			}
			amount, err := money(total)
			if err != nil {
				return err
			}
			out = append(out, core.MonthTotal{Month: month, Total: amount})
			return nil
		})
	return out, err
}

func (s *Store) DetailedMonthly(ctx context.Context, userID string, b period.Boundary) ([]core.DetailedMonthly, error) {
	out := []core.DetailedMonthly{}
	err := s.query(ctx, "detailed monthly",
		`SELECT TO_CHAR(DATE_TRUNC('month', de.entry_date), 'YYYY-MM') AS month, `+categoryExpr+` AS category, SUM(ei.amount)::text`+scopedItems+`
		GROUP BY 1, 2 ORDER BY 1, 2`,
		rangeArgs(userID, b), func(rows pgx.Rows) error {
			var month, category, total string
			if err := rows.Scan(&month, &category, &total); err != nil {
				return err
			}
			amount, err := money(total)
			if err != nil {
				return err
			}
			out = append(out, core.DetailedMonthly{Month: month, Category: core.NormalizeCategory(category), Amount: amount})
			return nil
		})
	return out, err
}

func (s *Store) QuarterlyTotals(ctx context.Context, userID string, b period.Boundary) ([]core.QuarterTotal, error) {
	out := []core.QuarterTotal{}
	err := s.query(ctx, "quarterly totals",
		`SELECT EXTRACT(QUARTER FROM de.entry_date)::int AS quarter, SUM(ei.amount)::text`+scopedItems+`
		GROUP BY 1 ORDER BY 1`,
		rangeArgs(userID, b), func(rows pgx.Rows) error {
			var quarter int
			var total string
			if err := rows.Scan(&quarter, &total); err != nil {
				return err
			}
			amount, err := money(total)
			if err != nil {
				return err
			}
			out = append(out, core.QuarterTotal{Quarter: fmt.Sprintf("Q%d %d", quarter, b.Start.Year()), Total: amount})
			return nil
		})
	return out, err
}

func (s *Store) scalarMoney(ctx context.Context, op, sql string, args ...any) (core.Money, error) {
	var total string
	if err := s.pool.QueryRow(ctx, sql, args...).Scan(&total); err != nil {
		return core.Zero, fmt.Errorf("%s: %w", op, err)
	}
	return money(total)
}

func (s *Store) IncomeForMonth(ctx context.Context, userID string, month core.Date) (core.Money, error) {
	return s.scalarMoney(ctx, "income for month",
		`SELECT COALESCE(SUM(total_balance), 0)::text FROM work_bills
		WHERE user_id = $1 AND bill_month = DATE_TRUNC('month', $2::date)`,
		userID, month.Time)
}

func (s *Store) IncomeForRange(ctx context.Context, userID string, b period.Boundary) (core.Money, error) {
	return s.scalarMoney(ctx, "income for range",
		`SELECT COALESCE(SUM(total_balance), 0)::text FROM work_bills
		WHERE user_id = $1 AND bill_month BETWEEN $2 AND $3`,
		rangeArgs(userID, b)...)
}

func (s *Store) HasEntries(ctx context.Context, userID string, b period.Boundary) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1`+scopedItems+`)`, rangeArgs(userID, b)...).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("has entries: %w", err)
	}
	return ok, nil
}

func (s *Store) DailyActivity(ctx context.Context, userID string) ([]core.DayActivity, error) {
	out := []core.DayActivity{}
	err := s.query(ctx, "daily activity",
		`SELECT de.entry_date, COUNT(ei.id), COALESCE(SUM(ei.amount), 0)::text
		FROM entry_items ei
		JOIN daily_entries de ON de.id = ei.daily_entry_id
		JOIN work_bills wb ON wb.id = de.bill_id
		WHERE wb.user_id = $1
		GROUP BY de.entry_date ORDER BY de.entry_date`,
		[]any{userID}, func(rows pgx.Rows) error {
			var day time.Time
			var items int64
			var total string
			if err := rows.Scan(&day, &items, &total); err != nil {
				return err
			}
			amount, err := money(total)
			if err != nil {
				return err
			}
			out = append(out, core.DayActivity{Date: core.DateOf(day), Items: int(items), Total: amount})
			return nil
		})
	return out, err
}

func (s *Store) ListUsers(ctx context.Context) ([]core.User, error) {
	return s.queryUsers(ctx, "list users", `SELECT id, email, name FROM users ORDER BY id`)
}

// ListBillingUsers returns the users holding at least one bill.
func (s *Store) ListBillingUsers(ctx context.Context) ([]core.User, error) {
	return s.queryUsers(ctx, "list billing users",
		`SELECT DISTINCT u.id, u.email, u.name FROM users u
		JOIN work_bills wb ON wb.user_id = u.id
		ORDER BY u.id`)
}

func (s *Store) queryUsers(ctx context.Context, op, sql string) ([]core.User, error) {
	out := []core.User{}
	err := s.query(ctx, op, sql, nil, func(rows pgx.Rows) error {
		var u core.User
		if err := rows.Scan(&u.ID, &u.Email, &u.Name); err != nil {
			return err
		}
		out = append(out, u)
		return nil
	})
	return out, err
}

func (s *Store) GetUser(ctx context.Context, id string) (core.User, error) {
	var u core.User
	err := s.pool.QueryRow(ctx, `SELECT id, email, name FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Email, &u.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.User{}, fmt.Errorf("user %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *Store) CreateNotification(ctx context.Context, n core.Notification) error {
	data := []byte(n.Data)
	if len(data) == 0 {
		data = []byte("{}")
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO notifications (id, user_id, type, title, message, data, route_url, action_text, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		n.ID, n.UserID, n.Type, n.Title, n.Message, string(data), n.RouteURL, n.ActionText, n.IsRead, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

func (s *Store) ListNotifications(ctx context.Context, userID, kind string, limit int) ([]core.Notification, error) {
	out := []core.Notification{}
	err := s.query(ctx, "list notifications",
		`SELECT id, user_id, type, title, message, data::text, route_url, action_text, is_read, created_at
		FROM notifications WHERE user_id = $1 AND ($2 = '' OR type = $2)
		ORDER BY created_at DESC, id DESC LIMIT $3`,
		[]any{userID, kind, limit}, func(rows pgx.Rows) error {
			var n core.Notification
			var data string
			if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &data,
				&n.RouteURL, &n.ActionText, &n.IsRead, &n.CreatedAt); err != nil {
				return err
			}
			n.Data = []byte(data)
			out = append(out, n)
			return nil
		})
	return out, err
}

func (s *Store) MarkNotificationRead(ctx context.Context, userID, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE notifications SET is_read = true WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("notification %s: %w", id, core.ErrNotFound)
	}
	return nil
}

func (s *Store) CountUnread(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND NOT is_read`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return n, nil
}

func (s *Store) MarkAllNotificationsRead(ctx context.Context, userID string) (int, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE notifications SET is_read = true WHERE user_id = $1 AND NOT is_read`, userID)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) DeleteNotification(ctx context.Context, userID, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM notifications WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("notification %s: %w", id, core.ErrNotFound)
	}
	return nil
}

func (s *Store) LastRun(ctx context.Context, job string) (core.RunRecord, bool, error) {
	var rec core.RunRecord
	err := s.pool.QueryRow(ctx, `SELECT job, period_value, ran_at FROM report_runs WHERE job = $1`, job).
		Scan(&rec.Job, &rec.PeriodValue, &rec.RanAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.RunRecord{}, false, nil
	}
	if err != nil {
		return core.RunRecord{}, false, fmt.Errorf("last run: %w", err)
	}
	return rec, true, nil
}

func (s *Store) RecordRun(ctx context.Context, rec core.RunRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO report_runs (job, period_value, ran_at) VALUES ($1, $2, $3)
		ON CONFLICT (job) DO UPDATE SET period_value = EXCLUDED.period_value, ran_at = EXCLUDED.ran_at`,
		rec.Job, rec.PeriodValue, rec.RanAt)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// Load writes ds in one transaction, upserting users and bills.
func (s *Store) Load(ctx context.Context, ds core.Dataset) error {
	if err := ds.Validate(); err != nil {
		return err
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin load: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, u := range ds.Users {
		if _, err := tx.Exec(ctx,
			`INSERT INTO users (id, email, name) VALUES ($1, $2, $3)
			ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email, name = EXCLUDED.name`,
			u.ID, u.Email, u.Name); err != nil {
			return fmt.Errorf("load user %s: %w", u.ID, err)
		}
	}
	for _, sb := range ds.Bills {
		b, _ := sb.Bill()
		if _, err := tx.Exec(ctx,
			`INSERT INTO work_bills (user_id, bill_month, total_balance) VALUES ($1, $2, $3::numeric)
			ON CONFLICT (user_id, bill_month) DO UPDATE SET total_balance = EXCLUDED.total_balance`,
			b.UserID, b.BillMonth.Time, b.TotalBalance.String()); err != nil {
			return fmt.Errorf("load bill %s: %w", sb.Month, err)
		}
	}
	for _, se := range ds.Entries {
		date, _ := core.ParseDate(se.Date)
		var billID, entryID int64
		err := tx.QueryRow(ctx,
			`INSERT INTO work_bills (user_id, bill_month) VALUES ($1, DATE_TRUNC('month', $2::date))
			ON CONFLICT (user_id, bill_month) DO UPDATE SET user_id = EXCLUDED.user_id
			RETURNING id`, se.UserID, date.Time).Scan(&billID)
		if err != nil {
			return fmt.Errorf("load entry %s: %w", se.Date, err)
		}
		err = tx.QueryRow(ctx,
			`INSERT INTO daily_entries (bill_id, entry_date) VALUES ($1, $2)
			ON CONFLICT (bill_id, entry_date) DO UPDATE SET bill_id = EXCLUDED.bill_id
			RETURNING id`, billID, date.Time).Scan(&entryID)
		if err != nil {
			return fmt.Errorf("load entry %s: %w", se.Date, err)
		}
		for _, si := range se.Items {
			item, _ := si.Item()
			if _, err := tx.Exec(ctx,
				`INSERT INTO entry_items (daily_entry_id, category, amount, description, proof_url)
				VALUES ($1, NULLIF($2, ''), $3::numeric, NULLIF($4, ''), NULLIF($5, ''))`,
				entryID, item.Category, item.Amount.String(), item.Description, item.ProofURL); err != nil {
				return fmt.Errorf("load item on %s: %w", se.Date, err)
			}
		}
		if _, err := tx.Exec(ctx,
			`UPDATE daily_entries SET total_debit = (SELECT COALESCE(SUM(amount), 0) FROM entry_items WHERE daily_entry_id = $1)
			WHERE id = $1`, entryID); err != nil {
			return fmt.Errorf("load entry %s: %w", se.Date, err)
		}
	}
	return tx.Commit(ctx)
}
