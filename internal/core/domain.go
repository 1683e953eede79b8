package core

import (
	"errors"
	"strings"
	"time"
)

// Uncategorized is the label used for items logged without a category.
const Uncategorized = "Uncategorized"

const dateLayout = "2006-01-02"

type (
	// Date is a calendar date at UTC midnight.
	Date struct {
		time.Time
	}

	User struct {
		ID    string
		Email string
		Name  string
	}

	// Bill is a user's declared income for one calendar month.
	// At most one Bill exists per (UserID, BillMonth).
	Bill struct {
		ID           int64
		UserID       string
		BillMonth    Date // first day of the month
		TotalBalance Money
	}

	// DailyEntry groups the items a user logged on one date against a bill.
	DailyEntry struct {
		ID         int64
		BillID     int64
		EntryDate  Date
		TotalDebit Money
	}

	EntryItem struct {
		ID           int64
		DailyEntryID int64
		Category     string
		Amount       Money
		Description  string
		ProofURL     string
	}
)

var (
	ErrInvalidDay      = errors.New("invalid day")
	ErrInvalidMonth    = errors.New("invalid month")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrNegativeAmount  = errors.New("amount cannot be negative")
	ErrEmptyUser       = errors.New("empty user id")
	ErrBillNotFirstDay = errors.New("bill month must be the first day of a month")
	ErrNotFound        = errors.New("not found")
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar date, keeping t's wall clock date.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate parses a date string in YYYY-MM-DD format.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	return d.Format(dateLayout)
}

// MonthKey formats the date as YYYY-MM.
func (d Date) MonthKey() string {
	return d.Format("2006-01")
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	parsed, err := ParseDate(strings.Trim(string(data), `"`))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Date) MarshalYAML() (any, error) {
	return d.String(), nil
}

// NormalizeCategory maps blank labels to Uncategorized and trims the rest.
func NormalizeCategory(category string) string {
	c := strings.TrimSpace(category)
	if c == "" {
		return Uncategorized
	}
	return c
}

func (b Bill) Validate() error {
	if strings.TrimSpace(b.UserID) == "" {
		return ErrEmptyUser
	}
	if err := b.BillMonth.Validate(); err != nil {
		return err
	}
	if b.BillMonth.Day() != 1 {
		return ErrBillNotFirstDay
	}
	if b.TotalBalance.IsNegative() {
		return ErrNegativeAmount
	}
	return nil
}

func (i EntryItem) Validate() error {
	if i.Amount.IsNegative() {
		return ErrNegativeAmount
	}
	if len(i.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	return nil
}
