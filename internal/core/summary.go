package core

import (
	"sort"
	"time"
)

// CategoryTotal is the sum of item amounts for one category.
type CategoryTotal struct {
	Category string `json:"category"`
	Amount   Money  `json:"amount"`
}

// DailyTotal is the sum of item amounts for one calendar date.
type DailyTotal struct {
	Date  Date  `json:"date"`
	Total Money `json:"total"`
}

// DetailedDaily is the sum of item amounts for one (date, category) pair.
type DetailedDaily struct {
	Date     Date   `json:"date"`
	Category string `json:"category"`
	Amount   Money  `json:"amount"`
}

// MonthTotal is keyed by YYYY-MM.
type MonthTotal struct {
	Month string `json:"month"`
	Total Money  `json:"total"`
}

type DetailedMonthly struct {
	Month    string `json:"month"`
	Category string `json:"category"`
	Amount   Money  `json:"amount"`
}

// QuarterTotal is keyed by a "Qn YYYY" label.
type QuarterTotal struct {
	Quarter string `json:"quarter"`
	Total   Money  `json:"total"`
}

// DayActivity counts the items logged on one date.
type DayActivity struct {
	Date  Date
	Items int
	Total Money
}

// AvailablePeriod describes one period for which a user has logged entries.
type AvailablePeriod struct {
	Label       string `json:"label"`
	Value       string `json:"value"`
	Year        int    `json:"year"`
	Month       int    `json:"month,omitempty"`
	Quarter     int    `json:"quarter,omitempty"`
	Start       Date   `json:"start"`
	End         Date   `json:"end"`
	EntryCount  int    `json:"entryCount"`
	TotalAmount Money  `json:"totalAmount"`
}

// SortCategoryTotals orders totals by amount descending, then by name.
func SortCategoryTotals(totals []CategoryTotal) {
	sort.SliceStable(totals, func(i, j int) bool {
		if c := totals[i].Amount.Cmp(totals[j].Amount); c != 0 {
			return c > 0
		}
		return totals[i].Category < totals[j].Category
	})
}

// SortDetailedDaily orders rows by date, then category.
func SortDetailedDaily(rows []DetailedDaily) {
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].Date.Equal(rows[j].Date.Time) {
			return rows[i].Date.Before(rows[j].Date.Time)
		}
		return rows[i].Category < rows[j].Category
	})
}

// QuarterOf returns the 1-based quarter of a month.
func QuarterOf(m time.Month) int {
	return (int(m)-1)/3 + 1
}
