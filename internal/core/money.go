// Package core provides the domain types shared by the report engine.
//
// This file contains the fixed-precision money type. Every amount that leaves
// a store is converted to Money so driver-level numeric types never reach a report.
package core

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is a currency amount normalized to 2 decimal places.
// The zero value is a valid amount of 0.00.
type Money struct {
	d decimal.Decimal
}

// Zero is 0.00.
var Zero = Money{}

// NewMoney rounds d half away from zero to 2 decimals.
func NewMoney(d decimal.Decimal) Money {
	return Money{d: d.Round(2)}
}

// MoneyFromCents builds Money from an integer number of cents.
func MoneyFromCents(cents int64) Money {
	return Money{d: decimal.New(cents, -2)}
}

// MoneyFromInt builds Money from a whole currency amount.
func MoneyFromInt(units int64) Money {
	return Money{d: decimal.NewFromInt(units)}
}

// ParseMoney converts a textual amount to Money.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators, which is what
// aggregate reads return when cast to text. An empty string is treated as zero
// (SUM over no rows). Examples:
//
//	ParseMoney("12.345") -> 12.35
//	ParseMoney("12,3")   -> 12.30
//	ParseMoney("")       -> 0.00
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Zero, nil
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return NewMoney(d), nil
}

// Decimal returns the underlying decimal value.
func (m Money) Decimal() decimal.Decimal { return m.d }

// Cents returns the amount in cents.
func (m Money) Cents() int64 {
	return m.d.Shift(2).Round(0).IntPart()
}

func (m Money) Add(o Money) Money { return NewMoney(m.d.Add(o.d)) }
func (m Money) Sub(o Money) Money { return NewMoney(m.d.Sub(o.d)) }

// Cmp compares m and o; see decimal.Decimal.Cmp.
func (m Money) Cmp(o Money) int { return m.d.Cmp(o.d) }

func (m Money) IsZero() bool     { return m.d.IsZero() }
func (m Money) IsNegative() bool { return m.d.IsNegative() }

// Float64 returns the amount for display-oriented consumers (templates, sheets).
// Use Money arithmetic for anything that is summed.
func (m Money) Float64() float64 {
	return m.d.InexactFloat64()
}

// String formats the amount with exactly 2 decimals, e.g. "7000.00".
func (m Money) String() string {
	return m.d.StringFixed(2)
}

// MarshalJSON emits a JSON number with exactly 2 decimals so that identical
// reports serialize to identical bytes.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.d.StringFixed(2)), nil
}

// UnmarshalJSON accepts a JSON number or a quoted decimal string.
func (m *Money) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "null" {
		*m = Zero
		return nil
	}
	parsed, err := ParseMoney(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// MarshalYAML renders the amount as a plain number.
func (m Money) MarshalYAML() (any, error) {
	return m.Float64(), nil
}

// Sum adds up a sequence of amounts.
func Sum(amounts ...Money) Money {
	total := Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}
