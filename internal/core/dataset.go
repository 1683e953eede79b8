package core

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Dataset is a portable snapshot of entry-store content used to seed
// development and test databases.
type Dataset struct {
	Users   []SeedUser  `json:"users" yaml:"users"`
	Bills   []SeedBill  `json:"bills" yaml:"bills"`
	Entries []SeedEntry `json:"entries" yaml:"entries"`
}

type SeedUser struct {
	ID    string `json:"id" yaml:"id"`
	Email string `json:"email" yaml:"email"`
	Name  string `json:"name" yaml:"name"`
}

type SeedBill struct {
	UserID       string `json:"userId" yaml:"userId"`
	Month        string `json:"month" yaml:"month"` // YYYY-MM
	TotalBalance string `json:"totalBalance" yaml:"totalBalance"`
}

type SeedEntry struct {
	UserID string     `json:"userId" yaml:"userId"`
	Date   string     `json:"date" yaml:"date"` // YYYY-MM-DD
	Items  []SeedItem `json:"items" yaml:"items"`
}

type SeedItem struct {
	Category    string `json:"category" yaml:"category"`
	Amount      string `json:"amount" yaml:"amount"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	ProofURL    string `json:"proofUrl,omitempty" yaml:"proofUrl,omitempty"`
}

// LoadDataset reads a dataset from a .json, .yaml or .yml file.
func LoadDataset(path string) (Dataset, error) {
	var ds Dataset
	raw, err := os.ReadFile(path)
	if err != nil {
		return ds, fmt.Errorf("read dataset: %w", err)
	}
	if strings.HasSuffix(path, ".json") {
		err = json.Unmarshal(raw, &ds)
	} else {
		err = yaml.Unmarshal(raw, &ds)
	}
	if err != nil {
		return ds, fmt.Errorf("decode dataset %s: %w", path, err)
	}
	return ds, ds.Validate()
}

// Validate checks that every bill and entry refers to a declared user and
// carries parseable dates and amounts.
func (ds Dataset) Validate() error {
	users := make(map[string]bool, len(ds.Users))
	for _, u := range ds.Users {
		if strings.TrimSpace(u.ID) == "" {
			return ErrEmptyUser
		}
		users[u.ID] = true
	}
	for _, b := range ds.Bills {
		if !users[b.UserID] {
			return fmt.Errorf("bill %s: unknown user %q", b.Month, b.UserID)
		}
		if _, err := b.Bill(); err != nil {
			return fmt.Errorf("bill %s: %w", b.Month, err)
		}
	}
	for _, e := range ds.Entries {
		if !users[e.UserID] {
			return fmt.Errorf("entry %s: unknown user %q", e.Date, e.UserID)
		}
		if _, err := ParseDate(e.Date); err != nil {
			return fmt.Errorf("entry %s: %w", e.Date, err)
		}
		for _, it := range e.Items {
			if _, err := it.Item(); err != nil {
				return fmt.Errorf("entry %s: %w", e.Date, err)
			}
		}
	}
	return nil
}

// Bill converts the seed row to a validated Bill.
func (b SeedBill) Bill() (Bill, error) {
	month, err := ParseDate(b.Month + "-01")
	if err != nil {
		return Bill{}, ErrInvalidMonth
	}
	balance, err := ParseMoney(b.TotalBalance)
	if err != nil {
		return Bill{}, err
	}
	bill := Bill{UserID: b.UserID, BillMonth: month, TotalBalance: balance}
	return bill, bill.Validate()
}

// Item converts the seed row to a validated EntryItem.
func (i SeedItem) Item() (EntryItem, error) {
	amount, err := ParseMoney(i.Amount)
	if err != nil {
		return EntryItem{}, err
	}
	item := EntryItem{
		Category:    strings.TrimSpace(i.Category),
		Amount:      amount,
		Description: i.Description,
		ProofURL:    i.ProofURL,
	}
	return item, item.Validate()
}
