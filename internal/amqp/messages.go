package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"spese-report/internal/period"
)

// Triggers recorded on a message.
const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
)

// ReportReadyMessage asks the delivery worker to send one user's report.
// It carries the period, not the report, so the worker always renders
// current data.
type ReportReadyMessage struct {
	ID          string             `json:"id"`
	UserID      string             `json:"userId"`
	Granularity period.Granularity `json:"granularity"`
	PeriodValue string             `json:"periodValue"`
	Trigger     string             `json:"trigger"`
	Attempt     int                `json:"attempt"`
	CreatedAt   time.Time          `json:"createdAt"`
}

// NewReportReadyMessage stamps a fresh message with a ULID and attempt 0.
func NewReportReadyMessage(userID string, g period.Granularity, value, trigger string, now time.Time) *ReportReadyMessage {
	return &ReportReadyMessage{
		ID:          ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		UserID:      userID,
		Granularity: g,
		PeriodValue: value,
		Trigger:     trigger,
		CreatedAt:   now.UTC(),
	}
}

// Validate rejects messages the worker could never process.
func (m *ReportReadyMessage) Validate() error {
	var errs []error
	if _, err := ulid.ParseStrict(m.ID); err != nil {
		errs = append(errs, fmt.Errorf("id: %w", err))
	}
	if m.UserID == "" {
		errs = append(errs, errors.New("userId is required"))
	}
	if !m.Granularity.Valid() {
		errs = append(errs, fmt.Errorf("granularity %q is invalid", m.Granularity))
	}
	if m.PeriodValue == "" {
		errs = append(errs, errors.New("periodValue is required"))
	}
	if m.Attempt < 0 {
		errs = append(errs, errors.New("attempt cannot be negative"))
	}
	return errors.Join(errs...)
}

// Retry returns a copy with the attempt counter bumped. The ID is kept so
// logs of every attempt correlate.
func (m *ReportReadyMessage) Retry() *ReportReadyMessage {
	next := *m
	next.Attempt++
	return &next
}

func (m *ReportReadyMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ReportReadyMessageFromJSON(data []byte) (*ReportReadyMessage, error) {
	var msg ReportReadyMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Backoff is the delay before retry number attempt (1-based): 1s doubling,
// capped at 30s.
func Backoff(attempt int) time.Duration {
	const (
		base    = time.Second
		ceiling = 30 * time.Second
	)
	if attempt < 1 {
		return 0
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= ceiling {
			return ceiling
		}
	}
	return d
}
