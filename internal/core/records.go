package core

import (
	"encoding/json"
	"time"
)

// Notification kinds.
const (
	NotificationReport = "report"
	NotificationInfo   = "info"
)

// Notification is an in-app message shown in the user's feed.
type Notification struct {
	ID         string          `json:"id"`
	UserID     string          `json:"userId"`
	Type       string          `json:"type"`
	Title      string          `json:"title"`
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data,omitempty"`
	RouteURL   string          `json:"routeUrl,omitempty"`
	ActionText string          `json:"actionText,omitempty"`
	IsRead     bool            `json:"isRead"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// RunRecord marks the last period a scheduled job produced reports for.
type RunRecord struct {
	Job         string
	PeriodValue string
	RanAt       time.Time
}
