// Package backend opens the entry store selected by configuration.
package backend

import (
	"context"

	"spese-report/internal/core"
	"spese-report/internal/report"
)

// Backend is everything the commands need from an entry store: the report
// reads plus users, notifications, the scheduler run log and seeding.
type Backend interface {
	report.Store

	ListUsers(ctx context.Context) ([]core.User, error)
	ListBillingUsers(ctx context.Context) ([]core.User, error)
	GetUser(ctx context.Context, id string) (core.User, error)

	CreateNotification(ctx context.Context, n core.Notification) error
	ListNotifications(ctx context.Context, userID, kind string, limit int) ([]core.Notification, error)
	MarkNotificationRead(ctx context.Context, userID, id string) error
	MarkAllNotificationsRead(ctx context.Context, userID string) (int, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	DeleteNotification(ctx context.Context, userID, id string) error

	LastRun(ctx context.Context, job string) (core.RunRecord, bool, error)
	RecordRun(ctx context.Context, rec core.RunRecord) error

	Load(ctx context.Context, ds core.Dataset) error
	Ping(ctx context.Context) error
	Close() error
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (Backend, error)
}
