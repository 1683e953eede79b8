package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"spese-report/internal/amqp"
	"spese-report/internal/core"
	"spese-report/internal/log"
	"spese-report/internal/period"
	"spese-report/internal/report"
	"spese-report/internal/sheets"
)

// Reports generates the report a message asks for.
type Reports interface {
	Resolver() period.Resolver
	GenerateFor(ctx context.Context, userID string, res period.Resolution) (*report.Report, error)
}

// Store looks up recipients and records in-app notifications.
type Store interface {
	GetUser(ctx context.Context, id string) (core.User, error)
	CreateNotification(ctx context.Context, n core.Notification) error
}

// Publisher requeues a message for a later attempt.
type Publisher interface {
	Publish(ctx context.Context, msg *amqp.ReportReadyMessage) error
}

type DeliveryConfig struct {
	// MaxRetries is how many times a failed delivery is republished (default: 5)
	MaxRetries int
}

func DefaultDeliveryConfig() DeliveryConfig {
	return DeliveryConfig{MaxRetries: 5}
}

// DeliveryWorker turns report requests into an e-mail, an in-app
// notification and, when configured, a summary row in a spreadsheet.
type DeliveryWorker struct {
	reports   Reports
	store     Store
	mailer    Mailer
	renderer  *Renderer
	exporter  sheets.ReportExporter
	publisher Publisher
	config    DeliveryConfig
	logger    *log.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewDeliveryWorker wires a worker. exporter and publisher may be nil; a nil
// publisher disables retries.
func NewDeliveryWorker(
	reports Reports,
	store Store,
	mailer Mailer,
	renderer *Renderer,
	exporter sheets.ReportExporter,
	publisher Publisher,
	config DeliveryConfig,
	logger *log.Logger,
) *DeliveryWorker {
	if logger == nil {
		logger = log.Discard()
	}
	return &DeliveryWorker{
		reports:   reports,
		store:     store,
		mailer:    mailer,
		renderer:  renderer,
		exporter:  exporter,
		publisher: publisher,
		config:    config,
		logger:    logger.WithComponent(log.ComponentDelivery),
		now:       time.Now,
		sleep:     sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// permanentError marks failures a retry cannot fix.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func permanent(err error) error { return &permanentError{err: err} }

// HandleReportMessage delivers one report. Transient failures are
// republished with the attempt bumped after Backoff; a nil return acks the
// original delivery. An error is returned only when the retry itself could
// not be queued, so the broker redelivers instead.
func (w *DeliveryWorker) HandleReportMessage(ctx context.Context, msg *amqp.ReportReadyMessage) error {
	mlog := w.logger.With(
		log.FieldMessageID, msg.ID,
		log.FieldUserID, msg.UserID,
		log.FieldGranularity, msg.Granularity,
		log.FieldPeriod, msg.PeriodValue,
		log.FieldAttempt, msg.Attempt)

	err := w.Deliver(ctx, msg)
	if err == nil {
		return nil
	}

	var perm *permanentError
	if errors.As(err, &perm) {
		mlog.ErrorContext(ctx, "Dropping undeliverable report", log.FieldError, err)
		return nil
	}
	if msg.Attempt >= w.config.MaxRetries || w.publisher == nil {
		mlog.ErrorContext(ctx, "Report delivery failed, giving up", log.FieldError, err)
		return nil
	}

	next := msg.Retry()
	delay := amqp.Backoff(next.Attempt)
	mlog.WarnContext(ctx, "Report delivery failed, retrying",
		log.FieldError, err,
		"delay", delay.String())

	if err := w.sleep(ctx, delay); err != nil {
		return err
	}
	if err := w.publisher.Publish(ctx, next); err != nil {
		return fmt.Errorf("republish %s: %w", msg.ID, err)
	}
	return nil
}

// Deliver runs one attempt. The e-mail is the only step that fails the
// attempt; notification and export errors are logged once the mail is out,
// so a retry never sends the same e-mail twice.
func (w *DeliveryWorker) Deliver(ctx context.Context, msg *amqp.ReportReadyMessage) error {
	user, err := w.store.GetUser(ctx, msg.UserID)
	if errors.Is(err, core.ErrNotFound) {
		return permanent(err)
	}
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}

	res, err := w.reports.Resolver().Resolve(msg.PeriodValue, msg.Granularity)
	if err != nil {
		return permanent(err)
	}
	rep, err := w.reports.GenerateFor(ctx, user.ID, res)
	if err != nil {
		return fmt.Errorf("generate report: %w", err)
	}

	mail, err := w.renderer.Render(user, rep)
	if err != nil {
		return permanent(err)
	}

	if strings.TrimSpace(user.Email) == "" {
		w.logger.WarnContext(ctx, "User has no e-mail address, skipping mail", log.FieldUserID, user.ID)
	} else if err := w.mailer.Send(ctx, user.Email, mail); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}

	if err := w.notify(ctx, user.ID, rep, mail.Subject); err != nil {
		w.logger.ErrorContext(ctx, "Failed to record notification",
			log.FieldOperation, log.OpNotify,
			log.FieldUserID, user.ID,
			log.FieldError, err)
	}
	if w.exporter != nil {
		row := sheets.SummaryFromReport(user.ID, rep, w.now())
		if _, err := w.exporter.AppendSummary(ctx, row); err != nil {
			w.logger.ErrorContext(ctx, "Failed to export report summary",
				log.FieldOperation, log.OpExport,
				log.FieldUserID, user.ID,
				log.FieldError, err)
		}
	}

	w.logger.InfoContext(ctx, "Report delivered",
		log.FieldOperation, log.OpDeliver,
		log.FieldMessageID, msg.ID,
		log.FieldUserID, user.ID,
		log.FieldGranularity, msg.Granularity,
		log.FieldPeriod, msg.PeriodValue,
		log.FieldTrigger, msg.Trigger)
	return nil
}

type notificationData struct {
	Granularity  period.Granularity `json:"granularity"`
	Period       string             `json:"period"`
	TotalExpense core.Money         `json:"totalExpense"`
}

func (w *DeliveryWorker) notify(ctx context.Context, userID string, rep *report.Report, title string) error {
	now := w.now()
	data, err := json.Marshal(notificationData{
		Granularity:  rep.Type,
		Period:       rep.Period.Value,
		TotalExpense: rep.TotalExpense,
	})
	if err != nil {
		return err
	}
	return w.store.CreateNotification(ctx, core.Notification{
		ID:         ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		UserID:     userID,
		Type:       core.NotificationReport,
		Title:      title,
		Message:    fmt.Sprintf("You spent %s in %s.", rep.TotalExpense, rep.Period.Label),
		Data:       data,
		RouteURL:   fmt.Sprintf("/api/reports/%s/data/%s", rep.Type, rep.Period.Value),
		ActionText: "View report",
		CreatedAt:  now.UTC(),
	})
}
