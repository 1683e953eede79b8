package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"spese-report/internal/core"
	"spese-report/internal/log"
)

// ReminderJob is the run log key of the daily reminder.
const ReminderJob = "reminder:daily"

// Reminder sends one user the nudge to log the day's spending.
type Reminder interface {
	Remind(ctx context.Context, u core.User) error
}

// ReminderStore lists the users the daily reminder goes to.
type ReminderStore interface {
	ListBillingUsers(ctx context.Context) ([]core.User, error)
}

// ReminderResult summarises one reminder run.
type ReminderResult struct {
	Date    string `json:"date"`
	Users   int    `json:"users"`
	Sent    int    `json:"sent"`
	Skipped int    `json:"skipped"`
	Failed  int    `json:"failed"`
}

type dailyReminder struct {
	store    ReminderStore
	reminder Reminder
	trigger  DailyTrigger
}

// EnableReminder makes every tick also send the daily reminder once the
// trigger hour has passed. Call it before Start.
func (s *Scheduler) EnableReminder(store ReminderStore, r Reminder, trigger DailyTrigger) {
	s.reminder = &dailyReminder{store: store, reminder: r, trigger: trigger}
}

func (s *Scheduler) tickReminder(ctx context.Context, now time.Time) {
	if s.reminder == nil {
		return
	}
	firing := s.reminder.trigger.LastFiring(now)
	day := firing.Format(time.DateOnly)

	last, ok, err := s.store.LastRun(ctx, ReminderJob)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to read run log", "job", ReminderJob, log.FieldError, err)
		return
	}
	if ok && last.PeriodValue == day {
		return
	}
	// A reminder for a day that is over is pointless, so a missed firing is
	// only recorded.
	if y, m, d := now.Date(); firing.Year() != y || firing.Month() != m || firing.Day() != d {
		s.logger.WarnContext(ctx, "Missed daily reminder, skipping", "date", day)
		s.record(ctx, ReminderJob, day, now)
		return
	}

	res, err := s.RunReminders(ctx, day)
	if err != nil {
		s.logger.ErrorContext(ctx, "Daily reminder failed", log.FieldError, err)
		return
	}
	if res.Sent == 0 && res.Failed > 0 {
		return
	}
	s.record(ctx, ReminderJob, day, now)
}

// RunReminders sends the reminder to every user with a bill and an e-mail
// address. It does not touch the run log.
func (s *Scheduler) RunReminders(ctx context.Context, day string) (ReminderResult, error) {
	res := ReminderResult{Date: day}
	if s.reminder == nil {
		return res, errors.New("daily reminder is not enabled")
	}
	users, err := s.reminder.store.ListBillingUsers(ctx)
	if err != nil {
		return res, fmt.Errorf("list billing users: %w", err)
	}
	res.Users = len(users)

	for _, u := range users {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if u.Email == "" {
			res.Skipped++
			continue
		}
		if err := s.reminder.reminder.Remind(ctx, u); err != nil {
			s.logger.ErrorContext(ctx, "Failed to send reminder", log.FieldUserID, u.ID, log.FieldError, err)
			res.Failed++
			continue
		}
		res.Sent++
	}

	s.logger.InfoContext(ctx, "Daily reminder completed",
		"date", day,
		"users", res.Users,
		"sent", res.Sent,
		"skipped", res.Skipped,
		"failed", res.Failed)
	return res, nil
}
