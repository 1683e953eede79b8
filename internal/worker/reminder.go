package worker

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"spese-report/internal/core"
)

const reminderSubject = "Daily reminder: don't forget today's entry"

type reminderData struct {
	Subject  string
	Name     string
	LoginURL string
}

// RenderReminder builds the daily reminder e-mail. loginURL may be empty.
func (r *Renderer) RenderReminder(user core.User, loginURL string) (Email, error) {
	data := reminderData{Subject: reminderSubject, Name: displayName(user), LoginURL: loginURL}

	var html bytes.Buffer
	if err := r.templates.ExecuteTemplate(&html, "reminder", data); err != nil {
		return Email{}, fmt.Errorf("render reminder email: %w", err)
	}

	var text strings.Builder
	fmt.Fprintf(&text, "Hi %s,\n\nThis is a friendly reminder to add today's expenses.\n", data.Name)
	if loginURL != "" {
		fmt.Fprintf(&text, "Log in: %s\n", loginURL)
	}
	return Email{Subject: reminderSubject, HTML: html.String(), Text: text.String()}, nil
}

// ReminderMailer e-mails the daily reminder through a Mailer.
type ReminderMailer struct {
	mailer   Mailer
	renderer *Renderer
	loginURL string
}

// NewReminderMailer links reminders to appURL's login page when appURL is set.
func NewReminderMailer(mailer Mailer, renderer *Renderer, appURL string) *ReminderMailer {
	loginURL := ""
	if appURL != "" {
		loginURL = strings.TrimRight(appURL, "/") + "/login"
	}
	return &ReminderMailer{mailer: mailer, renderer: renderer, loginURL: loginURL}
}

func (m *ReminderMailer) Remind(ctx context.Context, u core.User) error {
	email, err := m.renderer.RenderReminder(u, m.loginURL)
	if err != nil {
		return err
	}
	return m.mailer.Send(ctx, u.Email, email)
}
