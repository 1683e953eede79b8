package worker

import (
	"bytes"
	"context"
	"io"
	"mime"
	"net"
	netmail "net/mail"
	"net/textproto"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spese-report/internal/core"
	"spese-report/internal/period"
	"spese-report/internal/report"
)

// fakeSMTP accepts one session and reports the DATA payload.
func fakeSMTP(t *testing.T) (host string, port int, got <-chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	ch := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		tp := textproto.NewConn(conn)
		_ = tp.PrintfLine("220 localhost ESMTP")
		var data string
		for {
			line, err := tp.ReadLine()
			if err != nil {
				return
			}
			switch {
			case strings.HasPrefix(line, "EHLO"), strings.HasPrefix(line, "HELO"):
				_ = tp.PrintfLine("250 localhost")
			case strings.HasPrefix(line, "MAIL FROM"), strings.HasPrefix(line, "RCPT TO"),
				line == "NOOP", line == "RSET":
				_ = tp.PrintfLine("250 OK")
			case line == "DATA":
				_ = tp.PrintfLine("354 go ahead")
				b, err := tp.ReadDotBytes()
				if err != nil {
					return
				}
				data = string(b)
				_ = tp.PrintfLine("250 queued")
			case line == "QUIT":
				_ = tp.PrintfLine("221 bye")
				ch <- data
				return
			default:
				_ = tp.PrintfLine("502 not implemented")
			}
		}
	}()

	h, p, _ := net.SplitHostPort(ln.Addr().String())
	portNum, _ := strconv.Atoi(p)
	return h, portNum, ch
}

func TestSMTPMailer_Send(t *testing.T) {
	host, port, got := fakeSMTP(t)
	m := NewSMTPMailer(SMTPConfig{Host: host, Port: port, From: "reports@spese.local"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := m.Send(ctx, "ada@example.com", Email{Subject: "Your monthly report", HTML: "<p>hi</p>", Text: "hi"})
	require.NoError(t, err)

	select {
	case body := <-got:
		assert.Contains(t, body, "To: <ada@example.com>")
		assert.Contains(t, body, "multipart/alternative")
		assert.Contains(t, body, "<p>hi</p>")
	case <-ctx.Done():
		t.Fatal("server never received the message")
	}
}

func TestSMTPMailer_EmptyRecipient(t *testing.T) {
	m := NewSMTPMailer(SMTPConfig{Host: "127.0.0.1", Port: 25, From: "a@b"})
	assert.Error(t, m.Send(context.Background(), "", Email{}))
}

func TestNewMessage(t *testing.T) {
	now := time.Date(2024, 4, 2, 10, 0, 0, 0, time.UTC)
	msg, err := newMessage("reports@spese.local", "ada@example.com", Email{
		Subject: "Résumé",
		HTML:    "<p>Spent 12000.00</p>",
		Text:    "Spent 12000.00",
	}, now)
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = msg.WriteTo(&buf)
	require.NoError(t, err)
	parsed, err := netmail.ReadMessage(&buf)
	require.NoError(t, err)

	from, err := netmail.ParseAddress(parsed.Header.Get("From"))
	require.NoError(t, err)
	assert.Equal(t, "reports@spese.local", from.Address)
	to, err := netmail.ParseAddress(parsed.Header.Get("To"))
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", to.Address)

	subject, err := new(mime.WordDecoder).DecodeHeader(parsed.Header.Get("Subject"))
	require.NoError(t, err)
	assert.Equal(t, "Résumé", subject)

	date, err := parsed.Header.Date()
	require.NoError(t, err)
	assert.True(t, date.Equal(now))

	mediaType, _, err := mime.ParseMediaType(parsed.Header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "multipart/alternative", mediaType)

	body, err := io.ReadAll(parsed.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "text/plain")
	assert.Contains(t, string(body), "text/html")
	assert.Contains(t, string(body), "Spent 12000.00")
}

func TestNewMessageRejectsBadAddresses(t *testing.T) {
	tests := []struct {
		name     string
		from, to string
	}{
		{"header injection in recipient", "reports@spese.local", "ada@example.com\r\nBcc: eve@example.com"},
		{"malformed recipient", "reports@spese.local", "not an address"},
		{"malformed sender", "reports@", "ada@example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newMessage(tt.from, tt.to, Email{Subject: "x"}, time.Now())
			assert.Error(t, err)
		})
	}
}

func TestRenderer_Render(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	change := 25
	rep := &report.Report{
		Type:         period.Week,
		Period:       report.PeriodInfo{Label: "Week of 2024-03-03", Start: core.NewDate(2024, 3, 3), End: core.NewDate(2024, 3, 9)},
		TotalExpense: core.MoneyFromInt(700),
		Category: []core.CategoryTotal{
			{Category: "Food & Drinks", Amount: core.MoneyFromInt(300)},
			{Category: "A", Amount: core.MoneyFromInt(100)},
			{Category: "B", Amount: core.MoneyFromInt(100)},
			{Category: "C", Amount: core.MoneyFromInt(100)},
			{Category: "D", Amount: core.MoneyFromInt(50)},
			{Category: "E", Amount: core.MoneyFromInt(50)},
		},
		PreviousWeek: &report.PreviousPeriod{ExpenseChange: &change},
	}

	mail, err := r.Render(core.User{ID: "u1", Email: "bob@example.com"}, rep)
	require.NoError(t, err)

	assert.Equal(t, "Your weekly report: Week of 2024-03-03", mail.Subject)
	assert.Contains(t, mail.HTML, "Hi bob,")
	assert.Contains(t, mail.HTML, "Food &amp; Drinks")
	assert.Contains(t, mail.Text, "Compared to last week: +25%")
	assert.NotContains(t, mail.HTML, "Income")
	assert.NotContains(t, mail.Text, "- E:", "category table is capped")
	assert.Contains(t, mail.Text, "- D: 50.00")
}
