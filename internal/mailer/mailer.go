package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// Mailer sends HTML mail. Implementations must be safe for concurrent use.
type Mailer interface {
	Send(ctx context.Context, to []string, subject, htmlBody string) error
}

// Noop is used when SMTP is not configured. Sends succeed without doing
// anything.
type Noop struct{}

func (Noop) Send(_ context.Context, _ []string, _, _ string) error { return nil }

// SMTP sends mail through a single SMTP endpoint with PLAIN auth.
type SMTP struct {
	addr     string
	username string
	password string
	from     string
}

func NewSMTP(addr, username, password, from string) *SMTP {
	return &SMTP{addr: addr, username: username, password: password, from: from}
}

func (m *SMTP) Send(ctx context.Context, to []string, subject, htmlBody string) error {
	if len(to) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", m.from)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(htmlBody)

	host := m.addr
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}

	var auth smtp.Auth
	if m.username != "" {
		auth = smtp.PlainAuth("", m.username, m.password, host)
	}
	if err := smtp.SendMail(m.addr, auth, m.from, to, []byte(msg.String())); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}
