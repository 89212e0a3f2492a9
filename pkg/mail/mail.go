// Package mail provides the outbound mail transport consumed by the
// send_email action.
package mail

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
)

// Transport delivers one message. Implementations report delivery failures
// through the returned error; the send_email action translates them into a
// failed action result rather than crashing the worker.
type Transport interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTPConfig carries the connection parameters for the SMTP transport.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPTransport sends plain-text mail over SMTP with optional PLAIN auth.
type SMTPTransport struct {
	config SMTPConfig
	logger *slog.Logger
}

func NewSMTPTransport(config SMTPConfig, logger *slog.Logger) *SMTPTransport {
	return &SMTPTransport{
		config: config,
		logger: logger.With("module", "smtp_transport"),
	}
}

func (t *SMTPTransport) Send(ctx context.Context, to, subject, body string) error {
	addr := net.JoinHostPort(t.config.Host, strconv.Itoa(t.config.Port))

	message := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n",
		t.config.From, to, subject, body)

	var auth smtp.Auth
	if t.config.Username != "" {
		auth = smtp.PlainAuth("", t.config.Username, t.config.Password, t.config.Host)
	}

	err := smtp.SendMail(addr, auth, t.config.From, []string{to}, []byte(message))
	if err != nil {
		t.logger.ErrorContext(ctx, "Failed to send email", "to", to, "error", err)

		return fmt.Errorf("smtp send to %s: %w", to, err)
	}

	t.logger.InfoContext(ctx, "Email sent", "to", to, "subject", subject)

	return nil
}
