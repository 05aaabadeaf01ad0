package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"campus-alert/config"
	"campus-alert/core/utils"
)

// Sender delivers a single message to a recipient.
type Sender interface {
	Send(ctx context.Context, recipient, subject, body string) error
}

// SMTPSender delivers mail through a plain SMTP relay. Delivery runs with the
// shared transient-error retry so a flaky relay does not drop reporter
// notifications.
type SMTPSender struct {
	cfg config.MailConfig
	log *utils.Logger
}

func NewSMTPSender(cfg config.MailConfig, log *utils.Logger) *SMTPSender {
	return &SMTPSender{cfg: cfg, log: log}
}

func (s *SMTPSender) Send(ctx context.Context, recipient, subject, body string) error {
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return fmt.Errorf("empty recipient")
	}
	if !s.cfg.Enabled {
		s.log.Printf("mail disabled, dropping message to %s (%s)", recipient, subject)
		return nil
	}
	msg := []byte("From: " + s.cfg.From + "\r\n" +
		"To: " + recipient + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" + body + "\r\n")
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	return utils.Retry(ctx, func() error {
		return smtp.SendMail(addr, auth, s.cfg.From, []string{recipient}, msg)
	})
}

// NopSender drops every message. Used when mail is not configured and in
// tests.
type NopSender struct{}

func (NopSender) Send(context.Context, string, string, string) error { return nil }
