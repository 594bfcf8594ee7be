// Gatekeeper - Event Registration Check-in Pipeline
// Copyright 2026 Texperia Tech Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/texperia/gatekeeper

// Package mailer delivers confirmation and attendance emails over SMTP.
//
// Each organization sends from its own mailbox, so the two streams keep
// separate sender identities and reply addresses. Delivery is fire and
// forget: the reconciliation loop queues a message and moves on, and the
// dispatcher reports the outcome through a callback that updates the sheet's
// mail-status cell afterwards.
package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/texperia/gatekeeper/internal/models"
)

// Kind selects the email template.
type Kind string

const (
	// KindConfirmation is the registration email carrying the QR credential.
	KindConfirmation Kind = "confirmation"

	// KindAttendance is the check-in receipt sent after redemption.
	KindAttendance Kind = "attendance"
)

// Message is one email to deliver.
type Message struct {
	Org           models.Organization
	To            string
	Name          string
	Token         string
	RedemptionURL string
	Day1Events    []string
	Day2Events    []string
	Kind          Kind
}

// Sender delivers a single message synchronously.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Identity is one organization's sender mailbox.
type Identity struct {
	User     string
	Password string
	FromName string
}

// Config holds SMTP transport settings shared by both identities.
type Config struct {
	Host    string
	Port    int
	UseTLS  bool
	Timeout time.Duration

	Identities map[models.Organization]Identity
}

// DefaultConfig returns Gmail submission defaults.
func DefaultConfig() Config {
	return Config{
		Host:    "smtp.gmail.com",
		Port:    587,
		UseTLS:  true,
		Timeout: 30 * time.Second,
	}
}

// SMTPSender implements Sender over plain net/smtp with STARTTLS.
type SMTPSender struct {
	cfg    Config
	logger zerolog.Logger
}

// NewSMTPSender creates an SMTP sender.
func NewSMTPSender(cfg Config, logger *zerolog.Logger) *SMTPSender {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &SMTPSender{
		cfg:    cfg,
		logger: logger.With().Str("component", "mailer").Logger(),
	}
}

// Send renders and delivers one message from the organization's identity.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	identity, ok := s.cfg.Identities[msg.Org]
	if !ok {
		return fmt.Errorf("no mail identity configured for organization %s", msg.Org)
	}

	subject, body, err := Render(msg)
	if err != nil {
		return fmt.Errorf("render %s email: %w", msg.Kind, err)
	}

	raw := buildMessage(identity, msg.To, subject, body)
	if err := s.sendSMTP(ctx, identity, msg.To, raw); err != nil {
		s.logger.Error().
			Err(err).
			Str("kind", string(msg.Kind)).
			Str("organization", string(msg.Org)).
			Str("class", classifySendError(err)).
			Msg("Email delivery failed")
		return err
	}

	s.logger.Info().
		Str("kind", string(msg.Kind)).
		Str("organization", string(msg.Org)).
		Msg("Email delivered")
	return nil
}

// buildMessage constructs the RFC 5322 message with headers.
func buildMessage(identity Identity, to, subject, htmlBody string) string {
	fromName := identity.FromName
	if fromName == "" {
		fromName = "Texperia 2026"
	}

	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("From: %s <%s>\r\n", fromName, identity.User))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", to))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(htmlBody)
	return msg.String()
}

// sendSMTP performs the SMTP dialogue with STARTTLS and AUTH PLAIN.
func (s *SMTPSender) sendSMTP(ctx context.Context, identity Identity, to, msg string) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	dialer := &net.Dialer{Timeout: s.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer func() { _ = conn.Close() }()

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer func() { _ = client.Close() }()

	if s.cfg.UseTLS {
		tlsConfig := &tls.Config{
			ServerName: s.cfg.Host,
			MinVersion: tls.VersionTLS12,
		}
		if err := client.StartTLS(tlsConfig); err != nil {
			return fmt.Errorf("failed to start TLS: %w", err)
		}
	}

	if identity.User != "" && identity.Password != "" {
		auth := smtp.PlainAuth("", identity.User, identity.Password, s.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	if err := client.Mail(identity.User); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("failed to set recipient: %w", err)
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to start message: %w", err)
	}
	if _, err := writer.Write([]byte(msg)); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close message: %w", err)
	}

	// Message is accepted once DATA closes; a failed QUIT is not a failure.
	_ = client.Quit()
	return nil
}

// classifySendError buckets a delivery error for logging.
func classifySendError(err error) string {
	errStr := err.Error()

	switch {
	case strings.Contains(errStr, "authentication") || strings.Contains(errStr, "auth"):
		return "auth_failed"
	case strings.Contains(errStr, "connection") || strings.Contains(errStr, "connect"):
		return "connection_failed"
	case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline"):
		return "timeout"
	case strings.Contains(errStr, "recipient") || strings.Contains(errStr, "mailbox"):
		return "recipient_not_found"
	default:
		return "unknown"
	}
}
