// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package mail renders notification templates and hands messages to a transport.
package mail

import (
	"context"
	"log/slog"
)

// Message is a fully rendered email.
type Message struct {
	From    string
	To      string
	Subject string
	Text    string
	HTML    string
}

// Sender delivers a message. A nil error means the transport accepted it.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender writes messages to the logger instead of delivering them.
// It is selected when no SMTP host is configured.
type LogSender struct {
	Logger *slog.Logger
}

// Send implements Sender.
func (s *LogSender) Send(ctx context.Context, msg Message) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "email_logged",
		"from", msg.From,
		"to", msg.To,
		"subject", msg.Subject,
		"body", msg.Text,
	)
	return nil
}
