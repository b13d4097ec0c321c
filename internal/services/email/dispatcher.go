// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package email turns notification jobs into delivered, logged emails.
package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gonziita68/restaurante-gyz/internal/mail"
	"github.com/gonziita68/restaurante-gyz/internal/metrics"
	"github.com/gonziita68/restaurante-gyz/internal/models"
	"github.com/gonziita68/restaurante-gyz/internal/queue"
	"github.com/gonziita68/restaurante-gyz/internal/repository"
)

// Store is the delivery log plus the user lookup used to link entries.
type Store interface {
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateEmailLog(ctx context.Context, entry *models.EmailLog) error
	MarkEmailSent(ctx context.Context, entry *models.EmailLog) error
	MarkEmailError(ctx context.Context, entry *models.EmailLog, detail string) error
}

// Renderer produces the HTML body of a template.
type Renderer interface {
	Render(name string, data map[string]any) (string, error)
}

// Runner executes a job once.
type Runner interface {
	Dispatch(ctx context.Context, job queue.Job) (*models.EmailLog, error)
}

// Dispatcher renders, sends and logs a single email.
type Dispatcher struct {
	store    Store
	renderer Renderer
	sender   mail.Sender
	from     string
	metrics  *metrics.Metrics
}

// NewDispatcher creates a dispatcher. m may be nil.
func NewDispatcher(store Store, renderer Renderer, sender mail.Sender, from string, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{store: store, renderer: renderer, sender: sender, from: from, metrics: m}
}

// Dispatch makes one delivery attempt and records exactly one log entry for it.
// The entry reaches its terminal status before Dispatch returns. Failures wrap
// *mail.RenderError or *mail.TransportError.
func (d *Dispatcher) Dispatch(ctx context.Context, job queue.Job) (*models.EmailLog, error) {
	entry := &models.EmailLog{
		ToEmail:  job.Recipient,
		Subject:  job.Subject,
		Template: job.Template,
		Purpose:  job.Purpose,
	}

	user, err := d.store.GetUserByEmail(ctx, job.Recipient)
	switch {
	case err == nil:
		entry.UserID = &user.ID
	case !errors.Is(err, repository.ErrNotFound):
		slog.WarnContext(ctx, "email_user_lookup_failed", "to", job.Recipient, "error", err)
	}

	if err := d.store.CreateEmailLog(ctx, entry); err != nil {
		return nil, fmt.Errorf("creating email log: %w", err)
	}

	html, err := d.renderer.Render(job.Template, job.Context)
	if err != nil {
		var renderErr *mail.RenderError
		if !errors.As(err, &renderErr) {
			err = &mail.RenderError{Template: job.Template, Err: err}
		}
		return entry, d.fail(ctx, job, entry, err)
	}

	msg := mail.Message{
		From:    d.from,
		To:      job.Recipient,
		Subject: job.Subject,
		Text:    mail.StripMarkup(html),
		HTML:    html,
	}
	if err := d.sender.Send(ctx, msg); err != nil {
		var transportErr *mail.TransportError
		if !errors.As(err, &transportErr) {
			diag := mail.Diagnose(err)
			err = &mail.TransportError{Code: diag.Code, Temporary: diag.Temporary, Err: err}
		}
		return entry, d.fail(ctx, job, entry, err)
	}

	// The message is out; a failed status write must not cause a resend.
	if err := d.store.MarkEmailSent(context.WithoutCancel(ctx), entry); err != nil {
		slog.ErrorContext(ctx, "email_log_update_failed", "log_id", entry.ID, "status", models.EmailSent, "error", err)
	}
	d.count(job.Purpose, models.EmailSent)
	slog.InfoContext(ctx, "email_sent",
		"log_id", entry.ID,
		"job_id", job.ID,
		"to", job.Recipient,
		"template", job.Template,
		"purpose", job.Purpose,
	)
	return entry, nil
}

func (d *Dispatcher) fail(ctx context.Context, job queue.Job, entry *models.EmailLog, cause error) error {
	if err := d.store.MarkEmailError(context.WithoutCancel(ctx), entry, cause.Error()); err != nil {
		slog.ErrorContext(ctx, "email_log_update_failed", "log_id", entry.ID, "status", models.EmailError, "error", err)
	}
	d.count(job.Purpose, models.EmailError)
	slog.ErrorContext(ctx, "email_failed",
		"log_id", entry.ID,
		"job_id", job.ID,
		"to", job.Recipient,
		"template", job.Template,
		"purpose", job.Purpose,
		"error", cause,
	)
	return fmt.Errorf("dispatching %s to %s: %w", job.Template, job.Recipient, cause)
}

func (d *Dispatcher) count(purpose models.Purpose, status models.EmailStatus) {
	if d.metrics == nil {
		return
	}
	d.metrics.EmailDispatch.WithLabelValues(string(models.ParsePurpose(string(purpose))), string(status)).Inc()
}
