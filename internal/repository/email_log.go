// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"strings"

	"github.com/gonziita68/restaurante-gyz/internal/models"
)

const emailLogColumns = `id, user_id, to_email, subject, template, purpose, status, error_message, created_at, sent_at`

// EmailLogFilter narrows ListEmailLogs. Zero values match everything.
type EmailLogFilter struct {
	Status  models.EmailStatus
	Purpose models.Purpose
	ToEmail string
	Limit   int
}

// CreateEmailLog inserts a queued log entry and fills in ID, Status and CreatedAt.
func (r *Repository) CreateEmailLog(ctx context.Context, entry *models.EmailLog) error {
	entry.Status = models.EmailQueued
	entry.Purpose = models.ParsePurpose(string(entry.Purpose))
	entry.CreatedAt = r.now()
	entry.ErrorMessage = nil
	entry.SentAt = nil

	return r.db.GetContext(ctx, &entry.ID, r.q(`
		INSERT INTO email_logs (user_id, to_email, subject, template, purpose, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id`),
		entry.UserID, entry.ToEmail, entry.Subject, entry.Template, entry.Purpose, entry.Status, entry.CreatedAt)
}

// MarkEmailSent moves a queued entry to sent and stamps sent_at.
func (r *Repository) MarkEmailSent(ctx context.Context, entry *models.EmailLog) error {
	now := r.now()
	if err := r.finalize(ctx, entry.ID,
		`UPDATE email_logs SET status = ?, sent_at = ? WHERE id = ? AND status = ?`,
		models.EmailSent, now, entry.ID, models.EmailQueued); err != nil {
		return err
	}
	entry.Status = models.EmailSent
	entry.SentAt = &now
	return nil
}

// MarkEmailError moves a queued entry to error with the failure detail.
func (r *Repository) MarkEmailError(ctx context.Context, entry *models.EmailLog, detail string) error {
	if err := r.finalize(ctx, entry.ID,
		`UPDATE email_logs SET status = ?, error_message = ? WHERE id = ? AND status = ?`,
		models.EmailError, detail, entry.ID, models.EmailQueued); err != nil {
		return err
	}
	entry.Status = models.EmailError
	entry.ErrorMessage = &detail
	return nil
}

func (r *Repository) finalize(ctx context.Context, id int64, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, r.q(query), args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if _, err := r.GetEmailLog(ctx, id); err != nil {
		return err
	}
	return ErrAlreadyFinal
}

// GetEmailLog retrieves a log entry by ID.
func (r *Repository) GetEmailLog(ctx context.Context, id int64) (*models.EmailLog, error) {
	var entry models.EmailLog
	if err := r.db.GetContext(ctx, &entry, r.q(`SELECT `+emailLogColumns+` FROM email_logs WHERE id = ?`), id); err != nil {
		return nil, wrapError(err)
	}
	return &entry, nil
}

// ListEmailLogs returns log entries, newest first.
func (r *Repository) ListEmailLogs(ctx context.Context, filter EmailLogFilter) ([]models.EmailLog, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Purpose != "" {
		where = append(where, "purpose = ?")
		args = append(args, filter.Purpose)
	}
	if filter.ToEmail != "" {
		where = append(where, "LOWER(to_email) = ?")
		args = append(args, strings.ToLower(strings.TrimSpace(filter.ToEmail)))
	}

	query := `SELECT ` + emailLogColumns + ` FROM email_logs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	entries := []models.EmailLog{}
	if err := r.db.SelectContext(ctx, &entries, r.q(query), args...); err != nil {
		return nil, err
	}
	return entries, nil
}

// CountEmailLogs counts entries for a recipient and purpose.
func (r *Repository) CountEmailLogs(ctx context.Context, toEmail string, purpose models.Purpose) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count,
		r.q(`SELECT COUNT(*) FROM email_logs WHERE LOWER(to_email) = ? AND purpose = ?`),
		strings.ToLower(strings.TrimSpace(toEmail)), purpose)
	return count, err
}
