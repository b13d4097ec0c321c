// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import "time"

// Purpose is the semantic category of a notification email.
type Purpose string

const (
	PurposeVerification    Purpose = "verification"
	PurposeWelcome         Purpose = "welcome"
	PurposePasswordReset   Purpose = "password_reset"
	PurposePasswordChanged Purpose = "password_changed"
	PurposeOther           Purpose = "other"
)

// Purposes lists every known purpose.
var Purposes = []Purpose{
	PurposeVerification,
	PurposeWelcome,
	PurposePasswordReset,
	PurposePasswordChanged,
	PurposeOther,
}

// ParsePurpose maps unknown values to PurposeOther.
func ParsePurpose(s string) Purpose {
	for _, p := range Purposes {
		if string(p) == s {
			return p
		}
	}
	return PurposeOther
}

// EmailStatus is the delivery state of a logged email.
type EmailStatus string

const (
	EmailQueued EmailStatus = "queued"
	EmailSent   EmailStatus = "sent"
	EmailError  EmailStatus = "error"
)

// Final reports whether the status is terminal.
func (s EmailStatus) Final() bool {
	return s == EmailSent || s == EmailError
}

// EmailLog records one email send attempt.
// Status starts at queued and moves exactly once to sent or error.
type EmailLog struct { //nolint:govet // fieldalignment: readability over optimization
	ID           int64       `db:"id" json:"id"`
	UserID       *int64      `db:"user_id" json:"user_id,omitempty"`
	ToEmail      string      `db:"to_email" json:"to_email"`
	Subject      string      `db:"subject" json:"subject"`
	Template     string      `db:"template" json:"template"`
	Purpose      Purpose     `db:"purpose" json:"purpose"`
	Status       EmailStatus `db:"status" json:"status"`
	ErrorMessage *string     `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
	SentAt       *time.Time  `db:"sent_at" json:"sent_at,omitempty"`
}
