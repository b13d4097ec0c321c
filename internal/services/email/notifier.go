// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package email

import (
	"context"

	"github.com/gonziita68/restaurante-gyz/internal/config"
	"github.com/gonziita68/restaurante-gyz/internal/i18n"
	"github.com/gonziita68/restaurante-gyz/internal/models"
	"github.com/gonziita68/restaurante-gyz/internal/queue"
)

// Template names of the account emails.
const (
	TemplateVerification    = "verification.html"
	TemplateWelcome         = "welcome.html"
	TemplatePasswordReset   = "password_reset.html"
	TemplatePasswordChanged = "password_changed.html"
)

// Notifier builds the account emails and hands them to an enqueuer.
type Notifier struct {
	enqueuer JobEnqueuer
	brand    config.BrandConfig
}

// NewNotifier creates a notifier.
func NewNotifier(enqueuer JobEnqueuer, brand config.BrandConfig) *Notifier {
	return &Notifier{enqueuer: enqueuer, brand: brand}
}

// SendVerification sends the email verification link.
func (n *Notifier) SendVerification(ctx context.Context, user *models.User, link string) EnqueueResult {
	return n.send(ctx, user, models.PurposeVerification, TemplateVerification, link)
}

// SendWelcome greets a freshly verified user.
func (n *Notifier) SendWelcome(ctx context.Context, user *models.User) EnqueueResult {
	return n.send(ctx, user, models.PurposeWelcome, TemplateWelcome, "")
}

// SendPasswordReset sends the password reset link.
func (n *Notifier) SendPasswordReset(ctx context.Context, user *models.User, link string) EnqueueResult {
	return n.send(ctx, user, models.PurposePasswordReset, TemplatePasswordReset, link)
}

// SendPasswordChanged confirms a password change.
func (n *Notifier) SendPasswordChanged(ctx context.Context, user *models.User) EnqueueResult {
	return n.send(ctx, user, models.PurposePasswordChanged, TemplatePasswordChanged, "")
}

// Subject returns the translated subject for purpose.
func (n *Notifier) Subject(ctx context.Context, purpose models.Purpose) string {
	return i18n.TData(ctx, "email_subject_"+string(purpose), map[string]any{"SiteName": n.brand.SiteName})
}

func (n *Notifier) send(ctx context.Context, user *models.User, purpose models.Purpose, template, link string) EnqueueResult {
	subject := n.Subject(ctx, purpose)
	data := map[string]any{
		"site_name":     n.brand.SiteName,
		"primary_color": n.brand.PrimaryColor,
		"logo_url":      n.brand.LogoURL,
		"support_email": n.brand.SupportEmail,
		"user_name":     user.DisplayName(),
		"subject":       subject,
		"link":          link,
	}
	return n.enqueuer.Enqueue(ctx, queue.NewJob(user.Email, subject, template, data, purpose))
}
