// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package auth provides authentication context helpers.
package auth

import (
	"context"

	"github.com/gonziita68/restaurante-gyz/internal/ctxkeys"
	"github.com/gonziita68/restaurante-gyz/internal/models"
	"github.com/gonziita68/restaurante-gyz/internal/services/session"
)

// WithUser stores the authenticated user and its session in ctx.
func WithUser(ctx context.Context, user *models.User, sess *session.Data) context.Context {
	ctx = context.WithValue(ctx, ctxkeys.User{}, user)
	return context.WithValue(ctx, ctxkeys.Session{}, sess)
}

// GetUser returns the authenticated user from the context, or nil if not authenticated.
func GetUser(ctx context.Context) *models.User {
	if user, ok := ctx.Value(ctxkeys.User{}).(*models.User); ok {
		return user
	}
	return nil
}

// GetSession returns the session that authenticated the request, or nil.
func GetSession(ctx context.Context) *session.Data {
	if sess, ok := ctx.Value(ctxkeys.Session{}).(*session.Data); ok {
		return sess
	}
	return nil
}

// IsAuthenticated returns true if the context has an authenticated user.
func IsAuthenticated(ctx context.Context) bool {
	return GetUser(ctx) != nil
}
