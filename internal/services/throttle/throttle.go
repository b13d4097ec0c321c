// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package throttle limits how often an email of one purpose goes to one address.
package throttle

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/gonziita68/restaurante-gyz/internal/cache"
	"github.com/gonziita68/restaurante-gyz/internal/models"
)

// DefaultCooldown is the minimum gap between two sends to the same address.
const DefaultCooldown = 300 * time.Second

// Throttle records recent sends in a cache. Cache failures never block a send.
type Throttle struct {
	cache    cache.Cache
	purpose  models.Purpose
	cooldown time.Duration
}

// New creates a throttle for purpose. A zero cooldown uses DefaultCooldown.
func New(c cache.Cache, purpose models.Purpose, cooldown time.Duration) *Throttle {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Throttle{cache: c, purpose: purpose, cooldown: cooldown}
}

// Key returns the cache key for address.
func (t *Throttle) Key(address string) string {
	return "throttle:" + string(t.purpose) + ":" + normalize(address)
}

// Cooldown returns the configured window.
func (t *Throttle) Cooldown() time.Duration {
	return t.cooldown
}

// ShouldThrottle reports whether a send to address happened within the cooldown.
func (t *Throttle) ShouldThrottle(ctx context.Context, address string) bool {
	_, ok, err := t.cache.Get(ctx, t.Key(address))
	if err != nil {
		slog.WarnContext(ctx, "throttle_check_failed", "purpose", t.purpose, "error", err)
		return false
	}
	return ok
}

// MarkSent starts the cooldown for address.
func (t *Throttle) MarkSent(ctx context.Context, address string) {
	if err := t.cache.Set(ctx, t.Key(address), "1", t.cooldown); err != nil {
		slog.WarnContext(ctx, "throttle_mark_failed", "purpose", t.purpose, "error", err)
	}
}

func normalize(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}
