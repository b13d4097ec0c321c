// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package cache provides a small key-value store with expiring entries.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/gonziita68/restaurante-gyz/internal/config"
)

// Cache stores string values with a time to live.
type Cache interface {
	// Get returns the value and whether the key was present.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores value under key for ttl.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Close() error
}

// Open returns the backend named by backend.
func Open(backend, redisURL string) (Cache, error) {
	switch backend {
	case config.BackendRedis:
		return NewRedis(redisURL)
	case config.BackendMemory, "":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", backend)
	}
}
