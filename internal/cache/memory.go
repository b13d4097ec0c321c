// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Memory is an in-process cache. Entries are not shared between processes.
type Memory struct {
	c *gocache.Cache
}

// NewMemory creates an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{c: gocache.New(5*time.Minute, 10*time.Minute)}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := m.c.Get(key)
	if !ok {
		return "", false, nil
	}
	s, _ := v.(string)
	return s, true, nil
}

func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	m.c.Set(key, value, ttl)
	return nil
}

func (m *Memory) Close() error {
	m.c.Flush()
	return nil
}
