// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package queue

import (
	"context"
	"fmt"
	"sync"
)

// Memory is a bounded in-process queue.
type Memory struct {
	mu     sync.RWMutex
	jobs   chan Job
	closed bool
}

// NewMemory creates a queue holding at most size jobs.
func NewMemory(size int) *Memory {
	if size < 1 {
		size = 1
	}
	return &Memory{jobs: make(chan Job, size)}
}

// Submit enqueues the job without blocking. A full or closed queue is unavailable.
func (m *Memory) Submit(ctx context.Context, job Job) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return fmt.Errorf("%w: closed", ErrUnavailable)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	select {
	case m.jobs <- job:
		return nil
	default:
		return fmt.Errorf("%w: full (%d jobs)", ErrUnavailable, cap(m.jobs))
	}
}

// Consume implements Consumer. Jobs left at Close are still handed out.
func (m *Memory) Consume(ctx context.Context) (Job, error) {
	select {
	case <-ctx.Done():
		return Job{}, ctx.Err()
	case job, ok := <-m.jobs:
		if !ok {
			return Job{}, ErrClosed
		}
		return job, nil
	}
}

// Len returns the number of waiting jobs.
func (m *Memory) Len() int {
	return len(m.jobs)
}

// Close stops accepting jobs.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.jobs)
	}
	return nil
}
