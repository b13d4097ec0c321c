// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package queue carries email jobs from request handlers to background workers.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gonziita68/restaurante-gyz/internal/config"
	"github.com/gonziita68/restaurante-gyz/internal/models"
)

var (
	// ErrUnavailable is returned when a job cannot be handed to the queue.
	ErrUnavailable = errors.New("queue unavailable")
	// ErrClosed is returned by Consume once the queue is closed and drained.
	ErrClosed = errors.New("queue closed")
	// ErrMalformed is returned by Consume for a payload that is not a job.
	ErrMalformed = errors.New("malformed job")
)

// Job describes one notification email. It is serialized as JSON on the wire.
type Job struct {
	ID         string         `json:"id"`
	Recipient  string         `json:"recipient"`
	Subject    string         `json:"subject"`
	Template   string         `json:"template"`
	Context    map[string]any `json:"context"`
	Purpose    models.Purpose `json:"purpose"`
	EnqueuedAt time.Time      `json:"enqueued_at"`
}

// NewJob builds a job with a fresh ID.
func NewJob(recipient, subject, template string, data map[string]any, purpose models.Purpose) Job {
	if data == nil {
		data = map[string]any{}
	}
	return Job{
		ID:         uuid.NewString(),
		Recipient:  recipient,
		Subject:    subject,
		Template:   template,
		Context:    data,
		Purpose:    models.ParsePurpose(string(purpose)),
		EnqueuedAt: time.Now().UTC(),
	}
}

// Queue accepts jobs for later execution.
type Queue interface {
	Submit(ctx context.Context, job Job) error
}

// Consumer hands out submitted jobs. Consume blocks until a job is available,
// the context is done or the queue is closed.
type Consumer interface {
	Consume(ctx context.Context) (Job, error)
}

// Broker is a queue that can be both fed and drained.
type Broker interface {
	Queue
	Consumer
	Close() error
}

// Open returns the broker selected by cfg.Backend.
func Open(cfg *config.QueueConfig, redisURL string) (Broker, error) {
	switch cfg.Backend {
	case config.BackendRedis:
		return NewRedis(redisURL, cfg.Key)
	case config.BackendMemory, "":
		return NewMemory(cfg.Size), nil
	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.Backend)
	}
}
