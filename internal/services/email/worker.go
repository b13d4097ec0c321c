// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package email

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/gonziita68/restaurante-gyz/internal/metrics"
	"github.com/gonziita68/restaurante-gyz/internal/queue"
)

// Retry defaults: three attempts, waiting 5s then 10s.
const (
	DefaultMaxAttempts = 3
	DefaultRetryBase   = 5 * time.Second
)

// idleDelay is how long a worker waits after the queue reports an error.
const idleDelay = time.Second

// attemptTimeout bounds a single dispatch when computing the drain budget.
const attemptTimeout = 30 * time.Second

// WorkerConfig tunes the worker pool.
type WorkerConfig struct {
	Workers     int
	MaxAttempts int
	RetryBase   time.Duration
	// Backoff overrides the exponential schedule built from RetryBase.
	Backoff func() retry.Backoff
}

// Worker consumes queued jobs and retries failed dispatches.
type Worker struct {
	consumer queue.Consumer
	runner   Runner
	cfg      WorkerConfig
	metrics  *metrics.Metrics
}

// NewWorker creates a worker pool. m may be nil.
func NewWorker(cfg WorkerConfig, consumer queue.Consumer, runner Runner, m *metrics.Metrics) *Worker {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = DefaultRetryBase
	}
	return &Worker{consumer: consumer, runner: runner, cfg: cfg, metrics: m}
}

// Run starts the pool and blocks until ctx is done or the queue is closed.
// Jobs already being dispatched are finished first.
func (w *Worker) Run(ctx context.Context) error {
	slog.InfoContext(ctx, "worker_started", "workers", w.cfg.Workers, "max_attempts", w.cfg.MaxAttempts)

	var wg sync.WaitGroup
	for i := range w.cfg.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.loop(ctx, i)
		}()
	}
	wg.Wait()

	slog.InfoContext(ctx, "worker_stopped")
	return nil
}

func (w *Worker) loop(ctx context.Context, id int) {
	for {
		job, err := w.consumer.Consume(ctx)
		switch {
		case err == nil:
			_ = w.Process(ctx, job)
		case errors.Is(err, queue.ErrClosed), ctx.Err() != nil:
			return
		case errors.Is(err, queue.ErrMalformed):
			slog.ErrorContext(ctx, "worker_job_discarded", "worker", id, "error", err)
		default:
			slog.WarnContext(ctx, "worker_consume_failed", "worker", id, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(idleDelay):
			}
		}
	}
}

func (w *Worker) backoff() retry.Backoff {
	var b retry.Backoff
	if w.cfg.Backoff != nil {
		b = w.cfg.Backoff()
	} else {
		b = retry.NewExponential(w.cfg.RetryBase)
	}
	return retry.WithMaxRetries(uint64(w.cfg.MaxAttempts-1), b)
}

// DrainTimeout is the longest a job may take once picked up: every attempt
// plus the exponential waits between them.
func (w *Worker) DrainTimeout() time.Duration {
	budget := time.Duration(w.cfg.MaxAttempts) * attemptTimeout
	wait := w.cfg.RetryBase
	for range w.cfg.MaxAttempts - 1 {
		budget += wait
		wait *= 2
	}
	return budget
}

// Process dispatches job, retrying every failure until MaxAttempts is reached.
// Each attempt writes its own log entry. The last error is returned once the
// job is given up.
//
// A job that has been consumed is not lost to shutdown: cancelling ctx does
// not interrupt the backoff, which only stops after DrainTimeout.
func (w *Worker) Process(ctx context.Context, job queue.Job) error {
	attempt := 0
	dispatchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.DrainTimeout())
	defer cancel()

	err := retry.Do(dispatchCtx, w.backoff(), func(context.Context) error {
		attempt++
		_, err := w.runner.Dispatch(dispatchCtx, job)
		if err == nil {
			return nil
		}
		if attempt < w.cfg.MaxAttempts {
			if w.metrics != nil {
				w.metrics.EmailRetries.Inc()
			}
			slog.WarnContext(ctx, "email_retry", "job_id", job.ID, "attempt", attempt, "error", err)
		}
		return retry.RetryableError(err)
	})
	if err != nil {
		if w.metrics != nil {
			w.metrics.EmailDropped.Inc()
		}
		slog.ErrorContext(ctx, "email_dropped", "job_id", job.ID, "attempts", attempt, "template", job.Template, "error", err)
	}
	return err
}
