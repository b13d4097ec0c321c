// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package email

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gonziita68/restaurante-gyz/internal/config"
	"github.com/gonziita68/restaurante-gyz/internal/metrics"
	"github.com/gonziita68/restaurante-gyz/internal/queue"
)

// Mode tells how an enqueued job was executed.
type Mode string

const (
	// ModeQueued means the job was handed to the background queue.
	ModeQueued Mode = "queued"
	// ModeInline means synchronous mode ran the job in the caller.
	ModeInline Mode = "inline"
	// ModeFallback means the queue refused the job and it ran in the caller.
	ModeFallback Mode = "fallback"
)

// QueueUnavailableError records why the queue refused a job.
type QueueUnavailableError struct {
	Err error
}

func (e *QueueUnavailableError) Error() string {
	return fmt.Sprintf("email queue unavailable: %v", e.Err)
}

func (e *QueueUnavailableError) Unwrap() error {
	return e.Err
}

// EnqueueResult describes the outcome of Enqueue.
// DispatchErr is set only when the job ran inline and failed; the failure is
// already recorded in the delivery log.
type EnqueueResult struct {
	Mode        Mode
	JobID       string
	DispatchErr error
	QueueErr    error
}

// Failed reports whether the email is known to be undelivered.
func (r EnqueueResult) Failed() bool {
	return r.DispatchErr != nil
}

// JobEnqueuer accepts notification jobs.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, job queue.Job) EnqueueResult
}

// EnqueuerConfig selects the execution strategy.
type EnqueuerConfig struct {
	Mode          string // config.QueueModeSync or config.QueueModeQueue
	SubmitTimeout time.Duration
}

// Enqueuer hands jobs to the queue and runs them inline when that is not possible.
type Enqueuer struct {
	runner        Runner
	queue         queue.Queue
	submitTimeout time.Duration
	metrics       *metrics.Metrics
}

// NewEnqueuer creates an enqueuer. Synchronous mode, or a nil queue, always runs inline.
func NewEnqueuer(cfg EnqueuerConfig, runner Runner, q queue.Queue, m *metrics.Metrics) *Enqueuer {
	if cfg.Mode == config.QueueModeSync {
		q = nil
	}
	return &Enqueuer{runner: runner, queue: q, submitTimeout: cfg.SubmitTimeout, metrics: m}
}

// Enqueue queues the job or executes it inline. It never returns an error;
// the result carries what happened.
func (e *Enqueuer) Enqueue(ctx context.Context, job queue.Job) EnqueueResult {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}

	if e.queue == nil {
		return e.inline(ctx, job, ModeInline, nil)
	}

	err := e.submit(ctx, job)
	if err == nil {
		e.count(ModeQueued)
		slog.DebugContext(ctx, "email_enqueued", "job_id", job.ID, "template", job.Template, "purpose", job.Purpose)
		return EnqueueResult{Mode: ModeQueued, JobID: job.ID}
	}

	qerr := &QueueUnavailableError{Err: err}
	slog.WarnContext(ctx, "enqueue_fallback", "job_id", job.ID, "template", job.Template, "error", err)
	return e.inline(ctx, job, ModeFallback, qerr)
}

func (e *Enqueuer) submit(ctx context.Context, job queue.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", queue.ErrUnavailable, r)
		}
	}()

	if e.submitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.submitTimeout)
		defer cancel()
	}
	return e.queue.Submit(ctx, job)
}

func (e *Enqueuer) inline(ctx context.Context, job queue.Job, mode Mode, qerr error) EnqueueResult {
	e.count(mode)
	res := EnqueueResult{Mode: mode, JobID: job.ID}
	if qerr != nil {
		res.QueueErr = qerr
	}
	if _, err := e.runner.Dispatch(ctx, job); err != nil {
		res.DispatchErr = err
	}
	return res
}

func (e *Enqueuer) count(mode Mode) {
	if e.metrics != nil {
		e.metrics.EmailEnqueue.WithLabelValues(string(mode)).Inc()
	}
}
