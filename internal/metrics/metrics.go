// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package metrics exposes Prometheus counters for the email pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a dedicated registry so tests never share counters.
type Metrics struct {
	Registry *prometheus.Registry

	// EmailDispatch counts dispatch outcomes.
	// Labels: purpose, status (sent|error).
	EmailDispatch *prometheus.CounterVec

	// EmailEnqueue counts how jobs left the request path.
	// Labels: mode (queued|inline|fallback).
	EmailEnqueue *prometheus.CounterVec

	// EmailRetries counts scheduled worker retries.
	EmailRetries prometheus.Counter

	// EmailDropped counts jobs given up after the last attempt.
	EmailDropped prometheus.Counter

	// ResendThrottled counts suppressed verification resends.
	ResendThrottled prometheus.Counter
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		EmailDispatch: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gyz",
			Subsystem: "email",
			Name:      "dispatch_total",
			Help:      "Email dispatch attempts by purpose and terminal status",
		}, []string{"purpose", "status"}),
		EmailEnqueue: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gyz",
			Subsystem: "email",
			Name:      "enqueue_total",
			Help:      "Email jobs by execution mode",
		}, []string{"mode"}),
		EmailRetries: f.NewCounter(prometheus.CounterOpts{
			Namespace: "gyz",
			Subsystem: "email",
			Name:      "retries_total",
			Help:      "Email job retries scheduled by the worker",
		}),
		EmailDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: "gyz",
			Subsystem: "email",
			Name:      "dropped_total",
			Help:      "Email jobs abandoned after the last attempt",
		}),
		ResendThrottled: f.NewCounter(prometheus.CounterOpts{
			Namespace: "gyz",
			Subsystem: "auth",
			Name:      "resend_throttled_total",
			Help:      "Verification resends suppressed by the cooldown",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
