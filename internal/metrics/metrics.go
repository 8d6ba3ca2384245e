// Curator - Human-in-the-Loop Classification Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/curator

// Package metrics exposes Prometheus collectors for the orchestration loop,
// the inference cache, and the active-learning strategy engine. Metrics are
// served on the /metrics endpoint of the observability listener.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LoopCycles counts completed orchestration poll cycles.
	LoopCycles = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "curator_loop_cycles_total",
			Help: "Total number of completed orchestration poll cycles",
		},
	)

	// LoopErrors counts contained per-category failures inside a cycle.
	LoopErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "curator_loop_errors_total",
			Help: "Total number of contained errors during orchestration cycles",
		},
		[]string{"step"},
	)

	// TrainingsStarted counts iterations created by the training trigger.
	TrainingsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "curator_trainings_started_total",
			Help: "Total number of training runs started",
		},
	)

	// IterationsAdvanced counts iteration status transitions, labeled by
	// the status entered.
	IterationsAdvanced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "curator_iterations_advanced_total",
			Help: "Total number of iteration status transitions",
		},
		[]string{"status"},
	)

	// ModelsDeleted counts model artifacts purged by retention.
	ModelsDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "curator_models_deleted_total",
			Help: "Total number of model artifacts deleted by retention",
		},
	)

	// CacheHits counts inference cache hits per tier (memory, disk).
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "curator_inference_cache_hits_total",
			Help: "Total number of inference cache hits",
		},
		[]string{"tier"},
	)

	// CacheMisses counts lookups that fell through to real inference.
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "curator_inference_cache_misses_total",
			Help: "Total number of inference cache misses reaching the backend",
		},
	)

	// SelectionDuration observes active-learning selection latency per
	// strategy.
	SelectionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "curator_selection_duration_seconds",
			Help:    "Duration of active-learning batch selection",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 15, 60, 180},
		},
		[]string{"strategy"},
	)

	// BreakerState tracks the model-backend circuit breaker state
	// (0=closed, 1=half-open, 2=open).
	BreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "curator_model_breaker_state",
			Help: "Model backend circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)
)
