// Curator - Human-in-the-Loop Classification Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/curator

// Package modelproxy guards the model backend. Breaker wraps any
// classify.ModelBackend with a circuit breaker and a status-poll rate limit;
// MemoryBackend is an in-process backend used for development and tests.
package modelproxy

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/rs/zerolog"

	"github.com/tomtom215/curator/internal/classify"
	"github.com/tomtom215/curator/internal/metrics"
)

// BreakerConfig tunes the circuit breaker around the model backend.
type BreakerConfig struct {
	// MaxRequests allowed through while half-open. Default: 3.
	MaxRequests uint32 `koanf:"max_requests"`

	// Interval resets the failure counts while closed. Default: 1m.
	Interval time.Duration `koanf:"interval"`

	// Timeout before an open breaker probes again. Default: 2m.
	Timeout time.Duration `koanf:"timeout"`

	// MinRequests before the failure ratio is considered. Default: 10.
	MinRequests uint32 `koanf:"min_requests"`

	// FailureRatio at or above which the breaker opens. Default: 0.6.
	FailureRatio float64 `koanf:"failure_ratio"`

	// StatusRate caps GetStatus polls per second. Default: 5.
	StatusRate float64 `koanf:"status_rate"`

	// StatusBurst is the poll limiter burst. Default: 5.
	StatusBurst int `koanf:"status_burst"`
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.MaxRequests == 0 {
		c.MaxRequests = 3
	}
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.Timeout <= 0 {
		c.Timeout = 2 * time.Minute
	}
	if c.MinRequests == 0 {
		c.MinRequests = 10
	}
	if c.FailureRatio <= 0 {
		c.FailureRatio = 0.6
	}
	if c.StatusRate <= 0 {
		c.StatusRate = 5
	}
	if c.StatusBurst <= 0 {
		c.StatusBurst = 5
	}
	return c
}

// Breaker shields callers from a failing model backend. All four backend
// operations share one breaker, since the backend fails as a unit; status
// polls are additionally rate limited because the orchestration loop issues
// them on every cycle for every category.
type Breaker struct {
	backend classify.ModelBackend
	cb      *gobreaker.CircuitBreaker[any]
	limiter *rate.Limiter
	logger  zerolog.Logger
}

var _ classify.ModelBackend = (*Breaker)(nil)

// NewBreaker wraps a backend.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewBreaker(backend classify.ModelBackend, cfg BreakerConfig, logger zerolog.Logger) *Breaker {
	cfg = cfg.withDefaults()
	log := logger.With().Str("component", "model_breaker").Logger()

	metrics.BreakerState.Set(0)

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "model-backend",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= cfg.FailureRatio
		},
		// Semantic rejections are not backend outages and must not trip
		// the breaker.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, classify.ErrNotFound) ||
				errors.Is(err, classify.ErrInvalidArgument) ||
				errors.Is(err, classify.ErrUnsupportedOperation)
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			log.Warn().
				Str("from", stateToString(from)).
				Str("to", stateToString(to)).
				Msg("circuit breaker state transition")
			metrics.BreakerState.Set(stateToFloat(to))
		},
	})

	return &Breaker{
		backend: backend,
		cb:      cb,
		limiter: rate.NewLimiter(rate.Limit(cfg.StatusRate), cfg.StatusBurst),
		logger:  log,
	}
}

// castResult narrows the breaker's any-typed result after checking the error.
func castResult[T any](result any, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	typed, ok := result.(T)
	if !ok {
		return zero, fmt.Errorf("model breaker: unexpected result type %T", result)
	}
	return typed, nil
}

// Train submits a training run through the breaker.
func (b *Breaker) Train(ctx context.Context, examples []classify.LabeledItem, params classify.TrainParams) (string, error) {
	return castResult[string](b.cb.Execute(func() (any, error) {
		return b.backend.Train(ctx, examples, params)
	}))
}

// Infer runs predictions through the breaker.
func (b *Breaker) Infer(ctx context.Context, modelID string, items []classify.Item, opts classify.InferOptions) ([]classify.Prediction, error) {
	return castResult[[]classify.Prediction](b.cb.Execute(func() (any, error) {
		return b.backend.Infer(ctx, modelID, items, opts)
	}))
}

// GetStatus polls a model's training status, subject to the poll rate limit.
func (b *Breaker) GetStatus(ctx context.Context, modelID string) (classify.ModelStatus, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("status poll rate limit: %w", err)
	}
	return castResult[classify.ModelStatus](b.cb.Execute(func() (any, error) {
		return b.backend.GetStatus(ctx, modelID)
	}))
}

// Delete removes a model artifact through the breaker.
func (b *Breaker) Delete(ctx context.Context, modelID string) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, b.backend.Delete(ctx, modelID)
	})
	return err
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
