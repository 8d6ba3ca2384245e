// Curator - Human-in-the-Loop Classification Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/curator

// Package supervisor runs curatord's long-lived services under a suture
// tree. A crashing service is restarted with backoff instead of taking the
// process down; suture's lifecycle events are logged through sutureslog and
// the zerolog bridge.
package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/tomtom215/curator/internal/logging"
)

// TreeConfig holds supervisor restart parameters. Zero values take suture's
// defaults.
type TreeConfig struct {
	// FailureThreshold is the failure score before entering backoff.
	FailureThreshold float64

	// FailureDecay is the failure score half-life in seconds.
	FailureDecay float64

	// FailureBackoff is how long to pause once the threshold is exceeded.
	FailureBackoff time.Duration

	// ShutdownTimeout bounds graceful service shutdown.
	ShutdownTimeout time.Duration
}

func (c TreeConfig) withDefaults() TreeConfig {
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 5.0
	}
	if c.FailureDecay == 0 {
		c.FailureDecay = 30.0
	}
	if c.FailureBackoff == 0 {
		c.FailureBackoff = 15 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	return c
}

// Tree is the root supervisor for curatord: the orchestration loop and the
// observability listener run as its children.
type Tree struct {
	root *suture.Supervisor
}

// NewTree builds the tree. Suture events flow to the global curator logger.
func NewTree(cfg TreeConfig) *Tree {
	cfg = cfg.withDefaults()

	handler := &sutureslog.Handler{
		Logger: slog.New(logging.NewSlogHandler()),
	}

	root := suture.New("curatord", suture.Spec{
		EventHook:        handler.MustHook(),
		FailureThreshold: cfg.FailureThreshold,
		FailureDecay:     cfg.FailureDecay,
		FailureBackoff:   cfg.FailureBackoff,
		Timeout:          cfg.ShutdownTimeout,
	})

	return &Tree{root: root}
}

// Add registers a service with the root supervisor.
func (t *Tree) Add(svc suture.Service) suture.ServiceToken {
	return t.root.Add(svc)
}

// Serve runs the tree until the context is canceled.
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// ServeBackground starts the tree in a goroutine; the returned channel
// receives the terminal error when it stops.
func (t *Tree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}
