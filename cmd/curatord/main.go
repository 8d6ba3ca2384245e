// Curator - Human-in-the-Loop Classification Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/curator

// Package main is the entry point for the curatord daemon.
//
// curatord runs the background half of an iterative human-in-the-loop
// classification system: it polls in-flight training iterations, computes
// post-train statistics, asks the active-learning strategy engine for the
// next labeling batch, and prunes stale model artifacts.
//
// Startup order:
//
//  1. Configuration: defaults, optional YAML file, CURATOR_* environment
//  2. Logging: zerolog, json or console
//  3. State store: one JSON record per workspace, atomically replaced
//  4. Inference cache: bounded memory tier over a badger disk tier
//  5. Model backend: in-process backend behind a circuit breaker
//  6. Supervisor tree: orchestration loop + metrics listener
//
// In demo mode (the default) curatord seeds a synthetic corpus, labels a
// few items, and starts a first training round so the whole pipeline can be
// observed end to end:
//
//	CURATOR_DEMO__ENABLED=true ./curatord
//
// Shutdown on SIGINT/SIGTERM is graceful: the running cycle drains before
// the process exits.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/curator/internal/classify"
	"github.com/tomtom215/curator/internal/config"
	"github.com/tomtom215/curator/internal/corpus"
	"github.com/tomtom215/curator/internal/inference"
	"github.com/tomtom215/curator/internal/logging"
	"github.com/tomtom215/curator/internal/metrics"
	"github.com/tomtom215/curator/internal/modelproxy"
	"github.com/tomtom215/curator/internal/orchestrate"
	"github.com/tomtom215/curator/internal/store"
	"github.com/tomtom215/curator/internal/strategy"
	"github.com/tomtom215/curator/internal/supervisor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Caller: cfg.Log.Caller,
	})
	logger := logging.Logger()

	logging.Info().
		Str("strategy", string(cfg.Strategy.Kind)).
		Str("state_dir", cfg.Store.Dir).
		Bool("demo", cfg.Demo.Enabled).
		Msg("starting curatord")

	st, err := store.Open(cfg.Store.Dir, logger)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to open state store")
	}

	opts := badger.DefaultOptions(cfg.Cache.Dir).WithLogger(nil)
	if cfg.Cache.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to open cache database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("error closing cache database")
		}
	}()

	// Only the in-process backend is built in; real deployments implement
	// the ModelBackend capability against their model service.
	if cfg.Backend.Kind != "memory" {
		logging.Fatal().Str("kind", cfg.Backend.Kind).Msg("unknown model backend")
	}
	breaker := modelproxy.NewBreaker(
		modelproxy.NewMemoryBackend(cfg.TrainDelayDuration()), cfg.Breaker, logger)
	cache := inference.New(breaker, db, cfg.Cache.Capacity, logger)

	strat, err := strategy.New(cfg.Strategy)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to build strategy")
	}

	if !cfg.Demo.Enabled {
		logging.Fatal().Msg("no corpus configured: enable demo mode (demo.enabled) or integrate a DataAccess implementation")
	}
	data := corpus.NewMemory(cfg.Demo.CorpusSize)

	loop := orchestrate.NewLoop(st, data, cache, strat, cfg.Loop, logger)
	trigger := orchestrate.NewTrigger(st, data, cache, cfg.Trigger, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := seedDemo(ctx, cfg, st, data, trigger); err != nil {
		logging.Fatal().Err(err).Msg("failed to seed demo workspace")
	}

	tree := supervisor.NewTree(supervisor.TreeConfig{})
	tree.Add(loop)
	if cfg.Metrics.Enabled {
		tree.Add(metrics.NewServer(cfg.Metrics.Addr, logger))
	}

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("supervisor exited")
		os.Exit(1)
	}
	logging.Info().Msg("curatord stopped")
}

// seedDemo creates the demo workspace, labels the first items alternating
// positive/negative, and starts the first training round. Re-running against
// existing state is a no-op.
func seedDemo(ctx context.Context, cfg *config.Config, st *store.Store, data *corpus.Memory, trigger *orchestrate.Trigger) error {
	d := cfg.Demo

	err := st.CreateWorkspace(ctx, d.Workspace, d.Dataset)
	switch {
	case errors.Is(err, classify.ErrAlreadyExists):
		return nil
	case err != nil:
		return err
	}

	if err := st.AddCategory(ctx, d.Workspace, d.Category, "demo category"); err != nil {
		return err
	}

	items := data.Items()
	for i := 0; i < d.SeedLabels && i < len(items); i++ {
		if err := data.SetLabel(d.Workspace, d.Category, items[i].ID, i%2 == 0); err != nil {
			return err
		}
		if _, err := st.IncrementLabelChange(ctx, d.Workspace, d.Category, 1); err != nil {
			return err
		}
	}

	modelID, err := trigger.MaybeStartTraining(ctx, d.Workspace, d.Category, true)
	if err != nil {
		return err
	}
	logging.Info().
		Str("workspace", d.Workspace).
		Str("category", d.Category).
		Str("model", modelID).
		Msg("demo workspace seeded")
	return nil
}
