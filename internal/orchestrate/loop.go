// Curator - Human-in-the-Loop Classification Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/curator

// Package orchestrate drives iteration lifecycles: the training Trigger
// starts new iterations, the Loop polls in-flight ones and advances them
// through inference, active learning, and statistics to READY, and Retention
// prunes stale model artifacts.
//
// The loop is a daemon. Any failure inside one category is logged and
// contained; the cycle continues with the others and the next cycle retries.
// Every advance compares live backend status against persisted state before
// acting, so observing the same transition twice never duplicates work.
package orchestrate

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/curator/internal/classify"
	"github.com/tomtom215/curator/internal/metrics"
	"github.com/tomtom215/curator/internal/store"
	"github.com/tomtom215/curator/internal/strategy"
)

// LoopConfig tunes the orchestration loop.
type LoopConfig struct {
	// PollInterval between cycles. Default: 10s. Tuning, not correctness.
	PollInterval time.Duration `koanf:"poll_interval"`

	// WorkspaceConcurrency bounds how many workspaces one cycle processes in
	// parallel. Categories within a workspace stay sequential. Default: 4.
	WorkspaceConcurrency int `koanf:"workspace_concurrency"`

	// BatchSize is the recommendation batch per iteration. Default: 10.
	BatchSize int `koanf:"batch_size"`

	// CandidatePool bounds the unlabeled sample offered to the strategy.
	// Default: 1000.
	CandidatePool int `koanf:"candidate_pool"`

	// CorpusSample bounds the post-train statistics pass. Default: 5000.
	CorpusSample int `koanf:"corpus_sample"`

	// SelectTimeout bounds one active-learning selection, covering the
	// core-set solver's worst case. Default: 5m.
	SelectTimeout time.Duration `koanf:"select_timeout"`

	// RetainReady is how many READY iterations retention keeps. Default: 2.
	RetainReady int `koanf:"retain_ready"`
}

func (c LoopConfig) withDefaults() LoopConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = 10 * time.Second
	}
	if c.WorkspaceConcurrency <= 0 {
		c.WorkspaceConcurrency = 4
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.CandidatePool <= 0 {
		c.CandidatePool = 1000
	}
	if c.CorpusSample <= 0 {
		c.CorpusSample = 5000
	}
	if c.SelectTimeout <= 0 {
		c.SelectTimeout = 5 * time.Minute
	}
	if c.RetainReady <= 0 {
		c.RetainReady = 2
	}
	return c
}

// Loop is the background orchestration daemon. It implements suture.Service.
type Loop struct {
	cfg       LoopConfig
	store     *store.Store
	data      classify.DataAccess
	backend   classify.ModelBackend
	strat     strategy.Strategy
	stats     *Stats
	retention *Retention
	logger    zerolog.Logger
}

// NewLoop wires the loop. backend is expected to be the caching decorator so
// the statistics pass warms the cache for selection.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewLoop(st *store.Store, data classify.DataAccess, backend classify.ModelBackend, strat strategy.Strategy, cfg LoopConfig, logger zerolog.Logger) *Loop {
	cfg = cfg.withDefaults()
	log := logger.With().Str("component", "loop").Logger()
	return &Loop{
		cfg:       cfg,
		store:     st,
		data:      data,
		backend:   backend,
		strat:     strat,
		stats:     NewStats(backend, data, cfg.CorpusSample),
		retention: NewRetention(st, backend, cfg.RetainReady, log),
		logger:    log,
	}
}

// String names the service for the supervisor.
func (l *Loop) String() string { return "orchestration-loop" }

// Serve polls until the supervisor cancels the context. The in-flight cycle
// always drains before Serve returns.
func (l *Loop) Serve(ctx context.Context) error {
	l.logger.Info().Dur("interval", l.cfg.PollInterval).Msg("orchestration loop started")

	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info().Msg("orchestration loop stopped")
			return ctx.Err()
		case <-ticker.C:
			l.Cycle(ctx)
		}
	}
}

// Cycle runs one full poll over every workspace. Errors are contained per
// category; Cycle itself never fails.
func (l *Loop) Cycle(ctx context.Context) {
	log := l.logger.With().Str("cycle", uuid.NewString()).Logger()

	ids, err := l.store.ListWorkspaces(ctx)
	if err != nil {
		log.Error().Err(err).Msg("list workspaces failed")
		metrics.LoopErrors.WithLabelValues("list_workspaces").Inc()
		return
	}

	g := new(errgroup.Group)
	g.SetLimit(l.cfg.WorkspaceConcurrency)
	for _, id := range ids {
		g.Go(func() error {
			l.processWorkspace(ctx, log, id)
			return nil
		})
	}
	_ = g.Wait()

	metrics.LoopCycles.Inc()
	log.Debug().Int("workspaces", len(ids)).Msg("cycle complete")
}

//nolint:gocritic // zerolog.Logger is designed to be passed by value
func (l *Loop) processWorkspace(ctx context.Context, log zerolog.Logger, workspaceID string) {
	ws, err := l.store.GetWorkspace(ctx, workspaceID)
	if err != nil {
		log.Error().Err(err).Str("workspace", workspaceID).Msg("load workspace failed")
		metrics.LoopErrors.WithLabelValues("get_workspace").Inc()
		return
	}

	names := make([]string, 0, len(ws.Categories))
	for name := range ws.Categories {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := l.processCategory(ctx, ws, name); err != nil {
			log.Error().Err(err).
				Str("workspace", workspaceID).
				Str("category", name).
				Msg("category processing failed")
			metrics.LoopErrors.WithLabelValues("category").Inc()
		}
	}
}

func (l *Loop) processCategory(ctx context.Context, ws *classify.Workspace, category string) error {
	cat := ws.Categories[category]
	for i := range cat.Iterations {
		iter := cat.Iterations[i]
		if iter.Status.Terminal() {
			continue
		}
		if err := l.processIteration(ctx, ws, category, i, iter); err != nil {
			return fmt.Errorf("iteration %d: %w", i, err)
		}
	}
	return nil
}

// processIteration advances one non-terminal iteration as far as it can this
// cycle. Iterations mid-pipeline resume from their persisted status, which
// makes a crashed advance re-runnable.
func (l *Loop) processIteration(ctx context.Context, ws *classify.Workspace, category string, index int, iter classify.Iteration) error {
	if iter.Status != classify.IterationTraining {
		// Crash recovery: the model already reached READY in a previous
		// cycle, resume the pipeline where it stopped.
		return l.advance(ctx, ws, category, index, iter.Status, iter.Model.ID)
	}

	live, err := l.backend.GetStatus(ctx, iter.Model.ID)
	if err != nil {
		return fmt.Errorf("model %s status: %w", iter.Model.ID, err)
	}

	switch live {
	case classify.ModelTraining:
		return nil
	case classify.ModelError:
		if err := l.store.UpdateModelStatus(ctx, ws.ID, category, index, classify.ModelError); err != nil {
			return err
		}
		return l.store.UpdateIterationStatus(ctx, ws.ID, category, index, classify.IterationError)
	case classify.ModelReady:
		// Persist the observed transition before doing work, so a re-run
		// after a crash sees READY and resumes instead of repeating.
		if iter.Model.Status != classify.ModelReady {
			if err := l.store.UpdateModelStatus(ctx, ws.ID, category, index, classify.ModelReady); err != nil {
				return err
			}
		}
		return l.advance(ctx, ws, category, index, classify.IterationTraining, iter.Model.ID)
	default:
		return fmt.Errorf("model %s reported unexpected status %s", iter.Model.ID, live)
	}
}

// advance runs the post-READY pipeline from the given persisted status:
// RUNNING_INFERENCE (corpus statistics) -> RUNNING_ACTIVE_LEARNING
// (recommendation batch) -> CALCULATING_STATISTICS (persist metrics) ->
// READY -> retention. A failing step marks the iteration ERROR; the model
// artifact itself stays READY and reusable.
func (l *Loop) advance(ctx context.Context, ws *classify.Workspace, category string, index int, from classify.IterationStatus, modelID string) error {
	step := from
	var stats map[string]float64

	fail := func(err error) error {
		if uerr := l.store.UpdateIterationStatus(ctx, ws.ID, category, index, classify.IterationError); uerr != nil {
			l.logger.Error().Err(uerr).
				Str("workspace", ws.ID).
				Str("category", category).
				Int("iteration", index).
				Msg("could not mark iteration ERROR")
		}
		return err
	}

	if step == classify.IterationTraining {
		if err := l.store.UpdateIterationStatus(ctx, ws.ID, category, index, classify.IterationRunningInference); err != nil {
			return err
		}
		step = classify.IterationRunningInference
	}

	if step == classify.IterationRunningInference {
		m, err := l.stats.Compute(ctx, ws.ID, ws.DatasetID, category, modelID, previousReadyModel(ws, category, index))
		if err != nil {
			return fail(fmt.Errorf("post-train statistics: %w", err))
		}
		stats = m
		if err := l.store.UpdateIterationStatus(ctx, ws.ID, category, index, classify.IterationRunningActiveLearning); err != nil {
			return err
		}
		step = classify.IterationRunningActiveLearning
	}

	if step == classify.IterationRunningActiveLearning {
		recs, err := l.recommend(ctx, ws, category, modelID)
		if err != nil {
			return fail(fmt.Errorf("active learning: %w", err))
		}
		if err := l.store.SetRecommendations(ctx, ws.ID, category, index, recs); err != nil {
			return err
		}
		if err := l.store.UpdateIterationStatus(ctx, ws.ID, category, index, classify.IterationCalculatingStatistics); err != nil {
			return err
		}
		step = classify.IterationCalculatingStatistics
	}

	if step == classify.IterationCalculatingStatistics {
		if len(stats) > 0 {
			if err := l.store.AddIterationStatistics(ctx, ws.ID, category, index, stats); err != nil {
				return fail(err)
			}
		}
		if err := l.store.UpdateIterationStatus(ctx, ws.ID, category, index, classify.IterationReady); err != nil {
			return err
		}
	}

	if err := l.retention.Prune(ctx, ws.ID, category); err != nil {
		return fmt.Errorf("retention: %w", err)
	}
	return nil
}

// recommend computes the active-learning batch for a READY model.
func (l *Loop) recommend(ctx context.Context, ws *classify.Workspace, category, modelID string) ([]string, error) {
	candidates, err := l.data.SampleUnlabeled(ctx, ws.ID, ws.DatasetID, category, l.cfg.CandidatePool)
	if err != nil {
		return nil, fmt.Errorf("sample unlabeled: %w", err)
	}
	if len(candidates) == 0 {
		return []string{}, nil
	}

	preds, err := l.backend.Infer(ctx, modelID, candidates, classify.InferOptions{UseCache: true})
	if err != nil {
		return nil, fmt.Errorf("candidate inference: %w", err)
	}

	labeled, err := l.data.SampleLabeled(ctx, ws.ID, ws.DatasetID, category, l.cfg.CandidatePool)
	if err != nil {
		return nil, fmt.Errorf("sample labeled: %w", err)
	}
	labeledPreds := make([]classify.Prediction, 0, len(labeled))
	if len(labeled) > 0 {
		items := make([]classify.Item, len(labeled))
		for i, lab := range labeled {
			items[i] = lab.Item
		}
		labeledPreds, err = l.backend.Infer(ctx, modelID, items, classify.InferOptions{UseCache: true})
		if err != nil {
			return nil, fmt.Errorf("labeled inference: %w", err)
		}
	}

	selectCtx, cancel := context.WithTimeout(ctx, l.cfg.SelectTimeout)
	defer cancel()

	started := time.Now()
	picked, err := l.strat.Select(selectCtx, strategy.Request{
		Candidates:         candidates,
		Predictions:        preds,
		Labeled:            labeled,
		LabeledPredictions: labeledPreds,
		BatchSize:          l.cfg.BatchSize,
	})
	metrics.SelectionDuration.WithLabelValues(l.strat.Name()).Observe(time.Since(started).Seconds())
	if err != nil {
		return nil, fmt.Errorf("strategy %s: %w", l.strat.Name(), err)
	}

	ids := make([]string, len(picked))
	for i, it := range picked {
		ids[i] = it.ID
	}
	return ids, nil
}

// previousReadyModel returns the newest older iteration whose model is still
// READY, for the flip-fraction statistic.
func previousReadyModel(ws *classify.Workspace, category string, index int) string {
	cat := ws.Categories[category]
	for i := index - 1; i >= 0; i-- {
		if cat.Iterations[i].Model.Status == classify.ModelReady {
			return cat.Iterations[i].Model.ID
		}
	}
	return ""
}
