// Curator - Human-in-the-Loop Classification Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/curator

package orchestrate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/curator/internal/classify"
	"github.com/tomtom215/curator/internal/metrics"
	"github.com/tomtom215/curator/internal/store"
)

// TriggerConfig holds the training-start thresholds.
type TriggerConfig struct {
	// MinPositive is the positive-label count required before training can
	// start without force. Default: 5.
	MinPositive int `koanf:"min_positive"`

	// MinChanges is the label-change count since the last training required
	// before training can start without force. Default: 5.
	MinChanges int `koanf:"min_changes"`

	// MaxTrainingSet caps the labeled sample submitted to training.
	// Default: 10000.
	MaxTrainingSet int `koanf:"max_training_set"`

	// ModelType is passed through to the backend. Default: "default".
	ModelType string `koanf:"model_type"`
}

func (c TriggerConfig) withDefaults() TriggerConfig {
	if c.MinPositive <= 0 {
		c.MinPositive = 5
	}
	if c.MinChanges <= 0 {
		c.MinChanges = 5
	}
	if c.MaxTrainingSet <= 0 {
		c.MaxTrainingSet = 10000
	}
	if c.ModelType == "" {
		c.ModelType = "default"
	}
	return c
}

// Trigger decides when a category gets a new training iteration. Safe for
// concurrent use: a per-category lock spans the no-overlap check, the
// training start, and the iteration append, so two racing callers can never
// both start a round.
type Trigger struct {
	store   *store.Store
	data    classify.DataAccess
	backend classify.ModelBackend
	cfg     TriggerConfig
	logger  zerolog.Logger

	// mu guards locks membership only.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewTrigger wires the trigger's collaborators.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewTrigger(st *store.Store, data classify.DataAccess, backend classify.ModelBackend, cfg TriggerConfig, logger zerolog.Logger) *Trigger {
	return &Trigger{
		store:   st,
		data:    data,
		backend: backend,
		cfg:     cfg.withDefaults(),
		logger:  logger.With().Str("component", "trigger").Logger(),
		locks:   make(map[string]*sync.Mutex),
	}
}

func (t *Trigger) lockFor(workspaceID, category string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := workspaceID + "\x00" + category
	l, ok := t.locks[key]
	if !ok {
		l = &sync.Mutex{}
		t.locks[key] = l
	}
	return l
}

// MaybeStartTraining starts a new iteration when the rules allow it and
// returns the new model id, or "" when nothing was started.
//
// Training never starts while any non-ERROR iteration's model is still
// TRAINING, or while the newest non-ERROR iteration has not finished its
// active-learning round. Past those gates, force bypasses the
// (MinPositive, MinChanges) thresholds.
func (t *Trigger) MaybeStartTraining(ctx context.Context, workspaceID, category string, force bool) (string, error) {
	// Held across check and append. Train can be a slow remote call, and a
	// competitor reading the workspace during that window would see no
	// in-flight round and start a second one.
	l := t.lockFor(workspaceID, category)
	l.Lock()
	defer l.Unlock()

	ws, err := t.store.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return "", err
	}
	cat, ok := ws.Categories[category]
	if !ok {
		return "", fmt.Errorf("category %q: %w", category, classify.ErrNotFound)
	}

	if reason := blockReason(cat); reason != "" {
		t.logger.Debug().
			Str("workspace", workspaceID).
			Str("category", category).
			Str("reason", reason).
			Msg("training not started")
		return "", nil
	}

	if !force {
		counts, err := t.data.LabelCounts(ctx, workspaceID, ws.DatasetID, category)
		if err != nil {
			return "", fmt.Errorf("label counts: %w", err)
		}
		if counts.Positive < t.cfg.MinPositive || cat.LabelChangeCount < t.cfg.MinChanges {
			t.logger.Debug().
				Str("workspace", workspaceID).
				Str("category", category).
				Int("positive", counts.Positive).
				Int("changes", cat.LabelChangeCount).
				Msg("training thresholds not met")
			return "", nil
		}
	}

	if err := t.store.ResetLabelChange(ctx, workspaceID, category); err != nil {
		return "", err
	}

	trainingSet, err := t.data.SampleLabeled(ctx, workspaceID, ws.DatasetID, category, t.cfg.MaxTrainingSet)
	if err != nil {
		return "", fmt.Errorf("sample training set: %w", err)
	}

	modelID, err := t.backend.Train(ctx, trainingSet, classify.TrainParams{ModelType: t.cfg.ModelType})
	if err != nil {
		return "", fmt.Errorf("start training: %w", err)
	}

	index, err := t.store.AddIteration(ctx, workspaceID, category, classify.ModelInfo{
		ID:        modelID,
		Status:    classify.ModelTraining,
		Type:      t.cfg.ModelType,
		CreatedAt: time.Now().UTC(),
		Metadata: map[string]string{
			"training_set_size": fmt.Sprintf("%d", len(trainingSet)),
		},
	})
	if err != nil {
		return "", err
	}

	metrics.TrainingsStarted.Inc()
	t.logger.Info().
		Str("workspace", workspaceID).
		Str("category", category).
		Int("iteration", index).
		Str("model", modelID).
		Int("training_set", len(trainingSet)).
		Msg("training started")
	return modelID, nil
}

// blockReason returns a non-empty reason when the no-overlap rules forbid a
// new training round.
func blockReason(cat *classify.Category) string {
	for i := range cat.Iterations {
		iter := &cat.Iterations[i]
		if iter.Status != classify.IterationError && iter.Model.Status == classify.ModelTraining {
			return "a model is still training"
		}
	}

	for i := len(cat.Iterations) - 1; i >= 0; i-- {
		iter := &cat.Iterations[i]
		if iter.Status == classify.IterationError {
			continue
		}
		if iter.Status != classify.IterationReady && iter.Status != classify.IterationModelDeleted {
			return "previous active-learning round not finished"
		}
		break
	}
	return ""
}
