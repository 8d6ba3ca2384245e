// Curator - Human-in-the-Loop Classification Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/curator

package orchestrate

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/tomtom215/curator/internal/classify"
	"github.com/tomtom215/curator/internal/metrics"
	"github.com/tomtom215/curator/internal/store"
)

// Retention prunes old model artifacts. Iteration records are append-only
// history and are never removed; pruning deletes the backing model and marks
// the iteration MODEL_DELETED.
type Retention struct {
	store   *store.Store
	backend classify.ModelBackend
	keep    int
	logger  zerolog.Logger
}

// NewRetention keeps the newest keep READY iterations per category.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewRetention(st *store.Store, backend classify.ModelBackend, keep int, logger zerolog.Logger) *Retention {
	if keep <= 0 {
		keep = 2
	}
	return &Retention{
		store:   st,
		backend: backend,
		keep:    keep,
		logger:  logger.With().Str("component", "retention").Logger(),
	}
}

// Prune deletes the models of READY iterations beyond the newest keep.
func (r *Retention) Prune(ctx context.Context, workspaceID, category string) error {
	cat, err := r.store.GetCategory(ctx, workspaceID, category)
	if err != nil {
		return err
	}

	ready := 0
	for i := len(cat.Iterations) - 1; i >= 0; i-- {
		iter := &cat.Iterations[i]
		if iter.Status != classify.IterationReady {
			continue
		}
		ready++
		if ready <= r.keep {
			continue
		}
		if err := r.deleteIterationModel(ctx, workspaceID, category, i, iter); err != nil {
			return err
		}
	}
	return nil
}

// deleteIterationModel purges one iteration's artifact and records it. The
// backend delete runs first: if it fails the persisted state is untouched and
// the next cycle retries.
func (r *Retention) deleteIterationModel(ctx context.Context, workspaceID, category string, index int, iter *classify.Iteration) error {
	if err := r.backend.Delete(ctx, iter.Model.ID); err != nil {
		return fmt.Errorf("delete model %s: %w", iter.Model.ID, err)
	}
	if err := r.store.UpdateModelStatus(ctx, workspaceID, category, index, classify.ModelDeleted); err != nil {
		return err
	}
	if err := r.store.UpdateIterationStatus(ctx, workspaceID, category, index, classify.IterationModelDeleted); err != nil {
		return err
	}

	metrics.ModelsDeleted.Inc()
	r.logger.Info().
		Str("workspace", workspaceID).
		Str("category", category).
		Int("iteration", index).
		Str("model", iter.Model.ID).
		Msg("model pruned by retention")
	return nil
}

// DeleteCategory deletes every live model owned by the category, then the
// category record itself.
func (r *Retention) DeleteCategory(ctx context.Context, workspaceID, category string) error {
	cat, err := r.store.GetCategory(ctx, workspaceID, category)
	if err != nil {
		return err
	}
	if err := r.deleteModels(ctx, cat); err != nil {
		return err
	}
	return r.store.DeleteCategory(ctx, workspaceID, category)
}

// DeleteWorkspace deletes every live model in every category, then the
// workspace record.
func (r *Retention) DeleteWorkspace(ctx context.Context, workspaceID string) error {
	ws, err := r.store.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(ws.Categories))
	for name := range ws.Categories {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := r.deleteModels(ctx, ws.Categories[name]); err != nil {
			return err
		}
	}
	return r.store.DeleteWorkspace(ctx, workspaceID)
}

func (r *Retention) deleteModels(ctx context.Context, cat *classify.Category) error {
	for i := range cat.Iterations {
		iter := &cat.Iterations[i]
		if iter.Model.Status == classify.ModelDeleted || iter.Model.ID == "" {
			continue
		}
		if err := r.backend.Delete(ctx, iter.Model.ID); err != nil {
			return fmt.Errorf("delete model %s: %w", iter.Model.ID, err)
		}
	}
	return nil
}
