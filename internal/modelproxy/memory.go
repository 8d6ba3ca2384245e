// Curator - Human-in-the-Loop Classification Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/curator

package modelproxy

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/curator/internal/classify"
)

// embeddingDim is the width of the synthetic embedding vectors.
const embeddingDim = 8

// MemoryBackend is an in-process model backend. Model IDs are random UUIDs;
// predictions are derived by hashing the model ID together with the item's
// cache key, so the same model always predicts the same thing for the same
// item while distinct models disagree. Used for development mode and tests.
type MemoryBackend struct {
	// TrainDelay is how long a trained model reports TRAINING before it
	// flips to READY. Zero means models are ready immediately.
	TrainDelay time.Duration

	mu     sync.Mutex
	models map[string]*memoryModel
	now    func() time.Time
}

type memoryModel struct {
	createdAt time.Time
	status    classify.ModelStatus
	examples  int
}

var _ classify.ModelBackend = (*MemoryBackend)(nil)

// NewMemoryBackend constructs an empty backend.
func NewMemoryBackend(trainDelay time.Duration) *MemoryBackend {
	return &MemoryBackend{
		TrainDelay: trainDelay,
		models:     make(map[string]*memoryModel),
		now:        time.Now,
	}
}

// Train registers a model and returns its ID immediately; readiness follows
// after TrainDelay.
func (m *MemoryBackend) Train(ctx context.Context, examples []classify.LabeledItem, _ classify.TrainParams) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(examples) == 0 {
		return "", fmt.Errorf("training requires at least one example: %w", classify.ErrInvalidArgument)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.NewString()
	m.models[id] = &memoryModel{
		createdAt: m.now(),
		status:    classify.ModelTraining,
		examples:  len(examples),
	}
	return id, nil
}

// Infer returns deterministic per-item predictions for a READY model.
func (m *MemoryBackend) Infer(ctx context.Context, modelID string, items []classify.Item, _ classify.InferOptions) ([]classify.Prediction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	status, err := m.GetStatus(ctx, modelID)
	if err != nil {
		return nil, err
	}
	if status != classify.ModelReady {
		return nil, fmt.Errorf("model %s is %s, not READY: %w", modelID, status, classify.ErrInvalidArgument)
	}

	preds := make([]classify.Prediction, len(items))
	for i, it := range items {
		preds[i] = predict(modelID, it)
	}
	return preds, nil
}

// GetStatus reports a model's lifecycle state, resolving TrainDelay lazily.
func (m *MemoryBackend) GetStatus(ctx context.Context, modelID string) (classify.ModelStatus, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	mdl, ok := m.models[modelID]
	if !ok {
		return "", fmt.Errorf("model %s: %w", modelID, classify.ErrNotFound)
	}
	if mdl.status == classify.ModelTraining && m.now().Sub(mdl.createdAt) >= m.TrainDelay {
		mdl.status = classify.ModelReady
	}
	return mdl.status, nil
}

// Delete removes a model. Deleting an unknown model is a no-op, so retention
// can retry after a partial failure.
func (m *MemoryBackend) Delete(ctx context.Context, modelID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.models, modelID)
	return nil
}

// SetStatus overrides a model's status, e.g. to simulate a training failure.
func (m *MemoryBackend) SetStatus(modelID string, status classify.ModelStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	mdl, ok := m.models[modelID]
	if !ok {
		return fmt.Errorf("model %s: %w", modelID, classify.ErrNotFound)
	}
	mdl.status = status
	return nil
}

// predict hashes the model and item identities into a score and embedding.
func predict(modelID string, item classify.Item) classify.Prediction {
	score := hashUnit(modelID + "\x00" + item.CacheKey())

	emb := make([]float64, embeddingDim)
	for d := range emb {
		emb[d] = hashUnit(fmt.Sprintf("%s\x00%s\x00%d", modelID, item.CacheKey(), d))
	}

	return classify.Prediction{
		Label:     score >= 0.5,
		Score:     score,
		Embedding: emb,
	}
}

// hashUnit maps a string to [0,1) via FNV-1a.
func hashUnit(s string) float64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return float64(h.Sum64()>>11) / float64(1<<53)
}
