// Curator - Human-in-the-Loop Classification Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/curator

package modelproxy

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/curator/internal/classify"
	"github.com/tomtom215/curator/internal/logging"
)

func exampleSet(n int) []classify.LabeledItem {
	out := make([]classify.LabeledItem, n)
	for i := range out {
		out[i] = classify.LabeledItem{
			Item:  classify.Item{ID: fmt.Sprintf("ex-%d", i), Text: "example"},
			Label: i%2 == 0,
		}
	}
	return out
}

func TestMemoryBackendLifecycle(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend(0)

	id, err := backend.Train(ctx, exampleSet(4), classify.TrainParams{ModelType: "linear"})
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	if id == "" {
		t.Fatal("Train() returned empty model id")
	}

	status, err := backend.GetStatus(ctx, id)
	if err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}
	if status != classify.ModelReady {
		t.Fatalf("GetStatus() = %s, want READY with zero delay", status)
	}

	if err := backend.Delete(ctx, id); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := backend.GetStatus(ctx, id); !errors.Is(err, classify.ErrNotFound) {
		t.Fatalf("GetStatus() after delete error = %v, want ErrNotFound", err)
	}
	if err := backend.Delete(ctx, id); err != nil {
		t.Fatalf("Delete() twice error = %v, want idempotent no-op", err)
	}
}

func TestMemoryBackendTrainDelay(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend(time.Hour)

	base := time.Unix(1000, 0)
	backend.now = func() time.Time { return base }

	id, err := backend.Train(ctx, exampleSet(2), classify.TrainParams{})
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}

	status, err := backend.GetStatus(ctx, id)
	if err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}
	if status != classify.ModelTraining {
		t.Fatalf("GetStatus() = %s, want TRAINING before delay elapses", status)
	}

	backend.now = func() time.Time { return base.Add(2 * time.Hour) }
	status, err = backend.GetStatus(ctx, id)
	if err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}
	if status != classify.ModelReady {
		t.Fatalf("GetStatus() = %s, want READY after delay elapses", status)
	}
}

func TestMemoryBackendInfer(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend(0)

	id, err := backend.Train(ctx, exampleSet(2), classify.TrainParams{})
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	otherID, err := backend.Train(ctx, exampleSet(2), classify.TrainParams{})
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}

	items := []classify.Item{
		{ID: "a", Text: "first"},
		{ID: "b", Text: "second"},
	}

	first, err := backend.Infer(ctx, id, items, classify.InferOptions{})
	if err != nil {
		t.Fatalf("Infer() error = %v", err)
	}
	if len(first) != len(items) {
		t.Fatalf("Infer() returned %d predictions, want %d", len(first), len(items))
	}
	for i, p := range first {
		if p.Score < 0 || p.Score >= 1 {
			t.Errorf("prediction %d score %v outside [0,1)", i, p.Score)
		}
		if len(p.Embedding) != embeddingDim {
			t.Errorf("prediction %d embedding dim %d, want %d", i, len(p.Embedding), embeddingDim)
		}
		if p.Label != (p.Score >= 0.5) {
			t.Errorf("prediction %d label %v inconsistent with score %v", i, p.Label, p.Score)
		}
	}

	again, err := backend.Infer(ctx, id, items, classify.InferOptions{})
	if err != nil {
		t.Fatalf("Infer() error = %v", err)
	}
	for i := range first {
		if first[i].Score != again[i].Score {
			t.Errorf("prediction %d not reproducible: %v vs %v", i, first[i].Score, again[i].Score)
		}
	}

	other, err := backend.Infer(ctx, otherID, items, classify.InferOptions{})
	if err != nil {
		t.Fatalf("Infer() error = %v", err)
	}
	same := true
	for i := range first {
		if first[i].Score != other[i].Score {
			same = false
		}
	}
	if same {
		t.Error("two distinct models produced identical predictions")
	}

	if _, err := backend.Infer(ctx, "missing", items, classify.InferOptions{}); !errors.Is(err, classify.ErrNotFound) {
		t.Fatalf("Infer() on missing model error = %v, want ErrNotFound", err)
	}
}

func TestMemoryBackendSetStatus(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend(0)

	id, err := backend.Train(ctx, exampleSet(2), classify.TrainParams{})
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	if err := backend.SetStatus(id, classify.ModelError); err != nil {
		t.Fatalf("SetStatus() error = %v", err)
	}

	status, err := backend.GetStatus(ctx, id)
	if err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}
	if status != classify.ModelError {
		t.Fatalf("GetStatus() = %s, want ERROR", status)
	}

	if _, err := backend.Infer(ctx, id, []classify.Item{{ID: "a"}}, classify.InferOptions{}); !errors.Is(err, classify.ErrInvalidArgument) {
		t.Fatalf("Infer() on errored model error = %v, want ErrInvalidArgument", err)
	}
}

// flakyBackend fails every call with a transport-style error.
type flakyBackend struct {
	err error
}

func (f *flakyBackend) Train(context.Context, []classify.LabeledItem, classify.TrainParams) (string, error) {
	return "", f.err
}

func (f *flakyBackend) Infer(context.Context, string, []classify.Item, classify.InferOptions) ([]classify.Prediction, error) {
	return nil, f.err
}

func (f *flakyBackend) GetStatus(context.Context, string) (classify.ModelStatus, error) {
	return "", f.err
}

func (f *flakyBackend) Delete(context.Context, string) error {
	return f.err
}

func TestBreakerOpensOnFailures(t *testing.T) {
	ctx := context.Background()
	backend := &flakyBackend{err: errors.New("backend unavailable")}

	b := NewBreaker(backend, BreakerConfig{
		MinRequests: 3,
		StatusRate:  1000,
		StatusBurst: 1000,
	}, logging.Logger())

	for i := 0; i < 10; i++ {
		_, _ = b.Infer(ctx, "m", nil, classify.InferOptions{})
	}

	_, err := b.Infer(ctx, "m", nil, classify.InferOptions{})
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("Infer() error = %v, want ErrOpenState after repeated failures", err)
	}
}

func TestBreakerIgnoresSemanticErrors(t *testing.T) {
	ctx := context.Background()
	backend := &flakyBackend{err: fmt.Errorf("model m: %w", classify.ErrNotFound)}

	b := NewBreaker(backend, BreakerConfig{
		MinRequests: 3,
		StatusRate:  1000,
		StatusBurst: 1000,
	}, logging.Logger())

	for i := 0; i < 20; i++ {
		_, _ = b.Infer(ctx, "m", nil, classify.InferOptions{})
	}

	_, err := b.Infer(ctx, "m", nil, classify.InferOptions{})
	if !errors.Is(err, classify.ErrNotFound) {
		t.Fatalf("Infer() error = %v, want the backend's ErrNotFound, not an open breaker", err)
	}
}

func TestBreakerPassesThrough(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend(0)
	b := NewBreaker(backend, BreakerConfig{StatusRate: 1000, StatusBurst: 1000}, logging.Logger())

	id, err := b.Train(ctx, exampleSet(2), classify.TrainParams{})
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}

	status, err := b.GetStatus(ctx, id)
	if err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}
	if status != classify.ModelReady {
		t.Fatalf("GetStatus() = %s, want READY", status)
	}

	preds, err := b.Infer(ctx, id, []classify.Item{{ID: "a", Text: "x"}}, classify.InferOptions{})
	if err != nil {
		t.Fatalf("Infer() error = %v", err)
	}
	if len(preds) != 1 {
		t.Fatalf("Infer() returned %d predictions, want 1", len(preds))
	}

	if err := b.Delete(ctx, id); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
}
