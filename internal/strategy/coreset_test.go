// Curator - Human-in-the-Loop Classification Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/curator

package strategy

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/tomtom215/curator/internal/classify"
)

// embeddedRequest builds an aligned request where every prediction carries a
// 2D embedding.
func embeddedRequest(pool, labeled [][]float64, batch int) Request {
	req := Request{
		Candidates:         make([]classify.Item, len(pool)),
		Predictions:        make([]classify.Prediction, len(pool)),
		Labeled:            make([]classify.LabeledItem, len(labeled)),
		LabeledPredictions: make([]classify.Prediction, len(labeled)),
		BatchSize:          batch,
	}
	for i, e := range pool {
		req.Candidates[i] = classify.Item{ID: fmt.Sprintf("item-%d", i)}
		req.Predictions[i] = classify.Prediction{Score: 0.5, Embedding: e}
	}
	for i, e := range labeled {
		req.Labeled[i] = classify.LabeledItem{
			Item:  classify.Item{ID: fmt.Sprintf("labeled-%d", i)},
			Label: true,
		}
		req.LabeledPredictions[i] = classify.Prediction{Score: 1, Embedding: e}
	}
	return req
}

func TestGreedyKCenter(t *testing.T) {
	pool := [][]float64{
		{0, 0}, {0.1, 0}, {10, 0}, {10.1, 0}, {5, 5},
	}

	t.Run("exact count distinct", func(t *testing.T) {
		sel := greedyKCenter(nil, pool, 3)
		if len(sel) != 3 {
			t.Fatalf("selected %d centers, want 3", len(sel))
		}
		seen := make(map[int]bool)
		for _, i := range sel {
			if seen[i] {
				t.Fatalf("index %d selected twice", i)
			}
			seen[i] = true
		}
	})

	t.Run("no labeled seeds from first index", func(t *testing.T) {
		sel := greedyKCenter(nil, pool, 1)
		if sel[0] != 0 {
			t.Errorf("first center = %d, want 0", sel[0])
		}
	})

	t.Run("farthest from labeled first", func(t *testing.T) {
		// Labeled point sits on the left cluster, so the right cluster is
		// picked before anything near the origin.
		sel := greedyKCenter([][]float64{{0, 0}}, pool, 2)
		if sel[0] != 3 && sel[0] != 2 {
			t.Errorf("first center = %d, want one of the right-cluster points", sel[0])
		}
	})

	t.Run("k beyond pool", func(t *testing.T) {
		sel := greedyKCenter(nil, pool, 50)
		if len(sel) != len(pool) {
			t.Fatalf("selected %d centers, want %d", len(sel), len(pool))
		}
	})
}

func TestCoreSetSelect(t *testing.T) {
	// Three well-separated clusters; the labeled point covers the first.
	pool := [][]float64{
		{0, 0}, {0.1, 0.1}, // near labeled
		{10, 0}, {10.1, 0.1},
		{0, 10}, {0.1, 10.1},
	}
	labeled := [][]float64{{0, 0.05}}

	s := NewCoreSet(CoreSetConfig{})
	req := embeddedRequest(pool, labeled, 2)

	got, err := s.Select(context.Background(), req)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Select() returned %d items, want 2", len(got))
	}

	// The two uncovered clusters must each contribute a center.
	clusters := map[string]string{
		"item-2": "right", "item-3": "right",
		"item-4": "top", "item-5": "top",
	}
	hit := make(map[string]bool)
	for _, it := range got {
		c, ok := clusters[it.ID]
		if !ok {
			t.Fatalf("selected %q from the already-covered cluster", it.ID)
		}
		hit[c] = true
	}
	if !hit["right"] || !hit["top"] {
		t.Errorf("selection %v does not cover both open clusters", itemIDs(got))
	}
}

func TestCoreSetDeterminism(t *testing.T) {
	pool := [][]float64{
		{0, 0}, {1, 2}, {3, 1}, {7, 7}, {8, 6}, {2, 9}, {9, 1}, {4, 4},
	}
	labeled := [][]float64{{0, 1}}
	s := NewCoreSet(CoreSetConfig{})
	req := embeddedRequest(pool, labeled, 3)

	first, err := s.Select(context.Background(), req)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	second, err := s.Select(context.Background(), req)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}

	if len(first) != 3 || len(second) != 3 {
		t.Fatalf("got %d and %d items, want 3 each", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("selection not reproducible at %d: %q vs %q", i, first[i].ID, second[i].ID)
		}
	}
}

func TestCoreSetScoreUnsupported(t *testing.T) {
	s := NewCoreSet(CoreSetConfig{})
	if _, err := s.Score(context.Background(), Request{}); !errors.Is(err, classify.ErrUnsupportedOperation) {
		t.Fatalf("Score() error = %v, want ErrUnsupportedOperation", err)
	}
}

func TestCoreSetMissingEmbedding(t *testing.T) {
	req := embeddedRequest([][]float64{{0, 0}, {1, 1}}, nil, 1)
	req.Predictions[1].Embedding = nil

	s := NewCoreSet(CoreSetConfig{})
	if _, err := s.Select(context.Background(), req); !errors.Is(err, classify.ErrInvalidArgument) {
		t.Fatalf("Select() error = %v, want ErrInvalidArgument", err)
	}
}

func TestDiscriminativeSelect(t *testing.T) {
	pool := [][]float64{
		{0, 0}, {0.2, 0.1}, {0.1, 0.3},
		{8, 8}, {8.2, 7.9}, {7.9, 8.1},
	}
	labeled := [][]float64{{0.1, 0.1}, {0.05, 0.2}}

	s := NewDiscriminative(DiscriminativeConfig{Rounds: 2, Epochs: 5})
	req := embeddedRequest(pool, labeled, 3)

	t.Run("fills batch without duplicates", func(t *testing.T) {
		got, err := s.Select(context.Background(), req)
		if err != nil {
			t.Fatalf("Select() error = %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("Select() returned %d items, want 3", len(got))
		}
		seen := make(map[string]bool)
		for _, it := range got {
			if seen[it.ID] {
				t.Fatalf("duplicate selection %q", it.ID)
			}
			seen[it.ID] = true
		}
	})

	t.Run("deterministic", func(t *testing.T) {
		first, err := s.Select(context.Background(), req)
		if err != nil {
			t.Fatalf("Select() error = %v", err)
		}
		second, err := s.Select(context.Background(), req)
		if err != nil {
			t.Fatalf("Select() error = %v", err)
		}
		for i := range first {
			if first[i].ID != second[i].ID {
				t.Errorf("selection not reproducible at %d: %q vs %q", i, first[i].ID, second[i].ID)
			}
		}
	})

	t.Run("score unsupported", func(t *testing.T) {
		if _, err := s.Score(context.Background(), req); !errors.Is(err, classify.ErrUnsupportedOperation) {
			t.Fatalf("Score() error = %v, want ErrUnsupportedOperation", err)
		}
	})
}

func TestEnsembleScore(t *testing.T) {
	pool := [][]float64{
		{0, 0}, {0.1, 0.1}, {5, 5}, {10, 10},
	}
	labeled := [][]float64{{0, 0.1}, {0.1, 0}}

	s := NewEnsemble(EnsembleConfig{Size: 3, Epochs: 5})
	req := embeddedRequest(pool, labeled, 2)

	scores, err := s.Score(context.Background(), req)
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if len(scores) != len(pool) {
		t.Fatalf("Score() returned %d values, want %d", len(scores), len(pool))
	}
	for i, sc := range scores {
		if sc < 0 || sc > 1 {
			t.Errorf("Score()[%d] = %v, want entropy in [0,1]", i, sc)
		}
	}

	again, err := s.Score(context.Background(), req)
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	for i := range scores {
		if scores[i] != again[i] {
			t.Errorf("score not reproducible at %d: %v vs %v", i, scores[i], again[i])
		}
	}
}

func TestEnsembleRequiresLabeled(t *testing.T) {
	req := embeddedRequest([][]float64{{0, 0}, {1, 1}}, nil, 1)

	s := NewEnsemble(EnsembleConfig{})
	if _, err := s.Score(context.Background(), req); !errors.Is(err, classify.ErrInvalidArgument) {
		t.Fatalf("Score() error = %v, want ErrInvalidArgument", err)
	}
}
