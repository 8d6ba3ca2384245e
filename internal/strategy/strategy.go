// Curator - Human-in-the-Loop Classification Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/curator

// Package strategy implements the active-learning selection engine: given a
// model's predictions over candidate items, a strategy picks the next batch
// to present for labeling.
//
// # Determinism
//
// Every strategy is deterministic for identical inputs. All randomness flows
// from a rand.Source with a fixed seed created per call, so repeating a
// selection over the same candidate pool reproduces the same batch.
//
// # Variants
//
//   - random: seeded noise, content-independent baseline
//   - hardmining: uncertainty sampling around the decision boundary
//   - retrospective: most confidently positive first
//   - hybrid: arithmetic mean of two strategies' scores
//   - coreset: facility-location covering over the embedding space
//   - discriminative: iterative labeled-vs-unlabeled discriminator (DAL)
//   - ensemble: entropy of averaged perceptron-committee probabilities
//
// coreset and discriminative select jointly and cannot produce per-element
// scores; their Score returns ErrUnsupportedOperation so composing callers
// can detect the incompatibility up front.
package strategy

import (
	"context"
	"fmt"
	"sort"

	"github.com/tomtom215/curator/internal/classify"
)

// randSeed fixes the pseudo-random source for reproducible selection.
const randSeed = 0

// Request carries everything a strategy may consume for one selection.
// Candidates and Predictions are index-aligned, as are Labeled and
// LabeledPredictions.
type Request struct {
	// Candidates is the unlabeled pool to choose from.
	Candidates []classify.Item

	// Predictions holds the current model's output per candidate.
	Predictions []classify.Prediction

	// Labeled is the already-labeled set, used by embedding strategies.
	Labeled []classify.LabeledItem

	// LabeledPredictions holds the model's output (embeddings in
	// particular) for the labeled set.
	LabeledPredictions []classify.Prediction

	// BatchSize is how many items to select.
	BatchSize int
}

// Strategy scores and selects unlabeled candidates.
type Strategy interface {
	// Name returns the strategy identifier.
	Name() string

	// Score returns one score per candidate. Strategies whose selection is
	// joint rather than additive return ErrUnsupportedOperation.
	Score(ctx context.Context, req Request) ([]float64, error)

	// Select returns the next batch, at most req.BatchSize items, ordered
	// by selection priority.
	Select(ctx context.Context, req Request) ([]classify.Item, error)
}

// Kind enumerates the closed set of strategies. Dispatch is a plain switch
// in New; there is deliberately no runtime registration.
type Kind string

const (
	KindRandom         Kind = "random"
	KindHardMining     Kind = "hardmining"
	KindRetrospective  Kind = "retrospective"
	KindHybrid         Kind = "hybrid"
	KindCoreSet        Kind = "coreset"
	KindDiscriminative Kind = "discriminative"
	KindEnsemble       Kind = "ensemble"
)

// Config selects and parameterizes a strategy.
type Config struct {
	// Kind picks the strategy.
	Kind Kind `koanf:"kind"`

	// HybridKinds names the two strategies a hybrid blends. Only consulted
	// when Kind is hybrid; nesting hybrids is not allowed.
	HybridKinds []Kind `koanf:"hybrid_kinds"`

	// CoreSet parameterizes the core-set optimizer.
	CoreSet CoreSetConfig `koanf:"coreset"`

	// Discriminative parameterizes the DAL loop.
	Discriminative DiscriminativeConfig `koanf:"discriminative"`

	// Ensemble parameterizes the perceptron committee.
	Ensemble EnsembleConfig `koanf:"ensemble"`
}

// New builds a strategy from config. Unknown kinds fail with
// ErrInvalidArgument.
func New(cfg Config) (Strategy, error) {
	switch cfg.Kind {
	case KindRandom:
		return &Random{}, nil
	case KindHardMining:
		return &HardMining{}, nil
	case KindRetrospective:
		return &Retrospective{}, nil
	case KindHybrid:
		return newHybrid(cfg)
	case KindCoreSet:
		return NewCoreSet(cfg.CoreSet), nil
	case KindDiscriminative:
		return NewDiscriminative(cfg.Discriminative), nil
	case KindEnsemble:
		return NewEnsemble(cfg.Ensemble), nil
	default:
		return nil, fmt.Errorf("strategy kind %q: %w", cfg.Kind, classify.ErrInvalidArgument)
	}
}

func newHybrid(cfg Config) (Strategy, error) {
	if len(cfg.HybridKinds) != 2 {
		return nil, fmt.Errorf("hybrid needs exactly two strategies, got %d: %w",
			len(cfg.HybridKinds), classify.ErrInvalidArgument)
	}
	children := make([]Strategy, 2)
	for i, k := range cfg.HybridKinds {
		if k == KindHybrid {
			return nil, fmt.Errorf("hybrid cannot nest another hybrid: %w", classify.ErrInvalidArgument)
		}
		child, err := New(Config{
			Kind:           k,
			CoreSet:        cfg.CoreSet,
			Discriminative: cfg.Discriminative,
			Ensemble:       cfg.Ensemble,
		})
		if err != nil {
			return nil, err
		}
		children[i] = child
	}
	return NewHybrid(children[0], children[1]), nil
}

// validateAligned rejects requests whose candidate and prediction slices
// disagree in length.
func validateAligned(req Request) error {
	if len(req.Candidates) != len(req.Predictions) {
		return fmt.Errorf("%d candidates vs %d predictions: %w",
			len(req.Candidates), len(req.Predictions), classify.ErrInvalidArgument)
	}
	if len(req.Labeled) != len(req.LabeledPredictions) {
		return fmt.Errorf("%d labeled items vs %d predictions: %w",
			len(req.Labeled), len(req.LabeledPredictions), classify.ErrInvalidArgument)
	}
	return nil
}

// topIndices returns up to k candidate indices ordered by score, ties broken
// by candidate order. With lowest=true the smallest scores win.
func topIndices(scores []float64, k int, lowest bool) []int {
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		if lowest {
			return scores[idx[a]] < scores[idx[b]]
		}
		return scores[idx[a]] > scores[idx[b]]
	})
	if k < len(idx) {
		idx = idx[:k]
	}
	return idx
}

// itemsAt projects candidate indices back onto items.
func itemsAt(candidates []classify.Item, idx []int) []classify.Item {
	out := make([]classify.Item, len(idx))
	for i, j := range idx {
		out[i] = candidates[j]
	}
	return out
}

// embeddingsOf extracts the embedding of every prediction, failing when the
// backend did not expose one.
func embeddingsOf(preds []classify.Prediction) ([][]float64, error) {
	out := make([][]float64, len(preds))
	for i, p := range preds {
		if len(p.Embedding) == 0 {
			return nil, fmt.Errorf("prediction %d carries no embedding: %w", i, classify.ErrInvalidArgument)
		}
		out[i] = p.Embedding
	}
	return out, nil
}

// Interface conformance for the closed strategy set.
var (
	_ Strategy = (*Random)(nil)
	_ Strategy = (*HardMining)(nil)
	_ Strategy = (*Retrospective)(nil)
	_ Strategy = (*Hybrid)(nil)
	_ Strategy = (*CoreSet)(nil)
	_ Strategy = (*Discriminative)(nil)
	_ Strategy = (*Ensemble)(nil)
)
