// Curator - Human-in-the-Loop Classification Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/curator

package strategy

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/tomtom215/curator/internal/classify"
)

// EnsembleConfig parameterizes the perceptron committee.
type EnsembleConfig struct {
	// Size is the number of committee members. Default: 5.
	Size int `koanf:"size"`

	// Epochs is the per-member perceptron epoch count. Default: 10.
	Epochs int `koanf:"epochs"`
}

func (c EnsembleConfig) withDefaults() EnsembleConfig {
	if c.Size <= 0 {
		c.Size = 5
	}
	if c.Epochs <= 0 {
		c.Epochs = 10
	}
	return c
}

// Ensemble scores candidates by committee disagreement. Each member is a
// perceptron trained on a bootstrap resample of labeled-vs-unlabeled
// embeddings; the per-candidate score is the Shannon entropy of the averaged
// class probability, maximal where the members disagree most.
type Ensemble struct {
	cfg EnsembleConfig
}

// NewEnsemble builds the strategy, applying defaults to zero fields.
func NewEnsemble(cfg EnsembleConfig) *Ensemble {
	return &Ensemble{cfg: cfg.withDefaults()}
}

// Name returns "ensemble".
func (*Ensemble) Name() string { return string(KindEnsemble) }

// Score returns the disagreement entropy per candidate.
func (e *Ensemble) Score(_ context.Context, req Request) ([]float64, error) {
	if err := validateAligned(req); err != nil {
		return nil, err
	}
	pool, err := embeddingsOf(req.Predictions)
	if err != nil {
		return nil, err
	}
	labeled, err := embeddingsOf(req.LabeledPredictions)
	if err != nil {
		return nil, err
	}
	if len(labeled) == 0 {
		return nil, fmt.Errorf("ensemble requires labeled examples: %w", classify.ErrInvalidArgument)
	}

	rng := rand.New(rand.NewSource(randSeed)) //nolint:gosec // reproducibility, not security

	sum := make([]float64, len(pool))
	for m := 0; m < e.cfg.Size; m++ {
		pos := bootstrap(rng, labeled)
		neg := bootstrap(rng, pool)
		member := trainPerceptron(rng, pos, neg, e.cfg.Epochs)
		for i, x := range pool {
			sum[i] += member.prob(x)
		}
	}

	scores := make([]float64, len(pool))
	for i := range scores {
		scores[i] = binaryEntropy(sum[i] / float64(e.cfg.Size))
	}
	return scores, nil
}

// Select returns the k candidates with the highest disagreement.
func (e *Ensemble) Select(ctx context.Context, req Request) ([]classify.Item, error) {
	scores, err := e.Score(ctx, req)
	if err != nil {
		return nil, err
	}
	return itemsAt(req.Candidates, topIndices(scores, req.BatchSize, false)), nil
}

// bootstrap resamples a set with replacement to the same size.
func bootstrap(rng *rand.Rand, set [][]float64) [][]float64 {
	out := make([][]float64, len(set))
	for i := range out {
		out[i] = set[rng.Intn(len(set))]
	}
	return out
}
