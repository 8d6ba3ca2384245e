// Curator - Human-in-the-Loop Classification Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/curator

package strategy

import (
	"context"
	"fmt"
	"math/rand"
	"sort"

	"github.com/tomtom215/curator/internal/classify"
)

// DiscriminativeConfig parameterizes the DAL resampling loop.
type DiscriminativeConfig struct {
	// Rounds splits the batch into this many discriminator retrainings.
	// Default: 5.
	Rounds int `koanf:"rounds"`

	// SubsampleSize bounds the unlabeled pool scored per round.
	// Default: 1024.
	SubsampleSize int `koanf:"subsample_size"`

	// Epochs is the perceptron training epoch count. Default: 10.
	Epochs int `koanf:"epochs"`
}

func (c DiscriminativeConfig) withDefaults() DiscriminativeConfig {
	if c.Rounds <= 0 {
		c.Rounds = 5
	}
	if c.SubsampleSize <= 0 {
		c.SubsampleSize = 1024
	}
	if c.Epochs <= 0 {
		c.Epochs = 10
	}
	return c
}

// Discriminative implements discriminative active learning: it repeatedly
// trains a labeled-vs-unlabeled discriminator on embeddings and moves the
// most "unlabeled-like" candidates to the labeled side, on the theory that
// such items cover regions the labeled set has not reached.
//
// Selection is an iterative procedure, not an additive score, so Score is
// unsupported.
type Discriminative struct {
	cfg DiscriminativeConfig
}

// NewDiscriminative builds the strategy, applying defaults to zero fields.
func NewDiscriminative(cfg DiscriminativeConfig) *Discriminative {
	return &Discriminative{cfg: cfg.withDefaults()}
}

// Name returns "discriminative".
func (*Discriminative) Name() string { return string(KindDiscriminative) }

// Score is not available: the selection is defined only by the resampling
// loop as a whole.
func (*Discriminative) Score(context.Context, Request) ([]float64, error) {
	return nil, fmt.Errorf("discriminative strategy has no per-element score: %w", classify.ErrUnsupportedOperation)
}

// Select runs the DAL loop until the batch is filled.
func (d *Discriminative) Select(ctx context.Context, req Request) ([]classify.Item, error) {
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

	batch := req.BatchSize
	if batch > len(pool) {
		batch = len(pool)
	}
	if batch <= 0 {
		return []classify.Item{}, nil
	}

	rng := rand.New(rand.NewSource(randSeed)) //nolint:gosec // reproducibility, not security
	perRound := (batch + d.cfg.Rounds - 1) / d.cfg.Rounds

	selected := make([]int, 0, batch)
	taken := make(map[int]bool, batch)

	for len(selected) < batch {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		remaining := make([]int, 0, len(pool)-len(selected))
		for i := range pool {
			if !taken[i] {
				remaining = append(remaining, i)
			}
		}

		sample := subsample(rng, remaining, d.cfg.SubsampleSize)

		// The labeled side includes everything selected so far, so each
		// round pushes the next picks away from the already-covered region.
		posSide := make([][]float64, 0, len(labeled)+len(selected))
		posSide = append(posSide, labeled...)
		for _, i := range selected {
			posSide = append(posSide, pool[i])
		}
		negSide := make([][]float64, len(sample))
		for j, i := range sample {
			negSide[j] = pool[i]
		}

		disc := trainPerceptron(rng, posSide, negSide, d.cfg.Epochs)

		// Most unlabeled-like first: lowest probability of the labeled class.
		sort.SliceStable(sample, func(a, b int) bool {
			return disc.prob(pool[sample[a]]) < disc.prob(pool[sample[b]])
		})

		take := perRound
		if take > batch-len(selected) {
			take = batch - len(selected)
		}
		if take > len(sample) {
			take = len(sample)
		}
		if take == 0 {
			break
		}
		for _, i := range sample[:take] {
			selected = append(selected, i)
			taken[i] = true
		}
	}

	return itemsAt(req.Candidates, selected), nil
}

// subsample picks up to n elements from idx without replacement, preserving
// determinism through the caller's rng.
func subsample(rng *rand.Rand, idx []int, n int) []int {
	if len(idx) <= n {
		out := make([]int, len(idx))
		copy(out, idx)
		return out
	}
	shuffled := make([]int, len(idx))
	copy(shuffled, idx)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	out := shuffled[:n]
	sort.Ints(out)
	return out
}
