// Curator - Human-in-the-Loop Classification Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/curator

package strategy

import (
	"context"
	"math"
	"math/rand"

	"github.com/tomtom215/curator/internal/classify"
)

// Random assigns seeded pseudo-random scores independent of content. It is
// the baseline strategy and the cold-start default before a model exists.
// By convention it selects the k lowest-scored items.
type Random struct{}

// Name returns "random".
func (*Random) Name() string { return string(KindRandom) }

// Score returns one pseudo-random value per candidate. The source is
// reseeded per call, so identical candidate lists always score identically.
func (*Random) Score(_ context.Context, req Request) ([]float64, error) {
	if err := validateAligned(req); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(randSeed)) //nolint:gosec // reproducibility, not security
	scores := make([]float64, len(req.Candidates))
	for i := range scores {
		scores[i] = rng.Float64()
	}
	return scores, nil
}

// Select returns the k lowest-scored candidates.
func (s *Random) Select(ctx context.Context, req Request) ([]classify.Item, error) {
	scores, err := s.Score(ctx, req)
	if err != nil {
		return nil, err
	}
	return itemsAt(req.Candidates, topIndices(scores, req.BatchSize, true)), nil
}

// HardMining is uncertainty sampling: items whose positive-class probability
// sits closest to the 0.5 decision boundary score highest.
type HardMining struct{}

// Name returns "hardmining".
func (*HardMining) Name() string { return string(KindHardMining) }

// Score returns 2*(0.5-|p-0.5|), maximal at p=0.5 and zero at p in {0,1}.
func (*HardMining) Score(_ context.Context, req Request) ([]float64, error) {
	if err := validateAligned(req); err != nil {
		return nil, err
	}

	scores := make([]float64, len(req.Predictions))
	for i, p := range req.Predictions {
		scores[i] = 2 * (0.5 - math.Abs(p.Score-0.5))
	}
	return scores, nil
}

// Select returns the k most uncertain candidates, most uncertain first.
func (s *HardMining) Select(ctx context.Context, req Request) ([]classify.Item, error) {
	scores, err := s.Score(ctx, req)
	if err != nil {
		return nil, err
	}
	return itemsAt(req.Candidates, topIndices(scores, req.BatchSize, false)), nil
}

// Retrospective surfaces the most confidently positive candidates for rapid
// confirmation, trading uncertainty reduction for recall of positives.
type Retrospective struct{}

// Name returns "retrospective".
func (*Retrospective) Name() string { return string(KindRetrospective) }

// Score returns the raw positive-class probability.
func (*Retrospective) Score(_ context.Context, req Request) ([]float64, error) {
	if err := validateAligned(req); err != nil {
		return nil, err
	}

	scores := make([]float64, len(req.Predictions))
	for i, p := range req.Predictions {
		scores[i] = p.Score
	}
	return scores, nil
}

// Select returns the k highest-probability candidates, most positive first.
func (s *Retrospective) Select(ctx context.Context, req Request) ([]classify.Item, error) {
	scores, err := s.Score(ctx, req)
	if err != nil {
		return nil, err
	}
	return itemsAt(req.Candidates, topIndices(scores, req.BatchSize, false)), nil
}

// Hybrid blends two strategies by averaging their per-item scores. Wrapping
// a strategy without per-element scores (coreset, discriminative) surfaces
// that strategy's ErrUnsupportedOperation unchanged.
type Hybrid struct {
	first  Strategy
	second Strategy
}

// NewHybrid wraps two strategies.
func NewHybrid(first, second Strategy) *Hybrid {
	return &Hybrid{first: first, second: second}
}

// Name identifies the blended pair, e.g. "hybrid(hardmining,retrospective)".
func (h *Hybrid) Name() string {
	return "hybrid(" + h.first.Name() + "," + h.second.Name() + ")"
}

// Score returns the arithmetic mean of the two children's scores.
func (h *Hybrid) Score(ctx context.Context, req Request) ([]float64, error) {
	s1, err := h.first.Score(ctx, req)
	if err != nil {
		return nil, err
	}
	s2, err := h.second.Score(ctx, req)
	if err != nil {
		return nil, err
	}

	scores := make([]float64, len(s1))
	for i := range scores {
		scores[i] = (s1[i] + s2[i]) / 2
	}
	return scores, nil
}

// Select returns the k candidates with the highest combined score.
func (h *Hybrid) Select(ctx context.Context, req Request) ([]classify.Item, error) {
	scores, err := h.Score(ctx, req)
	if err != nil {
		return nil, err
	}
	return itemsAt(req.Candidates, topIndices(scores, req.BatchSize, false)), nil
}
