// Curator - Human-in-the-Loop Classification Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/curator

package orchestrate

import (
	"context"
	"fmt"

	"github.com/tomtom215/curator/internal/classify"
)

// Stats computes post-train metrics for a freshly READY model by running it
// over the corpus. Inference goes through the caching backend, so the same
// corpus pass also warms the cache the strategy engine reads moments later.
type Stats struct {
	backend classify.ModelBackend
	data    classify.DataAccess

	// corpusSample bounds how much of the corpus is scored.
	corpusSample int
}

// NewStats wires the statistics computer.
func NewStats(backend classify.ModelBackend, data classify.DataAccess, corpusSample int) *Stats {
	if corpusSample <= 0 {
		corpusSample = 5000
	}
	return &Stats{backend: backend, data: data, corpusSample: corpusSample}
}

// Compute returns the post-train statistics for modelID. When prevModelID is
// non-empty the flip fraction against that model's predictions is included.
func (s *Stats) Compute(ctx context.Context, workspaceID, datasetID, category, modelID, prevModelID string) (map[string]float64, error) {
	corpus, err := s.corpus(ctx, workspaceID, datasetID, category)
	if err != nil {
		return nil, err
	}
	if len(corpus) == 0 {
		return map[string]float64{"corpus_size": 0}, nil
	}

	preds, err := s.backend.Infer(ctx, modelID, corpus, classify.InferOptions{UseCache: true})
	if err != nil {
		return nil, fmt.Errorf("corpus inference: %w", err)
	}

	positives := 0
	for _, p := range preds {
		if p.Label {
			positives++
		}
	}

	stats := map[string]float64{
		"corpus_size":       float64(len(corpus)),
		"positive_fraction": float64(positives) / float64(len(corpus)),
	}

	if prevModelID != "" {
		prev, err := s.backend.Infer(ctx, prevModelID, corpus, classify.InferOptions{UseCache: true})
		if err != nil {
			return nil, fmt.Errorf("previous model inference: %w", err)
		}
		flips := 0
		for i := range preds {
			if preds[i].Label != prev[i].Label {
				flips++
			}
		}
		stats["flip_fraction"] = float64(flips) / float64(len(corpus))
	}

	return stats, nil
}

// corpus samples unlabeled and labeled elements into one scoring set.
func (s *Stats) corpus(ctx context.Context, workspaceID, datasetID, category string) ([]classify.Item, error) {
	unlabeled, err := s.data.SampleUnlabeled(ctx, workspaceID, datasetID, category, s.corpusSample)
	if err != nil {
		return nil, fmt.Errorf("sample unlabeled: %w", err)
	}
	labeled, err := s.data.SampleLabeled(ctx, workspaceID, datasetID, category, s.corpusSample)
	if err != nil {
		return nil, fmt.Errorf("sample labeled: %w", err)
	}

	corpus := make([]classify.Item, 0, len(unlabeled)+len(labeled))
	corpus = append(corpus, unlabeled...)
	for _, l := range labeled {
		corpus = append(corpus, l.Item)
	}
	return corpus, nil
}
