// Curator - Human-in-the-Loop Classification Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/curator

package classify

import "context"

// TrainParams configures one training run on the model backend.
type TrainParams struct {
	// ModelType selects which model implementation to train.
	ModelType string `json:"model_type"`

	// Params carries backend-specific knobs, passed through opaquely.
	Params map[string]string `json:"params,omitempty"`
}

// InferOptions controls a single inference call.
type InferOptions struct {
	// UseCache allows the inference cache to serve and record results.
	// When false the call bypasses the cache entirely in both directions.
	UseCache bool
}

// ModelBackend is the opaque model capability the orchestrator consumes.
// Implementations must be safe for concurrent use; Train is asynchronous
// (the returned model starts in status TRAINING) while Infer blocks until
// results are available.
type ModelBackend interface {
	// Train starts training a model on the given set and returns its id.
	Train(ctx context.Context, trainingSet []LabeledItem, params TrainParams) (string, error)

	// Infer returns one prediction per item, in item order.
	Infer(ctx context.Context, modelID string, items []Item, opts InferOptions) ([]Prediction, error)

	// GetStatus reports the model's current lifecycle state.
	GetStatus(ctx context.Context, modelID string) (ModelStatus, error)

	// Delete purges the model artifact. Deleting an unknown model is not an
	// error.
	Delete(ctx context.Context, modelID string) error
}

// DataAccess is the corpus capability the orchestrator consumes. The corpus
// store owns label persistence; the orchestrator only samples from it.
//
// Sampling must be deterministic for a fixed corpus and label state:
// labeling the same elements always reproduces the same unlabeled pool,
// which the strategy engine relies on for reproducible selection.
type DataAccess interface {
	// SampleUnlabeled returns up to maxCount elements with no label for the
	// category, in stable corpus order.
	SampleUnlabeled(ctx context.Context, workspaceID, datasetID, category string, maxCount int) ([]Item, error)

	// SampleLabeled returns up to maxCount labeled elements for the
	// category, in stable corpus order.
	SampleLabeled(ctx context.Context, workspaceID, datasetID, category string, maxCount int) ([]LabeledItem, error)

	// LabelCounts reports how many elements carry each label for the
	// category.
	LabelCounts(ctx context.Context, workspaceID, datasetID, category string) (LabelCounts, error)
}
