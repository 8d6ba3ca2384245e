// Curator - Human-in-the-Loop Classification Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/curator

package classify

import (
	"regexp"
	"sort"
	"strings"
	"time"
)

// ModelStatus is the lifecycle state of a trained model artifact as reported
// by the model backend.
type ModelStatus string

const (
	// ModelTraining indicates training is still in progress.
	ModelTraining ModelStatus = "TRAINING"
	// ModelReady indicates the model is trained and can serve inference.
	ModelReady ModelStatus = "READY"
	// ModelError indicates training failed; the model will never be usable.
	ModelError ModelStatus = "ERROR"
	// ModelDeleted indicates the artifact was purged by retention.
	ModelDeleted ModelStatus = "DELETED"
)

// Terminal reports whether no further backend status changes are expected.
func (s ModelStatus) Terminal() bool {
	return s == ModelReady || s == ModelError || s == ModelDeleted
}

// IterationStatus is the orchestration state of one classification iteration.
type IterationStatus string

const (
	// IterationTraining means the wrapped model is still being trained.
	IterationTraining IterationStatus = "TRAINING"
	// IterationRunningInference means the new model is being evaluated over
	// the corpus for post-train statistics.
	IterationRunningInference IterationStatus = "RUNNING_INFERENCE"
	// IterationRunningActiveLearning means a recommendation batch is being
	// computed.
	IterationRunningActiveLearning IterationStatus = "RUNNING_ACTIVE_LEARNING"
	// IterationCalculatingStatistics means computed metrics are being
	// persisted.
	IterationCalculatingStatistics IterationStatus = "CALCULATING_STATISTICS"
	// IterationReady means recommendations are available for labeling.
	IterationReady IterationStatus = "READY"
	// IterationError means training or active learning failed.
	IterationError IterationStatus = "ERROR"
	// IterationModelDeleted means retention purged the wrapped model.
	IterationModelDeleted IterationStatus = "MODEL_DELETED"
)

// Terminal reports whether the orchestrator will take no further action on
// an iteration in this state (MODEL_DELETED excepted, which is bookkeeping
// rather than work).
func (s IterationStatus) Terminal() bool {
	return s == IterationReady || s == IterationError || s == IterationModelDeleted
}

// ModelInfo identifies a model artifact owned by an iteration.
type ModelInfo struct {
	// ID is the opaque identifier assigned by the model backend.
	ID string `json:"id"`

	// Status mirrors the backend's last observed lifecycle state.
	Status ModelStatus `json:"status"`

	// Type tags which model implementation was trained.
	Type string `json:"type"`

	// CreatedAt is when training was started.
	CreatedAt time.Time `json:"created_at"`

	// Metadata carries free-form backend details (training set size, etc.).
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Iteration wraps one trained model and the work derived from it.
type Iteration struct {
	// Model is the artifact this iteration trained.
	Model ModelInfo `json:"model"`

	// Status is the orchestration state; see IterationStatus.
	Status IterationStatus `json:"status"`

	// Statistics accumulates post-train metrics keyed by metric name.
	Statistics map[string]float64 `json:"statistics,omitempty"`

	// Recommendations lists item identifiers selected by active learning,
	// in presentation order. Immutable once the iteration is READY.
	Recommendations []string `json:"recommendations,omitempty"`
}

// Category is a single binary classification target within a workspace.
type Category struct {
	// Name uniquely identifies the category within its workspace.
	Name string `json:"name"`

	// Description is free-form user text.
	Description string `json:"description,omitempty"`

	// LabelChangeCount counts label mutations since the last iteration was
	// started. Reset to zero each time training begins.
	LabelChangeCount int `json:"label_change_count"`

	// Iterations is append-only; the slice index is the iteration index.
	Iterations []Iteration `json:"iterations"`
}

// Workspace is the root of the persisted state tree.
type Workspace struct {
	// ID uniquely identifies the workspace; must match WorkspaceIDPattern.
	ID string `json:"id"`

	// DatasetID names the corpus this workspace labels.
	DatasetID string `json:"dataset_id"`

	// Categories maps category name to its record.
	Categories map[string]*Category `json:"categories"`
}

// WorkspaceIDPattern constrains workspace identifiers, which double as file
// names in the state store.
var WorkspaceIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidWorkspaceID reports whether id is acceptable as a workspace id.
func ValidWorkspaceID(id string) bool {
	return WorkspaceIDPattern.MatchString(id)
}

// Item is one unlabeled or labeled corpus element.
type Item struct {
	// ID is the stable corpus identifier.
	ID string `json:"id"`

	// Text is the element content presented for labeling.
	Text string `json:"text"`

	// Metadata carries additional corpus fields (source, offsets, ...).
	Metadata map[string]string `json:"metadata,omitempty"`
}

// CacheKey returns a canonical key for this item: the id and text followed
// by the metadata fields in sorted order. Two items with identical fields
// always produce the same key, regardless of map iteration order.
func (it Item) CacheKey() string {
	var b strings.Builder
	b.WriteString(it.ID)
	b.WriteByte(0x1f)
	b.WriteString(it.Text)

	if len(it.Metadata) > 0 {
		keys := make([]string, 0, len(it.Metadata))
		for k := range it.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteByte(0x1f)
			b.WriteString(k)
			b.WriteByte(0x1e)
			b.WriteString(it.Metadata[k])
		}
	}

	return b.String()
}

// LabeledItem pairs an item with its user-assigned binary label.
type LabeledItem struct {
	Item  Item `json:"item"`
	Label bool `json:"label"`
}

// Prediction is one model output for one item.
type Prediction struct {
	// Label is the predicted class (true = positive).
	Label bool `json:"label"`

	// Score is the positive-class probability in [0, 1].
	Score float64 `json:"score"`

	// Embedding is the model's vector representation of the item. Present
	// only when the backend exposes embeddings.
	Embedding []float64 `json:"embedding,omitempty"`
}

// LabelCounts summarizes how many elements carry each label.
type LabelCounts struct {
	Positive int `json:"positive"`
	Negative int `json:"negative"`
}
