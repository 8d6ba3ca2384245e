// Curator - Human-in-the-Loop Classification Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/curator

package classify

import (
	"errors"
	"testing"
)

func TestCanAdvance(t *testing.T) {
	tests := []struct {
		name string
		from IterationStatus
		to   IterationStatus
		want bool
	}{
		{"training to inference", IterationTraining, IterationRunningInference, true},
		{"training to active learning skips a stage", IterationTraining, IterationRunningActiveLearning, true},
		{"training straight to ready", IterationTraining, IterationReady, true},
		{"training to error", IterationTraining, IterationError, true},
		{"inference to active learning", IterationRunningInference, IterationRunningActiveLearning, true},
		{"active learning to statistics", IterationRunningActiveLearning, IterationCalculatingStatistics, true},
		{"statistics to ready", IterationCalculatingStatistics, IterationReady, true},
		{"no backward from ready", IterationReady, IterationTraining, false},
		{"no backward from statistics", IterationCalculatingStatistics, IterationRunningInference, false},
		{"no backward from inference", IterationRunningInference, IterationTraining, false},
		{"ready cannot error", IterationReady, IterationError, false},
		{"ready to model deleted", IterationReady, IterationModelDeleted, true},
		{"error to model deleted", IterationError, IterationModelDeleted, true},
		{"error cannot resume", IterationError, IterationRunningInference, false},
		{"model deleted is terminal", IterationModelDeleted, IterationReady, false},
		{"model deleted cannot error", IterationModelDeleted, IterationError, false},
		{"self transition rejected", IterationTraining, IterationTraining, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanAdvance(tt.from, tt.to); got != tt.want {
				t.Errorf("CanAdvance(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestCanAdvance_TerminalStatesOnlyAllowDeletion(t *testing.T) {
	all := []IterationStatus{
		IterationTraining,
		IterationRunningInference,
		IterationRunningActiveLearning,
		IterationCalculatingStatistics,
		IterationReady,
		IterationError,
		IterationModelDeleted,
	}

	for _, from := range []IterationStatus{IterationReady, IterationError} {
		for _, to := range all {
			got := CanAdvance(from, to)
			want := to == IterationModelDeleted
			if got != want {
				t.Errorf("CanAdvance(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestAdvanceStatus_InvalidTransitionError(t *testing.T) {
	err := AdvanceStatus(IterationReady, IterationTraining)
	if !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("AdvanceStatus error = %v, want ErrInvalidArgument", err)
	}

	if err := AdvanceStatus(IterationTraining, IterationRunningInference); err != nil {
		t.Errorf("AdvanceStatus valid transition returned %v", err)
	}
}

func TestItem_CacheKey(t *testing.T) {
	a := Item{ID: "i1", Text: "hello", Metadata: map[string]string{"b": "2", "a": "1"}}
	b := Item{ID: "i1", Text: "hello", Metadata: map[string]string{"a": "1", "b": "2"}}
	c := Item{ID: "i2", Text: "hello"}

	if a.CacheKey() != b.CacheKey() {
		t.Error("identical items with reordered metadata produced different keys")
	}
	if a.CacheKey() == c.CacheKey() {
		t.Error("different items produced the same key")
	}
}

func TestValidWorkspaceID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"workspace-1", true},
		{"WS_2", true},
		{"", false},
		{"has space", false},
		{"dot.dot", false},
		{"../escape", false},
	}

	for _, tt := range tests {
		if got := ValidWorkspaceID(tt.id); got != tt.want {
			t.Errorf("ValidWorkspaceID(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}
