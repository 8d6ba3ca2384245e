// Curator - Human-in-the-Loop Classification Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/curator

// Package corpus provides the in-memory DataAccess implementation backing
// curatord's standalone demo mode. A production deployment replaces it with
// a client for the real corpus store.
package corpus

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/tomtom215/curator/internal/classify"
)

// Sampling is deterministic: items are generated once from a fixed seed and
// served in stable corpus order, so labeling the same elements always
// reproduces the same unlabeled pool.
const generatorSeed = 1

var words = []string{
	"server", "outage", "invoice", "refund", "shipment", "delayed",
	"password", "reset", "upgrade", "billing", "crash", "timeout",
	"login", "export", "report", "quota", "renewal", "cancel",
}

// Memory is a synthetic corpus with per-workspace/category label sets.
type Memory struct {
	items []classify.Item

	mu     sync.RWMutex
	labels map[string]map[string]bool
}

var _ classify.DataAccess = (*Memory)(nil)

// NewMemory generates size synthetic items.
func NewMemory(size int) *Memory {
	rng := rand.New(rand.NewSource(generatorSeed)) //nolint:gosec // synthetic data

	items := make([]classify.Item, size)
	for i := range items {
		a := words[rng.Intn(len(words))]
		b := words[rng.Intn(len(words))]
		c := words[rng.Intn(len(words))]
		items[i] = classify.Item{
			ID:   fmt.Sprintf("item-%05d", i),
			Text: fmt.Sprintf("customer message about %s %s %s", a, b, c),
			Metadata: map[string]string{
				"source": "demo",
			},
		}
	}

	return &Memory{
		items:  items,
		labels: make(map[string]map[string]bool),
	}
}

func labelKey(workspaceID, category string) string {
	return workspaceID + "\x00" + category
}

// SetLabel records a binary label for an item.
func (m *Memory) SetLabel(workspaceID, category, itemID string, label bool) error {
	found := false
	for _, it := range m.items {
		if it.ID == itemID {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("item %q: %w", itemID, classify.ErrNotFound)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := labelKey(workspaceID, category)
	if m.labels[key] == nil {
		m.labels[key] = make(map[string]bool)
	}
	m.labels[key][itemID] = label
	return nil
}

// SampleUnlabeled returns up to maxCount unlabeled items in corpus order.
func (m *Memory) SampleUnlabeled(_ context.Context, workspaceID, _, category string, maxCount int) ([]classify.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	labeled := m.labels[labelKey(workspaceID, category)]
	out := make([]classify.Item, 0, maxCount)
	for _, it := range m.items {
		if _, ok := labeled[it.ID]; ok {
			continue
		}
		out = append(out, it)
		if len(out) == maxCount {
			break
		}
	}
	return out, nil
}

// SampleLabeled returns up to maxCount labeled items in corpus order.
func (m *Memory) SampleLabeled(_ context.Context, workspaceID, _, category string, maxCount int) ([]classify.LabeledItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	labeled := m.labels[labelKey(workspaceID, category)]
	out := make([]classify.LabeledItem, 0, maxCount)
	for _, it := range m.items {
		label, ok := labeled[it.ID]
		if !ok {
			continue
		}
		out = append(out, classify.LabeledItem{Item: it, Label: label})
		if len(out) == maxCount {
			break
		}
	}
	return out, nil
}

// LabelCounts reports the label totals for a category.
func (m *Memory) LabelCounts(_ context.Context, workspaceID, _, category string) (classify.LabelCounts, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var counts classify.LabelCounts
	for _, label := range m.labels[labelKey(workspaceID, category)] {
		if label {
			counts.Positive++
		} else {
			counts.Negative++
		}
	}
	return counts, nil
}

// Items exposes the corpus size for seeding and tests.
func (m *Memory) Items() []classify.Item {
	return m.items
}
