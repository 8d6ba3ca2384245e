// Curator - Human-in-the-Loop Classification Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/curator

// Package store persists the workspace -> category -> iteration tree.
//
// Each workspace is one JSON document on disk, named by workspace id and
// replaced atomically (write-to-temp then rename) so a crash can never leave
// a half-written record. An in-memory mirror serves reads; it is maintained
// under a per-workspace lock and dropped whenever a persist fails, so the
// mirror never diverges from disk.
//
// Every mutator is read-modify-write over the whole record. Concurrent
// callers against the same workspace serialize on that workspace's lock;
// different workspaces do not contend.
package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/curator/internal/classify"
	"github.com/tomtom215/curator/internal/metrics"
)

const recordSuffix = ".json"

// Store is the durable iteration state store.
type Store struct {
	dir    string
	logger zerolog.Logger

	// mu guards locks and mirror map membership; the per-workspace lock
	// guards that workspace's record and mirror entry.
	mu     sync.Mutex
	locks  map[string]*sync.Mutex
	mirror map[string]*classify.Workspace
}

// Open creates the backing directory if needed and returns a store.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func Open(dir string, logger zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return &Store{
		dir:    dir,
		logger: logger.With().Str("component", "store").Logger(),
		locks:  make(map[string]*sync.Mutex),
		mirror: make(map[string]*classify.Workspace),
	}, nil
}

// lockFor returns the mutex serializing access to one workspace.
func (s *Store) lockFor(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+recordSuffix)
}

// load returns the workspace record, reading from disk when the mirror has
// no entry. Must be called with the workspace lock held.
func (s *Store) load(id string) (*classify.Workspace, error) {
	s.mu.Lock()
	if w, ok := s.mirror[id]; ok {
		s.mu.Unlock()
		return w, nil
	}
	s.mu.Unlock()

	data, err := os.ReadFile(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("workspace %q: %w", id, classify.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read workspace %q: %w: %v", id, classify.ErrCorruptState, err)
	}

	var w classify.Workspace
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode workspace %q: %w: %v", id, classify.ErrCorruptState, err)
	}
	if w.Categories == nil {
		w.Categories = make(map[string]*classify.Category)
	}

	s.mu.Lock()
	s.mirror[id] = &w
	s.mu.Unlock()
	return &w, nil
}

// persist atomically replaces the on-disk record. Must be called with the
// workspace lock held. On failure the mirror entry is dropped so the next
// read rehydrates from disk.
func (s *Store) persist(w *classify.Workspace) error {
	data, err := json.MarshalIndent(w, "", "  ")
	if err != nil {
		return fmt.Errorf("encode workspace %q: %w", w.ID, err)
	}

	tmp, err := os.CreateTemp(s.dir, w.ID+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp record: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp record: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp record: %w", err)
	}
	if err := os.Rename(tmpName, s.path(w.ID)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace record: %w", err)
	}
	return nil
}

// mutate runs a read-modify-write cycle on one workspace. If persisting
// fails the mirror entry is invalidated, keeping memory and disk coherent.
func (s *Store) mutate(id string, fn func(w *classify.Workspace) error) error {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	w, err := s.load(id)
	if err != nil {
		return err
	}
	if err := fn(w); err != nil {
		return err
	}
	if err := s.persist(w); err != nil {
		s.mu.Lock()
		delete(s.mirror, id)
		s.mu.Unlock()
		return err
	}
	return nil
}

// CreateWorkspace creates a new empty workspace record.
func (s *Store) CreateWorkspace(_ context.Context, id, datasetID string) error {
	if !classify.ValidWorkspaceID(id) {
		return fmt.Errorf("workspace id %q: %w", id, classify.ErrInvalidArgument)
	}

	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	if _, err := os.Stat(s.path(id)); err == nil {
		return fmt.Errorf("workspace %q: %w", id, classify.ErrAlreadyExists)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat workspace %q: %w", id, err)
	}

	w := &classify.Workspace{
		ID:         id,
		DatasetID:  datasetID,
		Categories: make(map[string]*classify.Category),
	}
	if err := s.persist(w); err != nil {
		return err
	}

	s.mu.Lock()
	s.mirror[id] = w
	s.mu.Unlock()

	s.logger.Info().Str("workspace", id).Str("dataset", datasetID).Msg("workspace created")
	return nil
}

// DeleteWorkspace removes the record and its mirror entry. Deleting the
// owned model artifacts is the orchestrator's responsibility.
func (s *Store) DeleteWorkspace(_ context.Context, id string) error {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	err := os.Remove(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("workspace %q: %w", id, classify.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("remove workspace %q: %w", id, err)
	}

	s.mu.Lock()
	delete(s.mirror, id)
	s.mu.Unlock()

	s.logger.Info().Str("workspace", id).Msg("workspace deleted")
	return nil
}

// AddCategory adds a named category to a workspace.
func (s *Store) AddCategory(_ context.Context, workspaceID, name, description string) error {
	if name == "" {
		return fmt.Errorf("empty category name: %w", classify.ErrInvalidArgument)
	}

	return s.mutate(workspaceID, func(w *classify.Workspace) error {
		if _, ok := w.Categories[name]; ok {
			return fmt.Errorf("category %q: %w", name, classify.ErrAlreadyExists)
		}
		w.Categories[name] = &classify.Category{Name: name, Description: description}
		return nil
	})
}

// DeleteCategory removes a category and its iteration history.
func (s *Store) DeleteCategory(_ context.Context, workspaceID, name string) error {
	return s.mutate(workspaceID, func(w *classify.Workspace) error {
		if _, ok := w.Categories[name]; !ok {
			return fmt.Errorf("category %q: %w", name, classify.ErrNotFound)
		}
		delete(w.Categories, name)
		return nil
	})
}

// AddIteration appends an iteration in status TRAINING and returns its
// index: the length of the list before the append, immutable afterwards.
func (s *Store) AddIteration(_ context.Context, workspaceID, category string, model classify.ModelInfo) (int, error) {
	index := -1
	err := s.mutate(workspaceID, func(w *classify.Workspace) error {
		c, ok := w.Categories[category]
		if !ok {
			return fmt.Errorf("category %q: %w", category, classify.ErrNotFound)
		}
		index = len(c.Iterations)
		c.Iterations = append(c.Iterations, classify.Iteration{
			Model:  model,
			Status: classify.IterationTraining,
		})
		return nil
	})
	if err != nil {
		return -1, err
	}

	s.logger.Info().
		Str("workspace", workspaceID).
		Str("category", category).
		Int("iteration", index).
		Str("model", model.ID).
		Msg("iteration appended")
	return index, nil
}

func iterationAt(w *classify.Workspace, category string, index int) (*classify.Iteration, error) {
	c, ok := w.Categories[category]
	if !ok {
		return nil, fmt.Errorf("category %q: %w", category, classify.ErrNotFound)
	}
	if index < 0 || index >= len(c.Iterations) {
		return nil, fmt.Errorf("iteration %d of %q: %w", index, category, classify.ErrNotFound)
	}
	return &c.Iterations[index], nil
}

// UpdateIterationStatus advances an iteration's status. Transitions are
// validated against the iteration state machine; backward moves and
// departures from terminal states are rejected with ErrInvalidArgument.
func (s *Store) UpdateIterationStatus(_ context.Context, workspaceID, category string, index int, status classify.IterationStatus) error {
	err := s.mutate(workspaceID, func(w *classify.Workspace) error {
		iter, err := iterationAt(w, category, index)
		if err != nil {
			return err
		}
		if err := classify.AdvanceStatus(iter.Status, status); err != nil {
			return err
		}
		iter.Status = status
		return nil
	})
	if err != nil {
		return err
	}

	metrics.IterationsAdvanced.WithLabelValues(string(status)).Inc()
	s.logger.Debug().
		Str("workspace", workspaceID).
		Str("category", category).
		Int("iteration", index).
		Str("status", string(status)).
		Msg("iteration status updated")
	return nil
}

// UpdateModelStatus records the backend-reported model status. A deleted
// model's status never changes again.
func (s *Store) UpdateModelStatus(_ context.Context, workspaceID, category string, index int, status classify.ModelStatus) error {
	return s.mutate(workspaceID, func(w *classify.Workspace) error {
		iter, err := iterationAt(w, category, index)
		if err != nil {
			return err
		}
		if iter.Model.Status == classify.ModelDeleted && status != classify.ModelDeleted {
			return fmt.Errorf("model %s is deleted: %w", iter.Model.ID, classify.ErrInvalidArgument)
		}
		iter.Model.Status = status
		return nil
	})
}

// AddIterationStatistics merges metrics into the iteration's statistics map.
func (s *Store) AddIterationStatistics(_ context.Context, workspaceID, category string, index int, stats map[string]float64) error {
	return s.mutate(workspaceID, func(w *classify.Workspace) error {
		iter, err := iterationAt(w, category, index)
		if err != nil {
			return err
		}
		if iter.Statistics == nil {
			iter.Statistics = make(map[string]float64, len(stats))
		}
		for k, v := range stats {
			iter.Statistics[k] = v
		}
		return nil
	})
}

// SetRecommendations records the active-learning batch for an iteration.
// Once an iteration is READY its recommendations are immutable; a fresh
// computation must create a new iteration instead.
func (s *Store) SetRecommendations(_ context.Context, workspaceID, category string, index int, items []string) error {
	return s.mutate(workspaceID, func(w *classify.Workspace) error {
		iter, err := iterationAt(w, category, index)
		if err != nil {
			return err
		}
		if iter.Status == classify.IterationReady {
			return fmt.Errorf("recommendations of a READY iteration are immutable: %w", classify.ErrInvalidArgument)
		}
		iter.Recommendations = append([]string(nil), items...)
		return nil
	})
}

// IncrementLabelChange adds delta to the category's label-change counter and
// returns the new value. Called by the front end on every label mutation.
func (s *Store) IncrementLabelChange(_ context.Context, workspaceID, category string, delta int) (int, error) {
	count := 0
	err := s.mutate(workspaceID, func(w *classify.Workspace) error {
		c, ok := w.Categories[category]
		if !ok {
			return fmt.Errorf("category %q: %w", category, classify.ErrNotFound)
		}
		c.LabelChangeCount += delta
		count = c.LabelChangeCount
		return nil
	})
	return count, err
}

// ResetLabelChange zeroes the category's label-change counter. Called by the
// training trigger when a new iteration starts.
func (s *Store) ResetLabelChange(_ context.Context, workspaceID, category string) error {
	return s.mutate(workspaceID, func(w *classify.Workspace) error {
		c, ok := w.Categories[category]
		if !ok {
			return fmt.Errorf("category %q: %w", category, classify.ErrNotFound)
		}
		c.LabelChangeCount = 0
		return nil
	})
}

// GetWorkspace returns a deep copy of the workspace record. Mutating the
// copy never affects the store.
func (s *Store) GetWorkspace(_ context.Context, id string) (*classify.Workspace, error) {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	w, err := s.load(id)
	if err != nil {
		return nil, err
	}
	return deepCopy(w)
}

// GetCategory returns a deep copy of one category record.
func (s *Store) GetCategory(ctx context.Context, workspaceID, category string) (*classify.Category, error) {
	w, err := s.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	c, ok := w.Categories[category]
	if !ok {
		return nil, fmt.Errorf("category %q: %w", category, classify.ErrNotFound)
	}
	return c, nil
}

// CurrentRecommendations scans iterations from newest to oldest and returns
// the recommendation list of the first READY one. An iteration that is
// still training, computing, or errored never contributes, even when it is
// newer. Returns an empty list when no iteration is READY.
func (s *Store) CurrentRecommendations(ctx context.Context, workspaceID, category string) ([]string, error) {
	c, err := s.GetCategory(ctx, workspaceID, category)
	if err != nil {
		return nil, err
	}

	for i := len(c.Iterations) - 1; i >= 0; i-- {
		if c.Iterations[i].Status == classify.IterationReady {
			return append([]string(nil), c.Iterations[i].Recommendations...), nil
		}
	}
	return []string{}, nil
}

// ListWorkspaces returns the ids of every persisted workspace, sorted, by
// scanning the backing directory.
func (s *Store) ListWorkspaces(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("scan state dir: %w", err)
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, recordSuffix) {
			continue
		}
		id := strings.TrimSuffix(name, recordSuffix)
		if classify.ValidWorkspaceID(id) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// deepCopy clones a workspace tree via a JSON round trip. The tree is plain
// data, so this is both simple and faithful.
func deepCopy(w *classify.Workspace) (*classify.Workspace, error) {
	data, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("copy workspace %q: %w", w.ID, err)
	}
	var out classify.Workspace
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("copy workspace %q: %w", w.ID, err)
	}
	if out.Categories == nil {
		out.Categories = make(map[string]*classify.Category)
	}
	return &out, nil
}
