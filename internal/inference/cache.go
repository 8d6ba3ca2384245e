// Curator - Human-in-the-Loop Classification Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/curator

package inference

import (
	"context"
	"fmt"
	"hash/fnv"
	"strconv"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/tomtom215/curator/internal/classify"
	"github.com/tomtom215/curator/internal/metrics"
)

// Cache decorates a ModelBackend with two-tier result memoization. It is
// itself a ModelBackend, so callers are oblivious to caching:
//
//	backend := inference.New(real, db, 10000, logger)
//	preds, err := backend.Infer(ctx, modelID, items, classify.InferOptions{UseCache: true})
//
// Lookup order is memory -> disk -> real inference. Disk hits are promoted
// into memory. Concurrent identical misses for the same model are collapsed
// into a single upstream call via singleflight; the disk tier is serialized
// per model.
//
// With UseCache false the call goes straight to the backend and no tier is
// read or written.
type Cache struct {
	backend classify.ModelBackend
	mem     *lru
	disk    *diskTier
	group   singleflight.Group
	logger  zerolog.Logger

	// mu guards modelLocks membership only.
	mu         sync.Mutex
	modelLocks map[string]*sync.Mutex
}

var _ classify.ModelBackend = (*Cache)(nil)

// New builds a cache over the given backend. The badger database holds the
// durable tier; capacity bounds the in-memory tier.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func New(backend classify.ModelBackend, db *badger.DB, capacity int, logger zerolog.Logger) *Cache {
	return &Cache{
		backend:    backend,
		mem:        newLRU(capacity),
		disk:       &diskTier{db: db},
		logger:     logger.With().Str("component", "inference-cache").Logger(),
		modelLocks: make(map[string]*sync.Mutex),
	}
}

func (c *Cache) lockFor(modelID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.modelLocks[modelID]
	if !ok {
		l = &sync.Mutex{}
		c.modelLocks[modelID] = l
	}
	return l
}

func memKey(modelID, itemKey string) string {
	return modelID + "|" + itemKey
}

// Train delegates to the backend.
func (c *Cache) Train(ctx context.Context, trainingSet []classify.LabeledItem, params classify.TrainParams) (string, error) {
	return c.backend.Train(ctx, trainingSet, params)
}

// GetStatus delegates to the backend.
func (c *Cache) GetStatus(ctx context.Context, modelID string) (classify.ModelStatus, error) {
	return c.backend.GetStatus(ctx, modelID)
}

// Delete purges the model's cache entries from both tiers and deletes the
// artifact.
func (c *Cache) Delete(ctx context.Context, modelID string) error {
	if err := c.PurgeModel(modelID); err != nil {
		return err
	}
	return c.backend.Delete(ctx, modelID)
}

// PurgeModel drops the cached entries for a model without touching the
// artifact.
func (c *Cache) PurgeModel(modelID string) error {
	if err := c.disk.purge(modelID); err != nil {
		return err
	}
	c.mem.removePrefix(memKey(modelID, ""))
	return nil
}

// Infer returns one prediction per item, serving from the cache tiers where
// possible.
func (c *Cache) Infer(ctx context.Context, modelID string, items []classify.Item, opts classify.InferOptions) ([]classify.Prediction, error) {
	if !opts.UseCache {
		return c.backend.Infer(ctx, modelID, items, opts)
	}

	preds := make([]classify.Prediction, len(items))
	keys := make([]string, len(items))
	missing := make([]int, 0, len(items))

	for i, it := range items {
		keys[i] = it.CacheKey()
		if p, ok := c.mem.get(memKey(modelID, keys[i])); ok {
			preds[i] = p
			metrics.CacheHits.WithLabelValues("memory").Inc()
			continue
		}
		missing = append(missing, i)
	}

	if len(missing) > 0 {
		missing = c.fillFromDisk(modelID, keys, preds, missing)
	}
	if len(missing) == 0 {
		return preds, nil
	}

	if err := c.fillFromBackend(ctx, modelID, items, keys, preds, missing); err != nil {
		return nil, err
	}
	return preds, nil
}

// fillFromDisk resolves misses against the durable tier, promoting hits into
// memory. Returns the indices still missing.
func (c *Cache) fillFromDisk(modelID string, keys []string, preds []classify.Prediction, missing []int) []int {
	l := c.lockFor(modelID)
	l.Lock()
	defer l.Unlock()

	still := missing[:0]
	for _, i := range missing {
		p, ok, err := c.disk.get(modelID, keys[i])
		if err != nil {
			// A broken disk tier degrades to real inference.
			c.logger.Warn().Err(err).Str("model", modelID).Msg("disk cache read failed")
			still = append(still, i)
			continue
		}
		if !ok {
			still = append(still, i)
			continue
		}
		preds[i] = p
		c.mem.add(memKey(modelID, keys[i]), p)
		metrics.CacheHits.WithLabelValues("disk").Inc()
	}
	return still
}

// fillFromBackend runs real inference for the remaining misses. Identical
// concurrent miss sets share one upstream call.
func (c *Cache) fillFromBackend(ctx context.Context, modelID string, items []classify.Item, keys []string, preds []classify.Prediction, missing []int) error {
	missItems := make([]classify.Item, len(missing))
	missKeys := make([]string, len(missing))
	for j, i := range missing {
		missItems[j] = items[i]
		missKeys[j] = keys[i]
	}

	flightKey := flightKey(modelID, missKeys)
	result, err, _ := c.group.Do(flightKey, func() (interface{}, error) {
		// A caller that lost the race to an already-completed flight finds
		// the entries cached by the winner; don't hit the backend again.
		if cached, ok := c.lookupAll(modelID, missKeys); ok {
			return cached, nil
		}

		metrics.CacheMisses.Inc()
		got, err := c.backend.Infer(ctx, modelID, missItems, classify.InferOptions{UseCache: true})
		if err != nil {
			return nil, err
		}
		if len(got) != len(missItems) {
			return nil, fmt.Errorf("backend returned %d predictions for %d items", len(got), len(missItems))
		}

		l := c.lockFor(modelID)
		l.Lock()
		defer l.Unlock()
		if err := c.disk.putBatch(modelID, missKeys, got); err != nil {
			c.logger.Warn().Err(err).Str("model", modelID).Msg("disk cache write failed")
		}
		for j, k := range missKeys {
			c.mem.add(memKey(modelID, k), got[j])
		}
		return got, nil
	})
	if err != nil {
		return fmt.Errorf("infer model %s: %w", modelID, err)
	}

	got := result.([]classify.Prediction)
	for j, i := range missing {
		preds[i] = got[j]
	}
	return nil
}

// lookupAll returns cached predictions for every key, or ok=false if any is
// missing from the memory tier.
func (c *Cache) lookupAll(modelID string, keys []string) ([]classify.Prediction, bool) {
	preds := make([]classify.Prediction, len(keys))
	for i, k := range keys {
		p, ok := c.mem.get(memKey(modelID, k))
		if !ok {
			return nil, false
		}
		preds[i] = p
	}
	return preds, true
}

// flightKey collapses identical concurrent miss sets into one key.
func flightKey(modelID string, keys []string) string {
	h := fnv.New64a()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
	}
	return modelID + ":" + strconv.FormatUint(h.Sum64(), 16)
}

// Stats reports in-memory tier hit/miss counters.
func (c *Cache) Stats() (hits, misses int64) {
	return c.mem.stats()
}
