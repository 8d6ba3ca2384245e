// Curator - Human-in-the-Loop Classification Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/curator

// Package inference memoizes model outputs per (model, item) pair behind the
// ModelBackend interface. Results live in two tiers: a bounded in-memory LRU
// for hot entries and an unbounded BadgerDB tier that survives restarts.
package inference

import (
	"strings"
	"sync"

	"github.com/tomtom215/curator/internal/classify"
)

// lruEntry is a node in the doubly-linked recency list.
type lruEntry struct {
	key   string
	value classify.Prediction
	prev  *lruEntry
	next  *lruEntry
}

// lru is a thread-safe fixed-capacity LRU over predictions. A hashmap gives
// O(1) lookup; sentinel head/tail nodes keep list surgery branch-free.
// Entries are content-addressed and never go stale, so there is no TTL.
type lru struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*lruEntry
	head     *lruEntry
	tail     *lruEntry

	hits   int64
	misses int64
}

const defaultLRUCapacity = 10000

func newLRU(capacity int) *lru {
	if capacity <= 0 {
		capacity = defaultLRUCapacity
	}
	c := &lru{
		capacity: capacity,
		items:    make(map[string]*lruEntry, capacity),
		head:     &lruEntry{},
		tail:     &lruEntry{},
	}
	c.head.next = c.tail
	c.tail.prev = c.head
	return c
}

// get returns the cached prediction and moves it to the front.
func (c *lru) get(key string) (classify.Prediction, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.items[key]
	if !ok {
		c.misses++
		return classify.Prediction{}, false
	}
	c.moveToFront(entry)
	c.hits++
	return entry.value, true
}

// add inserts or refreshes an entry, evicting the least recently used one
// when over capacity.
func (c *lru) add(key string, value classify.Prediction) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.items[key]; ok {
		entry.value = value
		c.moveToFront(entry)
		return
	}

	entry := &lruEntry{key: key, value: value}
	c.addToFront(entry)
	c.items[key] = entry

	for len(c.items) > c.capacity {
		c.evictOldest()
	}
}

// removePrefix drops every entry whose key starts with prefix. Keys are
// namespaced per model, so this is the memory-tier half of a model purge.
func (c *lru) removePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, entry := range c.items {
		if strings.HasPrefix(key, prefix) {
			c.unlink(entry)
		}
	}
}

func (c *lru) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *lru) stats() (hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

func (c *lru) addToFront(entry *lruEntry) {
	entry.prev = c.head
	entry.next = c.head.next
	c.head.next.prev = entry
	c.head.next = entry
}

func (c *lru) moveToFront(entry *lruEntry) {
	entry.prev.next = entry.next
	entry.next.prev = entry.prev
	c.addToFront(entry)
}

func (c *lru) unlink(entry *lruEntry) {
	entry.prev.next = entry.next
	entry.next.prev = entry.prev
	delete(c.items, entry.key)
}

func (c *lru) evictOldest() {
	oldest := c.tail.prev
	if oldest == c.head {
		return
	}
	c.unlink(oldest)
}
