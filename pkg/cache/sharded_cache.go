// Package cache provides a sharded keyed store whose entries carry their own
// lock, so read-modify-write on one key never blocks other keys.
package cache

import (
	"hash/fnv"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

const numShards = 16

// Sharded is a concurrent map from string keys to values of type V.
//
// A key's slot is created on first write and never removed, so the lock
// guarding a key stays the same for the life of the store even when the
// value is replaced. Keys, Len and Stats read only the slot's atomics and
// never wait on a key's lock.
type Sharded[V any] struct {
	shards [numShards]*shard[V]
}

type shard[V any] struct {
	mu    sync.RWMutex
	items map[string]*entry[V]
}

type entry[V any] struct {
	mu    sync.Mutex
	value V
	// written under mu, readable without it
	present   atomic.Bool
	updatedAt atomic.Int64
}

func (e *entry[V]) store(v V) {
	e.value = v
	e.updatedAt.Store(time.Now().UnixNano())
	e.present.Store(true)
}

// NewSharded creates an empty store.
func NewSharded[V any]() *Sharded[V] {
	c := &Sharded[V]{}
	for i := 0; i < numShards; i++ {
		c.shards[i] = &shard[V]{
			items: make(map[string]*entry[V]),
		}
	}
	return c
}

// getShard returns the shard for the given key.
func (c *Sharded[V]) getShard(key string) *shard[V] {
	h := fnv.New32a()
	h.Write([]byte(key))
	return c.shards[h.Sum32()%numShards]
}

func (c *Sharded[V]) lookup(key string) (*entry[V], bool) {
	s := c.getShard(key)
	s.mu.RLock()
	e, ok := s.items[key]
	s.mu.RUnlock()
	return e, ok
}

func (c *Sharded[V]) slot(key string) *entry[V] {
	if e, ok := c.lookup(key); ok {
		return e
	}
	s := c.getShard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[key]
	if !ok {
		e = &entry[V]{}
		s.items[key] = e
	}
	return e
}

// Update runs fn under the key's lock with the current value (exists is
// false for a new key) and stores the result unless fn fails.
func (c *Sharded[V]) Update(key string, fn func(old V, exists bool) (V, error)) error {
	e := c.slot(key)
	e.mu.Lock()
	defer e.mu.Unlock()

	v, err := fn(e.value, e.present.Load())
	if err != nil {
		return err
	}
	e.store(v)
	return nil
}

// Modify runs fn under the key's lock only if the key holds a value.
// It reports false without calling fn for unknown keys.
func (c *Sharded[V]) Modify(key string, fn func(v V) (V, error)) (bool, error) {
	e, ok := c.lookup(key)
	if !ok {
		return false, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.present.Load() {
		return false, nil
	}

	v, err := fn(e.value)
	if err != nil {
		return true, err
	}
	e.store(v)
	return true, nil
}

// Set stores v for key.
func (c *Sharded[V]) Set(key string, v V) {
	_ = c.Update(key, func(V, bool) (V, error) { return v, nil })
}

// Get returns the value for key. It waits for any in-flight Update or Modify
// on the same key.
func (c *Sharded[V]) Get(key string) (V, bool) {
	e, ok := c.lookup(key)
	if !ok {
		var zero V
		return zero, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.value, e.present.Load()
}

// Keys returns every key holding a value, sorted.
func (c *Sharded[V]) Keys() []string {
	var keys []string
	for _, s := range c.shards {
		s.mu.RLock()
		for k, e := range s.items {
			if e.present.Load() {
				keys = append(keys, k)
			}
		}
		s.mu.RUnlock()
	}
	sort.Strings(keys)
	return keys
}

// Len returns total items across all shards.
func (c *Sharded[V]) Len() int {
	n := 0
	for _, s := range c.shards {
		s.mu.RLock()
		for _, e := range s.items {
			if e.present.Load() {
				n++
			}
		}
		s.mu.RUnlock()
	}
	return n
}

// Stats provides store statistics.
type Stats struct {
	TotalItems  int            `json:"total_items"`
	ShardCounts [numShards]int `json:"shard_counts"`
	OldestAge   time.Duration  `json:"oldest_age"`
}

// Stats returns store statistics.
func (c *Sharded[V]) Stats() Stats {
	stats := Stats{}
	var oldest int64

	for i, s := range c.shards {
		s.mu.RLock()
		for _, e := range s.items {
			if !e.present.Load() {
				continue
			}
			stats.ShardCounts[i]++
			stats.TotalItems++
			if at := e.updatedAt.Load(); oldest == 0 || at < oldest {
				oldest = at
			}
		}
		s.mu.RUnlock()
	}

	if oldest != 0 {
		stats.OldestAge = time.Since(time.Unix(0, oldest))
	}
	return stats
}
