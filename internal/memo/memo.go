// Package memo provides a bounded, thread-safe LRU lookup table shared by extraction workers.
package memo

import (
	"container/list"
	"hash/maphash"
	"sync"
	"sync/atomic"
)

const shardCount = 16

type entry[V any] struct {
	key   string
	value V
}

type shard[V any] struct {
	sync.Mutex
	items    map[string]*list.Element
	lruList  *list.List
	capacity int
}

// Table is a sharded LRU keyed by string. The zero value is not usable; call New.
type Table[V any] struct {
	shards [shardCount]*shard[V]
	seed   maphash.Seed

	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a table holding roughly capacity entries spread across shards.
func New[V any](capacity int) *Table[V] {
	t := &Table[V]{seed: maphash.MakeSeed()}

	shardCap := capacity / shardCount
	if shardCap < 1 {
		shardCap = 1
	}

	for i := range t.shards {
		t.shards[i] = &shard[V]{
			items:    make(map[string]*list.Element),
			lruList:  list.New(),
			capacity: shardCap,
		}
	}

	return t
}

func (t *Table[V]) shardFor(key string) *shard[V] {
	return t.shards[maphash.String(t.seed, key)&(shardCount-1)]
}

// Get returns the value for key and marks it most recently used.
func (t *Table[V]) Get(key string) (V, bool) {
	s := t.shardFor(key)

	s.Lock()
	defer s.Unlock()

	if el, ok := s.items[key]; ok {
		s.lruList.MoveToFront(el)
		t.hits.Add(1)

		return el.Value.(*entry[V]).value, true
	}

	t.misses.Add(1)

	var zero V

	return zero, false
}

// Add stores value under key, evicting the least recently used entry of the shard when full.
func (t *Table[V]) Add(key string, value V) {
	s := t.shardFor(key)

	s.Lock()
	defer s.Unlock()

	if el, ok := s.items[key]; ok {
		s.lruList.MoveToFront(el)
		el.Value.(*entry[V]).value = value

		return
	}

	if s.lruList.Len() >= s.capacity {
		if oldest := s.lruList.Back(); oldest != nil {
			s.lruList.Remove(oldest)
			delete(s.items, oldest.Value.(*entry[V]).key)
		}
	}

	s.items[key] = s.lruList.PushFront(&entry[V]{key: key, value: value})
}

// GetOrCompute returns the cached value for key or computes, stores and returns it.
// Errors from compute are returned and nothing is stored.
func (t *Table[V]) GetOrCompute(key string, compute func() (V, error)) (V, bool, error) {
	if v, ok := t.Get(key); ok {
		return v, true, nil
	}

	v, err := compute()
	if err != nil {
		return v, false, err
	}

	t.Add(key, v)

	return v, false, nil
}

// Len returns the number of entries across all shards.
func (t *Table[V]) Len() int {
	n := 0

	for _, s := range t.shards {
		s.Lock()
		n += s.lruList.Len()
		s.Unlock()
	}

	return n
}

// Flush drops every entry.
func (t *Table[V]) Flush() {
	for _, s := range t.shards {
		s.Lock()
		s.items = make(map[string]*list.Element)
		s.lruList.Init()
		s.Unlock()
	}
}

// Stats returns the hit and miss counts observed by Get.
func (t *Table[V]) Stats() (hits, misses int64) {
	return t.hits.Load(), t.misses.Load()
}
