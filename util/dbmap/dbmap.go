// Package dbmap implements a double-buffered concurrent map, the foundation
// of every simulation field. A Map holds two views: an immutable read view
// that agents consult while stepping, and a sharded write view that accepts
// concurrent staging of inserts, updates and removals. Update promotes the
// write view to become the next read view, merging it over the previous one.
package dbmap

import (
	"hash/maphash"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/segmentio/fasthash/fnv1a"
)

// defaultShardCount is the number of write-side shards. Staged writes are
// keyed by shard to keep lock contention low with many concurrent writers.
const defaultShardCount = 64

// Map is a double-buffered map from K to V. Reads served by Get, Keys, Len
// and Range always observe the read view published by the last Update and
// are safe from any number of goroutines. Insert, Upsert and Remove stage
// changes on the write view and may also be called concurrently.
//
// Update and LazyUpdate must only be called while no readers or writers are
// active; the schedule calls them once per tick from the main goroutine.
type Map[K comparable, V any] struct {
	shards []*shard[K, V]
	mask   uint64
	hash   func(K) uint64
}

type shard[K comparable, V any] struct {
	read atomic.Pointer[map[K]V]

	mu      sync.Mutex
	write   map[K]V
	removed map[K]struct{}
	dirty   bool
}

// New creates an empty Map using the default hasher, which takes a fast
// integer path for uint64/int64/int keys, xxhash for string keys and
// maphash for every other comparable key type.
func New[K comparable, V any]() *Map[K, V] {
	return NewWithHasher[K, V](defaultHasher[K](), defaultShardCount)
}

// NewWithHasher creates an empty Map distributing keys over the given number
// of shards using the hash function passed. The shard count is rounded up to
// a power of two. It panics if hash is nil.
func NewWithHasher[K comparable, V any](hash func(K) uint64, shards int) *Map[K, V] {
	if hash == nil {
		panic("dbmap: hasher must not be nil")
	}
	n := 1
	for n < shards {
		n <<= 1
	}
	m := &Map[K, V]{
		shards: make([]*shard[K, V], n),
		mask:   uint64(n - 1),
		hash:   hash,
	}
	for i := range m.shards {
		s := &shard[K, V]{
			write:   make(map[K]V),
			removed: make(map[K]struct{}),
		}
		empty := make(map[K]V)
		s.read.Store(&empty)
		m.shards[i] = s
	}
	return m
}

// StringHasher hashes string keys with xxhash. It is the hasher used by the
// default hasher's string path, exported for callers that know their key
// type up front and want to skip the type switch.
func StringHasher(s string) uint64 {
	return xxhash.Sum64String(s)
}

// Uint64Hasher hashes unsigned integer keys with fnv1a.
func Uint64Hasher(u uint64) uint64 {
	return fnv1a.HashUint64(u)
}

func defaultHasher[K comparable]() func(K) uint64 {
	seed := maphash.MakeSeed()
	return func(k K) uint64 {
		switch v := any(k).(type) {
		case string:
			return xxhash.Sum64String(v)
		case uint64:
			return fnv1a.HashUint64(v)
		case int64:
			return fnv1a.HashUint64(uint64(v))
		case int:
			return fnv1a.HashUint64(uint64(v))
		case uint32:
			return fnv1a.HashUint64(uint64(v))
		case int32:
			return fnv1a.HashUint64(uint64(uint32(v)))
		default:
			return maphash.Comparable(seed, k)
		}
	}
}

func (m *Map[K, V]) shard(k K) *shard[K, V] {
	return m.shards[m.hash(k)&m.mask]
}

// Get returns the value published for k in the read view.
func (m *Map[K, V]) Get(k K) (V, bool) {
	v, ok := (*m.shard(k).read.Load())[k]
	return v, ok
}

// Keys returns a snapshot of the keys in the read view.
func (m *Map[K, V]) Keys() []K {
	keys := make([]K, 0, m.Len())
	for _, s := range m.shards {
		for k := range *s.read.Load() {
			keys = append(keys, k)
		}
	}
	return keys
}

// Len returns the number of entries in the read view.
func (m *Map[K, V]) Len() int {
	n := 0
	for _, s := range m.shards {
		n += len(*s.read.Load())
	}
	return n
}

// Range calls fn for every entry of the read view until fn returns false.
func (m *Map[K, V]) Range(fn func(k K, v V) bool) {
	for _, s := range m.shards {
		for k, v := range *s.read.Load() {
			if !fn(k, v) {
				return
			}
		}
	}
}

// Insert stages v under k on the write view. Within a single tick the last
// writer wins. The entry becomes readable after the next Update.
func (m *Map[K, V]) Insert(k K, v V) {
	s := m.shard(k)
	s.mu.Lock()
	s.write[k] = v
	delete(s.removed, k)
	s.dirty = true
	s.mu.Unlock()
}

// Upsert stages the result of fn under k, holding the key's shard exclusively
// for the duration of the call. fn receives the currently staged value, or
// the published value when nothing is staged, letting commutative updates
// accumulate across concurrent writers within a tick.
func (m *Map[K, V]) Upsert(k K, fn func(cur V, ok bool) V) {
	s := m.shard(k)
	s.mu.Lock()
	cur, ok := s.write[k]
	if !ok {
		if _, gone := s.removed[k]; !gone {
			cur, ok = (*s.read.Load())[k]
		}
	}
	s.write[k] = fn(cur, ok)
	delete(s.removed, k)
	s.dirty = true
	s.mu.Unlock()
}

// GetStaged returns the value staged for k on the write view, falling back
// to the published value when nothing is staged for the key.
func (m *Map[K, V]) GetStaged(k K) (V, bool) {
	s := m.shard(k)
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.write[k]; ok {
		return v, true
	}
	if _, gone := s.removed[k]; gone {
		var zero V
		return zero, false
	}
	v, ok := (*s.read.Load())[k]
	return v, ok
}

// Remove discards any staged entry for k and queues removal of the published
// entry at the next Update.
func (m *Map[K, V]) Remove(k K) {
	s := m.shard(k)
	s.mu.Lock()
	delete(s.write, k)
	s.removed[k] = struct{}{}
	s.dirty = true
	s.mu.Unlock()
}

// WKeys returns a snapshot of the keys currently staged on the write view.
func (m *Map[K, V]) WKeys() []K {
	var keys []K
	for _, s := range m.shards {
		s.mu.Lock()
		for k := range s.write {
			keys = append(keys, k)
		}
		s.mu.Unlock()
	}
	return keys
}

// Clear empties the pending write view, dropping staged inserts and queued
// removals. The read view is unaffected.
func (m *Map[K, V]) Clear() {
	for _, s := range m.shards {
		s.mu.Lock()
		clear(s.write)
		clear(s.removed)
		s.dirty = false
		s.mu.Unlock()
	}
}

// Reset empties both views, returning the map to its initial state.
func (m *Map[K, V]) Reset() {
	for _, s := range m.shards {
		s.mu.Lock()
		clear(s.write)
		clear(s.removed)
		empty := make(map[K]V)
		s.read.Store(&empty)
		s.dirty = false
		s.mu.Unlock()
	}
}

// Update publishes the write view: the next read view is the staged entries
// merged over the previous read view, minus queued removals. The previous
// read map is cleared and recycled as the next write buffer. Must not run
// concurrently with readers or writers.
func (m *Map[K, V]) Update() {
	for _, s := range m.shards {
		s.promote(false)
	}
}

// LazyUpdate is Update for maps that are usually clean: shards with no staged
// writes or removals keep their read view as is.
func (m *Map[K, V]) LazyUpdate() {
	for _, s := range m.shards {
		s.promote(true)
	}
}

func (s *shard[K, V]) promote(lazy bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if lazy && !s.dirty {
		return
	}
	prev := s.read.Load()
	next := s.write
	for k, v := range *prev {
		if _, staged := next[k]; staged {
			continue
		}
		if _, gone := s.removed[k]; gone {
			continue
		}
		next[k] = v
	}
	s.read.Store(&next)
	clear(*prev)
	s.write = *prev
	clear(s.removed)
	s.dirty = false
}
