package engine

import (
	"sync"
)

// Metrics tracks per-schedule counters for observability. All methods are
// safe for concurrent use and are no-ops on a nil receiver.
type Metrics struct {
	mu sync.Mutex

	ticks       uint64
	stepped     uint64
	rescheduled uint64
	removed     uint64
	spawned     uint64
	lastBatch   int
}

// MetricsSnapshot is a point-in-time copy of the counters of a Metrics.
type MetricsSnapshot struct {
	Ticks       uint64
	Stepped     uint64
	Rescheduled uint64
	Removed     uint64
	Spawned     uint64
	LastBatch   int
}

// NewMetrics creates an empty metrics registry.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// IncTicks increments the completed tick counter.
func (m *Metrics) IncTicks() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.ticks++
	m.mu.Unlock()
}

// AddStepped adds to the counter of agent steps executed.
func (m *Metrics) AddStepped(n uint64) {
	if m == nil || n == 0 {
		return
	}
	m.mu.Lock()
	m.stepped += n
	m.mu.Unlock()
}

// AddRescheduled adds to the counter of repeating agents reinserted.
func (m *Metrics) AddRescheduled(n uint64) {
	if m == nil || n == 0 {
		return
	}
	m.mu.Lock()
	m.rescheduled += n
	m.mu.Unlock()
}

// AddRemoved adds to the counter of agents that left the schedule.
func (m *Metrics) AddRemoved(n uint64) {
	if m == nil || n == 0 {
		return
	}
	m.mu.Lock()
	m.removed += n
	m.mu.Unlock()
}

// AddSpawned adds to the counter of agents emitted by reproduction.
func (m *Metrics) AddSpawned(n uint64) {
	if m == nil || n == 0 {
		return
	}
	m.mu.Lock()
	m.spawned += n
	m.mu.Unlock()
}

// SetLastBatch stores the size of the most recent tick batch.
func (m *Metrics) SetLastBatch(size int) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.lastBatch = size
	m.mu.Unlock()
}

// Snapshot returns a copy of the current counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return MetricsSnapshot{
		Ticks:       m.ticks,
		Stepped:     m.stepped,
		Rescheduled: m.rescheduled,
		Removed:     m.removed,
		Spawned:     m.spawned,
		LastBatch:   m.lastBatch,
	}
}
