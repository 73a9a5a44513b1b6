package engine

import (
	"container/heap"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/brentp/intintmap"
)

// Config holds the tunable parameters for a Schedule. The zero value is
// usable; sensible defaults are applied at construction.
type Config struct {
	// Threads is the number of workers stepping agents in parallel each
	// tick. A value of 1 (or less) runs every agent on the main goroutine.
	Threads int
	// Log is the logger used for reporting agent failures. If nil, Log is
	// set to slog.Default().
	Log *slog.Logger
	// Metrics optionally collects per-schedule counters. Nil disables
	// collection.
	Metrics *Metrics
}

func (c Config) withDefaults() Config {
	if c.Threads < 1 {
		c.Threads = 1
	}
	if c.Log == nil {
		c.Log = slog.Default()
	}
	return c
}

// Schedule drives a population of agents forward in ordered time steps. It
// holds a priority queue of agent handles keyed by (time, ordering) and, in
// parallel mode, a fixed pool of workers created once and reused every tick.
//
// A tick pops every event whose time has come, steps the agents (reading
// field read views, staging writes), then calls the state's Update: the
// publication barrier after which all writes of the tick become readable.
type Schedule struct {
	log     *slog.Logger
	metrics *Metrics

	step uint64
	time float64

	counter atomic.Uint64

	// mu guards events and scheduled. Workers never touch the queue; drains
	// and merges happen on the main goroutine only.
	mu        sync.Mutex
	events    eventQueue
	scheduled *intintmap.Map

	pool *workerPool

	// batch is the per-tick scratch vector of drained events.
	batch []eventPair

	// newly collects agents scheduled after step 0, for visualization
	// collaborators. Cleared at the end of each tick.
	newly []*AgentHandle
}

// New creates a sequential Schedule.
func New() *Schedule {
	return NewWithConfig(Config{})
}

// WithThreads creates a parallel Schedule stepping agents on n workers. It
// panics if n < 1.
func WithThreads(n int) *Schedule {
	if n < 1 {
		panic(fmt.Sprintf("engine: schedule requires at least one thread, got %d", n))
	}
	return NewWithConfig(Config{Threads: n})
}

// NewWithConfig creates a Schedule from the configuration passed.
func NewWithConfig(cfg Config) *Schedule {
	cfg = cfg.withDefaults()
	s := &Schedule{
		log:       cfg.Log,
		metrics:   cfg.Metrics,
		scheduled: intintmap.New(1024, 0.6),
	}
	if cfg.Threads > 1 {
		s.pool = newWorkerPool(s, cfg.Threads)
	}
	return s
}

// Steps returns the number of ticks run so far.
func (s *Schedule) Steps() uint64 { return s.step }

// Time returns the event time of the current tick.
func (s *Schedule) Time() float64 { return s.time }

// Len returns the number of pending events.
func (s *Schedule) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// Threads returns the number of workers stepping agents each tick.
func (s *Schedule) Threads() int {
	if s.pool == nil {
		return 1
	}
	return len(s.pool.workers)
}

// Metrics returns the metrics registry of the schedule, possibly nil.
func (s *Schedule) Metrics() *Metrics { return s.metrics }

// NewlyScheduled returns the agents scheduled during the current tick. The
// slice is reused; collaborators must copy what they keep.
func (s *Schedule) NewlyScheduled() []*AgentHandle { return s.newly }

// NewHandle wraps an agent value in a handle carrying a schedule-unique id.
// The counter is per schedule, so independent schedules never share ids.
func (s *Schedule) NewHandle(agent Agent) *AgentHandle {
	return &AgentHandle{id: s.counter.Add(1), agent: agent}
}

// ScheduleRepeating enters agent into the schedule at the given time and
// ordering, rescheduling it at time+1 after every step until removed. It
// returns the handle created for the agent.
func (s *Schedule) ScheduleRepeating(agent Agent, time float64, ordering int64) *AgentHandle {
	h := s.NewHandle(agent)
	h.repeating = true
	s.push(h, Priority{Time: time, Ordering: ordering})
	return h
}

// ScheduleOnce enters the handle into the schedule for a single firing at
// the given time and ordering.
func (s *Schedule) ScheduleOnce(handle *AgentHandle, time float64, ordering int64) {
	s.push(handle, Priority{Time: time, Ordering: ordering})
}

func (s *Schedule) push(h *AgentHandle, pr Priority) {
	if math.IsNaN(pr.Time) {
		panic("engine: event time must not be NaN")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.scheduled.Get(int64(h.id)); dup {
		panic(fmt.Sprintf("engine: agent %d is already scheduled", h.id))
	}
	s.scheduled.Put(int64(h.id), 1)
	heap.Push(&s.events, eventPair{handle: h, pr: pr})
	if s.step > 0 {
		s.newly = append(s.newly, h)
	}
}

// Step runs one tick: the before hook, the drain of all events whose time
// has come, the agent steps (sequential or on the worker pool), the state's
// publication barrier and the after hook.
func (s *Schedule) Step(state State) {
	if bs, ok := state.(BeforeStepper); ok {
		bs.BeforeStep(s)
	}
	if s.step == 0 {
		// Initial view publication: writes staged by Init become readable
		// before the first agent steps.
		state.Update(0)
	}
	s.step++

	batch := s.drain()
	if batch == nil {
		return
	}
	s.metrics.SetLastBatch(len(batch))

	var reschedule []eventPair
	if s.pool != nil {
		reschedule = s.pool.step(state, batch)
	} else {
		reschedule = s.runAgents(state, batch)
	}
	s.merge(reschedule)

	state.Update(s.step)
	if as, ok := state.(AfterStepper); ok {
		as.AfterStep(s)
	}
	s.metrics.IncTicks()
	s.newly = s.newly[:0]
}

// Simulate runs n consecutive ticks.
func (s *Schedule) Simulate(state State, n int) {
	for i := 0; i < n; i++ {
		s.Step(state)
	}
}

// drain advances the schedule time to the head event and pops every event
// with time <= the new current time into the per-tick batch. It returns nil
// when the queue is empty.
func (s *Schedule) drain() []eventPair {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		return nil
	}
	s.time = s.events[0].pr.Time

	batch := s.batch[:0]
	for len(s.events) > 0 && s.events[0].pr.Time <= s.time {
		ev := heap.Pop(&s.events).(eventPair)
		s.scheduled.Del(int64(ev.handle.id))
		batch = append(batch, ev)
	}
	s.batch = batch
	return batch
}

// runAgents steps every event of the batch in order and returns the events
// to reinsert: repeating agents not removed, rescheduled at time+1 with
// their ordering kept, plus any reproduced children at time+1 with their own
// options. Safe for concurrent use by pool workers on disjoint batches.
func (s *Schedule) runAgents(state State, batch []eventPair) []eventPair {
	reschedule := make([]eventPair, 0, len(batch))
	var removed, spawned uint64
	for _, ev := range batch {
		ev.handle.agent.Step(state)

		shouldRemove := false
		if r, ok := ev.handle.agent.(Remover); ok {
			shouldRemove = r.ShouldRemove(state)
		}
		if ev.handle.repeating && !shouldRemove {
			reschedule = append(reschedule, eventPair{
				handle: ev.handle,
				pr:     Priority{Time: ev.pr.Time + 1.0, Ordering: ev.pr.Ordering},
			})
		} else {
			removed++
		}

		if rp, ok := ev.handle.agent.(Reproducer); ok {
			for _, spawn := range rp.ShouldReproduce(state) {
				child := &AgentHandle{
					id:        s.counter.Add(1),
					agent:     spawn.Agent,
					repeating: spawn.Options.Repeating,
				}
				reschedule = append(reschedule, eventPair{
					handle: child,
					pr:     Priority{Time: ev.pr.Time + 1.0, Ordering: spawn.Options.Ordering},
				})
				spawned++
			}
		}
	}
	s.metrics.AddStepped(uint64(len(batch)))
	s.metrics.AddRemoved(removed)
	s.metrics.AddSpawned(spawned)
	return reschedule
}

// merge reinserts reschedule vectors into the queue under a single lock.
func (s *Schedule) merge(reschedule []eventPair) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range reschedule {
		s.scheduled.Put(int64(ev.handle.id), 1)
		heap.Push(&s.events, ev)
	}
	s.metrics.AddRescheduled(uint64(len(reschedule)))
}

// Close releases the worker pool. Pending ticks must have completed; after
// Close the schedule can no longer step in parallel mode.
func (s *Schedule) Close() {
	if s.pool != nil {
		s.pool.close()
	}
}
