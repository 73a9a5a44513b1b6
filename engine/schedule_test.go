package engine

import (
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/goab-dev/goab/engine/field"
	"github.com/goab-dev/goab/util/dbmap"
)

// nopState satisfies State with no fields to publish.
type nopState struct{}

func (nopState) Reset()         {}
func (nopState) Init(*Schedule) {}
func (nopState) Update(uint64)  {}

type funcAgent struct {
	step func(state State)
}

func (a *funcAgent) Step(state State) { a.step(state) }

func TestEmptyTick(t *testing.T) {
	s := New()
	s.Step(nopState{})

	if s.Steps() != 1 {
		t.Fatalf("expected step counter 1 after empty tick, got %d", s.Steps())
	}
	if s.Len() != 0 {
		t.Fatalf("expected empty queue, got %d events", s.Len())
	}
}

func TestRepeatingAgentRunsEveryTick(t *testing.T) {
	s := New()
	count := 0
	s.ScheduleRepeating(&funcAgent{step: func(State) { count++ }}, 0, 0)

	s.Simulate(nopState{}, 10)

	if count != 10 {
		t.Fatalf("expected 10 steps, got %d", count)
	}
	if s.Len() != 1 {
		t.Fatalf("expected exactly one pending event, got %d", s.Len())
	}
	if s.events[0].pr.Time != 10 {
		t.Fatalf("expected next event at time 10, got %v", s.events[0].pr.Time)
	}
}

func TestHigherOrderingRunsFirstWithinTick(t *testing.T) {
	s := New()
	var log []string
	s.ScheduleRepeating(&funcAgent{step: func(State) { log = append(log, "A") }}, 0, 5)
	s.ScheduleRepeating(&funcAgent{step: func(State) { log = append(log, "B") }}, 0, 1)

	s.Step(nopState{})

	if len(log) != 2 || log[0] != "A" || log[1] != "B" {
		t.Fatalf("expected order [A B], got %v", log)
	}
}

func TestDequeueOrderFollowsPriority(t *testing.T) {
	s := New()
	var fired []Priority
	for i := 0; i < 50; i++ {
		pr := Priority{Time: float64(i * 7 % 5), Ordering: int64(i * 13 % 11)}
		agent := &funcAgent{}
		p := pr
		agent.step = func(State) { fired = append(fired, p) }
		h := s.NewHandle(agent)
		s.ScheduleOnce(h, pr.Time, pr.Ordering)
	}

	s.Simulate(nopState{}, 6)

	for i := 1; i < len(fired); i++ {
		a, b := fired[i-1], fired[i]
		if a.Time > b.Time {
			t.Fatalf("event %d fired at time %v after time %v", i, b.Time, a.Time)
		}
		if a.Time == b.Time && a.Ordering < b.Ordering {
			t.Fatalf("event %d with ordering %d fired after ordering %d at the same time", i, b.Ordering, a.Ordering)
		}
	}
	if len(fired) != 50 {
		t.Fatalf("expected all 50 events fired, got %d", len(fired))
	}
}

func TestScheduleOnceFiresOnce(t *testing.T) {
	s := New()
	count := 0
	h := s.NewHandle(&funcAgent{step: func(State) { count++ }})
	s.ScheduleOnce(h, 0, 0)

	s.Simulate(nopState{}, 3)

	if count != 1 {
		t.Fatalf("expected one firing, got %d", count)
	}
	if s.Len() != 0 {
		t.Fatalf("expected empty queue after one-shot fired, got %d", s.Len())
	}
}

func TestDuplicateHandlePanics(t *testing.T) {
	s := New()
	h := s.NewHandle(&funcAgent{step: func(State) {}})
	s.ScheduleOnce(h, 0, 0)

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on scheduling the same handle twice")
		}
	}()
	s.ScheduleOnce(h, 1, 0)
}

func TestNaNTimePanics(t *testing.T) {
	s := New()
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on NaN event time")
		}
	}()
	s.ScheduleRepeating(&funcAgent{step: func(State) {}}, math.NaN(), 0)
}

func TestWithThreadsRejectsZero(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected construction panic for zero threads")
		}
	}()
	WithThreads(0)
}

// removableAgent removes itself after a fixed number of steps.
type removableAgent struct {
	stepsLeft int
}

func (a *removableAgent) Step(State) { a.stepsLeft-- }

func (a *removableAgent) ShouldRemove(State) bool { return a.stepsLeft <= 0 }

func TestShouldRemoveDropsAgent(t *testing.T) {
	s := New()
	s.ScheduleRepeating(&removableAgent{stepsLeft: 3}, 0, 0)

	s.Simulate(nopState{}, 10)

	if s.Len() != 0 {
		t.Fatalf("expected removed agent out of the queue, got %d events", s.Len())
	}
}

// breedingAgent emits one child on its first step.
type breedingAgent struct {
	bred  bool
	count *int
}

func (a *breedingAgent) Step(State) { *a.count++ }

func (a *breedingAgent) ShouldReproduce(State) []Spawn {
	if a.bred {
		return nil
	}
	a.bred = true
	return []Spawn{{
		Agent:   &breedingAgent{bred: true, count: a.count},
		Options: ScheduleOptions{Ordering: 0, Repeating: true},
	}}
}

func TestShouldReproduceSchedulesChildren(t *testing.T) {
	s := New()
	count := 0
	s.ScheduleRepeating(&breedingAgent{count: &count}, 0, 0)

	// Tick 1: parent steps and breeds. Tick 2 onward: parent and child.
	s.Simulate(nopState{}, 3)

	if count != 5 {
		t.Fatalf("expected 5 agent steps (1+2+2), got %d", count)
	}
	if s.Len() != 2 {
		t.Fatalf("expected parent and child pending, got %d", s.Len())
	}
}

// moverState owns a Field2D of moving agents, publishing it each tick.
type moverState struct {
	field *field.Field2D[*mover]
}

func (s *moverState) Reset()         { s.field.Reset() }
func (s *moverState) Init(*Schedule) {}
func (s *moverState) Update(uint64)  { s.field.Update() }

type mover struct {
	id    int
	state *moverState

	staleSeen int
}

func (m *mover) Step(State) {
	loc, ok := m.state.field.GetLocation(m)
	if !ok {
		return
	}
	// Reads during the tick observe the frozen snapshot: every other agent
	// is still at its previous position no matter how many already moved.
	m.staleSeen = 0
	for _, other := range m.state.field.GetNeighborsWithinDistance(loc, 2) {
		if other != m {
			m.staleSeen++
		}
	}
	m.state.field.SetObjectLocation(m, mgl64.Vec2{loc[0] + 1, loc[1]})
}

func TestFieldWritesVisibleOnlyAfterBarrier(t *testing.T) {
	st := &moverState{field: field.NewField2D[*mover](100, 100, 10, true)}
	s := New()

	const n = 100
	movers := make([]*mover, n)
	for i := 0; i < n; i++ {
		m := &mover{id: i, state: st}
		movers[i] = m
		// All agents share one location so each sees all others as neighbors.
		st.field.SetObjectLocation(m, mgl64.Vec2{50, 50})
		s.ScheduleRepeating(m, 0, 0)
	}

	s.Step(st)

	for i, m := range movers {
		loc, ok := st.field.GetLocation(m)
		if !ok || loc != (mgl64.Vec2{51, 50}) {
			t.Fatalf("agent %d: expected post-move location {51 50}, got %v, %v", i, loc, ok)
		}
		if m.staleSeen != n-1 {
			t.Fatalf("agent %d: expected %d neighbors at frozen positions, saw %d", i, n-1, m.staleSeen)
		}
	}
}

// counterState owns a double-buffered counter agents bump commutatively.
type counterState struct {
	counters *dbmap.Map[string, int]
}

func (s *counterState) Reset()         { s.counters.Reset() }
func (s *counterState) Init(*Schedule) {}
func (s *counterState) Update(uint64)  { s.counters.Update() }

type incrementer struct {
	state *counterState
}

func (a *incrementer) Step(State) {
	a.state.counters.Upsert("total", func(cur int, ok bool) int { return cur + 1 })
}

func TestParallelEquivalenceUnderCommutativeWrites(t *testing.T) {
	const agents, steps = 2000, 3
	for _, threads := range []int{1, 4, 16} {
		st := &counterState{counters: dbmap.New[string, int]()}
		s := WithThreads(threads)
		t.Cleanup(s.Close)

		for i := 0; i < agents; i++ {
			s.ScheduleRepeating(&incrementer{state: st}, 0, 0)
		}
		s.Simulate(st, steps)

		total, _ := st.counters.Get("total")
		if total != agents*steps {
			t.Fatalf("threads=%d: expected %d, got %d", threads, agents*steps, total)
		}
	}
}

type panicAgent struct{}

func (panicAgent) Step(State) { panic("boom") }

func TestParallelPanicSurfacesAfterJoin(t *testing.T) {
	s := WithThreads(4)
	t.Cleanup(s.Close)
	for i := 0; i < 8; i++ {
		s.ScheduleRepeating(&funcAgent{step: func(State) {}}, 0, 0)
	}
	s.ScheduleRepeating(panicAgent{}, 0, 0)

	defer func() {
		if r := recover(); r != "boom" {
			t.Fatalf("expected agent panic to propagate, got %v", r)
		}
	}()
	s.Step(nopState{})
}

// hookState records the ordering of the schedule's tick hooks.
type hookState struct {
	mu  sync.Mutex
	log []string
}

func (s *hookState) Reset()               {}
func (s *hookState) Init(*Schedule)       {}
func (s *hookState) Update(step uint64)   { s.record(fmt.Sprintf("update:%d", step)) }
func (s *hookState) BeforeStep(*Schedule) { s.record("before") }
func (s *hookState) AfterStep(*Schedule)  { s.record("after") }

func (s *hookState) record(ev string) {
	s.mu.Lock()
	s.log = append(s.log, ev)
	s.mu.Unlock()
}

func TestHookOrder(t *testing.T) {
	st := &hookState{}
	s := New()
	s.ScheduleRepeating(&funcAgent{step: func(state State) {
		state.(*hookState).record("agent")
	}}, 0, 0)

	s.Step(st)

	want := []string{"before", "update:0", "agent", "update:1", "after"}
	if len(st.log) != len(want) {
		t.Fatalf("expected hook log %v, got %v", want, st.log)
	}
	for i := range want {
		if st.log[i] != want[i] {
			t.Fatalf("expected hook log %v, got %v", want, st.log)
		}
	}
}

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()
	s := NewWithConfig(Config{Metrics: m})
	s.ScheduleRepeating(&removableAgent{stepsLeft: 1}, 0, 0)
	s.ScheduleRepeating(&funcAgent{step: func(State) {}}, 0, 0)

	s.Simulate(nopState{}, 2)

	snap := m.Snapshot()
	if snap.Ticks != 2 {
		t.Fatalf("expected 2 ticks, got %d", snap.Ticks)
	}
	if snap.Stepped != 3 {
		t.Fatalf("expected 3 agent steps, got %d", snap.Stepped)
	}
	if snap.Removed != 1 {
		t.Fatalf("expected 1 removal, got %d", snap.Removed)
	}
}

func TestNewlyScheduledTracksMidRunArrivals(t *testing.T) {
	s := New()
	st := nopState{}
	s.ScheduleRepeating(&funcAgent{step: func(State) {}}, 0, 0)
	s.Step(st)

	if len(s.NewlyScheduled()) != 0 {
		t.Fatalf("expected scratch list cleared at end of tick")
	}

	spawner := &funcAgent{}
	spawner.step = func(State) {
		h := s.NewHandle(&funcAgent{step: func(State) {}})
		s.ScheduleOnce(h, s.Time()+2, 0)
	}
	// Scheduling between ticks: the agent enters the scratch list at once and
	// stays there until the end of the next tick.
	s.ScheduleRepeating(spawner, s.Time()+1, 0)
	if len(s.NewlyScheduled()) != 1 {
		t.Fatalf("expected the spawner in the scratch list, got %d", len(s.NewlyScheduled()))
	}
}
