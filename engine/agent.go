package engine

// Agent is the behaviour contract between the schedule and user code. Step
// is called once per fired event; it reads the state's fields through their
// read views and stages writes on their write views. Step must not call
// Update on any field; publication happens once per tick, in the schedule.
//
// Optional capabilities are discovered by type assertion: an Agent that also
// implements Remover or Reproducer takes part in removal and reproduction.
type Agent interface {
	Step(state State)
}

// Remover is implemented by agents that can decide to leave the schedule.
// ShouldRemove is evaluated after every Step; returning true removes the
// agent even if it was scheduled as repeating.
type Remover interface {
	ShouldRemove(state State) bool
}

// Reproducer is implemented by agents that can emit new agents. The children
// returned after a Step are scheduled at the parent's event time + 1 with
// the per-child options given. Returned agents must be fresh values, not
// agents already in the schedule.
type Reproducer interface {
	ShouldReproduce(state State) []Spawn
}

// Spawn pairs a new agent with its schedule options.
type Spawn struct {
	Agent   Agent
	Options ScheduleOptions
}

// ScheduleOptions specifies how a reproduced agent enters the schedule.
type ScheduleOptions struct {
	Ordering  int64
	Repeating bool
}

// AgentHandle pairs an agent value with its schedule-unique identity and
// repeating flag. The handle exclusively owns the agent value for the
// agent's lifetime in the schedule; fields reference agents by cheap copies
// of the handle or its id, never by sharing mutable state.
type AgentHandle struct {
	id        uint64
	agent     Agent
	repeating bool
}

// ID returns the schedule-unique identity of the agent.
func (h *AgentHandle) ID() uint64 { return h.id }

// Agent returns the agent value owned by the handle.
func (h *AgentHandle) Agent() Agent { return h.agent }

// Repeating reports whether the agent is rescheduled after every event.
func (h *AgentHandle) Repeating() bool { return h.repeating }
