package engine

// State is the contract between the schedule and the user-supplied
// simulation state. A state owns the fields agents read and write and is
// responsible for publishing them at the tick barrier.
type State interface {
	// Reset reinitializes all fields and internal counters to the known
	// pre-init baseline.
	Reset()
	// Init populates the initial agents and field contents. It may schedule
	// agents on the schedule passed.
	Init(s *Schedule)
	// Update is the publication barrier: it must call Update (or LazyUpdate)
	// on every field owned by the state. After it returns, the read views of
	// all fields reflect every write staged during the tick.
	Update(step uint64)
}

// BeforeStepper is implemented by states that want a hook at the start of
// every tick, before any event fires.
type BeforeStepper interface {
	BeforeStep(s *Schedule)
}

// AfterStepper is implemented by states that want a hook at the end of every
// tick, after the publication barrier.
type AfterStepper interface {
	AfterStep(s *Schedule)
}
