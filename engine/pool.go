package engine

import (
	"sync"
)

// workerPool is the fixed set of workers a parallel schedule dispatches its
// tick batches to. Workers are goroutines created once at schedule
// construction and fed through command channels; each tick is a fork-join
// scope over them.
type workerPool struct {
	sched   *Schedule
	workers []*stepWorker

	closeOnce sync.Once
}

type stepWorker struct {
	jobs chan stepJob
	done chan struct{}
}

type stepJob struct {
	state State
	batch []eventPair
	resp  chan stepResult
}

type stepResult struct {
	reschedule []eventPair
	panicked   any
}

func newWorkerPool(s *Schedule, n int) *workerPool {
	p := &workerPool{
		sched:   s,
		workers: make([]*stepWorker, n),
	}
	for i := range p.workers {
		w := &stepWorker{
			jobs: make(chan stepJob),
			done: make(chan struct{}),
		}
		p.workers[i] = w
		go p.loop(w)
	}
	return p
}

func (p *workerPool) loop(w *stepWorker) {
	defer close(w.done)
	for job := range w.jobs {
		job.resp <- p.run(job)
	}
}

func (p *workerPool) run(job stepJob) (res stepResult) {
	defer func() {
		if r := recover(); r != nil {
			res.panicked = r
		}
	}()
	res.reschedule = p.sched.runAgents(job.state, job.batch)
	return res
}

// step partitions the batch round-robin across the workers, dispatches the
// chunks and blocks until every worker finishes. Reschedule vectors are
// concatenated for the caller to merge under the queue lock. An agent panic
// is surfaced after the join, before any reschedule is merged back into the
// queue.
func (p *workerPool) step(state State, batch []eventPair) []eventPair {
	n := len(p.workers)
	chunks := make([][]eventPair, n)
	per := len(batch)/n + 1
	for i := range chunks {
		chunks[i] = make([]eventPair, 0, per)
	}
	for i, ev := range batch {
		chunks[i%n] = append(chunks[i%n], ev)
	}

	resp := make(chan stepResult, n)
	dispatched := 0
	for i, chunk := range chunks {
		if len(chunk) == 0 {
			continue
		}
		p.workers[i].jobs <- stepJob{state: state, batch: chunk, resp: resp}
		dispatched++
	}

	var (
		panicked   any
		reschedule = make([]eventPair, 0, len(batch))
	)
	for i := 0; i < dispatched; i++ {
		res := <-resp
		if res.panicked != nil && panicked == nil {
			panicked = res.panicked
		}
		reschedule = append(reschedule, res.reschedule...)
	}
	if panicked != nil {
		p.sched.log.Error("agent step failed", "step", p.sched.step, "time", p.sched.time, "err", panicked)
		panic(panicked)
	}
	return reschedule
}

// close stops the workers and waits for them to drain their current job.
func (p *workerPool) close() {
	p.closeOnce.Do(func() {
		for _, w := range p.workers {
			close(w.jobs)
		}
		for _, w := range p.workers {
			<-w.done
		}
	})
}
