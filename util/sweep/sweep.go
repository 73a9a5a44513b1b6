// Package sweep provides the driver helpers around the engine core:
// parameter generation, timed simulation runs with repetitions, and CSV
// export of benchmark results.
package sweep

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/constraints"
	"golang.org/x/sync/errgroup"

	"github.com/goab-dev/goab/engine"
)

// GenParam returns n values drawn uniformly from [min, max). Inverted bounds
// are swapped; equal bounds are widened by one so the interval is never
// empty.
func GenParam[T constraints.Integer | constraints.Float](min, max T, n int) []T {
	if min > max {
		min, max = max, min
	}
	if min == max {
		max = min + 1
	}
	out := make([]T, n)
	span := float64(max) - float64(min)
	for i := range out {
		out[i] = min + T(rand.Float64()*span)
	}
	return out
}

// Setup builds a fresh schedule and state for one run of a configuration.
// The state is initialized by the runner before the first tick.
type Setup func() (*engine.Schedule, engine.State)

// Config holds the parameters of a benchmark run.
type Config struct {
	// Steps is the number of ticks per run.
	Steps int
	// Repetitions is the number of runs per configuration. Defaults to 1.
	Repetitions int
	// Log reports per-run timing. If nil, Log is set to slog.Default().
	Log *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.Repetitions < 1 {
		c.Repetitions = 1
	}
	if c.Log == nil {
		c.Log = slog.Default()
	}
	return c
}

// Result records one timed run.
type Result struct {
	RunID   uuid.UUID
	Threads int
	Agents  int
	Steps   uint64
	Seconds float64
}

// StepsPerSecond returns the tick rate of the run.
func (r Result) StepsPerSecond() float64 {
	if r.Seconds == 0 {
		return 0
	}
	return float64(r.Steps) / r.Seconds
}

// Run executes the configuration: for each repetition a fresh schedule and
// state are built by setup, the state initialized, and the simulation driven
// for the configured number of steps under a wall-clock timer.
func Run(cfg Config, setup Setup) []Result {
	cfg = cfg.withDefaults()
	results := make([]Result, 0, cfg.Repetitions)
	for rep := 0; rep < cfg.Repetitions; rep++ {
		sched, state := setup()
		state.Init(sched)
		agents := sched.Len()

		start := time.Now()
		sched.Simulate(state, cfg.Steps)
		elapsed := time.Since(start).Seconds()
		sched.Close()

		res := Result{
			RunID:   uuid.New(),
			Threads: sched.Threads(),
			Agents:  agents,
			Steps:   sched.Steps(),
			Seconds: elapsed,
		}
		results = append(results, res)
		cfg.Log.Info("simulation run finished",
			"run", res.RunID, "rep", rep+1,
			"threads", res.Threads, "agents", res.Agents,
			"steps", res.Steps, "seconds", res.Seconds,
			"steps_per_second", res.StepsPerSecond())
	}
	return results
}

// RunAll executes several configurations concurrently, at most limit at a
// time (every configuration at once when limit is 0 or less). Results are
// returned grouped per configuration, in input order.
func RunAll(cfg Config, setups []Setup, limit int) [][]Result {
	grouped := make([][]Result, len(setups))
	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, setup := range setups {
		g.Go(func() error {
			grouped[i] = Run(cfg, setup)
			return nil
		})
	}
	// Setups never return errors; the group is used purely as a join.
	_ = g.Wait()
	return grouped
}

// WriteCSV writes results as semicolon-separated rows of
// threads;n_agents;seconds, the format consumed by the scaling plots.
func WriteCSV(w io.Writer, results []Result) error {
	cw := csv.NewWriter(w)
	cw.Comma = ';'
	for _, r := range results {
		record := []string{
			fmt.Sprintf("%d", r.Threads),
			fmt.Sprintf("%d", r.Agents),
			fmt.Sprintf("%.2f", r.Seconds),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("sweep: write csv record: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
