// Command boids runs the flocking scaling benchmark: a population of birds
// stepped for a fixed number of ticks, timed, and optionally exported as
// semicolon-separated CSV rows for the scaling plots.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/pelletier/go-toml"
	"github.com/spf13/cobra"

	"github.com/goab-dev/goab/engine"
	"github.com/goab-dev/goab/sim/boids"
	"github.com/goab-dev/goab/util/sweep"
)

type benchConfig struct {
	Width          float64      `toml:"width"`
	Height         float64      `toml:"height"`
	Discretization float64      `toml:"discretization"`
	Params         boids.Params `toml:"params"`
}

func defaultConfig() benchConfig {
	return benchConfig{
		Width:          1008.0,
		Height:         1008.0,
		Discretization: 10.0 / 1.5,
		Params:         boids.DefaultParams(),
	}
}

func main() {
	var (
		threads    int
		agents     int
		steps      int
		reps       int
		configPath string
		csvPath    string
	)

	cmd := &cobra.Command{
		Use:          "boids",
		Short:        "Run the flocking scaling benchmark",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := slog.New(slog.NewTextHandler(os.Stderr, nil))

			conf := defaultConfig()
			if configPath != "" {
				data, err := os.ReadFile(configPath)
				if err != nil {
					return fmt.Errorf("read config: %w", err)
				}
				if err := toml.Unmarshal(data, &conf); err != nil {
					return fmt.Errorf("parse config: %w", err)
				}
			}
			if threads <= 0 {
				threads = runtime.NumCPU()
			}

			setup := func() (*engine.Schedule, engine.State) {
				var sched *engine.Schedule
				if threads == 1 {
					sched = engine.New()
				} else {
					sched = engine.WithThreads(threads)
				}
				state := boids.NewFlock(conf.Width, conf.Height, conf.Discretization, agents, conf.Params)
				return sched, state
			}

			results := sweep.Run(sweep.Config{Steps: steps, Repetitions: reps, Log: log}, setup)

			if csvPath != "" {
				f, err := os.Create(csvPath)
				if err != nil {
					return fmt.Errorf("create csv: %w", err)
				}
				defer f.Close()
				if err := sweep.WriteCSV(f, results); err != nil {
					return err
				}
				log.Info("results written", "path", csvPath, "rows", len(results))
				return nil
			}
			return sweep.WriteCSV(os.Stdout, results)
		},
	}

	cmd.Flags().IntVar(&threads, "nt", 0, "number of worker threads (0 derives from the host CPU count)")
	cmd.Flags().IntVar(&agents, "agents", 1000, "number of birds")
	cmd.Flags().IntVar(&steps, "steps", 50, "number of ticks per run")
	cmd.Flags().IntVar(&reps, "reps", 1, "repetitions per configuration")
	cmd.Flags().StringVar(&configPath, "config", "", "path to a TOML parameter file")
	cmd.Flags().StringVar(&csvPath, "csv", "", "path to write threads;n_agents;seconds rows to")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
