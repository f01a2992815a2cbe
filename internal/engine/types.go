package engine

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/joshharrison/paretoloom/internal/chrom"
	"github.com/joshharrison/paretoloom/internal/metrics"
)

// Defaults for Config.
const (
	DefaultPopulation      = 50
	DefaultArchiveCapacity = 200
	DefaultCrossover       = 0.8
	DefaultMutation        = 0.2
	DefaultLocalSearch     = 0.5
	DefaultGenerations     = 500
	DefaultRuns            = 20
)

// Config holds engine configuration.
type Config struct {
	Population      int
	ArchiveCapacity int
	Crossover       float64 // probability a selected pair is crossed
	Mutation        float64 // probability an offspring is mutated
	LocalSearch     float64 // probability of a local search pass per generation
	Generations     int
	Runs            int
	Workers         int   // concurrent evaluations; 0 means GOMAXPROCS
	Seed            int64 // 0 picks a time-based seed

	Log          zerolog.Logger
	Metrics      *metrics.Collectors    // optional
	OnGeneration func(GenerationStats) // optional, called on the engine goroutine
}

// DefaultConfig returns the reference parameter set.
func DefaultConfig() Config {
	return Config{
		Population:      DefaultPopulation,
		ArchiveCapacity: DefaultArchiveCapacity,
		Crossover:       DefaultCrossover,
		Mutation:        DefaultMutation,
		LocalSearch:     DefaultLocalSearch,
		Generations:     DefaultGenerations,
		Runs:            DefaultRuns,
		Log:             zerolog.Nop(),
	}
}

// Validate rejects parameter sets the engine cannot run.
func (c Config) Validate() error {
	for name, p := range map[string]float64{
		"crossover":    c.Crossover,
		"mutation":     c.Mutation,
		"local search": c.LocalSearch,
	} {
		if p < 0 || p > 1 {
			return fmt.Errorf("%s probability %g outside [0,1]", name, p)
		}
	}
	if c.Population < 4 {
		return fmt.Errorf("population %d is below the minimum of 4", c.Population)
	}
	if c.ArchiveCapacity < 1 {
		return fmt.Errorf("archive capacity must be at least 1, got %d", c.ArchiveCapacity)
	}
	if c.Generations < 0 {
		return fmt.Errorf("generations must be non-negative, got %d", c.Generations)
	}
	if c.Runs < 1 {
		return fmt.Errorf("runs must be at least 1, got %d", c.Runs)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", c.Workers)
	}
	return nil
}

// GenerationStats is reported after every generation.
type GenerationStats struct {
	RunID       string
	Run         int
	Generation  int
	FrontSize   int // members of rank 0 in the combined population
	ArchiveSize int
	Evaluations int64
	LocalSearch bool
}

// RunResult is the outcome of one independent run.
type RunResult struct {
	ID            string
	Index         int
	Seed          int64
	Started       time.Time
	Duration      time.Duration
	Generations   int
	Evaluations   int64
	LocalSearches int
	Archive       []chrom.Chromosome // non-dominated, sorted by makespan ascending
}
