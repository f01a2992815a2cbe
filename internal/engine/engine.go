// Package engine runs the LS-NSGA search: NSGA-II generations over a
// population of schedules, an external bounded Pareto archive and an
// occasional local search pass on an elite member.
package engine

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/joshharrison/paretoloom/internal/chrom"
	"github.com/joshharrison/paretoloom/internal/costmodel"
	"github.com/joshharrison/paretoloom/internal/genetic"
	"github.com/joshharrison/paretoloom/internal/localsearch"
	"github.com/joshharrison/paretoloom/internal/pareto"
	"github.com/joshharrison/paretoloom/internal/problem"
)

// Engine runs independent searches over one problem. It is not safe for
// concurrent use; evaluations inside a generation run in parallel.
type Engine struct {
	Problem *problem.Problem
	Config  Config

	sim  *costmodel.Simulator
	rng  *rand.Rand
	seed int64
	runs int
}

// New creates an Engine. Zero-valued sizes take their defaults;
// probabilities are used as given.
func New(p *problem.Problem, cfg Config) (*Engine, error) {
	if p == nil {
		return nil, costmodel.ErrNoProblem
	}
	if cfg.Population == 0 {
		cfg.Population = DefaultPopulation
	}
	if cfg.ArchiveCapacity == 0 {
		cfg.ArchiveCapacity = DefaultArchiveCapacity
	}
	if cfg.Runs == 0 {
		cfg.Runs = DefaultRuns
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Engine{
		Problem: p,
		Config:  cfg,
		sim:     costmodel.New(p),
		rng:     rand.New(rand.NewSource(seed)),
		seed:    seed,
	}, nil
}

// Seed returns the seed of the engine's random stream.
func (e *Engine) Seed() int64 { return e.seed }

// RunAll performs Config.Runs independent runs, handing each result to fn.
func (e *Engine) RunAll(ctx context.Context, fn func(*RunResult) error) error {
	for i := 0; i < e.Config.Runs; i++ {
		res, err := e.Run(ctx)
		if err != nil {
			return fmt.Errorf("run %d: %w", i+1, err)
		}
		if fn != nil {
			if err := fn(res); err != nil {
				return err
			}
		}
	}
	return nil
}

// Run performs one independent run from a fresh random population and
// returns the final archive, deduplicated and sorted by makespan.
func (e *Engine) Run(ctx context.Context) (*RunResult, error) {
	cfg := e.Config
	n, m, h := e.Problem.N(), e.Problem.M(), e.Problem.H()
	res := &RunResult{
		ID:      uuid.NewString(),
		Index:   e.runs,
		Seed:    e.seed,
		Started: time.Now(),
	}
	e.runs++
	log := cfg.Log.With().Str("run", res.ID).Int("index", res.Index).Logger()
	log.Info().Int("tasks", n).Int("cores", m).Int("levels", h).
		Int("population", cfg.Population).Int("generations", cfg.Generations).
		Msg("run started")

	searcher := &localsearch.Searcher{
		Eval:     e.sim,
		Capacity: cfg.ArchiveCapacity,
		Total:    n,
		Cores:    m,
		Levels:   h,
		Workers:  cfg.Workers,
		Rng:      e.rng,
		Log:      log,
	}

	pop := make([]chrom.Chromosome, cfg.Population)
	for i := range pop {
		pop[i] = chrom.Random(e.rng, n, m, h)
	}
	if err := e.evaluate(ctx, pop, res); err != nil {
		return nil, fmt.Errorf("initial population: %w", err)
	}

	var archive []chrom.Chromosome
	for gen := 0; gen < cfg.Generations; gen++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("cancelled after %d generations: %w", gen, err)
		}

		archive = pareto.ExtractBounded(append(archive, pop...), cfg.ArchiveCapacity, e.rng)

		offspring, err := e.offspring(pop)
		if err != nil {
			return nil, fmt.Errorf("generation %d: %w", gen, err)
		}
		if err := e.evaluate(ctx, offspring, res); err != nil {
			return nil, fmt.Errorf("generation %d: %w", gen, err)
		}

		combined := make([]chrom.Chromosome, 0, len(pop)+len(offspring))
		combined = append(combined, pop...)
		combined = append(combined, offspring...)
		fronts := pareto.FastNondominatedSort(combined)
		pop = truncate(fronts, cfg.Population)

		ls := e.rng.Float64() < cfg.LocalSearch
		if ls {
			target := fronts[0][e.rng.Intn(len(fronts[0]))]
			cfg.Metrics.IncLocalSearch()
			_, found, err := searcher.Refine(ctx, target)
			evals := int64(target.Len() * m * h)
			res.Evaluations += evals
			cfg.Metrics.AddEvaluations(int(evals))
			if err != nil {
				return nil, fmt.Errorf("generation %d local search: %w", gen, err)
			}
			archive = append(archive, found...)
			res.LocalSearches++
		}

		res.Generations++
		cfg.Metrics.IncGeneration()
		cfg.Metrics.ObserveArchive(archive)
		stats := GenerationStats{
			RunID:       res.ID,
			Run:         res.Index,
			Generation:  gen,
			FrontSize:   len(fronts[0]),
			ArchiveSize: len(archive),
			Evaluations: res.Evaluations,
			LocalSearch: ls,
		}
		log.Debug().Int("generation", gen).Int("front", stats.FrontSize).
			Int("archive", stats.ArchiveSize).Bool("local_search", ls).Msg("generation complete")
		if cfg.OnGeneration != nil {
			cfg.OnGeneration(stats)
		}
	}

	archive = pareto.ExtractNondominated(append(archive, pop...))
	chrom.SortByMakespan(archive)
	res.Archive = archive
	res.Duration = time.Since(res.Started)
	cfg.Metrics.ObserveRun(res.Duration)

	log.Info().Int("archive", len(archive)).Dur("duration", res.Duration).
		Int64("evaluations", res.Evaluations).Msg("run finished")
	return res, nil
}

func (e *Engine) evaluate(ctx context.Context, set []chrom.Chromosome, res *RunResult) error {
	if err := costmodel.EvaluateAll(ctx, e.sim, set, e.Config.Workers); err != nil {
		return err
	}
	res.Evaluations += int64(len(set))
	e.Config.Metrics.AddEvaluations(len(set))
	return nil
}

// offspring builds len(pop) children. Each block of four entries of two
// random permutations yields two tournament winners per permutation, which
// are crossed with the configured probability. Leftover slots are filled
// the same way from the tail of the permutations. Every child is then
// mutated with the configured probability.
func (e *Engine) offspring(pop []chrom.Chromosome) ([]chrom.Chromosome, error) {
	size := len(pop)
	a1 := genetic.RandomSequence(e.rng, size)
	a2 := genetic.RandomSequence(e.rng, size)
	out := make([]chrom.Chromosome, 0, size+2)

	mate := func(i, j, k, l int) error {
		x := pareto.BinaryTournament(pop[i], pop[j])
		y := pareto.BinaryTournament(pop[k], pop[l])
		if e.rng.Float64() <= e.Config.Crossover {
			if err := genetic.Crossover(&x, &y, e.rng); err != nil {
				return err
			}
		}
		out = append(out, x, y)
		return nil
	}

	for i := 0; i+4 <= size; i += 4 {
		if err := mate(a1[i], a1[i+1], a1[i+2], a1[i+3]); err != nil {
			return nil, err
		}
		if err := mate(a2[i], a2[i+1], a2[i+2], a2[i+3]); err != nil {
			return nil, err
		}
	}
	for len(out) < size {
		if err := mate(a1[size-2], a1[size-1], a2[size-2], a2[size-1]); err != nil {
			return nil, err
		}
		a1 = genetic.RandomSequence(e.rng, size)
		a2 = genetic.RandomSequence(e.rng, size)
	}
	out = out[:size]

	m, h := e.Problem.M(), e.Problem.H()
	for i := range out {
		if e.rng.Float64() <= e.Config.Mutation {
			genetic.Mutate(&out[i], e.rng, m, h)
		}
	}
	return out, nil
}

// truncate fills the next population with whole fronts in rank order while
// they fit, then with the most isolated members of the first front that
// does not. Crowding distance is assigned to every front it touches.
func truncate(fronts [][]chrom.Chromosome, capacity int) []chrom.Chromosome {
	next := make([]chrom.Chromosome, 0, capacity)
	i := 0
	for ; i < len(fronts) && len(next)+len(fronts[i]) < capacity; i++ {
		pareto.CrowdingDistance(fronts[i])
		next = append(next, fronts[i]...)
	}
	if i < len(fronts) {
		pareto.CrowdingDistance(fronts[i])
		next = append(next, fronts[i][:capacity-len(next)]...)
	}
	return next
}
