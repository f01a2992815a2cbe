// Package localsearch refines a schedule by greedy hill-climbing over the
// (core, level) choice of each position.
package localsearch

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/rs/zerolog"

	"github.com/joshharrison/paretoloom/internal/chrom"
	"github.com/joshharrison/paretoloom/internal/costmodel"
	"github.com/joshharrison/paretoloom/internal/pareto"
)

// Searcher holds the neighbourhood dimensions and the evaluator.
type Searcher struct {
	Eval     costmodel.Evaluator
	Capacity int // bound on the non-dominated neighbours kept per position
	Total    int // task count; candidates of this length are complete schedules
	Cores    int
	Levels   int
	Workers  int
	Rng      *rand.Rand
	Log      zerolog.Logger
}

// Refine makes one pass over the positions of baseline. At each position it
// evaluates every (core, level) replacement on top of the current best,
// keeps the bounded non-dominated neighbours and moves to one of them.
// Complete neighbours are returned in discovered for the caller's archive.
func (s *Searcher) Refine(ctx context.Context, baseline chrom.Chromosome) (chrom.Chromosome, []chrom.Chromosome, error) {
	best := baseline.Clone()
	var discovered []chrom.Chromosome

	for i := 0; i < baseline.Len(); i++ {
		if err := ctx.Err(); err != nil {
			return best, discovered, err
		}

		candidates := s.neighbours(best, baseline.Tasks, i)
		if err := costmodel.EvaluateAll(ctx, s.Eval, candidates, s.Workers); err != nil {
			return best, discovered, fmt.Errorf("evaluating neighbours of position %d: %w", i, err)
		}
		survivors := pareto.ExtractBounded(candidates, s.Capacity, s.Rng)
		if len(survivors) == 0 {
			continue
		}

		if survivors[0].Len() == s.Total {
			discovered = append(discovered, survivors...)
			if next, ok := s.pickDominator(survivors, baseline); ok {
				best = next
				continue
			}
		}
		best = s.pickByGate(survivors)
	}

	s.Log.Debug().
		Float64("makespan", best.Fitness.Makespan).
		Float64("energy", best.Fitness.Energy).
		Int("discovered", len(discovered)).
		Msg("local search pass complete")
	return best, discovered, nil
}

// neighbours enumerates every (core, level) pair at position i of cur,
// keeping the task order of tasks.
func (s *Searcher) neighbours(cur chrom.Chromosome, tasks []int, i int) []chrom.Chromosome {
	out := make([]chrom.Chromosome, 0, s.Cores*s.Levels)
	for core := 0; core < s.Cores; core++ {
		for level := 0; level < s.Levels; level++ {
			c := cur.Clone()
			copy(c.Tasks, tasks)
			c.Cores[i] = core
			c.Levels[i] = level
			c.Invalidate()
			out = append(out, c)
		}
	}
	return out
}

// pickDominator returns a uniformly random survivor that dominates the
// original baseline.
func (s *Searcher) pickDominator(survivors []chrom.Chromosome, baseline chrom.Chromosome) (chrom.Chromosome, bool) {
	var dom []int
	for k, c := range survivors {
		if pareto.Dominates(c.Fitness, baseline.Fitness) {
			dom = append(dom, k)
		}
	}
	if len(dom) == 0 {
		return chrom.Chromosome{}, false
	}
	return survivors[dom[s.Rng.Intn(len(dom))]], true
}

// pickByGate chooses uniformly at random half of the time. Otherwise one
// objective is drawn and the first survivor minimising it wins.
func (s *Searcher) pickByGate(survivors []chrom.Chromosome) chrom.Chromosome {
	if s.Rng.Float64() <= 0.5 {
		return survivors[s.Rng.Intn(len(survivors))]
	}
	byMakespan := s.Rng.Float64() <= 0.5
	bi := 0
	for k := 1; k < len(survivors); k++ {
		if byMakespan {
			if survivors[k].Fitness.Makespan < survivors[bi].Fitness.Makespan {
				bi = k
			}
		} else if survivors[k].Fitness.Energy < survivors[bi].Fitness.Energy {
			bi = k
		}
	}
	return survivors[bi]
}
