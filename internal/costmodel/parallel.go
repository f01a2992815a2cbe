package costmodel

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/joshharrison/paretoloom/internal/chrom"
)

// Evaluator computes and stores the fitness of a chromosome.
type Evaluator interface {
	Evaluate(c *chrom.Chromosome) error
}

// EvaluateAll evaluates every member of set with at most workers concurrent
// evaluations (GOMAXPROCS when workers <= 0). Each goroutine writes only its
// own element. The first error cancels the remaining work and is returned.
func EvaluateAll(ctx context.Context, e Evaluator, set []chrom.Chromosome, workers int) error {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range set {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return e.Evaluate(&set[i])
		})
	}
	return g.Wait()
}
