package localsearch

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/rs/zerolog"

	"github.com/joshharrison/paretoloom/internal/chrom"
	"github.com/joshharrison/paretoloom/internal/costmodel"
	"github.com/joshharrison/paretoloom/internal/graph"
	"github.com/joshharrison/paretoloom/internal/platform"
	"github.com/joshharrison/paretoloom/internal/problem"
)

// newSimulator builds a chain of n tasks on two cores with two levels. Level
// 1 is faster and uses a lower voltage, so it dominates level 0.
func newSimulator(t *testing.T, n int) *costmodel.Simulator {
	t.Helper()
	tasks := make([]graph.Task, n)
	var edges []graph.Edge
	for i := range tasks {
		tasks[i] = graph.Task{ID: i, Cycles: []int64{10, 10}}
		if i > 0 {
			edges = append(edges, graph.Edge{From: i - 1, To: i, Volume: 1})
		}
	}
	g, err := graph.Build(tasks, edges)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	plat := &platform.Platform{DefaultBandwidth: 1, Capacitance: 0.01, LinkEnergy: 1, RouterEnergy: 1}
	for c := 0; c < 2; c++ {
		plat.Cores = append(plat.Cores, platform.Core{
			IdlePower: 0.1,
			Startup:   1,
			Levels:    []platform.Level{{Frequency: 1, Voltage: 2}, {Frequency: 2, Voltage: 1}},
		})
	}
	if err := plat.Normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	p, err := problem.New(g, plat)
	if err != nil {
		t.Fatalf("problem: %v", err)
	}
	return costmodel.New(p)
}

func newSearcher(sim costmodel.Evaluator, total int, seed int64) *Searcher {
	return &Searcher{
		Eval:     sim,
		Capacity: 200,
		Total:    total,
		Cores:    2,
		Levels:   2,
		Workers:  2,
		Rng:      rand.New(rand.NewSource(seed)),
		Log:      zerolog.Nop(),
	}
}

func slowBaseline(t *testing.T, sim *costmodel.Simulator, n int) chrom.Chromosome {
	t.Helper()
	c := chrom.New(n)
	if err := sim.Evaluate(&c); err != nil {
		t.Fatalf("evaluate baseline: %v", err)
	}
	return c
}

func TestRefine_PrefersDominator(t *testing.T) {
	sim := newSimulator(t, 1)
	baseline := slowBaseline(t, sim, 1)

	best, discovered, err := newSearcher(sim, 1, 1).Refine(context.Background(), baseline)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if best.Levels[0] != 1 {
		t.Errorf("expected the faster, cheaper level, got %v", best.Levels)
	}
	if len(discovered) == 0 {
		t.Fatal("expected complete neighbours to be reported")
	}
	for _, c := range discovered {
		if !c.Evaluated() || c.Len() != 1 {
			t.Errorf("discovered member not a complete evaluated schedule: %v", c)
		}
	}
}

func TestRefine_KeepsTaskOrder(t *testing.T) {
	sim := newSimulator(t, 5)
	rng := rand.New(rand.NewSource(3))
	for trial := 0; trial < 10; trial++ {
		baseline := chrom.Random(rng, 5, 2, 2)
		if err := sim.Evaluate(&baseline); err != nil {
			t.Fatalf("evaluate: %v", err)
		}
		best, discovered, err := newSearcher(sim, 5, int64(trial)).Refine(context.Background(), baseline)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for i := range baseline.Tasks {
			if best.Tasks[i] != baseline.Tasks[i] {
				t.Fatalf("task order changed: %v -> %v", baseline.Tasks, best.Tasks)
			}
		}
		if !best.Evaluated() {
			t.Error("best must carry a valid fitness")
		}
		if len(discovered) == 0 {
			t.Error("expected discoveries for complete schedules")
		}
	}
}

func TestRefine_Deterministic(t *testing.T) {
	sim := newSimulator(t, 4)
	baseline := slowBaseline(t, sim, 4)

	a, _, err := newSearcher(sim, 4, 42).Refine(context.Background(), baseline)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, _, err := newSearcher(sim, 4, 42).Refine(context.Background(), baseline)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !chrom.SameSchedule(a, b) {
		t.Errorf("same seed gave different results: %v vs %v", a, b)
	}
}

func TestRefine_PartialCandidate(t *testing.T) {
	sim := newSimulator(t, 4)
	baseline := slowBaseline(t, sim, 2)

	best, discovered, err := newSearcher(sim, 4, 7).Refine(context.Background(), baseline)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(discovered) != 0 {
		t.Errorf("partial neighbours must not reach the archive, got %d", len(discovered))
	}
	if best.Len() != 2 {
		t.Errorf("expected a partial result of length 2, got %d", best.Len())
	}
}

func TestRefine_Empty(t *testing.T) {
	sim := newSimulator(t, 1)
	best, discovered, err := newSearcher(sim, 1, 1).Refine(context.Background(), chrom.New(0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if best.Len() != 0 || len(discovered) != 0 {
		t.Errorf("expected a no-op, got %v and %d discoveries", best, len(discovered))
	}
}

type failingEvaluator struct{}

func (failingEvaluator) Evaluate(*chrom.Chromosome) error { return costmodel.ErrNoProblem }

func TestRefine_EvaluatorError(t *testing.T) {
	_, _, err := newSearcher(failingEvaluator{}, 3, 1).Refine(context.Background(), chrom.New(3))
	if !errors.Is(err, costmodel.ErrNoProblem) {
		t.Fatalf("expected ErrNoProblem, got %v", err)
	}
}

func TestRefine_Cancelled(t *testing.T) {
	sim := newSimulator(t, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := newSearcher(sim, 3, 1).Refine(ctx, slowBaseline(t, sim, 3))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestPickByGate_ReturnsSurvivor(t *testing.T) {
	s := newSearcher(nil, 1, 5)
	survivors := make([]chrom.Chromosome, 3)
	for i := range survivors {
		survivors[i] = chrom.New(1)
		survivors[i].SetFitness(chrom.Fitness{Makespan: float64(3 - i), Energy: float64(i)})
	}
	counts := make(map[float64]int)
	for i := 0; i < 400; i++ {
		counts[s.pickByGate(survivors).Fitness.Makespan]++
	}
	// Objective picks land on the extremes; uniform picks reach the middle too.
	if counts[1] == 0 || counts[3] == 0 || counts[2] == 0 {
		t.Errorf("expected every survivor to be chosen at least once, got %v", counts)
	}
	if counts[2] >= counts[1] || counts[2] >= counts[3] {
		t.Errorf("middle survivor should only come from uniform picks, got %v", counts)
	}
}
