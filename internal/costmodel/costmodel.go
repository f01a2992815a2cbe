// Package costmodel replays a candidate schedule against a problem and
// reports its makespan and energy consumption.
package costmodel

import (
	"errors"
	"fmt"
	"sync"

	"github.com/joshharrison/paretoloom/internal/chrom"
	"github.com/joshharrison/paretoloom/internal/problem"
)

var (
	// ErrNoProblem is returned when the simulator has no tables to read.
	ErrNoProblem = errors.New("cost model used before a problem was loaded")
	// ErrStalled is returned when a full readiness pass finalizes no task.
	ErrStalled = errors.New("readiness scan made no progress")
)

// Breakdown is the result of one simulation.
type Breakdown struct {
	Makespan float64 `json:"makespan"`
	Active   float64 `json:"active"`
	Static   float64 `json:"static"`
	Comm     float64 `json:"comm"`
}

// Energy is the total of the three energy components.
func (b Breakdown) Energy() float64 { return b.Active + b.Static + b.Comm }

// Fitness returns the (makespan, energy) objective pair.
func (b Breakdown) Fitness() chrom.Fitness {
	return chrom.Fitness{Makespan: b.Makespan, Energy: b.Energy()}
}

// Slot is one task placement in a simulated schedule.
type Slot struct {
	Task   int     `json:"task"`
	Core   int     `json:"core"`
	Level  int     `json:"level"`
	Start  float64 `json:"start"`
	Finish float64 `json:"finish"`
}

// Trace is a Breakdown plus every placement in the order it was finalized.
type Trace struct {
	Breakdown
	Slots []Slot    `json:"slots"`
	Busy  []float64 `json:"busy"` // active time per core
}

// Simulator evaluates chromosomes against a problem. It is safe for
// concurrent use; each call takes private scratch space from a pool.
type Simulator struct {
	p       *problem.Problem
	predVol [][]float64 // predVol[task][k] is the volume on Preds(task)[k] -> task
	predOff []int       // offset of task's predecessor edges in scratch.charged
	edges   int
	pool    sync.Pool
}

type scratch struct {
	finish   []float64 // per task, negative until finalized
	present  []bool    // per task
	coreOf   []int     // per task
	levelOf  []int     // per task
	done     []bool    // per position
	coreFree []float64 // per core
	busy     []float64 // per core
	comm     []float64 // per core pair, row-major
	charged  []bool    // per edge, communication already accumulated
}

// New returns a simulator bound to p. A nil p yields a simulator whose
// every call fails with ErrNoProblem.
func New(p *problem.Problem) *Simulator {
	s := &Simulator{p: p}
	if p == nil {
		return s
	}
	g := p.Graph
	s.predVol = make([][]float64, g.TaskCount())
	s.predOff = make([]int, g.TaskCount())
	for t := range s.predVol {
		s.predOff[t] = s.edges
		preds := g.Preds(t)
		s.predVol[t] = make([]float64, len(preds))
		for k, pred := range preds {
			s.predVol[t][k], _ = g.Volume(pred, t)
		}
		s.edges += len(preds)
	}
	n, m := g.TaskCount(), p.M()
	s.pool.New = func() any {
		return &scratch{
			finish:   make([]float64, n),
			present:  make([]bool, n),
			coreOf:   make([]int, n),
			levelOf:  make([]int, n),
			done:     make([]bool, n),
			coreFree: make([]float64, m),
			busy:     make([]float64, m),
			comm:     make([]float64, m*m),
			charged:  make([]bool, s.edges),
		}
	}
	return s
}

// Problem returns the problem the simulator reads.
func (s *Simulator) Problem() *problem.Problem { return s.p }

// Simulate computes the makespan and energy breakdown of c. Candidates
// shorter than the task count are partial: predecessors outside c are
// treated as already satisfied.
func (s *Simulator) Simulate(c chrom.Chromosome) (Breakdown, error) {
	return s.run(c, nil)
}

// Trace simulates c and also records every task placement.
func (s *Simulator) Trace(c chrom.Chromosome) (*Trace, error) {
	tr := &Trace{Slots: make([]Slot, 0, c.Len())}
	b, err := s.run(c, tr)
	if err != nil {
		return nil, err
	}
	tr.Breakdown = b
	return tr, nil
}

// Evaluate simulates c and stores the resulting fitness on it.
func (s *Simulator) Evaluate(c *chrom.Chromosome) error {
	b, err := s.Simulate(*c)
	if err != nil {
		return err
	}
	c.SetFitness(b.Fitness())
	return nil
}

func (s *Simulator) run(c chrom.Chromosome, tr *Trace) (Breakdown, error) {
	if s == nil || s.p == nil {
		return Breakdown{}, ErrNoProblem
	}
	g, plat := s.p.Graph, s.p.Platform
	m := s.p.M()
	n := c.Len()
	if n > g.TaskCount() {
		return Breakdown{}, fmt.Errorf("%w: %d positions for %d tasks", chrom.ErrInvalid, n, g.TaskCount())
	}
	if err := c.Validate(m, s.p.H()); err != nil {
		return Breakdown{}, err
	}

	sc := s.pool.Get().(*scratch)
	defer s.pool.Put(sc)
	sc.reset()

	for i, t := range c.Tasks {
		sc.present[t] = true
		sc.coreOf[t] = c.Cores[i]
		sc.levelOf[t] = c.Levels[i]
	}

	var makespan float64
	remaining := n
	for remaining > 0 {
		progressed := false
		for i := 0; i < n; i++ {
			if sc.done[i] {
				continue
			}
			task, core := c.Tasks[i], c.Cores[i]

			ready, ok := 0.0, true
			for k, pred := range g.Preds(task) {
				if !sc.present[pred] {
					continue
				}
				if sc.finish[pred] < 0 {
					ok = false
					continue
				}
				arrival := sc.finish[pred]
				if pc := sc.coreOf[pred]; pc != core {
					trans := s.predVol[task][k] / plat.Bandwidth(pc, core)
					if e := s.predOff[task] + k; !sc.charged[e] {
						sc.comm[pc*m+core] += trans
						sc.charged[e] = true
					}
					arrival += trans + plat.Startup(core)
				}
				if arrival > ready {
					ready = arrival
				}
			}
			if !ok {
				continue
			}

			exec := s.p.ExecTime(task, core, c.Levels[i])
			start := ready
			if sc.coreFree[core] > start {
				start = sc.coreFree[core]
			}
			sc.finish[task] = start + exec
			sc.coreFree[core] = sc.finish[task]
			sc.busy[core] += exec
			if sc.finish[task] > makespan {
				makespan = sc.finish[task]
			}
			if tr != nil {
				tr.Slots = append(tr.Slots, Slot{Task: task, Core: core, Level: c.Levels[i], Start: start, Finish: sc.finish[task]})
			}
			sc.done[i] = true
			remaining--
			progressed = true
		}
		if !progressed {
			return Breakdown{}, fmt.Errorf("%w: %d of %d tasks never became ready", ErrStalled, remaining, n)
		}
	}

	b := Breakdown{Makespan: makespan}
	for i, t := range c.Tasks {
		v := plat.Voltage(c.Cores[i], c.Levels[i])
		b.Active += plat.Capacitance * v * v * float64(g.Cycles(t, c.Cores[i]))
	}
	b.Active *= plat.ActiveScale
	for core := 0; core < m; core++ {
		b.Static += (makespan - sc.busy[core]) * plat.IdlePower(core)
	}
	for a := 0; a < m; a++ {
		for d := 0; d < m; d++ {
			if t := sc.comm[a*m+d]; t != 0 {
				b.Comm += t * (plat.Hops(a, d)*plat.LinkEnergy + plat.RouterEnergy)
			}
		}
	}
	if tr != nil {
		tr.Busy = append([]float64(nil), sc.busy...)
	}
	return b, nil
}

func (sc *scratch) reset() {
	for i := range sc.finish {
		sc.finish[i] = -1
		sc.present[i] = false
		sc.done[i] = false
	}
	for i := range sc.coreFree {
		sc.coreFree[i] = 0
		sc.busy[i] = 0
	}
	for i := range sc.comm {
		sc.comm[i] = 0
	}
	for i := range sc.charged {
		sc.charged[i] = false
	}
}
