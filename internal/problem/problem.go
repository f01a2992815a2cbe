// Package problem binds a task graph to a hardware platform. A Problem is
// read-only after New and may be shared by concurrent simulations.
package problem

import (
	"fmt"

	"github.com/joshharrison/paretoloom/internal/graph"
	"github.com/joshharrison/paretoloom/internal/platform"
)

// Problem is the immutable scheduling context.
type Problem struct {
	Graph    *graph.TaskGraph
	Platform *platform.Platform
}

// New validates that g and p agree on dimensions.
func New(g *graph.TaskGraph, p *platform.Platform) (*Problem, error) {
	if g == nil || p == nil {
		return nil, fmt.Errorf("problem needs both a task graph and a platform")
	}
	if g.TaskCount() == 0 {
		return nil, fmt.Errorf("task graph is empty")
	}
	m := p.NumCores()
	if m == 0 || p.NumLevels() == 0 {
		return nil, fmt.Errorf("platform has %d cores and %d levels", m, p.NumLevels())
	}
	for _, t := range g.Tasks {
		if len(t.Cycles) < m {
			return nil, fmt.Errorf("task %d has cycle counts for %d cores, platform has %d", t.ID, len(t.Cycles), m)
		}
		for c := 0; c < m; c++ {
			if t.Cycles[c] < 0 {
				return nil, fmt.Errorf("task %d has negative cycle count on core %d", t.ID, c)
			}
		}
	}
	return &Problem{Graph: g, Platform: p}, nil
}

// N returns the task count.
func (p *Problem) N() int { return p.Graph.TaskCount() }

// M returns the core count.
func (p *Problem) M() int { return p.Platform.NumCores() }

// H returns the DVFS level count.
func (p *Problem) H() int { return p.Platform.NumLevels() }

// ExecTime is cycles(task, core) / frequency(core, level).
func (p *Problem) ExecTime(task, core, level int) float64 {
	return float64(p.Graph.Cycles(task, core)) / p.Platform.Frequency(core, level)
}

// FastestTime returns the shortest execution time of task over every core
// and level.
func (p *Problem) FastestTime(task int) float64 {
	best := -1.0
	for c := 0; c < p.M(); c++ {
		d := float64(p.Graph.Cycles(task, c)) / p.Platform.MaxFrequency(c)
		if best < 0 || d < best {
			best = d
		}
	}
	return best
}
