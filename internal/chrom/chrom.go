// Package chrom defines the candidate schedule encoding shared by the cost
// model and the search operators.
package chrom

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
)

// Unranked marks a chromosome that has not been through non-dominated sorting.
const Unranked = -1

// ErrInvalid is returned by Validate for malformed chromosomes.
var ErrInvalid = errors.New("invalid chromosome")

// Fitness is the objective pair. Both objectives are minimised.
type Fitness struct {
	Makespan float64 `json:"makespan"`
	Energy   float64 `json:"energy"`
}

// Chromosome is an encoded schedule: position i runs task Tasks[i] on core
// Cores[i] at DVFS level Levels[i]. It is a value type; operators that
// modify a chromosome work on a Clone.
type Chromosome struct {
	Tasks  []int `json:"tasks"`
	Cores  []int `json:"cores"`
	Levels []int `json:"levels"`

	Fitness  Fitness `json:"fitness"`
	Rank     int     `json:"-"`
	Crowding float64 `json:"-"`

	evaluated bool
}

// New returns an unevaluated chromosome of length n with tasks in id order
// and every position on core 0, level 0.
func New(n int) Chromosome {
	c := Chromosome{
		Tasks:  make([]int, n),
		Cores:  make([]int, n),
		Levels: make([]int, n),
		Rank:   Unranked,
	}
	for i := range c.Tasks {
		c.Tasks[i] = i
	}
	return c
}

// Random returns a chromosome with a uniformly random task permutation and
// uniformly random core and level assignments.
func Random(rng *rand.Rand, n, m, h int) Chromosome {
	c := New(n)
	c.Tasks = rng.Perm(n)
	for i := 0; i < n; i++ {
		c.Cores[i] = rng.Intn(m)
		c.Levels[i] = rng.Intn(h)
	}
	return c
}

// Clone returns a deep copy, including fitness and search metadata.
func (c Chromosome) Clone() Chromosome {
	out := c
	out.Tasks = append([]int(nil), c.Tasks...)
	out.Cores = append([]int(nil), c.Cores...)
	out.Levels = append([]int(nil), c.Levels...)
	return out
}

// Len returns the number of encoded positions.
func (c Chromosome) Len() int { return len(c.Tasks) }

// Evaluated reports whether Fitness reflects the current encoding.
func (c Chromosome) Evaluated() bool { return c.evaluated }

// SetFitness stores f and marks the chromosome evaluated.
func (c *Chromosome) SetFitness(f Fitness) {
	c.Fitness = f
	c.evaluated = true
}

// Invalidate marks the fitness stale after the encoding changed.
func (c *Chromosome) Invalidate() {
	c.evaluated = false
	c.Rank = Unranked
	c.Crowding = 0
}

// Validate checks that the sequences have equal length, that Tasks is a
// permutation of 0..n-1 and that cores and levels are within [0,m) and [0,h).
func (c Chromosome) Validate(m, h int) error {
	n := len(c.Tasks)
	if len(c.Cores) != n || len(c.Levels) != n {
		return fmt.Errorf("%w: sequence lengths %d/%d/%d differ", ErrInvalid, n, len(c.Cores), len(c.Levels))
	}
	seen := make([]bool, n)
	for i, t := range c.Tasks {
		if t < 0 || t >= n {
			return fmt.Errorf("%w: task %d at position %d outside [0,%d)", ErrInvalid, t, i, n)
		}
		if seen[t] {
			return fmt.Errorf("%w: task %d appears twice", ErrInvalid, t)
		}
		seen[t] = true
		if c.Cores[i] < 0 || c.Cores[i] >= m {
			return fmt.Errorf("%w: core %d at position %d outside [0,%d)", ErrInvalid, c.Cores[i], i, m)
		}
		if c.Levels[i] < 0 || c.Levels[i] >= h {
			return fmt.Errorf("%w: level %d at position %d outside [0,%d)", ErrInvalid, c.Levels[i], i, h)
		}
	}
	return nil
}

// SameSchedule reports whether x and y encode the same schedule.
func SameSchedule(x, y Chromosome) bool {
	if x.Len() != y.Len() {
		return false
	}
	for i := range x.Tasks {
		if x.Tasks[i] != y.Tasks[i] || x.Cores[i] != y.Cores[i] || x.Levels[i] != y.Levels[i] {
			return false
		}
	}
	return true
}

// SameObjectives reports whether x and y have identical fitness.
func SameObjectives(x, y Chromosome) bool {
	return x.Fitness == y.Fitness
}

// SortByMakespan sorts set by makespan ascending, keeping the relative
// order of equal elements.
func SortByMakespan(set []Chromosome) {
	sort.SliceStable(set, func(i, j int) bool { return set[i].Fitness.Makespan < set[j].Fitness.Makespan })
}

// SortByEnergy sorts set by energy ascending.
func SortByEnergy(set []Chromosome) {
	sort.SliceStable(set, func(i, j int) bool { return set[i].Fitness.Energy < set[j].Fitness.Energy })
}

// SortByCrowding sorts set by crowding distance descending.
func SortByCrowding(set []Chromosome) {
	sort.SliceStable(set, func(i, j int) bool { return set[i].Crowding > set[j].Crowding })
}

func (c Chromosome) String() string {
	return fmt.Sprintf("task:%v core:%v level:%v makespan=%g energy=%g",
		c.Tasks, c.Cores, c.Levels, c.Fitness.Makespan, c.Fitness.Energy)
}
