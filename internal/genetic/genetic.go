// Package genetic implements the permutation-safe variation operators.
//
// Operators take chromosomes by pointer and detach them from any shared
// storage before writing, so callers may pass values returned by selection.
package genetic

import (
	"fmt"
	"math/rand"

	"github.com/joshharrison/paretoloom/internal/chrom"
)

// PMX applies partially-mapped crossover to the permutations a and b over
// the inclusive segment [left, right], in place. Both must be permutations
// of 0..len-1 of equal length.
func PMX(a, b []int, left, right int) {
	n := len(a)
	mapA := make([]int, n)
	mapB := make([]int, n)
	for i := range mapA {
		mapA[i], mapB[i] = -1, -1
	}

	for i := left; i <= right; i++ {
		a[i], b[i] = b[i], a[i]
		if a[i] != b[i] {
			mapA[a[i]] = b[i]
			mapB[b[i]] = a[i]
		}
	}

	for i := 0; i < n; i++ {
		if i >= left && i <= right {
			continue
		}
		a[i] = follow(mapA, a[i])
		b[i] = follow(mapB, b[i])
	}
}

// follow chases v through the segment mapping until it reaches a value the
// segment does not claim.
func follow(mapping []int, v int) int {
	for steps := 0; mapping[v] != -1 && steps < len(mapping); steps++ {
		v = mapping[v]
	}
	return v
}

// CrossoverAt crosses x and y over the inclusive segment [left, right]: PMX
// on the task order, verbatim swap of cores and levels.
func CrossoverAt(x, y *chrom.Chromosome, left, right int) error {
	n := x.Len()
	if y.Len() != n {
		return fmt.Errorf("%w: crossover of lengths %d and %d", chrom.ErrInvalid, n, y.Len())
	}
	if left < 0 || right >= n || left > right {
		return fmt.Errorf("crossover segment [%d,%d] outside length %d", left, right, n)
	}

	*x, *y = x.Clone(), y.Clone()
	PMX(x.Tasks, y.Tasks, left, right)
	for i := left; i <= right; i++ {
		x.Cores[i], y.Cores[i] = y.Cores[i], x.Cores[i]
		x.Levels[i], y.Levels[i] = y.Levels[i], x.Levels[i]
	}
	x.Invalidate()
	y.Invalidate()
	return nil
}

// Crossover picks two distinct cut points uniformly and applies
// CrossoverAt. Chromosomes shorter than two positions are left unchanged.
func Crossover(x, y *chrom.Chromosome, rng *rand.Rand) error {
	n := x.Len()
	if n < 2 {
		return nil
	}
	left, right := distinctPair(rng, n)
	return CrossoverAt(x, y, left, right)
}

// MutateAt swaps the tasks at positions i and j and resamples the core and
// level at both positions uniformly from [0,m) and [0,h).
func MutateAt(c *chrom.Chromosome, i, j int, rng *rand.Rand, m, h int) {
	*c = c.Clone()
	c.Tasks[i], c.Tasks[j] = c.Tasks[j], c.Tasks[i]
	c.Cores[i] = rng.Intn(m)
	c.Cores[j] = rng.Intn(m)
	c.Levels[i] = rng.Intn(h)
	c.Levels[j] = rng.Intn(h)
	c.Invalidate()
}

// Mutate applies MutateAt at two distinct random positions. A single-task
// chromosome only has its core and level resampled.
func Mutate(c *chrom.Chromosome, rng *rand.Rand, m, h int) {
	switch n := c.Len(); {
	case n == 0:
		return
	case n == 1:
		MutateAt(c, 0, 0, rng, m, h)
	default:
		i, j := distinctPair(rng, n)
		MutateAt(c, i, j, rng, m, h)
	}
}

// RandomSequence returns a uniformly random permutation of 0..n-1.
func RandomSequence(rng *rand.Rand, n int) []int {
	return rng.Perm(n)
}

// distinctPair returns two distinct indices in [0,n), smaller first.
func distinctPair(rng *rand.Rand, n int) (int, int) {
	i := rng.Intn(n)
	j := rng.Intn(n - 1)
	if j >= i {
		j++
	}
	if i > j {
		i, j = j, i
	}
	return i, j
}
