// Package pareto holds the dominance bookkeeping of the search: front
// extraction, the bounded archive, non-dominated sorting and crowding
// distance.
//
// Functions return chromosome values that share sequence storage with their
// input. Evaluated chromosomes are never modified in place by the search, so
// this is safe.
package pareto

import (
	"math"
	"math/rand"
	"sort"

	"github.com/joshharrison/paretoloom/internal/chrom"
)

// BoundaryDistance is the crowding distance given to the extremes of a front.
const BoundaryDistance = math.MaxFloat64

// Dominates reports whether x is no worse than y in both objectives and
// strictly better in at least one.
func Dominates(x, y chrom.Fitness) bool {
	return (x.Makespan <= y.Makespan && x.Energy < y.Energy) ||
		(x.Makespan < y.Makespan && x.Energy <= y.Energy)
}

// ExtractNondominated returns the members of set that no other member
// dominates, in input order. Of several members with identical objectives
// only the first is kept.
func ExtractNondominated(set []chrom.Chromosome) []chrom.Chromosome {
	out := make([]chrom.Chromosome, 0, len(set))
	for i := range set {
		if dominated(set, i) {
			continue
		}
		dup := false
		for _, kept := range out {
			if chrom.SameObjectives(kept, set[i]) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, set[i])
		}
	}
	return out
}

func dominated(set []chrom.Chromosome, i int) bool {
	for j := range set {
		if i != j && Dominates(set[j].Fitness, set[i].Fitness) {
			return true
		}
	}
	return false
}

// ExtractBounded applies ExtractNondominated and, when more than capacity
// members remain, keeps a uniform random sample of capacity of them in
// their original relative order.
func ExtractBounded(set []chrom.Chromosome, capacity int, rng *rand.Rand) []chrom.Chromosome {
	front := ExtractNondominated(set)
	if capacity <= 0 {
		return front[:0]
	}
	if len(front) <= capacity {
		return front
	}
	idx := rng.Perm(len(front))[:capacity]
	sort.Ints(idx)
	out := make([]chrom.Chromosome, capacity)
	for i, k := range idx {
		out[i] = front[k]
	}
	return out
}

// FastNondominatedSort peels successive non-dominated layers off set.
// fronts[r] holds the members of rank r, in input order, with Rank set.
// The input slice is not modified.
func FastNondominatedSort(set []chrom.Chromosome) [][]chrom.Chromosome {
	removed := make([]bool, len(set))
	var fronts [][]chrom.Chromosome
	for count := 0; count < len(set); {
		var layer []int
		for i := range set {
			if removed[i] {
				continue
			}
			free := true
			for j := range set {
				if i == j || removed[j] {
					continue
				}
				if Dominates(set[j].Fitness, set[i].Fitness) {
					free = false
					break
				}
			}
			if free {
				layer = append(layer, i)
			}
		}

		rank := len(fronts)
		front := make([]chrom.Chromosome, len(layer))
		for k, i := range layer {
			front[k] = set[i]
			front[k].Rank = rank
			removed[i] = true
		}
		fronts = append(fronts, front)
		count += len(layer)
	}
	return fronts
}

// CrowdingDistance assigns every member of front its unnormalized crowding
// distance and leaves front sorted by distance, largest first. For each
// objective the extremes get BoundaryDistance and interior members add the
// objective gap between their neighbours.
func CrowdingDistance(front []chrom.Chromosome) {
	n := len(front)
	if n == 0 {
		return
	}
	for i := range front {
		front[i].Crowding = 0
	}

	objectives := []struct {
		sort  func([]chrom.Chromosome)
		value func(chrom.Chromosome) float64
	}{
		{chrom.SortByMakespan, func(c chrom.Chromosome) float64 { return c.Fitness.Makespan }},
		{chrom.SortByEnergy, func(c chrom.Chromosome) float64 { return c.Fitness.Energy }},
	}
	for _, obj := range objectives {
		obj.sort(front)
		front[0].Crowding = BoundaryDistance
		front[n-1].Crowding = BoundaryDistance
		for i := 1; i < n-1; i++ {
			if front[i].Crowding == BoundaryDistance {
				continue
			}
			front[i].Crowding += obj.value(front[i+1]) - obj.value(front[i-1])
		}
	}
	chrom.SortByCrowding(front)
}

// BinaryTournament returns the member with the lower rank, or on equal
// rank the one with the larger crowding distance. Ties go to a.
func BinaryTournament(a, b chrom.Chromosome) chrom.Chromosome {
	if a.Rank < b.Rank {
		return a
	}
	if a.Rank == b.Rank && a.Crowding >= b.Crowding {
		return a
	}
	return b
}
