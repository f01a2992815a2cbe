package graph

import (
	"errors"
	"fmt"
	"sort"
)

// ErrCycle is returned when the precedence relation is not acyclic.
var ErrCycle = errors.New("dependency cycle detected")

// Build constructs a TaskGraph from tasks (whose IDs must be 0..len-1 in order)
// and precedence edges. Duplicate edges are merged, the later volume winning.
func Build(tasks []Task, edges []Edge) (*TaskGraph, error) {
	n := len(tasks)
	g := &TaskGraph{
		Tasks:  make([]Task, n),
		Adj:    make([][]int, n),
		RevAdj: make([][]int, n),
		volume: make(map[[2]int]float64, len(edges)),
	}

	for i, t := range tasks {
		if t.ID != i {
			return nil, fmt.Errorf("task at index %d has id %d: ids must be dense and ordered", i, t.ID)
		}
		g.Tasks[i] = Task{ID: i, Cycles: append([]int64(nil), t.Cycles...)}
	}

	for _, e := range edges {
		if e.From < 0 || e.From >= n || e.To < 0 || e.To >= n {
			return nil, fmt.Errorf("edge %d->%d references an unknown task (have %d)", e.From, e.To, n)
		}
		if e.From == e.To {
			return nil, fmt.Errorf("%w: [%d %d]", ErrCycle, e.From, e.To)
		}
		if e.Volume < 0 {
			return nil, fmt.Errorf("edge %d->%d has negative volume %g", e.From, e.To, e.Volume)
		}
		key := [2]int{e.From, e.To}
		if _, ok := g.volume[key]; !ok {
			g.Adj[e.From] = append(g.Adj[e.From], e.To)
			g.RevAdj[e.To] = append(g.RevAdj[e.To], e.From)
		}
		g.volume[key] = e.Volume
	}

	// Sort adjacency lists for deterministic ordering
	for i := 0; i < n; i++ {
		sort.Ints(g.Adj[i])
		sort.Ints(g.RevAdj[i])
		if len(g.RevAdj[i]) == 0 {
			g.Roots = append(g.Roots, i)
		}
		if len(g.Adj[i]) == 0 {
			g.Leaves = append(g.Leaves, i)
		}
	}

	if cycle := g.DetectCycle(); cycle != nil {
		return nil, fmt.Errorf("%w: %v", ErrCycle, cycle)
	}

	order, err := g.topoSort()
	if err != nil {
		return nil, err
	}
	g.TopoOrder = order
	g.assignLevels()

	return g, nil
}

// DetectCycle returns the cycle path if one exists, or nil if the graph is acyclic.
// Uses DFS with coloring: white (unvisited), gray (in progress), black (done).
func (g *TaskGraph) DetectCycle() []int {
	const (
		white = 0
		gray  = 1
		black = 2
	)

	color := make([]int, len(g.Tasks))
	parent := make([]int, len(g.Tasks))

	var dfs func(node int) []int
	dfs = func(node int) []int {
		color[node] = gray
		for _, next := range g.Adj[node] {
			if color[next] == gray {
				cycle := []int{next, node}
				cur := node
				for cur != next {
					cur = parent[cur]
					cycle = append(cycle, cur)
				}
				for i, j := 0, len(cycle)-1; i < j; i, j = i+1, j-1 {
					cycle[i], cycle[j] = cycle[j], cycle[i]
				}
				return cycle
			}
			if color[next] == white {
				parent[next] = node
				if cycle := dfs(next); cycle != nil {
					return cycle
				}
			}
		}
		color[node] = black
		return nil
	}

	for id := range g.Tasks {
		if color[id] == white {
			if cycle := dfs(id); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

// topoSort performs Kahn's algorithm. The ready set is kept sorted so that the
// order is deterministic.
func (g *TaskGraph) topoSort() ([]int, error) {
	inDegree := make([]int, len(g.Tasks))
	var queue []int
	for id := range g.Tasks {
		inDegree[id] = len(g.RevAdj[id])
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	order := make([]int, 0, len(g.Tasks))
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		order = append(order, node)

		var newReady []int
		for _, succ := range g.Adj[node] {
			inDegree[succ]--
			if inDegree[succ] == 0 {
				newReady = append(newReady, succ)
			}
		}
		sort.Ints(newReady)
		queue = append(queue, newReady...)
	}

	if len(order) != len(g.Tasks) {
		return nil, fmt.Errorf("%w: topological sort placed %d of %d tasks", ErrCycle, len(order), len(g.Tasks))
	}
	return order, nil
}

// assignLevels sets each task's level to the longest edge count from a root.
func (g *TaskGraph) assignLevels() {
	for _, id := range g.TopoOrder {
		lvl := 0
		for _, pred := range g.RevAdj[id] {
			if g.Tasks[pred].Level+1 > lvl {
				lvl = g.Tasks[pred].Level + 1
			}
		}
		g.Tasks[id].Level = lvl
	}
}

// TaskCount returns the number of tasks in the graph.
func (g *TaskGraph) TaskCount() int {
	return len(g.Tasks)
}

// Preds returns the predecessors of task id.
func (g *TaskGraph) Preds(id int) []int {
	return g.RevAdj[id]
}

// Succs returns the successors of task id.
func (g *TaskGraph) Succs(id int) []int {
	return g.Adj[id]
}

// Volume returns the data volume on edge from->to and whether the edge exists.
func (g *TaskGraph) Volume(from, to int) (float64, bool) {
	v, ok := g.volume[[2]int{from, to}]
	return v, ok
}

// Cycles returns the clock cycles task needs on core. Missing entries are zero.
func (g *TaskGraph) Cycles(task, core int) int64 {
	cc := g.Tasks[task].Cycles
	if core >= len(cc) {
		return 0
	}
	return cc[core]
}

// Edges returns all edges ordered by (From, To).
func (g *TaskGraph) Edges() []Edge {
	var edges []Edge
	for from, succs := range g.Adj {
		for _, to := range succs {
			edges = append(edges, Edge{From: from, To: to, Volume: g.volume[[2]int{from, to}]})
		}
	}
	return edges
}

// Depth returns the number of distinct levels.
func (g *TaskGraph) Depth() int {
	depth := 0
	for _, t := range g.Tasks {
		if t.Level+1 > depth {
			depth = t.Level + 1
		}
	}
	return depth
}
