package graph

// Task is a single node of the task graph.
type Task struct {
	ID     int
	Cycles []int64 // clock cycles needed on each core, indexed by core
	Level  int     // longest path (in edges) from any root; set by Build
}

// Edge is a precedence constraint: To may not start before From finishes.
// Volume is the amount of data From sends to To.
type Edge struct {
	From   int     `json:"from"`
	To     int     `json:"to"`
	Volume float64 `json:"volume"`
}

// TaskGraph is a directed acyclic graph of tasks with dense ids 0..N-1.
// It is immutable once returned by Build.
type TaskGraph struct {
	Tasks     []Task
	Adj       [][]int // task -> successors
	RevAdj    [][]int // task -> predecessors
	Roots     []int   // tasks with no predecessors
	Leaves    []int   // tasks with no successors
	TopoOrder []int   // Kahn order, smallest ready id first

	volume map[[2]int]float64
}
