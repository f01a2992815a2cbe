package cpm

// Result holds the critical path analysis of a problem under the fastest
// possible execution time for every task, ignoring communication.
type Result struct {
	Tasks         []TaskSchedule // indexed by task id
	CriticalPath  []int          // ordered task ids on the critical path
	TotalDuration float64        // critical path length
	TotalWork     float64        // sum of fastest execution times
	LowerBound    float64        // max(TotalDuration, TotalWork/M)
	Waves         []Wave         // tasks grouped by graph level
	TopoOrder     []int
}

// TaskSchedule holds the scheduling info for a single task.
type TaskSchedule struct {
	TaskID     int
	Duration   float64
	ES, EF     float64 // earliest start/finish
	LS, LF     float64 // latest start/finish
	Slack      float64
	IsCritical bool
	Wave       int
}

// Wave represents a group of tasks that can execute in parallel.
type Wave struct {
	Index      int
	TaskIDs    []int
	IsCritical bool // true if wave contains critical path tasks
}
