package planner

import (
	"fmt"
	"sort"
	"time"

	"github.com/joshharrison/paretoloom/internal/costmodel"
	"github.com/joshharrison/paretoloom/internal/cpm"
	"github.com/joshharrison/paretoloom/internal/problem"
)

// Generate lays out a simulated trace per core and marks the tasks that sit
// on the critical path of cpmResult. cpmResult may be nil.
func Generate(p *problem.Problem, trace *costmodel.Trace, cpmResult *cpm.Result) (*Timeline, error) {
	if trace == nil {
		return nil, fmt.Errorf("no trace to lay out")
	}
	m := p.M()

	tl := &Timeline{
		ID:         fmt.Sprintf("sched-%s", time.Now().Format("2006-01-02-150405")),
		CreatedAt:  time.Now(),
		TotalTasks: p.N(),
		Placed:     len(trace.Slots),
		Breakdown:  trace.Breakdown,
		Energy:     trace.Energy(),
		Lanes:      make([]Lane, m),
	}
	if cpmResult != nil {
		tl.LowerBound = cpmResult.LowerBound
		tl.CriticalPath = cpmResult.CriticalPath
	}

	for c := range tl.Lanes {
		tl.Lanes[c] = Lane{Core: c, Name: p.Platform.Cores[c].Name}
		if c < len(trace.Busy) {
			tl.Lanes[c].Busy = trace.Busy[c]
			if trace.Makespan > 0 {
				tl.Lanes[c].Utilization = trace.Busy[c] / trace.Makespan
			}
		}
	}

	for _, s := range trace.Slots {
		if s.Core < 0 || s.Core >= m {
			return nil, fmt.Errorf("task %d placed on core %d, platform has %d", s.Task, s.Core, m)
		}
		pt := PlannedTask{
			TaskID:    s.Task,
			Level:     s.Level,
			Frequency: p.Platform.Frequency(s.Core, s.Level),
			Start:     s.Start,
			Finish:    s.Finish,
			Wave:      p.Graph.Tasks[s.Task].Level,
		}
		if cpmResult != nil && s.Task < len(cpmResult.Tasks) {
			pt.IsCritical = cpmResult.Tasks[s.Task].IsCritical
		}
		tl.Lanes[s.Core].Tasks = append(tl.Lanes[s.Core].Tasks, pt)
	}

	for c := range tl.Lanes {
		tasks := tl.Lanes[c].Tasks
		sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].Start < tasks[j].Start })
		prev := 0.0
		for i := range tasks {
			tasks[i].Wait = tasks[i].Start - prev
			prev = tasks[i].Finish
		}
	}

	return tl, nil
}
