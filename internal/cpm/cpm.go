package cpm

import (
	"fmt"
	"math"
	"sort"

	"github.com/joshharrison/paretoloom/internal/problem"
)

// slackEpsilon absorbs floating point noise when classifying critical tasks.
const slackEpsilon = 1e-9

// Analyze performs critical path method analysis on p. Each task's duration
// is its fastest execution time over all cores and levels.
func Analyze(p *problem.Problem) (*Result, error) {
	g := p.Graph
	order := g.TopoOrder
	if len(order) != g.TaskCount() {
		return nil, fmt.Errorf("topological order covers %d of %d tasks", len(order), g.TaskCount())
	}

	result := &Result{
		Tasks:     make([]TaskSchedule, g.TaskCount()),
		TopoOrder: order,
	}
	for id := range result.Tasks {
		d := p.FastestTime(id)
		result.Tasks[id] = TaskSchedule{TaskID: id, Duration: d}
		result.TotalWork += d
	}

	// Forward pass: compute ES and EF
	for _, id := range order {
		ts := &result.Tasks[id]
		es := 0.0
		for _, pred := range g.Preds(id) {
			if ef := result.Tasks[pred].EF; ef > es {
				es = ef
			}
		}
		ts.ES = es
		ts.EF = es + ts.Duration
		if ts.EF > result.TotalDuration {
			result.TotalDuration = ts.EF
		}
	}

	// Backward pass in reverse topological order. Leaves finish at the
	// project end.
	for i := len(order) - 1; i >= 0; i-- {
		id := order[i]
		ts := &result.Tasks[id]
		lf := result.TotalDuration
		for _, succ := range g.Succs(id) {
			if ls := result.Tasks[succ].LS; ls < lf {
				lf = ls
			}
		}
		ts.LF = lf
		ts.LS = lf - ts.Duration
		ts.Slack = ts.LS - ts.ES
		ts.IsCritical = math.Abs(ts.Slack) < slackEpsilon
	}

	for _, id := range order {
		if result.Tasks[id].IsCritical {
			result.CriticalPath = append(result.CriticalPath, id)
		}
	}

	result.LowerBound = math.Max(result.TotalDuration, result.TotalWork/float64(p.M()))
	result.Waves = computeWaves(result, p)

	return result, nil
}

// computeWaves groups tasks by their graph level.
func computeWaves(result *Result, p *problem.Problem) []Wave {
	waves := make([]Wave, p.Graph.Depth())
	for i := range waves {
		waves[i].Index = i
	}
	for _, t := range p.Graph.Tasks {
		w := &waves[t.Level]
		w.TaskIDs = append(w.TaskIDs, t.ID)
		result.Tasks[t.ID].Wave = t.Level
		if result.Tasks[t.ID].IsCritical {
			w.IsCritical = true
		}
	}

	// Critical tasks first within a wave
	for i := range waves {
		ids := waves[i].TaskIDs
		sort.SliceStable(ids, func(a, b int) bool {
			return result.Tasks[ids[a]].IsCritical && !result.Tasks[ids[b]].IsCritical
		})
	}
	return waves
}
