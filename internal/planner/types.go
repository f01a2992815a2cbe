package planner

import (
	"time"

	"github.com/joshharrison/paretoloom/internal/costmodel"
)

// Timeline is a simulated schedule laid out per core.
type Timeline struct {
	ID           string              `json:"id"`
	CreatedAt    time.Time           `json:"created_at"`
	TotalTasks   int                 `json:"total_tasks"`
	Placed       int                 `json:"placed"`
	Breakdown    costmodel.Breakdown `json:"breakdown"`
	Energy       float64             `json:"energy"`
	LowerBound   float64             `json:"lower_bound"`
	CriticalPath []int               `json:"critical_path"`
	Lanes        []Lane              `json:"lanes"`
}

// Lane is the sequence of tasks one core executes.
type Lane struct {
	Core        int           `json:"core"`
	Name        string        `json:"name"`
	Busy        float64       `json:"busy"`
	Utilization float64       `json:"utilization"` // busy / makespan
	Tasks       []PlannedTask `json:"tasks"`
}

// PlannedTask is one task placement.
type PlannedTask struct {
	TaskID     int     `json:"task_id"`
	Level      int     `json:"level"`
	Frequency  float64 `json:"frequency"`
	Start      float64 `json:"start"`
	Finish     float64 `json:"finish"`
	Wait       float64 `json:"wait"` // idle gap on the core before Start
	IsCritical bool    `json:"is_critical"`
	Wave       int     `json:"wave"`
}

// Duration returns Finish - Start.
func (t PlannedTask) Duration() float64 { return t.Finish - t.Start }
