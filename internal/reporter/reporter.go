package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/joshharrison/paretoloom/internal/engine"
	"github.com/joshharrison/paretoloom/internal/planner"
	"github.com/joshharrison/paretoloom/internal/results"
	"github.com/joshharrison/paretoloom/internal/ui"
)

// Reporter provides terminal and JSON output for a set of runs.
type Reporter struct {
	Benchmark  string
	LowerBound float64 // critical-path bound on makespan; 0 when unknown
	Status     string  // "running", "completed", "failed", "cancelled"
	StartTime  time.Time
	Runs       []results.Summary
}

// New creates a new Reporter.
func New(benchmark string, lowerBound float64) *Reporter {
	return &Reporter{
		Benchmark:  benchmark,
		LowerBound: lowerBound,
		Status:     "running",
		StartTime:  time.Now(),
	}
}

// Add records a finished run.
func (r *Reporter) Add(s results.Summary) {
	r.Runs = append(r.Runs, s)
}

// PrintProgress writes a one-line generation update.
func (r *Reporter) PrintProgress(w io.Writer, total int, s engine.GenerationStats) {
	ls := ""
	if s.LocalSearch {
		ls = ui.Cyan(" +ls")
	}
	fmt.Fprintf(w, "\r%s %s %d/%d  front %-3d archive %-4d evals %d%s   ",
		ui.RunPrefix(s.RunID), ui.Bold("gen"), s.Generation+1, total,
		s.FrontSize, s.ArchiveSize, s.Evaluations, ls)
}

// PrintFront writes a table of one run's archive.
func (r *Reporter) PrintFront(w io.Writer, s results.Summary, front []results.Solution) {
	fmt.Fprintf(w, "%s %s %d  %s  %s\n",
		ui.RunPrefix(s.ID), ui.BoldWhite("RUN"), s.Run+1,
		ui.Dim(fmt.Sprintf("[%s]", s.Duration.Truncate(time.Millisecond))),
		ui.Dim(fmt.Sprintf("%d generations, %d evaluations", s.Generations, s.Evaluations)))

	fmt.Fprintf(w, "    %4s  %14s  %14s  %9s\n", "#", "makespan", "energy", "vs bound")
	for i, sol := range front {
		fmt.Fprintf(w, "    %4d  %14.3f  %14.3f  %9s\n",
			i+1, sol.Makespan, sol.Energy, ui.Gap(sol.Makespan, r.LowerBound))
	}
	fmt.Fprintln(w)
}

// Moments describes one quantity across runs.
type Moments struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// Stats aggregates every recorded run.
type Stats struct {
	Runs         int     `json:"runs"`
	FrontSize    Moments `json:"front_size"`
	BestMakespan Moments `json:"best_makespan"`
	BestEnergy   Moments `json:"best_energy"`
	Seconds      Moments `json:"seconds"`
}

func moments(x []float64) Moments {
	if len(x) == 0 {
		return Moments{}
	}
	m := Moments{Min: floats.Min(x), Max: floats.Max(x)}
	if len(x) == 1 {
		m.Mean = x[0]
		return m
	}
	m.Mean, m.StdDev = stat.MeanStdDev(x, nil)
	return m
}

// Stats computes the cross-run statistics.
func (r *Reporter) Stats() Stats {
	n := len(r.Runs)
	front := make([]float64, 0, n)
	ms := make([]float64, 0, n)
	en := make([]float64, 0, n)
	secs := make([]float64, 0, n)
	for _, s := range r.Runs {
		front = append(front, float64(s.FrontSize))
		secs = append(secs, s.Duration.Seconds())
		if s.FrontSize > 0 {
			ms = append(ms, s.MinMakespan)
			en = append(en, s.MinEnergy)
		}
	}
	return Stats{
		Runs:         n,
		FrontSize:    moments(front),
		BestMakespan: moments(ms),
		BestEnergy:   moments(en),
		Seconds:      moments(secs),
	}
}

// PrintSummaryReport writes the cross-run summary to w and returns it.
func (r *Reporter) PrintSummaryReport(w io.Writer) string {
	var b strings.Builder
	mw := io.MultiWriter(w, &b)

	statusText := ui.BoldGreen("completed")
	statusEmoji := "✅"
	if r.Status == "failed" {
		statusText = ui.BoldRed("failed")
		statusEmoji = "❌"
	} else if r.Status == "cancelled" {
		statusText = ui.Yellow("cancelled")
		statusEmoji = "🚫"
	}

	st := r.Stats()
	fmt.Fprintf(mw, "\n%s %s\n", statusEmoji, ui.BoldCyan("Paretoloom Summary"))
	fmt.Fprintf(mw, "%s\n", ui.Cyan("══════════════════════════"))
	if r.Benchmark != "" {
		fmt.Fprintf(mw, "Benchmark: %s\n", ui.Dim(r.Benchmark))
	}
	fmt.Fprintf(mw, "Status:    %s\n", statusText)
	fmt.Fprintf(mw, "Runs:      %d\n", st.Runs)
	if r.LowerBound > 0 {
		fmt.Fprintf(mw, "Bound:     %.3f\n", r.LowerBound)
	}
	fmt.Fprintln(mw)

	if st.Runs == 0 {
		fmt.Fprintf(mw, "%s\n", ui.Dim("no completed runs"))
		return b.String()
	}

	fmt.Fprintf(mw, "  %-14s %12s %12s %12s %12s\n", "", "mean", "std dev", "min", "max")
	row := func(label string, m Moments) {
		fmt.Fprintf(mw, "  %-14s %12.3f %12.3f %12.3f %12.3f\n", label, m.Mean, m.StdDev, m.Min, m.Max)
	}
	row("front size", st.FrontSize)
	row("best makespan", st.BestMakespan)
	row("best energy", st.BestEnergy)
	row("seconds", st.Seconds)

	fmt.Fprintf(mw, "%s\n", ui.Cyan("──────────────────────────"))
	if r.LowerBound > 0 && st.BestMakespan.Min > 0 {
		fmt.Fprintf(mw, "Best makespan %.3f is %s above the critical-path bound\n",
			st.BestMakespan.Min, ui.Gap(st.BestMakespan.Min, r.LowerBound))
	}
	return b.String()
}

// JSON returns machine-readable run summaries and statistics.
func (r *Reporter) JSON() ([]byte, error) {
	type runJSON struct {
		ID          string  `json:"id"`
		Run         int     `json:"run"`
		Seconds     float64 `json:"seconds"`
		Generations int     `json:"generations"`
		Evaluations int64   `json:"evaluations"`
		FrontSize   int     `json:"front_size"`
		MinMakespan float64 `json:"min_makespan"`
		MaxMakespan float64 `json:"max_makespan"`
		MinEnergy   float64 `json:"min_energy"`
		MaxEnergy   float64 `json:"max_energy"`
	}

	type output struct {
		Benchmark  string    `json:"benchmark,omitempty"`
		Status     string    `json:"status"`
		LowerBound float64   `json:"lower_bound,omitempty"`
		Stats      Stats     `json:"stats"`
		Runs       []runJSON `json:"runs"`
	}

	o := output{
		Benchmark:  r.Benchmark,
		Status:     r.Status,
		LowerBound: r.LowerBound,
		Stats:      r.Stats(),
		Runs:       make([]runJSON, 0, len(r.Runs)),
	}
	for _, s := range r.Runs {
		o.Runs = append(o.Runs, runJSON{
			ID:          s.ID,
			Run:         s.Run,
			Seconds:     s.Duration.Seconds(),
			Generations: s.Generations,
			Evaluations: s.Evaluations,
			FrontSize:   s.FrontSize,
			MinMakespan: s.MinMakespan,
			MaxMakespan: s.MaxMakespan,
			MinEnergy:   s.MinEnergy,
			MaxEnergy:   s.MaxEnergy,
		})
	}

	return json.MarshalIndent(o, "", "  ")
}

// PrintTimeline writes a per-core view of one simulated schedule.
func PrintTimeline(w io.Writer, tl *planner.Timeline) {
	fmt.Fprintf(w, "%s  %d of %d tasks placed\n", ui.BoldCyan("Schedule"), tl.Placed, tl.TotalTasks)
	fmt.Fprintf(w, "Makespan:  %s", ui.Bold(fmt.Sprintf("%.3f", tl.Breakdown.Makespan)))
	if tl.LowerBound > 0 {
		fmt.Fprintf(w, " %s", ui.Gap(tl.Breakdown.Makespan, tl.LowerBound))
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Energy:    %s %s\n",
		ui.Bold(fmt.Sprintf("%.3f", tl.Energy)),
		ui.Dim(fmt.Sprintf("(active %.3f, static %.3f, comm %.3f)",
			tl.Breakdown.Active, tl.Breakdown.Static, tl.Breakdown.Comm)))
	fmt.Fprintln(w)

	for _, lane := range tl.Lanes {
		fmt.Fprintf(w, "  %s  %s\n", ui.CoreLabel(lane.Core, lane.Name),
			ui.Dim(fmt.Sprintf("busy %.3f (%.0f%%)", lane.Busy, lane.Utilization*100)))
		for _, t := range lane.Tasks {
			critical := " "
			if t.IsCritical {
				critical = ui.BoldYellow("⚡")
			}
			fmt.Fprintf(w, "    %s %-6d L%-2d %10.3f → %-10.3f %s\n",
				critical, t.TaskID, t.Level, t.Start, t.Finish,
				ui.Dim(fmt.Sprintf("wave %d", t.Wave)))
		}
	}
	if len(tl.CriticalPath) > 0 {
		ids := make([]string, len(tl.CriticalPath))
		for i, id := range tl.CriticalPath {
			ids[i] = fmt.Sprint(id)
		}
		fmt.Fprintf(w, "\nCritical:  %s\n", ui.BoldYellow("⚡ "+strings.Join(ids, " → ")))
	}
}
