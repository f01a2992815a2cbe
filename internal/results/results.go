// Package results persists run outcomes as JSON lines and reads them back.
package results

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/joshharrison/paretoloom/internal/chrom"
	"github.com/joshharrison/paretoloom/internal/engine"
)

// Params is the configuration a run was produced with.
type Params struct {
	Benchmark   string  `json:"benchmark,omitempty"`
	Tasks       int     `json:"tasks"`
	Cores       int     `json:"cores"`
	Levels      int     `json:"levels"`
	Population  int     `json:"population"`
	Archive     int     `json:"archive"`
	Crossover   float64 `json:"crossover"`
	Mutation    float64 `json:"mutation"`
	LocalSearch float64 `json:"local_search"`
	Generations int     `json:"generations"`
	Seed        int64   `json:"seed"`
}

// Solution is one archived schedule.
type Solution struct {
	Tasks    []int   `json:"tasks"`
	Cores    []int   `json:"cores"`
	Levels   []int   `json:"levels"`
	Makespan float64 `json:"makespan"`
	Energy   float64 `json:"energy"`
}

// Record is one line of a results file.
type Record struct {
	ID            string     `json:"id"`
	Run           int        `json:"run"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    time.Time  `json:"finished_at"`
	DurationMS    float64    `json:"duration_ms"`
	Generations   int        `json:"generations"`
	Evaluations   int64      `json:"evaluations"`
	LocalSearches int        `json:"local_searches"`
	Params        Params     `json:"params"`
	Solutions     []Solution `json:"solutions"`
}

// FromRun converts an engine result into a record.
func FromRun(res *engine.RunResult, params Params) Record {
	r := Record{
		ID:            res.ID,
		Run:           res.Index,
		StartedAt:     res.Started,
		FinishedAt:    res.Started.Add(res.Duration),
		DurationMS:    float64(res.Duration) / float64(time.Millisecond),
		Generations:   res.Generations,
		Evaluations:   res.Evaluations,
		LocalSearches: res.LocalSearches,
		Params:        params,
		Solutions:     make([]Solution, 0, len(res.Archive)),
	}
	for _, c := range res.Archive {
		r.Solutions = append(r.Solutions, SolutionOf(c))
	}
	return r
}

// SolutionOf copies the schedule and objectives of c.
func SolutionOf(c chrom.Chromosome) Solution {
	c = c.Clone()
	return Solution{
		Tasks:    c.Tasks,
		Cores:    c.Cores,
		Levels:   c.Levels,
		Makespan: c.Fitness.Makespan,
		Energy:   c.Fitness.Energy,
	}
}

// Writer appends records to a JSON-lines file. It is safe for concurrent use.
type Writer struct {
	mu   sync.Mutex
	f    *os.File
	path string
}

// Create opens path for appending, creating it and its directory if needed.
func Create(path string) (*Writer, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create results dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open results: %w", err)
	}
	return &Writer{f: f, path: path}, nil
}

// Path returns the file being written.
func (w *Writer) Path() string { return w.path }

// Append writes r as a single line.
func (w *Writer) Append(r Record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	data = append(data, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.f.Write(data); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Close()
}

// Summary is the per-run digest read back from a results file.
type Summary struct {
	ID          string
	Run         int
	Benchmark   string
	StartedAt   time.Time
	Duration    time.Duration
	Generations int
	Evaluations int64
	FrontSize   int
	MinMakespan float64
	MaxMakespan float64
	MinEnergy   float64
	MaxEnergy   float64
}

// Scan reads records from r and calls fn with the summary of each one.
// Blank lines are skipped; a line that is not valid JSON is an error.
func Scan(r io.Reader, fn func(Summary) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Bytes()
		if len(text) == 0 {
			continue
		}
		if !gjson.ValidBytes(text) {
			return fmt.Errorf("line %d: invalid JSON", line)
		}
		if err := fn(summarize(gjson.ParseBytes(text))); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read results: %w", err)
	}
	return nil
}

// Load reads every summary in the file at path.
func Load(path string) ([]Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open results: %w", err)
	}
	defer f.Close()

	var out []Summary
	err = Scan(f, func(s Summary) error {
		out = append(out, s)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return out, nil
}

func summarize(rec gjson.Result) Summary {
	s := Summary{
		ID:          rec.Get("id").String(),
		Run:         int(rec.Get("run").Int()),
		Benchmark:   rec.Get("params.benchmark").String(),
		StartedAt:   rec.Get("started_at").Time(),
		Duration:    time.Duration(rec.Get("duration_ms").Float() * float64(time.Millisecond)),
		Generations: int(rec.Get("generations").Int()),
		Evaluations: rec.Get("evaluations").Int(),
	}

	rec.Get("solutions").ForEach(func(_, sol gjson.Result) bool {
		s.observe(sol.Get("makespan").Float(), sol.Get("energy").Float())
		return true
	})
	return s
}

// Summarize digests an in-memory record.
func Summarize(r Record) Summary {
	s := Summary{
		ID:          r.ID,
		Run:         r.Run,
		Benchmark:   r.Params.Benchmark,
		StartedAt:   r.StartedAt,
		Duration:    time.Duration(r.DurationMS * float64(time.Millisecond)),
		Generations: r.Generations,
		Evaluations: r.Evaluations,
	}
	for _, sol := range r.Solutions {
		s.observe(sol.Makespan, sol.Energy)
	}
	return s
}

func (s *Summary) observe(ms, en float64) {
	s.FrontSize++
	if s.FrontSize == 1 {
		s.MinMakespan, s.MaxMakespan = ms, ms
		s.MinEnergy, s.MaxEnergy = en, en
		return
	}
	s.MinMakespan = min(s.MinMakespan, ms)
	s.MaxMakespan = max(s.MaxMakespan, ms)
	s.MinEnergy = min(s.MinEnergy, en)
	s.MaxEnergy = max(s.MaxEnergy, en)
}

// Front returns the solutions of the record with the given id, or of the
// last record when id is empty.
func Front(path, id string) ([]Solution, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read results: %w", err)
	}

	var match string
	gjson.ForEachLine(string(data), func(line gjson.Result) bool {
		if !line.IsObject() {
			return true
		}
		if id == "" || line.Get("id").String() == id {
			match = line.Raw
		}
		return true
	})
	if match == "" {
		if id == "" {
			return nil, fmt.Errorf("%s holds no records", path)
		}
		return nil, fmt.Errorf("no record with id %q in %s", id, path)
	}

	var rec Record
	if err := json.Unmarshal([]byte(match), &rec); err != nil {
		return nil, fmt.Errorf("parse record: %w", err)
	}
	return rec.Solutions, nil
}
