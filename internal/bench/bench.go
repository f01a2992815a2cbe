// Package bench reads Standard Task Graph (STG) benchmarks and their
// companion "extra" files holding communication volumes and per-core cycle
// counts.
package bench

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/joshharrison/paretoloom/internal/graph"
)

// Benchmark is a parsed task set before it is bound to a core count.
type Benchmark struct {
	Costs  []int64        // STG execution cost per task
	Cycles [][]int64      // per-core cycles from the extra file; nil rows fall back to Costs
	Edges  []graph.Edge   // edges in file order
	index  map[[2]int]int // (from,to) -> position in Edges
}

// N returns the number of tasks including the two dummy tasks.
func (b *Benchmark) N() int { return len(b.Costs) }

// ParseSTG reads an STG file. The header gives the task count n; the
// benchmark holds n+2 tasks since STG adds a dummy entry and exit task.
// Each subsequent line is "id cost npred pred..." until a line starting
// with '#'. Edges default to a volume of 1.
func ParseSTG(r io.Reader) (*Benchmark, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var b *Benchmark
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			break
		}
		fields, err := ints(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}

		if b == nil {
			if len(fields) < 1 || fields[0] < 0 {
				return nil, fmt.Errorf("line %d: missing task count", lineNo)
			}
			n := int(fields[0]) + 2
			b = &Benchmark{
				Costs:  make([]int64, n),
				Cycles: make([][]int64, n),
				index:  make(map[[2]int]int),
			}
			continue
		}

		if len(fields) < 3 {
			return nil, fmt.Errorf("line %d: expected \"id cost npred ...\", got %q", lineNo, line)
		}
		id, cost, npred := int(fields[0]), fields[1], int(fields[2])
		if id < 0 || id >= b.N() {
			return nil, fmt.Errorf("line %d: task id %d out of range [0,%d)", lineNo, id, b.N())
		}
		if len(fields) != 3+npred {
			return nil, fmt.Errorf("line %d: task %d declares %d predecessors, found %d", lineNo, id, npred, len(fields)-3)
		}
		b.Costs[id] = cost
		for _, p := range fields[3:] {
			pred := int(p)
			if pred < 0 || pred >= b.N() {
				return nil, fmt.Errorf("line %d: predecessor %d of task %d out of range", lineNo, pred, id)
			}
			b.addEdge(pred, id, 1)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading STG: %w", err)
	}
	if b == nil {
		return nil, fmt.Errorf("STG input is empty")
	}
	return b, nil
}

func (b *Benchmark) addEdge(from, to int, volume float64) {
	key := [2]int{from, to}
	if i, ok := b.index[key]; ok {
		b.Edges[i].Volume = volume
		return
	}
	b.index[key] = len(b.Edges)
	b.Edges = append(b.Edges, graph.Edge{From: from, To: to, Volume: volume})
}

// ParseExtra applies an extra file to b. Lines starting with '*' are
// comments and each '#' line opens the next section. Section 1 is an N×N
// communication-volume matrix, applied only to edges the STG defines.
// Section 2 lists per-task cycle counts, of which the first m are kept.
func (b *Benchmark) ParseExtra(r io.Reader, m int, log zerolog.Logger) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	section, row, lineNo := 0, 0, 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "*") {
			continue
		}
		if strings.HasPrefix(line, "#") {
			section++
			row = 0
			continue
		}

		switch section {
		case 1:
			vals := strings.Fields(line)
			if row >= b.N() {
				log.Warn().Int("line", lineNo).Msg("communication matrix has more rows than tasks, ignoring")
				break
			}
			for col, s := range vals {
				if col >= b.N() {
					break
				}
				i, ok := b.index[[2]int{row, col}]
				if !ok {
					continue
				}
				v, err := strconv.ParseFloat(s, 64)
				if err != nil {
					return fmt.Errorf("line %d col %d: %w", lineNo, col, err)
				}
				if v < 0 {
					return fmt.Errorf("line %d col %d: negative volume %g", lineNo, col, v)
				}
				b.Edges[i].Volume = v
			}
		case 2:
			if row >= b.N() {
				log.Warn().Int("line", lineNo).Msg("cycle table has more rows than tasks, ignoring")
				break
			}
			vals, err := ints(line)
			if err != nil {
				return fmt.Errorf("line %d: %w", lineNo, err)
			}
			if len(vals) < m {
				return fmt.Errorf("line %d: task %d lists %d cycle counts, need %d", lineNo, row, len(vals), m)
			}
			b.Cycles[row] = vals[:m]
		default:
			log.Warn().Int("line", lineNo).Int("section", section).Msg("unexpected data outside a section, skipping")
		}
		row++
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("reading extra file: %w", err)
	}
	return nil
}

// Graph builds the task graph for m cores. Tasks without a cycle row use
// their STG cost on every core.
func (b *Benchmark) Graph(m int) (*graph.TaskGraph, error) {
	tasks := make([]graph.Task, b.N())
	for i := range tasks {
		cycles := make([]int64, m)
		for c := range cycles {
			if row := b.Cycles[i]; c < len(row) {
				cycles[c] = row[c]
			} else {
				cycles[c] = b.Costs[i]
			}
		}
		tasks[i] = graph.Task{ID: i, Cycles: cycles}
	}
	g, err := graph.Build(tasks, b.Edges)
	if err != nil {
		return nil, fmt.Errorf("building benchmark graph: %w", err)
	}
	return g, nil
}

// Load parses the STG file at stgPath, applies extraPath when non-empty and
// returns the task graph for m cores.
func Load(stgPath, extraPath string, m int, log zerolog.Logger) (*graph.TaskGraph, error) {
	f, err := os.Open(stgPath)
	if err != nil {
		return nil, fmt.Errorf("opening STG file: %w", err)
	}
	defer f.Close()

	b, err := ParseSTG(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", stgPath, err)
	}
	log.Debug().Str("path", stgPath).Int("tasks", b.N()).Int("edges", len(b.Edges)).Msg("loaded STG benchmark")

	if extraPath != "" {
		ef, err := os.Open(extraPath)
		if err != nil {
			return nil, fmt.Errorf("opening extra file: %w", err)
		}
		defer ef.Close()
		if err := b.ParseExtra(ef, m, log); err != nil {
			return nil, fmt.Errorf("%s: %w", extraPath, err)
		}
		log.Debug().Str("path", extraPath).Msg("applied benchmark extra data")
	}

	return b.Graph(m)
}

func ints(line string) ([]int64, error) {
	fields := strings.Fields(line)
	out := make([]int64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", i+1, err)
		}
		out[i] = v
	}
	return out, nil
}
