package results

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/joshharrison/paretoloom/internal/chrom"
	"github.com/joshharrison/paretoloom/internal/engine"
)

func makeRun(id string, index int, points ...[2]float64) *engine.RunResult {
	res := &engine.RunResult{
		ID:          id,
		Index:       index,
		Started:     time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Duration:    1500 * time.Millisecond,
		Generations: 10,
		Evaluations: 550,
	}
	for _, p := range points {
		c := chrom.New(3)
		c.SetFitness(chrom.Fitness{Makespan: p[0], Energy: p[1]})
		res.Archive = append(res.Archive, c)
	}
	return res
}

func TestFromRun(t *testing.T) {
	res := makeRun("abc", 2, [2]float64{10, 50}, [2]float64{20, 30})
	rec := FromRun(res, Params{Tasks: 3, Cores: 2})

	if rec.ID != "abc" || rec.Run != 2 {
		t.Errorf("unexpected id/run %q/%d", rec.ID, rec.Run)
	}
	if rec.DurationMS != 1500 {
		t.Errorf("expected 1500ms, got %g", rec.DurationMS)
	}
	if !rec.FinishedAt.Equal(res.Started.Add(res.Duration)) {
		t.Errorf("unexpected finish time %v", rec.FinishedAt)
	}
	if len(rec.Solutions) != 2 || rec.Solutions[1].Energy != 30 {
		t.Fatalf("unexpected solutions %+v", rec.Solutions)
	}

	rec.Solutions[0].Tasks[0] = 99
	if res.Archive[0].Tasks[0] == 99 {
		t.Error("record shares storage with the archive")
	}
}

func TestWriterAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "runs.jsonl")

	w, err := Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := w.Append(FromRun(makeRun("r1", 0, [2]float64{10, 50}, [2]float64{20, 30}), Params{Benchmark: "rand0000"})); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := w.Append(FromRun(makeRun("r2", 1, [2]float64{12, 40}), Params{})); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	sums, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(sums) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(sums))
	}

	s := sums[0]
	if s.ID != "r1" || s.Benchmark != "rand0000" {
		t.Errorf("unexpected summary %+v", s)
	}
	if s.FrontSize != 2 {
		t.Errorf("expected front size 2, got %d", s.FrontSize)
	}
	if s.MinMakespan != 10 || s.MaxMakespan != 20 || s.MinEnergy != 30 || s.MaxEnergy != 50 {
		t.Errorf("unexpected extremes %+v", s)
	}
	if s.Duration != 1500*time.Millisecond {
		t.Errorf("expected 1.5s, got %s", s.Duration)
	}
	if !s.StartedAt.Equal(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected start %v", s.StartedAt)
	}
	if sums[1].Run != 1 || sums[1].FrontSize != 1 {
		t.Errorf("unexpected second summary %+v", sums[1])
	}
}

func TestCreate_Appends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.jsonl")
	for i := 0; i < 2; i++ {
		w, err := Create(path)
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if err := w.Append(FromRun(makeRun("x", i), Params{})); err != nil {
			t.Fatalf("Append: %v", err)
		}
		w.Close()
	}
	sums, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(sums) != 2 {
		t.Errorf("expected records from both writers, got %d", len(sums))
	}
}

func TestScan_Errors(t *testing.T) {
	err := Scan(strings.NewReader("{\"id\":\"a\"}\n\nnot json\n"), func(Summary) error { return nil })
	if err == nil || !strings.Contains(err.Error(), "line 3") {
		t.Errorf("expected line 3 error, got %v", err)
	}

	stop := errors.New("stop")
	err = Scan(strings.NewReader("{\"id\":\"a\"}\n"), func(Summary) error { return stop })
	if !errors.Is(err, stop) {
		t.Errorf("expected callback error, got %v", err)
	}
}

func TestScan_EmptyFront(t *testing.T) {
	var got Summary
	err := Scan(strings.NewReader(`{"id":"e","solutions":[]}`), func(s Summary) error {
		got = s
		return nil
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if got.FrontSize != 0 || got.MinMakespan != 0 {
		t.Errorf("unexpected summary %+v", got)
	}
}

func TestLoad_Missing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.jsonl")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func TestFront(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.jsonl")
	w, err := Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	w.Append(FromRun(makeRun("first", 0, [2]float64{1, 2}), Params{}))
	w.Append(FromRun(makeRun("second", 1, [2]float64{3, 4}, [2]float64{5, 1}), Params{}))
	w.Close()

	last, err := Front(path, "")
	if err != nil {
		t.Fatalf("Front: %v", err)
	}
	if len(last) != 2 || last[0].Makespan != 3 {
		t.Errorf("expected the last record's front, got %+v", last)
	}

	first, err := Front(path, "first")
	if err != nil {
		t.Fatalf("Front: %v", err)
	}
	if len(first) != 1 || first[0].Energy != 2 {
		t.Errorf("unexpected front %+v", first)
	}
	if len(first[0].Tasks) != 3 {
		t.Errorf("expected task sequence to round-trip, got %v", first[0].Tasks)
	}

	if _, err := Front(path, "missing"); err == nil {
		t.Error("expected error for unknown id")
	}
}

func TestSummarize_MatchesScan(t *testing.T) {
	rec := FromRun(makeRun("same", 4, [2]float64{7, 9}, [2]float64{3, 11}, [2]float64{5, 10}), Params{Benchmark: "b"})

	path := filepath.Join(t.TempDir(), "runs.jsonl")
	w, err := Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	w.Append(rec)
	w.Close()
	sums, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	direct := Summarize(rec)
	read := sums[0]
	if !direct.StartedAt.Equal(read.StartedAt) {
		t.Errorf("start times differ: %v vs %v", direct.StartedAt, read.StartedAt)
	}
	direct.StartedAt, read.StartedAt = time.Time{}, time.Time{}
	if direct != read {
		t.Errorf("summaries differ:\n%+v\n%+v", direct, read)
	}
	if direct.MinMakespan != 3 || direct.MaxEnergy != 11 || direct.FrontSize != 3 {
		t.Errorf("unexpected summary %+v", direct)
	}
}
