package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/joshharrison/paretoloom/internal/chrom"
)

func member(ms, en float64) chrom.Chromosome {
	c := chrom.New(1)
	c.SetFitness(chrom.Fitness{Makespan: ms, Energy: en})
	return c
}

func TestCollectors(t *testing.T) {
	c := New()
	c.AddEvaluations(50)
	c.AddEvaluations(25)
	c.IncGeneration()
	c.IncLocalSearch()
	c.ObserveArchive([]chrom.Chromosome{member(5, 1), member(2, 9), member(3, 4)})
	c.ObserveRun(1500 * time.Millisecond)

	if got := testutil.ToFloat64(c.Evaluations); got != 75 {
		t.Errorf("expected 75 evaluations, got %v", got)
	}
	if got := testutil.ToFloat64(c.Generations); got != 1 {
		t.Errorf("expected 1 generation, got %v", got)
	}
	if got := testutil.ToFloat64(c.ArchiveSize); got != 3 {
		t.Errorf("expected archive size 3, got %v", got)
	}
	if got := testutil.ToFloat64(c.BestMakespan); got != 2 {
		t.Errorf("expected best makespan 2, got %v", got)
	}
	if got := testutil.ToFloat64(c.BestEnergy); got != 1 {
		t.Errorf("expected best energy 1, got %v", got)
	}
	if got := testutil.ToFloat64(c.Runs); got != 1 {
		t.Errorf("expected 1 run, got %v", got)
	}
}

func TestCollectors_NilSafe(t *testing.T) {
	var c *Collectors
	c.AddEvaluations(1)
	c.IncGeneration()
	c.IncLocalSearch()
	c.ObserveArchive(nil)
	c.ObserveRun(time.Second)
}

func TestHandler(t *testing.T) {
	c := New()
	c.AddEvaluations(3)

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(body), "paretoloom_evaluations_total 3") {
		t.Errorf("expected evaluation counter in output, got:\n%s", body)
	}
}
