// Package metrics exposes search progress as Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/joshharrison/paretoloom/internal/chrom"
)

// Collectors groups the search metrics. A nil *Collectors is valid and
// records nothing.
type Collectors struct {
	Evaluations   prometheus.Counter
	Generations   prometheus.Counter
	LocalSearches prometheus.Counter
	Runs          prometheus.Counter
	ArchiveSize   prometheus.Gauge
	BestMakespan  prometheus.Gauge
	BestEnergy    prometheus.Gauge
	RunDuration   prometheus.Histogram

	registry *prometheus.Registry
}

// New creates the collectors on a private registry.
func New() *Collectors {
	c := &Collectors{
		Evaluations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "paretoloom_evaluations_total",
			Help: "Schedules simulated by the cost model.",
		}),
		Generations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "paretoloom_generations_total",
			Help: "Completed generations across all runs.",
		}),
		LocalSearches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "paretoloom_local_searches_total",
			Help: "Local search passes started.",
		}),
		Runs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "paretoloom_runs_total",
			Help: "Completed independent runs.",
		}),
		ArchiveSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "paretoloom_archive_size",
			Help: "Members of the external Pareto archive.",
		}),
		BestMakespan: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "paretoloom_archive_best_makespan",
			Help: "Smallest makespan in the archive.",
		}),
		BestEnergy: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "paretoloom_archive_best_energy",
			Help: "Smallest energy in the archive.",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "paretoloom_run_duration_seconds",
			Help:    "Wall-clock duration of a run.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		registry: prometheus.NewRegistry(),
	}
	c.registry.MustRegister(
		c.Evaluations, c.Generations, c.LocalSearches, c.Runs,
		c.ArchiveSize, c.BestMakespan, c.BestEnergy, c.RunDuration,
	)
	return c
}

// AddEvaluations counts n cost model calls.
func (c *Collectors) AddEvaluations(n int) {
	if c == nil {
		return
	}
	c.Evaluations.Add(float64(n))
}

func (c *Collectors) IncGeneration() {
	if c == nil {
		return
	}
	c.Generations.Inc()
}

func (c *Collectors) IncLocalSearch() {
	if c == nil {
		return
	}
	c.LocalSearches.Inc()
}

// ObserveArchive records the archive size and its best objectives.
func (c *Collectors) ObserveArchive(archive []chrom.Chromosome) {
	if c == nil {
		return
	}
	c.ArchiveSize.Set(float64(len(archive)))
	if len(archive) == 0 {
		return
	}
	ms, en := archive[0].Fitness.Makespan, archive[0].Fitness.Energy
	for _, a := range archive[1:] {
		if a.Fitness.Makespan < ms {
			ms = a.Fitness.Makespan
		}
		if a.Fitness.Energy < en {
			en = a.Fitness.Energy
		}
	}
	c.BestMakespan.Set(ms)
	c.BestEnergy.Set(en)
}

// ObserveRun records a finished run.
func (c *Collectors) ObserveRun(d time.Duration) {
	if c == nil {
		return
	}
	c.Runs.Inc()
	c.RunDuration.Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (c *Collectors) Serve(ctx context.Context, addr string, log zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
