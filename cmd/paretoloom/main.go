package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joshharrison/paretoloom/internal/bench"
	"github.com/joshharrison/paretoloom/internal/chrom"
	"github.com/joshharrison/paretoloom/internal/costmodel"
	"github.com/joshharrison/paretoloom/internal/cpm"
	"github.com/joshharrison/paretoloom/internal/engine"
	"github.com/joshharrison/paretoloom/internal/metrics"
	"github.com/joshharrison/paretoloom/internal/planner"
	"github.com/joshharrison/paretoloom/internal/platform"
	"github.com/joshharrison/paretoloom/internal/problem"
	"github.com/joshharrison/paretoloom/internal/reporter"
	"github.com/joshharrison/paretoloom/internal/results"
	"github.com/joshharrison/paretoloom/internal/ui"
)

var (
	cfg = viper.New()
	log = zerolog.Nop()
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "paretoloom",
		Short: "Energy-aware multi-objective scheduling of task graphs",
		Long: `Paretoloom searches for Pareto-optimal (makespan, energy) schedules of a task
DAG on a heterogeneous multicore platform with per-core DVFS levels, using
NSGA-II with a neighbourhood local search.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setup(cmd)
		},
	}

	// Global flags
	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "YAML config file (flags and PARETOLOOM_* env vars override it)")
	pf.String("platform", "", "Platform YAML (defaults to the built-in 8-core platform)")
	pf.String("stg", "", "STG benchmark file")
	pf.String("extra", "", "Companion file with communication volumes and cycle tables")
	pf.Int("cores", 0, "Use the first N cores of the platform (0 = all)")
	pf.Int("levels", 0, "Use the first N DVFS levels of every core (0 = all)")
	pf.Bool("json", false, "Machine-readable JSON output")
	pf.String("log-level", "info", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(evalCmd())
	rootCmd.AddCommand(boundCmd())
	rootCmd.AddCommand(showCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup binds flags, environment and the optional config file into cfg and
// builds the logger.
func setup(cmd *cobra.Command) error {
	if err := cfg.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("bind flags: %w", err)
	}
	cfg.SetEnvPrefix("PARETOLOOM")
	cfg.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	cfg.AutomaticEnv()

	if path := cfg.GetString("config"); path != "" {
		cfg.SetConfigFile(path)
		cfg.SetConfigType("yaml")
		if err := cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
	}

	level, err := zerolog.ParseLevel(cfg.GetString("log-level"))
	if err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}
	log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		Level(level).With().Timestamp().Logger()
	return nil
}

// loadProblem is shared logic for the run, eval and bound commands.
func loadProblem() (*problem.Problem, string, error) {
	stg := cfg.GetString("stg")
	if stg == "" {
		return nil, "", fmt.Errorf("no benchmark given (use --stg)")
	}

	plat := platform.Default()
	if path := cfg.GetString("platform"); path != "" {
		var err error
		plat, err = platform.Load(path)
		if err != nil {
			return nil, "", err
		}
	}

	m, h := cfg.GetInt("cores"), cfg.GetInt("levels")
	if m == 0 {
		m = plat.NumCores()
	}
	if h == 0 {
		h = plat.NumLevels()
	}
	plat, err := plat.Restrict(m, h, log)
	if err != nil {
		return nil, "", err
	}

	g, err := bench.Load(stg, cfg.GetString("extra"), plat.NumCores(), log)
	if err != nil {
		return nil, "", fmt.Errorf("load benchmark: %w", err)
	}

	p, err := problem.New(g, plat)
	if err != nil {
		return nil, "", err
	}
	name := strings.TrimSuffix(filepath.Base(stg), filepath.Ext(stg))
	log.Debug().Str("benchmark", name).Int("tasks", p.N()).Int("cores", p.M()).Int("levels", p.H()).Msg("problem loaded")
	return p, name, nil
}

// signalContext cancels on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintf(os.Stderr, "\n🛑 %s\n", ui.Yellow("Received interrupt, cancelling..."))
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Search for Pareto-optimal schedules",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, name, err := loadProblem()
			if err != nil {
				return err
			}
			analysis, err := cpm.Analyze(p)
			if err != nil {
				return fmt.Errorf("critical path analysis: %w", err)
			}

			ctx, cancel := signalContext()
			defer cancel()

			ecfg := engine.Config{
				Population:      cfg.GetInt("population"),
				ArchiveCapacity: cfg.GetInt("archive"),
				Crossover:       cfg.GetFloat64("crossover"),
				Mutation:        cfg.GetFloat64("mutation"),
				LocalSearch:     cfg.GetFloat64("local-search"),
				Generations:     cfg.GetInt("generations"),
				Runs:            cfg.GetInt("runs"),
				Workers:         cfg.GetInt("workers"),
				Seed:            cfg.GetInt64("seed"),
				Log:             log,
			}

			if addr := cfg.GetString("metrics-addr"); addr != "" {
				ecfg.Metrics = metrics.New()
				go func() {
					if err := ecfg.Metrics.Serve(ctx, addr, log); err != nil {
						log.Error().Err(err).Str("addr", addr).Msg("metrics endpoint failed")
					}
				}()
			}

			asJSON := cfg.GetBool("json")
			rpt := reporter.New(name, analysis.LowerBound)
			progress := !asJSON && !cfg.GetBool("quiet")
			if progress {
				ecfg.OnGeneration = func(s engine.GenerationStats) {
					if s.Generation%10 == 0 || s.Generation == ecfg.Generations-1 {
						rpt.PrintProgress(os.Stderr, ecfg.Generations, s)
					}
				}
			}

			eng, err := engine.New(p, ecfg)
			if err != nil {
				return err
			}

			var out *results.Writer
			if path := cfg.GetString("output"); path != "" {
				out, err = results.Create(path)
				if err != nil {
					return err
				}
				defer out.Close()
			}

			params := results.Params{
				Benchmark:   name,
				Tasks:       p.N(),
				Cores:       p.M(),
				Levels:      p.H(),
				Population:  eng.Config.Population,
				Archive:     eng.Config.ArchiveCapacity,
				Crossover:   eng.Config.Crossover,
				Mutation:    eng.Config.Mutation,
				LocalSearch: eng.Config.LocalSearch,
				Generations: eng.Config.Generations,
				Seed:        eng.Seed(),
			}

			if !asJSON {
				ui.PrintLogo(os.Stderr)
				fmt.Printf("🚀 %s %s tasks on %s cores × %s levels, %s runs of %s generations\n",
					ui.BoldCyan("Paretoloom:"), ui.Bold(p.N()), ui.Bold(p.M()), ui.Bold(p.H()),
					ui.Bold(eng.Config.Runs), ui.Bold(eng.Config.Generations))
				fmt.Printf("Critical-path bound: %s  %s\n\n",
					ui.Bold(fmt.Sprintf("%.3f", analysis.LowerBound)), ui.Dim(fmt.Sprintf("(seed %d)", eng.Seed())))
			}

			err = eng.RunAll(ctx, func(res *engine.RunResult) error {
				rec := results.FromRun(res, params)
				if out != nil {
					if err := out.Append(rec); err != nil {
						return err
					}
				}
				sum := results.Summarize(rec)
				rpt.Add(sum)
				if progress {
					fmt.Fprintln(os.Stderr)
				}
				if !asJSON {
					rpt.PrintFront(os.Stdout, sum, rec.Solutions)
				}
				return nil
			})

			switch {
			case err == nil:
				rpt.Status = "completed"
			case errors.Is(err, context.Canceled):
				rpt.Status = "cancelled"
			default:
				rpt.Status = "failed"
			}

			if asJSON {
				data, jerr := rpt.JSON()
				if jerr != nil {
					return jerr
				}
				fmt.Println(string(data))
			} else {
				rpt.PrintSummaryReport(os.Stdout)
				if out != nil {
					fmt.Printf("Results:   %s\n", ui.Dim(out.Path()))
				}
			}
			return err
		},
	}

	f := cmd.Flags()
	f.Int("population", engine.DefaultPopulation, "Population size (at least 4)")
	f.Int("archive", engine.DefaultArchiveCapacity, "External Pareto archive capacity")
	f.Float64("crossover", engine.DefaultCrossover, "Crossover probability")
	f.Float64("mutation", engine.DefaultMutation, "Mutation probability")
	f.Float64("local-search", engine.DefaultLocalSearch, "Per-generation local search probability")
	f.Int("generations", engine.DefaultGenerations, "Generations per run")
	f.Int("runs", engine.DefaultRuns, "Independent runs")
	f.Int("workers", 0, "Concurrent evaluations (0 = GOMAXPROCS)")
	f.Int64("seed", 0, "Random seed (0 = time-based)")
	f.String("output", "", "Append run records to this JSON-lines file")
	f.String("metrics-addr", "", "Serve Prometheus metrics on this address while running")
	f.BoolP("quiet", "q", false, "Suppress per-generation progress")

	return cmd
}

func evalCmd() *cobra.Command {
	var (
		flagTasks    []int
		flagOn       []int
		flagAt       []int
		flagFrom     string
		flagID       string
		flagIndex    int
		flagTemplate string
		flagPlain    bool
	)

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Simulate one schedule and show its timeline and energy breakdown",
		Long: `Simulate one schedule. The schedule comes either from --tasks/--on/--at
(task order, core and DVFS level per position) or from an archived solution
in a results file (--from, --id, --index). Without either, tasks run in
topological order on core 0 at level 0.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, _, err := loadProblem()
			if err != nil {
				return err
			}

			var c chrom.Chromosome
			switch {
			case flagFrom != "":
				front, err := results.Front(flagFrom, flagID)
				if err != nil {
					return err
				}
				if flagIndex < 0 || flagIndex >= len(front) {
					return fmt.Errorf("solution index %d out of range (front has %d)", flagIndex, len(front))
				}
				sol := front[flagIndex]
				c = chrom.Chromosome{Tasks: sol.Tasks, Cores: sol.Cores, Levels: sol.Levels, Rank: chrom.Unranked}
			default:
				tasks := flagTasks
				if len(tasks) == 0 {
					tasks = p.Graph.TopoOrder
				}
				c = chrom.New(len(tasks))
				copy(c.Tasks, tasks)
				if len(flagOn) > 0 {
					if len(flagOn) != len(tasks) {
						return fmt.Errorf("--on has %d entries, --tasks has %d", len(flagOn), len(tasks))
					}
					copy(c.Cores, flagOn)
				}
				if len(flagAt) > 0 {
					if len(flagAt) != len(tasks) {
						return fmt.Errorf("--at has %d entries, --tasks has %d", len(flagAt), len(tasks))
					}
					copy(c.Levels, flagAt)
				}
			}
			if err := c.Validate(p.M(), p.H()); err != nil {
				return err
			}

			trace, err := costmodel.New(p).Trace(c)
			if err != nil {
				return fmt.Errorf("simulate: %w", err)
			}
			analysis, err := cpm.Analyze(p)
			if err != nil {
				return fmt.Errorf("critical path analysis: %w", err)
			}
			tl, err := planner.Generate(p, trace, analysis)
			if err != nil {
				return err
			}

			switch {
			case cfg.GetBool("json"):
				return outputJSON(tl)
			case flagTemplate != "" || flagPlain:
				text, err := planner.Render(tl, flagTemplate)
				if err != nil {
					return err
				}
				fmt.Print(text)
			default:
				reporter.PrintTimeline(os.Stdout, tl)
			}
			return nil
		},
	}

	cmd.Flags().IntSliceVar(&flagTasks, "tasks", nil, "Task order, comma separated")
	cmd.Flags().IntSliceVar(&flagOn, "on", nil, "Core per position, comma separated (default all 0)")
	cmd.Flags().IntSliceVar(&flagAt, "at", nil, "DVFS level per position, comma separated (default all 0)")
	cmd.Flags().StringVar(&flagFrom, "from", "", "Results file to take an archived solution from")
	cmd.Flags().StringVar(&flagID, "id", "", "Run id within --from (default: last run)")
	cmd.Flags().IntVar(&flagIndex, "index", 0, "Solution index within the run's front")
	cmd.Flags().StringVar(&flagTemplate, "template", "", "Render the timeline through a text/template file")
	cmd.Flags().BoolVar(&flagPlain, "plain", false, "Render the timeline with the built-in plain text template")

	return cmd
}

func boundCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bound",
		Short: "Show the critical-path lower bound on makespan",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, name, err := loadProblem()
			if err != nil {
				return err
			}
			result, err := cpm.Analyze(p)
			if err != nil {
				return fmt.Errorf("critical path analysis: %w", err)
			}

			if cfg.GetBool("json") {
				return outputJSON(result)
			}

			fmt.Printf("📐 %s %s\n", ui.BoldCyan("Bound:"), ui.Dim(name))
			fmt.Printf("Tasks:          %d on %d cores\n", p.N(), p.M())
			fmt.Printf("Critical path:  %.3f\n", result.TotalDuration)
			fmt.Printf("Work / cores:   %.3f\n", result.TotalWork/float64(p.M()))
			fmt.Printf("Lower bound:    %s\n\n", ui.Bold(fmt.Sprintf("%.3f", result.LowerBound)))

			for _, wave := range result.Waves {
				crit := ""
				if wave.IsCritical {
					crit = " " + ui.BoldYellow("⚡")
				}
				fmt.Printf("  🌊 %s %d: %d tasks%s\n", ui.BoldWhite("Level"), wave.Index, len(wave.TaskIDs), crit)
			}
			if len(result.CriticalPath) > 0 {
				ids := make([]string, len(result.CriticalPath))
				for i, id := range result.CriticalPath {
					ids[i] = fmt.Sprint(id)
				}
				fmt.Printf("\nCritical:  %s\n", ui.BoldYellow("⚡ "+strings.Join(ids, " → ")))
			}
			return nil
		},
	}
}

func showCmd() *cobra.Command {
	var (
		flagID    string
		flagFront bool
	)

	cmd := &cobra.Command{
		Use:   "show <results.jsonl>",
		Short: "Summarize a results file written by run --output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			sums, err := results.Load(path)
			if err != nil {
				return err
			}
			if len(sums) == 0 {
				return fmt.Errorf("%s holds no records", path)
			}

			rpt := reporter.New(sums[0].Benchmark, 0)
			rpt.Status = "completed"
			for _, s := range sums {
				if flagID == "" || s.ID == flagID {
					rpt.Add(s)
				}
			}
			if len(rpt.Runs) == 0 {
				return fmt.Errorf("no record with id %q in %s", flagID, path)
			}

			if cfg.GetBool("json") {
				data, err := rpt.JSON()
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				return nil
			}

			if flagFront || flagID != "" {
				for _, s := range rpt.Runs {
					front, err := results.Front(path, s.ID)
					if err != nil {
						return err
					}
					rpt.PrintFront(os.Stdout, s, front)
				}
			} else {
				for _, s := range rpt.Runs {
					fmt.Printf("%s run %-3d front %-4d makespan %.3f..%.3f  energy %.3f..%.3f  %s\n",
						ui.RunPrefix(s.ID), s.Run+1, s.FrontSize,
						s.MinMakespan, s.MaxMakespan, s.MinEnergy, s.MaxEnergy,
						ui.Dim(s.StartedAt.Format(time.DateTime)))
				}
			}
			rpt.PrintSummaryReport(os.Stdout)
			return nil
		},
	}

	cmd.Flags().StringVar(&flagID, "id", "", "Only show the run with this id")
	cmd.Flags().BoolVar(&flagFront, "front", false, "Print every run's full front")

	return cmd
}

func outputJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
