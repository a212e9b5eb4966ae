package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/erikjearl/SEPIA-Environments/db"
	"github.com/erikjearl/SEPIA-Environments/logging"
	"github.com/erikjearl/SEPIA-Environments/runner"
	"github.com/erikjearl/SEPIA-Environments/scenario"
	"github.com/erikjearl/SEPIA-Environments/search"
	"github.com/erikjearl/SEPIA-Environments/simlink"
)

type config struct {
	scenarioPath  string
	wsURL         string
	execute       bool
	outDir        string
	dbPath        string
	history       int
	tui           bool
	maxExpansions int
	timeout       time.Duration
	group         bool
	logFormat     string
	verbose       bool
}

func main() {
	var cfg config
	flag.StringVar(&cfg.scenarioPath, "scenario", getEnvOrDefault("PLANNER_SCENARIO", "scenarios/small.yaml"), "Scenario YAML (map, goal and planner settings)")
	flag.StringVar(&cfg.wsURL, "ws", getEnvOrDefault("PLANNER_WS", ""), "If set, read the snapshot from this simulation websocket instead of the scenario map")
	flag.BoolVar(&cfg.execute, "execute", getEnvBoolOrDefault("PLANNER_EXECUTE", false), "With -ws, drive the found plan in the simulation")
	flag.StringVar(&cfg.outDir, "out-dir", getEnvOrDefault("PLANNER_OUT_DIR", "data/runs"), "Directory for plan and trace parquet files (empty disables)")
	flag.StringVar(&cfg.dbPath, "db", getEnvOrDefault("PLANNER_DB", ""), "SQLite run index (empty disables)")
	flag.IntVar(&cfg.history, "history", 0, "With -db, list this many recent runs and exit")
	flag.BoolVar(&cfg.tui, "tui", getEnvBoolOrDefault("PLANNER_TUI", false), "Show a live progress view")
	flag.IntVar(&cfg.maxExpansions, "max-expansions", getEnvIntOrDefault("PLANNER_MAX_EXPANSIONS", 0), "Override the expansion budget (negative disables it)")
	flag.DurationVar(&cfg.timeout, "timeout", getEnvDurationOrDefault("PLANNER_TIMEOUT", 0), "Override the wall-clock budget")
	flag.BoolVar(&cfg.group, "group", getEnvBoolOrDefault("PLANNER_GROUP", false), "Enable group actions")
	flag.StringVar(&cfg.logFormat, "log-format", getEnvOrDefault("PLANNER_LOG_FORMAT", "text"), "text, json or pretty")
	flag.BoolVar(&cfg.verbose, "v", false, "Debug logging (one line per expansion)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		fmt.Fprintln(os.Stderr, "planner:", err)
		os.Exit(1)
	}
}

func newLogger(w io.Writer, format string, verbose bool) (*slog.Logger, error) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	switch format {
	case "text":
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), nil
	case "json":
		return slog.New(logging.NewTraceHandler(w, &logging.TraceOptions{Level: level})), nil
	case "pretty":
		return slog.New(logging.NewTraceHandler(w, &logging.TraceOptions{Level: level, Indent: true})), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

func run(ctx context.Context, cfg config) error {
	logOut := io.Writer(os.Stderr)
	if cfg.tui {
		// The terminal belongs to the progress view.
		if cfg.outDir != "" {
			if err := os.MkdirAll(cfg.outDir, 0o755); err != nil {
				return fmt.Errorf("create output dir: %w", err)
			}
		}
		f, err := os.OpenFile(filepath.Join(cfg.outDir, "planner.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		logOut = f
	}
	log, err := newLogger(logOut, cfg.logFormat, cfg.verbose)
	if err != nil {
		return err
	}
	slog.SetDefault(log)

	var index *db.DB
	if cfg.dbPath != "" {
		index, err = db.Open(cfg.dbPath)
		if err != nil {
			return err
		}
		defer index.Close()
	}
	if cfg.history > 0 {
		if index == nil {
			return errors.New("-history needs -db")
		}
		return printHistory(os.Stdout, index, cfg.history)
	}

	sc, err := scenario.Load(cfg.scenarioPath)
	if err != nil {
		return err
	}

	var link *simlink.Client
	if cfg.wsURL != "" {
		link, err = simlink.Dial(ctx, simlink.Config{URL: cfg.wsURL}, log)
		if err != nil {
			return err
		}
		defer link.Close()

		snap, err := link.ReadSnapshot(ctx)
		if err != nil {
			return err
		}
		sc.Name += "@live"
		sc.Snapshot = snap
	}

	if cfg.group {
		sc.Planner.GroupActions = true
	}
	if cfg.maxExpansions != 0 {
		sc.Planner.MaxExpansions = cfg.maxExpansions
	}
	if cfg.timeout > 0 {
		sc.Planner.Timeout = cfg.timeout
	}

	runID := uuid.NewString()
	opts := runner.Options{
		RunID:  runID,
		OutDir: cfg.outDir,
		Index:  index,
		Logger: log,
	}

	var out *runner.Outcome
	var planErr error
	if cfg.tui {
		opts.ProgressEvery = 200
		job := startSearch(ctx, sc, opts)
		defer job.cancel()

		m := initialModel(sc.Name, runID, sc.RequiredGold, sc.RequiredWood, job.updates, job.results, job.cancel)
		_, viewErr := tea.NewProgram(m).Run()
		// The view may have quit early or consumed the result already.
		done := job.wait()
		if viewErr != nil {
			return fmt.Errorf("progress view: %w", viewErr)
		}
		out, planErr = done.out, done.err
	} else {
		out, planErr = runner.Run(ctx, sc, opts)
	}
	if out == nil || out.Result == nil || planErr != nil {
		return planErr
	}

	res := out.Result
	printPlan(os.Stdout, res)

	if link != nil {
		actions := make([]string, len(res.Plan))
		for i, a := range res.Plan {
			actions[i] = a.String()
		}
		if err := link.PublishPlan(simlink.PlanMessage{
			RunID:   runID,
			Outcome: res.Outcome.String(),
			Cost:    res.Cost,
			Actions: actions,
		}); err != nil {
			return err
		}
		if cfg.execute {
			if _, err := link.Execute(ctx, out.Root, res.Plan); err != nil {
				return fmt.Errorf("execute plan: %w", err)
			}
		}
	}
	return nil
}

func printPlan(w io.Writer, res *search.Result) {
	fmt.Fprintf(w, "plan: %d steps, cost %.2f, %s expanded in %s\n",
		len(res.Plan), res.Cost, humanize.Comma(int64(res.Expanded)), res.Elapsed.Round(time.Millisecond))
	for i, a := range res.Plan {
		fmt.Fprintf(w, "%4d  %s\n", i, a)
	}
}

func printHistory(w io.Writer, index *db.DB, limit int) error {
	runs, err := index.RecentRuns("", limit)
	if err != nil {
		return err
	}
	var scenarios []string
	seen := make(map[string]bool)
	for _, r := range runs {
		fmt.Fprintf(w, "%s  %-20s %-11s cost=%-8.2f steps=%-5d expanded=%-10s %s\n",
			r.ID, r.Scenario, r.Outcome, r.Cost, r.Steps, humanize.Comma(int64(r.Expanded)), humanize.Time(r.CreatedAt))
		if !seen[r.Scenario] {
			seen[r.Scenario] = true
			scenarios = append(scenarios, r.Scenario)
		}
	}

	if len(scenarios) > 0 {
		fmt.Fprintln(w, "best:")
	}
	for _, name := range scenarios {
		best, err := index.BestRun(name)
		if errors.Is(err, db.ErrRunNotFound) {
			fmt.Fprintf(w, "  %-20s no plan found yet\n", name)
			continue
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "  %-20s cost=%-8.2f steps=%-5d %s\n", name, best.Cost, best.Steps, best.ID)
	}
	return nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		var i int
		if _, err := fmt.Sscanf(val, "%d", &i); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1" || val == "yes"
	}
	return defaultVal
}
