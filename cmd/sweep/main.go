// Command sweep plans every scenario matching a glob on a pool of workers and
// records each run in the archive and the run index.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/erikjearl/SEPIA-Environments/db"
	"github.com/erikjearl/SEPIA-Environments/runner"
	"github.com/erikjearl/SEPIA-Environments/scenario"
)

type job struct {
	path   string
	repeat int
}

type result struct {
	job job
	out *runner.Outcome
	err error
}

func main() {
	pattern := flag.String("scenarios", filepath.Join("scenarios", "*.yaml"), "Glob of scenario files to plan")
	workers := flag.Int("workers", runtime.NumCPU(), "Number of concurrent planners")
	repeat := flag.Int("repeat", 1, "Plan each scenario this many times")
	outDir := flag.String("out-dir", filepath.Join("data", "runs"), "Directory for plan and trace parquet files")
	dbPath := flag.String("db", filepath.Join("data", "runs.db"), "SQLite run index")
	timeout := flag.Duration("timeout", 0, "Override every scenario's wall-clock budget")
	flag.Parse()

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sweep(sigCtx, *pattern, *workers, *repeat, *outDir, *dbPath, *timeout); err != nil {
		slog.Error("sweep failed", "error", err)
		os.Exit(1)
	}
}

func sweep(ctx context.Context, pattern string, workers, repeat int, outDir, dbPath string, timeout time.Duration) error {
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no scenarios match %s", pattern)
	}
	sort.Strings(paths)

	var index *db.DB
	if dbPath != "" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return fmt.Errorf("create db dir: %w", err)
		}
		index, err = db.Open(dbPath)
		if err != nil {
			return err
		}
		defer index.Close()
	}

	workers = max(1, workers)
	jobs := make(chan job, workers)
	results := make(chan result, workers)
	var planned atomic.Int64

	var workerWG sync.WaitGroup
	for i := 0; i < workers; i++ {
		workerWG.Add(1)
		go func(workerID int) {
			defer workerWG.Done()
			log := slog.Default().With("worker", workerID)
			for j := range jobs {
				if ctx.Err() != nil {
					return
				}
				planned.Add(1)
				sc, err := scenario.Load(j.path)
				if err != nil {
					results <- result{job: j, err: err}
					continue
				}
				if timeout > 0 {
					sc.Planner.Timeout = timeout
				}
				out, err := runner.Run(ctx, sc, runner.Options{OutDir: outDir, Index: index, Logger: log})
				results <- result{job: j, out: out, err: err}
			}
		}(i)
	}

	go func() {
		defer close(jobs)
		for _, p := range paths {
			for r := 0; r < max(1, repeat); r++ {
				select {
				case jobs <- job{path: p, repeat: r}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	go func() {
		workerWG.Wait()
		close(results)
	}()

	start := time.Now()
	var failed int
	for res := range results {
		name := filepath.Base(res.job.path)
		if res.out == nil {
			failed++
			slog.Error("scenario not planned", "scenario", name, "error", res.err)
			continue
		}
		rec := res.out.Record
		if res.err != nil {
			failed++
		}
		fmt.Printf("%-24s #%d  %-11s cost=%-9.2f steps=%-5d expanded=%-10s %s\n",
			name, res.job.repeat, rec.Outcome, rec.Cost, rec.Steps,
			humanize.Comma(int64(rec.Expanded)), time.Duration(rec.ElapsedMs)*time.Millisecond)
	}

	slog.Info("sweep finished",
		"runs", planned.Load(),
		"failed", failed,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	if err := ctx.Err(); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d runs failed", failed, planned.Load())
	}
	return nil
}
