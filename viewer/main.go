// Command viewer serves planning runs over HTTP: the run index, archived
// plans with their per-step state, search traces and per-scenario stats.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/erikjearl/SEPIA-Environments/db"
)

func main() {
	fs := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	listen := fs.String("listen", "127.0.0.1:8080", "HTTP listen address")
	dbPath := fs.String("db", filepath.Join("data", "runs.db"), "SQLite run index written by the planner")
	dataDir := fs.String("data-dir", filepath.Join("data", "runs"), "Directory with plan and trace parquet files")
	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}

	index, err := db.Open(*dbPath)
	if err != nil {
		slog.Error("open run index", "error", err)
		os.Exit(1)
	}
	defer index.Close()

	srvState := NewServer(index, *dataDir)
	defer srvState.Close()

	mux := http.NewServeMux()
	srvState.RegisterRoutes(mux)

	srv := &http.Server{
		Addr:              *listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("viewer listening", "addr", "http://"+*listen, "data_dir", *dataDir)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("serve", "error", err)
		os.Exit(1)
	}
}
