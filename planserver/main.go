// Command planserver answers planning requests over HTTP.
//
// POST /plan takes a snapshot (the same JSON a simulation sends over simlink)
// with optional planner settings and returns the plan found within the time
// limit. Requests may lower the server's time and expansion limits but not
// raise them.
package main

import (
	"flag"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/erikjearl/SEPIA-Environments/db"
)

func main() {
	fs := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	listen := fs.String("listen", ":8080", "HTTP listen address")
	limits := DefaultLimits()
	fs.DurationVar(&limits.PlanTimeout, "plan-timeout", limits.PlanTimeout, "Longest time a plan request may search")
	fs.IntVar(&limits.MaxExpansions, "max-expansions", limits.MaxExpansions, "Most expansions a plan request may use")
	fs.Int64Var(&limits.MaxBodyBytes, "max-body-bytes", limits.MaxBodyBytes, "Largest accepted request body")
	dbPath := fs.String("db", "", "SQLite run index (empty disables)")
	outDir := fs.String("out-dir", "", "Directory for plan and trace parquet files (empty disables)")
	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	var index *db.DB
	if *dbPath != "" {
		var err error
		index, err = db.Open(*dbPath)
		if err != nil {
			log.Error("open run index", "error", err)
			os.Exit(1)
		}
		defer index.Close()
	}

	server := NewServer(index, *outDir, limits, log)
	mux := http.NewServeMux()
	server.RegisterRoutes(mux)

	srv := &http.Server{
		Addr:              *listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Info("plan server listening", "addr", *listen)
	if err := srv.ListenAndServe(); err != nil {
		log.Error("serve", "error", err)
		os.Exit(1)
	}
}
