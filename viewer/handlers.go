package main

import (
	"database/sql"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/erikjearl/SEPIA-Environments/db"
	"github.com/erikjearl/SEPIA-Environments/store"
)

// Server holds shared state for HTTP handlers.
type Server struct {
	index   *db.DB
	dataDir string
	duck    *DBCache
}

func NewServer(index *db.DB, dataDir string) *Server {
	return &Server{
		index:   index,
		dataDir: dataDir,
		duck:    NewDBCache(dataDir, 30*time.Second),
	}
}

func (s *Server) Close() error {
	return s.duck.Close()
}

// RegisterRoutes sets up all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/runs", s.handleRuns)
	mux.HandleFunc("/api/runs/", s.handleRun)
	mux.HandleFunc("/api/stats", s.handleStats)
}

type RunDetail struct {
	Run   db.Run              `json:"run"`
	Steps []store.PlanStepRow `json:"steps"`
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	limit := parseIntQuery(r, "limit", 100)
	scenario := strings.TrimSpace(r.URL.Query().Get("scenario"))
	runs, err := s.index.RecentRuns(scenario, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []db.Run{}
	}
	writeJSON(w, runs)
}

// handleRun serves /api/runs/{id} and /api/runs/{id}/trace.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/runs/"), "/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" || (sub != "" && sub != "trace") {
		http.NotFound(w, r)
		return
	}

	run, err := s.index.GetRun(id)
	if errors.Is(err, db.ErrRunNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if sub == "trace" {
		if run.TracePath == "" {
			writeJSON(w, []store.ProgressRow{})
			return
		}
		rows, err := store.ReadTraceParquet(s.resolve(run.TracePath))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, rows)
		return
	}

	detail := RunDetail{Run: run, Steps: []store.PlanStepRow{}}
	if run.PlanPath != "" {
		rows, err := store.ReadPlanParquet(s.resolve(run.PlanPath))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if rows != nil {
			detail.Steps = rows
		}
	}
	writeJSON(w, detail)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	var stats []ScenarioStats
	err := s.duck.With(func(duck *sql.DB) error {
		var err error
		stats, err = queryScenarioStats(r.Context(), duck)
		return err
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if stats == nil {
		stats = []ScenarioStats{}
	}
	writeJSON(w, stats)
}

// resolve finds an archive path recorded by the planner. Archives that were
// moved along with their data dir are looked up by file name.
func (s *Server) resolve(path string) string {
	if _, err := os.Stat(path); err == nil {
		return path
	}
	return filepath.Join(s.dataDir, filepath.Base(path))
}
