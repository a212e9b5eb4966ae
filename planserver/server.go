package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/erikjearl/SEPIA-Environments/db"
	"github.com/erikjearl/SEPIA-Environments/game"
	"github.com/erikjearl/SEPIA-Environments/runner"
	"github.com/erikjearl/SEPIA-Environments/scenario"
	"github.com/erikjearl/SEPIA-Environments/search"
)

type InfoResponse struct {
	APIVersion string `json:"apiversion"`
	Name       string `json:"name"`
	Version    string `json:"version"`
}

// PlanRequest is a snapshot plus optional per-request planner settings.
type PlanRequest struct {
	Name string `json:"name"`
	game.Snapshot
	MaxExpansions int           `json:"max_expansions"`
	TimeoutMs     int           `json:"timeout_ms"`
	GroupActions  bool          `json:"group_actions"`
	Weights       *game.Weights `json:"weights,omitempty"`
}

type PlanStep struct {
	Kind    string  `json:"kind"`
	Action  string  `json:"action"`
	Workers []int   `json:"workers"`
	Cost    float64 `json:"cost"`
}

type PlanResponse struct {
	RunID     string     `json:"run_id"`
	Outcome   string     `json:"outcome"`
	Cost      float64    `json:"cost"`
	Steps     []PlanStep `json:"steps"`
	Expanded  int        `json:"expanded"`
	ElapsedMs int64      `json:"elapsed_ms"`
	Error     string     `json:"error,omitempty"`
}

// Limits bound what a single request may ask for. Requests can tighten them
// but never lift them.
type Limits struct {
	PlanTimeout   time.Duration
	MaxExpansions int
	MaxBodyBytes  int64
}

func DefaultLimits() Limits {
	return Limits{
		PlanTimeout:   10 * time.Second,
		MaxExpansions: search.DefaultMaxExpansions,
		MaxBodyBytes:  1 << 20,
	}
}

// Server answers planning requests within a time limit.
type Server struct {
	index  *db.DB
	outDir string
	limits Limits
	log    *slog.Logger
}

func NewServer(index *db.DB, outDir string, limits Limits, log *slog.Logger) *Server {
	return &Server{index: index, outDir: outDir, limits: limits, log: log}
}

// budget applies the server limits to the values a request asked for.
func (s *Server) budget(timeoutMs, maxExpansions int) (time.Duration, int) {
	timeout := s.limits.PlanTimeout
	if asked := time.Duration(timeoutMs) * time.Millisecond; asked > 0 && asked < timeout {
		timeout = asked
	}
	expansions := s.limits.MaxExpansions
	if maxExpansions > 0 && maxExpansions < expansions {
		expansions = maxExpansions
	}
	return timeout, expansions
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/plan", s.handlePlan)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(InfoResponse{APIVersion: "1", Name: "sepia-planner", Version: "1.0.0"})
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.limits.MaxBodyBytes)
	var req PlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		http.Error(w, err.Error(), status)
		return
	}

	timeout, expansions := s.budget(req.TimeoutMs, req.MaxExpansions)
	name := req.Name
	if name == "" {
		name = "http"
	}
	sc := scenario.Scenario{
		Name:     name,
		Snapshot: req.Snapshot,
		Planner: scenario.Planner{
			MaxExpansions: expansions,
			Timeout:       timeout,
			GroupActions:  req.GroupActions,
			Weights:       req.Weights,
		},
	}
	if err := sc.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	out, err := runner.Run(r.Context(), sc, runner.Options{OutDir: s.outDir, Index: s.index, Logger: s.log})
	if out == nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	resp := PlanResponse{
		RunID:     out.Record.ID,
		Outcome:   out.Record.Outcome,
		Cost:      out.Record.Cost,
		Steps:     make([]PlanStep, 0, len(out.Result.Plan)),
		Expanded:  out.Record.Expanded,
		ElapsedMs: out.Record.ElapsedMs,
	}
	for _, a := range out.Result.Plan {
		resp.Steps = append(resp.Steps, PlanStep{Kind: a.Kind().String(), Action: a.String(), Workers: a.Workers(), Cost: a.Cost()})
	}

	status := http.StatusOK
	if err != nil {
		resp.Error = err.Error()
		switch {
		case errors.Is(err, search.ErrUnreachableGoal):
			status = http.StatusUnprocessableEntity
		case errors.Is(err, search.ErrSearchExhausted):
			status = http.StatusGatewayTimeout
		default:
			status = http.StatusInternalServerError
		}
	}
	s.log.Info("plan served", "run_id", resp.RunID, "outcome", resp.Outcome, "steps", len(resp.Steps), "status", status)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}
