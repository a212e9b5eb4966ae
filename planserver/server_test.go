package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erikjearl/SEPIA-Environments/db"
)

const oneTrip = `{
  "townhall": {"id": 1, "x": 0, "y": 0},
  "workers": [{"id": 2, "x": 0, "y": 0}],
  "resources": [{"id": 10, "kind": "gold", "x": 2, "y": 0, "amount": 100}],
  "required_gold": %d
}`

func newTestServer(t *testing.T, index *db.DB) *httptest.Server {
	t.Helper()
	limits := DefaultLimits()
	limits.PlanTimeout = 5 * time.Second
	return newLimitedServer(t, index, limits)
}

func newLimitedServer(t *testing.T, index *db.DB, limits Limits) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	NewServer(index, t.TempDir(), limits, slog.New(slog.DiscardHandler)).RegisterRoutes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func postPlan(t *testing.T, ts *httptest.Server, body string) (*http.Response, PlanResponse) {
	t.Helper()
	resp, err := http.Post(ts.URL+"/plan", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out PlanResponse
	if resp.Header.Get("Content-Type") == "application/json" {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func TestIndex(t *testing.T) {
	ts := newTestServer(t, nil)
	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	var info InfoResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	assert.Equal(t, "sepia-planner", info.Name)

	missing, err := http.Get(ts.URL + "/nope")
	require.NoError(t, err)
	missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestPlan_Found(t *testing.T) {
	index, err := db.Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { index.Close() })
	ts := newTestServer(t, index)

	resp, out := postPlan(t, ts, fmt.Sprintf(oneTrip, 100))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "found", out.Outcome)
	require.Len(t, out.Steps, 4)
	assert.Equal(t, "move", out.Steps[0].Kind)
	assert.Equal(t, "deposit", out.Steps[3].Kind)
	assert.Equal(t, []int{2}, out.Steps[1].Workers)
	assert.Empty(t, out.Error)

	run, err := index.GetRun(out.RunID)
	require.NoError(t, err)
	assert.Equal(t, "http", run.Scenario)
	assert.NotEmpty(t, run.PlanPath)
}

func TestPlan_Unreachable(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, out := postPlan(t, ts, fmt.Sprintf(oneTrip, 200))
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "unreachable", out.Outcome)
	assert.Empty(t, out.Steps)
	assert.Contains(t, out.Error, "unreachable")
}

func TestPlan_Exhausted(t *testing.T) {
	ts := newTestServer(t, nil)

	body := `{"max_expansions": 1, "townhall": {"id": 1}, "workers": [{"id": 2}],
	  "resources": [{"id": 10, "kind": "gold", "x": 3, "amount": 1000}], "required_gold": 500}`
	resp, out := postPlan(t, ts, body)
	assert.Equal(t, http.StatusGatewayTimeout, resp.StatusCode)
	assert.Equal(t, "exhausted", out.Outcome)
}

func TestPlan_BadRequests(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, _ := postPlan(t, ts, "{")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = postPlan(t, ts, `{"townhall": {"id": 1}, "workers": []}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	get, err := http.Get(ts.URL + "/plan")
	require.NoError(t, err)
	get.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, get.StatusCode)
}

func TestPlan_RequestCannotLiftLimits(t *testing.T) {
	t.Run("expansions", func(t *testing.T) {
		limits := DefaultLimits()
		limits.MaxExpansions = 3
		ts := newLimitedServer(t, nil, limits)

		body := `{"max_expansions": -1, "townhall": {"id": 1}, "workers": [{"id": 2}],
		  "resources": [{"id": 10, "kind": "gold", "x": 3, "amount": 1000}], "required_gold": 500}`
		resp, out := postPlan(t, ts, body)
		assert.Equal(t, http.StatusGatewayTimeout, resp.StatusCode)
		assert.Equal(t, 3, out.Expanded)
	})

	t.Run("timeout", func(t *testing.T) {
		limits := DefaultLimits()
		limits.PlanTimeout = time.Nanosecond
		ts := newLimitedServer(t, nil, limits)

		body := `{"timeout_ms": 60000, "townhall": {"id": 1}, "workers": [{"id": 2}],
		  "resources": [{"id": 10, "kind": "gold", "x": 2, "amount": 100}], "required_gold": 100}`
		resp, out := postPlan(t, ts, body)
		assert.Equal(t, http.StatusGatewayTimeout, resp.StatusCode)
		assert.Equal(t, "exhausted", out.Outcome)
	})
}

func TestPlan_BodyTooLarge(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxBodyBytes = 32
	ts := newLimitedServer(t, nil, limits)

	resp, _ := postPlan(t, ts, fmt.Sprintf(oneTrip, 100))
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestBudget(t *testing.T) {
	s := NewServer(nil, "", Limits{PlanTimeout: 2 * time.Second, MaxExpansions: 100}, slog.New(slog.DiscardHandler))

	timeout, expansions := s.budget(0, 0)
	assert.Equal(t, 2*time.Second, timeout)
	assert.Equal(t, 100, expansions)

	timeout, expansions = s.budget(500, 10)
	assert.Equal(t, 500*time.Millisecond, timeout)
	assert.Equal(t, 10, expansions)

	timeout, expansions = s.budget(60_000, -1)
	assert.Equal(t, 2*time.Second, timeout)
	assert.Equal(t, 100, expansions)
}
