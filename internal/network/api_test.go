package network

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MRamiBalles/PandemicSim/internal/engine"
	"github.com/MRamiBalles/PandemicSim/internal/events"
	"github.com/MRamiBalles/PandemicSim/internal/infra/storage"
	"github.com/MRamiBalles/PandemicSim/internal/platform/config"
	"github.com/MRamiBalles/PandemicSim/internal/platform/logger"
)

type fixture struct {
	router     *mux.Router
	controller *Controller
	engine     *engine.Engine
	eventLog   *events.EventLog
	hub        *Hub
}

// newFixture wires every handler around an engine whose ticker is never
// started, so only control actions advance it.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logger.NewNopLogger()
	eventLog := events.NewEventLog(nil)

	cfg := config.LowResourceConfig()
	cfg.Seed = 5
	eng, err := engine.NewEngine(cfg, eventLog, log)
	require.NoError(t, err)

	ticker := engine.NewTicker(eng, log)
	controller := NewController(eng, ticker, log)
	hub := NewHub(controller, log, 2, 16)

	return &fixture{
		router: NewRouter(Routes{
			Hub:     hub,
			Control: NewControlHandler(controller, log),
			Replay:  NewReplayHandler(eventLog, log),
			Report:  NewReportHandler(controller, log),
		}),
		controller: controller,
		engine:     eng,
		eventLog:   eventLog,
		hub:        hub,
	}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v))
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestCounts(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/counts", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got CountsResponse
	decode(t, rec, &got)
	assert.Equal(t, f.engine.RunID(), got.RunID)
	assert.Equal(t, 100, got.Counts.Total())
	assert.Equal(t, 1, got.Counts.Infected)
	assert.False(t, got.Done)
	assert.False(t, got.Paused)
}

func TestStepRequiresPause(t *testing.T) {
	// Setup
	f := newFixture(t)

	// Act: running ticker refuses manual steps
	rec := f.do(t, http.MethodPost, "/api/control/step", "")

	// Assert
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, int64(0), f.engine.Tick())

	rec = f.do(t, http.MethodPost, "/api/control/pause", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var paused ControlResult
	decode(t, rec, &paused)
	assert.True(t, paused.Paused)
	assert.Equal(t, ActionPause, paused.Action)

	rec = f.do(t, http.MethodPost, "/api/control/step", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stepped ControlResult
	decode(t, rec, &stepped)
	require.NotNil(t, stepped.Stats)
	assert.Equal(t, int64(1), stepped.Tick)
	assert.Equal(t, int64(1), stepped.Stats.Tick)
	assert.Equal(t, 100, stepped.Stats.Total())

	rec = f.do(t, http.MethodPost, "/api/control/resume", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, f.controller.Paused())
}

func TestResetWithOverrides(t *testing.T) {
	f := newFixture(t)
	before := f.engine.RunID()

	rec := f.do(t, http.MethodPost, "/api/control/reset", `{"population": 40, "initial_infected": 4, "seed": 99}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var res ControlResult
	decode(t, rec, &res)
	assert.NotEqual(t, before, res.RunID)
	assert.Equal(t, int64(0), res.Tick)

	counts := f.engine.Counts()
	assert.Equal(t, 40, counts.Total())
	assert.Equal(t, 4, counts.Infected)
	assert.Equal(t, uint64(99), f.engine.Config().Seed)
}

func TestResetWithoutBodyKeepsConfig(t *testing.T) {
	f := newFixture(t)
	before := f.engine.RunID()

	rec := f.do(t, http.MethodPost, "/api/control/reset", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEqual(t, before, f.engine.RunID())
	assert.Equal(t, 100, f.engine.Counts().Total())
}

func TestResetRejectsInvalidConfig(t *testing.T) {
	f := newFixture(t)
	before := f.engine.RunID()

	rec := f.do(t, http.MethodPost, "/api/control/reset", `{"infection_rate": 2, "population": -1}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body struct {
		Error  string              `json:"error"`
		Fields []config.FieldError `json:"fields"`
	}
	decode(t, rec, &body)
	assert.Contains(t, body.Error, "infection_rate")
	assert.NotEmpty(t, body.Fields)
	assert.Equal(t, before, f.engine.RunID(), "rejected reset keeps the run")

	rec = f.do(t, http.MethodPost, "/api/control/reset", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnknownAction(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/control/rewind", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/control/pause", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestWrongMethodIsNotAllowed(t *testing.T) {
	f := newFixture(t)

	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/api/state"},
		{http.MethodDelete, "/api/counts"},
		{http.MethodPut, "/api/events/stats"},
		{http.MethodPost, "/api/report.png"},
		{http.MethodGet, "/api/arena"},
	} {
		rec := f.do(t, tc.method, tc.path, "")
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, "%s %s", tc.method, tc.path)
	}

	rec := f.do(t, http.MethodGet, "/api/nothing-here", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestResizeArena(t *testing.T) {
	// Setup
	f := newFixture(t)
	before := f.engine.RunID()

	// Act
	rec := f.do(t, http.MethodPost, "/api/arena", `{"width": 800, "height": 600}`)

	// Assert
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res ControlResult
	decode(t, rec, &res)
	assert.Equal(t, ActionResize, res.Action)
	assert.Equal(t, before, res.RunID, "resizing keeps the run")
	cfg := f.engine.Config()
	assert.Equal(t, 800.0, cfg.Width)
	assert.Equal(t, 600.0, cfg.Height)
}

func TestResizeArenaRejected(t *testing.T) {
	f := newFixture(t)

	// the dead zone no longer fits
	rec := f.do(t, http.MethodPost, "/api/arena", `{"width": 60, "height": 60}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body struct {
		Error  string              `json:"error"`
		Fields []config.FieldError `json:"fields"`
	}
	decode(t, rec, &body)
	assert.NotEmpty(t, body.Fields)
	assert.Equal(t, 480.0, f.engine.Config().Width)

	rec = f.do(t, http.MethodPost, "/api/arena", `{"width": 0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/arena", `{nope`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStateAndConfig(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/state", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var snap engine.Snapshot
	decode(t, rec, &snap)
	assert.Len(t, snap.Susceptible, 99)
	assert.Len(t, snap.Infected, 1)
	assert.Equal(t, 480.0, snap.Width)

	rec = f.do(t, http.MethodGet, "/api/config", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var cfg config.Config
	decode(t, rec, &cfg)
	assert.Equal(t, uint64(5), cfg.Seed)
}

func stepN(t *testing.T, f *fixture, n int) {
	t.Helper()
	f.controller.ticker.Pause()
	for i := 0; i < n; i++ {
		_, err := f.controller.Apply(ActionStep, nil)
		require.NoError(t, err)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	f := newFixture(t)
	stepN(t, f, 4)

	rec := f.do(t, http.MethodGet, "/api/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var history []engine.TickStats
	decode(t, rec, &history)
	require.Len(t, history, 5)
	assert.Equal(t, int64(4), history[4].Tick)
}

func TestReplayFilters(t *testing.T) {
	// Setup
	f := newFixture(t)
	runID := f.engine.RunID()
	f.eventLog.Append(events.Event{ID: "inf-1", RunID: runID, Type: events.EventTypeInfection, Tick: 3, AgentID: 7, SourceID: 0})
	f.eventLog.Append(events.Event{ID: "rec-1", RunID: runID, Type: events.EventTypeRecovery, Tick: 9, AgentID: 7, SourceID: events.NoAgent})
	f.eventLog.Append(events.Event{ID: "inf-2", RunID: "other", Type: events.EventTypeInfection, Tick: 3, AgentID: 8, SourceID: 1})

	cases := []struct {
		query string
		want  int
	}{
		{"", 4}, // including the seeding RESET
		{"?run_id=" + runID, 3},
		{"?type=INFECTION", 2},
		{"?agent_id=7", 2},
		{"?from_tick=4&to_tick=10", 1},
		{"?run_id=" + runID + "&type=INFECTION&agent_id=7", 1},
	}
	for _, tc := range cases {
		// Act
		rec := f.do(t, http.MethodGet, "/api/events"+tc.query, "")

		// Assert
		require.Equal(t, http.StatusOK, rec.Code, tc.query)
		var resp ReplayResponse
		decode(t, rec, &resp)
		assert.Equal(t, tc.want, resp.TotalEvents, tc.query)
		assert.Len(t, resp.Events, tc.want, tc.query)
	}

	for _, bad := range []string{"?agent_id=x", "?from_tick=9&to_tick=2"} {
		rec := f.do(t, http.MethodGet, "/api/events"+bad, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
	}
}

func TestEventDetailAndStats(t *testing.T) {
	f := newFixture(t)
	f.eventLog.Append(events.Event{ID: "evt-1", RunID: f.engine.RunID(), Type: events.EventTypeDeath, Tick: 2, AgentID: 1})

	rec := f.do(t, http.MethodGet, "/api/events/evt-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var e events.Event
	decode(t, rec, &e)
	assert.Equal(t, events.EventTypeDeath, e.Type)

	rec = f.do(t, http.MethodGet, "/api/events/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/events/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats struct {
		Total  int                      `json:"total_events"`
		ByType map[events.EventType]int `json:"by_type"`
	}
	decode(t, rec, &stats)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.ByType[events.EventTypeReset])
	assert.Equal(t, 1, stats.ByType[events.EventTypeDeath])
}

func TestReportNeedsTwoTicks(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/report.png", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestReportRendersCurve(t *testing.T) {
	f := newFixture(t)
	stepN(t, f, 10)

	rec := f.do(t, http.MethodGet, "/api/report.png", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))

	rec = f.do(t, http.MethodGet, "/api/report.svg", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/svg+xml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "<svg")

	rec = f.do(t, http.MethodGet, "/api/report/summary", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var summary map[string]interface{}
	decode(t, rec, &summary)
	assert.Equal(t, float64(10), summary["ticks"])
	assert.Equal(t, float64(100), summary["population"])
}

func TestMetricsEndpoints(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var m map[string]interface{}
	decode(t, rec, &m)
	assert.Contains(t, m, "tick")
	assert.Contains(t, m, "store")

	rec = f.do(t, http.MethodGet, "/metrics/prometheus", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pandemic_tick_count")
}

func TestHistoryRoutes(t *testing.T) {
	// Setup: record a short run into an in-memory store
	ctx := context.Background()
	db, err := storage.InitSQLite(storage.MemoryDSN)
	require.NoError(t, err)
	defer db.Close()

	runs := storage.NewSQLiteRunRepository(db)
	stats := storage.NewSQLiteStatsRepository(db)
	evs := storage.NewSQLiteEventRepository(db)

	f := newFixture(t)
	run := f.engine.RunID()
	require.NoError(t, runs.Create(ctx, storage.RunRecord{RunID: run, Seed: 5, Population: 3, InitialInfected: 1, StartedAt: time.Now()}))
	require.NoError(t, evs.Append(ctx, events.Event{ID: "i", RunID: run, Type: events.EventTypeInfection, Tick: 2, AgentID: 1, SourceID: 0,
		Payload: events.TransitionPayload{DeadlineTicks: 4}}))
	require.NoError(t, stats.AppendBatch(ctx, []engine.TickStats{{RunID: run, Tick: 1}}))

	router := NewRouter(Routes{History: NewHistoryHandler(runs, stats, evs, logger.NewNopLogger())})
	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	// Act + Assert
	rec := get("/api/runs")
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []storage.RunRecord
	decode(t, rec, &listed)
	require.Len(t, listed, 1)
	assert.Equal(t, run, listed[0].RunID)

	rec = get("/api/runs/" + run + "/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	var tickStats []engine.TickStats
	decode(t, rec, &tickStats)
	assert.Len(t, tickStats, 1)

	rec = get("/api/runs/" + run + "/curve")
	require.Equal(t, http.StatusOK, rec.Code)
	var curve []engine.TickStats
	decode(t, rec, &curve)
	require.Len(t, curve, 3)
	assert.Equal(t, 2, curve[2].Infected)
	assert.Equal(t, 1, curve[2].NewInfections)

	rec = get("/api/runs/missing/curve")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = get("/api/runs/" + run + "/agents/1")
	require.Equal(t, http.StatusOK, rec.Code)
	var recap []storage.RecapEvent
	decode(t, rec, &recap)
	require.Len(t, recap, 1)
	assert.Equal(t, "Infected by agent 0; will recover after 4 ticks.", recap[0].Summary)

	rec = get("/api/runs/" + run + "/agents/abc")
	assert.Equal(t, http.StatusNotFound, rec.Code, "non-numeric agent ids do not match the route")
}
