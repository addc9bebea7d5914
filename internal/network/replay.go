package network

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/MRamiBalles/PandemicSim/internal/events"
	"github.com/MRamiBalles/PandemicSim/internal/infra/storage"
	"github.com/MRamiBalles/PandemicSim/internal/platform/logger"
)

// ReplayHandler serves the transition ledger of the live process.
type ReplayHandler struct {
	eventLog *events.EventLog
	logger   *logger.Logger
}

// NewReplayHandler creates a new replay handler.
func NewReplayHandler(el *events.EventLog, log *logger.Logger) *ReplayHandler {
	return &ReplayHandler{
		eventLog: el,
		logger:   log,
	}
}

// ReplayResponse is the API response for event replay.
type ReplayResponse struct {
	RunID       string         `json:"run_id,omitempty"`
	TotalEvents int            `json:"total_events"`
	GeneratedAt string         `json:"generated_at"`
	Events      []events.Event `json:"events"`
}

// HandleReplay returns the events matching the filters.
// GET /api/events?run_id=X&type=INFECTION&agent_id=N&from_tick=A&to_tick=B
func (rh *ReplayHandler) HandleReplay(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	runID := q.Get("run_id")
	eventType := events.EventType(q.Get("type"))

	agentID, hasAgent, err := optionalInt(q.Get("agent_id"))
	if err != nil {
		jsonError(w, "Invalid agent_id", http.StatusBadRequest)
		return
	}
	fromTick, hasFrom, err := optionalInt(q.Get("from_tick"))
	if err != nil {
		jsonError(w, "Invalid from_tick", http.StatusBadRequest)
		return
	}
	toTick, hasTo, err := optionalInt(q.Get("to_tick"))
	if err != nil {
		jsonError(w, "Invalid to_tick", http.StatusBadRequest)
		return
	}
	if hasFrom && hasTo && fromTick > toTick {
		jsonError(w, "from_tick is after to_tick", http.StatusBadRequest)
		return
	}

	matched := make([]events.Event, 0)
	for _, e := range rh.eventLog.Replay() {
		if runID != "" && e.RunID != runID {
			continue
		}
		if eventType != "" && e.Type != eventType {
			continue
		}
		if hasAgent && e.AgentID != agentID {
			continue
		}
		if hasFrom && e.Tick < int64(fromTick) {
			continue
		}
		if hasTo && e.Tick > int64(toTick) {
			continue
		}
		matched = append(matched, e)
	}

	jsonSuccess(w, ReplayResponse{
		RunID:       runID,
		TotalEvents: len(matched),
		GeneratedAt: time.Now().Format(time.RFC3339),
		Events:      matched,
	})
}

// HandleEventDetail returns a single event.
// GET /api/events/{id}
func (rh *ReplayHandler) HandleEventDetail(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	e, ok := rh.eventLog.Get(id)
	if !ok {
		jsonError(w, "Event not found", http.StatusNotFound)
		return
	}
	jsonSuccess(w, e)
}

// HandleStats returns the number of events per type.
// GET /api/events/stats?run_id=X
func (rh *ReplayHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	runID := r.URL.Query().Get("run_id")

	stats := map[events.EventType]int{}
	total := 0
	for _, e := range rh.eventLog.Replay() {
		if runID != "" && e.RunID != runID {
			continue
		}
		stats[e.Type]++
		total++
	}

	jsonSuccess(w, map[string]interface{}{
		"generated_at": time.Now().Format(time.RFC3339),
		"total_events": total,
		"by_type":      stats,
	})
}

// HistoryHandler serves recorded runs from the history store.
type HistoryHandler struct {
	runs          storage.RunRepository
	stats         storage.StatsRepository
	reconstructor *storage.Reconstructor
	logger        *logger.Logger
}

// NewHistoryHandler creates a handler over the history store.
func NewHistoryHandler(runs storage.RunRepository, stats storage.StatsRepository, evs storage.EventRepository, log *logger.Logger) *HistoryHandler {
	return &HistoryHandler{
		runs:          runs,
		stats:         stats,
		reconstructor: storage.NewReconstructor(runs, evs),
		logger:        log,
	}
}

// HandleRuns lists recorded runs.
// GET /api/runs
func (hh *HistoryHandler) HandleRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := hh.runs.List(r.Context())
	if err != nil {
		hh.logger.Error("Failed to list runs: " + err.Error())
		jsonError(w, "Failed to list runs", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []storage.RunRecord{}
	}
	jsonSuccess(w, runs)
}

// HandleStats returns the recorded tick statistics of a run.
// GET /api/runs/{id}/stats
func (hh *HistoryHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := hh.stats.GetByRunID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		hh.logger.Error("Failed to read run stats: " + err.Error())
		jsonError(w, "Failed to read run stats", http.StatusInternalServerError)
		return
	}
	jsonSuccess(w, stats)
}

// HandleCurve rebuilds a run's curve from its event ledger.
// GET /api/runs/{id}/curve
func (hh *HistoryHandler) HandleCurve(w http.ResponseWriter, r *http.Request) {
	curve, err := hh.reconstructor.RebuildCurve(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, storage.ErrRunNotFound) {
			jsonError(w, "Run not found", http.StatusNotFound)
			return
		}
		hh.logger.Error("Failed to rebuild curve: " + err.Error())
		jsonError(w, "Failed to rebuild curve", http.StatusInternalServerError)
		return
	}
	jsonSuccess(w, curve)
}

// HandleAgent returns the recap of one agent in a run.
// GET /api/runs/{id}/agents/{agent}
func (hh *HistoryHandler) HandleAgent(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	agentID, err := strconv.Atoi(vars["agent"])
	if err != nil {
		jsonError(w, "Invalid agent id", http.StatusBadRequest)
		return
	}
	recap, err := hh.reconstructor.AgentHistory(r.Context(), vars["id"], agentID)
	if err != nil {
		hh.logger.Error("Failed to read agent history: " + err.Error())
		jsonError(w, "Failed to read agent history", http.StatusInternalServerError)
		return
	}
	jsonSuccess(w, recap)
}

func optionalInt(s string) (int, bool, error) {
	if s == "" {
		return 0, false, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}
