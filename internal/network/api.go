package network

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/MRamiBalles/PandemicSim/internal/domain/population"
	"github.com/MRamiBalles/PandemicSim/internal/platform/config"
	"github.com/MRamiBalles/PandemicSim/internal/platform/logger"
	"github.com/MRamiBalles/PandemicSim/internal/report"
)

// ControlHandler exposes the simulation state and control actions over REST.
type ControlHandler struct {
	controller *Controller
	logger     *logger.Logger
}

// NewControlHandler creates a new control API handler.
func NewControlHandler(c *Controller, log *logger.Logger) *ControlHandler {
	return &ControlHandler{controller: c, logger: log}
}

// CountsResponse is the live statistics readout.
type CountsResponse struct {
	RunID  string            `json:"run_id"`
	Tick   int64             `json:"tick"`
	Counts population.Counts `json:"counts"`
	Done   bool              `json:"done"`
	Paused bool              `json:"paused"`
}

// HandleControl applies an action.
// POST /api/control/{action}
func (ch *ControlHandler) HandleControl(w http.ResponseWriter, r *http.Request) {
	action := mux.Vars(r)["action"]

	var req *ResetRequest
	if strings.EqualFold(action, ActionReset) && r.Body != nil {
		var parsed ResetRequest
		err := json.NewDecoder(r.Body).Decode(&parsed)
		switch {
		case err == nil:
			req = &parsed
		case errors.Is(err, io.EOF):
			// empty body resets with the current configuration
		default:
			jsonError(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	result, err := ch.controller.Apply(action, req)
	if err != nil {
		var verr *config.ValidationError
		switch {
		case errors.As(err, &verr):
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(errorPayload(err))
		case errors.Is(err, ErrUnknownAction):
			jsonError(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, ErrNotPaused):
			jsonError(w, err.Error(), http.StatusConflict)
		default:
			jsonError(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	ch.logger.Event("CONTROL_"+result.Action, "REST", "Run "+result.RunID)
	jsonSuccess(w, result)
}

// HandleArena resizes the arena of the current run.
// POST /api/arena
func (ch *ControlHandler) HandleArena(w http.ResponseWriter, r *http.Request) {
	var req ArenaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := ch.controller.Resize(req)
	if err != nil {
		var verr *config.ValidationError
		if !errors.As(err, &verr) {
			jsonError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(errorPayload(err))
		return
	}

	ch.logger.Event("CONTROL_"+result.Action, "REST", "Run "+result.RunID)
	jsonSuccess(w, result)
}

// HandleState returns a full snapshot.
// GET /api/state
func (ch *ControlHandler) HandleState(w http.ResponseWriter, r *http.Request) {
	jsonSuccess(w, ch.controller.Engine().Snapshot())
}

// HandleCounts returns the live statistics readout.
// GET /api/counts
func (ch *ControlHandler) HandleCounts(w http.ResponseWriter, r *http.Request) {
	eng := ch.controller.Engine()
	counts := eng.Counts()
	jsonSuccess(w, CountsResponse{
		RunID:  eng.RunID(),
		Tick:   eng.Tick(),
		Counts: counts,
		Done:   counts.Infected == 0,
		Paused: ch.controller.Paused(),
	})
}

// HandleHistory returns the per-tick statistics of the current run.
// GET /api/history
func (ch *ControlHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	jsonSuccess(w, ch.controller.Engine().History())
}

// HandleConfig returns the active configuration.
// GET /api/config
func (ch *ControlHandler) HandleConfig(w http.ResponseWriter, r *http.Request) {
	jsonSuccess(w, ch.controller.Engine().Config())
}

// ReportHandler serves the live epidemic curve.
type ReportHandler struct {
	controller *Controller
	logger     *logger.Logger
}

// NewReportHandler creates a new report handler.
func NewReportHandler(c *Controller, log *logger.Logger) *ReportHandler {
	return &ReportHandler{controller: c, logger: log}
}

// HandleCurve renders the curve of the current run.
// GET /api/report.png, GET /api/report.svg
func (rh *ReportHandler) HandleCurve(w http.ResponseWriter, r *http.Request) {
	opts := report.DefaultOptions()
	if strings.HasSuffix(r.URL.Path, ".svg") {
		opts.Format = report.FormatSVG
	}
	eng := rh.controller.Engine()
	opts.Title = "Run " + eng.RunID()

	// Render into memory first so a failure can still set the status.
	var buf bytes.Buffer
	if err := report.RenderCurve(&buf, eng.History(), opts); err != nil {
		if errors.Is(err, report.ErrTooFewPoints) {
			jsonError(w, err.Error(), http.StatusConflict)
			return
		}
		rh.logger.Error("Failed to render report: " + err.Error())
		jsonError(w, "Failed to render report", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", opts.Format.ContentType())
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(buf.Bytes())
}

// HandleSummary returns the summary of the current run.
// GET /api/report/summary
func (rh *ReportHandler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	jsonSuccess(w, report.Summarize(rh.controller.Engine().History()))
}

// jsonError sends an error response.
func jsonError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// jsonSuccess sends a success response.
func jsonSuccess(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(data)
}
