package network

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/MRamiBalles/PandemicSim/internal/platform/metrics"
)

// Routes bundles the handlers served by the simulation server. History is
// optional; it is nil when the server runs without a history store.
type Routes struct {
	Hub     *Hub
	Control *ControlHandler
	Replay  *ReplayHandler
	Report  *ReportHandler
	History *HistoryHandler
}

// NewRouter wires every endpoint.
func NewRouter(rt Routes) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		jsonSuccess(w, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	r.HandleFunc("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/metrics/prometheus", metrics.PrometheusHandler()).Methods(http.MethodGet)

	if rt.Hub != nil {
		r.HandleFunc("/ws", rt.Hub.ServeWs)
	}

	// API routes live on the root router: a mux subrouter answers 404
	// instead of 405 when only the method does not match.
	if rt.Control != nil {
		r.HandleFunc("/api/control/{action}", rt.Control.HandleControl).Methods(http.MethodPost)
		r.HandleFunc("/api/arena", rt.Control.HandleArena).Methods(http.MethodPost)
		r.HandleFunc("/api/state", rt.Control.HandleState).Methods(http.MethodGet)
		r.HandleFunc("/api/counts", rt.Control.HandleCounts).Methods(http.MethodGet)
		r.HandleFunc("/api/history", rt.Control.HandleHistory).Methods(http.MethodGet)
		r.HandleFunc("/api/config", rt.Control.HandleConfig).Methods(http.MethodGet)
	}
	if rt.Replay != nil {
		// stats before {id} so it is not taken for an event ID
		r.HandleFunc("/api/events/stats", rt.Replay.HandleStats).Methods(http.MethodGet)
		r.HandleFunc("/api/events/{id}", rt.Replay.HandleEventDetail).Methods(http.MethodGet)
		r.HandleFunc("/api/events", rt.Replay.HandleReplay).Methods(http.MethodGet)
	}
	if rt.Report != nil {
		r.HandleFunc("/api/report.png", rt.Report.HandleCurve).Methods(http.MethodGet)
		r.HandleFunc("/api/report.svg", rt.Report.HandleCurve).Methods(http.MethodGet)
		r.HandleFunc("/api/report/summary", rt.Report.HandleSummary).Methods(http.MethodGet)
	}
	if rt.History != nil {
		r.HandleFunc("/api/runs", rt.History.HandleRuns).Methods(http.MethodGet)
		r.HandleFunc("/api/runs/{id}/stats", rt.History.HandleStats).Methods(http.MethodGet)
		r.HandleFunc("/api/runs/{id}/curve", rt.History.HandleCurve).Methods(http.MethodGet)
		r.HandleFunc("/api/runs/{id}/agents/{agent:[0-9]+}", rt.History.HandleAgent).Methods(http.MethodGet)
	}

	return r
}
