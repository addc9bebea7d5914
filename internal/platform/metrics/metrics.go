// Package metrics provides observability for the simulation server.
package metrics

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Collector gathers performance and epidemic counters.
type Collector struct {
	// Tick metrics
	TickCount      int64
	TickLatencySum int64 // nanoseconds
	TickLatencyMax int64
	LastTickTime   time.Time

	// Transition metrics
	Infections int64
	Recoveries int64
	Deaths     int64

	// Storage metrics
	StatsWritten     int64
	EventsWritten    int64
	StoreWriteLatSum int64
	StoreWriteLatMax int64
	StoreWriteErrors int64
	StoreDropped     int64

	// WebSocket metrics
	WSConnectionsActive int64
	WSMessagesIn        int64
	WSMessagesOut       int64
	WSErrors            int64

	// System
	StartTime time.Time
	mu        sync.RWMutex
}

// Global collector instance
var collector = New()

// New returns an empty collector.
func New() *Collector {
	return &Collector{StartTime: time.Now()}
}

// Get returns the global collector.
func Get() *Collector {
	return collector
}

// RecordTick records a tick cycle completion.
func (c *Collector) RecordTick(latency time.Duration) {
	atomic.AddInt64(&c.TickCount, 1)
	atomic.AddInt64(&c.TickLatencySum, int64(latency))
	storeMax(&c.TickLatencyMax, int64(latency))

	c.mu.Lock()
	c.LastTickTime = time.Now()
	c.mu.Unlock()
}

// RecordTransitions adds one tick's state changes.
func (c *Collector) RecordTransitions(infections, recoveries, deaths int) {
	atomic.AddInt64(&c.Infections, int64(infections))
	atomic.AddInt64(&c.Recoveries, int64(recoveries))
	atomic.AddInt64(&c.Deaths, int64(deaths))
}

// RecordStoreWrite records a batch written to the history store.
func (c *Collector) RecordStoreWrite(stats, events int, latency time.Duration, err error) {
	if err != nil {
		atomic.AddInt64(&c.StoreWriteErrors, 1)
		return
	}
	atomic.AddInt64(&c.StatsWritten, int64(stats))
	atomic.AddInt64(&c.EventsWritten, int64(events))
	atomic.AddInt64(&c.StoreWriteLatSum, int64(latency))
	storeMax(&c.StoreWriteLatMax, int64(latency))
}

// RecordStoreDrop records records discarded because the writer fell behind.
func (c *Collector) RecordStoreDrop(n int) {
	atomic.AddInt64(&c.StoreDropped, int64(n))
}

// RecordWSConnection records WebSocket connection changes.
func (c *Collector) RecordWSConnection(delta int64) {
	atomic.AddInt64(&c.WSConnectionsActive, delta)
}

// RecordWSMessage records WebSocket messages.
func (c *Collector) RecordWSMessage(incoming bool) {
	if incoming {
		atomic.AddInt64(&c.WSMessagesIn, 1)
	} else {
		atomic.AddInt64(&c.WSMessagesOut, 1)
	}
}

// RecordWSError records a WebSocket error.
func (c *Collector) RecordWSError() {
	atomic.AddInt64(&c.WSErrors, 1)
}

// Snapshot returns current metrics as a map.
func (c *Collector) Snapshot() map[string]interface{} {
	c.mu.RLock()
	lastTick := c.LastTickTime
	c.mu.RUnlock()

	tickCount := atomic.LoadInt64(&c.TickCount)
	statsWritten := atomic.LoadInt64(&c.StatsWritten)

	var tickAvg, storeAvg float64
	if tickCount > 0 {
		tickAvg = float64(atomic.LoadInt64(&c.TickLatencySum)) / float64(tickCount) / 1e6 // ms
	}
	if statsWritten > 0 {
		storeAvg = float64(atomic.LoadInt64(&c.StoreWriteLatSum)) / float64(statsWritten) / 1e6
	}

	return map[string]interface{}{
		"uptime_seconds": time.Since(c.StartTime).Seconds(),

		"tick": map[string]interface{}{
			"count":          tickCount,
			"avg_latency_ms": tickAvg,
			"max_latency_ms": float64(atomic.LoadInt64(&c.TickLatencyMax)) / 1e6,
			"last_tick":      lastTick.Format(time.RFC3339),
		},

		"transitions": map[string]interface{}{
			"infections": atomic.LoadInt64(&c.Infections),
			"recoveries": atomic.LoadInt64(&c.Recoveries),
			"deaths":     atomic.LoadInt64(&c.Deaths),
		},

		"store": map[string]interface{}{
			"stats_written":    statsWritten,
			"events_written":   atomic.LoadInt64(&c.EventsWritten),
			"avg_write_lat_ms": storeAvg,
			"max_write_lat_ms": float64(atomic.LoadInt64(&c.StoreWriteLatMax)) / 1e6,
			"errors":           atomic.LoadInt64(&c.StoreWriteErrors),
			"dropped":          atomic.LoadInt64(&c.StoreDropped),
		},

		"websocket": map[string]interface{}{
			"active_connections": atomic.LoadInt64(&c.WSConnectionsActive),
			"messages_in":        atomic.LoadInt64(&c.WSMessagesIn),
			"messages_out":       atomic.LoadInt64(&c.WSMessagesOut),
			"errors":             atomic.LoadInt64(&c.WSErrors),
		},
	}
}

// Handler returns an HTTP handler for the JSON /metrics endpoint.
func Handler() http.HandlerFunc {
	return collector.Handler()
}

// Handler serves this collector as JSON.
func (c *Collector) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")
		json.NewEncoder(w).Encode(c.Snapshot())
	}
}

// PrometheusHandler returns the global metrics in Prometheus format.
func PrometheusHandler() http.HandlerFunc {
	return collector.PrometheusHandler()
}

// PrometheusHandler serves this collector in Prometheus text format.
func (c *Collector) PrometheusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		// Tick metrics
		fmt.Fprintf(w, "# HELP pandemic_tick_count Total ticks simulated\n")
		fmt.Fprintf(w, "# TYPE pandemic_tick_count counter\n")
		fmt.Fprintf(w, "pandemic_tick_count %d\n\n", atomic.LoadInt64(&c.TickCount))

		fmt.Fprintf(w, "# HELP pandemic_tick_latency_max_ms Maximum tick latency\n")
		fmt.Fprintf(w, "# TYPE pandemic_tick_latency_max_ms gauge\n")
		fmt.Fprintf(w, "pandemic_tick_latency_max_ms %.2f\n\n", float64(atomic.LoadInt64(&c.TickLatencyMax))/1e6)

		// Transitions
		fmt.Fprintf(w, "# HELP pandemic_transitions_total State transitions committed\n")
		fmt.Fprintf(w, "# TYPE pandemic_transitions_total counter\n")
		fmt.Fprintf(w, "pandemic_transitions_total{to=\"infected\"} %d\n", atomic.LoadInt64(&c.Infections))
		fmt.Fprintf(w, "pandemic_transitions_total{to=\"recovered\"} %d\n", atomic.LoadInt64(&c.Recoveries))
		fmt.Fprintf(w, "pandemic_transitions_total{to=\"dead\"} %d\n\n", atomic.LoadInt64(&c.Deaths))

		// Store
		fmt.Fprintf(w, "# HELP pandemic_store_rows_written Rows written to the history store\n")
		fmt.Fprintf(w, "# TYPE pandemic_store_rows_written counter\n")
		fmt.Fprintf(w, "pandemic_store_rows_written{table=\"tick_stats\"} %d\n", atomic.LoadInt64(&c.StatsWritten))
		fmt.Fprintf(w, "pandemic_store_rows_written{table=\"events\"} %d\n\n", atomic.LoadInt64(&c.EventsWritten))

		fmt.Fprintf(w, "# HELP pandemic_store_write_errors Failed history store batches\n")
		fmt.Fprintf(w, "# TYPE pandemic_store_write_errors counter\n")
		fmt.Fprintf(w, "pandemic_store_write_errors %d\n\n", atomic.LoadInt64(&c.StoreWriteErrors))

		fmt.Fprintf(w, "# HELP pandemic_store_dropped Records dropped by a saturated recorder\n")
		fmt.Fprintf(w, "# TYPE pandemic_store_dropped counter\n")
		fmt.Fprintf(w, "pandemic_store_dropped %d\n\n", atomic.LoadInt64(&c.StoreDropped))

		// WebSocket metrics
		fmt.Fprintf(w, "# HELP pandemic_ws_connections Active WebSocket connections\n")
		fmt.Fprintf(w, "# TYPE pandemic_ws_connections gauge\n")
		fmt.Fprintf(w, "pandemic_ws_connections %d\n\n", atomic.LoadInt64(&c.WSConnectionsActive))

		fmt.Fprintf(w, "# HELP pandemic_ws_messages_total Total WebSocket messages\n")
		fmt.Fprintf(w, "# TYPE pandemic_ws_messages_total counter\n")
		fmt.Fprintf(w, "pandemic_ws_messages_total{direction=\"in\"} %d\n", atomic.LoadInt64(&c.WSMessagesIn))
		fmt.Fprintf(w, "pandemic_ws_messages_total{direction=\"out\"} %d\n", atomic.LoadInt64(&c.WSMessagesOut))
	}
}

// storeMax raises *addr to v if v is larger.
func storeMax(addr *int64, v int64) {
	for {
		cur := atomic.LoadInt64(addr)
		if v <= cur || atomic.CompareAndSwapInt64(addr, cur, v) {
			return
		}
	}
}
