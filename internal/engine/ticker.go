package engine

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MRamiBalles/PandemicSim/internal/events"
	"github.com/MRamiBalles/PandemicSim/internal/platform/logger"
	"github.com/MRamiBalles/PandemicSim/internal/platform/metrics"
)

// Ticker drives the engine in real time at the configured tick rate.
// It is the only caller of Step in server mode; while paused it keeps
// running but skips stepping, so the presentation keeps rendering the
// current state.
type Ticker struct {
	engine   *Engine
	logger   *logger.Logger
	paused   atomic.Bool
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewTicker creates a new simulation ticker.
func NewTicker(engine *Engine, log *logger.Logger) *Ticker {
	return &Ticker{
		engine:   engine,
		logger:   log,
		stopChan: make(chan struct{}),
	}
}

// Start begins the simulation loop. Call in a goroutine.
func (t *Ticker) Start(ctx context.Context) {
	interval := t.engine.Config().TickInterval()
	t.logger.Info("Simulation ticker started at " + interval.String() + " per tick")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("Simulation ticker stopped by context.")
			return
		case <-t.stopChan:
			t.logger.Info("Simulation ticker stopped manually.")
			return
		case <-ticker.C:
			if t.paused.Load() {
				continue
			}
			t.tick()

			// A reset may have changed the tick rate.
			if d := t.engine.Config().TickInterval(); d != interval {
				interval = d
				ticker.Reset(interval)
			}
		}
	}
}

// Stop gracefully stops the ticker.
func (t *Ticker) Stop() {
	t.stopOnce.Do(func() { close(t.stopChan) })
}

// Pause stops stepping until Resume. Returns false if already paused.
func (t *Ticker) Pause() bool {
	if !t.paused.CompareAndSwap(false, true) {
		return false
	}
	t.record(events.EventTypePaused)
	return true
}

// Resume restarts stepping. Returns false if not paused.
func (t *Ticker) Resume() bool {
	if !t.paused.CompareAndSwap(true, false) {
		return false
	}
	t.record(events.EventTypeResumed)
	return true
}

// Paused reports whether stepping is suspended.
func (t *Ticker) Paused() bool {
	return t.paused.Load()
}

// StepOnce advances exactly one tick while paused. It returns false without
// stepping when the ticker is running, so the loop stays the only stepper.
func (t *Ticker) StepOnce() (TickStats, bool) {
	if !t.paused.Load() {
		return TickStats{}, false
	}
	return t.tick(), true
}

// tick runs a single simulation step and records its latency.
func (t *Ticker) tick() TickStats {
	stats := t.engine.Step()
	metrics.Get().RecordTick(stats.Duration)
	metrics.Get().RecordTransitions(stats.NewInfections, stats.NewRecoveries, stats.NewDeaths)

	if stats.NewDeaths > 0 {
		t.logger.Event("DEATHS", "ENGINE", "Tick "+strconv.FormatInt(stats.Tick, 10)+": "+strconv.Itoa(stats.NewDeaths)+" died, "+strconv.Itoa(stats.Dead)+" dead in total")
	}
	return stats
}

func (t *Ticker) record(evType events.EventType) {
	if el := t.engine.GetEventLog(); el != nil {
		el.Append(events.Event{
			RunID:    t.engine.RunID(),
			Type:     evType,
			Tick:     t.engine.Tick(),
			AgentID:  events.NoAgent,
			SourceID: events.NoAgent,
		})
	}
	t.logger.Event(string(evType), "CONTROL", "Simulation "+string(evType))
}
