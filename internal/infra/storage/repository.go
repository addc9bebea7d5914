// Package storage provides the run history store of the simulation server.
// It records what happened in each run (seed, per-tick counts, transitions)
// for replay and reporting; it is never used to resume a simulation.
package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/MRamiBalles/PandemicSim/internal/engine"
	"github.com/MRamiBalles/PandemicSim/internal/events"
)

// RunRecord describes how a run was seeded.
type RunRecord struct {
	RunID           string    `json:"run_id" db:"run_id"`
	Seed            uint64    `json:"seed" db:"seed"`
	Population      int       `json:"population" db:"population"`
	InitialInfected int       `json:"initial_infected" db:"initial_infected"`
	StartedAt       time.Time `json:"started_at" db:"started_at"`
}

// StoredEvent is an event read back from the store. The payload is kept as
// raw JSON since its concrete type is lost on the way through the database.
type StoredEvent struct {
	Seq int64 `json:"seq" db:"seq"`
	events.Event
}

// RawPayload returns the payload as stored.
func (e StoredEvent) RawPayload() json.RawMessage {
	if raw, ok := e.Payload.(json.RawMessage); ok {
		return raw
	}
	return nil
}

// RunRepository persists run metadata.
type RunRepository interface {
	// Create registers a run. Creating an existing run is a no-op.
	Create(ctx context.Context, run RunRecord) error

	// Get returns a run, or nil when it does not exist.
	Get(ctx context.Context, runID string) (*RunRecord, error)

	// List returns every run, most recent first.
	List(ctx context.Context) ([]RunRecord, error)
}

// StatsRepository persists per-tick statistics.
type StatsRepository interface {
	// AppendBatch stores the statistics of several ticks.
	AppendBatch(ctx context.Context, stats []engine.TickStats) error

	// GetByRunID returns the statistics of a run ordered by tick.
	GetByRunID(ctx context.Context, runID string) ([]engine.TickStats, error)
}

// EventRepository persists the transition ledger.
type EventRepository interface {
	// Append adds a new event to the immutable ledger.
	Append(ctx context.Context, event events.Event) error

	// GetByRunID retrieves all events of a run in commit order (for replay).
	GetByRunID(ctx context.Context, runID string) ([]StoredEvent, error)

	// GetByType retrieves all events of one type in a run.
	GetByType(ctx context.Context, runID string, eventType events.EventType) ([]StoredEvent, error)

	// GetByAgent retrieves every state change of one agent.
	GetByAgent(ctx context.Context, runID string, agentID int) ([]StoredEvent, error)
}
