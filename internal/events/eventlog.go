// Package events provides the append-only record of a simulation run:
// every infection, recovery, death and control command, in commit order.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType defines the category of a simulation event.
type EventType string

const (
	EventTypeInfection EventType = "INFECTION"
	EventTypeRecovery  EventType = "RECOVERY"
	EventTypeDeath     EventType = "DEATH"
	EventTypeReset     EventType = "RESET"
	EventTypePaused    EventType = "PAUSED"
	EventTypeResumed   EventType = "RESUMED"
)

// NoAgent marks AgentID/SourceID as unused.
const NoAgent = -1

// TransitionPayload is attached to infection events.
type TransitionPayload struct {
	DeadlineTicks int  `json:"deadline_ticks"`
	FatedToDie    bool `json:"fated_to_die"`
}

// ResolutionPayload is attached to recovery and death events.
type ResolutionPayload struct {
	InfectedTicks int `json:"infected_ticks"`
}

// ResetPayload is attached to reset events.
type ResetPayload struct {
	Population      int    `json:"population"`
	InitialInfected int    `json:"initial_infected"`
	Seed            uint64 `json:"seed"`
}

// Event is an immutable record of something that happened in a run.
type Event struct {
	ID        string      `json:"id"`
	RunID     string      `json:"run_id"`
	Timestamp time.Time   `json:"timestamp"`
	Type      EventType   `json:"type"`
	Tick      int64       `json:"tick"`
	AgentID   int         `json:"agent_id"`  // Who changed state
	SourceID  int         `json:"source_id"` // Who transmitted (infections only)
	Payload   interface{} `json:"payload"`
}

// EventPersister defines how an event is durably stored.
type EventPersister interface {
	Append(event Event) error
}

// EventLog is the in-memory append-only log of simulation events.
type EventLog struct {
	mu        sync.RWMutex
	events    []Event
	persister EventPersister
	onError   func(error)
}

// NewEventLog creates a new event log with an optional persister.
func NewEventLog(persister EventPersister) *EventLog {
	return &EventLog{
		events:    make([]Event, 0),
		persister: persister,
	}
}

// OnPersistError installs a callback for write-through failures.
func (el *EventLog) OnPersistError(fn func(error)) {
	el.mu.Lock()
	defer el.mu.Unlock()
	el.onError = fn
}

// Append adds a new event to the log. Events are immutable once appended.
// Missing IDs and timestamps are filled in.
func (el *EventLog) Append(event Event) {
	if event.ID == "" {
		event.ID = GenerateEventID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	el.mu.Lock()
	el.events = append(el.events, event)
	persister, onError := el.persister, el.onError
	el.mu.Unlock()

	// Write through synchronously so the store keeps commit order.
	if persister != nil {
		if err := persister.Append(event); err != nil && onError != nil {
			onError(err)
		}
	}
}

// Len returns the number of events recorded.
func (el *EventLog) Len() int {
	el.mu.RLock()
	defer el.mu.RUnlock()
	return len(el.events)
}

// Since returns a copy of the events appended after the first n.
func (el *EventLog) Since(n int) []Event {
	el.mu.RLock()
	defer el.mu.RUnlock()
	if n < 0 {
		n = 0
	}
	if n >= len(el.events) {
		return nil
	}
	out := make([]Event, len(el.events)-n)
	copy(out, el.events[n:])
	return out
}

// GetByType returns all events of one type.
func (el *EventLog) GetByType(t EventType) []Event {
	return el.filter(func(e Event) bool { return e.Type == t })
}

// GetByAgent returns all events where the agent changed state.
func (el *EventLog) GetByAgent(agentID int) []Event {
	return el.filter(func(e Event) bool { return e.AgentID == agentID })
}

// GetByTickRange returns events with from <= Tick <= to.
func (el *EventLog) GetByTickRange(from, to int64) []Event {
	return el.filter(func(e Event) bool { return e.Tick >= from && e.Tick <= to })
}

// Get finds one event by ID.
func (el *EventLog) Get(id string) (Event, bool) {
	el.mu.RLock()
	defer el.mu.RUnlock()
	for _, e := range el.events {
		if e.ID == id {
			return e, true
		}
	}
	return Event{}, false
}

// Replay returns a copy of the full history.
func (el *EventLog) Replay() []Event {
	return el.Since(0)
}

func (el *EventLog) filter(keep func(Event) bool) []Event {
	el.mu.RLock()
	defer el.mu.RUnlock()

	var result []Event
	for _, e := range el.events {
		if keep(e) {
			result = append(result, e)
		}
	}
	return result
}

// GenerateEventID creates a unique event identifier.
func GenerateEventID() string {
	return uuid.NewString()
}
