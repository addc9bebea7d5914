package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/MRamiBalles/PandemicSim/internal/domain/population"
	"github.com/MRamiBalles/PandemicSim/internal/engine"
	"github.com/MRamiBalles/PandemicSim/internal/events"
)

// ErrRunNotFound is returned when a run has no seed record.
var ErrRunNotFound = errors.New("run not found")

// Reconstructor rebuilds run history from the event ledger: state = f(events).
// Used to audit recorded statistics and to chart runs whose tick stats were
// dropped.
type Reconstructor struct {
	runRepo   RunRepository
	eventRepo EventRepository
}

// NewReconstructor creates a new history reconstructor.
func NewReconstructor(runRepo RunRepository, eventRepo EventRepository) *Reconstructor {
	return &Reconstructor{runRepo: runRepo, eventRepo: eventRepo}
}

// RecapEvent is a human-readable line of an agent's history.
type RecapEvent struct {
	Tick    int64            `json:"tick"`
	Type    events.EventType `json:"type"`
	Summary string           `json:"summary"`
}

// RebuildCurve replays the transitions of a run on top of its seed counts,
// producing one entry per tick from 0 up to the last transition.
func (r *Reconstructor) RebuildCurve(ctx context.Context, runID string) ([]engine.TickStats, error) {
	run, err := r.runRepo.Get(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	if run == nil {
		return nil, fmt.Errorf("failed to rebuild run %s: %w", runID, ErrRunNotFound)
	}

	evs, err := r.eventRepo.GetByRunID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run events: %w", err)
	}

	counts := population.Counts{
		Susceptible: run.Population - run.InitialInfected,
		Infected:    run.InitialInfected,
	}
	curve := []engine.TickStats{{RunID: runID, Tick: 0, Counts: counts}}

	for _, e := range evs {
		if !isTransition(e.Type) {
			continue
		}
		// Fill ticks without transitions.
		for curve[len(curve)-1].Tick < e.Tick {
			last := curve[len(curve)-1]
			curve = append(curve, engine.TickStats{RunID: runID, Tick: last.Tick + 1, Counts: last.Counts})
		}
		cur := &curve[len(curve)-1]
		if err := applyEvent(cur, e); err != nil {
			return nil, fmt.Errorf("failed to rebuild run %s: %w", runID, err)
		}
	}
	return curve, nil
}

// AgentHistory summarizes every state change of one agent.
func (r *Reconstructor) AgentHistory(ctx context.Context, runID string, agentID int) ([]RecapEvent, error) {
	evs, err := r.eventRepo.GetByAgent(ctx, runID, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get agent events: %w", err)
	}

	var recap []RecapEvent
	for _, e := range evs {
		recap = append(recap, RecapEvent{
			Tick:    e.Tick,
			Type:    e.Type,
			Summary: summarizeEvent(e),
		})
	}
	return recap, nil
}

func isTransition(t events.EventType) bool {
	return t == events.EventTypeInfection || t == events.EventTypeRecovery || t == events.EventTypeDeath
}

// applyEvent moves one agent between the counts of a tick.
func applyEvent(s *engine.TickStats, e StoredEvent) error {
	if e.Type == events.EventTypeInfection && s.Susceptible == 0 {
		return fmt.Errorf("event %s at tick %d infects a missing susceptible agent", e.ID, e.Tick)
	}
	if e.Type != events.EventTypeInfection && s.Infected == 0 {
		return fmt.Errorf("event %s at tick %d resolves an agent that was not infected", e.ID, e.Tick)
	}
	switch e.Type {
	case events.EventTypeInfection:
		s.Susceptible--
		s.Infected++
		s.NewInfections++
	case events.EventTypeRecovery:
		s.Infected--
		s.Recovered++
		s.NewRecoveries++
	case events.EventTypeDeath:
		s.Infected--
		s.Dead++
		s.NewDeaths++
	}
	return nil
}

func summarizeEvent(e StoredEvent) string {
	switch e.Type {
	case events.EventTypeInfection:
		var p events.TransitionPayload
		json.Unmarshal(e.RawPayload(), &p)
		outcome := "recover"
		if p.FatedToDie {
			outcome = "die"
		}
		return fmt.Sprintf("Infected by agent %d; will %s after %d ticks.", e.SourceID, outcome, p.DeadlineTicks)
	case events.EventTypeRecovery:
		var p events.ResolutionPayload
		json.Unmarshal(e.RawPayload(), &p)
		return fmt.Sprintf("Recovered after %d ticks.", p.InfectedTicks)
	case events.EventTypeDeath:
		var p events.ResolutionPayload
		json.Unmarshal(e.RawPayload(), &p)
		return fmt.Sprintf("Died after %d ticks.", p.InfectedTicks)
	default:
		return string(e.Type)
	}
}
