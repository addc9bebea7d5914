package engine

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MRamiBalles/PandemicSim/internal/domain/agent"
	"github.com/MRamiBalles/PandemicSim/internal/domain/population"
	"github.com/MRamiBalles/PandemicSim/internal/events"
	"github.com/MRamiBalles/PandemicSim/internal/platform/assert"
	"github.com/MRamiBalles/PandemicSim/internal/platform/config"
	"github.com/MRamiBalles/PandemicSim/internal/platform/logger"
)

// pcgStream decorrelates the second PCG word from the seed.
const pcgStream = 0x9E3779B97F4A7C15

// TickStats summarizes the population after one tick.
type TickStats struct {
	RunID string `json:"run_id"`
	Tick  int64  `json:"tick"`
	population.Counts
	NewInfections int           `json:"new_infections"`
	NewRecoveries int           `json:"new_recoveries"`
	NewDeaths     int           `json:"new_deaths"`
	Duration      time.Duration `json:"duration_ns"`
}

// TickObserver is notified after every committed tick, outside the engine
// lock. Implementations must not block.
type TickObserver interface {
	OnTick(stats TickStats)
}

// Snapshot is a read-only copy of the engine state for presentation.
type Snapshot struct {
	RunID       string            `json:"run_id"`
	Tick        int64             `json:"tick"`
	Width       float64           `json:"width"`
	Height      float64           `json:"height"`
	AgentRadius float64           `json:"agent_radius"`
	DeadZone    agent.Rect        `json:"dead_zone"`
	Counts      population.Counts `json:"counts"`
	Done        bool              `json:"done"`
	Susceptible []agent.View      `json:"susceptible"`
	Infected    []agent.View      `json:"infected"`
	Recovered   []agent.View      `json:"recovered"`
	Dead        []agent.View      `json:"dead"`
}

// Engine is the tick orchestrator. It exclusively owns the population for
// the duration of a tick: Step, Reset and every read take the same lock.
type Engine struct {
	mu       sync.Mutex
	eventLog *events.EventLog
	logger   *logger.Logger

	cfg     *config.Config
	rng     *rand.Rand
	factory *agent.Factory
	pop     *population.Population

	// Sub-systems
	kinematics   *KinematicsSystem
	transmission *TransmissionSystem
	progression  *ProgressionSystem

	// State
	runID     string
	tick      int64
	history   []TickStats
	observers []TickObserver
}

// NewEngine validates cfg and seeds the first run.
func NewEngine(cfg *config.Config, eventLog *events.EventLog, log *logger.Logger) (*Engine, error) {
	e := &Engine{
		eventLog: eventLog,
		logger:   log,
	}
	if err := e.Reset(cfg); err != nil {
		return nil, err
	}
	return e, nil
}

// AddObserver registers a tick observer.
func (e *Engine) AddObserver(o TickObserver) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, o)
}

// Reset discards every agent and reseeds a new run from cfg. The random
// source is reseeded from cfg.Seed so equal configs replay identically.
func (e *Engine) Reset(cfg *config.Config) error {
	return e.reset(cfg, nil)
}

// ResetWith starts a new run on a hand-built population instead of seeding
// one. Used to stage scenarios; cfg.Population and cfg.InitialInfected are
// overwritten from pop.
func (e *Engine) ResetWith(cfg *config.Config, pop *population.Population) error {
	if err := pop.Verify(); err != nil {
		return fmt.Errorf("failed to reset engine: %w", err)
	}
	cfg = cfg.Clone()
	cfg.Population = pop.Total()
	cfg.InitialInfected = pop.Len(agent.Infected)
	return e.reset(cfg, pop)
}

func (e *Engine) reset(cfg *config.Config, pop *population.Population) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("failed to reset engine: %w", err)
	}
	cfg = cfg.Clone()

	e.mu.Lock()
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^pcgStream))
	e.cfg = cfg
	e.rng = rng
	e.factory = agent.NewFactory(cfg.FactoryParams(), rng)
	if pop == nil {
		pop = population.Populate(e.factory, cfg.Population, cfg.InitialInfected, cfg.Spawn())
	}
	e.pop = pop
	e.kinematics = NewKinematicsSystem(cfg)
	e.transmission = NewTransmissionSystem(cfg, NewContactIndex(cfg.Index), rng)
	e.progression = NewProgressionSystem()
	e.runID = uuid.NewString()
	e.tick = 0
	e.history = []TickStats{{RunID: e.runID, Counts: e.pop.Counts()}}
	runID := e.runID
	e.mu.Unlock()

	if e.eventLog != nil {
		e.eventLog.Append(events.Event{
			RunID:    runID,
			Type:     events.EventTypeReset,
			AgentID:  events.NoAgent,
			SourceID: events.NoAgent,
			Payload: events.ResetPayload{
				Population:      cfg.Population,
				InitialInfected: cfg.InitialInfected,
				Seed:            cfg.Seed,
			},
		})
	}
	e.logger.Event("RESET", "ENGINE", "Run "+runID+" seeded with "+strconv.Itoa(cfg.Population)+" agents, "+strconv.Itoa(cfg.InitialInfected)+" infected")
	return nil
}

// Step advances the simulation by exactly one tick:
//  1. kinematics for every moving agent,
//  2. transmission decisions from the agents infected at tick start,
//  3. progression decisions for those same agents,
//  4. one atomic commit rebuilding the collections.
func (e *Engine) Step() TickStats {
	e.mu.Lock()
	stats, newEvents := e.stepLocked()
	observers := e.observers
	e.mu.Unlock()

	if e.eventLog != nil {
		for _, ev := range newEvents {
			e.eventLog.Append(ev)
		}
	}
	for _, o := range observers {
		o.OnTick(stats)
	}
	return stats
}

func (e *Engine) stepLocked() (TickStats, []events.Event) {
	start := time.Now()
	e.tick++

	groups := [agent.NumStates][]*agent.Agent{}
	for _, s := range agent.States {
		groups[s] = e.pop.Group(s)
	}
	e.kinematics.OnTick(groups, e.cfg.Bounds())

	infected := groups[agent.Infected]
	infections := e.transmission.Scan(infected, groups[agent.Susceptible])
	resolved := e.progression.Scan(infected)

	batch := population.Batch{
		Infections:  make([]*agent.Agent, len(infections)),
		Resolutions: resolved,
	}
	newEvents := make([]events.Event, 0, len(infections)+len(resolved))
	now := time.Now()
	for i, inf := range infections {
		fate := e.factory.SampleFate()
		inf.Target.Infect(fate)
		batch.Infections[i] = inf.Target
		newEvents = append(newEvents, events.Event{
			RunID:     e.runID,
			Timestamp: now,
			Type:      events.EventTypeInfection,
			Tick:      e.tick,
			AgentID:   inf.Target.ID,
			SourceID:  inf.Source.ID,
			Payload:   events.TransitionPayload{DeadlineTicks: fate.DeadlineTicks, FatedToDie: fate.Fatal},
		})
	}

	deaths := 0
	for _, a := range resolved {
		evType := events.EventTypeRecovery
		if a.FatedToDie {
			evType = events.EventTypeDeath
			deaths++
			if !e.cfg.DeadZone.Empty() {
				a.Position = e.factory.PointIn(e.cfg.DeadZone)
			}
		}
		newEvents = append(newEvents, events.Event{
			RunID:     e.runID,
			Timestamp: now,
			Type:      evType,
			Tick:      e.tick,
			AgentID:   a.ID,
			SourceID:  events.NoAgent,
			Payload:   events.ResolutionPayload{InfectedTicks: a.InfectedTicks},
		})
	}

	assert.Check(e.pop.Commit(batch), "tick "+strconv.FormatInt(e.tick, 10)+" commit rejected")
	if e.cfg.CheckInvariants {
		assert.Check(e.pop.Verify(), "population invariant broken after tick "+strconv.FormatInt(e.tick, 10))
	}

	stats := TickStats{
		RunID:         e.runID,
		Tick:          e.tick,
		Counts:        e.pop.Counts(),
		NewInfections: len(infections),
		NewRecoveries: len(resolved) - deaths,
		NewDeaths:     deaths,
		Duration:      time.Since(start),
	}
	// Once the epidemic is over the curve is flat; stop growing the history.
	if last := e.history[len(e.history)-1]; last.Infected > 0 || stats.Infected > 0 {
		e.history = append(e.history, stats)
	}
	return stats, newEvents
}

// Snapshot copies the drawable state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	counts := e.pop.Counts()
	return Snapshot{
		RunID:       e.runID,
		Tick:        e.tick,
		Width:       e.cfg.Width,
		Height:      e.cfg.Height,
		AgentRadius: e.cfg.AgentRadius,
		DeadZone:    e.cfg.DeadZone,
		Counts:      counts,
		Done:        counts.Infected == 0,
		Susceptible: e.pop.Views(agent.Susceptible),
		Infected:    e.pop.Views(agent.Infected),
		Recovered:   e.pop.Views(agent.Recovered),
		Dead:        e.pop.Views(agent.Dead),
	}
}

// Counts returns the current size of every collection.
func (e *Engine) Counts() population.Counts {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pop.Counts()
}

// History returns a copy of the per-tick statistics of the current run,
// starting with the seeded state at tick 0 and ending when no infected
// agents remain.
func (e *Engine) History() []TickStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]TickStats, len(e.history))
	copy(out, e.history)
	return out
}

// Done reports whether the epidemic is over: no infected agents remain.
func (e *Engine) Done() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pop.Len(agent.Infected) == 0
}

// Tick returns the number of ticks run since the last reset.
func (e *Engine) Tick() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tick
}

// RunID identifies the current run.
func (e *Engine) RunID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runID
}

// Config returns a copy of the active configuration.
func (e *Engine) Config() *config.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.Clone()
}

// Resize changes the arena bounds used by wall reflection from the next tick
// on. Positions are never clamped, so the resize is refused when a moving
// agent would overlap a new wall that one tick of its velocity cannot clear,
// or when the resulting configuration no longer validates.
func (e *Engine) Resize(width, height float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cfg := e.cfg.Clone()
	cfg.Width = width
	cfg.Height = height
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("failed to resize arena: %w", err)
	}

	bounds := cfg.Bounds()
	for _, s := range agent.States {
		if s == agent.Dead && cfg.FreezeDead {
			continue
		}
		for _, a := range e.pop.Group(s) {
			if !fitsWithin(a, bounds, cfg.AgentRadius) {
				return fmt.Errorf("failed to resize arena: %w", &config.ValidationError{Fields: []config.FieldError{{
					Field:  "arena",
					Value:  fmt.Sprintf("%vx%v", width, height),
					Reason: fmt.Sprintf("agent %d at (%.1f, %.1f) would be left outside", a.ID, a.Position.X, a.Position.Y),
				}}})
			}
		}
	}

	e.cfg = cfg
	return nil
}

// GetEventLog exposes the event log for replay and broadcasting.
func (e *Engine) GetEventLog() *events.EventLog {
	return e.eventLog
}
