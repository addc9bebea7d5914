package network

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MRamiBalles/PandemicSim/internal/engine"
	"github.com/MRamiBalles/PandemicSim/internal/platform/config"
	"github.com/MRamiBalles/PandemicSim/internal/platform/logger"
)

// Control actions accepted over REST and WebSocket.
const (
	ActionPause  = "PAUSE"
	ActionResume = "RESUME"
	ActionStep   = "STEP"
	ActionReset  = "RESET"
	ActionResize = "RESIZE"
)

var (
	// ErrUnknownAction is returned for an unsupported control action.
	ErrUnknownAction = errors.New("unknown control action")
	// ErrNotPaused is returned when stepping manually while the ticker runs.
	ErrNotPaused = errors.New("simulation must be paused to step manually")
)

// ResetRequest overrides parameters of the active configuration for the
// next run. Nil fields keep their current value.
type ResetRequest struct {
	Seed            *uint64  `json:"seed,omitempty"`
	Population      *int     `json:"population,omitempty"`
	InitialInfected *int     `json:"initial_infected,omitempty"`
	InfectionRate   *float64 `json:"infection_rate,omitempty"`
	InfectionRadius *float64 `json:"infection_radius,omitempty"`
	FatalityRate    *float64 `json:"fatality_rate,omitempty"`
	RecoveryTicks   *int     `json:"recovery_ticks,omitempty"`
	TicksPerSecond  *int     `json:"ticks_per_second,omitempty"`
}

// ArenaRequest sets new arena bounds for the running simulation.
type ArenaRequest struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ControlResult reports the state after a control action.
type ControlResult struct {
	Action string            `json:"action"`
	RunID  string            `json:"run_id"`
	Tick   int64             `json:"tick"`
	Paused bool              `json:"paused"`
	Stats  *engine.TickStats `json:"stats,omitempty"`
}

// Controller applies presentation commands to the running simulation.
// Pause and step go through the ticker so it stays the only stepper.
type Controller struct {
	engine *engine.Engine
	ticker *engine.Ticker
	logger *logger.Logger
}

// NewController creates a controller for an engine driven by ticker.
func NewController(eng *engine.Engine, ticker *engine.Ticker, log *logger.Logger) *Controller {
	return &Controller{engine: eng, ticker: ticker, logger: log}
}

// Engine returns the controlled engine.
func (c *Controller) Engine() *engine.Engine {
	return c.engine
}

// Paused reports whether the ticker is paused.
func (c *Controller) Paused() bool {
	return c.ticker.Paused()
}

// Apply runs one control action. req is only used by RESET and may be nil.
func (c *Controller) Apply(action string, req *ResetRequest) (ControlResult, error) {
	action = strings.ToUpper(action)
	result := ControlResult{Action: action}

	switch action {
	case ActionPause:
		c.ticker.Pause()
	case ActionResume:
		c.ticker.Resume()
	case ActionStep:
		stats, ok := c.ticker.StepOnce()
		if !ok {
			return result, ErrNotPaused
		}
		result.Stats = &stats
	case ActionReset:
		cfg := c.engine.Config()
		if req != nil {
			req.apply(cfg)
		}
		if err := c.engine.Reset(cfg); err != nil {
			return result, err
		}
		c.logger.Event("RESET", "CONTROL", "Run "+c.engine.RunID()+" started on request")
	default:
		return result, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}

	result.RunID = c.engine.RunID()
	result.Tick = c.engine.Tick()
	result.Paused = c.ticker.Paused()
	return result, nil
}

// Resize changes the arena of the current run without resetting it.
func (c *Controller) Resize(req ArenaRequest) (ControlResult, error) {
	result := ControlResult{Action: ActionResize}
	if err := c.engine.Resize(req.Width, req.Height); err != nil {
		return result, err
	}
	c.logger.Event("RESIZE", "CONTROL", fmt.Sprintf("Arena of run %s is now %vx%v", c.engine.RunID(), req.Width, req.Height))

	result.RunID = c.engine.RunID()
	result.Tick = c.engine.Tick()
	result.Paused = c.ticker.Paused()
	return result, nil
}

func (r *ResetRequest) apply(cfg *config.Config) {
	if r.Seed != nil {
		cfg.Seed = *r.Seed
	}
	if r.Population != nil {
		cfg.Population = *r.Population
	}
	if r.InitialInfected != nil {
		cfg.InitialInfected = *r.InitialInfected
	}
	if r.InfectionRate != nil {
		cfg.InfectionRate = *r.InfectionRate
	}
	if r.InfectionRadius != nil {
		cfg.InfectionRadius = *r.InfectionRadius
	}
	if r.FatalityRate != nil {
		cfg.FatalityRate = *r.FatalityRate
	}
	if r.RecoveryTicks != nil {
		cfg.RecoveryTicks = *r.RecoveryTicks
	}
	if r.TicksPerSecond != nil {
		cfg.TicksPerSecond = *r.TicksPerSecond
	}
}
