package engine

import (
	"github.com/MRamiBalles/PandemicSim/internal/domain/agent"
	"github.com/MRamiBalles/PandemicSim/internal/platform/config"
)

// Advance moves an agent by one tick of velocity and reflects each velocity
// component whose axis overlaps a wall. The position is not clamped: an agent
// may overlap a wall for a tick until the reversed velocity pulls it back.
func Advance(a *agent.Agent, bounds agent.Vec2, radius float64) {
	a.Position = a.Position.Add(a.Velocity)

	if a.Position.X+radius > bounds.X || a.Position.X-radius < 0 {
		a.Velocity.X = -a.Velocity.X
	}
	if a.Position.Y+radius > bounds.Y || a.Position.Y-radius < 0 {
		a.Velocity.Y = -a.Velocity.Y
	}
}

// fitsWithin reports whether Advance keeps a inside bounds. An agent already
// overlapping a wall only gets back if it is heading inward and one tick of
// velocity clears the overlap; otherwise it flips back and forth in place.
func fitsWithin(a *agent.Agent, bounds agent.Vec2, radius float64) bool {
	return axisFits(a.Position.X, a.Velocity.X, bounds.X, radius) &&
		axisFits(a.Position.Y, a.Velocity.Y, bounds.Y, radius)
}

func axisFits(pos, vel, bound, radius float64) bool {
	if over := pos + radius - bound; over > 0 {
		return vel < 0 && over <= -vel
	}
	if over := radius - pos; over > 0 {
		return vel > 0 && over <= vel
	}
	return true
}

// KinematicsSystem advances every moving agent once per tick.
type KinematicsSystem struct {
	radius     float64
	freezeDead bool
}

// NewKinematicsSystem binds the agent radius and the dead-agent policy.
func NewKinematicsSystem(cfg *config.Config) *KinematicsSystem {
	return &KinematicsSystem{
		radius:     cfg.AgentRadius,
		freezeDead: cfg.FreezeDead,
	}
}

// OnTick advances the given collections inside bounds and returns the
// number of agents moved.
func (ks *KinematicsSystem) OnTick(groups [agent.NumStates][]*agent.Agent, bounds agent.Vec2) int {
	moved := 0
	for _, s := range agent.States {
		if s == agent.Dead && ks.freezeDead {
			continue
		}
		for _, a := range groups[s] {
			Advance(a, bounds, ks.radius)
			moved++
		}
	}
	return moved
}
