package agent

import (
	"math/rand/v2"

	"github.com/MRamiBalles/PandemicSim/internal/domain/rules"
)

// FactoryParams are the per-agent generation parameters.
type FactoryParams struct {
	Radius              float64
	MaxSpeed            float64
	FatalityRate        float64
	RecoveryTicks       int
	RecoveryJitterTicks int
}

// Factory creates agents and samples infection fates from one random source.
type Factory struct {
	params FactoryParams
	rng    *rand.Rand
}

// NewFactory binds generation parameters to the engine's random source.
func NewFactory(params FactoryParams, rng *rand.Rand) *Factory {
	return &Factory{params: params, rng: rng}
}

// NewAgent creates a susceptible agent uniformly inside spawn, inset by the
// agent radius so it never starts clipping a wall.
func (f *Factory) NewAgent(id int, spawn Rect) *Agent {
	pos := f.PointIn(spawn.Inset(f.params.Radius))
	vel := Vec2{
		X: rules.NudgeSpeed(f.uniform(-f.params.MaxSpeed, f.params.MaxSpeed)),
		Y: rules.NudgeSpeed(f.uniform(-f.params.MaxSpeed, f.params.MaxSpeed)),
	}
	return &Agent{ID: id, Position: pos, Velocity: vel, State: Susceptible}
}

// SampleFate draws the recovery deadline and the fatality trial for a new
// infection. The result is fixed for the agent's whole infected lifetime.
func (f *Factory) SampleFate() Fate {
	jitter := f.params.RecoveryJitterTicks
	roll := 0
	if jitter > 0 {
		roll = f.rng.IntN(2*jitter + 1)
	}
	return Fate{
		DeadlineTicks: rules.RecoveryDeadline(f.params.RecoveryTicks, jitter, roll),
		Fatal:         rules.IsFatal(f.params.FatalityRate, f.rng.Float64()),
	}
}

// PointIn samples a uniform point inside r.
func (f *Factory) PointIn(r Rect) Vec2 {
	return Vec2{
		X: r.Min.X + f.rng.Float64()*r.Size.X,
		Y: r.Min.Y + f.rng.Float64()*r.Size.Y,
	}
}

func (f *Factory) uniform(lo, hi float64) float64 {
	return lo + f.rng.Float64()*(hi-lo)
}
