package agent

import (
	"encoding/json"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	allowed := map[[2]HealthState]bool{
		{Susceptible, Infected}: true,
		{Infected, Recovered}:   true,
		{Infected, Dead}:        true,
	}
	for _, from := range States {
		for _, to := range States {
			assert.Equal(t, allowed[[2]HealthState{from, to}], CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestTerminalStates(t *testing.T) {
	assert.False(t, Susceptible.Terminal())
	assert.False(t, Infected.Terminal())
	assert.True(t, Recovered.Terminal())
	assert.True(t, Dead.Terminal())

	for _, s := range States {
		if s.Terminal() {
			for _, to := range States {
				assert.False(t, CanTransition(s, to), "terminal %s must not leave to %s", s, to)
			}
		}
	}
}

func TestHealthStateText(t *testing.T) {
	for _, s := range States {
		data, err := json.Marshal(s)
		require.NoError(t, err)

		var back HealthState
		require.NoError(t, json.Unmarshal(data, &back))
		assert.Equal(t, s, back)
	}

	_, err := ParseHealthState("ZOMBIE")
	assert.Error(t, err)
	assert.False(t, HealthState(7).Valid())
	assert.Equal(t, "HealthState(7)", HealthState(7).String())
}

func TestInfectStampsFate(t *testing.T) {
	// Setup
	a := &Agent{ID: 1, State: Susceptible, InfectedTicks: 9}

	// Act
	a.Infect(Fate{DeadlineTicks: 3, Fatal: true})

	// Assert
	assert.Equal(t, 0, a.InfectedTicks)
	assert.Equal(t, 3, a.RecoveryDeadline)
	assert.True(t, a.FatedToDie)
	assert.Equal(t, Dead, a.Outcome())
	assert.Equal(t, Susceptible, a.State, "Infect must not change the state itself")

	a.FatedToDie = false
	assert.Equal(t, Recovered, a.Outcome())
}

func TestExpired(t *testing.T) {
	a := &Agent{State: Infected}
	a.Infect(Fate{DeadlineTicks: 2})

	assert.False(t, a.Expired())
	a.InfectedTicks = 1
	assert.False(t, a.Expired())
	a.InfectedTicks = 2
	assert.True(t, a.Expired())

	zero := &Agent{State: Infected}
	zero.Infect(Fate{DeadlineTicks: 0})
	assert.True(t, zero.Expired(), "a zero deadline expires immediately")
}

func TestRectGeometry(t *testing.T) {
	r := NewRect(10, 20, 100, 50)

	assert.Equal(t, Vec2{X: 110, Y: 70}, r.Max())
	assert.True(t, r.Contains(Vec2{X: 10, Y: 20}))
	assert.True(t, r.Contains(Vec2{X: 110, Y: 70}))
	assert.False(t, r.Contains(Vec2{X: 9.9, Y: 30}))

	in := r.Inset(5)
	assert.Equal(t, NewRect(15, 25, 90, 40), in)
	assert.True(t, r.ContainsRect(in))
	assert.False(t, in.ContainsRect(r))

	assert.True(t, r.Inset(30).Empty())
	assert.False(t, r.Empty())
}

func TestVecDistance(t *testing.T) {
	a := Vec2{X: 0, Y: 0}
	b := Vec2{X: 3, Y: 4}
	assert.InDelta(t, 5.0, a.Dist(b), 1e-12)
	assert.InDelta(t, 25.0, b.MagSq(), 1e-12)
	assert.Equal(t, Vec2{X: -3, Y: -4}, a.Sub(b))
}

func newTestFactory(p FactoryParams, seed uint64) *Factory {
	return NewFactory(p, rand.New(rand.NewPCG(seed, seed)))
}

func TestFactoryNewAgent(t *testing.T) {
	// Setup
	f := newTestFactory(FactoryParams{Radius: 5, MaxSpeed: 2, RecoveryTicks: 10}, 1)
	spawn := NewRect(0, 0, 200, 100)

	for i := 0; i < 500; i++ {
		// Act
		a := f.NewAgent(i, spawn)

		// Assert
		assert.Equal(t, i, a.ID)
		assert.Equal(t, Susceptible, a.State)
		assert.True(t, spawn.Inset(5).Contains(a.Position), "agent %d spawned at %+v", i, a.Position)
		assert.NotZero(t, a.Velocity.X)
		assert.NotZero(t, a.Velocity.Y)
		assert.LessOrEqual(t, a.Velocity.X, 2.0)
		assert.GreaterOrEqual(t, a.Velocity.X, -2.0)
	}
}

func TestFactoryZeroSpeedIsNudged(t *testing.T) {
	f := newTestFactory(FactoryParams{Radius: 1, MaxSpeed: 0}, 3)
	a := f.NewAgent(0, NewRect(0, 0, 10, 10))
	assert.Equal(t, Vec2{X: 1, Y: 1}, a.Velocity)
}

func TestSampleFateBounds(t *testing.T) {
	f := newTestFactory(FactoryParams{RecoveryTicks: 200, RecoveryJitterTicks: 100, FatalityRate: 0.5}, 42)

	fatal := 0
	for i := 0; i < 2000; i++ {
		fate := f.SampleFate()
		assert.GreaterOrEqual(t, fate.DeadlineTicks, 100)
		assert.LessOrEqual(t, fate.DeadlineTicks, 300)
		if fate.Fatal {
			fatal++
		}
	}
	assert.InDelta(t, 1000, fatal, 150)
}

func TestSampleFateExtremes(t *testing.T) {
	never := newTestFactory(FactoryParams{RecoveryTicks: 3, FatalityRate: 0}, 5)
	always := newTestFactory(FactoryParams{RecoveryTicks: 3, FatalityRate: 1}, 5)
	for i := 0; i < 100; i++ {
		a, b := never.SampleFate(), always.SampleFate()
		assert.Equal(t, Fate{DeadlineTicks: 3, Fatal: false}, a)
		assert.Equal(t, Fate{DeadlineTicks: 3, Fatal: true}, b)
	}
}

func TestFactoryIsDeterministic(t *testing.T) {
	p := FactoryParams{Radius: 3, MaxSpeed: 1, RecoveryTicks: 50, RecoveryJitterTicks: 10, FatalityRate: 0.2}
	a, b := newTestFactory(p, 99), newTestFactory(p, 99)
	spawn := NewRect(0, 0, 400, 300)
	for i := 0; i < 50; i++ {
		require.Equal(t, a.NewAgent(i, spawn), b.NewAgent(i, spawn))
		require.Equal(t, a.SampleFate(), b.SampleFate())
	}
}
