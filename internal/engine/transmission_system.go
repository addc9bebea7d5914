package engine

import (
	"math/rand/v2"

	"github.com/MRamiBalles/PandemicSim/internal/domain/agent"
	"github.com/MRamiBalles/PandemicSim/internal/domain/rules"
	"github.com/MRamiBalles/PandemicSim/internal/platform/config"
)

// Infection is one transmission decided during a tick.
type Infection struct {
	Target *agent.Agent
	Source *agent.Agent
}

// TransmissionSystem decides which susceptible agents catch the infection
// from the agents that were infected when the tick started.
type TransmissionSystem struct {
	agentRadius     float64
	infectionRadius float64
	rate            float64
	index           ContactIndex
	rng             *rand.Rand

	claimed    []bool
	candidates []int
}

// NewTransmissionSystem binds the contact geometry, the per-contact rate,
// the contact index and the engine's random source.
func NewTransmissionSystem(cfg *config.Config, index ContactIndex, rng *rand.Rand) *TransmissionSystem {
	return &TransmissionSystem{
		agentRadius:     cfg.AgentRadius,
		infectionRadius: cfg.InfectionRadius,
		rate:            cfg.InfectionRate,
		index:           index,
		rng:             rng,
	}
}

// Scan visits transmitters in collection order and, for each, the
// unclaimed susceptible agents in collection order. A susceptible agent in
// contact is claimed when a uniform roll falls below the rate; once claimed
// it is invisible to later transmitters of the same tick.
//
// Scan only decides. The collections are not touched, so agents infected
// now cannot transmit before the next tick.
func (ts *TransmissionSystem) Scan(infected, susceptible []*agent.Agent) []Infection {
	if len(infected) == 0 || len(susceptible) == 0 {
		return nil
	}

	ts.claimed = resetClaims(ts.claimed, len(susceptible))
	ts.index.Build(susceptible)
	reach := ts.agentRadius + ts.infectionRadius

	var out []Infection
	for _, src := range infected {
		ts.candidates = ts.index.Candidates(src.Position, reach, ts.candidates[:0])
		for _, j := range ts.candidates {
			if ts.claimed[j] {
				continue
			}
			target := susceptible[j]
			d2 := src.Position.Sub(target.Position).MagSq()
			if !rules.InContactSq(d2, ts.agentRadius, ts.infectionRadius) {
				continue
			}
			if rules.Transmits(ts.rate, ts.rng.Float64()) {
				ts.claimed[j] = true
				out = append(out, Infection{Target: target, Source: src})
			}
		}
	}
	return out
}

func resetClaims(buf []bool, n int) []bool {
	if cap(buf) < n {
		return make([]bool, n)
	}
	buf = buf[:n]
	clear(buf)
	return buf
}
