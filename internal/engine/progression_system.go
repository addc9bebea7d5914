package engine

import (
	"github.com/MRamiBalles/PandemicSim/internal/domain/agent"
)

// ProgressionSystem ages infected agents and picks the ones whose timer has
// run out. The outcome was fixed at infection time (Agent.FatedToDie).
type ProgressionSystem struct{}

func NewProgressionSystem() *ProgressionSystem {
	return &ProgressionSystem{}
}

// Scan ages each agent by one tick, never past its deadline, and returns
// those that reached it, in collection order. Only agents that were
// infected when the tick started are passed in, so fresh infections are
// not aged on the tick they happen.
//
// Ageing comes before the expiry check, so an agent with deadline N
// resolves on exactly the Nth tick after infection rather than the N+1th.
func (ps *ProgressionSystem) Scan(infected []*agent.Agent) []*agent.Agent {
	var resolved []*agent.Agent
	for _, a := range infected {
		if !a.Expired() {
			a.InfectedTicks++
		}
		if a.Expired() {
			resolved = append(resolved, a)
		}
	}
	return resolved
}
