package population

import (
	"fmt"

	"github.com/MRamiBalles/PandemicSim/internal/domain/agent"
)

// Batch collects one tick's transition decisions. Nothing is moved until
// Commit, so scans can run over stable collections.
type Batch struct {
	// Infections are susceptible agents to infect, in claim order. Their
	// fate must already be stamped with Agent.Infect.
	Infections []*agent.Agent
	// Resolutions are infected agents whose timer expired, in scan order.
	// Each moves to its Outcome().
	Resolutions []*agent.Agent
}

func (b *Batch) Empty() bool {
	return len(b.Infections) == 0 && len(b.Resolutions) == 0
}

// Commit applies a batch atomically:
//
//	Infected'    = Infected minus resolved (order kept) ++ Infections
//	Susceptible' = Susceptible minus Infections (order kept)
//	Recovered', Dead' = appended in resolution order
//
// On error the population is left untouched.
func (p *Population) Commit(b Batch) error {
	infect := make(map[*agent.Agent]struct{}, len(b.Infections))
	for _, a := range b.Infections {
		if a.State != agent.Susceptible {
			return fmt.Errorf("cannot infect agent %d in state %s", a.ID, a.State)
		}
		if _, dup := infect[a]; dup {
			return fmt.Errorf("agent %d infected twice in one batch", a.ID)
		}
		infect[a] = struct{}{}
	}
	resolve := make(map[*agent.Agent]struct{}, len(b.Resolutions))
	for _, a := range b.Resolutions {
		if a.State != agent.Infected {
			return fmt.Errorf("cannot resolve agent %d in state %s", a.ID, a.State)
		}
		if _, dup := resolve[a]; dup {
			return fmt.Errorf("agent %d resolved twice in one batch", a.ID)
		}
		resolve[a] = struct{}{}
	}

	sus := p.groups[agent.Susceptible]
	keptSus := make([]*agent.Agent, 0, len(sus))
	for _, a := range sus {
		if _, ok := infect[a]; !ok {
			keptSus = append(keptSus, a)
		}
	}
	if len(sus)-len(keptSus) != len(infect) {
		return fmt.Errorf("batch infects %d agents but only %d are susceptible members", len(infect), len(sus)-len(keptSus))
	}

	inf := p.groups[agent.Infected]
	keptInf := make([]*agent.Agent, 0, len(inf)+len(b.Infections))
	for _, a := range inf {
		if _, ok := resolve[a]; !ok {
			keptInf = append(keptInf, a)
		}
	}
	if len(inf)-len(keptInf) != len(resolve) {
		return fmt.Errorf("batch resolves %d agents but only %d are infected members", len(resolve), len(inf)-len(keptInf))
	}

	for _, a := range b.Infections {
		a.State = agent.Infected
		keptInf = append(keptInf, a)
	}
	for _, a := range b.Resolutions {
		to := a.Outcome()
		a.State = to
		p.groups[to] = append(p.groups[to], a)
	}
	p.groups[agent.Susceptible] = keptSus
	p.groups[agent.Infected] = keptInf
	return nil
}
