// Package population holds the four disjoint agent collections, one per
// health state, and the only operations allowed to move agents between them.
// This package is PURE and must NOT import any infrastructure packages.
package population

import (
	"fmt"

	"github.com/MRamiBalles/PandemicSim/internal/domain/agent"
)

// Counts is the size of each collection.
type Counts struct {
	Susceptible int `json:"susceptible"`
	Infected    int `json:"infected"`
	Recovered   int `json:"recovered"`
	Dead        int `json:"dead"`
}

func (c Counts) Total() int {
	return c.Susceptible + c.Infected + c.Recovered + c.Dead
}

// Of returns the count for a single state.
func (c Counts) Of(s agent.HealthState) int {
	switch s {
	case agent.Susceptible:
		return c.Susceptible
	case agent.Infected:
		return c.Infected
	case agent.Recovered:
		return c.Recovered
	case agent.Dead:
		return c.Dead
	}
	return 0
}

// Population owns every agent of a run. Agents are never created or
// destroyed after seeding, only reclassified.
type Population struct {
	groups [agent.NumStates][]*agent.Agent
	total  int
}

// New returns an empty population.
func New() *Population {
	return &Population{}
}

// Populate creates total agents; the first initialInfected are infected with
// a freshly sampled fate, the rest are susceptible.
func Populate(f *agent.Factory, total, initialInfected int, spawn agent.Rect) *Population {
	p := New()
	for id := 0; id < total; id++ {
		a := f.NewAgent(id, spawn)
		if id < initialInfected {
			a.State = agent.Infected
			a.Infect(f.SampleFate())
		}
		p.Add(a)
	}
	return p
}

// Add places a new agent into the collection matching its State.
// Only used while seeding a run.
func (p *Population) Add(a *agent.Agent) {
	p.groups[a.State] = append(p.groups[a.State], a)
	p.total++
}

// Move reclassifies a single agent, keeping the relative order of the
// collection it leaves.
func (p *Population) Move(a *agent.Agent, to agent.HealthState) error {
	from := a.State
	if !agent.CanTransition(from, to) {
		return fmt.Errorf("illegal transition %s -> %s for agent %d", from, to, a.ID)
	}
	idx := p.indexOf(from, a)
	if idx < 0 {
		return fmt.Errorf("agent %d not found in %s collection", a.ID, from)
	}
	g := p.groups[from]
	p.groups[from] = append(g[:idx], g[idx+1:]...)
	a.State = to
	p.groups[to] = append(p.groups[to], a)
	return nil
}

// Group exposes the live collection for one state. Callers must not append,
// remove or reorder; structural changes go through Move or Commit.
func (p *Population) Group(s agent.HealthState) []*agent.Agent {
	return p.groups[s]
}

// Len returns the size of one collection.
func (p *Population) Len(s agent.HealthState) int {
	return len(p.groups[s])
}

// Total is the conserved population size.
func (p *Population) Total() int {
	return p.total
}

func (p *Population) Counts() Counts {
	return Counts{
		Susceptible: len(p.groups[agent.Susceptible]),
		Infected:    len(p.groups[agent.Infected]),
		Recovered:   len(p.groups[agent.Recovered]),
		Dead:        len(p.groups[agent.Dead]),
	}
}

// Views copies the drawable fields of one collection.
func (p *Population) Views(s agent.HealthState) []agent.View {
	g := p.groups[s]
	out := make([]agent.View, len(g))
	for i, a := range g {
		out[i] = a.View()
	}
	return out
}

// Find looks an agent up by ID across all collections.
func (p *Population) Find(id int) *agent.Agent {
	for _, g := range p.groups {
		for _, a := range g {
			if a.ID == id {
				return a
			}
		}
	}
	return nil
}

// Verify checks that membership equals State, that no agent appears twice,
// and that the population size is conserved.
func (p *Population) Verify() error {
	seen := make(map[*agent.Agent]struct{}, p.total)
	n := 0
	for _, s := range agent.States {
		for i, a := range p.groups[s] {
			if a == nil {
				return fmt.Errorf("nil agent at %s[%d]", s, i)
			}
			if a.State != s {
				return fmt.Errorf("agent %d has state %s but sits in %s collection", a.ID, a.State, s)
			}
			if _, dup := seen[a]; dup {
				return fmt.Errorf("agent %d appears more than once", a.ID)
			}
			seen[a] = struct{}{}
			n++
		}
	}
	if n != p.total {
		return fmt.Errorf("population not conserved: have %d agents, seeded %d", n, p.total)
	}
	return nil
}

func (p *Population) indexOf(s agent.HealthState, a *agent.Agent) int {
	for i, x := range p.groups[s] {
		if x == a {
			return i
		}
	}
	return -1
}
