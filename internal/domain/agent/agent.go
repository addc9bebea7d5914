// Package agent defines the core domain entity of the simulation: a moving
// point agent with a health state.
// This package is PURE and must NOT import any infrastructure packages.
package agent

import "fmt"

// HealthState is the mutually exclusive classification of an agent.
type HealthState int

const (
	Susceptible HealthState = iota
	Infected
	Recovered
	Dead
)

// NumStates is the number of health states (and population collections).
const NumStates = 4

// States lists every health state in collection order.
var States = [NumStates]HealthState{Susceptible, Infected, Recovered, Dead}

func (s HealthState) String() string {
	switch s {
	case Susceptible:
		return "SUSCEPTIBLE"
	case Infected:
		return "INFECTED"
	case Recovered:
		return "RECOVERED"
	case Dead:
		return "DEAD"
	}
	return fmt.Sprintf("HealthState(%d)", int(s))
}

func (s HealthState) Valid() bool {
	return s >= Susceptible && s <= Dead
}

// Terminal reports whether no further transition can leave this state.
func (s HealthState) Terminal() bool {
	return s == Recovered || s == Dead
}

// CanTransition reports whether from -> to is an edge of the health state machine:
// Susceptible -> Infected -> {Recovered | Dead}.
func CanTransition(from, to HealthState) bool {
	switch from {
	case Susceptible:
		return to == Infected
	case Infected:
		return to == Recovered || to == Dead
	}
	return false
}

// Fate is the destiny of an infection, fixed at the moment of infection.
type Fate struct {
	DeadlineTicks int
	Fatal         bool
}

// Agent is a passive data record. Membership in the population collections
// always equals State; only the population and the engine change State.
type Agent struct {
	ID       int         `json:"id"`
	Position Vec2        `json:"position"`
	Velocity Vec2        `json:"velocity"`
	State    HealthState `json:"state"`

	// Meaningful only while Infected.
	InfectedTicks    int  `json:"infected_ticks"`
	RecoveryDeadline int  `json:"recovery_deadline"`
	FatedToDie       bool `json:"fated_to_die"`
}

// Infect stamps the infection timers and destiny onto a susceptible agent.
// State itself is changed by the population when the agent is moved.
func (a *Agent) Infect(f Fate) {
	a.InfectedTicks = 0
	a.RecoveryDeadline = f.DeadlineTicks
	a.FatedToDie = f.Fatal
}

// Outcome is the terminal state an infected agent resolves to.
func (a *Agent) Outcome() HealthState {
	if a.FatedToDie {
		return Dead
	}
	return Recovered
}

// Expired reports whether the infection timer has run out.
func (a *Agent) Expired() bool {
	return a.InfectedTicks >= a.RecoveryDeadline
}

// View is a read-only copy of the fields the presentation layer draws.
type View struct {
	ID       int         `json:"id"`
	Position Vec2        `json:"position"`
	State    HealthState `json:"state"`
}

func (a *Agent) View() View {
	return View{ID: a.ID, Position: a.Position, State: a.State}
}

// ParseHealthState is the inverse of HealthState.String.
func ParseHealthState(s string) (HealthState, error) {
	for _, st := range States {
		if st.String() == s {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown health state %q", s)
}

func (s HealthState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *HealthState) UnmarshalText(b []byte) error {
	st, err := ParseHealthState(string(b))
	if err != nil {
		return err
	}
	*s = st
	return nil
}
