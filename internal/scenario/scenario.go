// Package scenario holds hand-staged simulation runs with a known outcome.
// They double as acceptance checks for the engine and ship as a runnable
// suite (cmd/scenario-runner).
package scenario

import (
	"context"
	"fmt"
	"time"

	"github.com/MRamiBalles/PandemicSim/internal/domain/agent"
	"github.com/MRamiBalles/PandemicSim/internal/domain/population"
	"github.com/MRamiBalles/PandemicSim/internal/engine"
	"github.com/MRamiBalles/PandemicSim/internal/events"
	"github.com/MRamiBalles/PandemicSim/internal/platform/config"
	"github.com/MRamiBalles/PandemicSim/internal/platform/logger"
)

// Scenario is one staged run and its expected outcome.
type Scenario struct {
	Name        string
	Description string
	Run         func(ctx context.Context, h *Harness) error
}

// Result captures the outcome of each scenario.
type Result struct {
	Name     string        `json:"name"`
	Passed   bool          `json:"passed"`
	Reason   string        `json:"reason,omitempty"`
	Ticks    int64         `json:"ticks"`
	Duration time.Duration `json:"duration_ns"`
}

// Harness builds engines for a scenario and tracks how far they ran.
type Harness struct {
	logger *logger.Logger
	ticks  int64
}

// Suite runs scenarios in order.
type Suite struct {
	scenarios []Scenario
	logger    *logger.Logger
	results   []Result
}

// NewSuite creates a suite with the given scenarios, or the built-in ones
// when none are given.
func NewSuite(log *logger.Logger, scenarios ...Scenario) *Suite {
	if len(scenarios) == 0 {
		scenarios = Builtin()
	}
	return &Suite{scenarios: scenarios, logger: log}
}

// Run executes every scenario. A panic inside a scenario (a broken engine
// invariant) fails that scenario only.
func (s *Suite) Run(ctx context.Context) []Result {
	s.results = s.results[:0]
	for _, sc := range s.scenarios {
		if ctx.Err() != nil {
			s.results = append(s.results, Result{Name: sc.Name, Reason: ctx.Err().Error()})
			continue
		}
		res := s.runOne(ctx, sc)
		if res.Passed {
			s.logger.Info("SCENARIO PASS: " + sc.Name)
		} else {
			s.logger.Warn("SCENARIO FAIL: " + sc.Name + ": " + res.Reason)
		}
		s.results = append(s.results, res)
	}
	return s.Results()
}

func (s *Suite) runOne(ctx context.Context, sc Scenario) (res Result) {
	h := &Harness{logger: s.logger}
	start := time.Now()
	res.Name = sc.Name
	defer func() {
		if r := recover(); r != nil {
			res.Passed = false
			res.Reason = fmt.Sprintf("panic: %v", r)
		}
		res.Ticks = h.ticks
		res.Duration = time.Since(start)
	}()

	if err := sc.Run(ctx, h); err != nil {
		res.Reason = err.Error()
		return res
	}
	res.Passed = true
	return res
}

// Results returns a copy of the results of the last Run.
func (s *Suite) Results() []Result {
	out := make([]Result, len(s.results))
	copy(out, s.results)
	return out
}

// Tally counts passed and failed results.
func Tally(results []Result) (passed, failed int) {
	for _, r := range results {
		if r.Passed {
			passed++
		} else {
			failed++
		}
	}
	return passed, failed
}

// BaseConfig is the configuration staged scenarios start from: the default
// tuning with invariant checks on.
func BaseConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.CheckInvariants = true
	return cfg
}

// Seeded builds an engine seeded from cfg.
func (h *Harness) Seeded(cfg *config.Config) (*engine.Engine, error) {
	return engine.NewEngine(cfg, events.NewEventLog(nil), h.logger)
}

// Staged builds an engine running the hand-built population pop.
func (h *Harness) Staged(cfg *config.Config, pop *population.Population) (*engine.Engine, error) {
	eng, err := h.Seeded(cfg)
	if err != nil {
		return nil, err
	}
	if err := eng.ResetWith(cfg, pop); err != nil {
		return nil, err
	}
	return eng, nil
}

// Step advances eng once and counts the tick.
func (h *Harness) Step(eng *engine.Engine) engine.TickStats {
	h.ticks++
	return eng.Step()
}

// Placement describes one hand-placed agent.
type Placement struct {
	At    agent.Vec2
	State agent.HealthState
	Fate  agent.Fate
}

// Stage builds a population of motionless agents with IDs in placement order.
func Stage(placements ...Placement) *population.Population {
	pop := population.New()
	for id, s := range placements {
		a := &agent.Agent{ID: id, Position: s.At, State: s.State}
		if s.State == agent.Infected {
			a.Infect(s.Fate)
		}
		pop.Add(a)
	}
	return pop
}

// Long is a fate that outlasts any scenario.
var Long = agent.Fate{DeadlineTicks: 1 << 20}

// Builtin returns the acceptance scenarios.
func Builtin() []Scenario {
	return []Scenario{
		{Name: "zero-infection-rate", Description: "no transmission ever happens when the rate is 0", Run: zeroRate},
		{Name: "certain-infection", Description: "a colocated pair always transmits when the rate is 1", Run: certainInfection},
		{Name: "forced-recovery", Description: "deadline 3, not fated: Recovered after exactly 3 ticks", Run: forcedResolution(false)},
		{Name: "forced-death", Description: "deadline 3, fated to die: Dead after exactly 3 ticks", Run: forcedResolution(true)},
		{Name: "single-infection-per-tick", Description: "two transmitters infect a shared contact only once", Run: singleInfection},
		{Name: "no-same-tick-retransmission", Description: "a chain spreads one link per tick", Run: chainSpread},
		{Name: "conservation", Description: "a seeded run conserves its population until the epidemic ends", Run: conservation},
		{Name: "deterministic-replay", Description: "equal seeds produce equal runs", Run: determinism},
		{Name: "index-equivalence", Description: "the R-tree index reproduces the brute-force run", Run: indexEquivalence},
	}
}

var center = agent.Vec2{X: 400, Y: 300}

func zeroRate(ctx context.Context, h *Harness) error {
	cfg := BaseConfig()
	cfg.InfectionRate = 0

	placements := []Placement{{At: center, State: agent.Infected, Fate: Long}}
	for i := 0; i < 10; i++ {
		placements = append(placements, Placement{At: center, State: agent.Susceptible})
	}
	eng, err := h.Staged(cfg, Stage(placements...))
	if err != nil {
		return err
	}

	for i := 0; i < 50 && ctx.Err() == nil; i++ {
		st := h.Step(eng)
		if st.NewInfections != 0 || st.Susceptible != 10 {
			return fmt.Errorf("tick %d: %d new infections, %d susceptible left", st.Tick, st.NewInfections, st.Susceptible)
		}
	}
	return ctx.Err()
}

func certainInfection(_ context.Context, h *Harness) error {
	cfg := BaseConfig()
	cfg.InfectionRate = 1

	eng, err := h.Staged(cfg, Stage(
		Placement{At: center, State: agent.Infected, Fate: Long},
		Placement{At: center, State: agent.Susceptible},
	))
	if err != nil {
		return err
	}

	st := h.Step(eng)
	if st.Susceptible != 0 || st.Infected != 2 {
		return fmt.Errorf("after one tick want 0 susceptible and 2 infected, got %+v", st.Counts)
	}
	infections := eng.GetEventLog().GetByType(events.EventTypeInfection)
	if len(infections) != 1 || infections[0].AgentID != 1 || infections[0].SourceID != 0 {
		return fmt.Errorf("want one infection of agent 1 by agent 0, got %d events", len(infections))
	}
	return nil
}

func forcedResolution(fatal bool) func(context.Context, *Harness) error {
	want := agent.Recovered
	if fatal {
		want = agent.Dead
	}
	return func(_ context.Context, h *Harness) error {
		cfg := BaseConfig()
		eng, err := h.Staged(cfg, Stage(
			Placement{At: center, State: agent.Infected, Fate: agent.Fate{DeadlineTicks: 3, Fatal: fatal}},
		))
		if err != nil {
			return err
		}

		for tick := 1; tick <= 2; tick++ {
			if st := h.Step(eng); st.Infected != 1 {
				return fmt.Errorf("tick %d: agent resolved before its deadline: %+v", tick, st.Counts)
			}
		}
		st := h.Step(eng)
		if st.Counts.Of(want) != 1 || st.Infected != 0 {
			return fmt.Errorf("tick 3: want the agent %s, got %+v", want, st.Counts)
		}
		snap := eng.Snapshot()
		if fatal && !cfg.DeadZone.Contains(snap.Dead[0].Position) {
			return fmt.Errorf("dead agent at %+v is outside the dead zone", snap.Dead[0].Position)
		}
		if !eng.Done() {
			return fmt.Errorf("engine not done with no infected agents left")
		}
		return nil
	}
}

func singleInfection(_ context.Context, h *Harness) error {
	cfg := BaseConfig()
	cfg.InfectionRate = 1

	eng, err := h.Staged(cfg, Stage(
		Placement{At: center, State: agent.Infected, Fate: Long},
		Placement{At: center, State: agent.Infected, Fate: Long},
		Placement{At: center, State: agent.Susceptible},
	))
	if err != nil {
		return err
	}

	st := h.Step(eng)
	if st.NewInfections != 1 || st.Infected != 3 {
		return fmt.Errorf("want exactly one new infection, got %d (%+v)", st.NewInfections, st.Counts)
	}
	infections := eng.GetEventLog().GetByType(events.EventTypeInfection)
	if len(infections) != 1 || infections[0].SourceID != 0 {
		return fmt.Errorf("the first transmitter in order must claim the contact")
	}
	return nil
}

func chainSpread(_ context.Context, h *Harness) error {
	cfg := BaseConfig()
	cfg.InfectionRate = 1
	// Links are within contact range of their neighbours only.
	step := (cfg.AgentRadius + cfg.InfectionRadius) * 0.8

	eng, err := h.Staged(cfg, Stage(
		Placement{At: center, State: agent.Infected, Fate: Long},
		Placement{At: agent.Vec2{X: center.X + step, Y: center.Y}, State: agent.Susceptible},
		Placement{At: agent.Vec2{X: center.X + 2*step, Y: center.Y}, State: agent.Susceptible},
		Placement{At: agent.Vec2{X: center.X + 3*step, Y: center.Y}, State: agent.Susceptible},
	))
	if err != nil {
		return err
	}

	for tick := 1; tick <= 3; tick++ {
		st := h.Step(eng)
		if st.NewInfections != 1 || st.Infected != tick+1 {
			return fmt.Errorf("tick %d: want one new link, got %d new, %d infected", tick, st.NewInfections, st.Infected)
		}
	}
	return nil
}

func conservation(ctx context.Context, h *Harness) error {
	cfg := config.LowResourceConfig()
	cfg.CheckInvariants = true
	cfg.Seed = 7
	cfg.InitialInfected = 3

	eng, err := h.Seeded(cfg)
	if err != nil {
		return err
	}

	prev := eng.Counts()
	for i := 0; i < 5000 && !eng.Done() && ctx.Err() == nil; i++ {
		st := h.Step(eng)
		if st.Total() != cfg.Population {
			return fmt.Errorf("tick %d: population %d, want %d", st.Tick, st.Total(), cfg.Population)
		}
		if st.Recovered < prev.Recovered || st.Dead < prev.Dead || st.Susceptible > prev.Susceptible {
			return fmt.Errorf("tick %d: terminal or susceptible counts moved backwards: %+v after %+v", st.Tick, st.Counts, prev)
		}
		prev = st.Counts
	}
	return ctx.Err()
}

// curve runs cfg for n ticks and returns the counts of every tick.
func curve(h *Harness, cfg *config.Config, n int) ([]population.Counts, error) {
	eng, err := h.Seeded(cfg)
	if err != nil {
		return nil, err
	}
	out := []population.Counts{eng.Counts()}
	for i := 0; i < n; i++ {
		out = append(out, h.Step(eng).Counts)
	}
	return out, nil
}

func sameCurves(a, b []population.Counts) error {
	if len(a) != len(b) {
		return fmt.Errorf("runs have %d and %d ticks", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			return fmt.Errorf("runs diverge at tick %d: %+v vs %+v", i, a[i], b[i])
		}
	}
	return nil
}

func determinism(_ context.Context, h *Harness) error {
	cfg := config.LowResourceConfig()
	cfg.Seed = 42
	cfg.InitialInfected = 5

	a, err := curve(h, cfg, 400)
	if err != nil {
		return err
	}
	b, err := curve(h, cfg, 400)
	if err != nil {
		return err
	}
	return sameCurves(a, b)
}

func indexEquivalence(_ context.Context, h *Harness) error {
	cfg := config.LowResourceConfig()
	cfg.Seed = 1234
	cfg.InitialInfected = 5

	cfg.Index = config.IndexBruteForce
	brute, err := curve(h, cfg, 400)
	if err != nil {
		return err
	}
	cfg.Index = config.IndexRTree
	rtree, err := curve(h, cfg, 400)
	if err != nil {
		return err
	}
	return sameCurves(brute, rtree)
}
