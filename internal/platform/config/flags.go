package config

import (
	"flag"
	"fmt"
	"os"
)

// BindFlags registers command-line overrides for the run parameters on fs.
// Each flag defaults to the current value of c.
func (c *Config) BindFlags(fs *flag.FlagSet) {
	fs.Float64Var(&c.Width, "width", c.Width, "arena width")
	fs.Float64Var(&c.Height, "height", c.Height, "arena height")
	fs.Float64Var(&c.AgentRadius, "radius", c.AgentRadius, "agent radius")
	fs.IntVar(&c.Population, "population", c.Population, "number of agents")
	fs.IntVar(&c.InitialInfected, "infected", c.InitialInfected, "agents infected at seeding")
	fs.Float64Var(&c.MaxSpeed, "max-speed", c.MaxSpeed, "maximum speed per axis, per tick")
	fs.Float64Var(&c.InfectionRadius, "infection-radius", c.InfectionRadius, "contact distance beyond the agent radius")
	fs.Float64Var(&c.InfectionRate, "infection-rate", c.InfectionRate, "transmission probability per contact per tick")
	fs.Float64Var(&c.FatalityRate, "fatality-rate", c.FatalityRate, "probability an infection is fatal")
	fs.IntVar(&c.RecoveryTicks, "recovery-ticks", c.RecoveryTicks, "mean infection length in ticks")
	fs.IntVar(&c.RecoveryJitterTicks, "recovery-jitter", c.RecoveryJitterTicks, "infection length jitter in ticks")
	fs.IntVar(&c.TicksPerSecond, "tps", c.TicksPerSecond, "ticks per second in real time")
	fs.Uint64Var(&c.Seed, "seed", c.Seed, "random seed")
	fs.BoolVar(&c.FreezeDead, "freeze-dead", c.FreezeDead, "stop moving dead agents")
	fs.BoolVar(&c.CheckInvariants, "check-invariants", c.CheckInvariants, "verify the population after every tick")
	fs.Func("index", "contact index: bruteforce or rtree (default "+string(c.Index)+")", func(s string) error {
		c.Index = IndexKind(s)
		return nil
	})
}

// Load resolves the configuration of a command: the preset named by
// PANDEMIC_PRESET, then PANDEMIC_* variables, then command-line flags.
func Load(fs *flag.FlagSet, args []string) (*Config, error) {
	return load(fs, args, os.LookupEnv)
}

func load(fs *flag.FlagSet, args []string, lookup func(string) (string, bool)) (*Config, error) {
	name, _ := lookup(EnvPrefix + "PRESET")
	base, ok := Preset(name)
	if !ok {
		return nil, fmt.Errorf("failed to load config: unknown preset %q", name)
	}
	c, err := fromLookup(base, lookup)
	if err != nil {
		return nil, err
	}
	c.BindFlags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("failed to parse flags: %w", err)
	}
	refitDeadZone(c, base)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return c, nil
}

// refitDeadZone keeps the preset's dead zone in the top-right corner when the
// arena width was overridden.
func refitDeadZone(c, base *Config) {
	if c.Width == base.Width || c.DeadZone != base.DeadZone || base.DeadZone.Empty() {
		return
	}
	const margin, caption = 20, 50
	c.DeadZone = DeadBox(c.Width, base.DeadZone.Size.X+2*margin, base.DeadZone.Size.Y+caption+margin)
}
