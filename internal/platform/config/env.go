package config

import (
	"fmt"
	"os"
	"strconv"
)

// EnvPrefix namespaces every environment override.
const EnvPrefix = "PANDEMIC_"

// FromEnv overlays PANDEMIC_* environment variables onto base. Unset
// variables keep the base value; malformed ones are reported, never ignored.
func FromEnv(base *Config) (*Config, error) {
	return fromLookup(base, os.LookupEnv)
}

func fromLookup(base *Config, lookup func(string) (string, bool)) (*Config, error) {
	c := base.Clone()

	floats := map[string]*float64{
		"WIDTH":            &c.Width,
		"HEIGHT":           &c.Height,
		"AGENT_RADIUS":     &c.AgentRadius,
		"MAX_SPEED":        &c.MaxSpeed,
		"INFECTION_RADIUS": &c.InfectionRadius,
		"INFECTION_RATE":   &c.InfectionRate,
		"FATALITY_RATE":    &c.FatalityRate,
	}
	ints := map[string]*int{
		"POPULATION":            &c.Population,
		"INITIAL_INFECTED":      &c.InitialInfected,
		"RECOVERY_TICKS":        &c.RecoveryTicks,
		"RECOVERY_JITTER_TICKS": &c.RecoveryJitterTicks,
		"TICKS_PER_SECOND":      &c.TicksPerSecond,
		"MAX_CLIENTS":           &c.MaxClients,
	}

	for name, dst := range floats {
		raw, ok := lookup(EnvPrefix + name)
		if !ok {
			continue
		}
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s%s: %w", EnvPrefix, name, err)
		}
		if !isFinite(f) {
			return nil, fmt.Errorf("failed to parse %s%s: %q is not a finite number", EnvPrefix, name, raw)
		}
		*dst = f
	}
	for name, dst := range ints {
		raw, ok := lookup(EnvPrefix + name)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s%s: %w", EnvPrefix, name, err)
		}
		*dst = n
	}
	if raw, ok := lookup(EnvPrefix + "SEED"); ok {
		s, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %sSEED: %w", EnvPrefix, err)
		}
		c.Seed = s
	}
	if raw, ok := lookup(EnvPrefix + "INDEX"); ok {
		c.Index = IndexKind(raw)
	}
	if raw, ok := lookup(EnvPrefix + "CHECK_INVARIANTS"); ok {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %sCHECK_INVARIANTS: %w", EnvPrefix, err)
		}
		c.CheckInvariants = b
	}
	return c, nil
}
