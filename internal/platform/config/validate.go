package config

import (
	"fmt"
	"math"
	"strings"
)

// FieldError describes one invalid configuration value.
type FieldError struct {
	Field  string
	Value  interface{}
	Reason string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s=%v: %s", e.Field, e.Value, e.Reason)
}

// ValidationError lists every invalid field of a Config.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Error()
	}
	return "invalid configuration: " + strings.Join(parts, "; ")
}

// Has reports whether the named field failed validation.
func (e *ValidationError) Has(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

// Validate fails fast on values outside their valid ranges. Nothing is
// clamped; the returned error is a *ValidationError.
func (c *Config) Validate() error {
	v := &ValidationError{}
	bad := func(field string, value interface{}, reason string) {
		v.Fields = append(v.Fields, FieldError{Field: field, Value: value, Reason: reason})
	}

	// Comparisons with NaN are always false, so non-finite values are
	// reported first and skip their range checks.
	nonFinite := map[string]bool{}
	for _, f := range []struct {
		field string
		value float64
	}{
		{"width", c.Width},
		{"height", c.Height},
		{"agent_radius", c.AgentRadius},
		{"max_speed", c.MaxSpeed},
		{"infection_radius", c.InfectionRadius},
		{"infection_rate", c.InfectionRate},
		{"fatality_rate", c.FatalityRate},
		{"spawn_region", c.SpawnRegion.Min.X},
		{"spawn_region", c.SpawnRegion.Min.Y},
		{"spawn_region", c.SpawnRegion.Size.X},
		{"spawn_region", c.SpawnRegion.Size.Y},
		{"dead_zone", c.DeadZone.Min.X},
		{"dead_zone", c.DeadZone.Min.Y},
		{"dead_zone", c.DeadZone.Size.X},
		{"dead_zone", c.DeadZone.Size.Y},
	} {
		if !isFinite(f.value) && !nonFinite[f.field] {
			// Stored as text: encoding/json cannot marshal NaN or Inf.
			bad(f.field, fmt.Sprint(f.value), "must be finite")
			nonFinite[f.field] = true
		}
	}
	finite := func(field string) bool { return !nonFinite[field] }

	if finite("width") && c.Width <= 0 {
		bad("width", c.Width, "must be positive")
	}
	if finite("height") && c.Height <= 0 {
		bad("height", c.Height, "must be positive")
	}
	if finite("agent_radius") && c.AgentRadius < 0 {
		bad("agent_radius", c.AgentRadius, "must not be negative")
	}
	if c.Population < 0 {
		bad("population", c.Population, "must not be negative")
	}
	if c.InitialInfected < 0 {
		bad("initial_infected", c.InitialInfected, "must not be negative")
	}
	if c.InitialInfected > c.Population {
		bad("initial_infected", c.InitialInfected, fmt.Sprintf("exceeds population %d", c.Population))
	}
	if finite("max_speed") && c.MaxSpeed <= 0 {
		bad("max_speed", c.MaxSpeed, "must be positive")
	}
	if finite("infection_radius") && c.InfectionRadius < 0 {
		bad("infection_radius", c.InfectionRadius, "must not be negative")
	}
	if finite("infection_rate") && !isProbability(c.InfectionRate) {
		bad("infection_rate", c.InfectionRate, "must be within [0,1]")
	}
	if finite("fatality_rate") && !isProbability(c.FatalityRate) {
		bad("fatality_rate", c.FatalityRate, "must be within [0,1]")
	}
	if c.RecoveryJitterTicks < 0 {
		bad("recovery_jitter_ticks", c.RecoveryJitterTicks, "must not be negative")
	}
	if c.RecoveryTicks-c.RecoveryJitterTicks < 1 {
		bad("recovery_ticks", c.RecoveryTicks, fmt.Sprintf("minus jitter %d must leave at least one tick", c.RecoveryJitterTicks))
	}
	if c.TicksPerSecond <= 0 {
		bad("ticks_per_second", c.TicksPerSecond, "must be positive")
	}
	if c.Index != IndexBruteForce && c.Index != IndexRTree {
		bad("index", c.Index, "must be bruteforce or rtree")
	}

	geometry := finite("width") && finite("height") && finite("agent_radius") &&
		finite("spawn_region") && finite("dead_zone")
	if geometry && c.Width > 0 && c.Height > 0 {
		spawn := c.Spawn()
		if !c.Arena().ContainsRect(spawn) {
			bad("spawn_region", spawn, "must lie inside the arena")
		}
		if spawn.Inset(c.AgentRadius).Empty() {
			bad("spawn_region", spawn, "too small for the agent radius")
		}
		if !c.DeadZone.Empty() && !c.Arena().ContainsRect(c.DeadZone) {
			bad("dead_zone", c.DeadZone, "must lie inside the arena")
		}
	}

	if len(v.Fields) > 0 {
		return v
	}
	return nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func isProbability(p float64) bool {
	return p >= 0 && p <= 1
}
