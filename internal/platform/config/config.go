// Package config holds the tunable parameters of a simulation run.
// Presets mirror the deployment profiles: default, stress test and low resource.
package config

import (
	"runtime"
	"time"

	"github.com/MRamiBalles/PandemicSim/internal/domain/agent"
)

// IndexKind selects the spatial strategy used by the transmission scan.
type IndexKind string

const (
	IndexBruteForce IndexKind = "bruteforce"
	IndexRTree      IndexKind = "rtree"
)

// Config holds every parameter the engine consumes.
type Config struct {
	// Arena
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	// SpawnRegion defaults to the whole arena when empty.
	SpawnRegion agent.Rect `json:"spawn_region"`
	// DeadZone receives dead agents when non-empty.
	DeadZone   agent.Rect `json:"dead_zone"`
	FreezeDead bool       `json:"freeze_dead"`

	// Agents
	AgentRadius     float64 `json:"agent_radius"`
	Population      int     `json:"population"`
	InitialInfected int     `json:"initial_infected"`
	MaxSpeed        float64 `json:"max_speed"`

	// Infection
	InfectionRadius     float64 `json:"infection_radius"`
	InfectionRate       float64 `json:"infection_rate"`
	FatalityRate        float64 `json:"fatality_rate"`
	RecoveryTicks       int     `json:"recovery_ticks"`
	RecoveryJitterTicks int     `json:"recovery_jitter_ticks"`

	// Clock
	TicksPerSecond int `json:"ticks_per_second"`

	// Engine
	Seed            uint64    `json:"seed"`
	Index           IndexKind `json:"index"`
	CheckInvariants bool      `json:"check_invariants"`

	// Channel buffers and worker sizing for the server.
	EventChannelBuffer int `json:"event_channel_buffer"`
	ClientSendBuffer   int `json:"client_send_buffer"`
	RecorderBatchSize  int `json:"recorder_batch_size"`
	MaxClients         int `json:"max_clients"`
}

// Durations in the original tuning are expressed in seconds at 50 ticks/s.
const (
	defaultTPS            = 50
	defaultRecoverySecs   = 4
	defaultRecoveryJitter = 2
)

// DefaultConfig returns the reference tuning: 800 agents in a 1440x900 arena
// with a single seed case.
func DefaultConfig() *Config {
	c := &Config{
		Width:      1440,
		Height:     900,
		FreezeDead: true,

		AgentRadius:     5,
		Population:      800,
		InitialInfected: 1,
		MaxSpeed:        3,

		InfectionRadius:     2.5,
		InfectionRate:       0.25,
		FatalityRate:        0.05,
		RecoveryTicks:       defaultRecoverySecs * defaultTPS,
		RecoveryJitterTicks: defaultRecoveryJitter * defaultTPS,

		TicksPerSecond: defaultTPS,

		Seed:  1,
		Index: IndexBruteForce,

		EventChannelBuffer: 1024,
		ClientSendBuffer:   64,
		RecorderBatchSize:  256,
		MaxClients:         200,
	}
	c.DeadZone = DeadBox(c.Width, 200, 170)
	return c
}

// StressTestConfig returns a crowded arena using the R-tree contact index.
func StressTestConfig() *Config {
	numCPU := runtime.NumCPU()

	c := DefaultConfig()
	c.Width = 2560
	c.Height = 1440
	c.DeadZone = DeadBox(c.Width, 320, 240)
	c.Population = 5000
	c.InitialInfected = 5
	c.Index = IndexRTree
	c.EventChannelBuffer = 4096
	c.ClientSendBuffer = 128
	c.RecorderBatchSize = 64 * numCPU
	c.MaxClients = 500
	return c
}

// LowResourceConfig returns a small run for development.
func LowResourceConfig() *Config {
	c := DefaultConfig()
	c.Width = 480
	c.Height = 320
	c.DeadZone = DeadBox(c.Width, 120, 120)
	c.Population = 100
	c.TicksPerSecond = 20
	c.RecoveryTicks = defaultRecoverySecs * c.TicksPerSecond
	c.RecoveryJitterTicks = defaultRecoveryJitter * c.TicksPerSecond
	c.EventChannelBuffer = 64
	c.ClientSendBuffer = 8
	c.RecorderBatchSize = 16
	c.MaxClients = 20
	return c
}

// Preset looks a preset up by name.
func Preset(name string) (*Config, bool) {
	switch name {
	case "", "default":
		return DefaultConfig(), true
	case "stress":
		return StressTestConfig(), true
	case "low":
		return LowResourceConfig(), true
	}
	return nil, false
}

// DeadBox places a w x h holding area in the top-right corner of an arena
// of the given width, leaving a margin for its caption.
func DeadBox(arenaWidth, w, h float64) agent.Rect {
	const margin = 20
	const caption = 50
	return agent.NewRect(arenaWidth-w+margin, caption, w-2*margin, h-caption-margin)
}

// Bounds is the arena size as a vector.
func (c *Config) Bounds() agent.Vec2 {
	return agent.Vec2{X: c.Width, Y: c.Height}
}

// Arena is the whole arena as a rectangle.
func (c *Config) Arena() agent.Rect {
	return agent.NewRect(0, 0, c.Width, c.Height)
}

// Spawn returns the effective spawn region.
func (c *Config) Spawn() agent.Rect {
	if c.SpawnRegion.Empty() {
		return c.Arena()
	}
	return c.SpawnRegion
}

// TickInterval is the real-time duration of one tick.
func (c *Config) TickInterval() time.Duration {
	if c.TicksPerSecond <= 0 {
		return 0
	}
	return time.Second / time.Duration(c.TicksPerSecond)
}

// FactoryParams projects the agent generation parameters.
func (c *Config) FactoryParams() agent.FactoryParams {
	return agent.FactoryParams{
		Radius:              c.AgentRadius,
		MaxSpeed:            c.MaxSpeed,
		FatalityRate:        c.FatalityRate,
		RecoveryTicks:       c.RecoveryTicks,
		RecoveryJitterTicks: c.RecoveryJitterTicks,
	}
}

// Clone returns an independent copy.
func (c *Config) Clone() *Config {
	cp := *c
	return &cp
}
