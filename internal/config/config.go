package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/multierr"
)

// EnvPath names the environment variable consulted when no --config flag
// is given.
const EnvPath = "INTERSTELLARE_CONFIG"

// DefaultPath is read when neither the flag nor EnvPath is set. A missing
// file at the default path is not an error.
const DefaultPath = "config/server.toml"

type Config struct {
	Server     ServerConfig     `toml:"server"`
	Network    NetworkConfig    `toml:"network"`
	Simulation SimulationConfig `toml:"simulation"`
	Scenario   ScenarioConfig   `toml:"scenario"`
	Logging    LoggingConfig    `toml:"logging"`
}

type ServerConfig struct {
	Name      string `toml:"name"`
	StartTime int64  // set at boot, not from config
}

type NetworkConfig struct {
	BindAddress         string        `toml:"bind_address"`
	WorkerPoolSize      int           `toml:"worker_pool_size"`
	JobQueueSize        int           `toml:"job_queue_size"`        // connections waiting for a worker
	SubscriberQueueSize int           `toml:"subscriber_queue_size"` // events buffered per viewer
	ReadTimeout         time.Duration `toml:"read_timeout"`          // request head must arrive within
	WriteTimeout        time.Duration `toml:"write_timeout"`         // per response, per stream event
	KeepaliveInterval   time.Duration `toml:"keepalive_interval"`    // 0 = no keepalive comments
	MaxBodyBytes        int64         `toml:"max_body_bytes"`
	StaticDir           string        `toml:"static_dir"` // "" = no static files
}

type SimulationConfig struct {
	TargetTimePerStep   time.Duration `toml:"target_time_per_step"` // min interval between snapshots
	TimeScaling         float64       `toml:"time_scaling"`
	InteractionConstant float64       `toml:"interaction_constant"`
	StabilityThreshold  float64       `toml:"stability_threshold"` // m/s², above = removed
	TickInterval        time.Duration `toml:"tick_interval"`       // 0 = spin
	CommandQueueSize    int           `toml:"command_queue_size"`
	MaxCommandsPerTick  int           `toml:"max_commands_per_tick"` // 0 = drain everything
	Addressing          string        `toml:"addressing"`            // "index" or "id"
	Fanout              string        `toml:"fanout"`                // "broadcast" or "shared"
}

// ScenarioConfig selects the initial bodies. Both empty = built-in solar
// system.
type ScenarioConfig struct {
	File   string `toml:"file"`   // YAML body table
	Script string `toml:"script"` // Lua scenario
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
}

// Resolve picks the configuration path: flag, then EnvPath, then
// DefaultPath.
func Resolve(flag string) string {
	if flag != "" {
		return flag
	}
	if env := os.Getenv(EnvPath); env != "" {
		return env
	}
	return DefaultPath
}

// Load reads path over the defaults. A missing DefaultPath yields the
// defaults; any other read failure is an error.
func Load(path string) (*Config, error) {
	cfg := defaults()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && path == DefaultPath:
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	cfg.Server.StartTime = time.Now().Unix()
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var err error
	if c.Network.WorkerPoolSize <= 0 {
		err = multierr.Append(err, fmt.Errorf("network.worker_pool_size must be positive, got %d", c.Network.WorkerPoolSize))
	}
	if c.Network.JobQueueSize < 0 {
		err = multierr.Append(err, fmt.Errorf("network.job_queue_size must not be negative, got %d", c.Network.JobQueueSize))
	}
	if c.Network.SubscriberQueueSize <= 0 {
		err = multierr.Append(err, fmt.Errorf("network.subscriber_queue_size must be positive, got %d", c.Network.SubscriberQueueSize))
	}
	if c.Network.MaxBodyBytes <= 0 {
		err = multierr.Append(err, fmt.Errorf("network.max_body_bytes must be positive, got %d", c.Network.MaxBodyBytes))
	}
	if c.Simulation.CommandQueueSize <= 0 {
		err = multierr.Append(err, fmt.Errorf("simulation.command_queue_size must be positive, got %d", c.Simulation.CommandQueueSize))
	}
	if c.Simulation.TargetTimePerStep < 0 || c.Simulation.TickInterval < 0 {
		err = multierr.Append(err, errors.New("simulation durations must not be negative"))
	}
	if !(c.Simulation.TimeScaling >= 0) || !(c.Simulation.InteractionConstant >= 0) {
		err = multierr.Append(err, errors.New("simulation.time_scaling and interaction_constant must be non-negative numbers"))
	}
	if !(c.Simulation.StabilityThreshold > 0) {
		err = multierr.Append(err, fmt.Errorf("simulation.stability_threshold must be positive, got %g", c.Simulation.StabilityThreshold))
	}
	switch c.Simulation.Addressing {
	case "index", "id":
	default:
		err = multierr.Append(err, fmt.Errorf("simulation.addressing: unknown mode %q", c.Simulation.Addressing))
	}
	switch c.Simulation.Fanout {
	case "broadcast", "shared":
	default:
		err = multierr.Append(err, fmt.Errorf("simulation.fanout: unknown mode %q", c.Simulation.Fanout))
	}
	if c.Scenario.File != "" && c.Scenario.Script != "" {
		err = multierr.Append(err, errors.New("scenario.file and scenario.script are exclusive"))
	}
	return err
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Name: "interstellare",
		},
		Network: NetworkConfig{
			BindAddress:         "0.0.0.0:7878",
			WorkerPoolSize:      24,
			JobQueueSize:        64,
			SubscriberQueueSize: 64,
			ReadTimeout:         10 * time.Second,
			WriteTimeout:        10 * time.Second,
			KeepaliveInterval:   15 * time.Second,
			MaxBodyBytes:        64 << 10,
			StaticDir:           "",
		},
		Simulation: SimulationConfig{
			TargetTimePerStep:   10 * time.Millisecond,
			TimeScaling:         300000,
			InteractionConstant: 6.67430e-11,
			StabilityThreshold:  1e6,
			TickInterval:        time.Millisecond,
			CommandQueueSize:    256,
			MaxCommandsPerTick:  64,
			Addressing:          "index",
			Fanout:              "broadcast",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Default returns the built-in configuration.
func Default() *Config { return defaults() }
