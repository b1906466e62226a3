package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/fleetsim/core/metrics"
	"github.com/kilianp07/fleetsim/core/simulation"
	"github.com/kilianp07/fleetsim/infra/journal"
	"github.com/kilianp07/fleetsim/infra/mqtt"
)

type Config struct {
	// Scenario is the YAML scenario run by default.
	Scenario   string             `json:"scenario"`
	Simulation simulation.Options `json:"simulation"`
	Metrics    metrics.Config     `json:"metrics"`
	MQTT       MQTTConfig         `json:"mqtt"`
	API        APIConfig          `json:"api"`
	Logging    LoggingConfig      `json:"logging"`
	Pacing     PacingConfig       `json:"pacing"`
	Journal    journal.Config     `json:"journal"`
}

// MQTTConfig enables event forwarding to a broker.
type MQTTConfig struct {
	Enabled     bool `json:"enabled"`
	mqtt.Config `json:",squash"`
}

// APIConfig configures the HTTP API. An empty address disables it.
type APIConfig struct {
	Addr  string `json:"addr"`
	Token string `json:"token"`
	// Linger keeps the API up after the last tick until interrupted.
	Linger bool `json:"linger"`
}

// PacingConfig slows the run down to wall-clock time.
type PacingConfig struct {
	TickIntervalMS int `json:"tick_interval_ms"`
}

// Interval returns the wait between ticks, zero for a free-running clock.
func (p PacingConfig) Interval() time.Duration {
	return time.Duration(p.TickIntervalMS) * time.Millisecond
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("K_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	cfg := Default()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with every section defaulted.
func Default() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults fills unset fields of every section.
func (c *Config) SetDefaults() {
	c.Simulation.SetDefaults()
	c.Logging.SetDefaults()
	if c.MQTT.Enabled {
		c.MQTT.SetDefaults()
	}
}

// Validate checks every section.
func (c *Config) Validate() error {
	c.SetDefaults()
	if err := c.Simulation.Validate(); err != nil {
		return err
	}
	if err := c.Logging.Validate(); err != nil {
		return err
	}
	if c.MQTT.Enabled {
		if err := c.MQTT.Config.Validate(); err != nil {
			return err
		}
	}
	if err := c.Journal.Validate(); err != nil {
		return err
	}
	if c.Pacing.TickIntervalMS < 0 {
		return fmt.Errorf("pacing: negative tick interval")
	}
	return nil
}
