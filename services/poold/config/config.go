package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := value.Value
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Config captures runtime configuration for poold.
type Config struct {
	ListenAddress string        `yaml:"listen"`
	DatabasePath  string        `yaml:"database"`
	StatePath     string        `yaml:"state"`
	GenesisPath   string        `yaml:"genesis"`
	EthEndpoint   string        `yaml:"eth_endpoint"`
	Refresh       RefreshConfig `yaml:"refresh"`
}

// RefreshConfig tunes the collateral price refresh loop.
type RefreshConfig struct {
	Interval Duration `yaml:"interval"`
	Timeout  Duration `yaml:"timeout"`
}

// Load reads configuration from the supplied path.
func Load(path string) (Config, error) {
	cfg := Config{}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	dec := yaml.NewDecoder(file)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	applyDefaults(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":7080"
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = "/var/data/poold.sqlite"
	}
	if cfg.StatePath == "" {
		cfg.StatePath = "/var/data/poold-state"
	}
	if cfg.Refresh.Interval.Duration == 0 {
		cfg.Refresh.Interval.Duration = 30 * time.Second
	}
	if cfg.Refresh.Timeout.Duration == 0 {
		cfg.Refresh.Timeout.Duration = 10 * time.Second
	}
}

func validate(cfg Config) error {
	if strings.TrimSpace(cfg.GenesisPath) == "" {
		return fmt.Errorf("genesis path must be configured")
	}
	if strings.TrimSpace(cfg.EthEndpoint) == "" {
		return fmt.Errorf("eth endpoint must be configured")
	}
	if cfg.Refresh.Timeout.Duration > cfg.Refresh.Interval.Duration {
		return fmt.Errorf("refresh timeout exceeds interval")
	}
	return nil
}
