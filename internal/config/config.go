// Package config loads server configuration from an optional YAML file
// with environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "30s" parse.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	dur, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", value.Value, err)
	}
	*d = Duration(dur)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	Addr    string        `yaml:"addr"`
	Logging LoggingConfig `yaml:"logging"`
	Engine  EngineConfig  `yaml:"engine"`
	Battle  BattleConfig  `yaml:"battle"`
	Room    RoomConfig    `yaml:"room"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type EngineConfig struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

type BattleConfig struct {
	PreviewTimeout Duration `yaml:"preview_timeout"`
	AdvisorURL     string   `yaml:"advisor_url"`
	AdvisorBudget  Duration `yaml:"advisor_budget"`
}

type RoomConfig struct {
	UnclaimedTimeout Duration `yaml:"unclaimed_timeout"`
	WaitingTTL       Duration `yaml:"waiting_ttl"`
	SweepInterval    Duration `yaml:"sweep_interval"`
}

// Default returns the configuration used when no file or overrides are
// present.
func Default() Config {
	return Config{
		Addr:    ":8080",
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Engine:  EngineConfig{Command: "./pokemon-showdown", Args: []string{"simulate-battle"}},
		Battle: BattleConfig{
			PreviewTimeout: Duration(30 * time.Second),
			AdvisorBudget:  Duration(2 * time.Second),
		},
		Room: RoomConfig{
			UnclaimedTimeout: Duration(10 * time.Minute),
			WaitingTTL:       Duration(30 * time.Minute),
			SweepInterval:    Duration(time.Minute),
		},
	}
}

// Load reads path (when it exists) over the defaults, then applies
// environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parsing config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("ENGINE_COMMAND"); v != "" {
		cfg.Engine.Command = v
	}
	if v := os.Getenv("ADVISOR_URL"); v != "" {
		cfg.Battle.AdvisorURL = v
	}
	if v := os.Getenv("PREVIEW_TIMEOUT_SEC"); v != "" {
		if sec, err := strconv.Atoi(v); err == nil && sec > 0 {
			cfg.Battle.PreviewTimeout = Duration(time.Duration(sec) * time.Second)
		}
	}
}
