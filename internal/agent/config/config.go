// Package config loads the agent configuration from a YAML file with
// environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds the agent configuration.
type Config struct {
	// ServerURL is the anchord base URL. Required.
	ServerURL string `yaml:"server_url"`
	// Listen is the control API address. Defaults to localhost only.
	Listen string `yaml:"listen"`
	// DataDir holds the device database and rule file.
	DataDir string `yaml:"data_dir"`
	// RulesPath is where the rule sink writes the active rule set.
	// Defaults to <data_dir>/rules.json.
	RulesPath string `yaml:"rules_path"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// Load reads the config file at path (missing file is not an error:
// defaults plus env apply), applies ANCHOR_* environment overrides,
// and fills defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// Fall through to env and defaults.
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnv(cfg)

	if cfg.ServerURL == "" {
		return nil, fmt.Errorf("server_url is required (config file or ANCHOR_SERVER_URL)")
	}
	if cfg.Listen == "" {
		cfg.Listen = "127.0.0.1:7617"
	}
	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".anchor")
	}
	if cfg.RulesPath == "" {
		cfg.RulesPath = filepath.Join(cfg.DataDir, "rules.json")
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	return cfg, nil
}

// DBPath returns the device database location.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "agent.db")
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("ANCHOR_SERVER_URL"); v != "" {
		cfg.ServerURL = v
	}
	if v := os.Getenv("ANCHOR_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("ANCHOR_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("ANCHOR_RULES_PATH"); v != "" {
		cfg.RulesPath = v
	}
	if v := os.Getenv("ANCHOR_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}
