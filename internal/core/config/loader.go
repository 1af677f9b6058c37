package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/sidereal-labs/opskit/internal/actor"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults if necessary
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}

	defaults := actor.DefaultConfig()
	for name, ac := range cfg.Actors {
		if ac.CheckInterval == 0 {
			ac.CheckInterval = defaults.CheckInterval
		}
		if ac.RestartAfter == 0 {
			ac.RestartAfter = defaults.RestartAfter
		}
		if ac.RestartMode == "" {
			ac.RestartMode = defaults.RestartMode
		}
		cfg.Actors[name] = ac
	}

	return &cfg, nil
}
