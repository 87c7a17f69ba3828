package main

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ConfigFileName is the name of the CLI configuration file inside the store
// directory's parent (~/.pilvault/config.yaml by default).
const ConfigFileName = "config.yaml"

// Config holds the CLI configuration.
type Config struct {
	// StorePath overrides the default store directory.
	StorePath string `yaml:"store_path"`

	// Hardened selects AES-256-GCM sealing and Ed25519 key derivation for
	// wallets instead of the documented lightweight defaults. All commands
	// must run with the same setting the store was created with.
	Hardened bool `yaml:"hardened"`
}

// loadConfig reads the configuration file if present. A missing file yields
// the zero config; a malformed one is an error, since silently ignoring it
// could flip the hardened setting.
func loadConfig(storePath string) (*Config, error) {
	cfgPath := filepath.Join(storePath, ConfigFileName)
	data, err := os.ReadFile(cfgPath)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", cfgPath, err)
	}
	return &cfg, nil
}

// defaultStorePath resolves the store directory: $PILVAULT_HOME if set,
// otherwise ~/.pilvault.
func defaultStorePath() (string, error) {
	if env := os.Getenv("PILVAULT_HOME"); env != "" {
		return env, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, ".pilvault"), nil
}
