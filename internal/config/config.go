// Package config loads the manager's YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"
)

// Config describes one pass: where certificates and zones live, which
// endpoints are managed, and how the external collaborators are invoked.
type Config struct {
	LiveDir          string      `yaml:"live_dir"`
	ServingDir       string      `yaml:"serving_dir"`
	ZoneDir          string      `yaml:"zone_dir"`
	ZoneFile         string      `yaml:"zone_file"` // pattern, "{domain}" replaced
	Ports            []int       `yaml:"ports"`
	LockFile         string      `yaml:"lock_file"`
	Concurrency      int         `yaml:"concurrency"`
	EnumerateCommand string      `yaml:"enumerate_command"`
	Hooks            HooksConfig `yaml:"hooks"`
}

// HooksConfig selects the hook implementation and its settings.
type HooksConfig struct {
	Provider string            `yaml:"provider"`
	Settings map[string]string `yaml:"settings"`
}

// Load reads the configuration from the path specified by the
// DANE_CONFIG_PATH environment variable, defaulting to
// "configs/dane-manager.yaml".
func Load() (*Config, error) {
	path := os.Getenv("DANE_CONFIG_PATH")
	if path == "" {
		path = "configs/dane-manager.yaml"
	}
	return LoadFromPath(path)
}

// LoadFromPath reads the configuration from the given file path.
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if cfg.ZoneFile == "" {
		cfg.ZoneFile = "{domain}.zone"
	}
	if len(cfg.Ports) == 0 {
		cfg.Ports = []int{443}
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.LockFile == "" {
		cfg.LockFile = "/run/yk-dane-manager.lock"
	}
	if cfg.Hooks.Provider == "" {
		cfg.Hooks.Provider = "shell"
	}

	for _, req := range []struct{ name, value string }{
		{"live_dir", cfg.LiveDir},
		{"serving_dir", cfg.ServingDir},
		{"zone_dir", cfg.ZoneDir},
		{"enumerate_command", cfg.EnumerateCommand},
	} {
		if req.value == "" {
			return nil, fmt.Errorf("config: missing required field %q", req.name)
		}
	}

	// Expand ${ENV_VAR} references in hook setting values.
	for k, v := range cfg.Hooks.Settings {
		cfg.Hooks.Settings[k] = os.ExpandEnv(v)
	}

	return &cfg, nil
}

// ZonePath returns the zone file path for a domain, applying the configured
// {domain} pattern.
func (c *Config) ZonePath(domain string) string {
	return filepath.Join(c.ZoneDir, strings.ReplaceAll(c.ZoneFile, "{domain}", domain))
}

// EnumerateArgv splits the enumerate command into argv form.
func (c *Config) EnumerateArgv() []string {
	return strings.Fields(c.EnumerateCommand)
}
