// Package config loads ktx settings by layering an optional user
// config file over compiled defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// For mocking in tests
var osUserHomeDir = os.UserHomeDir

const (
	userConfigDir  = ".config/ktx"
	configFileName = "config.yaml"
)

// Default returns the compiled default settings.
func Default() Config {
	return Config{
		Probe: ProbeSettings{
			TimeoutSeconds: 5,
			Concurrency:    8,
		},
		Log: LogSettings{Level: "info"},
	}
}

// Load returns the effective configuration: defaults overlaid with the
// user config file when one exists. A missing file is not an error.
func Load() (Config, error) {
	config := Default()

	path, err := userConfigPath()
	if err != nil {
		// No resolvable home dir; run on defaults.
		return config, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return Config{}, fmt.Errorf("failed to read config %q: %w", path, err)
	}

	var overlay Config
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return Config{}, fmt.Errorf("failed to parse config %q: %w", path, err)
	}
	return mergeConfigs(config, overlay), nil
}

func userConfigPath() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir, configFileName), nil
}

// mergeConfigs overlays 'overlay' onto 'base'; zero values in the
// overlay keep the base value.
func mergeConfigs(base, overlay Config) Config {
	merged := base
	if overlay.Probe.TimeoutSeconds > 0 {
		merged.Probe.TimeoutSeconds = overlay.Probe.TimeoutSeconds
	}
	if overlay.Probe.Concurrency > 0 {
		merged.Probe.Concurrency = overlay.Probe.Concurrency
	}
	if len(overlay.Discovery.Providers) > 0 {
		merged.Discovery.Providers = overlay.Discovery.Providers
	}
	if overlay.Log.Level != "" {
		merged.Log.Level = overlay.Log.Level
	}
	return merged
}
