package config

// Config is the top-level ktx settings structure, loaded from
// ~/.config/ktx/config.yaml. Every field is optional; missing values
// fall back to the compiled defaults.
type Config struct {
	Probe     ProbeSettings     `yaml:"probe"`
	Discovery DiscoverySettings `yaml:"discovery"`
	Log       LogSettings       `yaml:"log"`
}

// ProbeSettings tunes the health prober.
type ProbeSettings struct {
	// TimeoutSeconds bounds each individual context probe.
	TimeoutSeconds int `yaml:"timeoutSeconds,omitempty"`
	// Concurrency bounds how many probes run in parallel.
	Concurrency int `yaml:"concurrency,omitempty"`
}

// DiscoverySettings selects which cloud providers discovery offers.
// An empty list means every provider whose CLI or credentials are
// present on this machine.
type DiscoverySettings struct {
	Providers []string `yaml:"providers,omitempty"`
}

// LogSettings controls log verbosity.
type LogSettings struct {
	Level string `yaml:"level,omitempty"` // debug, info, warn, error
}
