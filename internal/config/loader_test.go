package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	original := osUserHomeDir
	osUserHomeDir = func() (string, error) { return home, nil }
	t.Cleanup(func() { osUserHomeDir = original })
	return home
}

func writeUserConfig(t *testing.T, home, content string) {
	t.Helper()
	dir := filepath.Join(home, userConfigDir)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, configFileName), []byte(content), 0o644))
}

func TestLoadDefaultsWhenNoFile(t *testing.T) {
	withHome(t)

	config, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), config)
	assert.Equal(t, 5, config.Probe.TimeoutSeconds)
	assert.Equal(t, 8, config.Probe.Concurrency)
	assert.Equal(t, "info", config.Log.Level)
}

func TestLoadOverlaysUserFile(t *testing.T) {
	home := withHome(t)
	writeUserConfig(t, home, `
probe:
  timeoutSeconds: 10
discovery:
  providers: [gke, aks]
log:
  level: debug
`)

	config, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 10, config.Probe.TimeoutSeconds)
	// Unset fields keep their defaults.
	assert.Equal(t, 8, config.Probe.Concurrency)
	assert.Equal(t, []string{"gke", "aks"}, config.Discovery.Providers)
	assert.Equal(t, "debug", config.Log.Level)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	home := withHome(t)
	writeUserConfig(t, home, "probe: [not: a: mapping")

	_, err := Load()
	assert.Error(t, err)
}
