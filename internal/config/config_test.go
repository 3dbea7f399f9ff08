package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yakkun/terrain-grid-gen/internal/elevation"
	"github.com/yakkun/terrain-grid-gen/internal/geo"
)

func TestLoadDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, "8080", c.Server.Port)
	require.Equal(t, 100, c.Output.Spacing)
	require.Less(t, c.Generate.PollTimeout, c.Server.WriteTimeout)

	ds, err := c.Dataset()
	require.NoError(t, err)
	require.Equal(t, elevation.SRTM3, ds)
	p, err := c.Profile()
	require.NoError(t, err)
	require.Equal(t, geo.V41, p)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "9000"
  retry_after: 2s
source:
  dataset: SRTM1
output:
  spacing: 30
  profile: legacy
generate:
  poll_interval: 50ms
`), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "9000", c.Server.Port)
	require.Equal(t, 2*time.Second, c.Server.RetryAfter)
	require.Equal(t, 30, c.Output.Spacing)
	require.Equal(t, 50*time.Millisecond, c.Generate.PollInterval)
	// Untouched keys keep their defaults.
	require.Equal(t, 30*time.Second, c.Server.ShutdownTimeout)

	ds, err := c.Dataset()
	require.NoError(t, err)
	require.Equal(t, elevation.SRTM1, ds)
	p, err := c.Profile()
	require.NoError(t, err)
	require.Equal(t, geo.Legacy, p)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "7070")
	t.Setenv("TERRAIN_OUTPUT_DIR", "/tmp/tiles")
	t.Setenv("TERRAIN_SPACING", "200")

	c, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "7070", c.Server.Port)
	require.Equal(t, "/tmp/tiles", c.Output.Dir)
	require.Equal(t, 200, c.Output.Spacing)

	t.Setenv("TERRAIN_SPACING", "wide")
	_, err = Load("")
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"dataset", func(c *Config) { c.Source.Dataset = "ASTER" }},
		{"profile", func(c *Config) { c.Output.Profile = "3.9" }},
		{"spacing", func(c *Config) { c.Output.Spacing = 0 }},
		{"max cells", func(c *Config) { c.Source.MaxCells = 0 }},
		{"concurrency", func(c *Config) { c.Generate.Concurrency = 0 }},
		{"poll interval", func(c *Config) { c.Generate.PollInterval = 0 }},
		{"log level", func(c *Config) { c.Log.Level = "loud" }},
		{"poll past write timeout", func(c *Config) { c.Generate.PollTimeout = c.Server.WriteTimeout }},
		{"unbounded poll", func(c *Config) { c.Generate.PollTimeout = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			require.NoError(t, c.Validate())
			tt.mutate(c)
			require.Error(t, c.Validate())
		})
	}
}

func TestLogger(t *testing.T) {
	c := Default()
	c.Log.Level = "debug"
	c.Log.Development = true
	l, err := c.Logger()
	require.NoError(t, err)
	require.True(t, l.Core().Enabled(-1))
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [port"), 0o644))
	_, err := Load(path)
	require.Error(t, err)
}
