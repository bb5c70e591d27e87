package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.False(t, cfg.NATS.Enabled)
	assert.Equal(t, "MATCH_EVENTS", cfg.NATS.StreamName)
	assert.Equal(t, []string{"tictactoe"}, cfg.Games.Enabled)

	// Zero match timings defer to the engine's own defaults.
	settings := cfg.Match.Settings()
	assert.Zero(t, settings.InitialClock)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "9090"
nats:
  enabled: true
  url: nats://broker:4222
match:
  initial_clock: 45s
  reconnection_window: 2m
  seat_order: random
games:
  enabled: [tictactoe]
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.True(t, cfg.NATS.Enabled)
	assert.Equal(t, "nats://broker:4222", cfg.NATS.URL)
	assert.Equal(t, 45*time.Second, cfg.Match.InitialClock.Std())
	assert.Equal(t, 2*time.Minute, cfg.Match.ReconnectionWindow.Std())
	assert.Equal(t, "random", cfg.Match.SeatOrder)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("PORT", "7000")
	t.Setenv("MATCH_INITIAL_CLOCK", "90s")
	t.Setenv("NATS_ENABLED", "true")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "7000", cfg.Server.Port)
	assert.Equal(t, 90*time.Second, cfg.Match.InitialClock.Std())
	assert.True(t, cfg.NATS.Enabled)
}
