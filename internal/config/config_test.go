package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whenmet/internal/config"
	"whenmet/internal/device"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.cue")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := config.Default()

	assert.Equal(t, "whenmet.db", cfg.Database)
	assert.Equal(t, device.AccuracyBalanced, cfg.AccuracyTier())
	assert.Equal(t, 10*time.Second, cfg.FixTimeoutDuration())
	assert.Equal(t, 0.01, cfg.MinSpan)
	assert.Equal(t, 60.0, cfg.FallbackRegion().LatitudeDelta)
}

func TestLoad_EmptyPathYieldsDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "nope.cue"))
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestLoad_OverridesMergeWithDefaults(t *testing.T) {
	path := writeConfig(t, `
database: "/tmp/contacts.db"
accuracy: "high"
fix_timeout: "3s"
fallback: latitude: 52.52
fallback: longitude: 13.405
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/contacts.db", cfg.Database)
	assert.Equal(t, device.AccuracyHigh, cfg.AccuracyTier())
	assert.Equal(t, 3*time.Second, cfg.FixTimeoutDuration())
	// Untouched fields keep their schema defaults.
	assert.Equal(t, 0.01, cfg.MinSpan)
	assert.Equal(t, 52.52, cfg.FallbackRegion().Latitude)
	assert.Equal(t, 60.0, cfg.FallbackRegion().LatitudeDelta)
}

func TestLoad_RejectsUnknownAccuracy(t *testing.T) {
	path := writeConfig(t, `accuracy: "ludicrous"`)

	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestLoad_RejectsOutOfRangeLatitude(t *testing.T) {
	path := writeConfig(t, `fallback: latitude: 123.0`)

	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestLoad_RejectsMalformedDuration(t *testing.T) {
	path := writeConfig(t, `fix_timeout: "soon"`)

	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestLoad_RejectsSyntaxError(t *testing.T) {
	path := writeConfig(t, `database: [unclosed`)

	_, err := config.Load(path)
	assert.Error(t, err)
}
