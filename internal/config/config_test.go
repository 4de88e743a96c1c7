package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 0.9, cfg.Render.ZoomMin)
	assert.Equal(t, 2.0, cfg.Render.ZoomMax)
	assert.Equal(t, 60, cfg.Render.FontScaleMin)
	assert.Equal(t, 200, cfg.Render.FontScaleMax)
	assert.Equal(t, 3, cfg.Text.NativeRunThreshold)
	assert.Equal(t, 500, cfg.Search.MaxHits)
	assert.Equal(t, 300*time.Millisecond, cfg.Progress.DebounceInterval)

	require.NoError(t, cfg.Validate())
}

func TestConfigValidate_LogLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = "chatty"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log level")
}

func TestConfigValidate_ZoomBounds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Render.ZoomMin = 2.5
	cfg.Render.ZoomMax = 1.0
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Render.ZoomMin = 0
	require.Error(t, cfg.Validate())
}

func TestConfigValidate_FontScaleBounds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Render.FontScaleMin = 0
	require.Error(t, cfg.Validate())

	// The stricter bound observed on one product path is pure configuration.
	cfg = DefaultConfig()
	cfg.Render.FontScaleMin = 80
	cfg.Render.FontScaleMax = 200
	require.NoError(t, cfg.Validate())
}

func TestConfigValidate_OCRLanguages(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Text.OCRLanguages = nil
	require.Error(t, cfg.Validate())

	cfg.Text.OCREnabled = false
	require.NoError(t, cfg.Validate())
}

func TestConfigValidate_Search(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Search.MaxHits = 0
	require.Error(t, cfg.Validate())
}

func TestConfigValidate_Server(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Port = 0
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Server.ReadTimeout = 0
	require.Error(t, cfg.Validate())
}

func TestClampZoom(t *testing.T) {
	r := DefaultRenderConfig()

	assert.Equal(t, 0.9, r.ClampZoom(0.1))
	assert.Equal(t, 2.0, r.ClampZoom(5.0))
	assert.Equal(t, 1.25, r.ClampZoom(1.25))
}

func TestClampFontScale(t *testing.T) {
	r := DefaultRenderConfig()

	assert.Equal(t, 60, r.ClampFontScale(10))
	assert.Equal(t, 200, r.ClampFontScale(400))
	assert.Equal(t, 120, r.ClampFontScale(120))

	r.FontScaleMin = 80
	assert.Equal(t, 80, r.ClampFontScale(60))
}

func TestCachePath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = "/var/lib/leafmark"
	assert.Equal(t, "/var/lib/leafmark/ocr-cache.db", cfg.CachePath())

	cfg.Text.CachePath = "/tmp/custom.db"
	assert.Equal(t, "/tmp/custom.db", cfg.CachePath())
}
