package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config represents the complete configuration for the reader application.
// It covers all commands (open, text, search, annotations, serve) and
// supports loading from configuration files, environment variables, and
// command-line flags.
type Config struct {
	// Global settings
	DataDir  string `mapstructure:"data_dir" yaml:"data_dir" json:"data_dir"`
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	// Rendering settings
	Render RenderConfig `mapstructure:"render" yaml:"render" json:"render"`

	// Text layer / OCR settings
	Text TextConfig `mapstructure:"text" yaml:"text" json:"text"`

	// Full-text search settings
	Search SearchConfig `mapstructure:"search" yaml:"search" json:"search"`

	// Reading-progress settings
	Progress ProgressConfig `mapstructure:"progress" yaml:"progress" json:"progress"`

	// Server configuration (for serve command)
	Server ServerConfig `mapstructure:"server" yaml:"server" json:"server"`
}

// RenderConfig contains page rasterization settings.
type RenderConfig struct {
	// ViewportWidth and ViewportHeight are the rendering surface dimensions
	// in pixels before zoom is applied.
	ViewportWidth  int `mapstructure:"viewport_width" yaml:"viewport_width" json:"viewport_width"`
	ViewportHeight int `mapstructure:"viewport_height" yaml:"viewport_height" json:"viewport_height"`

	// ZoomMin and ZoomMax clamp the user-requested PDF zoom factor.
	ZoomMin float64 `mapstructure:"zoom_min" yaml:"zoom_min" json:"zoom_min"`
	ZoomMax float64 `mapstructure:"zoom_max" yaml:"zoom_max" json:"zoom_max"`

	// FontScaleMin and FontScaleMax clamp the EPUB font scale (percent).
	// The observed product behavior disagrees between 60 and 80 for the
	// lower bound; the bound is configuration, not code. Product owners
	// have been asked which one is intended.
	FontScaleMin int `mapstructure:"font_scale_min" yaml:"font_scale_min" json:"font_scale_min"`
	FontScaleMax int `mapstructure:"font_scale_max" yaml:"font_scale_max" json:"font_scale_max"`
}

// TextConfig contains text layer resolution and OCR settings.
type TextConfig struct {
	// NativeRunThreshold is the minimum number of discrete native text runs
	// for a page to be considered text-backed. Pages below the threshold are
	// routed to OCR. This is a heuristic: a sparse but legitimate text page
	// may be OCR'd redundantly.
	NativeRunThreshold int `mapstructure:"native_run_threshold" yaml:"native_run_threshold" json:"native_run_threshold"`

	// OCREnabled toggles the OCR fallback entirely.
	OCREnabled bool `mapstructure:"ocr_enabled" yaml:"ocr_enabled" json:"ocr_enabled"`

	// OCRLanguages lists Tesseract language codes, e.g. ["eng", "deu"].
	OCRLanguages []string `mapstructure:"ocr_languages" yaml:"ocr_languages" json:"ocr_languages"`

	// CachePath is the SQLite file holding OCR results. Defaults to
	// <data_dir>/ocr-cache.db when empty.
	CachePath string `mapstructure:"cache_path" yaml:"cache_path" json:"cache_path"`
}

// SearchConfig contains full-text search settings.
type SearchConfig struct {
	// MaxHits caps the number of recorded matches per query to bound index
	// build cost on pathological documents.
	MaxHits int `mapstructure:"max_hits" yaml:"max_hits" json:"max_hits"`
}

// ProgressConfig contains reading-progress persistence settings.
type ProgressConfig struct {
	// DebounceInterval is the quiet period after the last page turn before
	// the position is written out.
	DebounceInterval time.Duration `mapstructure:"debounce_interval" yaml:"debounce_interval" json:"debounce_interval"`
}

// ServerConfig contains HTTP server settings for the serve command.
type ServerConfig struct {
	Host         string        `mapstructure:"host" yaml:"host" json:"host"`
	Port         int           `mapstructure:"port" yaml:"port" json:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout" json:"write_timeout"`
	MaxBodySize  int64         `mapstructure:"max_body_size" yaml:"max_body_size" json:"max_body_size"`
}

// DefaultConfig returns a configuration with all defaults applied.
func DefaultConfig() *Config {
	return &Config{
		DataDir:  defaultDataDir(),
		LogLevel: "info",
		Verbose:  false,
		Render:   DefaultRenderConfig(),
		Text:     DefaultTextConfig(),
		Search:   DefaultSearchConfig(),
		Progress: DefaultProgressConfig(),
		Server:   DefaultServerConfig(),
	}
}

// DefaultRenderConfig returns the default rendering configuration.
func DefaultRenderConfig() RenderConfig {
	return RenderConfig{
		ViewportWidth:  960,
		ViewportHeight: 1280,
		ZoomMin:        0.9,
		ZoomMax:        2.0,
		FontScaleMin:   60,
		FontScaleMax:   200,
	}
}

// DefaultTextConfig returns the default text layer configuration.
func DefaultTextConfig() TextConfig {
	return TextConfig{
		NativeRunThreshold: 3,
		OCREnabled:         true,
		OCRLanguages:       []string{"eng"},
	}
}

// DefaultSearchConfig returns the default search configuration.
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{MaxHits: 500}
}

// DefaultProgressConfig returns the default progress configuration.
func DefaultProgressConfig() ProgressConfig {
	return ProgressConfig{DebounceInterval: 300 * time.Millisecond}
}

// DefaultServerConfig returns the default server configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "localhost",
		Port:         8080,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		MaxBodySize:  100 << 20, // 100 MB uploads
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".leafmark"
	}
	return filepath.Join(home, ".leafmark")
}

// CachePath returns the effective OCR cache location.
func (c *Config) CachePath() string {
	if c.Text.CachePath != "" {
		return c.Text.CachePath
	}
	return filepath.Join(c.DataDir, "ocr-cache.db")
}

// Validate checks the configuration for invalid or inconsistent values.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q (expected debug, info, warn or error)", c.LogLevel)
	}
	if err := c.Render.Validate(); err != nil {
		return fmt.Errorf("render: %w", err)
	}
	if err := c.Text.Validate(); err != nil {
		return fmt.Errorf("text: %w", err)
	}
	if c.Search.MaxHits <= 0 {
		return fmt.Errorf("search: max_hits must be > 0, got %d", c.Search.MaxHits)
	}
	if c.Progress.DebounceInterval <= 0 {
		return fmt.Errorf("progress: debounce_interval must be > 0, got %s", c.Progress.DebounceInterval)
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

// Validate checks the rendering configuration.
func (r *RenderConfig) Validate() error {
	if r.ViewportWidth <= 0 || r.ViewportHeight <= 0 {
		return fmt.Errorf("viewport dimensions must be positive, got %dx%d", r.ViewportWidth, r.ViewportHeight)
	}
	if r.ZoomMin <= 0 || r.ZoomMax < r.ZoomMin {
		return fmt.Errorf("zoom bounds must satisfy 0 < min <= max, got [%g, %g]", r.ZoomMin, r.ZoomMax)
	}
	if r.FontScaleMin <= 0 || r.FontScaleMax < r.FontScaleMin {
		return fmt.Errorf("font scale bounds must satisfy 0 < min <= max, got [%d, %d]", r.FontScaleMin, r.FontScaleMax)
	}
	return nil
}

// Validate checks the text layer configuration.
func (t *TextConfig) Validate() error {
	if t.NativeRunThreshold < 0 {
		return fmt.Errorf("native_run_threshold must be >= 0, got %d", t.NativeRunThreshold)
	}
	if t.OCREnabled && len(t.OCRLanguages) == 0 {
		return fmt.Errorf("ocr_languages must not be empty when OCR is enabled")
	}
	return nil
}

// Validate checks the server configuration.
func (s *ServerConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be in [1, 65535], got %d", s.Port)
	}
	if s.ReadTimeout <= 0 || s.WriteTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	return nil
}

// ClampZoom clamps a requested zoom factor to the configured bounds.
func (r *RenderConfig) ClampZoom(zoom float64) float64 {
	if zoom < r.ZoomMin {
		return r.ZoomMin
	}
	if zoom > r.ZoomMax {
		return r.ZoomMax
	}
	return zoom
}

// ClampFontScale clamps a requested EPUB font scale (percent) to the
// configured bounds.
func (r *RenderConfig) ClampFontScale(scale int) int {
	if scale < r.FontScaleMin {
		return r.FontScaleMin
	}
	if scale > r.FontScaleMax {
		return r.FontScaleMax
	}
	return scale
}
