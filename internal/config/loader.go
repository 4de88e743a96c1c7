package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the base name for configuration files (without extension).
	ConfigFileName = "reader"

	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "READER"
)

// Loader handles loading configuration from various sources.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a new configuration loader. It uses the global viper
// instance so that cobra flag bindings take effect.
func NewLoader() *Loader {
	return &Loader{v: viper.GetViper()}
}

// Load loads configuration from files, environment variables, and defaults.
func (l *Loader) Load() (*Config, error) {
	l.v.SetConfigName(ConfigFileName)
	l.v.SetConfigType("yaml")

	l.addConfigPaths()
	l.setupEnvironmentVariables()
	l.setDefaults()

	if err := l.v.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults and env vars apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return l.unmarshal()
}

// LoadWithFile loads configuration from a specific file path.
func (l *Loader) LoadWithFile(configFile string) (*Config, error) {
	if configFile == "" {
		return l.Load()
	}

	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configFile)
	}

	l.v.SetConfigFile(configFile)
	l.setupEnvironmentVariables()
	l.setDefaults()

	if err := l.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	return l.unmarshal()
}

func (l *Loader) unmarshal() (*Config, error) {
	var config Config
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &config, nil
}

// addConfigPaths registers the directories searched for reader.yaml.
func (l *Loader) addConfigPaths() {
	l.v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		l.v.AddConfigPath(home)
		l.v.AddConfigPath(filepath.Join(home, ".config", "leafmark"))
	}
	l.v.AddConfigPath("/etc/leafmark")
}

// setupEnvironmentVariables configures READER_* environment overrides,
// e.g. READER_SEARCH_MAX_HITS for search.max_hits.
func (l *Loader) setupEnvironmentVariables() {
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()
}

// setDefaults registers default values for all configuration keys.
func (l *Loader) setDefaults() {
	def := DefaultConfig()

	l.v.SetDefault("data_dir", def.DataDir)
	l.v.SetDefault("log_level", def.LogLevel)
	l.v.SetDefault("verbose", def.Verbose)

	l.v.SetDefault("render.viewport_width", def.Render.ViewportWidth)
	l.v.SetDefault("render.viewport_height", def.Render.ViewportHeight)
	l.v.SetDefault("render.zoom_min", def.Render.ZoomMin)
	l.v.SetDefault("render.zoom_max", def.Render.ZoomMax)
	l.v.SetDefault("render.font_scale_min", def.Render.FontScaleMin)
	l.v.SetDefault("render.font_scale_max", def.Render.FontScaleMax)

	l.v.SetDefault("text.native_run_threshold", def.Text.NativeRunThreshold)
	l.v.SetDefault("text.ocr_enabled", def.Text.OCREnabled)
	l.v.SetDefault("text.ocr_languages", def.Text.OCRLanguages)
	l.v.SetDefault("text.cache_path", def.Text.CachePath)

	l.v.SetDefault("search.max_hits", def.Search.MaxHits)

	l.v.SetDefault("progress.debounce_interval", def.Progress.DebounceInterval)

	l.v.SetDefault("server.host", def.Server.Host)
	l.v.SetDefault("server.port", def.Server.Port)
	l.v.SetDefault("server.read_timeout", def.Server.ReadTimeout)
	l.v.SetDefault("server.write_timeout", def.Server.WriteTimeout)
	l.v.SetDefault("server.max_body_size", def.Server.MaxBodySize)
}

// Get returns a raw value from the underlying viper instance.
func (l *Loader) Get(key string) interface{} {
	return l.v.Get(key)
}
