// Package config loads autotrack settings with Viper from .autotrack.yml,
// AUTOTRACK_ environment variables and command-line flags.
//
// Settings cover the default bounds of blocking presses, how often the
// delivery queue drains, structured logging, the event stream server and
// the watcher that replays scenarios when they change on disk.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/conneroisu/autotrack/internal/codec"
)

type Config struct {
	Tracker TrackerConfig `mapstructure:"tracker" yaml:"tracker"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	Output  OutputConfig  `mapstructure:"output" yaml:"output"`
	Stream  StreamConfig  `mapstructure:"stream" yaml:"stream"`
	Watch   WatchConfig   `mapstructure:"watch" yaml:"watch"`
	// Targets holds CLI arguments, never read from the file.
	Targets []string `mapstructure:"-" yaml:"-"`
}

type TrackerConfig struct {
	Name string `mapstructure:"name" yaml:"name"`
	// Prefix holds "Kind:id" contexts prepended to every location stack.
	Prefix          []string `mapstructure:"prefix" yaml:"prefix"`
	WaitIntervalMs  int      `mapstructure:"wait_interval_ms" yaml:"wait_interval_ms"`
	WaitTimeoutMs   int      `mapstructure:"wait_timeout_ms" yaml:"wait_timeout_ms"`
	DrainIntervalMs int      `mapstructure:"drain_interval_ms" yaml:"drain_interval_ms"`
	// FlushPolicy applies to blocking presses that do not set one:
	// always, never or onTimeout.
	FlushPolicy string `mapstructure:"flush_policy" yaml:"flush_policy"`
}

type LogConfig struct {
	Level     string `mapstructure:"level" yaml:"level"`
	Format    string `mapstructure:"format" yaml:"format"`
	AddSource bool   `mapstructure:"add_source" yaml:"add_source"`
}

// OutputConfig selects how streamed events are printed.
type OutputConfig struct {
	Format string `mapstructure:"format" yaml:"format"`
}

type StreamConfig struct {
	Enabled        bool     `mapstructure:"enabled" yaml:"enabled"`
	Host           string   `mapstructure:"host" yaml:"host"`
	Port           int      `mapstructure:"port" yaml:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

type WatchConfig struct {
	Paths      []string `mapstructure:"paths" yaml:"paths"`
	Extensions []string `mapstructure:"extensions" yaml:"extensions"`
	DebounceMs int      `mapstructure:"debounce_ms" yaml:"debounce_ms"`
}

// Load reads the configuration from the global viper instance and applies
// defaults.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads the configuration from v and applies defaults.
func LoadFrom(v *viper.Viper) (*Config, error) {
	config, err := unmarshal(v)
	if err != nil {
		return nil, err
	}
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// Inspect reads the configuration from v like LoadFrom but reports every
// validation issue instead of failing on the first.
func Inspect(v *viper.Viper) (*Config, *ValidationResult, error) {
	config, err := unmarshal(v)
	if err != nil {
		return nil, nil, err
	}
	return config, ValidateConfigWithDetails(config), nil
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Slices set through flags or env arrive as strings
	if v.IsSet("tracker.prefix") && len(config.Tracker.Prefix) == 0 {
		config.Tracker.Prefix = v.GetStringSlice("tracker.prefix")
	}
	if v.IsSet("watch.paths") && len(config.Watch.Paths) == 0 {
		config.Watch.Paths = v.GetStringSlice("watch.paths")
	}

	applyDefaults(&config)
	return &config, nil
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	var config Config
	applyDefaults(&config)
	return &config
}

func applyDefaults(config *Config) {
	if config.Tracker.WaitIntervalMs == 0 {
		config.Tracker.WaitIntervalMs = 100
	}
	if config.Tracker.WaitTimeoutMs == 0 {
		config.Tracker.WaitTimeoutMs = 1000
	}
	if config.Tracker.DrainIntervalMs == 0 {
		config.Tracker.DrainIntervalMs = 50
	}
	if config.Tracker.FlushPolicy == "" {
		config.Tracker.FlushPolicy = string(codec.FlushOnTimeout)
	}

	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = "text"
	}
	if config.Output.Format == "" {
		config.Output.Format = "json"
	}

	if config.Stream.Host == "" {
		config.Stream.Host = "localhost"
	}
	if config.Stream.Port == 0 {
		config.Stream.Port = 7331
	}

	if len(config.Watch.Extensions) == 0 {
		config.Watch.Extensions = []string{".html", ".yml", ".yaml"}
	}
	if config.Watch.DebounceMs == 0 {
		config.Watch.DebounceMs = 300
	}
}

// WaitInterval returns the default poll interval of blocking presses.
func (c TrackerConfig) WaitInterval() time.Duration {
	return time.Duration(c.WaitIntervalMs) * time.Millisecond
}

// WaitTimeout returns the default wait bound of blocking presses.
func (c TrackerConfig) WaitTimeout() time.Duration {
	return time.Duration(c.WaitTimeoutMs) * time.Millisecond
}

// DrainInterval returns how often the delivery queue is flushed.
func (c TrackerConfig) DrainInterval() time.Duration {
	return time.Duration(c.DrainIntervalMs) * time.Millisecond
}

// Debounce returns the watcher debounce delay.
func (c WatchConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// Address returns host:port of the stream server.
func (c StreamConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// validateConfig validates configuration values
func validateConfig(config *Config) error {
	result := ValidateConfigWithDetails(config)
	if result.HasErrors() {
		first := result.Errors[0]
		return &first
	}
	return nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
