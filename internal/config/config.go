// SafeNet - Personal Safety Tracking Agent
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jahanasherin1/SafeNet-sub000

// Package config loads agent configuration with Koanf v2 from three layers:
// built-in defaults, an optional YAML file, and environment variables, in
// ascending precedence. SAFENET_DELIVERY_MIN_SEND_INTERVAL maps to
// delivery.min_send_interval, and so on.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths searched for a config file, in order.
var DefaultConfigPaths = []string{
	"safenet.yaml",
	"safenet.yml",
	"/etc/safenet/agent.yaml",
	"/etc/safenet/agent.yml",
}

// ConfigPathEnvVar overrides the config file search path.
const ConfigPathEnvVar = "SAFENET_CONFIG_PATH"

// envPrefix is stripped from environment variables before mapping to keys.
const envPrefix = "SAFENET_"

// Config is the root agent configuration.
type Config struct {
	Remote      RemoteConfig      `koanf:"remote"`
	Store       StoreConfig       `koanf:"store"`
	Tracking    TrackingConfig    `koanf:"tracking"`
	Delivery    DeliveryConfig    `koanf:"delivery"`
	Queue       QueueConfig       `koanf:"queue"`
	Battery     BatteryConfig     `koanf:"battery"`
	Diagnostics DiagnosticsConfig `koanf:"diagnostics"`
	Logging     LoggingConfig     `koanf:"logging"`
}

// RemoteConfig describes the SafeNet backend the agent reports to.
type RemoteConfig struct {
	// BaseURL is the API root, e.g. https://api.safenet.example.
	BaseURL string `koanf:"base_url" validate:"required,url"`

	// Timeout bounds a single location-update request.
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`
}

// StoreConfig configures the on-device BadgerDB store.
type StoreConfig struct {
	// Path is the BadgerDB directory. Ignored when InMemory is set.
	Path string `koanf:"path"`

	// InMemory keeps all data in memory; used by tests and ephemeral runs.
	InMemory bool `koanf:"in_memory"`

	// SyncWrites forces fsync per write. The queue is small; durability wins.
	SyncWrites bool `koanf:"sync_writes"`
}

// TrackingConfig parameterizes the orchestrator and its acquisition channels.
type TrackingConfig struct {
	// HeartbeatInterval is how often the orchestrator verifies the
	// platform-scheduled channel is still registered.
	HeartbeatInterval time.Duration `koanf:"heartbeat_interval" validate:"gt=0"`

	// PollInterval is the polling fallback cadence in normal mode.
	PollInterval time.Duration `koanf:"poll_interval" validate:"gt=0"`

	// PollIntervalSaving is the polling cadence in battery-saving mode.
	PollIntervalSaving time.Duration `koanf:"poll_interval_saving" validate:"gt=0"`

	// PositionTimeout bounds a single fresh-position request before the
	// poller falls back to the cached last-known position.
	PositionTimeout time.Duration `koanf:"position_timeout" validate:"gt=0"`

	// StaleSampleMaxAge discards buffered fixes older than this.
	StaleSampleMaxAge time.Duration `koanf:"stale_sample_max_age" validate:"gt=0"`
}

// DeliveryConfig parameterizes the delivery pipeline.
type DeliveryConfig struct {
	// MaxAccuracyMeters rejects fixes with worse (larger) reported accuracy.
	MaxAccuracyMeters float64 `koanf:"max_accuracy_meters" validate:"gt=0"`

	// MinSendInterval is the per-source floor between transmits, normal mode.
	MinSendInterval time.Duration `koanf:"min_send_interval" validate:"gte=100ms"`

	// MinSendIntervalSaving is the per-source floor in battery-saving mode.
	MinSendIntervalSaving time.Duration `koanf:"min_send_interval_saving" validate:"gte=100ms"`
}

// QueueConfig parameterizes the durable sync queue.
type QueueConfig struct {
	// MaxEntries bounds the queue; the oldest entry is evicted beyond it.
	MaxEntries int `koanf:"max_entries" validate:"gt=0"`

	// MaxRetries is the per-entry delivery attempt ceiling.
	MaxRetries int `koanf:"max_retries" validate:"gt=0"`

	// DrainInterval is the periodic drain cadence while a session is active.
	DrainInterval time.Duration `koanf:"drain_interval" validate:"gt=0"`
}

// BatteryConfig parameterizes the battery optimization policy.
type BatteryConfig struct {
	// Reader selects the battery level source: sysfs or fixed.
	Reader string `koanf:"reader" validate:"oneof=sysfs fixed"`

	// SysfsPath is the power-supply directory for the sysfs reader.
	SysfsPath string `koanf:"sysfs_path"`

	// FixedLevel is the level reported by the fixed reader (0-100).
	FixedLevel int `koanf:"fixed_level" validate:"gte=0,lte=100"`

	// LowThreshold is the auto-enable threshold for saving mode (percent).
	LowThreshold int `koanf:"low_threshold" validate:"gt=0,lte=100"`
}

// DiagnosticsConfig configures the local status/metrics HTTP server.
type DiagnosticsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Host    string `koanf:"host"`
	Port    int    `koanf:"port" validate:"gt=0,lte=65535"`

	// RateLimitReqs requests per RateLimitWindow per client IP.
	RateLimitReqs   int           `koanf:"rate_limit_reqs" validate:"gt=0"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window" validate:"gt=0"`

	// CORSOrigins allowed for the embedding UI's status reads.
	CORSOrigins []string `koanf:"cors_origins"`
}

// LoggingConfig configures the zerolog output.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
}

// defaultConfig returns the built-in defaults, applied before file and env.
func defaultConfig() *Config {
	return &Config{
		Remote: RemoteConfig{
			BaseURL: "http://127.0.0.1:8080",
			Timeout: 10 * time.Second,
		},
		Store: StoreConfig{
			Path:       "/var/lib/safenet/agent",
			InMemory:   false,
			SyncWrites: true,
		},
		Tracking: TrackingConfig{
			HeartbeatInterval:  30 * time.Second,
			PollInterval:       3 * time.Second,
			PollIntervalSaving: 15 * time.Second,
			PositionTimeout:    8 * time.Second,
			StaleSampleMaxAge:  30 * time.Second,
		},
		Delivery: DeliveryConfig{
			MaxAccuracyMeters:     200,
			MinSendInterval:       2 * time.Second,
			MinSendIntervalSaving: 4 * time.Second,
		},
		Queue: QueueConfig{
			MaxEntries:    20,
			MaxRetries:    5,
			DrainInterval: time.Minute,
		},
		Battery: BatteryConfig{
			Reader:       "sysfs",
			SysfsPath:    "/sys/class/power_supply",
			FixedLevel:   100,
			LowThreshold: 20,
		},
		Diagnostics: DiagnosticsConfig{
			Enabled:         true,
			Host:            "127.0.0.1",
			Port:            7040,
			RateLimitReqs:   60,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file, and
// SAFENET_* environment variables, then validates it.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	envProvider := env.Provider(envPrefix, ".", envTransform)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration with go-playground/validator plus the
// cross-field rules the tag language cannot express.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	if !c.Store.InMemory && c.Store.Path == "" {
		return fmt.Errorf("configuration validation failed: store.path is required when store.in_memory is false")
	}
	if c.Delivery.MinSendIntervalSaving < c.Delivery.MinSendInterval {
		return fmt.Errorf("configuration validation failed: delivery.min_send_interval_saving must not undercut delivery.min_send_interval")
	}
	if c.Tracking.PollIntervalSaving < c.Tracking.PollInterval {
		return fmt.Errorf("configuration validation failed: tracking.poll_interval_saving must not undercut tracking.poll_interval")
	}
	return nil
}

// findConfigFile returns the first existing config file path, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransform maps SAFENET_QUEUE_MAX_ENTRIES to queue.max_entries.
// Only the first underscore separates the section from the key; the rest of
// the name stays underscored to match the koanf struct tags.
func envTransform(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	parts := strings.SplitN(s, "_", 2)
	if len(parts) == 1 {
		return parts[0]
	}
	return parts[0] + "." + parts[1]
}
