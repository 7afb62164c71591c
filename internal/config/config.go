// Package config handles loading, defaulting, and validation of the
// transitiond TOML configuration file. Every section maps to a typed struct so
// the rest of the codebase gets strong typing without manual key lookups.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/large-farva/transition-engine/internal/device"
)

// Config is the top-level configuration, mirroring the TOML sections.
type Config struct {
	Logging     LoggingConfig     `toml:"logging"     json:"logging"`
	Server      ServerConfig      `toml:"server"      json:"server"`
	Storage     StorageConfig     `toml:"storage"     json:"storage"`
	Device      device.Profile    `toml:"device"      json:"device"`
	Transitions TransitionsConfig `toml:"transitions" json:"transitions"`
	Monitor     MonitorConfig     `toml:"monitor"     json:"monitor"`
	Fallback    FallbackConfig    `toml:"fallback"    json:"fallback"`
	Frames      FramesConfig      `toml:"frames"      json:"frames"`
	Demo        DemoConfig        `toml:"demo"        json:"demo"`
}

type LoggingConfig struct {
	Level      string `toml:"level"        json:"level"`
	Format     string `toml:"format"       json:"format"`
	File       string `toml:"file"         json:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"  json:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"  json:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" json:"max_age_days"`
	Compress   bool   `toml:"compress"     json:"compress"`
}

type ServerConfig struct {
	Bind string `toml:"bind" json:"bind"`
}

// StorageConfig selects where preferences and the error log persist.
type StorageConfig struct {
	Driver string `toml:"driver" json:"driver"`
	Path   string `toml:"path"   json:"path"`
}

type TransitionsConfig struct {
	TimeoutMs         int                `toml:"timeout_ms"         json:"timeout_ms"`
	DefaultDescriptor string             `toml:"default_descriptor" json:"default_descriptor"`
	Custom            []CustomTransition `toml:"custom"             json:"custom"`
}

// CustomTransition registers one extra descriptor and the rule that selects it.
// Empty match fields match anything.
type CustomTransition struct {
	Name         string   `toml:"name"         json:"name"`
	DurationMs   int      `toml:"duration_ms"  json:"duration_ms"`
	Easing       string   `toml:"easing"       json:"easing"`
	CSSClass     string   `toml:"css_class"    json:"css_class"`
	Targets      []string `toml:"targets"      json:"targets"`
	Priority     int      `toml:"priority"     json:"priority"`
	Relationship string   `toml:"relationship" json:"relationship"`
	Direction    string   `toml:"direction"    json:"direction"`
	From         string   `toml:"from"         json:"from"`
	To           string   `toml:"to"           json:"to"`
}

type MonitorConfig struct {
	HistorySize      int     `toml:"history_size"       json:"history_size"`
	FrameWindow      int     `toml:"frame_window"       json:"frame_window"`
	MetricsWindow    int     `toml:"metrics_window"     json:"metrics_window"`
	MinFrameRate     float64 `toml:"min_frame_rate"     json:"min_frame_rate"`
	MaxDroppedFrames int     `toml:"max_dropped_frames" json:"max_dropped_frames"`
	MaxMemoryRatio   float64 `toml:"max_memory_ratio"   json:"max_memory_ratio"`
	CooldownMs       int     `toml:"cooldown_ms"        json:"cooldown_ms"`
}

type FallbackConfig struct {
	HistorySize        int `toml:"history_size"         json:"history_size"`
	PersistedErrors    int `toml:"persisted_errors"     json:"persisted_errors"`
	RecoveryIntervalMs int `toml:"recovery_interval_ms" json:"recovery_interval_ms"`
	ErrorWindowMs      int `toml:"error_window_ms"      json:"error_window_ms"`
}

// FramesConfig picks the animation frame source. "client" waits for frame
// timestamps posted by the page; "ticker" drives frames locally at RateHz.
type FramesConfig struct {
	Source string `toml:"source"  json:"source"`
	RateHz int    `toml:"rate_hz" json:"rate_hz"`
}

type DemoConfig struct {
	Enabled         bool `toml:"enabled"          json:"enabled"`
	IntervalSeconds int  `toml:"interval_seconds" json:"interval_seconds"`
}

const (
	FramesClient = "client"
	FramesTicker = "ticker"

	StorageSQLite = "sqlite"
	StorageMemory = "memory"
)

// Default returns a Config populated with sane defaults. Values here are
// used whenever the TOML file omits a field.
func Default() Config {
	return Config{
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 14,
		},
		Server: ServerConfig{
			Bind: "127.0.0.1:8080",
		},
		Storage: StorageConfig{
			Driver: StorageSQLite,
			Path:   "/var/lib/transition-engine/state.db",
		},
		Device: device.Profile{
			CPUCores: device.DefaultCPUCores,
		},
		Transitions: TransitionsConfig{
			TimeoutMs:         5000,
			DefaultDescriptor: "fade",
		},
		Monitor: MonitorConfig{
			HistorySize:      50,
			FrameWindow:      100,
			MetricsWindow:    30,
			MinFrameRate:     30,
			MaxDroppedFrames: 5,
			MaxMemoryRatio:   0.8,
			CooldownMs:       5000,
		},
		Fallback: FallbackConfig{
			HistorySize:        50,
			PersistedErrors:    10,
			RecoveryIntervalMs: 10000,
			ErrorWindowMs:      30000,
		},
		Frames: FramesConfig{
			Source: FramesClient,
			RateHz: 60,
		},
		Demo: DemoConfig{
			Enabled:         false,
			IntervalSeconds: 2,
		},
	}
}

// Load reads the TOML file at path, layers it on top of the defaults, and
// validates the result. An error is returned if the file can't be read,
// parsed, or if any constraint is violated.
func Load(path string) (Config, error) {
	cfg := Default()

	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := Parse(b, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes TOML onto cfg and validates the result.
func Parse(b []byte, cfg *Config) error {
	if err := toml.Unmarshal(b, cfg); err != nil {
		return err
	}
	return validate(*cfg)
}

// Duration helpers keep millisecond fields readable in TOML.
func (t TransitionsConfig) Timeout() time.Duration { return ms(t.TimeoutMs) }
func (m MonitorConfig) Cooldown() time.Duration    { return ms(m.CooldownMs) }
func (f FallbackConfig) RecoveryInterval() time.Duration {
	return ms(f.RecoveryIntervalMs)
}
func (f FallbackConfig) ErrorWindow() time.Duration { return ms(f.ErrorWindowMs) }

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func validate(cfg Config) error {
	switch cfg.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format %q must be console or json", cfg.Logging.Format)
	}
	if cfg.Server.Bind == "" {
		return errors.New("server.bind must not be empty")
	}
	switch cfg.Storage.Driver {
	case StorageMemory:
	case StorageSQLite:
		if cfg.Storage.Path == "" {
			return errors.New("storage.path must not be empty for the sqlite driver")
		}
	default:
		return fmt.Errorf("storage.driver %q must be sqlite or memory", cfg.Storage.Driver)
	}
	if cfg.Transitions.TimeoutMs <= 0 {
		return errors.New("transitions.timeout_ms must be > 0")
	}
	for i, c := range cfg.Transitions.Custom {
		if c.Name == "" {
			return fmt.Errorf("transitions.custom[%d].name must not be empty", i)
		}
		if c.DurationMs < 0 {
			return fmt.Errorf("transitions.custom[%d].duration_ms must be >= 0", i)
		}
	}
	if cfg.Monitor.HistorySize < 1 || cfg.Monitor.FrameWindow < 1 || cfg.Monitor.MetricsWindow < 1 {
		return errors.New("monitor history_size, frame_window and metrics_window must be >= 1")
	}
	if cfg.Monitor.MinFrameRate <= 0 {
		return errors.New("monitor.min_frame_rate must be > 0")
	}
	if cfg.Monitor.MaxMemoryRatio <= 0 || cfg.Monitor.MaxMemoryRatio > 1 {
		return errors.New("monitor.max_memory_ratio must be in (0, 1]")
	}
	if cfg.Monitor.CooldownMs <= 0 {
		return errors.New("monitor.cooldown_ms must be > 0")
	}
	if cfg.Fallback.HistorySize < 1 || cfg.Fallback.PersistedErrors < 1 {
		return errors.New("fallback history_size and persisted_errors must be >= 1")
	}
	if cfg.Fallback.RecoveryIntervalMs <= 0 || cfg.Fallback.ErrorWindowMs <= 0 {
		return errors.New("fallback recovery_interval_ms and error_window_ms must be > 0")
	}
	switch cfg.Frames.Source {
	case FramesClient:
	case FramesTicker:
		if cfg.Frames.RateHz <= 0 {
			return errors.New("frames.rate_hz must be > 0 for the ticker source")
		}
	default:
		return fmt.Errorf("frames.source %q must be client or ticker", cfg.Frames.Source)
	}
	if cfg.Demo.IntervalSeconds < 0 {
		return errors.New("demo.interval_seconds must be >= 0")
	}
	if cfg.Demo.Enabled && cfg.Frames.Source != FramesClient {
		return errors.New("demo.enabled requires frames.source = \"client\"; the demo plays the client")
	}
	return nil
}
