package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, validate(Default()))
}

func TestLoadLayersOntoDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transition.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[logging]
level = "debug"

[storage]
driver = "memory"

[device]
user_agent = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) Mobile/15E148"
cpu_cores = 2

[transitions]
timeout_ms = 3000

[[transitions.custom]]
name = "flip"
duration_ms = 420
easing = "ease-in-out"
priority = 95
relationship = "sibling"
from = "tools"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, StorageMemory, cfg.Storage.Driver)
	assert.Equal(t, 2, cfg.Device.CPUCores)
	assert.Equal(t, 3*time.Second, cfg.Transitions.Timeout())
	assert.Equal(t, "fade", cfg.Transitions.DefaultDescriptor)
	require.Len(t, cfg.Transitions.Custom, 1)
	assert.Equal(t, "flip", cfg.Transitions.Custom[0].Name)
	assert.Equal(t, 95, cfg.Transitions.Custom[0].Priority)
	assert.Equal(t, 5*time.Second, cfg.Monitor.Cooldown())
	assert.Equal(t, 30*time.Second, cfg.Fallback.ErrorWindow())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"empty bind", func(c *Config) { c.Server.Bind = "" }, "server.bind"},
		{"sqlite without path", func(c *Config) { c.Storage.Path = "" }, "storage.path"},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "redis" }, "storage.driver"},
		{"zero timeout", func(c *Config) { c.Transitions.TimeoutMs = 0 }, "timeout_ms"},
		{"unnamed custom", func(c *Config) { c.Transitions.Custom = []CustomTransition{{DurationMs: 100}} }, "custom[0].name"},
		{"memory ratio", func(c *Config) { c.Monitor.MaxMemoryRatio = 1.5 }, "max_memory_ratio"},
		{"ticker rate", func(c *Config) { c.Frames.Source = FramesTicker; c.Frames.RateHz = 0 }, "rate_hz"},
		{"demo plays the client", func(c *Config) { c.Demo.Enabled = true; c.Frames.Source = FramesTicker }, "demo.enabled"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	path := filepath.Join(t.TempDir(), "broken.toml")
	require.NoError(t, os.WriteFile(path, []byte("[logging\nlevel="), 0o644))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestWatcherReloads(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "transition.toml")
	require.NoError(t, os.WriteFile(path, []byte("[logging]\nlevel = \"info\"\n"), 0o644))

	w, err := NewWatcher(zaptest.NewLogger(t), path, 20*time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan Config, 4)
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, func(c Config) { got <- c }) }()

	// An invalid revision is skipped; the next valid one is delivered.
	require.NoError(t, os.WriteFile(path, []byte("[transitions]\ntimeout_ms = -1\n"), 0o644))
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("[logging]\nlevel = \"warn\"\n"), 0o644))

	select {
	case c := <-got:
		assert.Equal(t, "warn", c.Logging.Level)
	case <-time.After(3 * time.Second):
		t.Fatal("no reload observed")
	}

	cancel()
	require.NoError(t, <-done)
}
