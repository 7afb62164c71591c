// Transitiond is the daemon for the adaptive view-transition engine.
//
// It loads configuration, opens the preference store, starts the
// HTTP/WebSocket server and the host loop that owns the transition core,
// and optionally plays the demo tour. Shutdown is handled gracefully on
// SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/large-farva/transition-engine/internal/app"
	"github.com/large-farva/transition-engine/internal/config"
	"github.com/large-farva/transition-engine/internal/logging"
)

func main() {
	var (
		configPath = pflag.StringP("config", "c", "/etc/transition-engine/transitiond.toml", "Path to config TOML")
		bind       = pflag.String("bind", "", "HTTP bind address (overrides server.bind)")
		demo       = pflag.Bool("demo", false, "Play the demo tour (overrides demo.enabled)")
		level      = pflag.String("log-level", "", "Log level (overrides logging.level)")
	)
	pflag.Parse()

	cfg, watchPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config load failed:", err)
		os.Exit(1)
	}
	if *demo {
		// The demo reports frames the way a page does.
		cfg.Demo.Enabled = true
		cfg.Frames.Source = config.FramesClient
	}
	if *level != "" {
		cfg.Logging.Level = *level
	}

	logs := logging.New(cfg.Logging, zapcore.Lock(os.Stdout))
	defer logs.Close()
	if watchPath == "" {
		logs.Warn("config file not found, running on defaults", zap.String("path", *configPath))
	}

	a, err := app.New(app.Options{
		Logger:     logs,
		Cfg:        cfg,
		ConfigPath: watchPath,
		Bind:       *bind,
	})
	if err != nil {
		logs.Fatal("startup failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx); err != nil {
		logs.Error("transitiond failed", zap.Error(err))
		logs.Close()
		os.Exit(1)
	}
	logs.Info("stopped")
}

// loadConfig reads path when it exists. A missing file means defaults and
// no watcher; any other failure is fatal.
func loadConfig(path string) (config.Config, string, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return config.Default(), "", nil
	}
	if err != nil {
		return config.Config{}, "", err
	}
	return cfg, path, nil
}
