// Package app wires together the HTTP server, WebSocket hub, the host loop
// that owns the transition core, and optionally the demo runner. It owns the
// daemon's lifecycle and is the single source of truth for its state.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/large-farva/transition-engine/internal/config"
	"github.com/large-farva/transition-engine/internal/demo"
	"github.com/large-farva/transition-engine/internal/engine"
	"github.com/large-farva/transition-engine/internal/events"
	"github.com/large-farva/transition-engine/internal/logging"
	"github.com/large-farva/transition-engine/internal/perfmon"
	"github.com/large-farva/transition-engine/internal/platform"
	"github.com/large-farva/transition-engine/internal/store"
	"github.com/large-farva/transition-engine/internal/telemetry"
	"github.com/large-farva/transition-engine/internal/ws"
)

const (
	heartbeatInterval = 10 * time.Second
	callTimeout       = 2 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// Options holds everything the App needs from the caller.
type Options struct {
	Logger     *logging.Logger
	Cfg        config.Config
	ConfigPath string
	Bind       string
}

// App is the top-level daemon process.
type App struct {
	logs       *logging.Logger
	log        *zap.Logger
	bind       string
	configPath string

	cfgMu sync.RWMutex
	cfg   config.Config

	loop    *platform.Loop
	storage store.Storage
	hub     *ws.Hub
	server  *http.Server

	// Owned by the loop goroutine.
	eng    *engine.Engine
	frames frameClock
	memOK  bool
	memVal float64

	startedAt time.Time
	state     atomic.Value // current state string (BOOTING, IDLE, etc.)
	dropped   atomic.Int64
}

// New opens storage and builds the core. Call Run to start serving.
func New(opts Options) (*App, error) {
	logs := opts.Logger
	if logs == nil {
		logs = logging.New(opts.Cfg.Logging, zapcore.Lock(os.Stdout))
	}
	a := &App{
		logs:       logs,
		log:        logs.Logger,
		bind:       opts.Bind,
		configPath: opts.ConfigPath,
		cfg:        opts.Cfg,
		startedAt:  time.Now(),
		hub:        ws.NewHub(logs.Logger),
	}
	a.state.Store("BOOTING")
	a.hub.OnDrop(func() { a.dropped.Add(1) })

	storage, err := openStorage(opts.Cfg.Storage)
	if err != nil {
		return nil, err
	}
	a.storage = storage

	rate := 0
	if opts.Cfg.Frames.Source == config.FramesTicker {
		rate = opts.Cfg.Frames.RateHz
	}
	a.loop = platform.NewLoop(a.log, platform.LoopOptions{FrameRate: rate})

	eng, err := engine.New(engine.Options{
		Logger:  a.log,
		Host:    a.loop,
		Storage: storage,
		Config:  opts.Cfg,
		Agent:   "transitiond/" + Version,
	})
	if err != nil {
		_ = storage.Close()
		return nil, err
	}
	a.eng = eng
	eng.Monitor.SetMemoryReader(perfmon.MemoryFunc(func() (float64, bool) { return a.memVal, a.memOK }))

	eng.Bus.SubscribeAll(func(p events.Payload) {
		a.broadcast(telemetry.NewBusEvent(p))
		if lc, ok := p.(events.LifecycleEvent); ok {
			a.transition(lifecycleState(lc.To), lc.NavigationID)
		}
	})
	logs.Recent.OnLine(func(l logging.Line) {
		a.broadcast(telemetry.NewLogLine(l))
	})
	return a, nil
}

func openStorage(cfg config.StorageConfig) (store.Storage, error) {
	if cfg.Driver == config.StorageMemory {
		return store.NewMemory(), nil
	}
	s, err := store.OpenSQLite(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	return s, nil
}

func lifecycleState(s string) string {
	return strings.ToUpper(strings.ReplaceAll(s, "-", "_"))
}

// Run starts the loop, hub, heartbeat, config watcher, HTTP server and,
// when enabled, the demo runner. It blocks until ctx is cancelled or a
// member fails, then tears the core down.
func (a *App) Run(ctx context.Context) error {
	cfg := a.getConfig()
	bind := a.bind
	if bind == "" {
		bind = cfg.Server.Bind
	}

	a.server = &http.Server{
		Addr:              bind,
		Handler:           a.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	ln, err := net.Listen("tcp", bind)
	if err != nil {
		a.shutdownCore()
		return err
	}
	a.log.Info("listening", zap.String("url", "http://"+ln.Addr().String()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { a.loop.Run(gctx); return nil })
	g.Go(func() error { a.hub.Run(gctx); return nil })
	g.Go(func() error { a.heartbeatLoop(gctx); return nil })

	if a.configPath != "" {
		w, err := config.NewWatcher(a.log, a.configPath, config.DefaultDebounce)
		if err != nil {
			a.log.Warn("config watch disabled", zap.Error(err))
		} else {
			g.Go(func() error { return w.Run(gctx, a.applyConfig) })
		}
	}

	if cfg.Demo.Enabled {
		r := demo.New(a, a.log)
		if cfg.Demo.IntervalSeconds > 0 {
			r.Interval = time.Duration(cfg.Demo.IntervalSeconds) * time.Second
		}
		g.Go(func() error { return r.Run(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("shutdown requested")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.server.Shutdown(sctx)
	})
	g.Go(func() error {
		if err := a.server.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	a.transition("IDLE", "")
	err = g.Wait()
	a.shutdownCore()
	return err
}

// shutdownCore runs after the loop has exited, so nothing else touches the
// core concurrently.
func (a *App) shutdownCore() {
	a.eng.Destroy()
	if err := a.storage.Close(); err != nil {
		a.log.Warn("storage close failed", zap.Error(err))
	}
}

// call runs fn on the loop goroutine, bounded by the request context.
func (a *App) call(ctx context.Context, fn func(*engine.Engine)) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	return a.loop.Call(ctx, func() { fn(a.eng) })
}

// Publish hands a consumed event to the core. It implements demo.Client.
func (a *App) Publish(ctx context.Context, p events.Payload) error {
	var perr error
	if err := a.call(ctx, func(e *engine.Engine) { perr = e.Publish(p) }); err != nil {
		return err
	}
	return perr
}

// Frames delivers client-reported frame timestamps to the core. It
// implements demo.Client.
func (a *App) Frames(ctx context.Context, timestampsMs []float64) error {
	return a.call(ctx, func(*engine.Engine) {
		a.frames.deliver(a.loop.Now(), timestampsMs, a.loop.DeliverFrame)
	})
}

// setMemory records the latest client memory pressure reading.
func (a *App) setMemory(ctx context.Context, ratio float64) error {
	return a.call(ctx, func(*engine.Engine) {
		a.memVal, a.memOK = ratio, true
	})
}

// transition atomically updates the daemon state and broadcasts the change
// to all connected WebSocket clients.
func (a *App) transition(newState, navigationID string) {
	old := a.state.Swap(newState).(string)
	if old == newState {
		return
	}
	a.broadcast(telemetry.NewStateTransition(old, newState, navigationID))
}

func (a *App) broadcast(v any) {
	a.hub.BroadcastJSON(telemetry.Kind(v), v)
}

// heartbeatLoop sends a periodic heartbeat so clients can detect
// connectivity and track uptime without polling.
func (a *App) heartbeatLoop(ctx context.Context) {
	t := time.NewTicker(heartbeatInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			var fb string
			if err := a.call(ctx, func(e *engine.Engine) { fb = string(e.Fallback.State()) }); err != nil {
				continue
			}
			a.broadcast(telemetry.NewHeartbeat(a.state.Load().(string), fb, time.Since(a.startedAt)))
		}
	}
}

func (a *App) getConfig() config.Config {
	a.cfgMu.RLock()
	defer a.cfgMu.RUnlock()
	return a.cfg
}

// applyConfig takes a reloaded config. The log level applies immediately;
// the remaining sections are read at startup.
func (a *App) applyConfig(cfg config.Config) {
	a.cfgMu.Lock()
	a.cfg = cfg
	a.cfgMu.Unlock()
	if err := a.logs.SetLevel(cfg.Logging.Level); err != nil {
		a.log.Warn("invalid log level in reloaded config", zap.String("level", cfg.Logging.Level))
	}
	a.log.Info("configuration applied", zap.String("level", a.logs.Level.String()))
}
