// Package engine assembles one transition core: the bus, every component,
// and the wiring between them, all on a single host.
package engine

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/large-farva/transition-engine/internal/config"
	"github.com/large-farva/transition-engine/internal/controller"
	"github.com/large-farva/transition-engine/internal/debug"
	"github.com/large-farva/transition-engine/internal/device"
	"github.com/large-farva/transition-engine/internal/events"
	"github.com/large-farva/transition-engine/internal/fallback"
	"github.com/large-farva/transition-engine/internal/motion"
	"github.com/large-farva/transition-engine/internal/navigation"
	"github.com/large-farva/transition-engine/internal/perfmon"
	"github.com/large-farva/transition-engine/internal/platform"
	"github.com/large-farva/transition-engine/internal/prefs"
	"github.com/large-farva/transition-engine/internal/registry"
	"github.com/large-farva/transition-engine/internal/store"
)

// Options configures New. Zero Config sections fall back to config.Default.
type Options struct {
	Logger      *zap.Logger
	Host        platform.Host
	Storage     store.Storage
	Config      config.Config
	InitialPath string
	Agent       string
	NewID       func() string
}

// Engine owns the components of one core. All methods run on the host's
// thread.
type Engine struct {
	log *zap.Logger

	Bus        *events.Bus
	Registry   *registry.Registry
	Device     *device.Probe
	Monitor    *perfmon.Monitor
	Prefs      *prefs.Store
	Fallback   *fallback.Controller
	Controller *controller.Controller
	Debug      *debug.Overlay

	removeDebugSync func()
	destroyed       bool
}

// New builds and wires every component. Construction only subscribes; no
// timers or frames are requested until events arrive.
func New(opts Options) (*Engine, error) {
	if opts.Host == nil {
		return nil, errors.New("engine: host is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	storage := opts.Storage
	if storage == nil {
		storage = store.NewMemory()
	}
	cfg := opts.Config
	if cfg.Transitions.TimeoutMs == 0 {
		cfg = config.Default()
	}

	reg := registry.New(logger, cfg.Transitions.DefaultDescriptor)
	for _, c := range cfg.Transitions.Custom {
		p, d, err := customTransition(c)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(p, d); err != nil {
			return nil, fmt.Errorf("engine: custom transition %q: %w", c.Name, err)
		}
	}

	bus := events.NewBus(logger)
	probe := device.NewProbe(logger, bus, cfg.Device)
	mon := perfmon.New(logger, opts.Host, bus, probe, perfmon.Config{
		HistorySize:      cfg.Monitor.HistorySize,
		FrameWindow:      cfg.Monitor.FrameWindow,
		MetricsWindow:    cfg.Monitor.MetricsWindow,
		MinFrameRate:     cfg.Monitor.MinFrameRate,
		MaxDroppedFrames: cfg.Monitor.MaxDroppedFrames,
		MaxMemoryRatio:   cfg.Monitor.MaxMemoryRatio,
		Cooldown:         cfg.Monitor.Cooldown(),
	})
	pref := prefs.Open(logger, bus, storage)
	pref.SetRecommender(func() motion.Intensity { return mon.RecommendIntensity(nil) })
	// A user who opted out of reduced motion must not get it back through
	// the performance recommendation.
	mon.SetReducedMotionSource(pref.ReducedMotionActive)

	fb := fallback.New(logger, opts.Host, bus, storage, fallback.Config{
		HistorySize:      cfg.Fallback.HistorySize,
		PersistedErrors:  cfg.Fallback.PersistedErrors,
		RecoveryInterval: cfg.Fallback.RecoveryInterval(),
		ErrorWindow:      cfg.Fallback.ErrorWindow(),
		Timeout:          cfg.Transitions.Timeout(),
		Agent:            opts.Agent,
	})

	ctl := controller.New(controller.Deps{
		Logger:      logger,
		Host:        opts.Host,
		Bus:         bus,
		Registry:    reg,
		Device:      probe,
		Monitor:     mon,
		Prefs:       pref,
		Fallback:    fb,
		InitialPath: opts.InitialPath,
		NewID:       opts.NewID,
	})

	overlay := debug.New(logger, opts.Host, ctl, fb)
	overlay.SetVisible(pref.Get().DebugMode)

	e := &Engine{
		log:        logger.Named("engine"),
		Bus:        bus,
		Registry:   reg,
		Device:     probe,
		Monitor:    mon,
		Prefs:      pref,
		Fallback:   fb,
		Controller: ctl,
		Debug:      overlay,
	}
	e.removeDebugSync = pref.OnChange(func(c prefs.Change) {
		if c.Key == "debugMode" {
			overlay.SetVisible(pref.Get().DebugMode)
		}
	})

	// A panicking listener is a failure of ours, not of the page.
	bus.OnPanic = func(name events.Name, recovered any) {
		fb.Report(fallback.KindUnknown, fmt.Sprintf("listener for %s panicked: %v", name, recovered), nil, fallback.ErrorContext{})
	}

	e.log.Info("engine ready",
		zap.Int("descriptors", len(reg.Descriptors())),
		zap.Int("patterns", len(reg.Patterns())),
		zap.String("default", reg.Default().Name))
	return e, nil
}

func customTransition(c config.CustomTransition) (registry.Pattern, registry.Descriptor, error) {
	rel := navigation.Relationship(c.Relationship)
	switch rel {
	case "", navigation.Sibling, navigation.ParentChild, navigation.ChildParent, navigation.Contextual, navigation.Unrelated:
	default:
		return registry.Pattern{}, registry.Descriptor{}, fmt.Errorf("engine: custom transition %q: unknown relationship %q", c.Name, c.Relationship)
	}
	dir := navigation.Direction(c.Direction)
	switch dir {
	case "", navigation.Forward, navigation.Backward, navigation.Refresh:
	default:
		return registry.Pattern{}, registry.Descriptor{}, fmt.Errorf("engine: custom transition %q: unknown direction %q", c.Name, c.Direction)
	}

	d := registry.Descriptor{
		Name:     c.Name,
		Duration: time.Duration(c.DurationMs) * time.Millisecond,
		Easing:   c.Easing,
		CSSClass: c.CSSClass,
	}
	if d.Easing == "" {
		d.Easing = motion.EaseInOut
	}
	for _, sel := range c.Targets {
		d.Targets = append(d.Targets, registry.Binding{Selector: sel, Group: c.Name})
	}
	p := registry.Pattern{
		Name:         c.Name,
		Priority:     c.Priority,
		Relationship: rel,
		Direction:    dir,
		From:         navigation.PageType(c.From),
		To:           navigation.PageType(c.To),
	}
	return p, d, nil
}

// Publish hands an event to the bus.
func (e *Engine) Publish(p events.Payload) error {
	if e.destroyed {
		return errors.New("engine: destroyed")
	}
	return e.Bus.Publish(p)
}

// Destroy detaches every component. Calling it again is a no-op.
func (e *Engine) Destroy() {
	if e.destroyed {
		return
	}
	e.destroyed = true
	if e.removeDebugSync != nil {
		e.removeDebugSync()
	}
	e.Bus.OnPanic = nil
	e.Debug.Destroy()
	e.Controller.Destroy()
	e.Fallback.Destroy()
	e.Prefs.Destroy()
	e.Monitor.Destroy()
	e.Device.Destroy()
	e.log.Info("engine destroyed")
}
