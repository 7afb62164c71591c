// Package controller runs one transition lifecycle per navigation:
// Idle -> Preparing -> InProgress -> Idle. It is the only component that
// talks to all the others, and every step it takes goes through the
// fallback controller so a failing transition never breaks the navigation.
package controller

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/large-farva/transition-engine/internal/device"
	"github.com/large-farva/transition-engine/internal/events"
	"github.com/large-farva/transition-engine/internal/fallback"
	"github.com/large-farva/transition-engine/internal/motion"
	"github.com/large-farva/transition-engine/internal/navigation"
	"github.com/large-farva/transition-engine/internal/optimizer"
	"github.com/large-farva/transition-engine/internal/perfmon"
	"github.com/large-farva/transition-engine/internal/platform"
	"github.com/large-farva/transition-engine/internal/prefs"
	"github.com/large-farva/transition-engine/internal/registry"
)

type State string

const (
	Idle       State = "idle"
	Preparing  State = "preparing"
	InProgress State = "in-progress"
)

// DeviceAdvisor is the slice of the device probe the controller needs.
type DeviceAdvisor interface {
	Optimization() device.Optimization
	CanHandleComplexTransitions() bool
}

// FrameMonitor is the slice of the performance monitor the controller needs.
type FrameMonitor interface {
	Start(label string)
	Stop() (perfmon.Sample, bool)
}

// Failure thresholds for folding samples into Metrics.
const (
	failFrameRate = 30
	failDropped   = 5
)

// Metrics summarize every finished lifecycle.
type Metrics struct {
	TotalCount      int           `json:"total_count"`
	Failures        int           `json:"failures"`
	AverageDuration time.Duration `json:"-"`
	FailureRate     float64       `json:"failure_rate"`
}

func (m Metrics) AverageDurationMs() float64 {
	return float64(m.AverageDuration) / float64(time.Millisecond)
}

// Session is the lifecycle currently in flight.
type Session struct {
	ID      string             `json:"id"`
	Context navigation.Context `json:"context"`
	Params  optimizer.Params   `json:"params"`
	Started time.Time          `json:"started"`
}

type Deps struct {
	Logger   *zap.Logger
	Host     platform.Host
	Bus      *events.Bus
	Registry *registry.Registry
	Device   DeviceAdvisor
	Monitor  FrameMonitor
	Prefs    *prefs.Store
	Fallback *fallback.Controller

	InitialPath string
	HistorySize int
	NewID       func() string
}

type Controller struct {
	log  *zap.Logger
	host platform.Host
	bus  *events.Bus
	reg  *registry.Registry
	dev  DeviceAdvisor
	mon  FrameMonitor
	pref *prefs.Store
	fb   *fallback.Controller

	state      State
	session    *Session
	current    navigation.Context
	hasContext bool
	history    *navigation.History
	metrics    Metrics
	newID      func() string

	subs      events.Group
	destroyed bool
}

var errNoDescriptor = errors.New("registry resolved an empty descriptor")

func New(d Deps) *Controller {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	newID := d.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	c := &Controller{
		log:     logger.Named("controller"),
		host:    d.Host,
		bus:     d.Bus,
		reg:     d.Registry,
		dev:     d.Device,
		mon:     d.Monitor,
		pref:    d.Prefs,
		fb:      d.Fallback,
		state:   Idle,
		history: navigation.NewHistory(d.HistorySize),
		newID:   newID,
	}
	initial := d.InitialPath
	if initial == "" {
		initial = "/"
	}
	c.history.Push(initial)

	c.subs.Add(events.On(d.Bus, events.NavigationStart, func(e events.NavigationStartEvent) { c.Start(e.ToPath) }))
	c.subs.Add(events.On(d.Bus, events.NavigationSwapped, func(e events.NavigationSwappedEvent) { c.Swapped(e.NewPath) }))
	c.subs.Add(events.On(d.Bus, events.NavigationLoaded, func(events.NavigationLoadedEvent) { c.Loaded() }))
	c.subs.Add(events.On(d.Bus, events.BackForward, func(e events.BackForwardEvent) { c.BackForward(e.NewPath) }))
	c.subs.Add(events.On(d.Bus, events.VisibilityChange, func(e events.VisibilityEvent) {
		if !e.Visible {
			c.Hidden()
		}
	}))
	return c
}

func (c *Controller) setState(next State) {
	if c.state == next {
		return
	}
	prev := c.state
	c.state = next
	ev := events.LifecycleEvent{From: string(prev), To: string(next)}
	if c.session != nil {
		ev.NavigationID = c.session.ID
	}
	c.log.Debug("lifecycle", zap.String("from", string(prev)), zap.String("to", string(next)))
	if err := c.bus.Publish(ev); err != nil {
		c.log.Warn("publish lifecycle", zap.Error(err))
	}
}

// Start handles an about-to-navigate event and returns the parameters the
// client should animate with. A session already in flight is finalized
// first.
func (c *Controller) Start(toPath string) optimizer.Params {
	if c.destroyed {
		return optimizer.Params{Name: registry.Fade, Disabled: true, Tier: motion.TierDisable}
	}
	if c.session != nil {
		c.log.Warn("navigation started while another is active, finalizing stale session",
			zap.String("stale", c.session.ID),
			zap.String("to", toPath))
		c.finish(true, false)
	}

	from := c.history.Current()
	to := navigation.Canonicalize(toPath)
	id := c.newID()
	ectx := fallback.ErrorContext{FromPath: from, ToPath: to, Timestamp: c.host.Now()}

	c.session = &Session{ID: id, Started: c.host.Now()}
	c.setState(Preparing)
	c.fb.ArmTimeout(ectx, func() { c.timedOut(id) })

	var (
		ctx    navigation.Context
		params optimizer.Params
	)
	ok := c.fb.Guard(fallback.KindPreparationFailed, ectx, func() error {
		ctx = navigation.NewContext(from, to, c.history.Paths(), c.host.Now())
		reduced := c.pref.ReducedMotionActive()
		name := c.reg.SelectName(ctx, reduced)
		c.mon.Start(name)

		desc := c.reg.Resolve(name)
		if desc.Name == "" {
			return errNoDescriptor
		}
		var reasons []string
		if desc.Requires(registry.ConditionComplex) && !c.dev.CanHandleComplexTransitions() {
			desc = c.reg.Resolve(registry.Crossfade)
			reasons = append(reasons, "device-cannot-handle-complex")
		}
		params = optimizer.Merge(optimizer.Inputs{
			Descriptor:  desc,
			Simple:      c.reg.Resolve(registry.Fade),
			Device:      c.dev.Optimization(),
			Fallback:    c.fb.Strategy(),
			Preferences: c.pref.Get(),
			Intensity:   c.pref.EffectiveIntensity(),
		})
		params.Reasons = append(reasons, params.Reasons...)
		return nil
	})
	if !ok {
		if ctx.Timestamp.IsZero() {
			ctx = navigation.Context{
				Direction:    navigation.Forward,
				From:         navigation.Classify(from),
				To:           navigation.Classify(to),
				Relationship: navigation.Unrelated,
				FromPath:     from,
				ToPath:       to,
				Timestamp:    c.host.Now(),
			}
		}
		params = c.degradedParams()
	}

	c.history.Push(to)
	c.current = ctx
	c.hasContext = true
	c.session.Context = ctx
	c.session.Params = params
	c.setState(InProgress)

	c.log.Info("transition applied",
		zap.String("id", id),
		zap.String("from", from),
		zap.String("to", to),
		zap.String("name", params.Name),
		zap.Duration("duration", params.Duration),
		zap.String("direction", string(ctx.Direction)),
		zap.String("relationship", string(ctx.Relationship)),
		zap.Bool("disabled", params.Disabled))

	ev := events.TransitionAppliedEvent{
		NavigationID: id,
		Name:         params.Name,
		DurationMs:   params.DurationMs(),
		Easing:       params.Easing,
		Disabled:     params.Disabled,
		Tier:         params.Tier.String(),
		CSSClass:     params.CSSClass,
		Direction:    string(ctx.Direction),
		Relationship: string(ctx.Relationship),
		FromPath:     from,
		ToPath:       to,
		Reasons:      params.Reasons,
	}
	if err := c.bus.Publish(ev); err != nil {
		c.log.Warn("publish applied transition", zap.Error(err))
	}
	return params
}

// degradedParams are used when preparation itself failed.
func (c *Controller) degradedParams() optimizer.Params {
	tier := motion.MaxTier(c.fb.Strategy(), motion.TierSimplify)
	return optimizer.Params{
		Name:     registry.Fade,
		Duration: fallback.SimplifiedDuration,
		Easing:   fallback.SimplifiedEasing,
		Disabled: tier == motion.TierDisable,
		Tier:     tier,
		Reasons:  []string{"preparation-failed"},
	}
}

// Swapped handles swap-complete: the session's sample is folded into the
// metrics and the lifecycle returns to Idle.
func (c *Controller) Swapped(newPath string) {
	if c.destroyed {
		return
	}
	if c.session == nil {
		c.log.Debug("swap without an active session", zap.String("path", newPath))
		if p := navigation.Canonicalize(newPath); p != c.history.Current() {
			c.history.Push(p)
		}
		return
	}
	// A redirect lands somewhere other than where we were headed.
	if p := navigation.Canonicalize(newPath); p != c.session.Context.ToPath {
		c.history.Push(p)
	}
	c.finish(true, false)
}

// Loaded is a defensive reset: whatever state we are in, we end up Idle.
func (c *Controller) Loaded() {
	if c.destroyed {
		return
	}
	if c.session != nil {
		c.log.Debug("load complete before swap, finalizing", zap.String("id", c.session.ID))
		c.finish(true, false)
		return
	}
	c.setState(Idle)
}

// BackForward treats history traversal as a navigation start; the
// direction comes out of the path history.
func (c *Controller) BackForward(newPath string) optimizer.Params { return c.Start(newPath) }

// Hidden ends an active session without scoring it: background pages get
// no animation frames.
func (c *Controller) Hidden() {
	if c.destroyed || c.session == nil {
		return
	}
	c.log.Debug("page hidden, dropping session", zap.String("id", c.session.ID))
	c.finish(false, false)
}

func (c *Controller) timedOut(id string) {
	if c.session == nil || c.session.ID != id {
		return
	}
	c.log.Warn("transition timed out, aborting session", zap.String("id", id))
	c.finish(true, true)
}

// finish closes the active session. score folds the monitor's sample into
// the metrics; failed counts the session as a failure regardless of its
// frames.
func (c *Controller) finish(score, failed bool) {
	s := c.session
	c.fb.DisarmTimeout()
	var (
		sample perfmon.Sample
		have   bool
	)
	c.fb.Guard(fallback.KindTransitionFailed, fallback.ErrorContext{FromPath: s.Context.FromPath, ToPath: s.Context.ToPath}, func() error {
		sample, have = c.mon.Stop()
		return nil
	})
	if score {
		duration := c.host.Now().Sub(s.Started)
		if have {
			duration = sample.Duration()
			failed = failed || isFailure(sample)
		}
		c.fold(duration, failed)
	}
	c.setState(Idle)
	c.session = nil
}

func isFailure(s perfmon.Sample) bool {
	return (s.FrameCount > 0 && s.AverageFrameRate < failFrameRate) || s.DroppedFrames > failDropped
}

func (c *Controller) fold(d time.Duration, failed bool) {
	m := &c.metrics
	m.TotalCount++
	n := time.Duration(m.TotalCount)
	m.AverageDuration += (d - m.AverageDuration) / n
	f := 0.0
	if failed {
		m.Failures++
		f = 1
	}
	m.FailureRate += (f - m.FailureRate) / float64(m.TotalCount)
}

func (c *Controller) State() State { return c.state }

func (c *Controller) Metrics() Metrics { return c.metrics }

// CurrentContext returns the context of the most recent navigation.
func (c *Controller) CurrentContext() (navigation.Context, bool) { return c.current, c.hasContext }

// ActiveSession returns the session in flight, if any.
func (c *Controller) ActiveSession() (Session, bool) {
	if c.session == nil {
		return Session{}, false
	}
	return *c.session, true
}

func (c *Controller) InProgress() bool { return c.session != nil }

func (c *Controller) IsAnimationSupported() bool { return c.fb.Supported() }

// CurrentPath is the last path the client navigated to.
func (c *Controller) CurrentPath() string { return c.history.Current() }

// History returns the navigation path history, oldest first.
func (c *Controller) History() []string { return c.history.Paths() }

// Destroy drops any active session and detaches from the bus. Safe to call
// more than once.
func (c *Controller) Destroy() {
	if c.destroyed {
		return
	}
	if c.session != nil {
		c.finish(false, false)
	}
	c.destroyed = true
	c.subs.Close()
}
