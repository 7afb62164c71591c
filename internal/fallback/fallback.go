// Package fallback is the single sink for everything that can go wrong
// around a transition. Errors are recorded, never re-raised, and moved into
// a degraded state that recovers on its own once things stay quiet.
package fallback

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/large-farva/transition-engine/internal/events"
	"github.com/large-farva/transition-engine/internal/motion"
	"github.com/large-farva/transition-engine/internal/platform"
	"github.com/large-farva/transition-engine/internal/ring"
	"github.com/large-farva/transition-engine/internal/store"
)

// Kind is the closed error taxonomy.
type Kind string

const (
	KindAPIUnsupported    Kind = "api-unsupported"
	KindPreparationFailed Kind = "preparation-failed"
	KindTransitionFailed  Kind = "transition-failed"
	KindTimeout           Kind = "timeout"
	KindUnknown           Kind = "unknown"
)

// Strategy is the fallback an error kind calls for. Unsupported and unknown
// errors disable custom animation; the rest fall back to a simple built-in
// transition.
func (k Kind) Strategy() motion.Tier {
	switch k {
	case KindPreparationFailed, KindTransitionFailed, KindTimeout:
		return motion.TierSimplify
	}
	return motion.TierDisable
}

// Simplified transition parameters used under TierSimplify.
const (
	SimplifiedDuration = 200 * time.Millisecond
	SimplifiedEasing   = motion.EaseOut
)

type State string

const (
	Normal   State = "normal"
	Degraded State = "degraded"
)

// ErrorContext locates an error in the navigation it interrupted.
type ErrorContext struct {
	FromPath  string    `json:"fromPath,omitempty"`
	ToPath    string    `json:"toPath,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Agent     string    `json:"agent,omitempty"`
}

// TransitionError is one recorded failure.
type TransitionError struct {
	Kind    Kind         `json:"kind"`
	Message string       `json:"message"`
	Cause   string       `json:"cause,omitempty"`
	Context ErrorContext `json:"context"`

	err error
}

func (e TransitionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e TransitionError) Unwrap() error { return e.err }

type Config struct {
	HistorySize      int
	PersistedErrors  int
	RecoveryInterval time.Duration
	ErrorWindow      time.Duration
	Timeout          time.Duration
	Agent            string
}

func DefaultConfig() Config {
	return Config{
		HistorySize:      50,
		PersistedErrors:  10,
		RecoveryInterval: 10 * time.Second,
		ErrorWindow:      30 * time.Second,
		Timeout:          5 * time.Second,
	}
}

// keywords select which uncaught errors belong to us.
var keywords = []string{"transition", "view-transition", "startviewtransition", "animation"}

// Controller is the Normal/Degraded state machine.
type Controller struct {
	log     *zap.Logger
	host    platform.Host
	bus     *events.Bus
	storage store.Storage
	cfg     Config

	state     State
	reason    Kind
	strategy  motion.Tier
	supported bool

	history   *ring.Buffer[TransitionError]
	persisted *ring.Buffer[TransitionError]
	lastError time.Time

	recovery platform.Timer
	timeout  platform.Timer

	subs      events.Group
	destroyed bool
}

func New(logger *zap.Logger, host platform.Host, bus *events.Bus, storage store.Storage, cfg Config) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = def.HistorySize
	}
	if cfg.PersistedErrors <= 0 {
		cfg.PersistedErrors = def.PersistedErrors
	}
	if cfg.RecoveryInterval <= 0 {
		cfg.RecoveryInterval = def.RecoveryInterval
	}
	if cfg.ErrorWindow <= 0 {
		cfg.ErrorWindow = def.ErrorWindow
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	c := &Controller{
		log:       logger.Named("fallback"),
		host:      host,
		bus:       bus,
		storage:   storage,
		cfg:       cfg,
		state:     Normal,
		supported: true,
		history:   ring.New[TransitionError](cfg.HistorySize),
		persisted: ring.New[TransitionError](cfg.PersistedErrors),
	}
	c.loadPersisted()
	c.subs.Add(events.On(bus, events.UncaughtError, func(e events.UncaughtErrorEvent) {
		c.HandleUncaught(e.Message)
	}))
	c.subs.Add(events.On(bus, events.SupportChange, func(e events.SupportEvent) {
		c.SetSupported(e.Supported)
	}))
	return c
}

func (c *Controller) loadPersisted() {
	if c.storage == nil {
		return
	}
	raw, err := c.storage.Load(store.KeyErrorLog)
	if errors.Is(err, store.ErrNotFound) {
		return
	}
	if err != nil {
		c.log.Warn("load error log", zap.Error(err))
		return
	}
	var entries []TransitionError
	if err := json.Unmarshal(raw, &entries); err != nil {
		c.log.Warn("decode error log, starting empty", zap.Error(err))
		return
	}
	for _, e := range entries {
		c.persisted.Push(e)
	}
}

func (c *Controller) savePersisted() {
	if c.storage == nil {
		return
	}
	raw, err := json.Marshal(c.persisted.All())
	if err != nil {
		c.log.Warn("encode error log", zap.Error(err))
		return
	}
	if err := c.storage.Save(store.KeyErrorLog, raw); err != nil {
		c.log.Warn("save error log", zap.Error(err))
	}
}

// Report records an error and moves the state machine. It never fails.
func (c *Controller) Report(kind Kind, message string, cause error, ctx ErrorContext) TransitionError {
	if ctx.Timestamp.IsZero() {
		ctx.Timestamp = c.host.Now()
	}
	if ctx.Agent == "" {
		ctx.Agent = c.cfg.Agent
	}
	te := TransitionError{Kind: kind, Message: message, Context: ctx, err: cause}
	if cause != nil {
		te.Cause = cause.Error()
	}

	c.history.Push(te)
	c.persisted.Push(te)
	c.lastError = c.host.Now()
	c.savePersisted()

	switch {
	case c.state == Normal:
		c.state = Degraded
		c.reason = kind
		c.strategy = kind.Strategy()
		c.scheduleRecovery()
		c.log.Warn("entering degraded mode",
			zap.String("kind", string(kind)),
			zap.String("message", message),
			zap.Stringer("strategy", c.strategy))
	case kind.Strategy() > c.strategy:
		c.reason = kind
		c.strategy = kind.Strategy()
		c.log.Warn("escalating fallback",
			zap.String("kind", string(kind)),
			zap.Stringer("strategy", c.strategy))
	default:
		c.log.Info("transition error while degraded",
			zap.String("kind", string(kind)),
			zap.String("message", message))
	}

	if !c.destroyed {
		ev := events.TransitionErrorEvent{
			Kind:      string(kind),
			Message:   message,
			FromPath:  ctx.FromPath,
			ToPath:    ctx.ToPath,
			Timestamp: ctx.Timestamp,
			Agent:     ctx.Agent,
			Strategy:  c.strategy.String(),
		}
		if err := c.bus.Publish(ev); err != nil {
			c.log.Warn("publish transition error", zap.Error(err))
		}
	}
	return te
}

func (c *Controller) scheduleRecovery() {
	if c.destroyed {
		return
	}
	if c.recovery != nil {
		c.recovery.Stop()
	}
	c.recovery = c.host.AfterFunc(c.cfg.RecoveryInterval, c.checkRecovery)
}

func (c *Controller) checkRecovery() {
	c.recovery = nil
	if c.state != Degraded || c.destroyed {
		return
	}
	quiet := c.host.Now().Sub(c.lastError) >= c.cfg.ErrorWindow
	if quiet && c.supported {
		c.log.Info("recovered from degraded mode", zap.String("reason", string(c.reason)))
		c.state = Normal
		c.reason = ""
		c.strategy = motion.TierNone
		return
	}
	c.scheduleRecovery()
}

// ForceFallback records a manual fallback, as the debug surface does.
func (c *Controller) ForceFallback(reason string) TransitionError {
	return c.Report(KindUnknown, "forced fallback: "+reason, nil, ErrorContext{})
}

// Guard runs one lifecycle step. An error or panic from fn is recorded as
// kind and swallowed; Guard reports whether fn completed cleanly.
func (c *Controller) Guard(kind Kind, ctx ErrorContext, fn func() error) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			c.Report(kind, fmt.Sprintf("panic: %v", r), nil, ctx)
			ok = false
		}
	}()
	if err := fn(); err != nil {
		c.Report(kind, err.Error(), err, ctx)
		return false
	}
	return true
}

// HandleUncaught takes a message from the host's generic error channel. Only
// transition-related messages are recorded; it reports whether this one was.
func (c *Controller) HandleUncaught(message string) bool {
	lower := strings.ToLower(message)
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			c.Report(KindUnknown, message, nil, ErrorContext{})
			return true
		}
	}
	c.log.Debug("ignoring unrelated uncaught error", zap.String("message", message))
	return false
}

// SetSupported records whether the animation primitive is available. Losing
// it is an error in its own right.
func (c *Controller) SetSupported(ok bool) {
	was := c.supported
	c.supported = ok
	if was && !ok {
		c.Report(KindAPIUnsupported, "animation primitive unavailable", nil, ErrorContext{})
	}
}

func (c *Controller) Supported() bool { return c.supported }

// ArmTimeout starts the per-navigation deadline. If it elapses before
// DisarmTimeout, a Timeout error is recorded and onTimeout runs.
func (c *Controller) ArmTimeout(ctx ErrorContext, onTimeout func()) {
	c.DisarmTimeout()
	if c.destroyed {
		return
	}
	c.timeout = c.host.AfterFunc(c.cfg.Timeout, func() {
		c.timeout = nil
		c.Report(KindTimeout, fmt.Sprintf("transition did not complete within %s", c.cfg.Timeout), nil, ctx)
		if onTimeout != nil {
			onTimeout()
		}
	})
}

// DisarmTimeout cancels the deadline and reports whether one was pending.
func (c *Controller) DisarmTimeout() bool {
	if c.timeout == nil {
		return false
	}
	stopped := c.timeout.Stop()
	c.timeout = nil
	return stopped
}

func (c *Controller) TimeoutArmed() bool { return c.timeout != nil }

func (c *Controller) State() State { return c.state }

// Reason is the kind that put the controller in its current degraded state.
func (c *Controller) Reason() Kind { return c.reason }

// Strategy is the active fallback; TierNone while Normal.
func (c *Controller) Strategy() motion.Tier { return c.strategy }

// Errors returns the in-memory history, oldest first.
func (c *Controller) Errors() []TransitionError { return c.history.All() }

// PersistedErrors returns the error log as it is stored.
func (c *Controller) PersistedErrors() []TransitionError { return c.persisted.All() }

// ErrorCount counts every error reported since construction.
func (c *Controller) ErrorCount() int64 { return c.history.Total() }

func (c *Controller) LastError() (TransitionError, bool) { return c.history.Last() }

// Destroy cancels timers and detaches from the bus. Safe to call more than
// once.
func (c *Controller) Destroy() {
	if c.destroyed {
		return
	}
	c.destroyed = true
	c.DisarmTimeout()
	if c.recovery != nil {
		c.recovery.Stop()
		c.recovery = nil
	}
	c.subs.Close()
}
