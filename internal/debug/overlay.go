// Package debug backs the developer overlay: a snapshot of the engine's
// health plus a few manual triggers for exercising the fallback paths.
package debug

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/large-farva/transition-engine/internal/controller"
	"github.com/large-farva/transition-engine/internal/fallback"
	"github.com/large-farva/transition-engine/internal/platform"
)

// SelfTestStep is the spacing between injected errors.
const SelfTestStep = 500 * time.Millisecond

// selfTestKinds are injected in this order, one per step.
var selfTestKinds = []fallback.Kind{
	fallback.KindAPIUnsupported,
	fallback.KindPreparationFailed,
	fallback.KindTransitionFailed,
	fallback.KindTimeout,
	fallback.KindUnknown,
}

// Default key bindings.
const (
	KeyToggle   = "ctrl+shift+d"
	KeyForce    = "ctrl+shift+f"
	KeySelfTest = "ctrl+shift+t"
)

type Snapshot struct {
	Visible      bool                      `json:"visible"`
	APISupported bool                      `json:"api_supported"`
	CurrentPath  string                    `json:"current_path"`
	InProgress   bool                      `json:"in_progress"`
	ErrorCount   int64                     `json:"error_count"`
	LastError    *fallback.TransitionError `json:"last_error,omitempty"`
	State        fallback.State            `json:"fallback_state"`
	Strategy     string                    `json:"strategy"`
}

type Overlay struct {
	log     *zap.Logger
	host    platform.Host
	ctl     *controller.Controller
	fb      *fallback.Controller
	visible bool

	pending   []platform.Timer
	remaining int
}

func New(logger *zap.Logger, host platform.Host, ctl *controller.Controller, fb *fallback.Controller) *Overlay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Overlay{log: logger.Named("debug"), host: host, ctl: ctl, fb: fb}
}

func (o *Overlay) Visible() bool { return o.visible }

func (o *Overlay) SetVisible(v bool) { o.visible = v }

// Toggle flips visibility and returns the new value.
func (o *Overlay) Toggle() bool {
	o.visible = !o.visible
	o.log.Debug("overlay toggled", zap.Bool("visible", o.visible))
	return o.visible
}

func (o *Overlay) Snapshot() Snapshot {
	s := Snapshot{
		Visible:      o.visible,
		APISupported: o.ctl.IsAnimationSupported(),
		CurrentPath:  o.ctl.CurrentPath(),
		InProgress:   o.ctl.InProgress(),
		ErrorCount:   o.fb.ErrorCount(),
		State:        o.fb.State(),
		Strategy:     o.fb.Strategy().String(),
	}
	if last, ok := o.fb.LastError(); ok {
		s.LastError = &last
	}
	return s
}

func (o *Overlay) ForceFallback() fallback.TransitionError {
	return o.fb.ForceFallback("debug overlay")
}

// SelfTest injects one error of each kind, SelfTestStep apart, starting
// immediately. A ladder still running is cancelled first. It returns how
// many errors were scheduled.
func (o *Overlay) SelfTest() int {
	o.cancelSelfTest()
	o.log.Info("self-test scheduled", zap.Int("errors", len(selfTestKinds)))
	o.remaining = len(selfTestKinds)
	for i, kind := range selfTestKinds {
		o.pending = append(o.pending, o.host.AfterFunc(time.Duration(i)*SelfTestStep, func() {
			o.remaining--
			if o.remaining == 0 {
				o.pending = nil
			}
			o.fb.Report(kind, fmt.Sprintf("self-test %s", kind), nil, fallback.ErrorContext{})
		}))
	}
	return len(selfTestKinds)
}

// SelfTestPending reports how many self-test errors have yet to fire.
func (o *Overlay) SelfTestPending() int { return o.remaining }

func (o *Overlay) cancelSelfTest() {
	for _, t := range o.pending {
		t.Stop()
	}
	o.pending = nil
	o.remaining = 0
}

// HandleKey runs the action bound to combo and reports whether one was.
func (o *Overlay) HandleKey(combo string) bool {
	switch strings.ToLower(strings.ReplaceAll(combo, " ", "")) {
	case KeyToggle:
		o.Toggle()
	case KeyForce:
		o.ForceFallback()
	case KeySelfTest:
		o.SelfTest()
	default:
		return false
	}
	return true
}

// Destroy cancels any self-test errors still waiting to fire.
func (o *Overlay) Destroy() { o.cancelSelfTest() }
