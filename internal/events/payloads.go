package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/large-farva/transition-engine/internal/motion"
)

// Name identifies an event flowing over the Bus.
type Name string

// Consumed events, published by the host adapter.
const (
	NavigationStart     Name = "navigation-about-to-start"
	NavigationSwapped   Name = "navigation-swapped"
	NavigationLoaded    Name = "navigation-load-complete"
	BackForward         Name = "browser-back-forward"
	ReducedMotionChange Name = "reduced-motion-change"
	OnlineChange        Name = "online-change"
	VisibilityChange    Name = "visibility-change"
	OrientationChange   Name = "orientation-change"
	ConnectionChange    Name = "connection-change"
	BatteryChange       Name = "battery-change"
	SupportChange       Name = "animation-support-change"
	UncaughtError       Name = "uncaught-error"
)

// Emitted events, consumed by UI indicators and the WebSocket stream.
const (
	PerformanceFallbackTriggered Name = "performance-fallback-triggered"
	TransitionErrorRaised        Name = "transition-error"
	PreferencesChanged           Name = "preferences-changed"
	TransitionApplied            Name = "transition-applied"
	LifecycleChanged             Name = "lifecycle-changed"
)

// ErrInvalidPayload is returned when a payload does not match the schema
// registered for its event name.
var ErrInvalidPayload = errors.New("invalid event payload")

// Payload is implemented by every event body. Validate is checked before a
// payload is delivered to any subscriber.
type Payload interface {
	EventName() Name
	Validate() error
}

func invalid(name Name, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidPayload, name, fmt.Sprintf(format, args...))
}

// ---------------------------------------------------------------------------
// Navigation
// ---------------------------------------------------------------------------

type NavigationStartEvent struct {
	ToPath string `json:"to_path"`
}

func (NavigationStartEvent) EventName() Name { return NavigationStart }

func (e NavigationStartEvent) Validate() error {
	if strings.TrimSpace(e.ToPath) == "" {
		return invalid(NavigationStart, "to_path is required")
	}
	return nil
}

type NavigationSwappedEvent struct {
	NewPath string `json:"new_path"`
}

func (NavigationSwappedEvent) EventName() Name { return NavigationSwapped }

func (e NavigationSwappedEvent) Validate() error {
	if strings.TrimSpace(e.NewPath) == "" {
		return invalid(NavigationSwapped, "new_path is required")
	}
	return nil
}

type NavigationLoadedEvent struct{}

func (NavigationLoadedEvent) EventName() Name { return NavigationLoaded }
func (NavigationLoadedEvent) Validate() error { return nil }

type BackForwardEvent struct {
	NewPath string `json:"new_path"`
}

func (BackForwardEvent) EventName() Name { return BackForward }

func (e BackForwardEvent) Validate() error {
	if strings.TrimSpace(e.NewPath) == "" {
		return invalid(BackForward, "new_path is required")
	}
	return nil
}

// ---------------------------------------------------------------------------
// Host signals
// ---------------------------------------------------------------------------

type ReducedMotionEvent struct {
	Reduced bool `json:"reduced"`
}

func (ReducedMotionEvent) EventName() Name { return ReducedMotionChange }
func (ReducedMotionEvent) Validate() error { return nil }

type OnlineEvent struct {
	Online bool `json:"online"`
}

func (OnlineEvent) EventName() Name { return OnlineChange }
func (OnlineEvent) Validate() error { return nil }

type VisibilityEvent struct {
	Visible bool `json:"visible"`
}

func (VisibilityEvent) EventName() Name { return VisibilityChange }
func (VisibilityEvent) Validate() error { return nil }

type OrientationEvent struct {
	Orientation string `json:"orientation"`
}

func (OrientationEvent) EventName() Name { return OrientationChange }

func (e OrientationEvent) Validate() error {
	switch e.Orientation {
	case "portrait", "landscape":
		return nil
	}
	return invalid(OrientationChange, "orientation must be portrait or landscape, got %q", e.Orientation)
}

// ConnectionEvent mirrors the Network Information API fields the probe uses.
type ConnectionEvent struct {
	EffectiveType string  `json:"effective_type"`
	DownlinkMbps  float64 `json:"downlink_mbps"`
	SaveData      bool    `json:"save_data"`
}

func (ConnectionEvent) EventName() Name { return ConnectionChange }

func (e ConnectionEvent) Validate() error {
	switch e.EffectiveType {
	case "slow-2g", "2g", "3g", "4g", "wifi", "ethernet", "unknown":
	default:
		return invalid(ConnectionChange, "unknown effective_type %q", e.EffectiveType)
	}
	if e.DownlinkMbps < 0 || math.IsNaN(e.DownlinkMbps) {
		return invalid(ConnectionChange, "downlink_mbps must be >= 0")
	}
	return nil
}

// BatteryEvent carries a battery reading. Available=false means the host
// has no battery API; Level and Charging are then ignored.
type BatteryEvent struct {
	Available bool    `json:"available"`
	Level     float64 `json:"level"`
	Charging  bool    `json:"charging"`
}

func (BatteryEvent) EventName() Name { return BatteryChange }

func (e BatteryEvent) Validate() error {
	if e.Available && (e.Level < 0 || e.Level > 1 || math.IsNaN(e.Level)) {
		return invalid(BatteryChange, "level must be within [0,1], got %v", e.Level)
	}
	return nil
}

type SupportEvent struct {
	Supported bool `json:"supported"`
}

func (SupportEvent) EventName() Name { return SupportChange }
func (SupportEvent) Validate() error { return nil }

// UncaughtErrorEvent is anything surfaced through the host's generic
// error/rejection channel.
type UncaughtErrorEvent struct {
	Message string `json:"message"`
}

func (UncaughtErrorEvent) EventName() Name { return UncaughtError }

func (e UncaughtErrorEvent) Validate() error {
	if e.Message == "" {
		return invalid(UncaughtError, "message is required")
	}
	return nil
}

// ---------------------------------------------------------------------------
// Emitted
// ---------------------------------------------------------------------------

type PerformanceFallbackEvent struct {
	Label                string           `json:"label"`
	DurationMs           int64            `json:"duration_ms"`
	FrameCount           int              `json:"frame_count"`
	DroppedFrames        int              `json:"dropped_frames"`
	WorstFrameMs         float64          `json:"worst_frame_ms"`
	AverageFrameRate     float64          `json:"average_frame_rate"`
	MemoryRatio          *float64         `json:"memory_ratio,omitempty"`
	RecommendedIntensity motion.Intensity `json:"recommended_intensity"`
}

func (PerformanceFallbackEvent) EventName() Name { return PerformanceFallbackTriggered }
func (PerformanceFallbackEvent) Validate() error { return nil }

type TransitionErrorEvent struct {
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	FromPath  string    `json:"from_path,omitempty"`
	ToPath    string    `json:"to_path,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Agent     string    `json:"agent,omitempty"`
	Strategy  string    `json:"strategy"`
}

func (TransitionErrorEvent) EventName() Name { return TransitionErrorRaised }

func (e TransitionErrorEvent) Validate() error {
	if e.Kind == "" {
		return invalid(TransitionErrorRaised, "kind is required")
	}
	return nil
}

type PreferencesChangedEvent struct {
	Key      string `json:"key"`
	OldValue any    `json:"old_value"`
	NewValue any    `json:"new_value"`
}

func (PreferencesChangedEvent) EventName() Name { return PreferencesChanged }

func (e PreferencesChangedEvent) Validate() error {
	if e.Key == "" {
		return invalid(PreferencesChanged, "key is required")
	}
	return nil
}

// TransitionAppliedEvent carries the parameters the client should animate
// the current navigation with.
type TransitionAppliedEvent struct {
	NavigationID string   `json:"navigation_id"`
	Name         string   `json:"name"`
	DurationMs   int64    `json:"duration_ms"`
	Easing       string   `json:"easing"`
	Disabled     bool     `json:"disabled"`
	Tier         string   `json:"tier"`
	CSSClass     string   `json:"css_class,omitempty"`
	Direction    string   `json:"direction"`
	Relationship string   `json:"relationship"`
	FromPath     string   `json:"from_path"`
	ToPath       string   `json:"to_path"`
	Reasons      []string `json:"reasons,omitempty"`
}

func (TransitionAppliedEvent) EventName() Name { return TransitionApplied }

func (e TransitionAppliedEvent) Validate() error {
	if e.NavigationID == "" || e.Name == "" {
		return invalid(TransitionApplied, "navigation_id and name are required")
	}
	if e.DurationMs < 0 {
		return invalid(TransitionApplied, "duration_ms must be >= 0")
	}
	return nil
}

type LifecycleEvent struct {
	From         string `json:"from"`
	To           string `json:"to"`
	NavigationID string `json:"navigation_id,omitempty"`
}

func (LifecycleEvent) EventName() Name { return LifecycleChanged }
func (LifecycleEvent) Validate() error { return nil }

// ---------------------------------------------------------------------------
// Decoding at the adapter boundary
// ---------------------------------------------------------------------------

// required lists the JSON keys that must be present for each consumed event.
// A missing key is an error rather than a silent zero value.
var required = map[Name][]string{
	NavigationStart:     {"to_path"},
	NavigationSwapped:   {"new_path"},
	BackForward:         {"new_path"},
	ReducedMotionChange: {"reduced"},
	OnlineChange:        {"online"},
	VisibilityChange:    {"visible"},
	OrientationChange:   {"orientation"},
	ConnectionChange:    {"effective_type"},
	BatteryChange:       {"available"},
	SupportChange:       {"supported"},
	UncaughtError:       {"message"},
}

// Decode parses raw JSON into the payload type registered for name. Unknown
// fields, missing required fields and failed validation are all rejected.
func Decode(name Name, data []byte) (Payload, error) {
	var p Payload
	switch name {
	case NavigationStart:
		p = &NavigationStartEvent{}
	case NavigationSwapped:
		p = &NavigationSwappedEvent{}
	case NavigationLoaded:
		p = &NavigationLoadedEvent{}
	case BackForward:
		p = &BackForwardEvent{}
	case ReducedMotionChange:
		p = &ReducedMotionEvent{}
	case OnlineChange:
		p = &OnlineEvent{}
	case VisibilityChange:
		p = &VisibilityEvent{}
	case OrientationChange:
		p = &OrientationEvent{}
	case ConnectionChange:
		p = &ConnectionEvent{}
	case BatteryChange:
		p = &BatteryEvent{}
	case SupportChange:
		p = &SupportEvent{}
	case UncaughtError:
		p = &UncaughtErrorEvent{}
	default:
		return nil, fmt.Errorf("%w: %q is not a consumed event", ErrInvalidPayload, name)
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		data = []byte("{}")
	}

	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, invalid(name, "body must be a JSON object: %v", err)
	}
	for _, k := range required[name] {
		if _, ok := keys[k]; !ok {
			return nil, invalid(name, "missing field %q", k)
		}
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(p); err != nil {
		return nil, invalid(name, "%v", err)
	}

	// Dereference so subscribers always see value types.
	var out Payload
	switch v := p.(type) {
	case *NavigationStartEvent:
		out = *v
	case *NavigationSwappedEvent:
		out = *v
	case *NavigationLoadedEvent:
		out = *v
	case *BackForwardEvent:
		out = *v
	case *ReducedMotionEvent:
		out = *v
	case *OnlineEvent:
		out = *v
	case *VisibilityEvent:
		out = *v
	case *OrientationEvent:
		out = *v
	case *ConnectionEvent:
		out = *v
	case *BatteryEvent:
		out = *v
	case *SupportEvent:
		out = *v
	case *UncaughtErrorEvent:
		out = *v
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}
