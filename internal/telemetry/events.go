// Package telemetry defines the envelopes that flow over the WebSocket
// connection between transitiond and its clients. Every message carries a
// type, a timestamp and the component that produced it.
package telemetry

import (
	"time"

	"github.com/large-farva/transition-engine/internal/events"
	"github.com/large-farva/transition-engine/internal/logging"
)

// EventType identifies the kind of WebSocket message.
type EventType string

const (
	EventHeartbeat EventType = "heartbeat"
	EventState     EventType = "state"
	EventLog       EventType = "log"
	// EventBus wraps an event published on the transition core's bus.
	EventBus EventType = "event"
)

// Event is the base envelope shared by every message.
type Event struct {
	Type      EventType `json:"type"`
	TS        string    `json:"ts"`
	Component string    `json:"component"`
}

// NowTS returns the current UTC time as an RFC 3339 nano string, matching the
// timestamp format used across all messages.
func NowTS() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func envelope(t EventType, component string) Event {
	return Event{Type: t, TS: NowTS(), Component: component}
}

// Heartbeat is sent periodically so clients can detect connectivity and
// track uptime without polling.
type Heartbeat struct {
	Event
	State         string `json:"state"`
	Fallback      string `json:"fallback"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

func NewHeartbeat(state, fallback string, uptime time.Duration) Heartbeat {
	return Heartbeat{
		Event:         envelope(EventHeartbeat, "transitiond"),
		State:         state,
		Fallback:      fallback,
		UptimeSeconds: int64(uptime.Seconds()),
	}
}

// StateTransition is emitted whenever the daemon's lifecycle state moves
// (e.g. IDLE -> PREPARING).
type StateTransition struct {
	Event
	From         string `json:"from"`
	To           string `json:"to"`
	NavigationID string `json:"navigation_id,omitempty"`
}

func NewStateTransition(from, to, navigationID string) StateTransition {
	return StateTransition{Event: envelope(EventState, "transitiond"), From: from, To: to, NavigationID: navigationID}
}

// LogLine carries a human-readable log message at a severity level.
type LogLine struct {
	Event
	Level   string `json:"level"`
	Message string `json:"message"`
}

func NewLogLine(l logging.Line) LogLine {
	return LogLine{
		Event:   Event{Type: EventLog, TS: l.TS.Format(time.RFC3339Nano), Component: l.Component},
		Level:   l.Level,
		Message: l.Message,
	}
}

// BusEvent forwards one payload from the core's bus, named as it was
// published.
type BusEvent struct {
	Event
	Name events.Name    `json:"name"`
	Data events.Payload `json:"data"`
}

func NewBusEvent(p events.Payload) BusEvent {
	return BusEvent{Event: envelope(EventBus, "core"), Name: p.EventName(), Data: p}
}

// Kind is the filter key of a message: the bus event name for wrapped
// events, the envelope type otherwise.
func Kind(v any) string {
	switch m := v.(type) {
	case BusEvent:
		return string(m.Name)
	case Heartbeat:
		return string(m.Type)
	case StateTransition:
		return string(m.Type)
	case LogLine:
		return string(m.Type)
	}
	return ""
}
