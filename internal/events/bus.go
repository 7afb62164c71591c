// Package events is the publish/subscribe channel between the transition
// core components and the host adapter. Every payload is a typed value with
// a Validate method, checked before any subscriber sees it.
//
// Delivery is synchronous and in registration order. The bus is meant to be
// driven from a single goroutine (the host loop) and is not safe for
// concurrent use.
package events

import (
	"fmt"

	"go.uber.org/zap"
)

// Handler receives a validated payload.
type Handler func(Payload)

// Subscription is one registration on the bus. Unsubscribe removes exactly
// this registration and may be called any number of times.
type Subscription struct {
	bus     *Bus
	name    Name // empty for wildcard subscriptions
	id      uint64
	handler Handler
	active  bool
}

// Unsubscribe detaches the handler. Safe to call on a nil or already
// detached subscription.
func (s *Subscription) Unsubscribe() {
	if s == nil || !s.active {
		return
	}
	s.active = false
	s.bus.remove(s)
}

// Active reports whether the handler is still attached.
func (s *Subscription) Active() bool { return s != nil && s.active }

// Bus fans payloads out to subscribers keyed by event name.
type Bus struct {
	log      *zap.Logger
	subs     map[Name][]*Subscription
	wildcard []*Subscription
	nextID   uint64

	// OnPanic, when set, is told about a handler that panicked. The panic
	// is recovered either way so one bad listener cannot break delivery.
	OnPanic func(name Name, recovered any)
}

// NewBus creates an empty bus.
func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		log:  logger.Named("bus"),
		subs: make(map[Name][]*Subscription),
	}
}

// Subscribe registers fn for events named name.
func (b *Bus) Subscribe(name Name, fn Handler) *Subscription {
	b.nextID++
	s := &Subscription{bus: b, name: name, id: b.nextID, handler: fn, active: true}
	b.subs[name] = append(b.subs[name], s)
	return s
}

// SubscribeAll registers fn for every event published on the bus.
func (b *Bus) SubscribeAll(fn Handler) *Subscription {
	b.nextID++
	s := &Subscription{bus: b, id: b.nextID, handler: fn, active: true}
	b.wildcard = append(b.wildcard, s)
	return s
}

// On is a typed convenience over Subscribe.
func On[T Payload](b *Bus, name Name, fn func(T)) *Subscription {
	return b.Subscribe(name, func(p Payload) {
		v, ok := p.(T)
		if !ok {
			b.log.Warn("payload type mismatch",
				zap.String("event", string(name)),
				zap.String("type", fmt.Sprintf("%T", p)))
			return
		}
		fn(v)
	})
}

// Publish validates p and delivers it to every subscriber of its name, then
// to wildcard subscribers. Invalid payloads are never delivered.
func (b *Bus) Publish(p Payload) error {
	if p == nil {
		return fmt.Errorf("%w: nil payload", ErrInvalidPayload)
	}
	if err := p.Validate(); err != nil {
		b.log.Warn("rejected payload", zap.String("event", string(p.EventName())), zap.Error(err))
		return err
	}
	name := p.EventName()

	// Snapshot so handlers may subscribe or unsubscribe during delivery.
	targets := make([]*Subscription, 0, len(b.subs[name])+len(b.wildcard))
	targets = append(targets, b.subs[name]...)
	targets = append(targets, b.wildcard...)

	for _, s := range targets {
		if !s.active {
			continue
		}
		b.deliver(name, s, p)
	}
	return nil
}

func (b *Bus) deliver(name Name, s *Subscription, p Payload) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event handler panicked", zap.String("event", string(name)), zap.Any("panic", r))
			if b.OnPanic != nil {
				b.OnPanic(name, r)
			}
		}
	}()
	s.handler(p)
}

// Listeners reports how many handlers are attached for name, counting
// wildcard subscribers too.
func (b *Bus) Listeners(name Name) int {
	return len(b.subs[name]) + len(b.wildcard)
}

// Total reports how many handlers are attached across all names.
func (b *Bus) Total() int {
	n := len(b.wildcard)
	for _, subs := range b.subs {
		n += len(subs)
	}
	return n
}

func (b *Bus) remove(s *Subscription) {
	if s.name == "" {
		b.wildcard = removeSub(b.wildcard, s)
		return
	}
	subs := removeSub(b.subs[s.name], s)
	if len(subs) == 0 {
		delete(b.subs, s.name)
		return
	}
	b.subs[s.name] = subs
}

func removeSub(subs []*Subscription, target *Subscription) []*Subscription {
	for i, s := range subs {
		if s == target {
			return append(subs[:i:i], subs[i+1:]...)
		}
	}
	return subs
}

// Group collects subscriptions so a component can detach everything it
// attached with one call.
type Group struct {
	subs []*Subscription
}

// Add records s and returns it.
func (g *Group) Add(s *Subscription) *Subscription {
	g.subs = append(g.subs, s)
	return s
}

// Close unsubscribes every recorded subscription. Calling it twice is a
// no-op the second time.
func (g *Group) Close() {
	for _, s := range g.subs {
		s.Unsubscribe()
	}
	g.subs = nil
}

// Len reports how many subscriptions are recorded.
func (g *Group) Len() int { return len(g.subs) }
