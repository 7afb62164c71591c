// Package prefs owns the user's transition and accessibility preferences.
// Records are loaded once, merged onto defaults key by key, and written back
// in full on every change.
package prefs

import (
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/large-farva/transition-engine/internal/events"
	"github.com/large-farva/transition-engine/internal/motion"
	"github.com/large-farva/transition-engine/internal/store"
)

// Preferences is the persisted transition-preferences record.
type Preferences struct {
	Intensity            motion.Intensity `json:"intensity"`
	RespectReducedMotion bool             `json:"respectReducedMotion"`
	AdaptToPerformance   bool             `json:"adaptToPerformance"`
	CustomDurationMs     *int             `json:"customDuration,omitempty"`
	SoundEffects         bool             `json:"soundEffects"`
	HapticFeedback       bool             `json:"hapticFeedback"`
	DebugMode            bool             `json:"debugMode"`
}

func Defaults() Preferences {
	return Preferences{
		Intensity:            motion.Normal,
		RespectReducedMotion: true,
		AdaptToPerformance:   true,
	}
}

func (p Preferences) clone() Preferences {
	if p.CustomDurationMs != nil {
		v := *p.CustomDurationMs
		p.CustomDurationMs = &v
	}
	return p
}

// Accessibility is the persisted accessibility-preferences record.
type Accessibility struct {
	ReducedMotion             bool `json:"reducedMotion"`
	ScreenReaderAnnouncements bool `json:"screenReaderAnnouncements"`
	FocusManagement           bool `json:"focusManagement"`
	KeyboardNavigation        bool `json:"keyboardNavigation"`
}

func DefaultAccessibility() Accessibility {
	return Accessibility{
		ScreenReaderAnnouncements: true,
		FocusManagement:           true,
		KeyboardNavigation:        true,
	}
}

// Partial is a set of preference changes. Nil fields are left alone.
type Partial struct {
	Intensity            *motion.Intensity `json:"intensity,omitempty"`
	RespectReducedMotion *bool             `json:"respectReducedMotion,omitempty"`
	AdaptToPerformance   *bool             `json:"adaptToPerformance,omitempty"`
	CustomDurationMs     *int              `json:"customDuration,omitempty"`
	ClearCustomDuration  bool              `json:"clearCustomDuration,omitempty"`
	SoundEffects         *bool             `json:"soundEffects,omitempty"`
	HapticFeedback       *bool             `json:"hapticFeedback,omitempty"`
	DebugMode            *bool             `json:"debugMode,omitempty"`
}

func (p Partial) apply(to Preferences) (Preferences, error) {
	if p.Intensity != nil {
		if !p.Intensity.Valid() {
			return to, fmt.Errorf("invalid intensity %d", *p.Intensity)
		}
		to.Intensity = *p.Intensity
	}
	if p.RespectReducedMotion != nil {
		to.RespectReducedMotion = *p.RespectReducedMotion
	}
	if p.AdaptToPerformance != nil {
		to.AdaptToPerformance = *p.AdaptToPerformance
	}
	if p.ClearCustomDuration {
		to.CustomDurationMs = nil
	}
	if p.CustomDurationMs != nil {
		if *p.CustomDurationMs < 0 {
			return to, errors.New("customDuration must be >= 0")
		}
		v := *p.CustomDurationMs
		to.CustomDurationMs = &v
	}
	if p.SoundEffects != nil {
		to.SoundEffects = *p.SoundEffects
	}
	if p.HapticFeedback != nil {
		to.HapticFeedback = *p.HapticFeedback
	}
	if p.DebugMode != nil {
		to.DebugMode = *p.DebugMode
	}
	return to, nil
}

// Change is one key whose value actually changed.
type Change = events.PreferencesChangedEvent

func optInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func diff(old, next Preferences) []Change {
	var out []Change
	add := func(key string, o, n any) {
		out = append(out, Change{Key: key, OldValue: o, NewValue: n})
	}
	if old.Intensity != next.Intensity {
		add("intensity", old.Intensity, next.Intensity)
	}
	if old.RespectReducedMotion != next.RespectReducedMotion {
		add("respectReducedMotion", old.RespectReducedMotion, next.RespectReducedMotion)
	}
	if old.AdaptToPerformance != next.AdaptToPerformance {
		add("adaptToPerformance", old.AdaptToPerformance, next.AdaptToPerformance)
	}
	if o, n := optInt(old.CustomDurationMs), optInt(next.CustomDurationMs); o != n {
		add("customDuration", o, n)
	}
	if old.SoundEffects != next.SoundEffects {
		add("soundEffects", old.SoundEffects, next.SoundEffects)
	}
	if old.HapticFeedback != next.HapticFeedback {
		add("hapticFeedback", old.HapticFeedback, next.HapticFeedback)
	}
	if old.DebugMode != next.DebugMode {
		add("debugMode", old.DebugMode, next.DebugMode)
	}
	return out
}

func diffAccessibility(old, next Accessibility) []Change {
	var out []Change
	add := func(key string, o, n bool) {
		if o != n {
			out = append(out, Change{Key: "accessibility." + key, OldValue: o, NewValue: n})
		}
	}
	add("reducedMotion", old.ReducedMotion, next.ReducedMotion)
	add("screenReaderAnnouncements", old.ScreenReaderAnnouncements, next.ScreenReaderAnnouncements)
	add("focusManagement", old.FocusManagement, next.FocusManagement)
	add("keyboardNavigation", old.KeyboardNavigation, next.KeyboardNavigation)
	return out
}

// Store owns both preference records.
type Store struct {
	log     *zap.Logger
	bus     *events.Bus
	storage store.Storage

	prefs         Preferences
	access        Accessibility
	systemReduced bool
	recommend     func() motion.Intensity

	changes events.Signal[Change]
	subs    events.Group
}

// Open loads both records from storage, falling back to defaults for
// anything missing or unreadable, and starts following the system
// reduced-motion signal.
func Open(logger *zap.Logger, bus *events.Bus, storage store.Storage) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		log:     logger.Named("prefs"),
		bus:     bus,
		storage: storage,
		prefs:   Defaults(),
		access:  DefaultAccessibility(),
	}
	loadRecord(s, store.KeyTransitionPreferences, &s.prefs)
	loadRecord(s, store.KeyAccessibilityPreferences, &s.access)
	if !s.prefs.Intensity.Valid() {
		s.log.Warn("stored intensity out of range, using default", zap.Int("intensity", int(s.prefs.Intensity)))
		s.prefs.Intensity = Defaults().Intensity
	}
	s.subs.Add(events.On(bus, events.ReducedMotionChange, s.handleReducedMotion))
	return s
}

// loadRecord decodes the stored record onto a copy of dst, which already
// holds defaults, so keys absent from the record keep their default values.
// dst is only replaced when the whole record decodes.
func loadRecord[T any](s *Store, key string, dst *T) {
	if s.storage == nil {
		return
	}
	raw, err := s.storage.Load(key)
	if errors.Is(err, store.ErrNotFound) {
		return
	}
	if err != nil {
		s.log.Warn("load preferences", zap.String("key", key), zap.Error(err))
		return
	}
	merged := *dst
	if err := json.Unmarshal(raw, &merged); err != nil {
		s.log.Warn("decode preferences, using defaults", zap.String("key", key), zap.Error(err))
		return
	}
	*dst = merged
}

func (s *Store) save(key string, v any) error {
	if s.storage == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.storage.Save(key, raw); err != nil {
		return fmt.Errorf("persist %s: %w", key, err)
	}
	return nil
}

// SetRecommender installs the live performance recommendation consulted by
// EffectiveIntensity.
func (s *Store) SetRecommender(fn func() motion.Intensity) { s.recommend = fn }

// Get returns a copy of the current preferences.
func (s *Store) Get() Preferences { return s.prefs.clone() }

func (s *Store) Accessibility() Accessibility { return s.access }

// SystemReducedMotion is the last reduced-motion signal from the host.
func (s *Store) SystemReducedMotion() bool { return s.systemReduced }

// ReducedMotionActive reports whether reduced motion is both requested and
// respected.
func (s *Store) ReducedMotionActive() bool {
	return s.prefs.RespectReducedMotion && (s.systemReduced || s.access.ReducedMotion)
}

// OnChange registers fn for every changed key.
func (s *Store) OnChange(fn func(Change)) (remove func()) { return s.changes.Add(fn) }

// Update merges p into the current preferences. Only keys whose values
// actually change are persisted and announced. The in-memory update stands
// even when persisting fails; the error is returned for the caller to
// surface.
func (s *Store) Update(p Partial) ([]Change, error) {
	next, err := p.apply(s.prefs.clone())
	if err != nil {
		return nil, err
	}
	return s.commit(next)
}

func (s *Store) commit(next Preferences) ([]Change, error) {
	changes := diff(s.prefs, next)
	if len(changes) == 0 {
		return nil, nil
	}
	s.prefs = next
	err := s.save(store.KeyTransitionPreferences, s.prefs)
	if err != nil {
		s.log.Warn("save preferences", zap.Error(err))
	}
	s.announce(changes)
	return changes, err
}

// UpdateAccessibility replaces the accessibility record.
func (s *Store) UpdateAccessibility(a Accessibility) ([]Change, error) {
	changes := diffAccessibility(s.access, a)
	if len(changes) == 0 {
		return nil, nil
	}
	s.access = a
	err := s.save(store.KeyAccessibilityPreferences, s.access)
	if err != nil {
		s.log.Warn("save accessibility preferences", zap.Error(err))
	}
	s.announce(changes)
	return changes, err
}

func (s *Store) announce(changes []Change) {
	for _, c := range changes {
		s.log.Debug("preference changed", zap.String("key", c.Key), zap.Any("old", c.OldValue), zap.Any("new", c.NewValue))
		s.changes.Emit(c)
		if err := s.bus.Publish(c); err != nil {
			s.log.Warn("publish preference change", zap.Error(err))
		}
	}
}

// handleReducedMotion overrides the stored intensity directly when the user
// has asked to follow the system setting.
func (s *Store) handleReducedMotion(e events.ReducedMotionEvent) {
	s.systemReduced = e.Reduced
	if !s.prefs.RespectReducedMotion {
		return
	}
	next := s.prefs.clone()
	next.Intensity = motion.Normal
	if e.Reduced {
		next.Intensity = motion.Minimal
	}
	if _, err := s.commit(next); err != nil {
		s.log.Warn("reduced motion override", zap.Error(err))
	}
}

// EffectiveIntensity is the intensity transitions should actually use.
func (s *Store) EffectiveIntensity() motion.Intensity {
	if s.ReducedMotionActive() {
		return motion.Minimal
	}
	if s.prefs.AdaptToPerformance && s.recommend != nil {
		return motion.MinIntensity(s.prefs.Intensity, s.recommend())
	}
	return s.prefs.Intensity
}

// Destroy detaches from the bus and drops change listeners. Safe to call
// more than once.
func (s *Store) Destroy() {
	s.subs.Close()
	s.changes.Reset()
}
