package prefs

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/large-farva/transition-engine/internal/events"
	"github.com/large-farva/transition-engine/internal/motion"
	"github.com/large-farva/transition-engine/internal/store"
)

func ptr[T any](v T) *T { return &v }

func open(t *testing.T, storage store.Storage) (*Store, *events.Bus) {
	t.Helper()
	bus := events.NewBus(zaptest.NewLogger(t))
	s := Open(zaptest.NewLogger(t), bus, storage)
	t.Cleanup(s.Destroy)
	return s, bus
}

func TestOpen_DefaultsWhenEmpty(t *testing.T) {
	s, _ := open(t, store.NewMemory())
	assert.Equal(t, Defaults(), s.Get())
	assert.Equal(t, DefaultAccessibility(), s.Accessibility())
}

func TestOpen_MergesPartialRecord(t *testing.T) {
	mem := store.NewMemory()
	require.NoError(t, mem.Save(store.KeyTransitionPreferences, []byte(`{"intensity":"enhanced","soundEffects":true}`)))
	require.NoError(t, mem.Save(store.KeyAccessibilityPreferences, []byte(`{"keyboardNavigation":false}`)))

	s, _ := open(t, mem)
	got := s.Get()
	assert.Equal(t, motion.Enhanced, got.Intensity)
	assert.True(t, got.SoundEffects)
	assert.True(t, got.RespectReducedMotion, "missing keys keep their defaults")
	assert.True(t, got.AdaptToPerformance)
	assert.Nil(t, got.CustomDurationMs)

	a := s.Accessibility()
	assert.False(t, a.KeyboardNavigation)
	assert.True(t, a.FocusManagement)
}

func TestOpen_CorruptRecordFallsBackToDefaults(t *testing.T) {
	mem := store.NewMemory()
	require.NoError(t, mem.Save(store.KeyTransitionPreferences, []byte(`{"soundEffects":true,"intensity":"wild"}`)))

	s, _ := open(t, mem)
	assert.Equal(t, Defaults(), s.Get())
}

func TestUpdate_PersistsAndAnnouncesChangedKeysOnly(t *testing.T) {
	mem := store.NewMemory()
	s, bus := open(t, mem)

	var published []events.PreferencesChangedEvent
	events.On(bus, events.PreferencesChanged, func(e events.PreferencesChangedEvent) {
		published = append(published, e)
	})
	var local []Change
	s.OnChange(func(c Change) { local = append(local, c) })

	changes, err := s.Update(Partial{
		Intensity:        ptr(motion.Reduced),
		SoundEffects:     ptr(false), // unchanged
		CustomDurationMs: ptr(180),
	})
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, Change{Key: "intensity", OldValue: motion.Normal, NewValue: motion.Reduced}, changes[0])
	assert.Equal(t, Change{Key: "customDuration", OldValue: nil, NewValue: 180}, changes[1])
	assert.Equal(t, changes, published)
	assert.Equal(t, changes, local)

	raw, err := mem.Load(store.KeyTransitionPreferences)
	require.NoError(t, err)
	var persisted map[string]any
	require.NoError(t, json.Unmarshal(raw, &persisted))
	assert.Equal(t, "reduced", persisted["intensity"])
	assert.Equal(t, 180.0, persisted["customDuration"])
	assert.Equal(t, true, persisted["respectReducedMotion"], "the full record is written")

	changes, err = s.Update(Partial{Intensity: ptr(motion.Reduced)})
	require.NoError(t, err)
	assert.Empty(t, changes)
	assert.Len(t, published, 2, "no-op writes are not announced")

	changes, err = s.Update(Partial{ClearCustomDuration: true})
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Nil(t, s.Get().CustomDurationMs)
}

func TestUpdate_Validation(t *testing.T) {
	s, _ := open(t, store.NewMemory())
	_, err := s.Update(Partial{Intensity: ptr(motion.Intensity(9))})
	assert.Error(t, err)
	_, err = s.Update(Partial{CustomDurationMs: ptr(-1)})
	assert.Error(t, err)
	assert.Equal(t, Defaults(), s.Get())
}

func TestUpdate_StorageFailureKeepsInMemoryValue(t *testing.T) {
	mem := store.NewMemory()
	mem.FailSaves = true
	s, _ := open(t, mem)

	changes, err := s.Update(Partial{DebugMode: ptr(true)})
	assert.Error(t, err)
	assert.Len(t, changes, 1)
	assert.True(t, s.Get().DebugMode)
}

func TestGet_ReturnsCopy(t *testing.T) {
	s, _ := open(t, store.NewMemory())
	_, err := s.Update(Partial{CustomDurationMs: ptr(250)})
	require.NoError(t, err)

	p := s.Get()
	*p.CustomDurationMs = 1
	assert.Equal(t, 250, *s.Get().CustomDurationMs)
}

func TestReducedMotionSignalOverridesIntensity(t *testing.T) {
	mem := store.NewMemory()
	s, bus := open(t, mem)

	var keys []string
	s.OnChange(func(c Change) { keys = append(keys, c.Key) })

	require.NoError(t, bus.Publish(events.ReducedMotionEvent{Reduced: true}))
	assert.Equal(t, motion.Minimal, s.Get().Intensity)
	assert.True(t, s.ReducedMotionActive())
	assert.Equal(t, []string{"intensity"}, keys)

	raw, err := mem.Load(store.KeyTransitionPreferences)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"intensity":"minimal"`)

	require.NoError(t, bus.Publish(events.ReducedMotionEvent{Reduced: false}))
	assert.Equal(t, motion.Normal, s.Get().Intensity)
	assert.False(t, s.ReducedMotionActive())
}

func TestReducedMotionSignalIgnoredWhenNotRespected(t *testing.T) {
	s, bus := open(t, store.NewMemory())
	_, err := s.Update(Partial{RespectReducedMotion: ptr(false), Intensity: ptr(motion.Enhanced)})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(events.ReducedMotionEvent{Reduced: true}))
	assert.Equal(t, motion.Enhanced, s.Get().Intensity)
	assert.True(t, s.SystemReducedMotion())
	assert.Equal(t, motion.Enhanced, s.EffectiveIntensity())
}

func TestEffectiveIntensity(t *testing.T) {
	t.Run("reduced motion wins over any recommendation", func(t *testing.T) {
		s, bus := open(t, store.NewMemory())
		s.SetRecommender(func() motion.Intensity { return motion.Enhanced })
		require.NoError(t, bus.Publish(events.ReducedMotionEvent{Reduced: true}))
		_, err := s.Update(Partial{Intensity: ptr(motion.Enhanced)})
		require.NoError(t, err)
		assert.Equal(t, motion.Minimal, s.EffectiveIntensity())
	})

	t.Run("accessibility record requests reduced motion", func(t *testing.T) {
		s, _ := open(t, store.NewMemory())
		a := s.Accessibility()
		a.ReducedMotion = true
		_, err := s.UpdateAccessibility(a)
		require.NoError(t, err)
		assert.Equal(t, motion.Minimal, s.EffectiveIntensity())
	})

	t.Run("adapting takes the more conservative tier", func(t *testing.T) {
		s, _ := open(t, store.NewMemory())
		s.SetRecommender(func() motion.Intensity { return motion.Reduced })
		assert.Equal(t, motion.Reduced, s.EffectiveIntensity())

		s.SetRecommender(func() motion.Intensity { return motion.Enhanced })
		assert.Equal(t, motion.Normal, s.EffectiveIntensity())
	})

	t.Run("not adapting uses the stored tier", func(t *testing.T) {
		s, _ := open(t, store.NewMemory())
		s.SetRecommender(func() motion.Intensity { return motion.Minimal })
		_, err := s.Update(Partial{AdaptToPerformance: ptr(false)})
		require.NoError(t, err)
		assert.Equal(t, motion.Normal, s.EffectiveIntensity())
	})
}

func TestUpdateAccessibility(t *testing.T) {
	mem := store.NewMemory()
	s, _ := open(t, mem)

	a := s.Accessibility()
	a.FocusManagement = false
	changes, err := s.UpdateAccessibility(a)
	require.NoError(t, err)
	assert.Equal(t, []Change{{Key: "accessibility.focusManagement", OldValue: true, NewValue: false}}, changes)

	raw, err := mem.Load(store.KeyAccessibilityPreferences)
	require.NoError(t, err)
	assert.JSONEq(t, `{"reducedMotion":false,"screenReaderAnnouncements":true,"focusManagement":false,"keyboardNavigation":true}`, string(raw))

	changes, err = s.UpdateAccessibility(a)
	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestDestroy(t *testing.T) {
	s, bus := open(t, store.NewMemory())
	s.Destroy()
	s.Destroy()
	assert.Equal(t, 0, bus.Listeners(events.ReducedMotionChange))

	require.NoError(t, bus.Publish(events.ReducedMotionEvent{Reduced: true}))
	assert.Equal(t, motion.Normal, s.Get().Intensity)
}
