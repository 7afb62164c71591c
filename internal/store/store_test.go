package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLite_SaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "transitions.db")
	s, err := OpenSQLite(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Load(KeyTransitionPreferences)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Save(KeyTransitionPreferences, []byte(`{"intensity":"reduced"}`)))
	require.NoError(t, s.Save(KeyTransitionPreferences, []byte(`{"intensity":"normal"}`)))
	require.NoError(t, s.Save(KeyErrorLog, []byte(`[]`)))

	got, err := s.Load(KeyTransitionPreferences)
	require.NoError(t, err)
	assert.JSONEq(t, `{"intensity":"normal"}`, string(got))

	keys, err := s.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{KeyErrorLog, KeyTransitionPreferences}, keys)
	assert.Equal(t, path, s.Path())
}

func TestSQLite_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transitions.db")
	s, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.Save(KeyAccessibilityPreferences, []byte(`{"reducedMotion":true}`)))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Load(KeyAccessibilityPreferences)
	require.NoError(t, err)
	assert.JSONEq(t, `{"reducedMotion":true}`, string(got))
}

func TestMemory(t *testing.T) {
	m := NewMemory()
	_, err := m.Load("x")
	assert.ErrorIs(t, err, ErrNotFound)

	buf := []byte("v1")
	require.NoError(t, m.Save("x", buf))
	buf[0] = 'X'
	got, err := m.Load("x")
	require.NoError(t, err)
	assert.Equal(t, "v1", string(got))

	m.FailSaves = true
	assert.Error(t, m.Save("x", []byte("v2")))
}
