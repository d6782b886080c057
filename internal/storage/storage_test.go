package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/keshon/datastore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) (*Storage, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "datastore.json")
	s, err := New(context.Background(), path)
	require.NoError(t, err)
	return s, path
}

func TestVolumeRoundTrip(t *testing.T) {
	s, _ := newStore(t)
	defer s.Close()

	_, ok := s.Volume("g1")
	assert.False(t, ok)

	require.NoError(t, s.SetVolume("g1", 35))
	v, ok := s.Volume("g1")
	require.True(t, ok)
	assert.Equal(t, 35, v)

	_, ok = s.Volume("g2")
	assert.False(t, ok)
}

func TestVolumeZeroIsStored(t *testing.T) {
	s, _ := newStore(t)
	defer s.Close()

	require.NoError(t, s.SetVolume("g1", 0))
	v, ok := s.Volume("g1")
	require.True(t, ok)
	assert.Zero(t, v)
}

func TestVolumeRejectsOutOfRange(t *testing.T) {
	s, _ := newStore(t)
	defer s.Close()

	assert.Error(t, s.SetVolume("g1", 101))
	assert.Error(t, s.SetVolume("g1", -1))
	_, ok := s.Volume("g1")
	assert.False(t, ok)
}

func TestVolumeSurvivesReopen(t *testing.T) {
	s, path := newStore(t)
	require.NoError(t, s.SetVolume("g1", 60))
	require.NoError(t, s.Close())

	reopened, err := New(context.Background(), path)
	require.NoError(t, err)
	defer reopened.Close()

	v, ok := reopened.Volume("g1")
	require.True(t, ok)
	assert.Equal(t, 60, v)
}

func TestCorruptRecordIsAbsent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "datastore.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"g1": {"volume": "loud"}}`), 0o644))

	s, err := New(context.Background(), path)
	require.NoError(t, err)
	defer s.Close()

	_, ok := s.Volume("g1")
	assert.False(t, ok)
	assert.Error(t, s.SetVolume("g1", 20))
}

func TestForget(t *testing.T) {
	s, _ := newStore(t)
	defer s.Close()

	require.NoError(t, s.SetVolume("g1", 10))
	require.NoError(t, s.Forget("g1"))
	_, ok := s.Volume("g1")
	assert.False(t, ok)
}

func TestForgetAfterCloseFails(t *testing.T) {
	s, _ := newStore(t)
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Forget("g1"), datastore.ErrClosed)
	assert.ErrorIs(t, s.SetVolume("g1", 10), datastore.ErrClosed)
}
