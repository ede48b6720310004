package cache

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemFileStore(t *testing.T) (*FileStore, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	s, err := NewFileStore(fs, "/var/cache/querybuilder", 0)
	require.NoError(t, err)
	return s, fs
}

func TestFileStoreGetSet(t *testing.T) {
	s, fs := newMemFileStore(t)

	require.NoError(t, s.Set("query:users:abc", []byte("payload"), 0))
	assert.True(t, s.Has("query:users:abc"))

	v, ok := s.Get("query:users:abc")
	require.True(t, ok)
	assert.Equal(t, []byte("payload"), v)

	infos, err := afero.ReadDir(fs, "/var/cache/querybuilder")
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.NotContains(t, infos[0].Name(), ":")

	_, ok = s.Get("query:users:other")
	assert.False(t, ok)
}

func TestFileStoreExpiry(t *testing.T) {
	s, _ := newMemFileStore(t)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Set("query:users:a", []byte("a"), time.Second))
	require.NoError(t, s.Set("query:users:b", []byte("b"), time.Hour))
	require.NoError(t, s.Set("query:users:c", []byte("c"), time.Second))

	now = now.Add(time.Minute)
	assert.False(t, s.Has("query:users:a"))
	assert.Equal(t, 1, s.Prune())
	assert.True(t, s.Has("query:users:b"))
}

func TestFileStoreInvalidation(t *testing.T) {
	s, _ := newMemFileStore(t)
	require.NoError(t, s.Set("query:users:1", []byte("1"), 0))
	require.NoError(t, s.Set("query:orders:1", []byte("2"), 0))

	s.InvalidatePattern("query:users:*")
	assert.False(t, s.Has("query:users:1"))
	assert.True(t, s.Has("query:orders:1"))

	s.Invalidate("query:orders:1")
	assert.False(t, s.Has("query:orders:1"))

	require.NoError(t, s.Set("query:orders:2", []byte("2"), 0))
	s.Clear()
	assert.False(t, s.Has("query:orders:2"))
}

func TestFileStoreBacksAdapter(t *testing.T) {
	s, _ := newMemFileStore(t)
	a := NewAdapter(s)

	require.NoError(t, a.Save("query:users:k", sampleResult(), time.Minute))
	got, hit, err := a.Lookup("query:users:k")
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, sampleResult(), got)

	assert.True(t, a.InvalidateTable("users"))
	_, hit, err = a.Lookup("query:users:k")
	require.NoError(t, err)
	assert.False(t, hit)
}
