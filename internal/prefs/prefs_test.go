package prefs

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	v, err := s.Get(ctx, KeySelectedGroup)
	require.NoError(t, err)
	require.Empty(t, v)

	require.NoError(t, s.Set(ctx, KeySelectedGroup, "g1"))
	require.NoError(t, s.Set(ctx, KeySelectedGroup, "g2"))
	v, err = s.Get(ctx, KeySelectedGroup)
	require.NoError(t, err)
	require.Equal(t, "g2", v)

	require.NoError(t, s.Delete(ctx, KeySelectedGroup))
	v, err = s.Get(ctx, KeySelectedGroup)
	require.NoError(t, err)
	require.Empty(t, v)
}

func TestStorePersistsAcrossOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "prefs.db")

	s, err := Open(path)
	require.NoError(t, err)
	dark, err := s.Bool(ctx, KeyDarkMode)
	require.NoError(t, err)
	require.False(t, dark)
	require.NoError(t, s.SetBool(ctx, KeyDarkMode, true))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	dark, err = s.Bool(ctx, KeyDarkMode)
	require.NoError(t, err)
	require.True(t, dark)
}
