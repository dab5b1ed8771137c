package kv

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "unitdata.db")
	store, err := Open(path)
	require.NoError(t, err)

	_, ok, err := store.Get("aa:bb:cc:dd:ee:01")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set("aa:bb:cc:dd:ee:01", "0000:00:1c.0"))
	require.NoError(t, store.Set("aa:bb:cc:dd:ee:01", "0000:00:1d.0"))
	require.NoError(t, store.Flush())

	value, ok, err := store.Get("aa:bb:cc:dd:ee:01")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "0000:00:1d.0", value)

	require.NoError(t, store.Delete("missing"))
	require.NoError(t, store.Close())
}

func TestStorePersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "unitdata.db")
	store, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Set("sriov-numvfs", "8"))
	require.NoError(t, store.Flush())
	require.NoError(t, store.Close())

	store, err = Open(path)
	require.NoError(t, err)
	defer store.Close()
	value, ok, err := store.Get("sriov-numvfs")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "8", value)
}
