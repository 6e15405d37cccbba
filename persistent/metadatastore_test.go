package persistent_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sushantsondhi/raft-col733/common"
	"github.com/sushantsondhi/raft-col733/persistent"
)

func newMetadataStore(t *testing.T) persistent.PStore {
	t.Helper()
	path := t.TempDir() + "/state.db"
	store, err := persistent.NewPStore(path)
	require.NoError(t, err)
	t.Cleanup(func() {
		store.Close()
		os.Remove(path)
	})
	return store
}

func TestPStore_LoadMetadataDefaults(t *testing.T) {
	store := newMetadataStore(t)

	term, votedFor, err := store.LoadMetadata()
	require.NoError(t, err)
	assert.Equal(t, common.Term(0), term)
	assert.Nil(t, votedFor)
}

func TestPStore_PersistAndReload(t *testing.T) {
	store := newMetadataStore(t)
	id := common.NewPeerId()

	require.NoError(t, store.PersistMetadata(5, &id))

	term, votedFor, err := store.LoadMetadata()
	require.NoError(t, err)
	assert.Equal(t, common.Term(5), term)
	require.NotNil(t, votedFor)
	assert.Equal(t, id, *votedFor)
}

func TestPStore_PersistNilVotedFor(t *testing.T) {
	store := newMetadataStore(t)
	id := common.NewPeerId()
	require.NoError(t, store.PersistMetadata(1, &id))
	require.NoError(t, store.PersistMetadata(2, nil))

	term, votedFor, err := store.LoadMetadata()
	require.NoError(t, err)
	assert.Equal(t, common.Term(2), term)
	assert.Nil(t, votedFor)
}
