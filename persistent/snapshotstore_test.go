package persistent_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sushantsondhi/raft-col733/common"
	"github.com/sushantsondhi/raft-col733/persistent"
)

func newSnapshotStore(t *testing.T) *persistent.DbSnapshotStore {
	t.Helper()
	path := t.TempDir() + "/snap.db"
	store, err := persistent.CreateDbSnapshotStore(path)
	require.NoError(t, err)
	t.Cleanup(func() {
		store.Close()
		os.Remove(path)
	})
	return store
}

func TestSnapshotStore_EmptyByDefault(t *testing.T) {
	store := newSnapshotStore(t)

	snap, err := store.GetLatestSnapshot()
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestSnapshotStore_InstallChunkMarksLatestOnDone(t *testing.T) {
	store := newSnapshotStore(t)

	require.NoError(t, store.InstallChunk(&common.SnapshotChunk{Term: 3, Index: 10, ChunkIndex: 0, Data: []byte("a"), Done: false}))
	snap, err := store.GetLatestSnapshot()
	require.NoError(t, err)
	assert.Nil(t, snap)

	require.NoError(t, store.InstallChunk(&common.SnapshotChunk{Term: 3, Index: 10, ChunkIndex: 1, Data: []byte("b"), Done: true}))
	snap, err = store.GetLatestSnapshot()
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, common.TermIndex{Term: 3, Index: 10}, *snap)
}

func TestSnapshotStore_RecordInstalled(t *testing.T) {
	store := newSnapshotStore(t)
	ti := common.TermIndex{Term: 2, Index: 7}
	require.NoError(t, store.RecordInstalled(ti))

	latest, err := store.GetLatestInstalledSnapshot()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, ti, *latest)
}
