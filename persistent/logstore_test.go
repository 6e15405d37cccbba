package persistent_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sushantsondhi/raft-col733/common"
	"github.com/sushantsondhi/raft-col733/persistent"
)

func newLogStore(t *testing.T) *persistent.DbLogStore {
	t.Helper()
	path := t.TempDir() + "/log.db"
	store, err := persistent.CreateDbLogStore(path)
	require.NoError(t, err)
	t.Cleanup(func() {
		store.Close()
		os.Remove(path)
	})
	return store
}

func TestLogStore_AppendAndGet(t *testing.T) {
	store := newLogStore(t)

	futures := store.Append([]common.LogEntry{
		{Index: 1, Term: 1, Payload: []byte("entry1")},
		{Index: 2, Term: 1, Payload: []byte("entry2")},
	})
	for _, f := range futures {
		_, err := f.Wait(context.Background())
		require.NoError(t, err)
	}

	entry, err := store.Get(1)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, []byte("entry1"), entry.Payload)

	entry, err = store.Get(99)
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestLogStore_LastEntryAndNextIndex(t *testing.T) {
	store := newLogStore(t)

	_, ok := store.LastEntry()
	assert.False(t, ok)
	assert.Equal(t, common.LogIndex(1), store.GetNextIndex())

	store.Append([]common.LogEntry{{Index: 1, Term: 1}, {Index: 2, Term: 2}})

	last, ok := store.LastEntry()
	require.True(t, ok)
	assert.Equal(t, common.LogIndex(2), last.Index)
	assert.Equal(t, common.LogIndex(3), store.GetNextIndex())
}

func TestLogStore_Contains(t *testing.T) {
	store := newLogStore(t)
	store.Append([]common.LogEntry{{Index: 1, Term: 5}})

	assert.True(t, store.Contains(common.TermIndex{Term: 0, Index: common.NoIndex}))
	assert.True(t, store.Contains(common.TermIndex{Term: 5, Index: 1}))
	assert.False(t, store.Contains(common.TermIndex{Term: 6, Index: 1}))
	assert.False(t, store.Contains(common.TermIndex{Term: 5, Index: 2}))
}

func TestLogStore_TruncateAfter(t *testing.T) {
	store := newLogStore(t)
	store.Append([]common.LogEntry{
		{Index: 1, Term: 1},
		{Index: 2, Term: 1},
		{Index: 3, Term: 2},
	})

	require.NoError(t, store.TruncateAfter(1))

	assert.Equal(t, common.LogIndex(2), store.GetNextIndex())
	entry, _ := store.Get(2)
	assert.Nil(t, entry)
	entry, _ = store.Get(1)
	assert.NotNil(t, entry)
}

func TestLogStore_CommitIndex(t *testing.T) {
	store := newLogStore(t)
	assert.Equal(t, common.NoIndex, store.GetLastCommittedIndex())

	require.NoError(t, store.SetLastCommittedIndex(3))
	assert.Equal(t, common.LogIndex(3), store.GetLastCommittedIndex())
}
