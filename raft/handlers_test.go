package raft

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sushantsondhi/raft-col733/common"
)

func TestAppendEntries_RejectsSameTermConflictingLeader(t *testing.T) {
	self := common.NewPeerId()
	leaderA := common.NewPeerId()
	leaderB := common.NewPeerId()
	tc := newTestCore(t, self, leaderA, leaderB)

	reply, err := tc.core.AppendEntries(&common.AppendEntriesRequest{
		GroupId: tc.core.config.GroupId,
		LeaderId: leaderA,
		LeaderTerm: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, common.AppendSuccess, reply.Result)

	tc.core.mu.RLock()
	leaderId := tc.core.state.leaderId
	tc.core.mu.RUnlock()
	require.NotNil(t, leaderId)
	assert.Equal(t, leaderA, *leaderId)

	// Same term, a different leader claims the seat: must be rejected
	// rather than silently recognized.
	reply, err = tc.core.AppendEntries(&common.AppendEntriesRequest{
		GroupId: tc.core.config.GroupId,
		LeaderId: leaderB,
		LeaderTerm: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, common.AppendNotLeader, reply.Result)

	tc.core.mu.RLock()
	leaderId = tc.core.state.leaderId
	tc.core.mu.RUnlock()
	require.NotNil(t, leaderId)
	assert.Equal(t, leaderA, *leaderId, "the conflicting leader must not have been recognized")
}

func TestInstallSnapshot_RejectsSameTermConflictingLeader(t *testing.T) {
	self := common.NewPeerId()
	leaderA := common.NewPeerId()
	leaderB := common.NewPeerId()
	tc := newTestCore(t, self, leaderA, leaderB)

	_, err := tc.core.AppendEntries(&common.AppendEntriesRequest{
		GroupId: tc.core.config.GroupId,
		LeaderId: leaderA,
		LeaderTerm: 1,
	})
	require.NoError(t, err)

	reply, err := tc.core.InstallSnapshot(&common.InstallSnapshotRequest{
		GroupId: tc.core.config.GroupId,
		LeaderId: leaderB,
		LeaderTerm: 1,
		Notification: &common.SnapshotNotification{FirstAvailableTerm: 1, FirstAvailableIndex: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, common.InstallNotLeader, reply.Result)
}

func TestInstallSnapshot_RejectsNonMemberLeader(t *testing.T) {
	self := common.NewPeerId()
	member := common.NewPeerId()
	stranger := common.NewPeerId() // never added as a peer of this group
	tc := newTestCore(t, self, member)

	reply, err := tc.core.InstallSnapshot(&common.InstallSnapshotRequest{
		GroupId: tc.core.config.GroupId,
		LeaderId: stranger,
		LeaderTerm: 5,
		Notification: &common.SnapshotNotification{FirstAvailableTerm: 5, FirstAvailableIndex: 10},
	})
	require.NoError(t, err)
	assert.Equal(t, common.InstallConfMismatch, reply.Result)
}

func TestAppendEntries_AcceptsSnapshotBoundary(t *testing.T) {
	self := common.NewPeerId()
	leader := common.NewPeerId()
	tc := newTestCore(t, self, leader)

	// Simulate this follower having already installed a snapshot at
	// (term=2, index=5): the physical log holds nothing at index 5.
	tc.snap.setInstalled(common.TermIndex{Term: 2, Index: 5})

	reply, err := tc.core.AppendEntries(&common.AppendEntriesRequest{
		GroupId: tc.core.config.GroupId,
		LeaderId: leader,
		LeaderTerm: 2,
		Previous: common.TermIndex{Term: 2, Index: 5},
		Entries: []common.LogEntry{{Term: 2, Index: 6, Type: common.StateMachineEntryType}},
		LeaderCommit: 6,
	})
	require.NoError(t, err)
	assert.Equal(t, common.AppendSuccess, reply.Result, "an AppendEntries anchored exactly at the installed snapshot boundary must be accepted")

	entry, err := tc.log.Get(6)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, common.LogIndex(6), entry.Index)
}

func TestAppendEntries_RejectsUnknownPrevious(t *testing.T) {
	self := common.NewPeerId()
	leader := common.NewPeerId()
	tc := newTestCore(t, self, leader)

	reply, err := tc.core.AppendEntries(&common.AppendEntriesRequest{
		GroupId: tc.core.config.GroupId,
		LeaderId: leader,
		LeaderTerm: 1,
		Previous: common.TermIndex{Term: 1, Index: 9},
		Entries: []common.LogEntry{{Term: 1, Index: 10, Type: common.StateMachineEntryType}},
		LeaderCommit: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, common.AppendInconsistency, reply.Result, "no snapshot and no matching log entry: must report inconsistency")
}
