package raft

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sushantsondhi/raft-col733/common"
)

// becomeLeaderLocked installs tc's core as leader of the given term,
// mirroring what onElectionWon does, without needing a real election.
func becomeLeaderLocked(tc *testCore, term common.Term) {
	tc.core.mu.Lock()
	tc.core.role.Stop()
	tc.core.state.currentTerm = term
	self := tc.core.self
	tc.core.state.leaderId = &self
	tc.core.role = RoleState{Name: RoleLeader, Leader: newLeaderStateLocked(tc.core, term)}
	tc.core.role.Leader.mu.Lock()
	tc.core.role.Leader.ready = true
	tc.core.role.Leader.mu.Unlock()
	tc.core.mu.Unlock()
}

func TestHandleSetConfiguration_RejectsNonLeader(t *testing.T) {
	self := common.NewPeerId()
	peer := common.NewPeerId()
	tc := newTestCore(t, self, peer)

	future := tc.core.handleSetConfiguration(&common.ClientRequest{NewPeers: []common.PeerId{self, peer}})
	reply, err := future.Wait(context.Background())
	require.NoError(t, err)
	assert.False(t, reply.Success)
	assert.True(t, common.IsKind(reply.Err, common.KindNotLeader))
}

func TestHandleSetConfiguration_RejectsWhenAlreadyJoint(t *testing.T) {
	self := common.NewPeerId()
	peer := common.NewPeerId()
	newPeer := common.NewPeerId()
	tc := newTestCore(t, self, peer)
	becomeLeaderLocked(tc, 1)

	tc.core.mu.Lock()
	tc.core.state.confView.Staging = []common.PeerId{self, peer, newPeer}
	tc.core.mu.Unlock()

	future := tc.core.handleSetConfiguration(&common.ClientRequest{NewPeers: []common.PeerId{self, newPeer}})
	reply, err := future.Wait(context.Background())
	require.NoError(t, err)
	assert.False(t, reply.Success)
	assert.True(t, common.IsKind(reply.Err, common.KindReconfigurationInProgress))
}

func TestHandleSetConfiguration_AppendsJointEntry(t *testing.T) {
	self := common.NewPeerId()
	peer := common.NewPeerId()
	newPeer := common.NewPeerId()
	tc := newTestCore(t, self, peer)
	becomeLeaderLocked(tc, 3)

	tc.core.handleSetConfiguration(&common.ClientRequest{NewPeers: []common.PeerId{self, peer, newPeer}})

	tc.core.mu.RLock()
	nextIndex := tc.core.state.log.GetNextIndex()
	tc.core.mu.RUnlock()
	require.Greater(t, int(nextIndex), 1)

	entry, err := tc.log.Get(nextIndex - 1)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, common.ConfigurationEntryType, entry.Type)
	assert.ElementsMatch(t, []common.PeerId{self, peer, newPeer}, entry.StagingPeers)
	assert.ElementsMatch(t, []common.PeerId{self, peer}, entry.Peers)
}

func TestWatchSatisfied_CommittedLevel(t *testing.T) {
	self := common.NewPeerId()
	peer := common.NewPeerId()
	tc := newTestCore(t, self, peer)
	require.NoError(t, tc.log.SetLastCommittedIndex(5))

	assert.True(t, tc.core.watchSatisfied(5, common.ReplicationCommitted))
	assert.False(t, tc.core.watchSatisfied(6, common.ReplicationCommitted))
}

func TestWatchSatisfied_MajorityAppliedRequiresQuorumAck(t *testing.T) {
	self := common.NewPeerId()
	p2 := common.NewPeerId()
	p3 := common.NewPeerId()
	tc := newTestCore(t, self, p2, p3)

	tc.core.mu.Lock()
	tc.core.lastApplied = 10
	tc.core.mu.Unlock()
	require.NoError(t, tc.log.SetLastCommittedIndex(10))

	// Nobody else has reported catching up: no majority yet (self alone
	// is not a majority of 3).
	assert.False(t, tc.core.watchSatisfied(10, common.ReplicationMajorityApplied))

	tc.core.commitInfo.Update(p2, 10)
	assert.True(t, tc.core.watchSatisfied(10, common.ReplicationMajorityApplied))
}

func TestWatchSatisfied_AllAppliedRequiresEveryPeer(t *testing.T) {
	self := common.NewPeerId()
	p2 := common.NewPeerId()
	tc := newTestCore(t, self, p2)

	tc.core.mu.Lock()
	tc.core.lastApplied = 4
	tc.core.mu.Unlock()
	require.NoError(t, tc.log.SetLastCommittedIndex(4))

	assert.False(t, tc.core.watchSatisfied(4, common.ReplicationAllApplied))
	tc.core.commitInfo.Update(p2, 4)
	assert.True(t, tc.core.watchSatisfied(4, common.ReplicationAllApplied))
}
