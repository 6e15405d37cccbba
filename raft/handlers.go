package raft

import (
	"context"
	"time"

	"go.uber.org/multierr"

	"github.com/sushantsondhi/raft-col733/common"
)

// RequestVote implements the RequestVote RPC handler,
// generalized from RaftServer.RequestVote
// (raft-col733's raft/raft.go) with the shouldWithholdVotes guard and
// explicit vote persistence ordering: persist before the reply that
// reveals the vote is ever sent.
func (c *ServerCore) RequestVote(req *common.RequestVoteRequest) (*common.RequestVoteReply, error) {
	if err := c.lifecycle.AssertRunning(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if req.GroupId != c.config.GroupId {
		return nil, common.NewGroupMismatchError()
	}
	// A candidate that has already been removed from the configuration
	// (and isn't mid-bootstrap as a new member) is told to shut down
	// rather than left to keep retrying elections it can never win,
	// matching Ratis's shouldSendShutdown check.
	shouldShutdown := !c.state.confView.Contains(req.CandidateId) && !c.state.confView.IsBootstrapping(req.CandidateId)
	if req.CandidateTerm < c.state.currentTerm {
		return &common.RequestVoteReply{Term: c.state.currentTerm, VoteGranted: false, ShouldShutdown: shouldShutdown}, nil
	}
	if c.shouldWithholdVotesLocked(req.CandidateId) {
		return &common.RequestVoteReply{Term: c.state.currentTerm, VoteGranted: false, ShouldShutdown: shouldShutdown}, nil
	}

	granted := false
	if c.state.recognizeCandidateLocked(req.CandidateId, req.CandidateTerm) &&
		c.state.isLogUpToDateLocked(req.CandidateLastEntry) {
		c.state.setVotedForLocked(&req.CandidateId)
		c.changeToFollowerLocked()
		granted = true
	}
	if err := c.state.persistIfChangedLocked(); err != nil {
		return nil, err
	}
	return &common.RequestVoteReply{Term: c.state.currentTerm, VoteGranted: granted, ShouldShutdown: shouldShutdown && !granted}, nil
}

// validAppendEntrySequence checks entries form a strictly increasing,
// contiguous run of indices starting at previousIndex+1 with no entry
// term above the leader's own, the malformed-request rejection.
func validAppendEntrySequence(previousIndex common.LogIndex, entries []common.LogEntry, leaderTerm common.Term) bool {
	expected := previousIndex + 1
	for _, e := range entries {
		if e.Index != expected || e.Term > leaderTerm {
			return false
		}
		expected++
	}
	return true
}

// AppendEntries implements AppendEntries handler: leader
// recognition, log-consistency check, truncate-and-append, and commit
// index advancement bounded by what was actually appended. Grounded on
// RaftServer.AppendEntries (raft-col733's raft/raft.go),
// generalized to the Term/Index consistency-check pair and the
// InProgressSnapshot-free follower path.
func (c *ServerCore) AppendEntries(req *common.AppendEntriesRequest) (*common.AppendEntriesReply, error) {
	if err := c.lifecycle.AssertRunningOrStarting(); err != nil {
		return nil, err
	}
	c.mu.Lock()

	if req.GroupId != c.config.GroupId {
		c.mu.Unlock()
		return nil, common.NewGroupMismatchError()
	}
	if !validAppendEntrySequence(req.Previous.Index, req.Entries, req.LeaderTerm) {
		reply := &common.AppendEntriesReply{Term: c.state.currentTerm, FollowerId: c.self, Result: common.AppendMalformed}
		c.mu.Unlock()
		return reply, nil
	}
	if req.LeaderTerm < c.state.currentTerm {
		reply := &common.AppendEntriesReply{Term: c.state.currentTerm, FollowerId: c.self, Result: common.AppendNotLeader}
		c.mu.Unlock()
		return reply, nil
	}

	if !c.state.recognizeLeaderLocked(req.LeaderId, req.LeaderTerm) {
		reply := &common.AppendEntriesReply{Term: c.state.currentTerm, FollowerId: c.self, Result: common.AppendNotLeader}
		c.state.persistIfChangedLocked()
		c.mu.Unlock()
		return reply, nil
	}
	c.changeToFollowerLocked()
	c.lastLeaderContact = time.Now()
	if c.lifecycle.Current() == StateStarting && !req.Initializing {
		c.lifecycle.TransitionToRunning()
	}

	for peer, index := range req.CommitInfos {
		c.commitInfo.Update(peer, index)
	}

	if req.Previous.Index != common.NoIndex && !c.state.log.Contains(req.Previous) && !c.state.snapshotBoundaryMatchesLocked(req.Previous) {
		c.state.persistIfChangedLocked()
		// Suggest the follower's own next-usable index as a fast
		// backtrack hint rather than making the leader walk down one
		// index per round trip.
		hint := c.state.log.GetNextIndex()
		if req.Previous.Index < hint {
			hint = req.Previous.Index
		}
		reply := &common.AppendEntriesReply{
			Term: c.state.currentTerm,
			FollowerId: c.self,
			FollowerCommit: c.state.log.GetLastCommittedIndex(),
			NextIndex: hint,
			Result: common.AppendInconsistency,
		}
		c.mu.Unlock()
		return reply, nil
	}

	if err := c.state.log.TruncateAfter(req.Previous.Index); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	futures := c.state.log.Append(req.Entries)
	c.state.foldConfigurationLocked(req.Entries)

	lastNewIndex := req.Previous.Index + common.LogIndex(len(req.Entries))
	if req.LeaderCommit > c.state.log.GetLastCommittedIndex() {
		newCommit := req.LeaderCommit
		if newCommit > lastNewIndex {
			newCommit = lastNewIndex
		}
		if err := c.state.log.SetLastCommittedIndex(newCommit); err != nil {
			c.mu.Unlock()
			return nil, err
		}
	}
	if err := c.state.persistIfChangedLocked(); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	term := c.state.currentTerm
	commitIndex := c.state.log.GetLastCommittedIndex()
	c.mu.Unlock()

	for _, f := range futures {
		if _, err := f.Wait(context.Background()); err != nil {
			return nil, err
		}
	}
	c.triggerApply()

	return &common.AppendEntriesReply{
		Term: term,
		FollowerId: c.self,
		FollowerCommit: commitIndex,
		NextIndex: lastNewIndex + 1,
		Result: common.AppendSuccess,
	}, nil
}

// InstallSnapshot implements two install modes: a follower
// applying leader-pushed chunks directly (chunk-mode), and a follower
// asking its own state machine to fetch a snapshot out of band
// (notify-mode), guarded by inProgressSnapshotState so only one install
// is ever outstanding, Open Question resolution.
func (c *ServerCore) InstallSnapshot(req *common.InstallSnapshotRequest) (*common.InstallSnapshotReply, error) {
	if err := c.lifecycle.AssertRunningOrStarting(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	if req.GroupId != c.config.GroupId {
		c.mu.Unlock()
		return nil, common.NewGroupMismatchError()
	}
	if req.LeaderTerm < c.state.currentTerm {
		reply := &common.InstallSnapshotReply{Term: c.state.currentTerm, Result: common.InstallNotLeader}
		c.mu.Unlock()
		return reply, nil
	}
	if !c.state.recognizeLeaderLocked(req.LeaderId, req.LeaderTerm) {
		reply := &common.InstallSnapshotReply{Term: c.state.currentTerm, Result: common.InstallNotLeader}
		c.state.persistIfChangedLocked()
		c.mu.Unlock()
		return reply, nil
	}
	// A leader-id we no longer recognize as a member (and that isn't
	// mid-bootstrap) gets told its view of the configuration is stale
	// rather than being allowed to keep pushing snapshots forever.
	if !c.state.confView.Contains(req.LeaderId) && !c.state.confView.IsBootstrapping(req.LeaderId) {
		reply := &common.InstallSnapshotReply{Term: c.state.currentTerm, Result: common.InstallConfMismatch}
		c.state.persistIfChangedLocked()
		c.mu.Unlock()
		return reply, nil
	}
	c.changeToFollowerLocked()
	c.lastLeaderContact = time.Now()
	term := c.state.currentTerm
	c.mu.Unlock()

	if req.Chunk != nil {
		return c.installSnapshotChunk(term, req.Chunk)
	}
	if req.Notification != nil {
		return c.installSnapshotNotify(term, *req.Notification)
	}
	return &common.InstallSnapshotReply{Term: term, Result: common.InstallNotLeader}, nil
}

func (c *ServerCore) installSnapshotChunk(term common.Term, chunk *common.SnapshotChunk) (*common.InstallSnapshotReply, error) {
	c.mu.RLock()
	store := c.state.snapshots
	c.mu.RUnlock()

	if err := store.InstallChunk(chunk); err != nil {
		return nil, err
	}
	if !chunk.Done {
		return &common.InstallSnapshotReply{Term: term, Result: common.InstallSuccess, ChunkIndex: chunk.ChunkIndex}, nil
	}

	ti := common.TermIndex{Term: chunk.Term, Index: chunk.Index}
	c.stateMachine.Pause()
	if err := c.reloadStateMachine(ti); err != nil {
		return nil, err
	}
	return &common.InstallSnapshotReply{Term: term, Result: common.InstallSuccess, SnapshotIndex: ti.Index}, nil
}

func (c *ServerCore) installSnapshotNotify(term common.Term, note common.SnapshotNotification) (*common.InstallSnapshotReply, error) {
	from := common.TermIndex{Term: note.FirstAvailableTerm, Index: note.FirstAvailableIndex}
	if latest, err := c.state.snapshots.GetLatestInstalledSnapshot(); err == nil && latest != nil && latest.Index >= from.Index {
		return &common.InstallSnapshotReply{Term: term, Result: common.InstallAlreadyInstalled, SnapshotIndex: latest.Index}, nil
	}
	if !c.inProgressSnapshot.tryStart(from) {
		if cur, ok := c.inProgressSnapshot.current(); ok {
			return &common.InstallSnapshotReply{Term: term, Result: common.InstallInProgress, SnapshotIndex: cur.Index}, nil
		}
	}
	go c.completeNotifyInstall(from)
	return &common.InstallSnapshotReply{Term: term, Result: common.InstallSuccess}, nil
}

// completeNotifyInstall runs the out-of-band fetch the state machine
// performs on its own, bounded by InstallSnapshotTimeout so
// inProgressSnapshot can never wedge open, Open Question
// resolution.
func (c *ServerCore) completeNotifyInstall(from common.TermIndex) {
	defer c.inProgressSnapshot.clear()
	ctx, cancel := context.WithTimeout(context.Background(), c.config.InstallSnapshotTimeout)
	defer cancel()
	ti, err := c.stateMachine.NotifyInstallSnapshotFromLeader(from).Wait(ctx)
	if err != nil {
		c.log.WithError(err).Warn("snapshot install from leader failed")
		return
	}
	c.stateMachine.Pause()
	if err := c.reloadStateMachine(ti); err != nil {
		c.log.WithError(err).Error("failed to reload state machine after snapshot install")
	}
}

// reloadStateMachine records the installed snapshot and raises the
// commit index to it if it was behind, then reloads the state machine;
// the log itself is not truncated. Callers are responsible
// for pausing the state machine first, Open Question
// resolution on pause-before-reload ordering.
func (c *ServerCore) reloadStateMachine(ti common.TermIndex) error {
	c.mu.Lock()
	recordErr := c.state.snapshots.RecordInstalled(ti)
	var commitErr error
	if recordErr == nil && ti.Index > c.state.log.GetLastCommittedIndex() {
		commitErr = c.state.log.SetLastCommittedIndex(ti.Index)
	}
	c.mu.Unlock()
	return multierr.Combine(recordErr, commitErr, c.stateMachine.Reload())
}
