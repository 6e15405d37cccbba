package raft

import (
	"context"
	"time"

	"github.com/sushantsondhi/raft-col733/common"
)

// SubmitClientRequestAsync is the entry point for every client-facing
// operation: dispatches by ClientRequestType, resolving
// WRITE through the log/commit/apply pipeline, READ/STALE_READ/WATCH
// directly against the state machine or commit tracking. Grounded on
// RaftServer.ClientRequest (raft-col733's raft/raft.go),
// which only ever supported a single blocking write path; the
// dispatch-by-type shape here is new, modeled on Ratis's
// submitClientRequestAsync.
func (c *ServerCore) SubmitClientRequestAsync(req *common.ClientRequest) *common.Future[*common.ClientReply] {
	if err := c.lifecycle.AssertRunning(); err != nil {
		return common.Completed(errorReply(err))
	}
	if req.GroupId != c.config.GroupId {
		return common.Completed(errorReply(common.NewGroupMismatchError()))
	}

	switch req.Type {
	case common.ReadRequest:
		return c.handleRead(req)
	case common.StaleReadRequest:
		return c.handleStaleRead(req)
	case common.WatchRequest:
		return c.handleWatch(req)
	case common.SetConfigurationRequest:
		return c.handleSetConfiguration(req)
	default:
		return c.handleWrite(req)
	}
}

func errorReply(err error) *common.ClientReply {
	if re, ok := err.(*common.RaftError); ok {
		return &common.ClientReply{Success: false, Err: re}
	}
	return &common.ClientReply{Success: false, Err: common.NewStateMachineError(err)}
}

// handleWrite implements appendTransaction: dedup via
// RetryCache, run StartTransaction, append under the peer mutex, and
// let the apply loop resolve the returned future once the entry
// commits and applies.
func (c *ServerCore) handleWrite(req *common.ClientRequest) *common.Future[*common.ClientReply] {
	q := c.retryCache.Query(req.ClientId, req.CallId)
	if q.IsRetry {
		return q.Entry.Reply
	}

	c.mu.RLock()
	role := c.role
	knownPeers := c.state.confView.AllPeers()
	leaderId := c.state.leaderId
	c.mu.RUnlock()

	if role.Name != RoleLeader {
		reply := errorReply(common.NewNotLeaderError(leaderId, knownPeers))
		c.retryCache.Complete(q.Entry.Key, reply, false)
		return common.Completed(reply)
	}
	if !role.Leader.isReady() {
		reply := errorReply(common.NewLeaderNotReadyError())
		c.retryCache.Complete(q.Entry.Key, reply, false)
		return common.Completed(reply)
	}

	txCtx, err := c.stateMachine.StartTransaction(req)
	if err != nil {
		reply := errorReply(common.NewStateMachineError(err))
		c.retryCache.Complete(q.Entry.Key, reply, false)
		c.stepDown("state machine rejected transaction at pre-append stage")
		return common.Completed(reply)
	}

	c.mu.Lock()
	if c.role.Name != RoleLeader {
		c.mu.Unlock()
		reply := errorReply(common.NewNotLeaderError(c.state.leaderId, knownPeers))
		c.retryCache.Complete(q.Entry.Key, reply, false)
		return common.Completed(reply)
	}
	if !c.role.Leader.isReady() {
		c.mu.Unlock()
		reply := errorReply(common.NewLeaderNotReadyError())
		c.retryCache.Complete(q.Entry.Key, reply, false)
		return common.Completed(reply)
	}
	term := c.state.currentTerm
	index := c.state.log.GetNextIndex()
	entry := common.LogEntry{
		Term: term,
		Index: index,
		Type: common.StateMachineEntryType,
		ClientId: req.ClientId,
		CallId: req.CallId,
		Payload: txCtx.LogEntryData,
	}
	txCtx.Entry = &entry
	futures := c.state.log.Append([]common.LogEntry{entry})
	pendingFuture := c.pending.Add(index, term, txCtx)
	leader := c.role.Leader
	c.mu.Unlock()

	leader.signalAll()
	// A leader with no followers has no appender reply to advance its
	// commit index, so recompute it here as well.
	c.onMatchIndexAdvanced(c.self, index)

	go func() {
		for _, f := range futures {
			f.Wait(context.Background())
		}
	}()

	go func() {
		reply, _ := pendingFuture.Wait(context.Background())
		c.retryCache.Complete(q.Entry.Key, reply, reply != nil && reply.Success)
	}()

	return q.Entry.Reply
}

// handleRead answers a linearizable READ against the leader's current
// state machine without a lease fence: it trusts the in-memory role
// check rather than confirming (via a round of AppendEntries or a
// leader-lease clock) that no other node could have been elected since
// this peer last heard from a majority. A leader that has been
// partitioned away and already superseded can therefore keep serving
// stale READs until it learns of a higher term. Adding a lease fence is out of
// scope here; a caller that cannot tolerate that window should use
// STALE_READ with an explicit MinIndex instead.
func (c *ServerCore) handleRead(req *common.ClientRequest) *common.Future[*common.ClientReply] {
	c.mu.RLock()
	if c.role.Name != RoleLeader {
		leaderId := c.state.leaderId
		peers := c.state.confView.AllPeers()
		c.mu.RUnlock()
		return common.Completed(errorReply(common.NewNotLeaderError(leaderId, peers)))
	}
	if !c.role.Leader.isReady() {
		c.mu.RUnlock()
		return common.Completed(errorReply(common.NewLeaderNotReadyError()))
	}
	c.mu.RUnlock()
	payload, err := c.stateMachine.Query(req.Payload)
	if err != nil {
		return common.Completed(errorReply(common.NewStateMachineError(err)))
	}
	c.mu.RLock()
	infos := c.commitInfo.Snapshot(c.self, c.state.log.GetLastCommittedIndex())
	c.mu.RUnlock()
	return common.Completed(&common.ClientReply{Success: true, Payload: payload, CommitInfos: infos})
}

func (c *ServerCore) handleStaleRead(req *common.ClientRequest) *common.Future[*common.ClientReply] {
	c.mu.RLock()
	commitIndex := c.state.log.GetLastCommittedIndex()
	c.mu.RUnlock()
	if commitIndex < req.MinIndex {
		return common.Completed(errorReply(common.NewStaleReadError()))
	}
	payload, err := c.stateMachine.QueryStale(req.Payload, req.MinIndex)
	if err != nil {
		return common.Completed(errorReply(common.NewStateMachineError(err)))
	}
	return common.Completed(&common.ClientReply{Success: true, Payload: payload})
}

// handleWatch resolves once the requested index reaches the requested
// replication level, leader-only like every other write-path
// operation since only the leader can tell whether a majority has
// replicated. Implemented by short-interval polling rather than a
// dedicated notification list, since WATCH is expected to be rare
// relative to writes; it must not consume from applySignal, which is
// reserved for the apply loop's own wakeups.
func (c *ServerCore) handleWatch(req *common.ClientRequest) *common.Future[*common.ClientReply] {
	c.mu.RLock()
	if c.role.Name != RoleLeader {
		leaderId := c.state.leaderId
		peers := c.state.confView.AllPeers()
		c.mu.RUnlock()
		return common.Completed(errorReply(common.NewNotLeaderError(leaderId, peers)))
	}
	if !c.role.Leader.isReady() {
		c.mu.RUnlock()
		return common.Completed(errorReply(common.NewLeaderNotReadyError()))
	}
	c.mu.RUnlock()

	future := common.NewFuture[*common.ClientReply]()
	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			if c.watchSatisfied(req.WatchIndex, req.WatchLevel) {
				c.mu.RLock()
				commitIndex := c.state.log.GetLastCommittedIndex()
				infos := c.commitInfo.Snapshot(c.self, commitIndex)
				c.mu.RUnlock()
				future.Complete(&common.ClientReply{Success: true, LogIndex: req.WatchIndex, CommitInfos: infos})
				return
			}
			select {
			case <-c.applyDone:
				future.Complete(errorReply(common.NewNotReadyError()))
				return
			case <-ticker.C:
			}
		}
	}()
	return future
}

// watchSatisfied evaluates one replication level against the current
// state: COMMITTED checks the leader's own commit index, MAJORITY_APPLIED
// and ALL_APPLIED approximate per-peer apply progress using commit-index
// gossip (CommitInfoCache) as a proxy, since there is no dedicated
// per-peer applied-index channel distinct from commit-index gossip.
func (c *ServerCore) watchSatisfied(index common.LogIndex, level common.ReplicationLevel) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch level {
	case common.ReplicationMajorityApplied:
		if c.lastApplied < index {
			return false
		}
		infos := c.commitInfo.Snapshot(c.self, c.state.log.GetLastCommittedIndex())
		votes := make(map[common.PeerId]bool, len(infos))
		for peer, idx := range infos {
			votes[peer] = idx >= index
		}
		return c.state.confView.HasMajority(votes)
	case common.ReplicationAllApplied:
		if c.lastApplied < index {
			return false
		}
		infos := c.commitInfo.Snapshot(c.self, c.state.log.GetLastCommittedIndex())
		for _, peer := range c.state.confView.AllPeers() {
			if infos[peer] < index {
				return false
			}
		}
		return true
	default: // ReplicationCommitted
		return c.state.log.GetLastCommittedIndex() >= index
	}
}

// handleSetConfiguration begins a joint-consensus reconfiguration:
// leader-only, rejected if one is already in flight, otherwise appends a
// configuration entry carrying both the current stable set (Peers) and
// the requested target set (StagingPeers). A configuration takes effect
// for commit/vote purposes as soon as it is appended, not once it
// commits, so confView is marked joint and any brand-new member's
// appender is started here, synchronously with the append, rather than
// waiting for applyConfigurationEntry (raft/apply.go) to see the entry
// commit under the old, non-joint majority alone. applyConfigurationEntry
// auto-finalizes the transition once this entry commits.
func (c *ServerCore) handleSetConfiguration(req *common.ClientRequest) *common.Future[*common.ClientReply] {
	c.mu.Lock()
	if c.role.Name != RoleLeader {
		leaderId := c.state.leaderId
		peers := c.state.confView.AllPeers()
		c.mu.Unlock()
		return common.Completed(errorReply(common.NewNotLeaderError(leaderId, peers)))
	}
	if !c.role.Leader.isReady() {
		c.mu.Unlock()
		return common.Completed(errorReply(common.NewLeaderNotReadyError()))
	}
	if c.state.confView.IsJoint() {
		c.mu.Unlock()
		return common.Completed(errorReply(common.NewReconfigurationInProgressError()))
	}
	term := c.state.currentTerm
	index := c.state.log.GetNextIndex()
	oldPeers := c.state.confView.Peers
	entry := common.LogEntry{
		Term: term,
		Index: index,
		Type: common.ConfigurationEntryType,
		Peers: oldPeers,
		StagingPeers: req.NewPeers,
	}
	futures := c.state.log.Append([]common.LogEntry{entry})
	c.state.confView = ConfigurationView{Peers: oldPeers, Staging: req.NewPeers}
	leader := c.role.Leader
	nextIndex := c.state.log.GetNextIndex()
	for _, p := range req.NewPeers {
		if p != c.self && !containsPeer(oldPeers, p) {
			leader.addPeer(p, nextIndex)
		}
	}
	pendingFuture := c.pending.Add(index, term, nil)
	c.mu.Unlock()

	leader.signalAll()

	go func() {
		for _, f := range futures {
			f.Wait(context.Background())
		}
	}()

	return pendingFuture
}
