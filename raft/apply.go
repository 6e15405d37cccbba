package raft

import (
	"context"

	"github.com/google/uuid"

	"github.com/sushantsondhi/raft-col733/common"
)

// applyLoop is the single sequential applier: entries are
// handed to the state machine strictly in log order, one at a time,
// regardless of how many client requests or appenders are racing ahead
// of it. Grounded on the commitEntries goroutine
// (raft-col733's raft/raft.go UpdateCommitIndexAndApply), generalized
// from directly mutating a KVStore to going through the
// StateMachine.ApplyTransaction/StartTransaction/ApplyTransactionSerial
// pipeline.
func (c *ServerCore) applyLoop() {
	for {
		select {
		case <-c.applyDone:
			return
		case <-c.applySignal:
		}
		c.applyPending()
	}
}

func (c *ServerCore) applyPending() {
	for {
		c.mu.Lock()
		commitIndex := c.state.log.GetLastCommittedIndex()
		next := c.lastApplied + 1
		if next > commitIndex {
			c.mu.Unlock()
			return
		}
		entry, err := c.state.log.Get(next)
		if err != nil || entry == nil {
			c.mu.Unlock()
			return
		}
		leaderId := c.state.leaderId
		peers := c.state.confView.AllPeers()
		term := c.state.currentTerm
		isLeaderRole := c.role.Name == RoleLeader
		c.mu.Unlock()

		c.applyEntry(entry, isLeaderRole, term, leaderId, peers)

		c.mu.Lock()
		c.lastApplied = next
		c.mu.Unlock()

		c.stateMachine.NotifyIndexUpdate(term, next)
	}
}

func (c *ServerCore) applyEntry(entry *common.LogEntry, isLeader bool, currentTerm common.Term, leaderId *common.PeerId, knownPeers []common.PeerId) {
	switch entry.Type {
	case common.MetadataEntryType:
		return
	case common.ConfigurationEntryType:
		c.applyConfigurationEntry(entry)
		return
	}

	// Reuse the leader-local TransactionContext StartTransaction produced
	// for this entry, if this server originated it in the term that
	// committed it; otherwise synthesize one from the replicated entry,
	// as a follower applying it must.
	txCtx := c.pending.ContextFor(entry.Index, currentTerm)
	if txCtx == nil {
		txCtx = &common.TransactionContext{Entry: entry, LogEntryData: entry.Payload}
	} else {
		txCtx.Entry = entry
	}
	txCtx, err := c.stateMachine.ApplyTransactionSerial(txCtx)
	if err != nil {
		c.completeApplied(entry, isLeader, currentTerm, leaderId, knownPeers, nil, common.NewStateMachineError(err))
		return
	}
	result, err := c.stateMachine.ApplyTransaction(txCtx).Wait(context.Background())
	if err != nil {
		c.completeApplied(entry, isLeader, currentTerm, leaderId, knownPeers, nil, common.NewStateMachineError(err))
		return
	}
	if result.Err != nil {
		c.completeApplied(entry, isLeader, currentTerm, leaderId, knownPeers, nil, common.NewStateMachineError(result.Err))
		return
	}
	c.completeApplied(entry, isLeader, currentTerm, leaderId, knownPeers, result.Payload, nil)
}

// completeApplied resolves the leader-local pending request for this
// entry, if any, and unconditionally resolves the retry-cache entry so
// a retried client submission observes the true outcome.
func (c *ServerCore) completeApplied(entry *common.LogEntry, isLeader bool, currentTerm common.Term, leaderId *common.PeerId, knownPeers []common.PeerId, payload []byte, applyErr error) {
	var reply *common.ClientReply
	if applyErr != nil {
		reply = errorReply(applyErr)
	} else {
		reply = &common.ClientReply{Success: true, LogIndex: entry.Index, Payload: payload}
	}
	if isLeader {
		c.pending.CompleteUpTo(entry.Index, func(req *pendingClientRequest) *common.ClientReply {
			if req.index != entry.Index {
				return errorReply(common.NewInconsistencyError("commit index advanced past a still-pending request"))
			}
			if req.term != currentTerm {
				return errorReply(common.NewNotLeaderError(leaderId, knownPeers))
			}
			r := *reply
			r.LogIndex = req.index
			return &r
		})
	}

	if entry.ClientId != uuid.Nil {
		if e, ok := c.retryCache.Get(entry.ClientId, entry.CallId); ok {
			c.retryCache.Complete(e.Key, reply, applyErr == nil)
		}
	}
}

// applyConfigurationEntry runs when a configuration entry commits. A
// configuration takes effect for commit/vote purposes as soon as it is
// appended rather than once it commits, so confView and the appender
// set were already brought up to date at append time (see
// handleSetConfiguration/appendFinalizingConfigurationEntry in
// raft/client.go and this file); by the time an entry actually commits
// there is nothing left to update. A joint entry (StagingPeers set)
// auto-appends its own finalizing entry, the standard two-phase
// joint-consensus transition. Either phase resolves the pending
// SET_CONFIGURATION request submitted for it.
func (c *ServerCore) applyConfigurationEntry(entry *common.LogEntry) {
	c.mu.Lock()
	isLeader := c.role.Name == RoleLeader
	term := c.state.currentTerm
	joint := len(entry.StagingPeers) > 0
	c.mu.Unlock()

	if isLeader && joint {
		c.appendFinalizingConfigurationEntry(entry.Peers, entry.StagingPeers, term)
	}

	c.pending.CompleteUpTo(entry.Index, func(req *pendingClientRequest) *common.ClientReply {
		if req.index != entry.Index {
			return errorReply(common.NewInconsistencyError("commit index advanced past a still-pending configuration request"))
		}
		return &common.ClientReply{Success: true, LogIndex: entry.Index}
	})
}

// appendFinalizingConfigurationEntry appends the second half of a joint
// reconfiguration: a configuration entry naming only the new stable
// set. Marks confView non-joint and stops replicating to any peer the
// new set drops as soon as the entry is appended, not once it commits,
// the same append-time-effect rule the joint entry itself follows. It
// is skipped if this node lost leadership or term since the joint entry
// was applied, letting whichever leader is current re-derive (or
// abandon) the transition instead of two leaders racing to finalize the
// same one.
func (c *ServerCore) appendFinalizingConfigurationEntry(oldStable []common.PeerId, newStable []common.PeerId, expectedTerm common.Term) {
	c.mu.Lock()
	if c.role.Name != RoleLeader || c.state.currentTerm != expectedTerm {
		c.mu.Unlock()
		return
	}
	term := c.state.currentTerm
	index := c.state.log.GetNextIndex()
	entry := common.LogEntry{
		Term: term,
		Index: index,
		Type: common.ConfigurationEntryType,
		Peers: newStable,
	}
	c.state.log.Append([]common.LogEntry{entry})
	c.state.confView = ConfigurationView{Peers: newStable}
	leader := c.role.Leader
	self := c.self
	c.mu.Unlock()

	for _, p := range oldStable {
		if p != self && !containsPeer(newStable, p) {
			leader.removePeer(p)
		}
	}
	leader.signalAll()
}

func containsPeer(set []common.PeerId, peer common.PeerId) bool {
	for _, p := range set {
		if p == peer {
			return true
		}
	}
	return false
}
