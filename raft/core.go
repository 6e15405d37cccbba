package raft

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/sushantsondhi/raft-col733/common"
)

// ServerCore is the per-peer consensus engine: one instance owns exactly
// one ServerState, one RoleState and the collaborators (Transport,
// StateMachine, LogStore/MetadataStore/SnapshotStore via ServerState)
// injected at construction. Grounded on RaftServer
// (raft-col733's raft/raft.go), restructured around the mutex-protected
// ServerState / tagged-union RoleState split instead of
// single flat struct with everything inline.
type ServerCore struct {
	self common.PeerId
	config ServerConfig

	mu sync.RWMutex
	state *ServerState
	role RoleState

	lastLeaderContact time.Time

	lifecycle *LifeCycle
	transport common.Transport
	stateMachine common.StateMachine
	retryCache *RetryCache
	commitInfo *CommitInfoCache
	pending *PendingRequests

	inProgressSnapshot inProgressSnapshotState

	lastApplied common.LogIndex

	applySignal chan struct{}
	applyDone chan struct{}

	log *logrus.Entry
}

// NewServerCore wires the collaborators together but does not start any
// background goroutine; call Start for that. Grounded on raft-col733's
// NewRaftServer constructor (raft-col733's raft/raft.go).
func NewServerCore(self common.PeerId, config ServerConfig, log common.LogStore, metadata common.MetadataStore, snapshots common.SnapshotStore, transport common.Transport, sm common.StateMachine, logger *logrus.Logger) (*ServerCore, error) {
	initialPeers := make([]common.PeerId, 0, len(config.Peers))
	for _, p := range config.Peers {
		initialPeers = append(initialPeers, p.Id)
	}
	state, err := loadServerState(log, metadata, snapshots, initialPeers)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ServerCore{
		self: self,
		config: config,
		state: state,
		lifecycle: NewLifeCycle(),
		transport: transport,
		stateMachine: sm,
		retryCache: NewRetryCache(config.RetryCacheCapacity, config.RetryCacheExpiry),
		commitInfo: NewCommitInfoCache(),
		pending: NewPendingRequests(),
		applySignal: make(chan struct{}, 1),
		applyDone: make(chan struct{}),
		log: logger.WithField("peer", self.String()),
	}, nil
}

// Start performs NEW->STARTING, begins life as a follower and starts
// the apply loop. A node with no persisted term/vote has never taken
// part in an election and has no leader to wait for, so it moves
// straight to RUNNING; a node recovering existing state stays STARTING
// until AppendEntries (req.Initializing == false) promotes it, matching
// the narrow allowance AssertRunningOrStarting grants those two RPCs.
func (c *ServerCore) Start() error {
	if !c.lifecycle.Start() {
		return common.NewNotReadyError()
	}
	c.mu.Lock()
	c.role = RoleState{Name: RoleFollower, Follower: newFollowerState(c)}
	fresh := c.state.currentTerm == 0 && c.state.votedFor == nil
	c.mu.Unlock()
	go c.applyLoop()
	if fresh {
		c.lifecycle.TransitionToRunning()
	}
	c.log.Info("server started")
	return nil
}

// Stop performs the RUNNING->CLOSING->CLOSED transition, stopping the
// active role worker and the apply loop, then closing the storage
// collaborators.
func (c *ServerCore) Stop() error {
	if !c.lifecycle.StartClosing() {
		return nil
	}
	c.mu.Lock()
	c.role.Stop()
	c.mu.Unlock()
	close(c.applyDone)
	c.pending.FailAll(common.NewNotReadyError())
	defer c.lifecycle.FinishClosing()
	return multierr.Combine(c.state.log.Close(), c.state.metadata.Close(), c.state.snapshots.Close())
}

func (c *ServerCore) triggerApply() {
	select {
	case c.applySignal <- struct{}{}:
	default:
	}
}

// shouldWithholdVotesLocked implements the leader-lease-like guard
// Ratis's RaftServerImpl.shouldWithholdVotesOnElectionTimeout names: a
// follower that has heard from its current leader inside the last
// minimum election timeout ignores an unrelated candidate's vote
// request, preventing a partitioned-then-rejoined node from disrupting
// a healthy leader.
func (c *ServerCore) shouldWithholdVotesLocked(candidate common.PeerId) bool {
	if c.state.leaderId == nil || *c.state.leaderId == candidate {
		return false
	}
	return time.Since(c.lastLeaderContact) < c.config.MinElectionTimeout
}

// changeToFollowerLocked stops whatever role worker is active and
// installs a fresh follower timer, unless already a follower in which
// case it just resets its timer. It does not persist metadata; callers
// flush with persistIfChangedLocked.
func (c *ServerCore) changeToFollowerLocked() {
	if c.role.Name == RoleFollower {
		if c.role.Follower != nil {
			c.role.Follower.resetTimer()
		}
		return
	}
	c.role.Stop()
	c.pending.FailAll(common.NewNotLeaderError(c.state.leaderId, c.state.confView.AllPeers()))
	c.role = RoleState{Name: RoleFollower, Follower: newFollowerState(c)}
}

// stepDownIfStale is called whenever an RPC reply reveals a higher term
// than ours: bump the term and revert to follower.
func (c *ServerCore) stepDownIfStale(term common.Term) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if term <= c.state.currentTerm {
		return
	}
	c.state.updateCurrentTermLocked(term)
	c.changeToFollowerLocked()
	c.state.persistIfChangedLocked()
}

// stepDown implements leader step-down safety fence: a state
// machine that refuses a transaction at the pre-append stage may be in
// an inconsistent state, so rather than trust it with further writes
// the leader abdicates and lets a fresh election sort out who leads
// next. Mirrors Ratis's submitStepDownEvent.
func (c *ServerCore) stepDown(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.role.Name != RoleLeader {
		return
	}
	c.log.Warnf("stepping down: %s", reason)
	c.changeToFollowerLocked()
	c.state.persistIfChangedLocked()
}

// onElectionTimeout implements convertToCandidate: bump the
// term, vote for self, and start a new election.
func (c *ServerCore) onElectionTimeout() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lifecycle.Current() != StateRunning {
		return
	}
	c.role.Stop()
	newTerm := c.state.currentTerm + 1
	c.state.updateCurrentTermLocked(newTerm)
	c.state.setVotedForLocked(&c.self)
	c.state.leaderId = nil
	if err := c.state.persistIfChangedLocked(); err != nil {
		c.log.WithError(err).Error("failed to persist candidacy")
		return
	}
	c.role = RoleState{Name: RoleCandidate, Candidate: newCandidateState(c, newTerm)}
	c.log.WithField("term", newTerm).Info("starting election")
}

// onElectionWon implements convertToLeader.
func (c *ServerCore) onElectionWon(term common.Term) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.currentTerm != term || c.role.Name != RoleCandidate {
		return
	}
	c.role.Stop()
	self := c.self
	c.state.leaderId = &self
	c.role = RoleState{Name: RoleLeader, Leader: newLeaderStateLocked(c, term)}
	c.log.WithField("term", term).Info("elected leader")
}

func (c *ServerCore) entriesFromLocked(next common.LogIndex) []common.LogEntry {
	last := c.state.log.GetNextIndex() - 1
	var out []common.LogEntry
	for i := next; i <= last; i++ {
		e, err := c.state.log.Get(i)
		if err != nil || e == nil {
			break
		}
		out = append(out, *e)
	}
	return out
}

// onMatchIndexAdvanced recomputes the commit index after an appender
// reports a new matchIndex for one peer, "never commit
// entries from a previous term merely by counting replicas" rule.
func (c *ServerCore) onMatchIndexAdvanced(peer common.PeerId, matchIndex common.LogIndex) {
	c.mu.Lock()
	if c.role.Name != RoleLeader {
		c.mu.Unlock()
		return
	}
	self := c.self
	selfLast := c.state.log.GetNextIndex() - 1
	matches := c.role.Leader.matchIndexes()
	candidate := c.state.confView.CommitIndexFor(self, selfLast, matches)
	if candidate <= c.state.log.GetLastCommittedIndex() {
		c.mu.Unlock()
		return
	}
	entry, err := c.state.log.Get(candidate)
	if err != nil || entry == nil || entry.Term != c.state.currentTerm {
		c.mu.Unlock()
		return
	}
	if err := c.state.log.SetLastCommittedIndex(candidate); err != nil {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.triggerApply()
}

// GroupInfo answers the introspection surface
func (c *ServerCore) GroupInfo() common.GroupInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return common.GroupInfo{
		Id: c.self,
		GroupId: c.config.GroupId,
		LeaderId: c.state.leaderId,
		CurrentTerm: c.state.currentTerm,
		Role: c.role.Name.String(),
		CommitInfos: c.commitInfo.Snapshot(c.self, c.state.log.GetLastCommittedIndex()),
		Peers: c.state.confView.AllPeers(),
	}
}

// inProgressSnapshotState is the CAS-guarded single-outstanding-install
// tracker resolving the notify-mode Open Question: at most one
// NotifyInstallSnapshotFromLeader can be in flight, and it is always
// cleared via defer regardless of which return path the install takes.
type inProgressSnapshotState struct {
	mu sync.Mutex
	from *common.TermIndex
}

func (s *inProgressSnapshotState) tryStart(from common.TermIndex) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.from != nil {
		return false
	}
	s.from = &from
	return true
}

func (s *inProgressSnapshotState) clear() {
	s.mu.Lock()
	s.from = nil
	s.mu.Unlock()
}

func (s *inProgressSnapshotState) current() (common.TermIndex, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.from == nil {
		return common.TermIndex{}, false
	}
	return *s.from, true
}
