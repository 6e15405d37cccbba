package raft

import (
	"sync"

	"github.com/sushantsondhi/raft-col733/common"
)

// LeaderState owns one appender per peer plus the commit-index
// advancement it drives Grounded on raft-col733's
// convertToLeader (raft-col733's raft/raft.go), which started a single
// broadcastAppendEntries ticker for the whole cluster; splitting into
// one long-lived appender per peer is what per-peer nextIndex
// backoff and InstallSnapshot fallback require.
type LeaderState struct {
	core *ServerCore
	term common.Term

	mu sync.Mutex
	appenders map[common.PeerId]*appender
	acked map[common.PeerId]bool
	ready bool
}

// newLeaderStateLocked builds the appender set for a newly-won term.
// Its caller (onElectionWon) already holds core.mu, so this reads
// ServerState directly rather than re-locking.
func newLeaderStateLocked(core *ServerCore, term common.Term) *LeaderState {
	l := &LeaderState{
		core: core,
		term: term,
		appenders: make(map[common.PeerId]*appender),
		acked: map[common.PeerId]bool{core.self: true},
	}

	next := core.state.log.GetNextIndex()
	peers := core.state.confView.AllPeers()
	self := core.self

	for _, p := range peers {
		if p == self {
			continue
		}
		l.appenders[p] = newAppender(core, l, p, next)
	}
	l.ready = core.state.confView.HasMajority(l.acked)
	return l
}

// addPeer starts an appender for a peer joining mid-term, as part of a
// reconfiguration.
func (l *LeaderState) addPeer(peer common.PeerId, nextIndex common.LogIndex) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.appenders[peer]; ok {
		return
	}
	l.appenders[peer] = newAppender(l.core, l, peer, nextIndex)
}

// ackFrom records that peer successfully completed an AppendEntries or
// InstallSnapshot round-trip in this term. Once a joint-aware majority
// of the current configuration has acked, the leader becomes Ready
// (leader completeness); ready is sticky and never re-evaluated once
// set.
func (l *LeaderState) ackFrom(peer common.PeerId) {
	l.mu.Lock()
	if l.ready {
		l.mu.Unlock()
		return
	}
	l.acked[peer] = true
	acked := make(map[common.PeerId]bool, len(l.acked))
	for p := range l.acked {
		acked[p] = true
	}
	l.mu.Unlock()

	l.core.mu.RLock()
	conf := l.core.state.confView
	l.core.mu.RUnlock()

	if conf.HasMajority(acked) {
		l.mu.Lock()
		l.ready = true
		l.mu.Unlock()
	}
}

func (l *LeaderState) isReady() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ready
}

func (l *LeaderState) removePeer(peer common.PeerId) {
	l.mu.Lock()
	a, ok := l.appenders[peer]
	if ok {
		delete(l.appenders, peer)
	}
	l.mu.Unlock()
	if ok {
		a.stop()
	}
}

// signalAll wakes every appender to replicate promptly, called whenever
// a new entry is appended to the leader's own log.
func (l *LeaderState) signalAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, a := range l.appenders {
		a.signal()
	}
}

// matchIndexes snapshots every peer's replicated index for commit-index
// computation.
func (l *LeaderState) matchIndexes() map[common.PeerId]common.LogIndex {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[common.PeerId]common.LogIndex, len(l.appenders))
	for p, a := range l.appenders {
		out[p] = a.matchIndexSnapshot()
	}
	return out
}

func (l *LeaderState) stop() {
	l.mu.Lock()
	appenders := make([]*appender, 0, len(l.appenders))
	for _, a := range l.appenders {
		appenders = append(appenders, a)
	}
	l.appenders = nil
	l.mu.Unlock()
	for _, a := range appenders {
		a.stop()
	}
}
