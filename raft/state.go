package raft

import (
	"github.com/sushantsondhi/raft-col733/common"
)

// ServerState is the persisted term/votedFor plus the log handle,
// snapshot pointers, leader identity and configuration view a peer
// needs. It is mutated only under ServerCore's peer mutex, generalized
// from embedded `state` struct and its free
// getTerm/setTerm/getVotedFor/setVotedFor/getCommitIndex/setCommitIndex
// functions (raft-col733's raft/state.go, raft/utils.go).
type ServerState struct {
	currentTerm common.Term
	votedFor *common.PeerId
	leaderId *common.PeerId

	log common.LogStore
	metadata common.MetadataStore
	snapshots common.SnapshotStore

	confView ConfigurationView

	// dirty is set whenever currentTerm or votedFor changes and cleared
	// by persistIfChangedLocked, so a handler only pays for a flush when
	// one is actually needed.
	dirty bool
}

func loadServerState(log common.LogStore, metadata common.MetadataStore, snapshots common.SnapshotStore, initialPeers []common.PeerId) (*ServerState, error) {
	term, votedFor, err := metadata.LoadMetadata()
	if err != nil {
		return nil, err
	}
	return &ServerState{
		currentTerm: term,
		votedFor: votedFor,
		log: log,
		metadata: metadata,
		snapshots: snapshots,
		confView: ConfigurationView{Peers: initialPeers},
	}, nil
}

func (s *ServerState) lastEntryTermIndexLocked() common.TermIndex {
	if e, ok := s.log.LastEntry(); ok {
		return e.TermIndex()
	}
	return common.TermIndex{}
}

func (s *ServerState) snapshotIndexLocked() common.LogIndex {
	snap, err := s.snapshots.GetLatestSnapshot()
	if err != nil || snap == nil {
		return common.NoIndex
	}
	return snap.Index
}

// snapshotBoundaryMatchesLocked reports whether ti is exactly the
// snapshot this follower most recently installed. A follower that has
// installed a snapshot no longer holds that entry in its physical log
// (log.Contains would report false forever), but an AppendEntries whose
// Previous anchors exactly there is still consistent.
func (s *ServerState) snapshotBoundaryMatchesLocked(ti common.TermIndex) bool {
	installed, err := s.snapshots.GetLatestInstalledSnapshot()
	if err != nil || installed == nil {
		return false
	}
	return *installed == ti
}

// foldConfigurationLocked adopts the last configuration entry among
// entries immediately, uncommitted-until-commit-advances: a server
// always uses the latest configuration in its log regardless of whether
// that entry has committed yet.
func (s *ServerState) foldConfigurationLocked(entries []common.LogEntry) {
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Type == common.ConfigurationEntryType {
			s.confView = ConfigurationView{Peers: entries[i].Peers, Staging: entries[i].StagingPeers}
			return
		}
	}
}

// updateCurrentTermLocked bumps currentTerm and resets votedFor iff
// newTerm is strictly greater, updateCurrentTerm.
func (s *ServerState) updateCurrentTermLocked(newTerm common.Term) bool {
	if newTerm <= s.currentTerm {
		return false
	}
	s.currentTerm = newTerm
	s.votedFor = nil
	s.dirty = true
	return true
}

func (s *ServerState) setVotedForLocked(id *common.PeerId) {
	s.votedFor = id
	s.dirty = true
}

// recognizeLeaderLocked implements this: accept iff term >=
// currentTerm AND (term > currentTerm OR leaderId is unset OR leaderId
// == id).
func (s *ServerState) recognizeLeaderLocked(id common.PeerId, term common.Term) bool {
	if term < s.currentTerm {
		return false
	}
	accept := term > s.currentTerm || s.leaderId == nil || *s.leaderId == id
	if !accept {
		return false
	}
	if term > s.currentTerm {
		s.updateCurrentTermLocked(term)
	}
	s.leaderId = &id
	return true
}

// recognizeCandidateLocked implements this: accept iff term >=
// currentTerm AND (term > currentTerm OR votedFor is unset OR votedFor
// == candidate).
func (s *ServerState) recognizeCandidateLocked(id common.PeerId, term common.Term) bool {
	if term < s.currentTerm {
		return false
	}
	accept := term > s.currentTerm || s.votedFor == nil || *s.votedFor == id
	if !accept {
		return false
	}
	if term > s.currentTerm {
		s.updateCurrentTermLocked(term)
	}
	return true
}

// isLogUpToDateLocked implements the Raft paper's §5.4.1 up-to-date check.
func (s *ServerState) isLogUpToDateLocked(candidateLast common.TermIndex) bool {
	local := s.lastEntryTermIndexLocked()
	if candidateLast.Term != local.Term {
		return candidateLast.Term > local.Term
	}
	return candidateLast.Index >= local.Index
}

// persistIfChangedLocked flushes (currentTerm, votedFor) durably iff
// either changed since the last flush, durability
// contract: every mutation flushes before any RPC that reveals the new
// value is sent.
func (s *ServerState) persistIfChangedLocked() error {
	if !s.dirty {
		return nil
	}
	if err := s.metadata.PersistMetadata(s.currentTerm, s.votedFor); err != nil {
		return err
	}
	s.dirty = false
	return nil
}
