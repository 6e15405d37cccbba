package raft

import "github.com/sushantsondhi/raft-col733/common"

// ConfigurationView is the current (and, mid-reconfiguration, staging)
// peer set, generalized from flat
// common.ClusterConfig.Peers slice (raft-col733's common/interfaces.go)
// into the joint-consensus shape a real reconfiguration protocol needs.
type ConfigurationView struct {
	Peers []common.PeerId
	Staging []common.PeerId // non-nil while a joint configuration is in flight
}

func (c ConfigurationView) IsJoint() bool {
	return len(c.Staging) > 0
}

// AllPeers returns the union of Peers and Staging, deduplicated, for
// broadcast fan-out during a reconfiguration.
func (c ConfigurationView) AllPeers() []common.PeerId {
	if !c.IsJoint() {
		return c.Peers
	}
	seen := make(map[common.PeerId]bool, len(c.Peers)+len(c.Staging))
	out := make([]common.PeerId, 0, len(c.Peers)+len(c.Staging))
	for _, p := range c.Peers {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, p := range c.Staging {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

// Contains reports whether peer belongs to the current configuration,
// counting both the stable set and any staging set mid-reconfiguration.
func (c ConfigurationView) Contains(peer common.PeerId) bool {
	for _, p := range c.Peers {
		if p == peer {
			return true
		}
	}
	for _, p := range c.Staging {
		if p == peer {
			return true
		}
	}
	return false
}

// IsBootstrapping reports whether peer is a new server being added by an
// in-flight reconfiguration: present in Staging but not yet promoted
// into Peers, matching Ratis's notion of a bootstrapping/learner peer
// that has not yet earned a vote in the stable configuration.
func (c ConfigurationView) IsBootstrapping(peer common.PeerId) bool {
	if !c.IsJoint() {
		return false
	}
	for _, p := range c.Peers {
		if p == peer {
			return false
		}
	}
	for _, p := range c.Staging {
		if p == peer {
			return true
		}
	}
	return false
}

func majority(votes map[common.PeerId]bool, set []common.PeerId) bool {
	if len(set) == 0 {
		return true
	}
	count := 0
	for _, p := range set {
		if votes[p] {
			count++
		}
	}
	return count >= len(set)/2+1
}

// HasMajority implements joint-consensus rule: while a
// reconfiguration is in flight, an operation (vote, commit) needs a
// majority in BOTH the old peer set and the staging set independently.
func (c ConfigurationView) HasMajority(votes map[common.PeerId]bool) bool {
	if !c.IsJoint() {
		return majority(votes, c.Peers)
	}
	return majority(votes, c.Peers) && majority(votes, c.Staging)
}

// CommitIndexFor computes the highest index a majority (joint-aware) has
// replicated, given match indexes for every peer plus the leader's own
// last log index under selfId. Entries are only ever committed by the
// caller if their term matches the leader's current term (Raft's
// leader-completeness restriction); this function only computes the
// majority-replicated index, the term check happens at the call site.
func (c ConfigurationView) CommitIndexFor(selfId common.PeerId, selfLast common.LogIndex, matchIndex map[common.PeerId]common.LogIndex) common.LogIndex {
	indexOf := func(set []common.PeerId) common.LogIndex {
		if len(set) == 0 {
			return common.NoIndex
		}
		vals := make([]common.LogIndex, 0, len(set))
		for _, p := range set {
			if p == selfId {
				vals = append(vals, selfLast)
			} else {
				vals = append(vals, matchIndex[p])
			}
		}
		sortIndexesAscending(vals)
		majorityNeeded := len(vals)/2 + 1
		return vals[len(vals)-majorityNeeded]
	}
	if !c.IsJoint() {
		return indexOf(c.Peers)
	}
	oldIdx := indexOf(c.Peers)
	newIdx := indexOf(c.Staging)
	if oldIdx < newIdx {
		return oldIdx
	}
	return newIdx
}

func sortIndexesAscending(vals []common.LogIndex) {
	for i := 1; i < len(vals); i++ {
		for j := i; j > 0 && vals[j-1] > vals[j]; j-- {
			vals[j-1], vals[j] = vals[j], vals[j-1]
		}
	}
}
