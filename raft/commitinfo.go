package raft

import (
	"sync"

	"github.com/sushantsondhi/raft-col733/common"
)

// CommitInfoCache tracks the last-known commit index reported by every
// peer: the leader learns follower commit progress
// from AppendEntries replies, and reports the whole cluster's view back
// to clients via ClientReply.CommitInfos so a client can pick a peer
// that has caught up. raft-col733 repo never tracked follower commit
// progress at all (raft-col733's RaftServer only updates its own
// commitIndex), so this is new, grounded on Ratis's CommitInfoCache.
type CommitInfoCache struct {
	mu sync.RWMutex
	info map[common.PeerId]common.LogIndex
}

func NewCommitInfoCache() *CommitInfoCache {
	return &CommitInfoCache{info: make(map[common.PeerId]common.LogIndex)}
}

// Update records peer's reported commit index iff it advances, since
// replies can arrive out of order.
func (c *CommitInfoCache) Update(peer common.PeerId, index common.LogIndex) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.info[peer]; !ok || index > cur {
		c.info[peer] = index
	}
}

func (c *CommitInfoCache) Get(peer common.PeerId) (common.LogIndex, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	idx, ok := c.info[peer]
	return idx, ok
}

// Snapshot returns a GroupInfo-ready copy of every peer's known commit
// index, self included.
func (c *CommitInfoCache) Snapshot(self common.PeerId, selfCommit common.LogIndex) map[common.PeerId]common.LogIndex {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[common.PeerId]common.LogIndex, len(c.info)+1)
	for p, idx := range c.info {
		out[p] = idx
	}
	out[self] = selfCommit
	return out
}
