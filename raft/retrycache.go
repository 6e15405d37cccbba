package raft

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"

	"github.com/sushantsondhi/raft-col733/common"
)

// RetryCacheEntryState is the CacheEntry state
type RetryCacheEntryState int

const (
	CacheEntryPending RetryCacheEntryState = iota
	CacheEntryCompletedOK
	CacheEntryCompletedFail
)

type retryCacheKey struct {
	ClientId uuid.UUID
	CallId int64
}

// RetryCacheEntry is the (clientId, callId) -> reply-future association
//, grounded on Ratis's RetryCache.CacheEntry
// (original_source/.../RaftServerImpl.java initRetryCache/queryCache).
type RetryCacheEntry struct {
	Key retryCacheKey
	State RetryCacheEntryState
	Reply *common.Future[*common.ClientReply]
	Expiry time.Time
}

// CacheQueryResult mirrors Ratis's RetryCache.CacheQueryResult: whether
// the returned entry is a fresh admission or an existing (possibly
// completed) one.
type CacheQueryResult struct {
	Entry *RetryCacheEntry
	IsRetry bool
}

// RetryCache is the at-most-once client-request cache
// raft-col733 repo has no retry-dedup at all, so this whole type is new,
// grounded on Ratis rather than raft-col733; its size counter uses
// go.uber.org/atomic the way kvstore.KVStore already does
// for LastKnownResponder.
type RetryCache struct {
	mu sync.Mutex
	entries map[retryCacheKey]*RetryCacheEntry
	order []retryCacheKey // insertion order, for LRU eviction
	capacity int
	expiry time.Duration
	size atomic.Int64
}

func NewRetryCache(capacity int, expiry time.Duration) *RetryCache {
	return &RetryCache{
		entries: make(map[retryCacheKey]*RetryCacheEntry),
		capacity: capacity,
		expiry: expiry,
	}
}

// Query returns the existing entry for (clientId, callId) if present,
// else admits a new PENDING one.
func (c *RetryCache) Query(clientId uuid.UUID, callId int64) CacheQueryResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reapExpiredLocked()

	key := retryCacheKey{ClientId: clientId, CallId: callId}
	if e, ok := c.entries[key]; ok {
		return CacheQueryResult{Entry: e, IsRetry: true}
	}

	e := &RetryCacheEntry{
		Key: key,
		State: CacheEntryPending,
		Reply: common.NewFuture[*common.ClientReply](),
		Expiry: time.Now().Add(c.expiry),
	}
	c.entries[key] = e
	c.order = append(c.order, key)
	c.size.Inc()
	c.evictLocked()
	return CacheQueryResult{Entry: e, IsRetry: false}
}

// Get looks up an existing entry without admitting a new one.
func (c *RetryCache) Get(clientId uuid.UUID, callId int64) (*RetryCacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[retryCacheKey{ClientId: clientId, CallId: callId}]
	return e, ok
}

// Complete resolves the entry exactly once: mutated once on
// completion.
func (c *RetryCache) Complete(key retryCacheKey, reply *common.ClientReply, ok bool) {
	c.mu.Lock()
	e, found := c.entries[key]
	c.mu.Unlock()
	if !found {
		return
	}
	c.mu.Lock()
	if e.State == CacheEntryPending {
		if ok {
			e.State = CacheEntryCompletedOK
		} else {
			e.State = CacheEntryCompletedFail
		}
		e.Expiry = time.Now().Add(c.expiry)
	}
	c.mu.Unlock()
	e.Reply.Complete(reply)
}

func (c *RetryCache) reapExpiredLocked() {
	now := time.Now()
	for key, e := range c.entries {
		if e.State != CacheEntryPending && now.After(e.Expiry) {
			delete(c.entries, key)
			c.size.Dec()
		}
	}
}

// evictLocked drops the oldest completed entries once the cache is over
// capacity (LRU pressure).
func (c *RetryCache) evictLocked() {
	i := 0
	for c.size.Load() > int64(c.capacity) && i < len(c.order) {
		key := c.order[i]
		i++
		e, ok := c.entries[key]
		if !ok || e.State == CacheEntryPending {
			continue
		}
		delete(c.entries, key)
		c.size.Dec()
	}
	if i > 0 {
		c.order = c.order[i:]
	}
}
