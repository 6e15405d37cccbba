package raft

import (
	"sync"

	"github.com/sushantsondhi/raft-col733/common"
)

// pendingClientRequest is one leader-local write awaiting commit: the
// future is completed once commit-index advancement reaches this
// entry's index, from the apply loop.
type pendingClientRequest struct {
	index common.LogIndex
	term common.Term
	ctx *common.TransactionContext
	future *common.Future[*common.ClientReply]
}

// PendingRequests is the leader-local index->request map
// raft-col733 repo has no notion of "pending client request" distinct
// from an appended log entry (raft-col733's ClientRequest just blocks on
// the RaftServer's own condition variable until commitIndex advances,
// raft/raft.go's commitEntries), so this is a new type modeled on
// Ratis's PendingRequests, generalized to Go's Future[T].
type PendingRequests struct {
	mu sync.Mutex
	byIndex map[common.LogIndex]*pendingClientRequest
	minIndex common.LogIndex
}

func NewPendingRequests() *PendingRequests {
	return &PendingRequests{byIndex: make(map[common.LogIndex]*pendingClientRequest)}
}

// Add registers a pending request for entry.Index. Callers must hold the
// peer mutex when the entry is appended so index assignment and
// registration are atomic with respect to concurrent appends.
func (p *PendingRequests) Add(index common.LogIndex, term common.Term, ctx *common.TransactionContext) *common.Future[*common.ClientReply] {
	p.mu.Lock()
	defer p.mu.Unlock()
	f := common.NewFuture[*common.ClientReply]()
	p.byIndex[index] = &pendingClientRequest{index: index, term: term, ctx: ctx, future: f}
	return f
}

// ContextFor returns the leader-local TransactionContext this server
// registered for index when it originated the entry in term, or nil if
// no such request is outstanding (this server didn't originate it, or
// it already completed). Lets the apply loop reuse StartTransaction's
// leader-side bookkeeping instead of always synthesizing a fresh
// context from the replicated entry.
func (p *PendingRequests) ContextFor(index common.LogIndex, term common.Term) *common.TransactionContext {
	p.mu.Lock()
	defer p.mu.Unlock()
	req, ok := p.byIndex[index]
	if !ok || req.term != term {
		return nil
	}
	return req.ctx
}

// CompleteUpTo resolves every pending request with index <= commitIndex.
// A request whose term no longer matches the entry actually committed at
// its index (leader changed mid-flight) is failed with NotLeader rather
// than left to hang, "never silently drop" rule.
func (p *PendingRequests) CompleteUpTo(commitIndex common.LogIndex, resolve func(*pendingClientRequest) *common.ClientReply) {
	p.mu.Lock()
	var done []*pendingClientRequest
	for idx, req := range p.byIndex {
		if idx <= commitIndex {
			done = append(done, req)
			delete(p.byIndex, idx)
		}
	}
	p.mu.Unlock()
	for _, req := range done {
		req.future.Complete(resolve(req))
	}
}

// FailAll resolves every outstanding request with the given error, used
// when stepping down from leader (changeToFollower clears
// leader-only state).
func (p *PendingRequests) FailAll(err *common.RaftError) {
	p.mu.Lock()
	var pending []*pendingClientRequest
	for idx, req := range p.byIndex {
		pending = append(pending, req)
		delete(p.byIndex, idx)
	}
	p.mu.Unlock()
	for _, req := range pending {
		req.future.Complete(&common.ClientReply{Success: false, Err: err})
	}
}

func (p *PendingRequests) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.byIndex)
}
