package raft

import (
	"context"
	"sync"
	"time"

	"github.com/sushantsondhi/raft-col733/common"
)

// CandidateState runs one election: fans RequestVote out
// to every peer concurrently, tallies with ConfigurationView.HasMajority
// (joint-aware), and re-runs on timeout without operator intervention.
// Grounded on convertToCandidate/broadcast-vote loop
// (raft-col733's raft/raft.go), generalized to joint-configuration
// majorities and a cancellable context instead of a raw goroutine group.
type CandidateState struct {
	core *ServerCore
	term common.Term

	cancel context.CancelFunc
	done chan struct{}
	once sync.Once
}

func newCandidateState(core *ServerCore, term common.Term) *CandidateState {
	ctx, cancel := context.WithCancel(context.Background())
	c := &CandidateState{core: core, term: term, cancel: cancel, done: make(chan struct{})}
	go c.run(ctx)
	return c
}

func (c *CandidateState) run(ctx context.Context) {
	defer close(c.done)
	timeout := randomElectionTimeout(c.core.config)
	electionCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c.core.mu.Lock()
	lastEntry := c.core.state.lastEntryTermIndexLocked()
	peers := c.core.state.confView.AllPeers()
	self := c.core.self
	votes := map[common.PeerId]bool{self: true}
	won := c.core.state.confView.HasMajority(votes)
	c.core.mu.Unlock()

	// onElectionWon and onElectionTimeout stop this candidate, which
	// waits for run to return, so run hands them to their own goroutine.
	if won {
		go c.core.onElectionWon(c.term)
		return
	}
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, peer := range peers {
		if peer == self {
			continue
		}
		peer := peer
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := &common.RequestVoteRequest{
				GroupId: c.core.config.GroupId,
				CandidateId: self,
				CandidateTerm: c.term,
				CandidateLastEntry: lastEntry,
			}
			reply, err := c.core.transport.SendRequestVote(electionCtx, peer, req).Wait(electionCtx)
			if err != nil || reply == nil {
				return
			}
			if reply.Term > c.term {
				c.core.stepDownIfStale(reply.Term)
				return
			}
			if reply.ShouldShutdown {
				c.core.log.Warn("peer reports this node is no longer part of the configuration, shutting down")
				go c.core.Stop()
				return
			}
			if reply.VoteGranted {
				mu.Lock()
				votes[peer] = true
				won := c.core.state.confView.HasMajority(votes)
				mu.Unlock()
				if won {
					c.core.onElectionWon(c.term)
				}
			}
		}()
	}

	select {
	case <-electionCtx.Done():
	case <-ctx.Done():
		return
	}

	select {
	case <-ctx.Done():
	case <-time.After(0):
		if ctx.Err() == nil {
			go c.core.onElectionTimeout()
		}
	}
}

func (c *CandidateState) stop() {
	c.once.Do(func() {
		c.cancel()
		<-c.done
	})
}
