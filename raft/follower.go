package raft

import (
	"math/rand"
	"sync"
	"time"
)

// FollowerState owns the election timer: reset on every
// valid AppendEntries/RequestVote grant, and firing converts the peer to
// candidate. Grounded on electionTimeoutController
// goroutine (raft-col733's raft/raft.go), generalized into its own type
// per-role worker design.
type FollowerState struct {
	core *ServerCore

	mu sync.Mutex
	timer *time.Timer
	stopped bool
	done chan struct{}
}

func newFollowerState(core *ServerCore) *FollowerState {
	f := &FollowerState{core: core, done: make(chan struct{})}
	f.timer = time.NewTimer(randomElectionTimeout(core.config))
	go f.run()
	return f
}

func randomElectionTimeout(cfg ServerConfig) time.Duration {
	lo, hi := cfg.MinElectionTimeout, cfg.MaxElectionTimeout
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rand.Int63n(int64(hi-lo)))
}

// resetTimer is called by ServerCore whenever a valid RPC from the
// current leader/candidate is processed
func (f *FollowerState) resetTimer() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped {
		return
	}
	if !f.timer.Stop() {
		select {
		case <-f.timer.C:
		default:
		}
	}
	f.timer.Reset(randomElectionTimeout(f.core.config))
}

func (f *FollowerState) run() {
	select {
	case <-f.timer.C:
		f.core.onElectionTimeout()
	case <-f.done:
	}
}

func (f *FollowerState) stop() {
	f.mu.Lock()
	if f.stopped {
		f.mu.Unlock()
		return
	}
	f.stopped = true
	f.timer.Stop()
	f.mu.Unlock()
	close(f.done)
}
