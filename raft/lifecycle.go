package raft

import (
	"go.uber.org/atomic"

	"github.com/sushantsondhi/raft-col733/common"
)

// LifeCycleState is one of the five states
type LifeCycleState uint32

const (
	StateNew LifeCycleState = iota
	StateStarting
	StateRunning
	StateClosing
	StateClosed
)

func (s LifeCycleState) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// LifeCycle gates ServerCore operations to the legal transitions:
// NEW→STARTING→RUNNING→CLOSING→CLOSED, plus NEW→CLOSED. Grounded on
// kvstore.KVStore.LastKnownResponder, which reaches for
// go.uber.org/atomic directly rather than a plain int guarded by a mutex.
type LifeCycle struct {
	state atomic.Uint32
}

func NewLifeCycle() *LifeCycle {
	l := &LifeCycle{}
	l.state.Store(uint32(StateNew))
	return l
}

func (l *LifeCycle) Current() LifeCycleState {
	return LifeCycleState(l.state.Load())
}

// Start performs NEW→STARTING atomically, rejecting duplicate starts.
func (l *LifeCycle) Start() bool {
	return l.state.CAS(uint32(StateNew), uint32(StateStarting))
}

// TransitionToRunning performs STARTING→RUNNING. Safe to call more than
// once; only the first caller observes true.
func (l *LifeCycle) TransitionToRunning() bool {
	return l.state.CAS(uint32(StateStarting), uint32(StateRunning))
}

// StartClosing moves any non-terminal state to CLOSING once.
func (l *LifeCycle) StartClosing() bool {
	for {
		cur := l.state.Load()
		switch LifeCycleState(cur) {
		case StateClosed, StateClosing:
			return false
		}
		if l.state.CAS(cur, uint32(StateClosing)) {
			return true
		}
	}
}

func (l *LifeCycle) FinishClosing() {
	l.state.Store(uint32(StateClosed))
}

// AssertRunning fails with NotReady unless the lifecycle is RUNNING.
func (l *LifeCycle) AssertRunning() error {
	if l.Current() != StateRunning {
		return common.NewNotReadyError()
	}
	return nil
}

// AssertRunningOrStarting is the narrow allowance granted to
// AppendEntries/InstallSnapshot so a peer restoring from persisted state
// can still receive the leader's RPCs while still STARTING.
func (l *LifeCycle) AssertRunningOrStarting() error {
	switch l.Current() {
	case StateRunning, StateStarting:
		return nil
	default:
		return common.NewNotReadyError()
	}
}
