package common

import (
	"errors"
	"fmt"
)

// ErrorKind enumerates the error kinds These are kinds, not
// distinct Go types, so callers switch on Kind() rather than type-asserting
// a family of error structs.
type ErrorKind int

const (
	KindNotReady ErrorKind = iota
	KindGroupMismatch
	KindNotLeader
	KindLeaderNotReady
	KindStaleRead
	KindStateMachineFailure
	KindReconfigurationInProgress
	KindInconsistency
	KindTimeout
	KindTransport
	KindIOFault
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotReady:
		return "NOT_READY"
	case KindGroupMismatch:
		return "GROUP_MISMATCH"
	case KindNotLeader:
		return "NOT_LEADER"
	case KindLeaderNotReady:
		return "LEADER_NOT_READY"
	case KindStaleRead:
		return "STALE_READ"
	case KindStateMachineFailure:
		return "STATE_MACHINE_FAILURE"
	case KindReconfigurationInProgress:
		return "RECONFIGURATION_IN_PROGRESS"
	case KindInconsistency:
		return "INCONSISTENCY"
	case KindTimeout:
		return "TIMEOUT"
	case KindTransport:
		return "TRANSPORT"
	case KindIOFault:
		return "IO_FAULT"
	default:
		return "UNKNOWN"
	}
}

// RaftError is the wrapped error every client-facing and inter-peer
// failure is reported as, propagation rule: client-facing
// errors are always wrapped into a reply object rather than a raw error
// signal.
type RaftError struct {
	Kind ErrorKind
	Message string
	LeaderHint *PeerId
	KnownPeers []PeerId
	Cause error
}

func (e *RaftError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
	}
	return e.Kind.String()
}

func (e *RaftError) Unwrap() error {
	return e.Cause
}

func NewNotReadyError() *RaftError {
	return &RaftError{Kind: KindNotReady, Message: "server is not RUNNING"}
}

func NewGroupMismatchError() *RaftError {
	return &RaftError{Kind: KindGroupMismatch, Message: "request group does not match this server's group"}
}

func NewNotLeaderError(hint *PeerId, knownPeers []PeerId) *RaftError {
	return &RaftError{Kind: KindNotLeader, Message: "not the leader", LeaderHint: hint, KnownPeers: knownPeers}
}

func NewLeaderNotReadyError() *RaftError {
	return &RaftError{Kind: KindLeaderNotReady, Message: "leader elected but not yet ready"}
}

func NewStaleReadError() *RaftError {
	return &RaftError{Kind: KindStaleRead, Message: "commit index has not reached the requested minimum"}
}

func NewStateMachineError(cause error) *RaftError {
	return &RaftError{Kind: KindStateMachineFailure, Cause: cause}
}

func NewReconfigurationInProgressError() *RaftError {
	return &RaftError{Kind: KindReconfigurationInProgress, Message: "a configuration change is already in progress"}
}

func NewInconsistencyError(msg string) *RaftError {
	return &RaftError{Kind: KindInconsistency, Message: msg}
}

func NewTimeoutError(cause error) *RaftError {
	return &RaftError{Kind: KindTimeout, Cause: cause}
}

func NewTransportError(cause error) *RaftError {
	return &RaftError{Kind: KindTransport, Cause: cause}
}

// NewIOFaultError reports a malformed inbound entry sequence: indices
// not strictly increasing and contiguous from previous.index+1, or an
// entry term above the leader's own term.
func NewIOFaultError(msg string) *RaftError {
	return &RaftError{Kind: KindIOFault, Message: msg}
}

// IsKind reports whether err (or something it wraps) is a *RaftError of
// the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var rerr *RaftError
	if !errors.As(err, &rerr) {
		return false
	}
	return rerr.Kind == kind
}
