package common

import "github.com/google/uuid"

// See the Raft paper for the shape of these RPCs.

type RequestVoteRequest struct {
	CandidateId PeerId
	GroupId GroupId
	CandidateTerm Term
	CandidateLastEntry TermIndex
}

type RequestVoteReply struct {
	Term Term
	VoteGranted bool
	ShouldShutdown bool
}

type AppendEntriesRequest struct {
	LeaderId PeerId
	GroupId GroupId
	LeaderTerm Term
	Previous TermIndex
	Entries []LogEntry
	LeaderCommit LogIndex
	CommitInfos map[PeerId]LogIndex
	Initializing bool
}

// AppendResult is the AppendEntriesReply.Result
type AppendResult int

const (
	AppendSuccess AppendResult = iota
	AppendNotLeader
	AppendInconsistency
	// AppendMalformed is returned when the entry sequence fails the
	// strictly-increasing-contiguous-from-previous.index+1 check, or an
	// entry's term exceeds the leader's own term.
	AppendMalformed
)

type AppendEntriesReply struct {
	Term Term
	FollowerId PeerId
	FollowerCommit LogIndex
	NextIndex LogIndex
	Result AppendResult
}

// SnapshotChunk is the chunk-mode InstallSnapshot payload: the unit the
// transport carries one call at a time.
type SnapshotChunk struct {
	Term Term
	Index LogIndex
	ChunkIndex int
	Data []byte
	Done bool
}

// SnapshotNotification is the notify-mode InstallSnapshot payload.
type SnapshotNotification struct {
	FirstAvailableTerm Term
	FirstAvailableIndex LogIndex
}

type InstallSnapshotRequest struct {
	LeaderId PeerId
	GroupId GroupId
	LeaderTerm Term
	Chunk *SnapshotChunk
	Notification *SnapshotNotification
}

// InstallResult is the InstallSnapshotReply.Result
type InstallResult int

const (
	InstallSuccess InstallResult = iota
	InstallNotLeader
	InstallInProgress
	InstallAlreadyInstalled
	InstallConfMismatch
)

type InstallSnapshotReply struct {
	Term Term
	Result InstallResult
	ChunkIndex int
	SnapshotIndex LogIndex
}

// ClientRequestType dispatches submitClientRequestAsync.
type ClientRequestType int

const (
	WriteRequest ClientRequestType = iota
	ReadRequest
	StaleReadRequest
	WatchRequest
	SetConfigurationRequest
)

// ReplicationLevel is the completion condition for a WATCH request.
type ReplicationLevel int

const (
	ReplicationCommitted ReplicationLevel = iota
	ReplicationMajorityApplied
	ReplicationAllApplied
)

type ClientRequest struct {
	Type ClientRequestType
	GroupId GroupId
	ClientId uuid.UUID
	CallId int64
	Payload []byte
	MinIndex LogIndex // STALE_READ
	WatchIndex LogIndex // WATCH
	WatchLevel ReplicationLevel // WATCH
	NewPeers []PeerId // SET_CONFIGURATION: the target stable peer set
}

// ClientReply always carries (success, exception, commitInfos), rather
// than a raw error signal.
type ClientReply struct {
	Success bool
	LogIndex LogIndex
	Payload []byte
	Err *RaftError
	CommitInfos map[PeerId]LogIndex
}

// GroupInfo backs the metrics/introspection surface
type GroupInfo struct {
	Id PeerId
	GroupId GroupId
	LeaderId *PeerId
	CurrentTerm Term
	Role string
	CommitInfos map[PeerId]LogIndex
	Peers []PeerId
}
