package common

import "context"

// Transport is the RPC transport collaborator: addressing,
// serialization and framing are its concern, not the core's. Every send
// returns a Future so the peer mutex is never held across the wire call
// (suspension-point rule).
type Transport interface {
	SendRequestVote(ctx context.Context, peer PeerId, req *RequestVoteRequest) *Future[*RequestVoteReply]
	SendAppendEntries(ctx context.Context, peer PeerId, req *AppendEntriesRequest) *Future[*AppendEntriesReply]
	SendInstallSnapshot(ctx context.Context, peer PeerId, req *InstallSnapshotRequest) *Future[*InstallSnapshotReply]
	AddPeers(peers []PeerAddress) error
	LocalAddress() PeerAddress
}

// LogStore is the durable log storage collaborator. Append
// returns one Future per entry so callers can await durability without
// holding the peer mutex.
type LogStore interface {
	Append(entries []LogEntry) []*Future[error]
	Get(index LogIndex) (*LogEntry, error)
	Contains(ti TermIndex) bool
	LastEntry() (*LogEntry, bool)
	// GetNextIndex is one past the last entry the log currently holds.
	GetNextIndex() LogIndex
	GetLastCommittedIndex() LogIndex
	SetLastCommittedIndex(index LogIndex) error
	TruncateAfter(index LogIndex) error
	Close() error
}

// MetadataStore persists (currentTerm, votedFor) with the atomic-rename
// durability contract: PersistMetadata must durably flush
// both fields together before returning.
type MetadataStore interface {
	PersistMetadata(term Term, votedFor *PeerId) error
	LoadMetadata() (Term, *PeerId, error)
	Close() error
}

// SnapshotStore is the external snapshot storage collaborator: it
// persists snapshot chunks received from the leader and tracks which
// snapshot is installed locally.
type SnapshotStore interface {
	GetLatestSnapshot() (*TermIndex, error)
	GetLatestInstalledSnapshot() (*TermIndex, error)
	InstallChunk(chunk *SnapshotChunk) error
	RecordInstalled(ti TermIndex) error
	Close() error
}

// ApplyResult is the outcome of StateMachine.ApplyTransaction.
type ApplyResult struct {
	Payload []byte
	Err error
}

// TransactionContext threads state from StartTransaction through
// ApplyTransactionSerial/ApplyTransaction. LogEntryData
// is what actually gets appended to the log; the rest is leader-local
// bookkeeping that a follower synthesizing a context from a replicated
// entry will not have.
type TransactionContext struct {
	Entry *LogEntry
	LogEntryData []byte
	SMContext interface{}
}

// StateMachine is the user-supplied state machine collaborator.
type StateMachine interface {
	StartTransaction(req *ClientRequest) (*TransactionContext, error)
	ApplyTransactionSerial(ctx *TransactionContext) (*TransactionContext, error)
	ApplyTransaction(ctx *TransactionContext) *Future[ApplyResult]
	Query(payload []byte) ([]byte, error)
	QueryStale(payload []byte, minIndex LogIndex) ([]byte, error)
	NotifyIndexUpdate(term Term, index LogIndex)
	NotifyInstallSnapshotFromLeader(firstAvailable TermIndex) *Future[TermIndex]
	NotifyExtendedNoLeader(group GroupId)
	Pause()
	Reload() error
	GetLatestSnapshot() *TermIndex
	// TakeSnapshot serializes the state machine's current contents for
	// chunk-mode InstallSnapshot: the leader-side counterpart to
	// InstallChunk/GetLatestInstalledSnapshot on the follower side.
	TakeSnapshot() ([]byte, TermIndex, error)
}
