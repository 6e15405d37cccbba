package common

import "github.com/google/uuid"

// EntryType discriminates the LogEntry union
type EntryType int

const (
	MetadataEntryType EntryType = iota
	ConfigurationEntryType
	StateMachineEntryType
)

func (t EntryType) String() string {
	switch t {
	case MetadataEntryType:
		return "METADATA"
	case ConfigurationEntryType:
		return "CONFIGURATION"
	case StateMachineEntryType:
		return "STATE_MACHINE"
	default:
		return "UNKNOWN"
	}
}

// LogEntry is one of {ConfigurationEntry(peers), StateMachineEntry
// (clientId, callId, payload), MetadataEntry}, each carrying (term, index).
//
// Only the fields relevant to Type are populated; this mirrors
// raft-col733's flat common.LogEntry{Index, Term, Data} (raft-col733's
// original common/interfaces.go) widened into a tagged union.
type LogEntry struct {
	Term Term
	Index LogIndex
	Type EntryType

	// ConfigurationEntryType
	Peers []PeerId
	StagingPeers []PeerId

	// StateMachineEntryType
	ClientId uuid.UUID
	CallId int64
	Payload []byte
}

// TermIndex returns the (term, index) pair identifying this entry.
func (e LogEntry) TermIndex() TermIndex {
	return TermIndex{Term: e.Term, Index: e.Index}
}
