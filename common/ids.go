package common

import (
	"bytes"

	"github.com/google/uuid"
)

// PeerId is an opaque identifier for one Raft group member, totally
// ordered by byte comparison and stable for the life of a node.
type PeerId struct {
	id uuid.UUID
}

// NewPeerId generates a fresh, random PeerId.
func NewPeerId() PeerId {
	return PeerId{id: uuid.New()}
}

// ParsePeerId parses the canonical string form of a PeerId.
func ParsePeerId(s string) (PeerId, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return PeerId{}, err
	}
	return PeerId{id: u}, nil
}

func (p PeerId) String() string {
	return p.id.String()
}

// Compare returns -1, 0 or 1 following total byte order of the id.
func (p PeerId) Compare(other PeerId) int {
	return bytes.Compare(p.id[:], other.id[:])
}

// IsZero reports whether p is the unset PeerId.
func (p PeerId) IsZero() bool {
	return p.id == uuid.Nil
}

// GobEncode/GobDecode make PeerId's unexported field transparent to
// encoding/gob, needed since LogEntry (persisted via gob in the
// persistent package) embeds PeerId values directly.
func (p PeerId) GobEncode() ([]byte, error) {
	return p.id[:], nil
}

func (p *PeerId) GobDecode(b []byte) error {
	return p.id.UnmarshalBinary(b)
}

// GroupId identifies one Raft group. A ServerCore belongs to exactly one.
type GroupId struct {
	id uuid.UUID
}

// NewGroupId generates a fresh, random GroupId.
func NewGroupId() GroupId {
	return GroupId{id: uuid.New()}
}

// ParseGroupId parses the canonical string form of a GroupId.
func ParseGroupId(s string) (GroupId, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return GroupId{}, err
	}
	return GroupId{id: u}, nil
}

func (g GroupId) String() string {
	return g.id.String()
}

func (g GroupId) IsZero() bool {
	return g.id == uuid.Nil
}

func (g GroupId) GobEncode() ([]byte, error) {
	return g.id[:], nil
}

func (g *GroupId) GobDecode(b []byte) error {
	return g.id.UnmarshalBinary(b)
}

// Term is Raft's monotonically non-decreasing epoch counter.
type Term uint64

// LogIndex is a position in the replicated log, starting at 1. 0 means
// "no entry".
type LogIndex uint64

// NoIndex is the sentinel LogIndex meaning "no entry".
const NoIndex LogIndex = 0

// TermIndex is a (term, index) pair, ordered lexicographically by
// (term, then index) as required by the Raft election-restriction rule.
type TermIndex struct {
	Term Term
	Index LogIndex
}

// Less reports whether ti sorts strictly before other.
func (ti TermIndex) Less(other TermIndex) bool {
	if ti.Term != other.Term {
		return ti.Term < other.Term
	}
	return ti.Index < other.Index
}

// PeerAddress pairs a PeerId with the network address the transport
// should use to reach it. Address formatting/parsing is the transport's
// concern; this struct only carries the association.
type PeerAddress struct {
	Id PeerId
	Address string
}
