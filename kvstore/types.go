package kvstore

import "github.com/google/uuid"

// OperationType discriminates the two operations the store's state
// machine understands. kv.go references kvstore.Set,
// kvstore.Get and a Request{Type, Key, Val, TransactionId} literal but
// never actually defines any of them anywhere in the package (fsm.go's
// Apply is a bare panic stub); this file supplies the missing piece
// kv.go's call sites always assumed existed.
type OperationType int

const (
	OpSet OperationType = iota
	OpGet
)

// Request is the command payload carried inside ClientRequest.Payload /
// LogEntry.Payload, JSON-encoded the way kv.go always
// intended (it already imports encoding/json for this purpose).
// TransactionId is kept for parity with Request literal
// even though at-most-once dedup is now RetryCache's job, keyed off
// ClientRequest.ClientId/CallId rather than this field.
type Request struct {
	Type OperationType `json:"type"`
	Key string `json:"key"`
	Val string `json:"val,omitempty"`
	TransactionId uuid.UUID `json:"transactionId"`
}
