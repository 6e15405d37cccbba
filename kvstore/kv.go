package kvstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"
	"go.uber.org/multierr"

	"github.com/sushantsondhi/raft-col733/common"
	"github.com/sushantsondhi/raft-col733/rpc"
)

// KVStore is a thread-safe client library over a Raft group's external
// ClientRPC surface, grounded on KVStore (kvstore/kv.go):
// same round-robin-from-last-known-leader retry loop and the same
// go.uber.org/atomic/go.uber.org/multierr pairing, rewired from the
// now-gone common.RPCServer/ClientRequestRPC onto rpc.RaftClient and
// common.ClientRequest/ClientReply.
type KVStore struct {
	clients []*rpc.RaftClient
	lastKnownResponder *atomic.Int32
	groupId common.GroupId
	clientId uuid.UUID
}

func NewKeyValStore(groupId common.GroupId, addrs []common.PeerAddress) *KVStore {
	store := &KVStore{
		lastKnownResponder: atomic.NewInt32(0),
		groupId: groupId,
		clientId: uuid.New(),
	}
	for _, addr := range addrs {
		store.clients = append(store.clients, rpc.NewRaftClient(addr.Address))
	}
	return store
}

func (kv *KVStore) submit(ctx context.Context, req *common.ClientRequest) (reply *common.ClientReply, err error) {
	last := int(kv.lastKnownResponder.Load())
	for i := 0; i < len(kv.clients); i++ {
		idx := (i + last) % len(kv.clients)
		r, callErr := kv.clients[idx].Submit(ctx, req)
		if callErr != nil {
			err = multierr.Append(err, callErr)
			continue
		}
		if !r.Success {
			err = multierr.Append(err, r.Err)
			continue
		}
		kv.lastKnownResponder.Store(int32(idx))
		return r, nil
	}
	return nil, err
}

// SetWithCallId creates a write request tagged with (kv.clientId,
// callId); resubmitting the same callId after a transport failure is
// deduplicated by the leader's RetryCache rather than reapplied.
func (kv *KVStore) SetWithCallId(key, val string, callId int64) error {
	payload, err := json.Marshal(Request{Type: OpSet, Key: key, Val: val})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = kv.submit(ctx, &common.ClientRequest{
		Type: common.WriteRequest,
		GroupId: kv.groupId,
		ClientId: kv.clientId,
		CallId: callId,
		Payload: payload,
	})
	return err
}

// Set adds or updates a key/value pair, returning the call id that may
// be replayed via SetWithCallId for idempotent retries.
func (kv *KVStore) Set(key, val string) (int64, error) {
	callId := time.Now().UnixNano()
	return callId, kv.SetWithCallId(key, val, callId)
}

func (kv *KVStore) GetWithCallId(key string, callId int64) (string, error) {
	payload, err := json.Marshal(Request{Type: OpGet, Key: key})
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	reply, err := kv.submit(ctx, &common.ClientRequest{
		Type: common.ReadRequest,
		GroupId: kv.groupId,
		ClientId: kv.clientId,
		CallId: callId,
		Payload: payload,
	})
	if err != nil {
		return "", err
	}
	return string(reply.Payload), nil
}

// Get returns the value for key along with the call id used, which may
// be replayed via GetWithCallId.
func (kv *KVStore) Get(key string) (int64, string, error) {
	callId := time.Now().UnixNano()
	val, err := kv.GetWithCallId(key, callId)
	return callId, val, err
}

func (kv *KVStore) Close() {
	for _, c := range kv.clients {
		c.Close()
	}
}
