package rpc

import (
	"context"

	"github.com/sushantsondhi/raft-col733/common"
)

// RaftClient is a thin net/rpc client for the external-facing ClientRPC
// service, reusing Peer's dial/retry logic (grounded on raft-col733's
// Peer, rpc/peer.go) for a single server address rather than a whole
// group's worth of peers.
type RaftClient struct {
	peer *Peer
}

func NewRaftClient(address string) *RaftClient {
	return &RaftClient{peer: NewPeer(common.PeerId{}, address)}
}

func (c *RaftClient) Submit(ctx context.Context, req *common.ClientRequest) (*common.ClientReply, error) {
	reply := new(common.ClientReply)
	if err := c.peer.call(ctx, "ClientRPC.Submit", req, reply); err != nil {
		return nil, err
	}
	return reply, nil
}

func (c *RaftClient) Close() error {
	return c.peer.close()
}
