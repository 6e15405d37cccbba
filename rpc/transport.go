package rpc

import (
	"context"

	"github.com/sushantsondhi/raft-col733/common"
)

// send runs one RPC against peer and resolves the returned future with
// nil on any failure (dial error, remote error, or the retries in
// Peer.call being exhausted), matching common.Transport's contract that
// a Future never carries a wire-level error, only ctx cancellation.
func send[Req any, Rep any](ctx context.Context, m *Manager, peer common.PeerId, method string, req *Req) *common.Future[*Rep] {
	future := common.NewFuture[*Rep]()
	p := m.peerFor(peer)
	if p == nil {
		future.Complete(nil)
		return future
	}
	go func() {
		reply := new(Rep)
		if err := p.call(ctx, method, req, reply); err != nil {
			future.Complete(nil)
			return
		}
		future.Complete(reply)
	}()
	return future
}

func (m *Manager) SendRequestVote(ctx context.Context, peer common.PeerId, req *common.RequestVoteRequest) *common.Future[*common.RequestVoteReply] {
	return send[common.RequestVoteRequest, common.RequestVoteReply](ctx, m, peer, "RaftRPC.RequestVote", req)
}

func (m *Manager) SendAppendEntries(ctx context.Context, peer common.PeerId, req *common.AppendEntriesRequest) *common.Future[*common.AppendEntriesReply] {
	return send[common.AppendEntriesRequest, common.AppendEntriesReply](ctx, m, peer, "RaftRPC.AppendEntries", req)
}

func (m *Manager) SendInstallSnapshot(ctx context.Context, peer common.PeerId, req *common.InstallSnapshotRequest) *common.Future[*common.InstallSnapshotReply] {
	return send[common.InstallSnapshotRequest, common.InstallSnapshotReply](ctx, m, peer, "RaftRPC.InstallSnapshot", req)
}
