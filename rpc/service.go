package rpc

import "github.com/sushantsondhi/raft-col733/common"

// rpcService adapts RPCHandler's (req) (*reply, error) methods to the
// (args, *reply) error shape net/rpc requires of every registered
// method, so ServerCore itself never needs to know about net/rpc.
type rpcService struct {
	handler RPCHandler
}

func (s *rpcService) RequestVote(req *common.RequestVoteRequest, reply *common.RequestVoteReply) error {
	r, err := s.handler.RequestVote(req)
	if err != nil {
		return err
	}
	*reply = *r
	return nil
}

func (s *rpcService) AppendEntries(req *common.AppendEntriesRequest, reply *common.AppendEntriesReply) error {
	r, err := s.handler.AppendEntries(req)
	if err != nil {
		return err
	}
	*reply = *r
	return nil
}

func (s *rpcService) InstallSnapshot(req *common.InstallSnapshotRequest, reply *common.InstallSnapshotReply) error {
	r, err := s.handler.InstallSnapshot(req)
	if err != nil {
		return err
	}
	*reply = *r
	return nil
}
