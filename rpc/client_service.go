package rpc

import (
	"context"

	"github.com/sushantsondhi/raft-col733/common"
)

// ClientHandler is the subset of ServerCore's surface external clients
// call into. ServerCore.SubmitClientRequestAsync already matches this
// shape, so any ServerCore satisfies it without adapter code.
type ClientHandler interface {
	SubmitClientRequestAsync(req *common.ClientRequest) *common.Future[*common.ClientReply]
}

// clientRPCService adapts ClientHandler onto net/rpc, mirroring
// rpcService's role for the peer-to-peer RaftRPC service.
type clientRPCService struct {
	handler ClientHandler
}

func (s *clientRPCService) Submit(req *common.ClientRequest, reply *common.ClientReply) error {
	r, err := s.handler.SubmitClientRequestAsync(req).Wait(context.Background())
	if err != nil {
		return err
	}
	*reply = *r
	return nil
}
