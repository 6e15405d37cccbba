package rpc

import (
	"net"
	"net/rpc"
	"sync"

	"github.com/sushantsondhi/raft-col733/common"
)

// RPCHandler is the subset of ServerCore's surface the transport needs
// to dispatch inbound calls to, kept as its own interface here so this
// package does not import raft (rpc sits below raft in the dependency
// graph, matching layering).
type RPCHandler interface {
	RequestVote(req *common.RequestVoteRequest) (*common.RequestVoteReply, error)
	AppendEntries(req *common.AppendEntriesRequest) (*common.AppendEntriesReply, error)
	InstallSnapshot(req *common.InstallSnapshotRequest) (*common.InstallSnapshotReply, error)
}

// Manager is a net/rpc-based common.Transport, grounded on
// raft-col733's Manager (rpc/manager.go), generalized from a single-peer
// ConnectToPeer surface to the full addressed peer set AddPeers needs
// and the InstallSnapshot RPC raft-col733 never carried.
type Manager struct {
	self common.PeerAddress

	mu sync.RWMutex
	peers map[common.PeerId]*Peer

	listener net.Listener
}

var _ common.Transport = (*Manager)(nil)

func NewManager(self common.PeerAddress) *Manager {
	return &Manager{self: self, peers: make(map[common.PeerId]*Peer)}
}

func (m *Manager) LocalAddress() common.PeerAddress {
	return m.self
}

// AddPeers registers addresses for peers this manager may need to call,
// per common.Transport. Connections remain lazy (grounded on
// raft-col733's NewPeer semantics) until first use.
func (m *Manager) AddPeers(peers []common.PeerAddress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range peers {
		if p.Id == m.self.Id {
			continue
		}
		if _, ok := m.peers[p.Id]; !ok {
			m.peers[p.Id] = NewPeer(p.Id, p.Address)
		}
	}
	return nil
}

func (m *Manager) peerFor(id common.PeerId) *Peer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.peers[id]
}

// Start registers handler under the well-known service name and begins
// accepting connections, grounded on Manager.Start loop
// (minus re-listen-forever retry, which masked permanent
// bind failures; a listener that dies now surfaces the error instead).
// When clientHandler is non-nil, external client submissions (the
// kvstore package's RaftClient) are also served off the same listener.
func (m *Manager) Start(handler RPCHandler, clientHandler ClientHandler) error {
	server := rpc.NewServer()
	if err := server.RegisterName("RaftRPC", &rpcService{handler: handler}); err != nil {
		return err
	}
	if clientHandler != nil {
		if err := server.RegisterName("ClientRPC", &clientRPCService{handler: clientHandler}); err != nil {
			return err
		}
	}
	listener, err := net.Listen("tcp", m.self.Address)
	if err != nil {
		return err
	}
	m.listener = listener
	go server.Accept(listener)
	return nil
}

func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var err error
	if m.listener != nil {
		err = m.listener.Close()
	}
	for _, p := range m.peers {
		p.close()
	}
	return err
}
