package rpc

import (
	"context"
	"io"
	"net/rpc"
	"sync"
	"time"

	"github.com/sushantsondhi/raft-col733/common"
)

// Peer is a lazily-dialed net/rpc client for one remote group member,
// grounded on Peer (rpc/peer.go): the connection is not
// established until the first call, and a transient dial/EOF failure is
// retried a few times before giving up, generalized to also bail out
// early when the caller's context is cancelled.
type Peer struct {
	id common.PeerId
	address string

	mu sync.Mutex
	client *rpc.Client
}

func NewPeer(id common.PeerId, address string) *Peer {
	return &Peer{id: id, address: address}
}

func (p *Peer) call(ctx context.Context, method string, args interface{}, result interface{}) error {
	var err error
	for i := 0; i < 3; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		p.mu.Lock()
		client := p.client
		p.mu.Unlock()

		if client == nil {
			client, err = rpc.Dial("tcp", p.address)
			if err != nil {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(time.Second):
				}
				continue
			}
			p.mu.Lock()
			p.client = client
			p.mu.Unlock()
		}

		err = client.Call(method, args, result)
		if err == io.EOF || err == rpc.ErrShutdown {
			p.mu.Lock()
			client.Close()
			p.client = nil
			p.mu.Unlock()
			continue
		}
		return err
	}
	return err
}

func (p *Peer) close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client == nil {
		return nil
	}
	err := p.client.Close()
	p.client = nil
	return err
}
