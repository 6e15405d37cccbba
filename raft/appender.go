package raft

import (
	"context"
	"sync"
	"time"

	"github.com/sushantsondhi/raft-col733/common"
)

// appender replicates entries to exactly one follower: it
// owns nextIndex/matchIndex for that peer, sends AppendEntries on a
// heartbeat cadence or whenever new entries are appended, falls back to
// InstallSnapshot when the follower has fallen behind the leader's log
// start, and reports RPC slowness alert requirement.
// Grounded on broadcastAppendEntries fan-out
// (raft-col733's raft/raft.go), split out into its own long-lived worker
// per peer instead of one-shot goroutines per heartbeat tick, which is
// what letting InstallSnapshot and back-pressure coexist with heartbeats
// requires.
type appender struct {
	core *ServerCore
	leader *LeaderState
	peer common.PeerId

	mu sync.Mutex
	nextIndex common.LogIndex
	matchIndex common.LogIndex
	lastRPCAt time.Time

	notify chan struct{}
	cancel context.CancelFunc
	done chan struct{}
	once sync.Once
}

func newAppender(core *ServerCore, leader *LeaderState, peer common.PeerId, nextIndex common.LogIndex) *appender {
	ctx, cancel := context.WithCancel(context.Background())
	a := &appender{
		core: core,
		leader: leader,
		peer: peer,
		nextIndex: nextIndex,
		notify: make(chan struct{}, 1),
		cancel: cancel,
		done: make(chan struct{}),
	}
	go a.run(ctx)
	return a
}

// signal wakes the appender to replicate promptly instead of waiting for
// the next heartbeat tick.
func (a *appender) signal() {
	select {
	case a.notify <- struct{}{}:
	default:
	}
}

func (a *appender) run(ctx context.Context) {
	defer close(a.done)
	ticker := time.NewTicker(a.core.config.HeartbeatInterval)
	defer ticker.Stop()
	for {
		a.replicateOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-a.notify:
		}
	}
}

func (a *appender) replicateOnce(ctx context.Context) {
	a.core.mu.Lock()
	if a.core.role.Name != RoleLeader {
		a.core.mu.Unlock()
		return
	}
	term := a.core.state.currentTerm
	self := a.core.self
	snapIdx := a.core.state.snapshotIndexLocked()

	a.mu.Lock()
	next := a.nextIndex
	a.mu.Unlock()

	if next <= snapIdx {
		a.core.mu.Unlock()
		a.sendInstallSnapshot(ctx, term, self)
		return
	}

	var prevTermIndex common.TermIndex
	if next > 1 {
		if e, err := a.core.state.log.Get(next - 1); err == nil && e != nil {
			prevTermIndex = e.TermIndex()
		}
	}
	entries := a.core.entriesFromLocked(next)
	leaderCommit := a.core.state.log.GetLastCommittedIndex()
	a.core.mu.Unlock()

	req := &common.AppendEntriesRequest{
		GroupId: a.core.config.GroupId,
		LeaderId: self,
		LeaderTerm: term,
		Previous: prevTermIndex,
		Entries: entries,
		LeaderCommit: leaderCommit,
		CommitInfos: a.core.commitInfo.Snapshot(self, leaderCommit),
	}

	rpcCtx, cancel := context.WithTimeout(ctx, a.core.config.RpcSlownessTimeout)
	defer cancel()
	start := time.Now()
	reply, err := a.core.transport.SendAppendEntries(rpcCtx, a.peer, req).Wait(rpcCtx)
	elapsed := time.Since(start)

	a.mu.Lock()
	a.lastRPCAt = time.Now()
	a.mu.Unlock()

	if err != nil || reply == nil {
		if elapsed >= a.core.config.RpcSlownessTimeout {
			a.core.log.Warnf("appender to %s: rpc slowness (%s)", a.peer, elapsed)
		}
		return
	}

	if reply.Term > term {
		a.core.stepDownIfStale(reply.Term)
		return
	}

	switch reply.Result {
	case common.AppendSuccess:
		a.mu.Lock()
		a.matchIndex = prevTermIndex.Index + common.LogIndex(len(entries))
		a.nextIndex = a.matchIndex + 1
		matchIndex := a.matchIndex
		a.mu.Unlock()
		a.core.commitInfo.Update(a.peer, reply.FollowerCommit)
		a.leader.ackFrom(a.peer)
		a.core.onMatchIndexAdvanced(a.peer, matchIndex)
	case common.AppendInconsistency:
		a.mu.Lock()
		if reply.NextIndex > 0 && reply.NextIndex < a.nextIndex {
			a.nextIndex = reply.NextIndex
		} else if a.nextIndex > 1 {
			a.nextIndex--
		}
		a.mu.Unlock()
		a.signal()
	case common.AppendMalformed:
		err := common.NewIOFaultError("leader produced a malformed AppendEntries entry sequence")
		a.core.log.WithError(err).WithField("peer", a.peer).Error("appender: follower rejected entry sequence as malformed")
		a.core.stepDown(err.Error())
	case common.AppendNotLeader:
	}
}

// installSnapshotChunkSize bounds one InstallSnapshotRequest's payload,
// so a large state machine dump is streamed rather than sent as a single
// oversized RPC.
const installSnapshotChunkSize = 32 * 1024

// sendInstallSnapshot dispatches to chunk-mode or notify-mode depending
// on config.InstallSnapshotEnabled: chunk-mode pushes the state
// machine's own bytes down the wire immediately, notify-mode only tells
// the follower where to start and lets its state machine fetch the
// snapshot itself out of band.
func (a *appender) sendInstallSnapshot(ctx context.Context, term common.Term, self common.PeerId) {
	if a.core.config.InstallSnapshotEnabled {
		a.sendInstallSnapshotChunks(ctx, term, self)
		return
	}
	a.sendInstallSnapshotNotification(ctx, term, self)
}

func (a *appender) sendInstallSnapshotNotification(ctx context.Context, term common.Term, self common.PeerId) {
	a.core.mu.RLock()
	snap, err := a.core.state.snapshots.GetLatestSnapshot()
	a.core.mu.RUnlock()
	if err != nil || snap == nil {
		return
	}
	req := &common.InstallSnapshotRequest{
		GroupId: a.core.config.GroupId,
		LeaderId: self,
		LeaderTerm: term,
		Notification: &common.SnapshotNotification{
			FirstAvailableTerm: snap.Term,
			FirstAvailableIndex: snap.Index,
		},
	}
	rpcCtx, cancel := context.WithTimeout(ctx, a.core.config.InstallSnapshotTimeout)
	defer cancel()
	reply, err := a.core.transport.SendInstallSnapshot(rpcCtx, a.peer, req).Wait(rpcCtx)
	if err != nil || reply == nil {
		return
	}
	if reply.Term > term {
		a.core.stepDownIfStale(reply.Term)
		return
	}
	if reply.Result == common.InstallSuccess {
		a.mu.Lock()
		a.matchIndex = snap.Index
		a.nextIndex = snap.Index + 1
		a.mu.Unlock()
		a.leader.ackFrom(a.peer)
		a.core.onMatchIndexAdvanced(a.peer, snap.Index)
	}
}

// sendInstallSnapshotChunks takes a fresh dump of the state machine and
// streams it to the follower one chunk at a time, waiting for each
// chunk's reply before sending the next so a slow or unreachable
// follower never has more than one chunk outstanding.
func (a *appender) sendInstallSnapshotChunks(ctx context.Context, term common.Term, self common.PeerId) {
	data, ti, err := a.core.stateMachine.TakeSnapshot()
	if err != nil {
		a.core.log.WithError(err).Warn("appender: failed to take snapshot for chunk-mode install")
		return
	}
	if len(data) == 0 {
		data = []byte{}
	}
	total := len(data)
	chunkCount := (total + installSnapshotChunkSize - 1) / installSnapshotChunkSize
	if chunkCount == 0 {
		chunkCount = 1
	}
	var reply *common.InstallSnapshotReply
	for i := 0; i < chunkCount; i++ {
		start := i * installSnapshotChunkSize
		end := start + installSnapshotChunkSize
		if end > total {
			end = total
		}
		chunk := &common.SnapshotChunk{
			Term: ti.Term,
			Index: ti.Index,
			ChunkIndex: i,
			Data: data[start:end],
			Done: i == chunkCount-1,
		}
		req := &common.InstallSnapshotRequest{
			GroupId: a.core.config.GroupId,
			LeaderId: self,
			LeaderTerm: term,
			Chunk: chunk,
		}
		rpcCtx, cancel := context.WithTimeout(ctx, a.core.config.InstallSnapshotTimeout)
		r, err := a.core.transport.SendInstallSnapshot(rpcCtx, a.peer, req).Wait(rpcCtx)
		cancel()
		if err != nil || r == nil {
			return
		}
		if r.Term > term {
			a.core.stepDownIfStale(r.Term)
			return
		}
		if r.Result != common.InstallSuccess {
			return
		}
		reply = r
	}
	if reply == nil {
		return
	}
	a.mu.Lock()
	a.matchIndex = ti.Index
	a.nextIndex = ti.Index + 1
	a.mu.Unlock()
	a.leader.ackFrom(a.peer)
	a.core.onMatchIndexAdvanced(a.peer, ti.Index)
}

func (a *appender) matchIndexSnapshot() common.LogIndex {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.matchIndex
}

func (a *appender) stop() {
	a.once.Do(func() {
		a.cancel()
		<-a.done
	})
}
