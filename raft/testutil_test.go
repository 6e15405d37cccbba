package raft

import (
	"context"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/sushantsondhi/raft-col733/common"
	"github.com/sushantsondhi/raft-col733/kvstore"
)

// fakeLogStore is an in-memory common.LogStore, standing in for
// persistent.DbLogStore in unit tests that exercise ServerCore's handler
// logic without touching disk.
type fakeLogStore struct {
	mu sync.Mutex
	entries map[common.LogIndex]common.LogEntry
	next common.LogIndex
	commit common.LogIndex
}

func newFakeLogStore() *fakeLogStore {
	return &fakeLogStore{entries: make(map[common.LogIndex]common.LogEntry), next: 1}
}

func (f *fakeLogStore) Append(entries []common.LogEntry) []*common.Future[error] {
	f.mu.Lock()
	defer f.mu.Unlock()
	futures := make([]*common.Future[error], len(entries))
	for i, e := range entries {
		f.entries[e.Index] = e
		if e.Index >= f.next {
			f.next = e.Index + 1
		}
		futures[i] = common.Completed[error](nil)
	}
	return futures
}

func (f *fakeLogStore) Get(index common.LogIndex) (*common.LogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[index]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (f *fakeLogStore) Contains(ti common.TermIndex) bool {
	if ti.Index == common.NoIndex {
		return true
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[ti.Index]
	return ok && e.Term == ti.Term
}

func (f *fakeLogStore) LastEntry() (*common.LogEntry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.next == 1 {
		return nil, false
	}
	e := f.entries[f.next-1]
	return &e, true
}

func (f *fakeLogStore) GetNextIndex() common.LogIndex {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.next
}

func (f *fakeLogStore) GetLastCommittedIndex() common.LogIndex {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.commit
}

func (f *fakeLogStore) SetLastCommittedIndex(index common.LogIndex) error {
	f.mu.Lock()
	f.commit = index
	f.mu.Unlock()
	return nil
}

func (f *fakeLogStore) TruncateAfter(index common.LogIndex) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for idx := range f.entries {
		if idx > index {
			delete(f.entries, idx)
		}
	}
	max := common.LogIndex(0)
	for idx := range f.entries {
		if idx > max {
			max = idx
		}
	}
	f.next = max + 1
	return nil
}

func (f *fakeLogStore) Close() error { return nil }

var _ common.LogStore = (*fakeLogStore)(nil)

// fakeMetadataStore is an in-memory common.MetadataStore.
type fakeMetadataStore struct {
	mu sync.Mutex
	term common.Term
	votedFor *common.PeerId
}

func (f *fakeMetadataStore) PersistMetadata(term common.Term, votedFor *common.PeerId) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.term = term
	f.votedFor = votedFor
	return nil
}

func (f *fakeMetadataStore) LoadMetadata() (common.Term, *common.PeerId, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.term, f.votedFor, nil
}

func (f *fakeMetadataStore) Close() error { return nil }

var _ common.MetadataStore = (*fakeMetadataStore)(nil)

// fakeSnapshotStore is an in-memory common.SnapshotStore that also lets
// tests poke installed/latest pointers directly to simulate a snapshot
// having already landed, without going through a real InstallSnapshot
// round trip.
type fakeSnapshotStore struct {
	mu sync.Mutex
	latest *common.TermIndex
	installed *common.TermIndex
	chunks map[common.LogIndex]map[int][]byte
}

func newFakeSnapshotStore() *fakeSnapshotStore {
	return &fakeSnapshotStore{chunks: make(map[common.LogIndex]map[int][]byte)}
}

func (f *fakeSnapshotStore) GetLatestSnapshot() (*common.TermIndex, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest, nil
}

func (f *fakeSnapshotStore) GetLatestInstalledSnapshot() (*common.TermIndex, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.installed, nil
}

func (f *fakeSnapshotStore) InstallChunk(chunk *common.SnapshotChunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.chunks[chunk.Index] == nil {
		f.chunks[chunk.Index] = make(map[int][]byte)
	}
	f.chunks[chunk.Index][chunk.ChunkIndex] = chunk.Data
	if chunk.Done {
		ti := common.TermIndex{Term: chunk.Term, Index: chunk.Index}
		f.latest = &ti
		f.installed = &ti
	}
	return nil
}

func (f *fakeSnapshotStore) RecordInstalled(ti common.TermIndex) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latest = &ti
	f.installed = &ti
	return nil
}

func (f *fakeSnapshotStore) Close() error { return nil }

var _ common.SnapshotStore = (*fakeSnapshotStore)(nil)

// setInstalled directly sets the installed/latest pointer, for
// tests simulating "this follower already has a snapshot at ti".
func (f *fakeSnapshotStore) setInstalled(ti common.TermIndex) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latest = &ti
	f.installed = &ti
}

// recordedInstallSnapshotRequest captures one outbound InstallSnapshot
// call for assertions in appender tests.
type recordedInstallSnapshotRequest struct {
	req *common.InstallSnapshotRequest
}

// fakeTransport is a no-op common.Transport for handler-level unit tests
// that never need a real network round trip; SendInstallSnapshot
// optionally records what it was asked to send and returns a canned
// reply, for appender wiring tests.
type fakeTransport struct {
	addr common.PeerAddress

	mu sync.Mutex
	sentInstallSnapshot []recordedInstallSnapshotRequest
	installSnapshotReply *common.InstallSnapshotReply
}

func (t *fakeTransport) SendRequestVote(ctx context.Context, peer common.PeerId, req *common.RequestVoteRequest) *common.Future[*common.RequestVoteReply] {
	return common.Completed[*common.RequestVoteReply](nil)
}

func (t *fakeTransport) SendAppendEntries(ctx context.Context, peer common.PeerId, req *common.AppendEntriesRequest) *common.Future[*common.AppendEntriesReply] {
	return common.Completed[*common.AppendEntriesReply](nil)
}

func (t *fakeTransport) SendInstallSnapshot(ctx context.Context, peer common.PeerId, req *common.InstallSnapshotRequest) *common.Future[*common.InstallSnapshotReply] {
	t.mu.Lock()
	t.sentInstallSnapshot = append(t.sentInstallSnapshot, recordedInstallSnapshotRequest{req: req})
	reply := t.installSnapshotReply
	t.mu.Unlock()
	return common.Completed(reply)
}

func (t *fakeTransport) AddPeers(peers []common.PeerAddress) error { return nil }

func (t *fakeTransport) LocalAddress() common.PeerAddress { return t.addr }

func (t *fakeTransport) recordedRequests() []recordedInstallSnapshotRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]recordedInstallSnapshotRequest, len(t.sentInstallSnapshot))
	copy(out, t.sentInstallSnapshot)
	return out
}

var _ common.Transport = (*fakeTransport)(nil)

// testCore bundles a ServerCore built for handler-level unit tests with
// the fakes backing it, so a test can both call exported/unexported
// ServerCore methods and reach into its collaborators directly.
type testCore struct {
	core *ServerCore
	log *fakeLogStore
	meta *fakeMetadataStore
	snap *fakeSnapshotStore
	transport *fakeTransport
	fsm *kvstore.KeyValFSM
}

// newTestCore builds a started ServerCore whose configuration lists self
// plus every id in otherPeers, backed entirely by in-memory fakes.
func newTestCore(t *testing.T, self common.PeerId, otherPeers ...common.PeerId) *testCore {
	t.Helper()
	cfg := DefaultServerConfig()
	cfg.GroupId = common.NewGroupId()
	cfg.Peers = append(cfg.Peers, common.PeerAddress{Id: self, Address: "127.0.0.1:0"})
	for _, p := range otherPeers {
		cfg.Peers = append(cfg.Peers, common.PeerAddress{Id: p, Address: "127.0.0.1:0"})
	}

	log := newFakeLogStore()
	meta := &fakeMetadataStore{}
	snap := newFakeSnapshotStore()
	transport := &fakeTransport{addr: common.PeerAddress{Id: self, Address: "127.0.0.1:0"}}
	fsm := kvstore.NewKeyValFSM(logrus.NewEntry(logrus.New()))

	core, err := NewServerCore(self, cfg, log, meta, snap, transport, fsm, logrus.New())
	require.NoError(t, err)
	require.NoError(t, core.Start())
	t.Cleanup(func() { _ = core.Stop() })

	return &testCore{core: core, log: log, meta: meta, snap: snap, transport: transport, fsm: fsm}
}
