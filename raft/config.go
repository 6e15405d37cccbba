package raft

import (
	"time"

	"github.com/sushantsondhi/raft-col733/common"
)

// ServerConfig carries the tunable properties of the Raft protocol
// itself, generalized from common.ClusterConfig
// (raft-col733's raft/config.go) with added timeout and retry-cache
// knobs.
type ServerConfig struct {
	GroupId common.GroupId
	Peers []common.PeerAddress

	MinElectionTimeout time.Duration
	MaxElectionTimeout time.Duration
	HeartbeatInterval time.Duration

	// RpcSlownessTimeout bounds each AppendEntries call; a failed call
	// that took at least this long is logged as slow. Appenders are not
	// removed for slowness.
	RpcSlownessTimeout time.Duration

	InstallSnapshotEnabled bool
	InstallSnapshotTimeout time.Duration

	RetryCacheCapacity int
	RetryCacheExpiry time.Duration
}

// DefaultServerConfig returns reasonable defaults in the same spirit as
// generateConfig CLI sub-command defaults (main.go).
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		MinElectionTimeout: 150 * time.Millisecond,
		MaxElectionTimeout: 300 * time.Millisecond,
		HeartbeatInterval: 50 * time.Millisecond,
		RpcSlownessTimeout: 1 * time.Second,
		InstallSnapshotEnabled: true,
		InstallSnapshotTimeout: 30 * time.Second,
		RetryCacheCapacity: 10000,
		RetryCacheExpiry: 5 * time.Minute,
	}
}
