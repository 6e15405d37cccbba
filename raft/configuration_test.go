package raft

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sushantsondhi/raft-col733/common"
)

func TestConfigurationView_AllPeersDedupesJoint(t *testing.T) {
	a, b, c := common.NewPeerId(), common.NewPeerId(), common.NewPeerId()
	view := ConfigurationView{Peers: []common.PeerId{a, b}, Staging: []common.PeerId{b, c}}
	all := view.AllPeers()
	assert.ElementsMatch(t, []common.PeerId{a, b, c}, all)
}

func TestConfigurationView_ContainsAndBootstrapping(t *testing.T) {
	a, b, c := common.NewPeerId(), common.NewPeerId(), common.NewPeerId()
	stranger := common.NewPeerId()
	view := ConfigurationView{Peers: []common.PeerId{a, b}, Staging: []common.PeerId{b, c}}

	assert.True(t, view.Contains(a))
	assert.True(t, view.Contains(c))
	assert.False(t, view.Contains(stranger))

	assert.False(t, view.IsBootstrapping(a), "already in the stable set")
	assert.True(t, view.IsBootstrapping(c), "only in staging")
	assert.False(t, view.IsBootstrapping(stranger))
}

func TestConfigurationView_HasMajorityRequiresBothSetsWhenJoint(t *testing.T) {
	a, b, c, d := common.NewPeerId(), common.NewPeerId(), common.NewPeerId(), common.NewPeerId()
	view := ConfigurationView{Peers: []common.PeerId{a, b}, Staging: []common.PeerId{c, d}}

	// Majority of old set only: not enough, staging set has zero votes.
	votes := map[common.PeerId]bool{a: true, b: true}
	assert.False(t, view.HasMajority(votes))

	// Majority of both independently: satisfied.
	votes = map[common.PeerId]bool{a: true, b: true, c: true, d: true}
	assert.True(t, view.HasMajority(votes))

	stable := ConfigurationView{Peers: []common.PeerId{a, b, c}}
	assert.True(t, stable.HasMajority(map[common.PeerId]bool{a: true, b: true}))
	assert.False(t, stable.HasMajority(map[common.PeerId]bool{a: true}))
}

func TestConfigurationView_CommitIndexForTakesMinAcrossJointSets(t *testing.T) {
	self, p2, p3, p4 := common.NewPeerId(), common.NewPeerId(), common.NewPeerId(), common.NewPeerId()
	view := ConfigurationView{Peers: []common.PeerId{self, p2, p3}, Staging: []common.PeerId{self, p4}}

	matchIndex := map[common.PeerId]common.LogIndex{p2: 10, p3: 5, p4: 2}
	// old set {self=12, p2=10, p3=5} majority (2 of 3) -> 10
	// staging set {self=12, p4=2} majority (2 of 2, min of the two) -> 2
	// joint result is the min of the two independent majorities.
	got := view.CommitIndexFor(self, 12, matchIndex)
	assert.Equal(t, common.LogIndex(2), got)
}

func TestConfigurationView_CommitIndexForStableMajority(t *testing.T) {
	self, p2, p3 := common.NewPeerId(), common.NewPeerId(), common.NewPeerId()
	view := ConfigurationView{Peers: []common.PeerId{self, p2, p3}}
	matchIndex := map[common.PeerId]common.LogIndex{p2: 7, p3: 3}
	got := view.CommitIndexFor(self, 9, matchIndex)
	assert.Equal(t, common.LogIndex(7), got)
}
