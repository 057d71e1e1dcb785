package config

import (
	. "github.com/divtxt/raftcore"
	"github.com/divtxt/raftcore/util"
)

// Helper function to calculate the quorum size for a given cluster size.
//
// For example, a cluster of 5 nodes requires 3 nodes for quorum.
func QuorumSizeForClusterSize(clusterSize uint) uint {
	return (clusterSize / 2) + 1
}

// MajorityMatchIndex returns the highest log index that a majority of the
// given servers have reached according to matchIndex.
//
// Returns 0 for an empty list.
func MajorityMatchIndex(serverIds []ServerId, matchIndex func(ServerId) LogIndex) LogIndex {
	if len(serverIds) == 0 {
		return 0
	}
	indexes := make([]LogIndex, len(serverIds))
	for i, s := range serverIds {
		indexes[i] = matchIndex(s)
	}
	quorumSize := QuorumSizeForClusterSize(uint(len(serverIds)))
	return util.KthLargest(indexes, int(quorumSize))
}

// QuorumMatchIndex returns the highest log index replicated on a quorum of
// the given configuration.
//
// For a joint configuration this needs a majority of both sets, so it is the
// lower of the two majority indexes.
//
// A server only counts towards a set it is a member of. In particular a
// leader that is not in the configuration does not count itself.
func QuorumMatchIndex(c Configuration, matchIndex func(ServerId) LogIndex) LogIndex {
	n := MajorityMatchIndex(c.Servers, matchIndex)
	if c.IsJoint() {
		n = util.Min(n, MajorityMatchIndex(c.NewServers, matchIndex))
	}
	return n
}

// HasMajority checks if a majority of the given servers are granted.
func HasMajority(serverIds []ServerId, granted func(ServerId) bool) bool {
	var n uint = 0
	for _, s := range serverIds {
		if granted(s) {
			n++
		}
	}
	return n >= QuorumSizeForClusterSize(uint(len(serverIds)))
}

// HasQuorum checks if the granted servers form a quorum of the given configuration.
//
// For a joint configuration this needs a majority of both sets.
func HasQuorum(c Configuration, granted func(ServerId) bool) bool {
	if !HasMajority(c.Servers, granted) {
		return false
	}
	if c.IsJoint() {
		return HasMajority(c.NewServers, granted)
	}
	return true
}
