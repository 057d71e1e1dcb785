package config

import (
	"github.com/go-errors/errors"

	. "github.com/divtxt/raftcore"
)

// A ClusterInfo holds the ServerId of "this" server and the cluster
// Configuration currently in effect, and provides useful functions to work
// with them.
//
// A ClusterInfo is immutable. A configuration change creates a new one.
type ClusterInfo struct {
	thisServerId  ServerId
	configuration Configuration
	peerServerIds []ServerId // All servers in either set, excluding thisServerId
}

// Allocate and initialize a ClusterInfo with the given Configuration.
//
//  - the Configuration must be valid (see Configuration.Validate).
//  - thisServerId is the ServerId of "this" server and must not be 0.
//  - the Configuration may exclude thisServerId. Such a server is not a
//    voter: it does not start elections or count towards quorums.
//
func NewClusterInfo(
	configuration Configuration,
	thisServerId ServerId,
) (*ClusterInfo, error) {
	if thisServerId == 0 {
		return nil, errors.Errorf("thisServerId is 0")
	}
	err := configuration.Validate()
	if err != nil {
		return nil, err
	}

	all := configuration.AllServers()
	peerServerIds := make([]ServerId, 0, len(all))
	for _, serverId := range all {
		if serverId != thisServerId {
			peerServerIds = append(peerServerIds, serverId)
		}
	}

	ci := &ClusterInfo{
		thisServerId,
		configuration,
		peerServerIds,
	}

	return ci, nil
}

// Get the ServerId of "this" server.
func (ci *ClusterInfo) GetThisServerId() ServerId {
	return ci.thisServerId
}

// Get the Configuration.
func (ci *ClusterInfo) GetConfiguration() Configuration {
	return ci.configuration
}

// Iterate over the list of all peer servers in the cluster and call the given
// function with it's ServerId.
//
// "Peer" servers here means all servers in either set of the configuration
// except for "this" server.
//
// If the function returns an error for a peer, the error is returned
// and no further peers are processed.
func (ci *ClusterInfo) ForEachPeer(f func(serverId ServerId) error) error {
	for _, serverId := range ci.peerServerIds {
		err := f(serverId)
		if err != nil {
			return err
		}
	}
	return nil
}

// IsPeer checks if the given ServerId is a peer server in the cluster.
//
// "Peer" servers here means all servers except for "this" server.
func (ci *ClusterInfo) IsPeer(serverId ServerId) bool {
	for _, peerServerId := range ci.peerServerIds {
		if serverId == peerServerId {
			return true
		}
	}
	return false
}

// IsVoter checks if "this" server is a voter in the configuration.
func (ci *ClusterInfo) IsVoter() bool {
	return ci.configuration.Contains(ci.thisServerId)
}

// Get the number of distinct servers in the configuration.
func (ci *ClusterInfo) GetClusterSize() uint {
	return uint(len(ci.configuration.AllServers()))
}

// HasQuorum checks if the given servers form a quorum of the configuration.
// See the HasQuorum function.
func (ci *ClusterInfo) HasQuorum(granted func(ServerId) bool) bool {
	return HasQuorum(ci.configuration, granted)
}

// QuorumMatchIndex returns the highest index replicated on a quorum of the
// configuration. See the QuorumMatchIndex function.
func (ci *ClusterInfo) QuorumMatchIndex(matchIndex func(ServerId) LogIndex) LogIndex {
	return QuorumMatchIndex(ci.configuration, matchIndex)
}
