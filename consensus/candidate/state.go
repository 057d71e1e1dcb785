package candidate

import (
	"github.com/go-errors/errors"

	. "github.com/divtxt/raftcore"
	"github.com/divtxt/raftcore/config"
)

// Volatile state on candidates
type CandidateVolatileState struct {
	thisServerId ServerId
	votes        map[ServerId]bool // peer -> vote granted
}

// New instance set up for a fresh election.
//
// The candidate's vote for itself is counted if it is a member of the
// configuration.
func NewCandidateVolatileState(clusterInfo *config.ClusterInfo) *CandidateVolatileState {
	cvs := &CandidateVolatileState{
		clusterInfo.GetThisServerId(),
		make(map[ServerId]bool),
	}

	_ = clusterInfo.ForEachPeer(
		func(peerId ServerId) error {
			cvs.votes[peerId] = false
			return nil
		},
	)

	return cvs
}

// AddVoteFrom records a granted vote from the given peer.
// Duplicate votes are counted once.
func (cvs *CandidateVolatileState) AddVoteFrom(peerId ServerId) error {
	if _, ok := cvs.votes[peerId]; !ok {
		return errors.Errorf("CandidateVolatileState.AddVoteFrom(): unknown peer: %v", peerId)
	}
	cvs.votes[peerId] = true
	return nil
}

// HasQuorum checks if the votes received, including our own, form a quorum
// of the given cluster configuration.
//
// #5.2-p3s1: A candidate wins an election if it receives votes from a
// majority of the servers in the full cluster for the same term.
func (cvs *CandidateVolatileState) HasQuorum(clusterInfo *config.ClusterInfo) bool {
	return clusterInfo.HasQuorum(cvs.votedFor)
}

func (cvs *CandidateVolatileState) votedFor(serverId ServerId) bool {
	if serverId == cvs.thisServerId {
		return true
	}
	return cvs.votes[serverId]
}

// GetVoteCount returns the number of granted votes, including our own.
func (cvs *CandidateVolatileState) GetVoteCount() int {
	n := 1
	for _, granted := range cvs.votes {
		if granted {
			n++
		}
	}
	return n
}
