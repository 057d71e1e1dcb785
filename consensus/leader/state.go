package leader

import (
	"fmt"

	"github.com/go-errors/errors"

	. "github.com/divtxt/raftcore"
	"github.com/divtxt/raftcore/config"
	"github.com/divtxt/raftcore/internal"
)

// Volatile state on leaders
// (Reinitialized after election)
type LeaderVolatileState struct {
	followerManagers map[ServerId]*FollowerManager

	aeSender internal.IAppendEntriesSender
}

func (lvs *LeaderVolatileState) GoString() string {
	return fmt.Sprintf(
		"&LeaderVolatileState{NextIndex: %#v, MatchIndex: %#v}",
		lvs.NextIndexes(),
		lvs.MatchIndexes(),
	)
}

// New instance set up for a fresh leader
func NewLeaderVolatileState(
	clusterInfo *config.ClusterInfo,
	indexOfLastEntry LogIndex,
	aeSender internal.IAppendEntriesSender,
) (*LeaderVolatileState, error) {
	lvs := &LeaderVolatileState{
		make(map[ServerId]*FollowerManager),
		aeSender,
	}

	err := lvs.SyncFollowerManagers(clusterInfo, indexOfLastEntry)
	if err != nil {
		return nil, err
	}

	return lvs, nil
}

// SyncFollowerManagers adds follower managers for peers that are new in the
// given cluster configuration and drops those for servers no longer in it.
func (lvs *LeaderVolatileState) SyncFollowerManagers(
	clusterInfo *config.ClusterInfo,
	indexOfLastEntry LogIndex,
) error {
	peers := make(map[ServerId]bool)
	err := clusterInfo.ForEachPeer(
		func(peerId ServerId) error {
			peers[peerId] = true
			if _, ok := lvs.followerManagers[peerId]; !ok {
				// #5.3-p8s4: When a leader first comes to power, it initializes
				// all nextIndex values to the index just after the last one in
				// its log (11 in Figure 7).
				lvs.followerManagers[peerId] = NewFollowerManager(
					peerId,
					indexOfLastEntry+1,
					0,
					lvs.aeSender,
				)
			}
			return nil
		},
	)
	if err != nil {
		return err
	}
	for peerId := range lvs.followerManagers {
		if !peers[peerId] {
			delete(lvs.followerManagers, peerId)
		}
	}
	return nil
}

// Get the FollowerManager for the given peer
func (lvs *LeaderVolatileState) GetFollowerManager(peerId ServerId) (*FollowerManager, error) {
	fm, ok := lvs.followerManagers[peerId]
	if !ok {
		return nil, errors.Errorf("LeaderVolatileState.GetFollowerManager(): unknown peer: %v", peerId)
	}
	return fm, nil
}

// Get the matchIndex for the given peer, 0 for an unknown peer.
func (lvs *LeaderVolatileState) GetMatchIndex(peerId ServerId) LogIndex {
	fm, ok := lvs.followerManagers[peerId]
	if !ok {
		return 0
	}
	return fm.matchIndex
}

// Get the acknowledged heartbeat round for the given peer, 0 for an unknown peer.
func (lvs *LeaderVolatileState) GetAckedRound(peerId ServerId) uint64 {
	fm, ok := lvs.followerManagers[peerId]
	if !ok {
		return 0
	}
	return fm.ackedRound
}

// Get the nextIndex values of all peers.
func (lvs *LeaderVolatileState) NextIndexes() map[ServerId]LogIndex {
	m := make(map[ServerId]LogIndex)
	for peerId, fm := range lvs.followerManagers {
		m[peerId] = fm.nextIndex
	}
	return m
}

// Get the matchIndex values of all peers.
func (lvs *LeaderVolatileState) MatchIndexes() map[ServerId]LogIndex {
	m := make(map[ServerId]LogIndex)
	for peerId, fm := range lvs.followerManagers {
		m[peerId] = fm.matchIndex
	}
	return m
}

// Helper method to find potential new commitIndex.
// Returns the highest N possible that is higher than currentCommitIndex.
// Returns 0 if no match found.
//
// #RFS-L4: If there exists an N such that N > commitIndex, a majority
// of matchIndex[i] >= N, and log[N].term == currentTerm:
// set commitIndex = N (#5.3, #5.4)
//
// The majority is that of the given cluster configuration, where the leader
// counts as having all of its own log if it is a member.
func FindNewerCommitIndex(
	ci *config.ClusterInfo,
	lvs *LeaderVolatileState,
	log LogReadOnly,
	currentTerm TermNo,
	currentCommitIndex LogIndex,
) (LogIndex, error) {
	indexOfLastEntry, err := log.GetIndexOfLastEntry()
	if err != nil {
		return 0, err
	}
	thisServerId := ci.GetThisServerId()
	quorumIndex := ci.QuorumMatchIndex(func(serverId ServerId) LogIndex {
		if serverId == thisServerId {
			return indexOfLastEntry
		}
		return lvs.GetMatchIndex(serverId)
	})
	// Terms in the log never decrease, so walk down from the quorum index
	// to the highest entry of the current term.
	for N := quorumIndex; N > currentCommitIndex; N-- {
		termAtN, err := log.GetTermAtIndex(N)
		if err != nil {
			return 0, err
		}
		if termAtN == currentTerm {
			return N, nil
		}
		if termAtN < currentTerm {
			break
		}
	}
	return 0, nil
}
