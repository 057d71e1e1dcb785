package consensus

import (
	. "github.com/divtxt/raftcore"
)

type readRequest struct {
	round uint64
	ch    chan LogIndex
}

// RequestReadIndex starts a read barrier.
//
// A new heartbeat round is started and the returned channel gets the
// commitIndex once a quorum has acknowledged the round and an entry of the
// current term is committed. Reads at that index are linearizable once it
// has been applied.
//
// The channel is closed without a value if leadership is lost first.
//
// #8-p4s4: ... the leader must check whether it has been deposed before
// processing a read-only request.
func (cm *PassiveConsensusModule) RequestReadIndex() (<-chan LogIndex, error) {
	if cm.serverState != LEADER {
		return nil, ErrNotLeader
	}
	cm.round++
	ch := make(chan LogIndex, 1)
	cm.readRequests = append(cm.readRequests, &readRequest{cm.round, ch})
	err := cm.sendAppendEntriesToAllPeers(true)
	if err != nil {
		return nil, err
	}
	// Needed for a single server cluster.
	err = cm.checkReadRequests()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// Complete the read requests whose round has been acknowledged by a quorum.
func (cm *PassiveConsensusModule) checkReadRequests() error {
	if len(cm.readRequests) == 0 {
		return nil
	}

	// #8-p4s2: ... the leader must have the latest information on which
	// entries are committed. ... Raft handles this by having each leader
	// commit a blank no-op entry into the log at the start of its term.
	commitIndex := cm.commitIndex.UnsafeGet()
	termAtCommitIndex, err := cm.log.GetTermAtIndex(commitIndex)
	if err != nil {
		return err
	}
	if termAtCommitIndex != cm.RaftPersistentState.GetCurrentTerm() {
		return nil
	}

	// Rounds only increase, so requests are acknowledged in order.
	n := 0
	for _, rr := range cm.readRequests {
		acked := cm.ClusterInfo.HasQuorum(func(serverId ServerId) bool {
			return serverId == cm.thisServerId ||
				cm.LeaderVolatileState.GetAckedRound(serverId) >= rr.round
		})
		if !acked {
			break
		}
		rr.ch <- commitIndex
		n++
	}
	cm.readRequests = cm.readRequests[n:]
	return nil
}
