// AppendEntriesReply RPC
// Reply to leader.

package consensus

import (
	. "github.com/divtxt/raftcore"
)

func (cm *PassiveConsensusModule) RpcReply_RpcAppendEntriesReply(
	from ServerId,
	round uint64,
	appendEntries *RpcAppendEntries,
	appendEntriesReply *RpcAppendEntriesReply,
) error {
	serverTerm := cm.RaftPersistentState.GetCurrentTerm()

	// #RFS-A2: If RPC request or response contains term T > currentTerm:
	// set currentTerm = T, convert to follower (#5.1)
	// #5.1-p3s4: ...; if one server's current term is smaller than the
	// other's, then it updates its current term to the larger value.
	// #5.1-p3s5: If a candidate or leader discovers that its term is out of
	// date, it immediately reverts to follower state.
	senderCurrentTerm := appendEntriesReply.Term
	if senderCurrentTerm > serverTerm {
		return cm.becomeFollowerWithTerm(senderCurrentTerm)
	}

	// Extra: ignore replies for previous term rpc
	if appendEntries.Term != serverTerm || cm.serverState != LEADER {
		return nil
	}

	// Extra: ignore replies from servers removed by a configuration change
	fm, err := cm.LeaderVolatileState.GetFollowerManager(from)
	if err != nil {
		return nil
	}

	// Any reply in this term confirms leadership for the round.
	fm.AckRound(round)

	if appendEntriesReply.Success {
		// #RFS-L3.1: If successful: update nextIndex and matchIndex for
		// follower (#5.3)
		newMatchIndex := appendEntries.PrevLogIndex + LogIndex(len(appendEntries.Entries))
		fm.UpdateAfterSuccess(newMatchIndex)

		// #RFS-L4: If there exists an N such that N > commitIndex, a majority
		// of matchIndex[i] >= N, and log[N].term == currentTerm:
		// set commitIndex = N (#5.3, #5.4)
		err = cm.advanceCommitIndexIfPossible()
		if err != nil {
			return err
		}
		if cm.serverState != LEADER {
			return nil
		}

		// #RFS-L3.0: If last log index >= nextIndex for a follower: send
		// AppendEntries RPC with log entries starting at nextIndex
		iole, err := cm.log.GetIndexOfLastEntry()
		if err != nil {
			return err
		}
		if fm.GetNextIndex() <= iole {
			err = fm.SendAppendEntriesToPeerAsync(
				false,
				serverTerm,
				cm.commitIndex.UnsafeGet(),
				cm.round,
			)
			if err != nil {
				return err
			}
		}
		return cm.checkReadRequests()
	}

	// Ignore a failure for an RpcAppendEntries that does not match the current state.
	if appendEntries.PrevLogIndex != fm.GetNextIndex()-1 {
		return cm.checkReadRequests()
	}

	// #RFS-L3.2: If AppendEntries fails because of log inconsistency:
	// decrement nextIndex and retry (#5.3)
	// #5.3-p8s6: After a rejection, the leader decrements nextIndex and
	// retries the AppendEntries RPC.
	// #5.3-p9s1: If desired, the protocol can be optimized to reduce the
	// number of rejected AppendEntries RPCs.
	newNextIndex, err := cm.nextIndexFromConflict(fm.GetNextIndex(), appendEntriesReply)
	if err != nil {
		return err
	}
	err = fm.BackOffNextIndex(newNextIndex)
	if err != nil {
		return err
	}
	err = fm.SendAppendEntriesToPeerAsync(
		false,
		serverTerm,
		cm.commitIndex.UnsafeGet(),
		cm.round,
	)
	if err != nil {
		return err
	}
	return cm.checkReadRequests()
}

// Use the conflict hint in a failure reply to choose the next nextIndex.
//
// If the leader has entries of the conflicting term, the follower is sent
// the entries after the leader's last one for that term. Otherwise the
// whole conflicting term is skipped.
// Without a hint nextIndex is decremented by one.
func (cm *PassiveConsensusModule) nextIndexFromConflict(
	nextIndex LogIndex,
	reply *RpcAppendEntriesReply,
) (LogIndex, error) {
	if reply.ConflictIndex == 0 {
		return nextIndex - 1, nil
	}
	if reply.ConflictTerm != 0 {
		for li := nextIndex - 1; li > 0; li-- {
			termAtLi, err := cm.log.GetTermAtIndex(li)
			if err != nil {
				return 0, err
			}
			if termAtLi == reply.ConflictTerm {
				return li + 1, nil
			}
			if termAtLi < reply.ConflictTerm {
				break
			}
		}
	}
	return reply.ConflictIndex, nil
}
