// AppendEntries RPC (Receiver Implementation)
// Invoked by leader to replicate log entries (#5.3); also used as heartbeat
// (#5.2).

package consensus

import (
	"github.com/go-errors/errors"

	. "github.com/divtxt/raftcore"
)

// Process the given RpcAppendEntries message
// #RFS-F1: Respond to RPCs from candidates and leaders
func (cm *PassiveConsensusModule) Rpc_RpcAppendEntries(
	from ServerId,
	appendEntries *RpcAppendEntries,
) (*RpcAppendEntriesReply, error) {
	if from == cm.thisServerId {
		return nil, errors.Errorf("FATAL: from server has same serverId: %v", cm.thisServerId)
	}

	makeReply := func(success bool) *RpcAppendEntriesReply {
		return &RpcAppendEntriesReply{
			Term:    cm.RaftPersistentState.GetCurrentTerm(), // refetch in case it has changed!
			Success: success,
		}
	}

	serverTerm := cm.RaftPersistentState.GetCurrentTerm()
	leaderCurrentTerm := appendEntries.Term
	prevLogIndex := appendEntries.PrevLogIndex

	// 1. Reply false if term < currentTerm (#5.1)
	if leaderCurrentTerm < serverTerm {
		return makeReply(false), nil
	}

	// Extra: raft violation - two leaders with same term
	if cm.serverState == LEADER && leaderCurrentTerm == serverTerm {
		return nil, errors.Errorf(
			"FATAL: two leaders with same term - got AppendEntries from: %v with term: %v",
			from,
			serverTerm,
		)
	}

	// #RFS-A2: If RPC request or response contains term T > currentTerm:
	// set currentTerm = T, convert to follower (#5.1)
	// #RFS-C3: If AppendEntries RPC received from new leader:
	// convert to follower
	// #5.1-p3s4: ...; if one server's current term is smaller than the
	// other's, then it updates its current term to the larger value.
	// #5.1-p3s5: If a candidate or leader discovers that its term is out of
	// date, it immediately reverts to follower state.
	// #5.2-p4s1: While waiting for votes, a candidate may receive an
	// AppendEntries RPC from another server claiming to be leader.
	// #5.2-p4s2: If the leader’s term (included in its RPC) is at least as
	// large as the candidate’s current term, then the candidate recognizes
	// the leader as legitimate and returns to follower state.
	err := cm.becomeFollowerWithTerm(leaderCurrentTerm)
	if err != nil {
		return nil, err
	}
	if cm.FollowerVolatileState.SetLeader(from) {
		cm.logger.Println("[raft] leader for term", leaderCurrentTerm, "is", from)
	}

	// #RFS-F2: (paraphrasing) AppendEntries RPC from current leader should
	// prevent election timeout
	cm.restartElectionTimer()

	// 2. Reply false if log doesn't contain an entry at prevLogIndex whose
	// term matches prevLogTerm (#5.3)
	iole, err := cm.log.GetIndexOfLastEntry()
	if err != nil {
		return nil, err
	}
	if iole < prevLogIndex {
		reply := makeReply(false)
		reply.ConflictIndex = iole + 1
		return reply, nil
	}
	termAtPrevLogIndex, err := cm.log.GetTermAtIndex(prevLogIndex)
	if err != nil {
		return nil, err
	}
	if termAtPrevLogIndex != appendEntries.PrevLogTerm {
		conflictIndex, err := cm.findFirstIndexOfTerm(prevLogIndex, termAtPrevLogIndex)
		if err != nil {
			return nil, err
		}
		reply := makeReply(false)
		reply.ConflictTerm = termAtPrevLogIndex
		reply.ConflictIndex = conflictIndex
		return reply, nil
	}

	// 3. If an existing entry conflicts with a new one (same index
	// but different terms), delete the existing entry and all that
	// follow it (#5.3)
	// 4. Append any new entries not already in the log
	li := prevLogIndex
	entries := appendEntries.Entries
	for len(entries) > 0 && li < iole {
		termAtNext, err := cm.log.GetTermAtIndex(li + 1)
		if err != nil {
			return nil, err
		}
		if termAtNext != entries[0].TermNo {
			break
		}
		li++
		entries = entries[1:]
	}
	if len(entries) > 0 {
		err = cm.setEntriesAfterIndex(li, entries)
		if err != nil {
			return nil, err
		}
		configurationChanged := false
		if li < iole {
			err = cm.committer.RemoveListenersAfterIndex(li)
			if err != nil {
				return nil, err
			}
			configurationChanged = cm.membership.TruncateAfter(li)
		}
		observed, err := cm.membership.ObserveEntries(li, entries)
		if err != nil {
			return nil, err
		}
		if configurationChanged || observed {
			err = cm.configurationChanged()
			if err != nil {
				return nil, err
			}
		}
	}

	// 5. If leaderCommit > commitIndex, set commitIndex = min(leaderCommit,
	// index of last new entry)
	leaderCommit := appendEntries.LeaderCommit
	if leaderCommit > cm.commitIndex.UnsafeGet() {
		indexOfLastNewEntry := prevLogIndex + LogIndex(len(appendEntries.Entries))
		if leaderCommit < indexOfLastNewEntry {
			indexOfLastNewEntry = leaderCommit
		}
		if indexOfLastNewEntry > cm.commitIndex.UnsafeGet() {
			err = cm.setCommitIndex(indexOfLastNewEntry)
			if err != nil {
				return nil, err
			}
		}
	}

	return makeReply(true), nil
}

// Find the first index of the run of entries with the given term that ends
// at the given index.
func (cm *PassiveConsensusModule) findFirstIndexOfTerm(li LogIndex, termNo TermNo) (LogIndex, error) {
	for li > 1 {
		termAtPrev, err := cm.log.GetTermAtIndex(li - 1)
		if err != nil {
			return 0, err
		}
		if termAtPrev != termNo {
			break
		}
		li--
	}
	return li, nil
}
