// RequestVote RPC (Receiver Implementation)
// Invoked by candidates to gather votes (#5.2).

package consensus

import (
	"github.com/go-errors/errors"

	. "github.com/divtxt/raftcore"
)

// Process the given RpcRequestVote message
// #RFS-F1: Respond to RPCs from candidates and leaders
func (cm *PassiveConsensusModule) Rpc_RpcRequestVote(
	from ServerId,
	rpc *RpcRequestVote,
) (*RpcRequestVoteReply, error) {
	if from == cm.thisServerId {
		return nil, errors.Errorf("FATAL: from server has same serverId: %v", cm.thisServerId)
	}

	// 1. Reply false if term < currentTerm (#5.1)
	if rpc.Term < cm.RaftPersistentState.GetCurrentTerm() {
		return cm.requestVoteReply(false), nil
	}

	// #RFS-A2: If RPC request or response contains term T > currentTerm:
	// set currentTerm = T, convert to follower (#5.1)
	// #5.1-p3s5: If a candidate or leader discovers that its term is out of
	// date, it immediately reverts to follower state.
	if rpc.Term > cm.RaftPersistentState.GetCurrentTerm() {
		err := cm.becomeFollowerWithTerm(rpc.Term)
		if err != nil {
			return nil, err
		}
	}

	// 2. If votedFor is null or candidateId, and candidate's log is at least as
	// up-to-date as receiver's log, grant vote (#5.2, #5.4)
	votedFor := cm.RaftPersistentState.GetVotedFor()
	if votedFor != 0 && votedFor != from {
		return cm.requestVoteReply(false), nil
	}
	upToDate, err := cm.isCandidateLogUpToDate(rpc)
	if err != nil {
		return nil, err
	}
	if !upToDate {
		return cm.requestVoteReply(false), nil
	}

	// #5.2-p3s1: Each server will vote for at most one candidate in a given
	// term, on a first-come-first-served basis.
	if votedFor == 0 {
		err = cm.RaftPersistentState.SetVotedFor(from)
		if err != nil {
			return nil, err
		}
		cm.logger.Println("[raft] granted vote to", from, "for term", rpc.Term)
	}
	// #RFS-F2: (paraphrasing) granting vote should prevent election timeout
	cm.restartElectionTimer()
	return cm.requestVoteReply(true), nil
}

// The term is refetched since processing the rpc can change it.
func (cm *PassiveConsensusModule) requestVoteReply(voteGranted bool) *RpcRequestVoteReply {
	return &RpcRequestVoteReply{
		Term:        cm.RaftPersistentState.GetCurrentTerm(),
		VoteGranted: voteGranted,
	}
}

// #5.4.1-p3s1: Raft determines which of two logs is more up-to-date by
// comparing the index and term of the last entries in the logs.
func (cm *PassiveConsensusModule) isCandidateLogUpToDate(rpc *RpcRequestVote) (bool, error) {
	lastEntryIndex, lastEntryTerm, err := GetIndexAndTermOfLastEntry(cm.log)
	if err != nil {
		return false, err
	}
	return IsLogAtLeastAsUpToDate(
		rpc.LastLogIndex,
		rpc.LastLogTerm,
		lastEntryIndex,
		lastEntryTerm,
	), nil
}
