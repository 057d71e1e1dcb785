// RequestVote reply handling on the candidate side (#5.2).

package consensus

import (
	. "github.com/divtxt/raftcore"
)

// RpcReply_RpcRequestVoteReply counts a vote from fromPeer for the given
// request and wins the election once the votes reach a quorum.
func (cm *PassiveConsensusModule) RpcReply_RpcRequestVoteReply(
	fromPeer ServerId,
	rpc *RpcRequestVote,
	reply *RpcRequestVoteReply,
) error {
	currentTerm := cm.RaftPersistentState.GetCurrentTerm()

	// #RFS-A2: If RPC request or response contains term T > currentTerm:
	// set currentTerm = T, convert to follower (#5.1)
	if reply.Term > currentTerm {
		return cm.becomeFollowerWithTerm(reply.Term)
	}

	// Votes only count for the election still in progress.
	stillCandidate := cm.serverState == CANDIDATE && rpc.Term == currentTerm
	if !stillCandidate || !reply.VoteGranted {
		return nil
	}

	// #RFS-C2: If votes received from majority of servers: become leader
	// #5.2-p3s1: A candidate wins an election if it receives votes from a
	// majority of the servers in the full cluster for the same term.
	if err := cm.CandidateVolatileState.AddVoteFrom(fromPeer); err != nil {
		return err
	}
	if !cm.CandidateVolatileState.HasQuorum(cm.ClusterInfo) {
		return nil
	}
	cm.logger.Println("[raft] won election for term", currentTerm)
	return cm.becomeLeader()
}
