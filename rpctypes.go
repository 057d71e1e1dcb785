// See RpcService in interfaces.go for related details.

package raft

type RpcAppendEntries struct {
	// - leader's term
	Term TermNo

	// - so follower can redirect clients
	LeaderId ServerId

	// - index of log entry immediately preceding new ones
	PrevLogIndex LogIndex

	// - term of prevLogIndex entry
	PrevLogTerm TermNo

	// - log entries to store (empty for heartbeat; may send more than one
	// for efficiency)
	Entries []LogEntry

	// - leader's commitIndex
	LeaderCommit LogIndex
}

type RpcAppendEntriesReply struct {
	// - currentTerm, for leader to update itself
	Term TermNo

	// - true if follower contained entry matching prevLogIndex and prevLogTerm
	Success bool

	// Hint for the leader when Success is false, so that nextIndex can skip
	// over a whole conflicting term instead of backing off one entry per round.
	//
	// If the follower's log is too short, ConflictTerm is 0 and ConflictIndex
	// is the follower's indexOfLastEntry + 1.
	// Otherwise ConflictTerm is the term of the follower's entry at
	// PrevLogIndex and ConflictIndex is the first index it has for that term.
	ConflictTerm  TermNo
	ConflictIndex LogIndex
}

type RpcRequestVote struct {
	// - candidate's term
	Term TermNo

	// - candidate requesting vote
	CandidateId ServerId

	// - index of candidate's last log entry
	LastLogIndex LogIndex

	// - term of candidate's last log entry
	LastLogTerm TermNo
}

type RpcRequestVoteReply struct {
	// - currentTerm, for candidate to update itself
	Term TermNo

	// - true means candidate received vote
	VoteGranted bool
}
