// Interfaces that users of this package must implement.

package raft

import (
	"context"
)

// RaftPersistentState is the Raft persistent state on all servers
// other than the log.
//
// Every setter must have durably saved the new value before returning.
// Any error returned by a setter is fatal to the ConsensusModule.
type RaftPersistentState interface {
	// Get the latest term server has seen.
	// (initialized to 0, increases monotonically)
	GetCurrentTerm() TermNo

	// Get the candidate id this server has voted for in the current term.
	// (0 if none)
	GetVotedFor() ServerId

	// Set the latest term this server has seen.
	//
	// The value should never decrease, and an error should be returned if it does.
	//
	// If the value is greater than the current value, votedFor is cleared (set to 0).
	SetCurrentTerm(currentTerm TermNo) error

	// Set the candidate this server has voted for in the current term.
	//
	// Returns an error if the term is 0, if votedFor is 0 or if votedFor has
	// already been set to a different value for the current term.
	SetVotedFor(votedFor ServerId) error

	// Set both values in a single durable write.
	//
	// currentTerm must be greater than the current value.
	// This is what a server uses when it starts an election and votes for itself.
	SetCurrentTermAndVotedFor(currentTerm TermNo, votedFor ServerId) error
}

// LogReadOnly is the read-only subset of the Log interface.
type LogReadOnly interface {
	// Get the index of the last entry in the log.
	//
	// An index of 0 indicates an empty log.
	GetIndexOfLastEntry() (LogIndex, error)

	// Get the term of the entry at the given index.
	//
	// Index 0 is the "empty log" sentinel and has term 0.
	// It is an error if the index is greater than indexOfLastEntry.
	GetTermAtIndex(LogIndex) (TermNo, error)

	// Get the entry at the given index.
	//
	// It is an error if the index is 0 or greater than indexOfLastEntry.
	GetEntryAtIndex(LogIndex) (LogEntry, error)

	// Get entries after the given index.
	//
	// The implementation may limit the number of entries returned.
	// It is an error if the index is greater than indexOfLastEntry.
	GetEntriesAfterIndex(LogIndex) ([]LogEntry, error)
}

// Log is the Raft log.
//
// Every mutating method must have durably saved the change before returning.
// Any error returned by a mutator is fatal to the ConsensusModule.
//
// Concurrency: the ConsensusModule will only make one mutating call at a time,
// but reads may come from the ConsensusModule and the applier concurrently.
type Log interface {
	LogReadOnly

	// Set the entries after the given index.
	//
	// Existing entries after the given index are discarded and the given entries
	// are appended. The given entries may be empty, which is a plain truncation.
	//
	// It is an error if the index is greater than indexOfLastEntry.
	//
	// The ConsensusModule never calls this with an index less than its commitIndex.
	SetEntriesAfterIndex(LogIndex, []LogEntry) error

	// Delete the entry at the given index and all entries after it.
	//
	// This is equivalent to SetEntriesAfterIndex(index - 1, nil).
	TruncateFrom(LogIndex) error

	// Append the given entry to the log and return the index of the appended entry.
	AppendEntry(LogEntry) (LogIndex, error)
}

// StateMachine is the replicated state machine that committed commands are applied to.
type StateMachine interface {
	// Get the index of the last entry applied to the state machine.
	//
	// A state machine that is not persisted can always start with a value of 0.
	// A persisted state machine should return the index of the last entry
	// whose effects it has persisted.
	GetLastApplied() LogIndex

	// Apply the given command.
	//
	// Commands are applied in strictly increasing index order, exactly once
	// per run of the ConsensusModule. The index is supplied so that a state
	// machine that persists lastApplied can ignore entries it has seen before a
	// crash.
	//
	// The returned value is passed back to the client that appended the command.
	ApplyCommand(logIndex LogIndex, command Command) CommandResult
}

// RpcService is the "RPC" sending layer used by the ConsensusModule.
//
// The implementation may lose, delay, reorder or duplicate messages.
// Calls should respect the given context and return an error if the
// reply is not available.
//
// Calls will be made from multiple goroutines concurrently.
type RpcService interface {
	// Send the given RpcAppendEntries message to the given server
	// and get the reply.
	RpcAppendEntries(
		ctx context.Context,
		toServer ServerId,
		rpc *RpcAppendEntries,
	) (*RpcAppendEntriesReply, error)

	// Send the given RpcRequestVote message to the given server
	// and get the reply.
	RpcRequestVote(
		ctx context.Context,
		toServer ServerId,
		rpc *RpcRequestVote,
	) (*RpcRequestVoteReply, error)
}
