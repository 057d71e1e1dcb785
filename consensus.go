// Interface to the Raft Consensus Module.

package raft

import (
	"context"
)

// The Raft ConsensusModule.
type IConsensusModule interface {

	// Check if the ConsensusModule is stopped.
	IsStopped() bool

	// Stop the ConsensusModule.
	//
	// This is safe to call multiple times, even if the ConsensusModule has already stopped.
	Stop()

	// Get the current server state.
	//
	// If the ConsensusModule is stopped this is the state when it stopped.
	GetServerState() ServerState

	// Get the ServerId of the leader of the current term if known, or 0 if not.
	GetLeaderId() ServerId

	// Process the given RpcAppendEntries message from the given peer.
	//
	// Returns ErrStopped if the ConsensusModule is stopped.
	//
	// Any other error is fatal and stops the ConsensusModule.
	ProcessRpcAppendEntries(from ServerId, rpc *RpcAppendEntries) (*RpcAppendEntriesReply, error)

	// Process the given RpcRequestVote message from the given peer.
	//
	// Returns ErrStopped if the ConsensusModule is stopped.
	//
	// Any other error is fatal and stops the ConsensusModule.
	ProcessRpcRequestVote(from ServerId, rpc *RpcRequestVote) (*RpcRequestVoteReply, error)

	// AppendCommand appends the given serialized command to the Raft log and applies it
	// to the state machine once it is considered committed by the ConsensusModule.
	//
	// This can only be done if the ConsensusModule is in LEADER state.
	//
	// When the command has been replicated to enough followers and is considered committed it is
	// applied to the state machine. The value returned by the state machine is then sent on the
	// channel returned by this method.
	//
	// If the ConsensusModule loses leader status before this entry commits, and the new leader
	// overwrites the given command in the log, the channel will be closed without a value
	// being sent.
	//
	// Returns ErrStopped if ConsensusModule is stopped.
	// Returns ErrNotLeader if not currently the leader.
	//
	// #RFS-L2: If command received from client: append entry to local log,
	// respond after entry applied to state machine (#5.3)
	AppendCommand(command Command) (<-chan CommandResult, error)

	// AppendCommandAndWait is AppendCommand followed by waiting for the result.
	//
	// Returns ErrEntryDiscarded if the entry was overwritten by a new leader.
	AppendCommandAndWait(ctx context.Context, command Command) (CommandResult, error)

	// ReadIndex returns a log index that a linearizable read can be served at.
	//
	// It confirms that this server is still the leader with a round of heartbeats
	// acknowledged by a quorum, and waits until the state machine has applied
	// entries up to the returned index.
	//
	// Returns ErrNotLeader if not currently the leader or if leadership is lost
	// while waiting.
	ReadIndex(ctx context.Context) (LogIndex, error)

	// ChangeMembership replaces the voting members of the cluster with the given servers
	// using joint consensus, and waits until the new configuration is committed.
	//
	// Returns ErrNotLeader if not currently the leader or if leadership is lost
	// before the change completes.
	// Returns ErrMembershipChangeInProgress if another change has not completed.
	ChangeMembership(ctx context.Context, newServers []ServerId) error
}

// A subset of the IConsensusModule interface with just the AppendCommand method.
type IConsensusModule_AppendCommandOnly interface {
	AppendCommand(command Command) (<-chan CommandResult, error)
}
