package internal

import (
	. "github.com/divtxt/raftcore"
)

// IAppendEntriesSender builds an RpcAppendEntries for one peer and sends it.
//
// The consensus module never calls it concurrently.
type IAppendEntriesSender interface {
	// SendAppendEntriesToPeerAsync reads whatever it needs from the log before
	// returning, then sends in the background with SendOnlyRpcAppendEntriesAsync.
	// Errors can only come from reading the log.
	SendAppendEntriesToPeerAsync(params SendAppendEntriesParams) error
}

// SendAppendEntriesParams is the leader state needed to build one RpcAppendEntries.
type SendAppendEntriesParams struct {
	PeerId        ServerId
	PeerNextIndex LogIndex
	// Empty requests a heartbeat with no entries.
	Empty       bool
	CurrentTerm TermNo
	CommitIndex LogIndex
	// Heartbeat round the RPC belongs to, handed back with the reply.
	Round uint64
}
