package internal

import (
	. "github.com/divtxt/raftcore"
)

// ICommitter is what PassiveConsensusModule hands committed entries to.
//
// It owns #RFS-A1: If commitIndex > lastApplied: increment lastApplied, apply
// log[lastApplied] to state machine (#5.3)
//
// It also owns the channels of clients waiting on the outcome of an entry.
//
// Calls are never concurrent: the consensus module makes one call at a time.
type ICommitter interface {
	// RegisterListener returns a channel that gets the state machine's result for
	// the entry at logIndex once that entry is applied. Entries that are not
	// commands get a nil result. If the entry is instead removed by
	// RemoveListenersAfterIndex, the channel is closed without a value.
	//
	// logIndex must be above both commitIndex and the last registered index, and
	// must already be in the log. Indexes without a listener are fine.
	RegisterListener(logIndex LogIndex) (<-chan CommandResult, error)

	// RemoveListenersAfterIndex closes the channels of every listener above
	// afterIndex and rewinds the last registered index to afterIndex, so those
	// indexes can be registered again after the log is overwritten.
	//
	// afterIndex cannot be below commitIndex.
	RemoveListenersAfterIndex(afterIndex LogIndex) error

	// CommitAsync records a new commitIndex and returns without waiting for the
	// state machine. Entries up to commitIndex are applied in the background.
	//
	// commitIndex can never decrease and can never be past the last log entry.
	// The consensus module starts from 0 after a restart but never passes a value
	// below the state machine's lastApplied.
	CommitAsync(commitIndex LogIndex) error
}
