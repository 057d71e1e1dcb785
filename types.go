package raft

import (
	"fmt"
)

// Raft server states.
type ServerState uint32

const (
	FOLLOWER ServerState = iota
	CANDIDATE
	LEADER
)

func (s ServerState) String() string {
	switch s {
	case FOLLOWER:
		return "FOLLOWER"
	case CANDIDATE:
		return "CANDIDATE"
	case LEADER:
		return "LEADER"
	default:
		return fmt.Sprintf("ServerState(%d)", uint32(s))
	}
}

// Raft election term.
// Initialized to 0 on first boot, increases monotonically.
type TermNo uint64

// Log entry index. First index is 1.
//
// Index 0 is the "empty log" sentinel whose term is treated as 0.
type LogIndex uint64

// An integer that uniquely identifies a server in a Raft cluster.
//
// Zero should not be used as a server id.
// It is the "none" value for votedFor and for an unknown leader.
//
// The number value does not have a meaning to this package.
// This package also does not know about the network details - e.g. protocol/host/port -
// since the RPC is not part of the package but is delegated to the user.
type ServerId uint64

// A state machine command (in serialized form).
// The contents of the byte slice are opaque to the ConsensusModule.
type Command []byte

// CommandResult is the result of applying a command to the state machine.
type CommandResult interface{}

// EntryType identifies what a LogEntry's Command holds.
type EntryType uint8

const (
	// Avoid using the zero value so that an uninitialized entry is detectable.
	EntryUnknown EntryType = iota

	// Command is meant for the StateMachine.
	EntryCommand

	// Appended by a new leader at the start of its term. Command is empty.
	EntryNoOp

	// Command holds a serialized cluster configuration.
	// See config.Configuration.
	EntryConfiguration
)

func (et EntryType) String() string {
	switch et {
	case EntryCommand:
		return "EntryCommand"
	case EntryNoOp:
		return "EntryNoOp"
	case EntryConfiguration:
		return "EntryConfiguration"
	default:
		return fmt.Sprintf("EntryType(%d)", uint8(et))
	}
}

// An entry in the Raft Log.
//
// The index of an entry is implied by its position in the log.
type LogEntry struct {
	TermNo    TermNo
	EntryType EntryType
	Command   Command
}

// NewCommandEntry creates a LogEntry for a state machine command.
func NewCommandEntry(termNo TermNo, command Command) LogEntry {
	return LogEntry{termNo, EntryCommand, command}
}

// NewNoOpEntry creates a LogEntry that carries no command.
func NewNoOpEntry(termNo TermNo) LogEntry {
	return LogEntry{termNo, EntryNoOp, nil}
}
