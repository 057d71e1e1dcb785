package testhelpers

import (
	"bytes"
	"reflect"
	"strconv"
	"sync"

	. "github.com/divtxt/raftcore"
)

// Dummy state machine that implements StateMachine.
// Does not provide any useful state or commands. Meant only for tests.
//
// The result of applying Command("cN") is "rcN".
// Applying an index that is not after lastApplied does nothing and returns nil.
type DummyStateMachine struct {
	mutex           sync.Mutex
	lastApplied     LogIndex
	appliedCommands []Command
	appliedIndexes  []LogIndex
}

// Will serialize to Command("cN")
func DummyCommand(N int) Command {
	return Command("c" + strconv.Itoa(N))
}

func NewDummyStateMachine(lastApplied LogIndex) *DummyStateMachine {
	return &DummyStateMachine{
		lastApplied:     lastApplied,
		appliedCommands: []Command{},
		appliedIndexes:  []LogIndex{},
	}
}

func (dsm *DummyStateMachine) GetLastApplied() LogIndex {
	dsm.mutex.Lock()
	defer dsm.mutex.Unlock()
	return dsm.lastApplied
}

func (dsm *DummyStateMachine) ApplyCommand(logIndex LogIndex, command Command) CommandResult {
	dsm.mutex.Lock()
	defer dsm.mutex.Unlock()

	if logIndex <= dsm.lastApplied {
		return nil
	}

	dsm.appliedCommands = append(dsm.appliedCommands, command)
	dsm.appliedIndexes = append(dsm.appliedIndexes, logIndex)
	dsm.lastApplied = logIndex
	return "r" + string(command)
}

func (dsm *DummyStateMachine) AppliedCommandsEqual(cmds ...int) bool {
	appliedCommands := make([]Command, len(cmds))
	for i, s := range cmds {
		appliedCommands[i] = DummyCommand(s)
	}
	dsm.mutex.Lock()
	defer dsm.mutex.Unlock()
	return reflect.DeepEqual(dsm.appliedCommands, appliedCommands)
}

// GetAppliedCommands returns a copy of the commands applied so far.
func (dsm *DummyStateMachine) GetAppliedCommands() []Command {
	dsm.mutex.Lock()
	defer dsm.mutex.Unlock()
	return append([]Command{}, dsm.appliedCommands...)
}

// GetAppliedIndexes returns a copy of the log indexes applied so far.
func (dsm *DummyStateMachine) GetAppliedIndexes() []LogIndex {
	dsm.mutex.Lock()
	defer dsm.mutex.Unlock()
	return append([]LogIndex{}, dsm.appliedIndexes...)
}

// Helper
func DummyCommandEquals(c Command, n int) bool {
	cn := Command("c" + strconv.Itoa(n))
	return bytes.Equal(c, cn)
}
