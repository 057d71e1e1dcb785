// Package committer applies committed log entries to the state machine and
// hands results to the clients waiting on them.
package committer

import (
	"sync"

	"github.com/go-errors/errors"

	. "github.com/divtxt/raftcore"
	"github.com/divtxt/raftcore/util"
)

// FatalErrorHandler is told about errors that stop the Committer.
type FatalErrorHandler func(err error)

// Committer implements internal.ICommitter with a background applier goroutine.
//
// Only EntryCommand entries reach the state machine. No-op and configuration
// entries only advance lastApplied and their listeners get a nil result.
type Committer struct {
	mutex sync.Mutex

	// Fields below are guarded by mutex.
	stopped     bool
	commitIndex LogIndex
	// Result channels of entries that a client is waiting on, by log index.
	waiting         map[LogIndex]chan CommandResult
	lastWaitedIndex LogIndex

	// Only written by the applier goroutine.
	lastApplied *util.IndexNotifier

	log          LogReadOnly
	stateMachine StateMachine
	onFatal      FatalErrorHandler

	applier *util.TriggeredRunner
}

// NewCommitter starts the applier goroutine and returns the Committer.
//
// lastApplied starts at the state machine's value. Errors seen by the applier
// stop it and go to onFatal, which runs on the applier goroutine and so must
// not call StopSync.
func NewCommitter(
	log LogReadOnly,
	stateMachine StateMachine,
	onFatal FatalErrorHandler,
) *Committer {
	c := &Committer{
		waiting:      make(map[LogIndex]chan CommandResult),
		lastApplied:  util.NewIndexNotifier(stateMachine.GetLastApplied()),
		log:          log,
		stateMachine: stateMachine,
		onFatal:      onFatal,
	}
	c.applier = util.NewTriggeredRunner(c.applyCommitted)
	return c
}

// StopSync stops the applier goroutine and waits for it to exit.
// It can be called more than once.
func (c *Committer) StopSync() {
	c.setStopped()
	c.applier.StopSync()
}

// GetLastApplied returns the index of the last entry handled by the applier.
func (c *Committer) GetLastApplied() LogIndex {
	return c.lastApplied.GetIndex()
}

// RegisterAppliedListener returns a channel that is closed once lastApplied
// reaches logIndex.
func (c *Committer) RegisterAppliedListener(logIndex LogIndex) <-chan struct{} {
	return c.lastApplied.RegisterListener(logIndex)
}

func (c *Committer) RegisterListener(logIndex LogIndex) (<-chan CommandResult, error) {
	if err := c.checkInLog("logIndex", logIndex); err != nil {
		return nil, err
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	switch {
	case logIndex <= c.commitIndex:
		return nil, errors.Errorf(
			"FATAL: logIndex=%v is <= commitIndex=%v", logIndex, c.commitIndex,
		)
	case logIndex <= c.lastWaitedIndex:
		return nil, errors.Errorf(
			"FATAL: logIndex=%v is <= highestRegisteredIndex=%v", logIndex, c.lastWaitedIndex,
		)
	}

	crc := make(chan CommandResult, 1)
	c.waiting[logIndex] = crc
	c.lastWaitedIndex = logIndex
	return crc, nil
}

func (c *Committer) RemoveListenersAfterIndex(afterIndex LogIndex) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if afterIndex < c.commitIndex {
		return errors.Errorf(
			"FATAL: afterIndex=%v is < commitIndex=%v", afterIndex, c.commitIndex,
		)
	}
	for ; c.lastWaitedIndex > afterIndex; c.lastWaitedIndex-- {
		if crc, ok := c.waiting[c.lastWaitedIndex]; ok {
			delete(c.waiting, c.lastWaitedIndex)
			close(crc)
		}
	}
	return nil
}

func (c *Committer) CommitAsync(commitIndex LogIndex) error {
	if err := c.checkInLog("commitIndex", commitIndex); err != nil {
		return err
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if commitIndex < c.commitIndex {
		return errors.Errorf(
			"FATAL: commitIndex=%v is < current commitIndex=%v", commitIndex, c.commitIndex,
		)
	}
	c.commitIndex = commitIndex
	c.applier.TriggerRun()
	return nil
}

func (c *Committer) checkInLog(name string, index LogIndex) error {
	iole, err := c.log.GetIndexOfLastEntry()
	if err != nil {
		return err
	}
	if index > iole {
		return errors.Errorf("FATAL: %v=%v is > current iole=%v", name, index, iole)
	}
	return nil
}

func (c *Committer) setStopped() {
	c.mutex.Lock()
	c.stopped = true
	c.mutex.Unlock()
}

func (c *Committer) fatalError(err error) {
	c.setStopped()
	c.onFatal(err)
}

// progress returns the stop flag and commitIndex.
func (c *Committer) progress() (bool, LogIndex) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.stopped, c.commitIndex
}

// takeListener removes and returns the listener for logIndex, if any.
func (c *Committer) takeListener(logIndex LogIndex) (bool, chan CommandResult) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	crc := c.waiting[logIndex]
	delete(c.waiting, logIndex)
	return c.stopped, crc
}

// applyCommitted runs on the TriggeredRunner goroutine, which reruns it
// whenever CommitAsync moves commitIndex.
func (c *Committer) applyCommitted() {
	for {
		stopped, commitIndex := c.progress()
		lastApplied := c.lastApplied.GetIndex()
		if stopped || lastApplied >= commitIndex {
			return
		}

		entries, err := c.log.GetEntriesAfterIndex(lastApplied)
		if err != nil {
			c.fatalError(err)
			return
		}
		if len(entries) == 0 {
			c.fatalError(errors.Errorf(
				"FATAL: no entries after lastApplied=%v but commitIndex=%v",
				lastApplied,
				commitIndex,
			))
			return
		}

		for i, entry := range entries {
			index := lastApplied + 1 + LogIndex(i)
			if index > commitIndex {
				break
			}
			if !c.applyEntry(index, entry) {
				return
			}
		}
	}
}

// applyEntry applies one committed entry and reports whether to keep going.
func (c *Committer) applyEntry(index LogIndex, entry LogEntry) bool {
	stopped, crc := c.takeListener(index)
	if stopped {
		if crc != nil {
			close(crc)
		}
		return false
	}

	var result CommandResult
	if entry.EntryType == EntryCommand {
		result = c.stateMachine.ApplyCommand(index, entry.Command)
	}

	// The applied entry's index is the new lastApplied.
	if err := c.lastApplied.IndexChanged(index); err != nil {
		if crc != nil {
			close(crc)
		}
		c.fatalError(err)
		return false
	}
	if crc != nil {
		crc <- result
	}
	return true
}
