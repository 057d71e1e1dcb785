package log

import (
	"sync"

	"github.com/go-errors/errors"

	. "github.com/divtxt/raftcore"
)

// InMemoryLog is an in-memory raft Log.
//
// Nothing survives a restart, so this is meant for tests and for servers
// whose durability comes from elsewhere.
//
// Safe for concurrent use.
type InMemoryLog struct {
	mutex      sync.RWMutex
	entries    []LogEntry
	maxEntries uint64
}

// NewInMemoryLog creates an empty InMemoryLog.
//
// maxEntries is the limit on the number of entries returned by
// GetEntriesAfterIndex.
func NewInMemoryLog(maxEntries uint64) *InMemoryLog {
	if maxEntries <= 0 {
		panic("maxEntries must be greater than zero")
	}
	iml := &InMemoryLog{
		entries:    []LogEntry{},
		maxEntries: maxEntries,
	}
	return iml
}

func (iml *InMemoryLog) GetIndexOfLastEntry() (LogIndex, error) {
	iml.mutex.RLock()
	defer iml.mutex.RUnlock()
	return LogIndex(len(iml.entries)), nil
}

func (iml *InMemoryLog) GetTermAtIndex(li LogIndex) (TermNo, error) {
	iml.mutex.RLock()
	defer iml.mutex.RUnlock()
	if li == 0 {
		return 0, nil
	}
	if li > LogIndex(len(iml.entries)) {
		return 0, errors.WrapPrefix(
			ErrIndexAfterLastEntry,
			indexAfterLastEntryPrefix("GetTermAtIndex", li, LogIndex(len(iml.entries))),
			0,
		)
	}
	return iml.entries[li-1].TermNo, nil
}

func (iml *InMemoryLog) GetEntryAtIndex(li LogIndex) (LogEntry, error) {
	iml.mutex.RLock()
	defer iml.mutex.RUnlock()
	if li == 0 {
		return LogEntry{}, errors.Errorf("GetEntryAtIndex(): li=0")
	}
	if li > LogIndex(len(iml.entries)) {
		return LogEntry{}, errors.WrapPrefix(
			ErrIndexAfterLastEntry,
			indexAfterLastEntryPrefix("GetEntryAtIndex", li, LogIndex(len(iml.entries))),
			0,
		)
	}
	return iml.entries[li-1], nil
}

func (iml *InMemoryLog) GetEntriesAfterIndex(afterLogIndex LogIndex) ([]LogEntry, error) {
	iml.mutex.RLock()
	defer iml.mutex.RUnlock()

	iole := LogIndex(len(iml.entries))

	if iole < afterLogIndex {
		return nil, errors.Errorf(
			"afterLogIndex=%v is > iole=%v",
			afterLogIndex,
			iole,
		)
	}

	var numEntriesToGet uint64 = uint64(iole - afterLogIndex)

	// Short-circuit allocation for no entries to return
	if numEntriesToGet == 0 {
		return []LogEntry{}, nil
	}

	if numEntriesToGet > iml.maxEntries {
		numEntriesToGet = iml.maxEntries
	}

	logEntries := make([]LogEntry, numEntriesToGet)
	copy(logEntries, iml.entries[afterLogIndex:])

	return logEntries, nil
}

func (iml *InMemoryLog) SetEntriesAfterIndex(li LogIndex, entries []LogEntry) error {
	iml.mutex.Lock()
	defer iml.mutex.Unlock()

	iole := LogIndex(len(iml.entries))
	if iole < li {
		return errors.Errorf("InMemoryLog: setEntriesAfterIndex(%d, ...) but iole=%d", li, iole)
	}
	// delete entries after index
	if iole > li {
		iml.entries = iml.entries[:li]
	}
	// append entries
	iml.entries = append(iml.entries, entries...)
	return nil
}

func (iml *InMemoryLog) TruncateFrom(li LogIndex) error {
	if li == 0 {
		return errors.Errorf("InMemoryLog: TruncateFrom(0)")
	}
	return iml.SetEntriesAfterIndex(li-1, nil)
}

func (iml *InMemoryLog) AppendEntry(logEntry LogEntry) (LogIndex, error) {
	iml.mutex.Lock()
	defer iml.mutex.Unlock()

	iml.entries = append(iml.entries, logEntry)
	return LogIndex(len(iml.entries)), nil
}
