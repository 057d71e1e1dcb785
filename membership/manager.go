// Package membership tracks the cluster configuration history of a server.
//
// #6-p3s1: In Raft the configuration change is done in two phases using a
// joint consensus. A server always uses the latest configuration in its
// log, regardless of whether the entry is committed.
package membership

import (
	"github.com/go-errors/errors"

	. "github.com/divtxt/raftcore"
	"github.com/divtxt/raftcore/config"
)

// A configuration and the index of the log entry it was added by.
//
// The bootstrap configuration is at index 0.
type ConfigurationAt struct {
	Index         LogIndex
	Configuration config.Configuration
}

// Manager holds the configurations found in the log, oldest first.
//
// It keeps the latest committed configuration and every uncommitted one
// after it, so that truncating uncommitted entries can roll back to the
// previous configuration.
//
// Not safe for concurrent use.
type Manager struct {
	history []ConfigurationAt
}

// NewManager creates a Manager with only the given bootstrap configuration.
func NewManager(bootstrap config.Configuration) (*Manager, error) {
	err := bootstrap.Validate()
	if err != nil {
		return nil, err
	}
	return &Manager{[]ConfigurationAt{{0, bootstrap}}}, nil
}

// RebuildFromLog observes every configuration entry in the given log.
func (m *Manager) RebuildFromLog(log LogReadOnly) error {
	iole, err := log.GetIndexOfLastEntry()
	if err != nil {
		return err
	}
	var li LogIndex = 0
	for li < iole {
		entries, err := log.GetEntriesAfterIndex(li)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return errors.Errorf("FATAL: no entries after index %v but iole=%v", li, iole)
		}
		_, err = m.ObserveEntries(li, entries)
		if err != nil {
			return err
		}
		li += LogIndex(len(entries))
	}
	return nil
}

// Latest returns the configuration in effect: the latest in the log.
func (m *Manager) Latest() ConfigurationAt {
	return m.history[len(m.history)-1]
}

// LatestCommitted returns the latest configuration at or before the given
// commitIndex.
func (m *Manager) LatestCommitted(commitIndex LogIndex) ConfigurationAt {
	for i := len(m.history) - 1; i > 0; i-- {
		if m.history[i].Index <= commitIndex {
			return m.history[i]
		}
	}
	return m.history[0]
}

// IsLatestCommitted checks if the configuration in effect is committed.
func (m *Manager) IsLatestCommitted(commitIndex LogIndex) bool {
	return m.LatestCommitted(commitIndex).Index == m.Latest().Index
}

// AppendedAt records a configuration added to the log at the given index.
//
// The index must be after that of the latest configuration.
func (m *Manager) AppendedAt(li LogIndex, c config.Configuration) error {
	latest := m.Latest()
	if li <= latest.Index {
		return errors.Errorf(
			"FATAL: configuration at index %v but latest is at index %v", li, latest.Index,
		)
	}
	err := c.Validate()
	if err != nil {
		return err
	}
	m.history = append(m.history, ConfigurationAt{li, c})
	return nil
}

// ObserveEntries records the configurations in the given entries, which are
// in the log after the given index.
//
// Returns true if the latest configuration changed.
func (m *Manager) ObserveEntries(afterIndex LogIndex, entries []LogEntry) (bool, error) {
	changed := false
	for i, entry := range entries {
		if entry.EntryType != EntryConfiguration {
			continue
		}
		c, err := config.ConfigurationFromEntry(entry)
		if err != nil {
			return changed, err
		}
		err = m.AppendedAt(afterIndex+LogIndex(i)+1, c)
		if err != nil {
			return changed, err
		}
		changed = true
	}
	return changed, nil
}

// TruncateAfter forgets the configurations of entries after the given index,
// which have been removed from the log.
//
// Returns true if the latest configuration changed.
func (m *Manager) TruncateAfter(li LogIndex) bool {
	n := len(m.history)
	for n > 1 && m.history[n-1].Index > li {
		n--
	}
	if n == len(m.history) {
		return false
	}
	m.history = m.history[:n]
	return true
}

// DiscardCommittedHistory drops configurations older than the latest
// committed one, since they can never be rolled back to.
func (m *Manager) DiscardCommittedHistory(commitIndex LogIndex) {
	for len(m.history) > 1 && m.history[1].Index <= commitIndex {
		m.history = m.history[1:]
	}
}

// Get the number of configurations held.
func (m *Manager) GetHistoryLength() int {
	return len(m.history)
}
