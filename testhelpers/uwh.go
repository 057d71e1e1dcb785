package testhelpers

import (
	"github.com/divtxt/raftcore/logindex"
)

// NewUnlockedWatchedIndex returns a WatchedIndex whose lock does nothing,
// for tests that drive a consensus module from a single goroutine.
func NewUnlockedWatchedIndex() *logindex.WatchedIndex {
	return logindex.NewWatchedIndex(nopLocker{})
}

type nopLocker struct{}

func (nopLocker) Lock()   {}
func (nopLocker) Unlock() {}
