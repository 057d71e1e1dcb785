package util

import (
	"sync"

	"github.com/go-errors/errors"

	"github.com/divtxt/raftcore"
)

// IndexNotifier tracks an index that only increases and signals listeners
// waiting for it to reach a given value.
//
// Safe for concurrent use.
type IndexNotifier struct {
	mutex     sync.Mutex
	index     raft.LogIndex
	listeners map[raft.LogIndex][]chan struct{}
}

func NewIndexNotifier(initialIndex raft.LogIndex) *IndexNotifier {
	return &IndexNotifier{
		index:     initialIndex,
		listeners: make(map[raft.LogIndex][]chan struct{}),
	}
}

func (n *IndexNotifier) GetIndex() raft.LogIndex {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	return n.index
}

// RegisterListener returns a channel that is closed once the index is
// greater than or equal to the given value.
//
// The channel is already closed if that is the case now.
func (n *IndexNotifier) RegisterListener(logIndex raft.LogIndex) <-chan struct{} {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	l := make(chan struct{})
	if logIndex <= n.index {
		close(l)
		return l
	}
	n.listeners[logIndex] = append(n.listeners[logIndex], l)
	return l
}

// IndexChanged advances the index and signals the listeners it has reached.
func (n *IndexNotifier) IndexChanged(newIndex raft.LogIndex) error {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	if newIndex < n.index {
		return errors.Errorf(
			"FATAL: newIndex=%v is < current index=%v", newIndex, n.index,
		)
	}
	n.index = newIndex
	for li, ls := range n.listeners {
		if li <= newIndex {
			for _, l := range ls {
				close(l)
			}
			delete(n.listeners, li)
		}
	}
	return nil
}
