package logindex

import (
	"sync"

	"github.com/go-errors/errors"

	. "github.com/divtxt/raftcore"
)

// IndexChangeListener is called with the old and new values of a WatchedIndex.
type IndexChangeListener func(old, new LogIndex) error

// WatchedIndex is a LogIndex whose changes can be subscribed to and validated.
//
// The value can never decrease.
type WatchedIndex struct {
	lock      sync.Locker
	value     LogIndex
	listeners []IndexChangeListener
}

// NewWatchedIndex creates a new WatchedIndex that uses the given lock.
// The value of the LogIndex will be 0.
func NewWatchedIndex(lock sync.Locker) *WatchedIndex {
	return &WatchedIndex{
		lock,
		0,
		nil,
	}
}

// AddListener registers the given listener for changes.
// The listener list is modified under the lock specified in NewWatchedIndex.
func (p *WatchedIndex) AddListener(f IndexChangeListener) {
	p.lock.Lock()
	p.listeners = append(p.listeners, f)
	p.lock.Unlock()
}

// Get the current value.
// The value is read under the lock specified in NewWatchedIndex.
func (p *WatchedIndex) Get() LogIndex {
	p.lock.Lock()
	v := p.value
	p.lock.Unlock()
	return v
}

// UnsafeGet gets the current value without taking the lock.
// The caller must already hold the lock.
func (p *WatchedIndex) UnsafeGet() LogIndex {
	return p.value
}

// UnsafeSet sets the value without taking the lock.
// The caller must already hold the lock.
//
// After the value is changed, each listener is called in turn with the old and
// new values. UnsafeSet stops and returns the first error a listener returns.
// The new value stays set regardless of such an error.
//
// Setting a value lower than the current value is an error.
func (p *WatchedIndex) UnsafeSet(newValue LogIndex) error {
	oldValue := p.value
	if newValue < oldValue {
		return errors.Errorf("FATAL: attempt to decrease index: %v to %v", oldValue, newValue)
	}
	p.value = newValue
	for _, f := range p.listeners {
		err := f(oldValue, newValue)
		if err != nil {
			return err
		}
	}
	return nil
}
