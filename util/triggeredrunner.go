package util

import (
	"sync"
)

// A TriggeredRunner is a goroutine that runs a configured function every time it is triggered.
type TriggeredRunner struct {
	f       func()
	mutex   sync.Mutex
	stopped bool
	trigger chan struct{}
	wg      sync.WaitGroup
}

// NewTriggeredRunner creates a TriggeredRunner for the given function.
//
// The TriggeredRunner's goroutine is started immediately.
func NewTriggeredRunner(f func()) *TriggeredRunner {
	tr := &TriggeredRunner{
		f:       f,
		trigger: make(chan struct{}, 1),
	}
	tr.wg.Add(1)
	go tr.run(tr.trigger)
	return tr
}

func (tr *TriggeredRunner) run(trigger chan struct{}) {
	defer tr.wg.Done()
	for range trigger {
		tr.f()
	}
}

// TriggerRun triggers a run of the configured function in the TriggeredRunner's goroutine.
//
// This method will return immediately without waiting for the requested function run to start.
//
// If the goroutine is already currently running the function, this trigger will be pending
// and will result in the another run of the function once the current run completes.
// However, multiple such pending triggers will be collapsed into a single pending trigger.
//
// Does nothing if StopSync() has been called.
func (tr *TriggeredRunner) TriggerRun() {
	tr.mutex.Lock()
	defer tr.mutex.Unlock()
	if tr.stopped {
		return
	}
	select {
	case tr.trigger <- struct{}{}:
	default: // avoid blocking
	}
}

// StopSync will stop the goroutine, waiting for any current run to complete.
//
// A pending trigger may still result in one more run before the goroutine exits.
// Safe to call more than once, but not from within the configured function.
func (tr *TriggeredRunner) StopSync() {
	tr.mutex.Lock()
	if !tr.stopped {
		tr.stopped = true
		close(tr.trigger)
	}
	tr.mutex.Unlock()
	tr.wg.Wait()
}

// TestHelperFakeRestart is meant for testing use only.
//
// It resets the state so that TriggerRun() calls will succeed but does not start a new goroutine
// to actually run the function when triggered.
// Use TestHelperRunOnceIfTriggerPending() to actually run the function.
//
// You should have called StopSync() before using this.
func (tr *TriggeredRunner) TestHelperFakeRestart() {
	tr.mutex.Lock()
	defer tr.mutex.Unlock()
	tr.stopped = false
	tr.trigger = make(chan struct{}, 1)
}

// TestHelperRunOnceIfTriggerPending is meant for testing use only.
//
// It runs the function if a trigger pending, and returns a value indicating if it ran.
//
// You should be using this with TestHelperFakeRestart().
func (tr *TriggeredRunner) TestHelperRunOnceIfTriggerPending() bool {
	tr.mutex.Lock()
	trigger := tr.trigger
	tr.mutex.Unlock()
	select {
	case <-trigger:
		tr.f()
		return true
	default:
		return false
	}
}
