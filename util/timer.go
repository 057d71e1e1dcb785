package util

import (
	"sync"
	"time"
)

// ElectionTimer is a one-shot timer that calls a function when it expires.
//
// Every start of the timer gets a new generation number, and the function is
// called with the generation that was current when the timer was started.
// Receivers compare it with IsCurrentGeneration() so that an expiry that raced
// with a Restart() or Stop() is recognized as stale and ignored.
type ElectionTimer struct {
	mutex      sync.Mutex
	f          func(generation uint64)
	generation uint64
	duration   time.Duration
	timer      *time.Timer
}

// NewElectionTimer creates a stopped ElectionTimer that will call the given function.
//
// The function is called on its own goroutine.
func NewElectionTimer(f func(generation uint64)) *ElectionTimer {
	return &ElectionTimer{f: f}
}

// RestartWithDuration stops any pending expiry and starts the timer again with
// the given duration. Returns the new generation.
func (et *ElectionTimer) RestartWithDuration(duration time.Duration) uint64 {
	et.mutex.Lock()
	defer et.mutex.Unlock()

	et.stopTimer()
	et.generation++
	generation := et.generation
	et.duration = duration
	et.timer = time.AfterFunc(duration, func() {
		et.f(generation)
	})
	return generation
}

// Stop the timer.
//
// The generation is advanced so that an expiry already in flight is stale.
func (et *ElectionTimer) Stop() {
	et.mutex.Lock()
	defer et.mutex.Unlock()

	et.stopTimer()
	et.generation++
}

func (et *ElectionTimer) stopTimer() {
	if et.timer != nil {
		et.timer.Stop()
		et.timer = nil
	}
}

// IsCurrentGeneration checks if the given generation is that of the
// currently running timer.
func (et *ElectionTimer) IsCurrentGeneration(generation uint64) bool {
	et.mutex.Lock()
	defer et.mutex.Unlock()

	return et.timer != nil && et.generation == generation
}

// Get the current generation.
func (et *ElectionTimer) GetGeneration() uint64 {
	et.mutex.Lock()
	defer et.mutex.Unlock()

	return et.generation
}

// Check if the timer is running i.e. it has been started and not stopped.
//
// A timer that has expired is still considered running until it is
// restarted or stopped.
func (et *ElectionTimer) IsRunning() bool {
	et.mutex.Lock()
	defer et.mutex.Unlock()

	return et.timer != nil
}

// Get the duration the timer was last started with.
func (et *ElectionTimer) GetCurrentDuration() time.Duration {
	et.mutex.Lock()
	defer et.mutex.Unlock()

	return et.duration
}
