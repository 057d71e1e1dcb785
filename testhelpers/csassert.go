package testhelpers

import (
	"time"

	"github.com/divtxt/raftcore"
)

func AssertWillBlock[T any](c <-chan T) {
	select {
	case _, ok := <-c:
		if ok {
			panic("channel should block but has value ")
		} else {
			panic("channel should block but is closed")
		}
	default:
	}
}

func AssertHasValue[T any](c <-chan T) T {
	select {
	case v, ok := <-c:
		if !ok {
			panic("channel should have value but is closed")
		}
		return v
	default:
		panic("channel should have value but does not")
	}
}

func AssertIsClosed[T any](c <-chan T) {
	select {
	case _, ok := <-c:
		if ok {
			panic("channel should be closed but has value ")
		}
	default:
		panic("channel should be closed but is not")
	}
}

// AssertGetsValueWithin waits up to the given duration for a value on the channel.
func AssertGetsValueWithin[T any](c <-chan T, d time.Duration) T {
	select {
	case v, ok := <-c:
		if !ok {
			panic("channel should have value but is closed")
		}
		return v
	case <-time.After(d):
		panic("channel did not get a value in time")
	}
}

// GetCommandResult gets the value that should be waiting on the given channel.
func GetCommandResult(crc <-chan raft.CommandResult) raft.CommandResult {
	return AssertHasValue(crc)
}
