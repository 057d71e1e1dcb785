package raft

import (
	"github.com/go-errors/errors"
)

var (
	// The ConsensusModule is stopped.
	ErrStopped = errors.Errorf("ConsensusModule is stopped")

	// Start has already been called.
	ErrAlreadyStartedOnce = errors.Errorf("ConsensusModule has already been started once")

	// The operation can only be done by the leader.
	ErrNotLeader = errors.Errorf("Not currently in LEADER state")

	// The appended entry was overwritten by another leader before it committed.
	ErrEntryDiscarded = errors.Errorf("Log entry was discarded before commit")

	// A cluster membership change is already in progress.
	ErrMembershipChangeInProgress = errors.Errorf("Membership change already in progress")

	// The requested membership matches the current membership.
	ErrMembershipUnchanged = errors.Errorf("Membership is unchanged")

	// A log index that is not in the log.
	ErrIndexAfterLastEntry = errors.Errorf("Index is after the last entry of the log")
)

// IsErrStopped checks if the given error is (or wraps) ErrStopped.
func IsErrStopped(e error) bool {
	return errors.Is(e, ErrStopped)
}

// IsErrNotLeader checks if the given error is (or wraps) ErrNotLeader.
func IsErrNotLeader(e error) bool {
	return errors.Is(e, ErrNotLeader)
}

// IsErrMembershipChangeInProgress checks if the given error is (or wraps)
// ErrMembershipChangeInProgress.
func IsErrMembershipChangeInProgress(e error) bool {
	return errors.Is(e, ErrMembershipChangeInProgress)
}

// IsErrMembershipUnchanged checks if the given error is (or wraps)
// ErrMembershipUnchanged.
func IsErrMembershipUnchanged(e error) bool {
	return errors.Is(e, ErrMembershipUnchanged)
}
