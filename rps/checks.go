package rps

import (
	"github.com/go-errors/errors"

	. "github.com/divtxt/raftcore"
)

// rps is the value of a RaftPersistentState. The json tags are the file format
// of JsonFileRaftPersistentState.
type rps struct {
	CurrentTerm TermNo   `json:"currentTerm"`
	VotedFor    ServerId `json:"votedFor"`
}

// withCurrentTerm returns the state after SetCurrentTerm.
// Moving to a newer term clears the vote.
func (s rps) withCurrentTerm(currentTerm TermNo) (rps, error) {
	if currentTerm == 0 {
		return s, errors.Errorf("FATAL: attempt to set currentTerm to 0")
	}
	if currentTerm < s.CurrentTerm {
		return s, errors.Errorf(
			"FATAL: attempt to decrease currentTerm: %v to %v", s.CurrentTerm, currentTerm,
		)
	}
	if currentTerm == s.CurrentTerm {
		return s, nil
	}
	return rps{currentTerm, 0}, nil
}

// withVotedFor returns the state after SetVotedFor.
func (s rps) withVotedFor(votedFor ServerId) (rps, error) {
	if s.CurrentTerm == 0 {
		return s, errors.Errorf("FATAL: attempt to set votedFor while currentTerm is 0")
	}
	if votedFor == 0 {
		return s, errors.Errorf("FATAL: attempt to set votedFor to 0")
	}
	if s.VotedFor != 0 && s.VotedFor != votedFor {
		return s, errors.Errorf(
			"FATAL: attempt to change non-zero votedFor: %v to %v", s.VotedFor, votedFor,
		)
	}
	return rps{s.CurrentTerm, votedFor}, nil
}

// withCurrentTermAndVotedFor returns the state after SetCurrentTermAndVotedFor.
func (s rps) withCurrentTermAndVotedFor(currentTerm TermNo, votedFor ServerId) (rps, error) {
	if currentTerm <= s.CurrentTerm {
		return s, errors.Errorf(
			"FATAL: attempt to vote in term: %v when currentTerm is: %v",
			currentTerm,
			s.CurrentTerm,
		)
	}
	if votedFor == 0 {
		return s, errors.Errorf("FATAL: attempt to set votedFor to 0")
	}
	return rps{currentTerm, votedFor}, nil
}
