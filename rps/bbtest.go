package rps

import (
	"testing"

	. "github.com/divtxt/raftcore"
)

// BlackboxTest_RaftPersistentState runs a RaftPersistentState through its
// rules. The given instance must be new: currentTerm and votedFor both 0.
func BlackboxTest_RaftPersistentState(t *testing.T, ps RaftPersistentState) {
	steps := []struct {
		what        string
		op          func() error
		err         string
		currentTerm TermNo
		votedFor    ServerId
	}{
		{"initial state", nil, "", 0, 0},
		{
			"currentTerm cannot be set to 0",
			func() error { return ps.SetCurrentTerm(0) },
			"FATAL: attempt to set currentTerm to 0", 0, 0,
		},
		{
			"no voting in term 0",
			func() error { return ps.SetVotedFor(1) },
			"FATAL: attempt to set votedFor while currentTerm is 0", 0, 0,
		},
		{"currentTerm goes up", func() error { return ps.SetCurrentTerm(1) }, "", 1, 0},
		{
			"votedFor cannot be set to 0",
			func() error { return ps.SetVotedFor(0) },
			"FATAL: attempt to set votedFor to 0", 1, 0,
		},
		{"vote", func() error { return ps.SetVotedFor(1) }, "", 1, 1},
		{"a new term clears the vote", func() error { return ps.SetCurrentTerm(4) }, "", 4, 0},
		{"vote in new term", func() error { return ps.SetVotedFor(2) }, "", 4, 2},
		{"repeating the vote is ok", func() error { return ps.SetVotedFor(2) }, "", 4, 2},
		{"same term keeps the vote", func() error { return ps.SetCurrentTerm(4) }, "", 4, 2},
		{
			"currentTerm cannot go down",
			func() error { return ps.SetCurrentTerm(3) },
			"FATAL: attempt to decrease currentTerm: 4 to 3", 4, 2,
		},
		{
			"vote cannot change within a term",
			func() error { return ps.SetVotedFor(3) },
			"FATAL: attempt to change non-zero votedFor: 2 to 3", 4, 2,
		},
		{
			"term and vote together need a newer term",
			func() error { return ps.SetCurrentTermAndVotedFor(4, 3) },
			"FATAL: attempt to vote in term: 4 when currentTerm is: 4", 4, 2,
		},
		{
			"term and vote together need a vote",
			func() error { return ps.SetCurrentTermAndVotedFor(5, 0) },
			"FATAL: attempt to set votedFor to 0", 4, 2,
		},
		{
			"term and vote together",
			func() error { return ps.SetCurrentTermAndVotedFor(6, 3) },
			"", 6, 3,
		},
	}

	for _, step := range steps {
		if step.op != nil {
			err := step.op()
			if step.err == "" && err != nil {
				t.Fatal(step.what, err)
			}
			if step.err != "" && (err == nil || err.Error() != step.err) {
				t.Fatal(step.what, err)
			}
		}
		if ct := ps.GetCurrentTerm(); ct != step.currentTerm {
			t.Fatal(step.what, "currentTerm", ct)
		}
		if vf := ps.GetVotedFor(); vf != step.votedFor {
			t.Fatal(step.what, "votedFor", vf)
		}
	}
}
