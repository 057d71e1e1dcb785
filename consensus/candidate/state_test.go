package candidate_test

import (
	"testing"

	. "github.com/divtxt/raftcore"
	"github.com/divtxt/raftcore/config"
	"github.com/divtxt/raftcore/consensus/candidate"
	"github.com/divtxt/raftcore/testdata"
)

func TestCandidateVolatileState(t *testing.T) {
	ci, err := config.NewClusterInfo(
		config.NewConfiguration(testdata.AllServerIds...),
		testdata.ThisServerId,
	)
	if err != nil {
		t.Fatal(err)
	}
	cvs := candidate.NewCandidateVolatileState(ci)

	// Initial state
	if cvs.GetVoteCount() != 1 {
		t.Fatal()
	}
	if cvs.HasQuorum(ci) {
		t.Fatal()
	}

	addVoteFrom := func(peerId ServerId) bool {
		err := cvs.AddVoteFrom(peerId)
		if err != nil {
			t.Fatal(err)
		}
		return cvs.HasQuorum(ci)
	}

	// Add a vote - no quorum yet
	if addVoteFrom(102) {
		t.Fatal()
	}

	// Duplicate vote - no error and no quorum yet
	if addVoteFrom(102) {
		t.Fatal()
	}
	if cvs.GetVoteCount() != 2 {
		t.Fatal(cvs.GetVoteCount())
	}

	// Add 2nd vote - should be at quorum
	if !addVoteFrom(103) {
		t.Fatal()
	}

	// Add more votes - should remain at quorum
	if !addVoteFrom(104) {
		t.Fatal()
	}
	if cvs.GetVoteCount() != 4 {
		t.Fatal(cvs.GetVoteCount())
	}

	// Unknown peer
	err = cvs.AddVoteFrom(106)
	if err == nil || err.Error() != "CandidateVolatileState.AddVoteFrom(): unknown peer: 106" {
		t.Fatal(err)
	}
	err = cvs.AddVoteFrom(testdata.ThisServerId)
	if err == nil {
		t.Fatal()
	}
}

// In a joint configuration a candidate needs a majority of both sets.
func TestCandidateVolatileState_Joint(t *testing.T) {
	c := config.Configuration{
		Servers:    []ServerId{101, 102, 103},
		NewServers: []ServerId{103, 104, 105},
	}
	ci, err := config.NewClusterInfo(c, 101)
	if err != nil {
		t.Fatal(err)
	}
	cvs := candidate.NewCandidateVolatileState(ci)

	if err = cvs.AddVoteFrom(102); err != nil {
		t.Fatal(err)
	}
	// majority of old only
	if cvs.HasQuorum(ci) {
		t.Fatal()
	}
	if err = cvs.AddVoteFrom(104); err != nil {
		t.Fatal(err)
	}
	// 104 alone is not a majority of new
	if cvs.HasQuorum(ci) {
		t.Fatal()
	}
	if err = cvs.AddVoteFrom(105); err != nil {
		t.Fatal(err)
	}
	if !cvs.HasQuorum(ci) {
		t.Fatal()
	}
}

// A candidate outside the configuration does not count its own vote.
func TestCandidateVolatileState_NonMember(t *testing.T) {
	ci, err := config.NewClusterInfo(config.NewConfiguration(102, 103, 104), 101)
	if err != nil {
		t.Fatal(err)
	}
	cvs := candidate.NewCandidateVolatileState(ci)
	if err = cvs.AddVoteFrom(102); err != nil {
		t.Fatal(err)
	}
	if cvs.HasQuorum(ci) {
		t.Fatal()
	}
	if err = cvs.AddVoteFrom(103); err != nil {
		t.Fatal(err)
	}
	if !cvs.HasQuorum(ci) {
		t.Fatal()
	}
}
