package config_test

import (
	"errors"
	"reflect"
	"testing"

	. "github.com/divtxt/raftcore"
	"github.com/divtxt/raftcore/config"
)

func TestNewClusterInfo_Validation(t *testing.T) {
	tests := []struct {
		c           config.Configuration
		tid         ServerId
		expectedErr string
	}{
		{
			config.Configuration{},
			1,
			"Servers must have at least 1 element",
		},
		{
			config.NewConfiguration(1, 2),
			0,
			"thisServerId is 0",
		},
		{
			config.NewConfiguration(1, 0),
			1,
			"Servers contains 0",
		},
		{
			config.NewConfiguration(1, 2, 2),
			1,
			"Servers contains duplicate value: 2",
		},
		{
			config.Configuration{[]ServerId{1, 2}, []ServerId{}},
			1,
			"NewServers must have at least 1 element",
		},
		{
			config.Configuration{[]ServerId{1, 2}, []ServerId{3, 3}},
			1,
			"NewServers contains duplicate value: 3",
		},
	}

	for _, test := range tests {
		_, err := config.NewClusterInfo(test.c, test.tid)
		if err == nil {
			t.Fatal(test)
		}
		if e := err.Error(); e != test.expectedErr {
			t.Fatal(e)
		}
	}
}

func TestClusterInfo_Assorted(t *testing.T) {
	ci, err := config.NewClusterInfo(config.NewConfiguration(1, 2, 3), 1)
	if err != nil {
		t.Fatal(err)
	}

	if ci.GetThisServerId() != 1 {
		t.Fatal()
	}
	if !ci.IsVoter() {
		t.Fatal()
	}
	if ci.GetClusterSize() != 3 {
		t.Fatal()
	}
	if !ci.IsPeer(2) || !ci.IsPeer(3) || ci.IsPeer(1) || ci.IsPeer(4) {
		t.Fatal()
	}
}

func TestClusterInfo_SOLO_Assorted(t *testing.T) {
	ci, err := config.NewClusterInfo(config.NewConfiguration(1), 1)
	if err != nil {
		t.Fatal(err)
	}

	if ci.GetThisServerId() != 1 {
		t.Fatal()
	}
	if ci.GetClusterSize() != 1 {
		t.Fatal()
	}

	// Our own vote is a quorum
	if !ci.HasQuorum(func(s ServerId) bool { return s == 1 }) {
		t.Fatal()
	}
	if ci.QuorumMatchIndex(func(s ServerId) LogIndex { return 5 }) != 5 {
		t.Fatal()
	}
}

func TestClusterInfo_NonMember(t *testing.T) {
	ci, err := config.NewClusterInfo(config.NewConfiguration(1, 2, 3), 4)
	if err != nil {
		t.Fatal(err)
	}

	if ci.IsVoter() {
		t.Fatal()
	}
	if ci.GetClusterSize() != 3 {
		t.Fatal()
	}

	// Our own match index is ignored
	mi := func(s ServerId) LogIndex {
		if s == 4 {
			return 10
		}
		return LogIndex(s)
	}
	if ci.QuorumMatchIndex(mi) != 2 {
		t.Fatal(ci.QuorumMatchIndex(mi))
	}
}

func TestClusterInfo_ForEach(t *testing.T) {
	ci, err := config.NewClusterInfo(
		config.Configuration{[]ServerId{1, 2, 3}, []ServerId{3, 4, 1}},
		1,
	)
	if err != nil {
		t.Fatal(err)
	}

	seenIds := make([]ServerId, 0, 3)
	err = ci.ForEachPeer(func(serverId ServerId) error {
		seenIds = append(seenIds, serverId)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(seenIds, []ServerId{2, 3, 4}) {
		t.Fatal(seenIds)
	}

	seenIds = make([]ServerId, 0, 3)
	err = ci.ForEachPeer(func(serverId ServerId) error {
		seenIds = append(seenIds, serverId)
		return errors.New("foo!")
	})
	if err.Error() != "foo!" {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(seenIds, []ServerId{2}) {
		t.Fatal(seenIds)
	}
}
