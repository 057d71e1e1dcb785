package rps_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/divtxt/raftcore/rps"
)

// Run the blackbox test on JsonFileRaftPersistentState
func TestNewJsonFileRaftPersistentState_Blackbox(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "test_jsonfilerps.json")

	jfrps, err := rps.NewJsonFileRaftPersistentState(filename)
	if err != nil {
		t.Fatal(err)
	}

	rps.BlackboxTest_RaftPersistentState(t, jfrps)

	if jfrps.GetCurrentTerm() != 6 {
		t.Fatal()
	}
	if jfrps.GetVotedFor() != 3 {
		t.Fatal()
	}

	// Values survive a restart
	jfrps2, err := rps.NewJsonFileRaftPersistentState(filename)
	if err != nil {
		t.Fatal(err)
	}
	if jfrps2.GetCurrentTerm() != 6 || jfrps2.GetVotedFor() != 3 {
		t.Fatal(jfrps2.GetCurrentTerm(), jfrps2.GetVotedFor())
	}
}

// Run whitebox tests on JsonFileRaftPersistentState
func TestNewJsonFileRaftPersistentState_Whitebox(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "test_jsonfilerps.json")

	// Non-existent file is initialization
	jfrps, err := rps.NewJsonFileRaftPersistentState(filename)
	if err != nil {
		t.Fatal(err)
	}
	if jfrps.GetCurrentTerm() != 0 {
		t.Fatal(jfrps)
	}
	if jfrps.GetVotedFor() != 0 {
		t.Fatal()
	}
	// no file written for no changes
	_, err = os.ReadFile(filename)
	if !os.IsNotExist(err) {
		t.Fatal(err)
	}

	// Set currentTerm and check file
	err = jfrps.SetCurrentTerm(1)
	if err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, []byte("{\"currentTerm\":1,\"votedFor\":0}")) {
		t.Fatal(string(data))
	}

	// Set votedFor and check file
	err = jfrps.SetVotedFor(2000)
	if err != nil {
		t.Fatal(err)
	}

	data, err = os.ReadFile(filename)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, []byte("{\"currentTerm\":1,\"votedFor\":2000}")) {
		t.Fatal(string(data))
	}

	// Both in one write
	err = jfrps.SetCurrentTermAndVotedFor(3, 1)
	if err != nil {
		t.Fatal(err)
	}
	data, err = os.ReadFile(filename)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, []byte("{\"currentTerm\":3,\"votedFor\":1}")) {
		t.Fatal(string(data))
	}

	// Corrupt file is an error
	err = os.WriteFile(filename, []byte("{"), 0666)
	if err != nil {
		t.Fatal(err)
	}
	_, err = rps.NewJsonFileRaftPersistentState(filename)
	if err == nil {
		t.Fatal()
	}
}
