package util_test

import (
	"testing"

	"github.com/divtxt/raftcore/testhelpers"
	. "github.com/divtxt/raftcore/util"
)

func TestIndexNotifier(t *testing.T) {
	n := NewIndexNotifier(5)
	if n.GetIndex() != 5 {
		t.Fatal(n)
	}

	// Listening for a reached index should be signalled already
	l5 := n.RegisterListener(5)
	testhelpers.AssertIsClosed(l5)

	// Register for new notifications
	l6 := n.RegisterListener(6)
	l7a := n.RegisterListener(7)
	l7b := n.RegisterListener(7)
	l9 := n.RegisterListener(9)
	testhelpers.AssertWillBlock(l6)
	testhelpers.AssertWillBlock(l7a)
	testhelpers.AssertWillBlock(l7b)
	testhelpers.AssertWillBlock(l9)

	// Advancing the index should notify relevant listeners
	err := n.IndexChanged(7)
	if err != nil {
		t.Fatal(err)
	}
	if n.GetIndex() != 7 {
		t.Fatal(n)
	}
	testhelpers.AssertIsClosed(l6)
	testhelpers.AssertIsClosed(l7a)
	testhelpers.AssertIsClosed(l7b)
	testhelpers.AssertWillBlock(l9)

	// Going backwards is an error
	err = n.IndexChanged(6)
	if err == nil || err.Error() != "FATAL: newIndex=6 is < current index=7" {
		t.Fatal(err)
	}

	// Jumping past a listener notifies it
	err = n.IndexChanged(12)
	if err != nil {
		t.Fatal(err)
	}
	testhelpers.AssertIsClosed(l9)
}
