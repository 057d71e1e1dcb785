package util_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/divtxt/raftcore/util"
)

func TestTicker(t *testing.T) {
	var n int32 = 0

	getN := func() int32 {
		return atomic.LoadInt32(&n)
	}

	f := func() {
		atomic.AddInt32(&n, 1)
	}

	ticker := util.NewTicker(f, 10*time.Millisecond)

	if getN() != 0 {
		t.Fatal(getN())
	}

	time.Sleep(15 * time.Millisecond)
	if getN() != 1 {
		t.Fatal(getN())
	}

	time.Sleep(10 * time.Millisecond)
	if getN() != 2 {
		t.Fatal(getN())
	}

	ticker.StopSync()

	time.Sleep(20 * time.Millisecond)
	if getN() != 2 {
		t.Fatal(getN())
	}

	// Extra stops are harmless
	ticker.StopAsync()
	ticker.StopSync()
}

func TestTicker_StopAsyncFromTickedFunction(t *testing.T) {
	var n int32 = 0
	var ticker *util.Ticker
	started := make(chan struct{})

	f := func() {
		<-started
		atomic.AddInt32(&n, 1)
		ticker.StopAsync()
	}

	ticker = util.NewTicker(f, 5*time.Millisecond)
	close(started)

	time.Sleep(30 * time.Millisecond)
	if atomic.LoadInt32(&n) != 1 {
		t.Fatal(atomic.LoadInt32(&n))
	}
	ticker.StopSync()
}
