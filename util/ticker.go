package util

import (
	"context"
	"time"
)

// Ticker calls a function at a fixed interval on its own goroutine.
//
// Ticks that arrive while the function is still running are dropped.
type Ticker struct {
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewTicker starts calling f every d until stopped.
func NewTicker(f func(), d time.Duration) *Ticker {
	ctx, cancel := context.WithCancel(context.Background())
	t := &Ticker{ctx, cancel, make(chan struct{})}
	go t.loop(f, time.NewTicker(d))
	return t
}

// StopAsync stops future calls without waiting for a running call to finish.
// It can be called more than once, including from f.
func (t *Ticker) StopAsync() {
	t.cancel()
}

// StopSync stops the ticker and waits for a running call to finish, so it
// must not be called from f.
func (t *Ticker) StopSync() {
	t.cancel()
	<-t.done
}

func (t *Ticker) loop(f func(), tk *time.Ticker) {
	defer close(t.done)
	defer tk.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case <-tk.C:
			// select picks randomly when a stop raced with the tick
			if t.ctx.Err() != nil {
				return
			}
			f()
		}
	}
}
