package util

import (
	"math/rand"
	"sync"
	"time"
)

// ElectionTimeoutChooser chooses random election timeouts.
//
// Safe for concurrent use, since multiple ConsensusModules in one process
// share the random source.
type ElectionTimeoutChooser struct {
	electionTimeoutLow time.Duration
}

var (
	rMutex sync.Mutex
	r      *rand.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
)

func NewElectionTimeoutChooser(electionTimeoutLow time.Duration) *ElectionTimeoutChooser {
	return &ElectionTimeoutChooser{electionTimeoutLow}
}

func (etc *ElectionTimeoutChooser) ChooseRandomElectionTimeout() time.Duration {
	// #5.2-p6s2: ..., election timeouts are chosen randomly from a fixed
	// interval (e.g., 150-300ms)
	// Currently, we choose a time between electionTimeoutLow and 2*electionTimeoutLow
	rMutex.Lock()
	n := r.Int63n(int64(etc.electionTimeoutLow) + 1)
	rMutex.Unlock()
	return etc.electionTimeoutLow + time.Duration(n)
}
