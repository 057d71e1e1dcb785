// Package rps has implementations of RaftPersistentState.
package rps

import (
	"sync"

	. "github.com/divtxt/raftcore"
)

// InMemoryRaftPersistentState keeps currentTerm and votedFor in memory only,
// so nothing survives a restart. Meant for tests.
type InMemoryRaftPersistentState struct {
	mutex sync.Mutex
	state rps
}

func NewIMPSWithCurrentTerm(currentTerm TermNo) *InMemoryRaftPersistentState {
	return &InMemoryRaftPersistentState{state: rps{CurrentTerm: currentTerm}}
}

func (imps *InMemoryRaftPersistentState) GetCurrentTerm() TermNo {
	imps.mutex.Lock()
	defer imps.mutex.Unlock()
	return imps.state.CurrentTerm
}

func (imps *InMemoryRaftPersistentState) GetVotedFor() ServerId {
	imps.mutex.Lock()
	defer imps.mutex.Unlock()
	return imps.state.VotedFor
}

func (imps *InMemoryRaftPersistentState) SetCurrentTerm(currentTerm TermNo) error {
	return imps.update(func(s rps) (rps, error) { return s.withCurrentTerm(currentTerm) })
}

func (imps *InMemoryRaftPersistentState) SetVotedFor(votedFor ServerId) error {
	return imps.update(func(s rps) (rps, error) { return s.withVotedFor(votedFor) })
}

func (imps *InMemoryRaftPersistentState) SetCurrentTermAndVotedFor(
	currentTerm TermNo,
	votedFor ServerId,
) error {
	return imps.update(func(s rps) (rps, error) {
		return s.withCurrentTermAndVotedFor(currentTerm, votedFor)
	})
}

func (imps *InMemoryRaftPersistentState) update(f func(rps) (rps, error)) error {
	imps.mutex.Lock()
	defer imps.mutex.Unlock()
	s, err := f(imps.state)
	if err != nil {
		return err
	}
	imps.state = s
	return nil
}
