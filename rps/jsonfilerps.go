package rps

import (
	"os"
	"sync"

	"github.com/go-errors/errors"

	. "github.com/divtxt/raftcore"
	"github.com/divtxt/raftcore/fileutil"
)

// JsonFileRaftPersistentState keeps currentTerm and votedFor in a json file.
//
// Every change is durably written with fileutil.AtomicJsonFile before the
// setter returns. The file is only read when opening, so nothing else may
// write to it while this instance is in use.
//
// Safe for use from multiple goroutines.
type JsonFileRaftPersistentState struct {
	mutex sync.Mutex
	ajf   fileutil.AtomicJsonFile
	state rps
}

// NewJsonFileRaftPersistentState loads the state from the given file.
// A missing file means the initial state, and is only created by the first change.
func NewJsonFileRaftPersistentState(filename string) (*JsonFileRaftPersistentState, error) {
	jfrps := &JsonFileRaftPersistentState{ajf: fileutil.NewAtomicJsonFile(filename)}
	err := jfrps.ajf.Read(&jfrps.state)
	if err != nil && !os.IsNotExist(err) {
		return nil, errors.WrapPrefix(err, "JsonFileRaftPersistentState: "+filename, 0)
	}
	if err != nil {
		jfrps.state = rps{}
	}
	return jfrps, nil
}

func (jfrps *JsonFileRaftPersistentState) GetCurrentTerm() TermNo {
	jfrps.mutex.Lock()
	defer jfrps.mutex.Unlock()
	return jfrps.state.CurrentTerm
}

func (jfrps *JsonFileRaftPersistentState) GetVotedFor() ServerId {
	jfrps.mutex.Lock()
	defer jfrps.mutex.Unlock()
	return jfrps.state.VotedFor
}

func (jfrps *JsonFileRaftPersistentState) SetCurrentTerm(currentTerm TermNo) error {
	return jfrps.update(func(s rps) (rps, error) { return s.withCurrentTerm(currentTerm) })
}

func (jfrps *JsonFileRaftPersistentState) SetVotedFor(votedFor ServerId) error {
	return jfrps.update(func(s rps) (rps, error) { return s.withVotedFor(votedFor) })
}

func (jfrps *JsonFileRaftPersistentState) SetCurrentTermAndVotedFor(
	currentTerm TermNo,
	votedFor ServerId,
) error {
	return jfrps.update(func(s rps) (rps, error) {
		return s.withCurrentTermAndVotedFor(currentTerm, votedFor)
	})
}

// update writes the new state when it differs, and only then keeps it.
func (jfrps *JsonFileRaftPersistentState) update(f func(rps) (rps, error)) error {
	jfrps.mutex.Lock()
	defer jfrps.mutex.Unlock()
	s, err := f(jfrps.state)
	if err != nil {
		return err
	}
	if s == jfrps.state {
		return nil
	}
	err = jfrps.ajf.Write(&s)
	if err != nil {
		return errors.WrapPrefix(err, "FATAL: JsonFileRaftPersistentState write failed", 0)
	}
	jfrps.state = s
	return nil
}
