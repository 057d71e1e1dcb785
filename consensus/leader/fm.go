package leader

import (
	"fmt"

	"github.com/go-errors/errors"

	. "github.com/divtxt/raftcore"
	"github.com/divtxt/raftcore/internal"
	"github.com/divtxt/raftcore/util"
)

type FollowerManager struct {
	peerId ServerId

	// for each server, index of the next log entry to send to that server
	// (initialized to leader last log index + 1)
	nextIndex LogIndex

	// for each server, index of highest log entry known to be replicated
	// on server
	// (initialized to 0, increases monotonically)
	matchIndex LogIndex

	// highest heartbeat round acknowledged by the server in this term
	ackedRound uint64

	aeSender internal.IAppendEntriesSender
}

func (fm *FollowerManager) GoString() string {
	return fmt.Sprintf(
		"&FollowerManager{peerId: %d, nextIndex: %d, matchIndex: %d, ackedRound: %d}",
		fm.peerId,
		fm.nextIndex,
		fm.matchIndex,
		fm.ackedRound,
	)
}

func NewFollowerManager(
	peerId ServerId,
	nextIndex LogIndex,
	matchIndex LogIndex,
	aeSender internal.IAppendEntriesSender,
) *FollowerManager {
	return &FollowerManager{
		peerId,
		nextIndex,
		matchIndex,
		0,
		aeSender,
	}
}

func (fm *FollowerManager) GetNextIndex() LogIndex {
	return fm.nextIndex
}

func (fm *FollowerManager) GetMatchIndex() LogIndex {
	return fm.matchIndex
}

// Decrement nextIndex for the peer
func (fm *FollowerManager) DecrementNextIndex() error {
	if fm.nextIndex <= 1 {
		return errors.Errorf(
			"FollowerManager.decrementNextIndex(): nextIndex already <=1 for peer: %v",
			fm.peerId,
		)
	}
	fm.nextIndex = fm.nextIndex - 1
	return nil
}

// BackOffNextIndex moves nextIndex back to the given index.
//
// The result is always less than the current nextIndex and at least 1.
func (fm *FollowerManager) BackOffNextIndex(newNextIndex LogIndex) error {
	err := fm.DecrementNextIndex()
	if err != nil {
		return err
	}
	if newNextIndex < 1 {
		newNextIndex = 1
	}
	fm.nextIndex = util.Min(fm.nextIndex, newNextIndex)
	return nil
}

// UpdateAfterSuccess records that the peer has all entries up to the given
// index. Neither matchIndex nor nextIndex goes backward.
func (fm *FollowerManager) UpdateAfterSuccess(newMatchIndex LogIndex) {
	fm.matchIndex = util.Max(fm.matchIndex, newMatchIndex)
	fm.nextIndex = util.Max(fm.nextIndex, fm.matchIndex+1)
}

// AckRound records that the peer replied to an RpcAppendEntries of the
// given heartbeat round in the current term.
func (fm *FollowerManager) AckRound(round uint64) {
	fm.ackedRound = util.Max(fm.ackedRound, round)
}

func (fm *FollowerManager) GetAckedRound() uint64 {
	return fm.ackedRound
}

// Construct and send RpcAppendEntries to the peer.
func (fm *FollowerManager) SendAppendEntriesToPeerAsync(
	empty bool,
	currentTerm TermNo,
	commitIndex LogIndex,
	round uint64,
) error {
	return fm.aeSender.SendAppendEntriesToPeerAsync(
		internal.SendAppendEntriesParams{
			PeerId:        fm.peerId,
			PeerNextIndex: fm.nextIndex,
			Empty:         empty,
			CurrentTerm:   currentTerm,
			CommitIndex:   commitIndex,
			Round:         round,
		},
	)
}
