// Package aesender builds RpcAppendEntries for the leader.
package aesender

import (
	. "github.com/divtxt/raftcore"
	"github.com/divtxt/raftcore/internal"
)

// LogOnlyAESender builds every RpcAppendEntries from the raft log, so it cannot
// catch up a peer whose next entry was compacted away.
//
// How many entries go in one rpc is up to the log's GetEntriesAfterIndex.
type LogOnlyAESender struct {
	log      LogReadOnly
	leaderId ServerId
	send     internal.SendOnlyRpcAppendEntriesAsync
}

func NewLogOnlyAESender(
	log LogReadOnly,
	leaderId ServerId,
	send internal.SendOnlyRpcAppendEntriesAsync,
) internal.IAppendEntriesSender {
	return &LogOnlyAESender{log, leaderId, send}
}

func (s *LogOnlyAESender) SendAppendEntriesToPeerAsync(
	params internal.SendAppendEntriesParams,
) error {
	rpc, err := s.buildRpc(params)
	if err != nil {
		return err
	}
	s.send(params.PeerId, rpc, params.Round)
	return nil
}

// buildRpc reads the entries after the peer's assumed last entry.
func (s *LogOnlyAESender) buildRpc(params internal.SendAppendEntriesParams) (*RpcAppendEntries, error) {
	prevLogIndex := params.PeerNextIndex - 1
	// GetTermAtIndex(0) is 0
	prevLogTerm, err := s.log.GetTermAtIndex(prevLogIndex)
	if err != nil {
		return nil, err
	}

	entries := []LogEntry{}
	if !params.Empty {
		entries, err = s.log.GetEntriesAfterIndex(prevLogIndex)
		if err != nil {
			return nil, err
		}
	}

	return &RpcAppendEntries{
		Term:         params.CurrentTerm,
		LeaderId:     s.leaderId,
		PrevLogIndex: prevLogIndex,
		PrevLogTerm:  prevLogTerm,
		Entries:      entries,
		LeaderCommit: params.CommitIndex,
	}, nil
}
