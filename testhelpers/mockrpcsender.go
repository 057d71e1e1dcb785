package testhelpers

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"testing"

	. "github.com/divtxt/raftcore"
)

// MockRpcSender records the rpcs a consensus module sends so a test can
// check them and answer them. It is both an RpcService and a source of the
// send-only functions.
//
// A server can only have one outstanding rpc; sending a second one panics.
type MockRpcSender struct {
	mutex *sync.Mutex
	sent  map[ServerId]sentRpc
}

// sentRpc is a SentAppendEntries or a SentRequestVote.
type sentRpc interface {
	rpc() interface{}
	// answer sends the matching reply if one is given and someone is waiting.
	answer(ae *RpcAppendEntriesReply, rv *RpcRequestVoteReply) bool
}

type SentAppendEntries struct {
	Rpc       *RpcAppendEntries
	Round     uint64
	ReplyChan chan *RpcAppendEntriesReply
}

func (s SentAppendEntries) rpc() interface{} { return s.Rpc }

func (s SentAppendEntries) answer(ae *RpcAppendEntriesReply, _ *RpcRequestVoteReply) bool {
	if ae == nil || s.ReplyChan == nil {
		return false
	}
	s.ReplyChan <- ae
	return true
}

type SentRequestVote struct {
	Rpc       *RpcRequestVote
	ReplyChan chan *RpcRequestVoteReply
}

func (s SentRequestVote) rpc() interface{} { return s.Rpc }

func (s SentRequestVote) answer(_ *RpcAppendEntriesReply, rv *RpcRequestVoteReply) bool {
	if rv == nil || s.ReplyChan == nil {
		return false
	}
	s.ReplyChan <- rv
	return true
}

func NewMockRpcSender() *MockRpcSender {
	return &MockRpcSender{&sync.Mutex{}, make(map[ServerId]sentRpc)}
}

func (mrs *MockRpcSender) SendOnlyRpcAppendEntriesAsync(
	toServer ServerId,
	rpc *RpcAppendEntries,
	round uint64,
) {
	mrs.record(toServer, SentAppendEntries{rpc, round, nil})
}

func (mrs *MockRpcSender) SendOnlyRpcRequestVoteAsync(toServer ServerId, rpc *RpcRequestVote) {
	mrs.record(toServer, SentRequestVote{rpc, nil})
}

func (mrs *MockRpcSender) RpcAppendEntries(
	ctx context.Context,
	toServer ServerId,
	rpc *RpcAppendEntries,
) (*RpcAppendEntriesReply, error) {
	replyChan := make(chan *RpcAppendEntriesReply, 1)
	mrs.record(toServer, SentAppendEntries{rpc, 0, replyChan})
	select {
	case reply := <-replyChan:
		return reply, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (mrs *MockRpcSender) RpcRequestVote(
	ctx context.Context,
	toServer ServerId,
	rpc *RpcRequestVote,
) (*RpcRequestVoteReply, error) {
	replyChan := make(chan *RpcRequestVoteReply, 1)
	mrs.record(toServer, SentRequestVote{rpc, replyChan})
	select {
	case reply := <-replyChan:
		return reply, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (mrs *MockRpcSender) record(toServer ServerId, s sentRpc) {
	mrs.mutex.Lock()
	defer mrs.mutex.Unlock()

	if _, ok := mrs.sent[toServer]; ok {
		panic(fmt.Sprintf("Already have sent rpc for server %v", toServer))
	}
	mrs.sent[toServer] = s
}

// GetSentAppendEntries returns the RpcAppendEntries sent to the given server.
func (mrs *MockRpcSender) GetSentAppendEntries(toServer ServerId) (SentAppendEntries, bool) {
	mrs.mutex.Lock()
	defer mrs.mutex.Unlock()

	sae, ok := mrs.sent[toServer].(SentAppendEntries)
	return sae, ok
}

// GetSentRpcCount returns the number of servers with a sent rpc.
func (mrs *MockRpcSender) GetSentRpcCount() int {
	mrs.mutex.Lock()
	defer mrs.mutex.Unlock()

	return len(mrs.sent)
}

// CheckSentRpcs fails the test unless exactly the given rpcs were sent.
// Values are *RpcAppendEntries or *RpcRequestVote.
func (mrs *MockRpcSender) CheckSentRpcs(t *testing.T, expectedRpcs map[ServerId]interface{}) {
	t.Helper()
	mrs.mutex.Lock()
	defer mrs.mutex.Unlock()

	match := len(mrs.sent) == len(expectedRpcs)
	for toServer, expectedRpc := range expectedRpcs {
		s, ok := mrs.sent[toServer]
		if !ok || !reflect.DeepEqual(s.rpc(), expectedRpc) {
			match = false
		}
	}
	if match {
		return
	}

	t.Error("--- Sent:")
	for toServer, s := range mrs.sent {
		t.Errorf("toServer: %v - %T: %+v", toServer, s.rpc(), s.rpc())
	}
	t.Error("--- Expected:")
	for toServer, rpc := range expectedRpcs {
		t.Errorf("toServer: %v - %T: %+v", toServer, rpc, rpc)
	}
	t.FailNow()
}

// SendAERepliesAndClearRpcs answers the waiting RpcAppendEntries calls with the
// given reply, forgets all sent rpcs and returns the number answered.
func (mrs *MockRpcSender) SendAERepliesAndClearRpcs(reply *RpcAppendEntriesReply) int {
	return mrs.answerAndClear(reply, nil)
}

// SendRVRepliesAndClearRpcs is SendAERepliesAndClearRpcs for RpcRequestVote.
func (mrs *MockRpcSender) SendRVRepliesAndClearRpcs(reply *RpcRequestVoteReply) int {
	return mrs.answerAndClear(nil, reply)
}

func (mrs *MockRpcSender) answerAndClear(
	ae *RpcAppendEntriesReply,
	rv *RpcRequestVoteReply,
) int {
	mrs.mutex.Lock()
	defer mrs.mutex.Unlock()

	n := 0
	for _, s := range mrs.sent {
		if s.answer(ae, rv) {
			n++
		}
	}
	mrs.sent = make(map[ServerId]sentRpc)
	return n
}

func (mrs *MockRpcSender) ClearSentRpcs() {
	mrs.mutex.Lock()
	defer mrs.mutex.Unlock()

	mrs.sent = make(map[ServerId]sentRpc)
}
