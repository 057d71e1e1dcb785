package consensus

import (
	"fmt"
	"reflect"

	. "github.com/divtxt/raftcore"
)

type mockCommitterCall struct {
	name  string
	param LogIndex
}

type mockCommitter struct {
	calls     []mockCommitterCall
	listeners map[LogIndex]chan CommandResult
}

func newMockCommitter() *mockCommitter {
	return &mockCommitter{nil, make(map[LogIndex]chan CommandResult)}
}

func (mc *mockCommitter) CheckCalls(expected []mockCommitterCall) {
	if len(mc.calls) == 0 && len(expected) == 0 {
		return
	}
	if !reflect.DeepEqual(mc.calls, expected) {
		panic(fmt.Sprintf("%v != %v", mc.calls, expected))
	}
	mc.calls = nil
}

func (mc *mockCommitter) RegisterListener(logIndex LogIndex) (<-chan CommandResult, error) {
	crc := make(chan CommandResult, 1)
	mc.listeners[logIndex] = crc
	mc.calls = append(mc.calls, mockCommitterCall{"RegisterListener", logIndex})
	return crc, nil
}

func (mc *mockCommitter) RemoveListenersAfterIndex(afterIndex LogIndex) error {
	for li, crc := range mc.listeners {
		if li > afterIndex {
			close(crc)
			delete(mc.listeners, li)
		}
	}
	mc.calls = append(mc.calls, mockCommitterCall{"RemoveListenersAfterIndex", afterIndex})
	return nil
}

func (mc *mockCommitter) CommitAsync(commitIndex LogIndex) error {
	mc.calls = append(mc.calls, mockCommitterCall{"CommitAsync", commitIndex})
	return nil
}
