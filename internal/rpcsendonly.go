package internal

import (
	. "github.com/divtxt/raftcore"
)

// SendOnlyRpcAppendEntriesAsync is equivalent to an async RpcService.RpcAppendEntries().
//
// round is passed back to the consensus module along with the reply.
type SendOnlyRpcAppendEntriesAsync func(toServer ServerId, rpc *RpcAppendEntries, round uint64)

// SendOnlyRpcRequestVoteAsync is equivalent to an async RpcService.RpcRequestVote().
type SendOnlyRpcRequestVoteAsync func(toServer ServerId, rpc *RpcRequestVote)
