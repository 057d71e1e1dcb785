// Package transport is an in-memory network of raft servers.
//
// Each server gets a raft.RpcService from the Network that delivers rpcs
// directly to the RpcHandler registered for the destination server. The
// Network can disconnect servers, partition them into groups, drop a
// fraction of messages and delay delivery. It is meant for tests and
// single-process clusters.
package transport

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/go-errors/errors"

	. "github.com/divtxt/raftcore"
)

var (
	// The destination server is not registered or cannot be reached.
	ErrUnreachable = errors.Errorf("Server is unreachable")

	// The message was dropped by the network.
	ErrDropped = errors.Errorf("Message was dropped")
)

// RpcHandler processes incoming rpcs for a server.
//
// impl.ConsensusModule implements this interface.
type RpcHandler interface {
	ProcessRpcAppendEntries(from ServerId, rpc *RpcAppendEntries) (*RpcAppendEntriesReply, error)
	ProcessRpcRequestVote(from ServerId, rpc *RpcRequestVote) (*RpcRequestVoteReply, error)
}

// Network connects the servers registered with it.
type Network struct {
	mutex sync.Mutex

	handlers     map[ServerId]RpcHandler
	disconnected map[ServerId]bool
	// partition group of each server, absent means not partitioned
	groups map[ServerId]int

	dropRate float64
	delayMin time.Duration
	delayMax time.Duration
	rand     *rand.Rand
}

func NewNetwork() *Network {
	return &Network{
		handlers:     make(map[ServerId]RpcHandler),
		disconnected: make(map[ServerId]bool),
		groups:       make(map[ServerId]int),
		rand:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Register the handler for rpcs sent to the given server.
// A previously registered handler is replaced.
func (n *Network) Register(serverId ServerId, handler RpcHandler) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	n.handlers[serverId] = handler
}

// Unregister the given server. Rpcs to it fail with ErrUnreachable.
func (n *Network) Unregister(serverId ServerId) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	delete(n.handlers, serverId)
}

// Disconnect the given server from all other servers.
func (n *Network) Disconnect(serverId ServerId) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	n.disconnected[serverId] = true
}

// Reconnect a server that was disconnected.
func (n *Network) Reconnect(serverId ServerId) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	delete(n.disconnected, serverId)
}

// Partition the network into the given groups of servers.
//
// Servers can only reach servers in the same group. Servers not named in any
// group are not partitioned and can reach each other.
// This replaces any earlier partition.
func (n *Network) Partition(groups ...[]ServerId) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	n.groups = make(map[ServerId]int)
	for i, group := range groups {
		for _, serverId := range group {
			n.groups[serverId] = i + 1
		}
	}
}

// Heal removes the partition and reconnects all servers.
func (n *Network) Heal() {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	n.groups = make(map[ServerId]int)
	n.disconnected = make(map[ServerId]bool)
}

// SetDropRate sets the fraction of messages (0 to 1) that are dropped.
// Requests and replies are dropped independently.
func (n *Network) SetDropRate(dropRate float64) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	n.dropRate = dropRate
}

// SetDelay sets the range of the random delay before a request is delivered.
func (n *Network) SetDelay(delayMin, delayMax time.Duration) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	n.delayMin = delayMin
	n.delayMax = delayMax
}

// RpcServiceFor returns the RpcService used by the given server to send rpcs.
func (n *Network) RpcServiceFor(from ServerId) RpcService {
	return &rpcService{n, from}
}

// Unsafe - caller must hold mutex
func (n *Network) canReach(from, to ServerId) bool {
	if n.disconnected[from] || n.disconnected[to] {
		return false
	}
	return n.groups[from] == n.groups[to]
}

// Check that a message can go from one server to another and get the
// destination handler and the delay before delivery.
func (n *Network) route(from, to ServerId) (RpcHandler, time.Duration, error) {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	handler, ok := n.handlers[to]
	if !ok || !n.canReach(from, to) {
		return nil, 0, errors.WrapPrefix(ErrUnreachable, fmt.Sprintf("%v -> %v", from, to), 0)
	}
	if n.dropRate > 0 && n.rand.Float64() < n.dropRate {
		return nil, 0, errors.New(ErrDropped)
	}
	delay := n.delayMin
	if n.delayMax > n.delayMin {
		delay += time.Duration(n.rand.Int63n(int64(n.delayMax - n.delayMin)))
	}
	return handler, delay, nil
}

// Check that a reply can go back from one server to another.
func (n *Network) replyRoute(from, to ServerId) error {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	if !n.canReach(from, to) {
		return errors.WrapPrefix(ErrUnreachable, fmt.Sprintf("%v -> %v", from, to), 0)
	}
	if n.dropRate > 0 && n.rand.Float64() < n.dropRate {
		return errors.New(ErrDropped)
	}
	return nil
}

func (n *Network) deliver(ctx context.Context, from, to ServerId) (RpcHandler, error) {
	handler, delay, err := n.route(from, to)
	if err != nil {
		return nil, err
	}
	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return handler, nil
}

type rpcService struct {
	network *Network
	from    ServerId
}

func (s *rpcService) RpcAppendEntries(
	ctx context.Context,
	toServer ServerId,
	rpc *RpcAppendEntries,
) (*RpcAppendEntriesReply, error) {
	handler, err := s.network.deliver(ctx, s.from, toServer)
	if err != nil {
		return nil, err
	}

	// The receiver must not share the sender's slice.
	rpcCopy := *rpc
	rpcCopy.Entries = append([]LogEntry(nil), rpc.Entries...)

	reply, err := handler.ProcessRpcAppendEntries(s.from, &rpcCopy)
	if err != nil {
		return nil, err
	}
	err = s.network.replyRoute(toServer, s.from)
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return reply, nil
}

func (s *rpcService) RpcRequestVote(
	ctx context.Context,
	toServer ServerId,
	rpc *RpcRequestVote,
) (*RpcRequestVoteReply, error) {
	handler, err := s.network.deliver(ctx, s.from, toServer)
	if err != nil {
		return nil, err
	}

	rpcCopy := *rpc
	reply, err := handler.ProcessRpcRequestVote(s.from, &rpcCopy)
	if err != nil {
		return nil, err
	}
	err = s.network.replyRoute(toServer, s.from)
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return reply, nil
}
