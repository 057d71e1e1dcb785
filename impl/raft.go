// Package impl is the active Raft ConsensusModule.
//
// Call NewConsensusModule with appropriate parameters to create an instance,
// and Start to run it. Incoming RPC calls can then be sent to it using the
// ProcessRpc... methods.
//
// You will have to provide implementations of the following interfaces:
//
//  - RaftPersistentState
//  - Log
//  - StateMachine
//  - RpcService
//
// Notes for implementers of these interfaces:
//
// - Concurrency: the ConsensusModule makes calls to RaftPersistentState and
// to the mutating methods of Log one at a time. Log reads and StateMachine
// calls are made from the Committer's goroutine concurrently with these.
// RpcService calls are made concurrently from multiple goroutines.
//
// - Errors: all errors should be checked and returned. This includes both
// invalid parameters sent by the consensus module and internal errors in the
// implementation. Note that any error will stop the ConsensusModule.
//
package impl

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/go-errors/errors"

	. "github.com/divtxt/raftcore"
	"github.com/divtxt/raftcore/aesender"
	"github.com/divtxt/raftcore/committer"
	"github.com/divtxt/raftcore/config"
	"github.com/divtxt/raftcore/consensus"
	"github.com/divtxt/raftcore/logindex"
	"github.com/divtxt/raftcore/util"
)

// A ConsensusModule is an active Raft consensus module implementation.
//
// Every call into the PassiveConsensusModule is made while holding mutex.
type ConsensusModule struct {
	mutex *sync.Mutex

	//
	passiveConsensusModule *consensus.PassiveConsensusModule
	committer              *committer.Committer
	commitIndex            *logindex.WatchedIndex

	// -- External components - these fields meant to be immutable
	rpcService RpcService
	logger     *log.Logger

	// -- State
	started   bool
	stopped   bool
	stopError error

	// -- Ticker
	tickerDuration time.Duration
	ticker         *util.Ticker

	// -- Outgoing rpcs
	rpcTimeout time.Duration
	rpcCtx     context.Context
	rpcCancel  context.CancelFunc
}

var _ IConsensusModule = (*ConsensusModule)(nil)

// Allocate and initialize a ConsensusModule with the given components and
// settings.
//
// All parameters are required.
// The cluster configuration is the latest one in the log, or bootstrap if
// the log has none.
// timeSettings is checked using ValidateTimeSettings().
//
func NewConsensusModule(
	raftPersistentState RaftPersistentState,
	raftLog Log,
	stateMachine StateMachine,
	rpcService RpcService,
	bootstrap config.Configuration,
	thisServerId ServerId,
	timeSettings config.TimeSettings,
	options config.Options,
	logger *log.Logger,
) (*ConsensusModule, error) {
	if raftLog == nil {
		return nil, errors.New("'raftLog' cannot be nil")
	}
	if stateMachine == nil {
		return nil, errors.New("'stateMachine' cannot be nil")
	}
	if rpcService == nil {
		return nil, errors.New("'rpcService' cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("'logger' cannot be nil")
	}
	err := config.ValidateTimeSettings(timeSettings)
	if err != nil {
		return nil, err
	}

	rpcCtx, rpcCancel := context.WithCancel(context.Background())

	cm := &ConsensusModule{
		mutex: &sync.Mutex{},

		// -- External components
		rpcService: rpcService,
		logger:     logger,

		// -- Ticker
		tickerDuration: timeSettings.TickerDuration,

		// -- Outgoing rpcs
		rpcTimeout: timeSettings.RpcTimeout,
		rpcCtx:     rpcCtx,
		rpcCancel:  rpcCancel,
	}

	cm.committer = committer.NewCommitter(raftLog, stateMachine, cm.committerFatalError)
	cm.commitIndex = logindex.NewWatchedIndex(cm.mutex)

	aes := aesender.NewLogOnlyAESender(raftLog, thisServerId, cm.sendOnlyRpcAppendEntriesAsync)

	pcm, err := consensus.NewPassiveConsensusModule(
		raftPersistentState,
		raftLog,
		cm.commitIndex,
		cm.committer,
		cm.sendOnlyRpcRequestVoteAsync,
		aes,
		bootstrap,
		thisServerId,
		timeSettings.ElectionTimeoutLow,
		cm.safeElectionTimeout,
		options,
		logger,
	)
	if err != nil {
		cm.committer.StopSync()
		rpcCancel()
		return nil, err
	}

	// we can only set the value here because it's a cyclic reference
	cm.passiveConsensusModule = pcm

	return cm, nil
}

// Start the ConsensusModule.
//
// This starts the election timer and the goroutine that drives heartbeats.
//
// Should only be called once.
func (cm *ConsensusModule) Start() error {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	if cm.stopped {
		return ErrStopped
	}
	if cm.started {
		return ErrAlreadyStartedOnce
	}
	cm.started = true

	cm.passiveConsensusModule.Start()
	cm.ticker = util.NewTicker(cm.safeTick, cm.tickerDuration)

	return nil
}

// Check if the ConsensusModule is stopped.
func (cm *ConsensusModule) IsStopped() bool {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	return cm.stopped
}

// Stop the ConsensusModule.
//
// This will mark the ConsensusModule as stopped and stop the goroutines that
// do the processing. Outstanding rpcs are cancelled and callers waiting on
// the ConsensusModule get ErrStopped.
//
// This is safe to call multiple times, even if the ConsensusModule has already stopped.
func (cm *ConsensusModule) Stop() {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	cm.shutdown(nil)
}

// Get the error that stopped the ConsensusModule.
//
// The value is nil if the ConsensusModule is running or was stopped by a
// call to Stop().
func (cm *ConsensusModule) GetStopError() error {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	return cm.stopError
}

// Get the current server state.
//
// If the ConsensusModule is stopped this is the state when it stopped.
func (cm *ConsensusModule) GetServerState() ServerState {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	return cm.passiveConsensusModule.GetServerState()
}

// Get the ServerId of the leader of the current term if known, or 0 if not.
func (cm *ConsensusModule) GetLeaderId() ServerId {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	return cm.passiveConsensusModule.GetLeaderId()
}

// Get the current term.
func (cm *ConsensusModule) GetCurrentTerm() TermNo {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	return cm.passiveConsensusModule.GetCurrentTerm()
}

// Get the current commitIndex.
func (cm *ConsensusModule) GetCommitIndex() LogIndex {
	return cm.commitIndex.Get()
}

// Get the index of the last entry applied to the state machine.
func (cm *ConsensusModule) GetLastApplied() LogIndex {
	return cm.committer.GetLastApplied()
}

// Get the cluster configuration in effect.
func (cm *ConsensusModule) GetConfiguration() config.Configuration {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	return cm.passiveConsensusModule.GetConfiguration()
}

// Process the given RpcAppendEntries message from the given peer.
//
// Returns ErrStopped if the ConsensusModule is stopped.
//
// Any other error is fatal and has stopped the ConsensusModule.
func (cm *ConsensusModule) ProcessRpcAppendEntries(
	from ServerId,
	rpc *RpcAppendEntries,
) (*RpcAppendEntriesReply, error) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	if cm.stopped {
		return nil, ErrStopped
	}

	rpcReply, err := cm.passiveConsensusModule.Rpc_RpcAppendEntries(from, rpc)
	if err != nil {
		cm.shutdown(err)
		return nil, err
	}

	return rpcReply, nil
}

// Process the given RpcRequestVote message from the given peer.
//
// Returns ErrStopped if the ConsensusModule is stopped.
//
// Any other error is fatal and has stopped the ConsensusModule.
func (cm *ConsensusModule) ProcessRpcRequestVote(
	from ServerId,
	rpc *RpcRequestVote,
) (*RpcRequestVoteReply, error) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	if cm.stopped {
		return nil, ErrStopped
	}

	rpcReply, err := cm.passiveConsensusModule.Rpc_RpcRequestVote(from, rpc)
	if err != nil {
		cm.shutdown(err)
		return nil, err
	}

	return rpcReply, nil
}

// AppendCommand appends the given serialized command to the Raft log.
//
// This can only be done if the ConsensusModule is in LEADER state.
//
// The result of applying the command to the state machine is sent on the
// returned channel. The channel is closed without a value if the entry is
// overwritten by a new leader.
//
// Returns ErrStopped if ConsensusModule is stopped.
// Returns ErrNotLeader if not currently the leader.
//
// Any other error is fatal and has stopped the ConsensusModule.
func (cm *ConsensusModule) AppendCommand(command Command) (<-chan CommandResult, error) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	if cm.stopped {
		return nil, ErrStopped
	}

	crc, err := cm.passiveConsensusModule.AppendCommand(command)
	if err != nil {
		if err != ErrNotLeader {
			cm.shutdown(err)
		}
		return nil, err
	}

	return crc, nil
}

// AppendCommandAndWait appends the given command and waits for the result
// of applying it to the state machine.
//
// Returns ErrEntryDiscarded if the entry was overwritten by a new leader.
// Returns ctx.Err() if the context is done first.
func (cm *ConsensusModule) AppendCommandAndWait(
	ctx context.Context,
	command Command,
) (CommandResult, error) {
	crc, err := cm.AppendCommand(command)
	if err != nil {
		return nil, err
	}

	select {
	case result, ok := <-crc:
		if !ok {
			if cm.IsStopped() {
				return nil, ErrStopped
			}
			return nil, ErrEntryDiscarded
		}
		return result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-cm.rpcCtx.Done():
		return nil, ErrStopped
	}
}

// ReadIndex returns a log index that a linearizable read can be served at.
//
// Leadership is confirmed by a round of heartbeats acknowledged by a quorum,
// and the call returns once the state machine has applied entries up to the
// returned index.
//
// Returns ErrNotLeader if not currently the leader or if leadership is lost
// while waiting.
func (cm *ConsensusModule) ReadIndex(ctx context.Context) (LogIndex, error) {
	ch, err := cm.requestReadIndex()
	if err != nil {
		return 0, err
	}

	var readIndex LogIndex
	select {
	case li, ok := <-ch:
		if !ok {
			if cm.IsStopped() {
				return 0, ErrStopped
			}
			return 0, ErrNotLeader
		}
		readIndex = li
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	select {
	case <-cm.committer.RegisterAppliedListener(readIndex):
		return readIndex, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-cm.rpcCtx.Done():
		return 0, ErrStopped
	}
}

func (cm *ConsensusModule) requestReadIndex() (<-chan LogIndex, error) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	if cm.stopped {
		return nil, ErrStopped
	}

	ch, err := cm.passiveConsensusModule.RequestReadIndex()
	if err != nil {
		if err != ErrNotLeader {
			cm.shutdown(err)
		}
		return nil, err
	}
	return ch, nil
}

// ChangeMembership replaces the voting members of the cluster with the given
// servers using joint consensus, and waits until the new configuration is
// committed.
//
// Returns ErrNotLeader if not currently the leader or if leadership is lost
// before the change completes.
// Returns ErrMembershipChangeInProgress if another change has not completed.
func (cm *ConsensusModule) ChangeMembership(ctx context.Context, newServers []ServerId) error {
	err := config.NewConfiguration(newServers...).Validate()
	if err != nil {
		return err
	}

	ch, err := cm.startMembershipChange(newServers)
	if err != nil {
		return err
	}

	select {
	case err = <-ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (cm *ConsensusModule) startMembershipChange(newServers []ServerId) (<-chan error, error) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	if cm.stopped {
		return nil, ErrStopped
	}

	ch, err := cm.passiveConsensusModule.ChangeMembership(newServers)
	if err != nil {
		if !IsErrNotLeader(err) &&
			!IsErrMembershipChangeInProgress(err) &&
			!IsErrMembershipUnchanged(err) {
			cm.shutdown(err)
		}
		return nil, err
	}
	return ch, nil
}

// -- protected methods

// Implement SendOnlyRpcAppendEntriesAsync to bridge to
// RpcService.RpcAppendEntries() with a closure callback.
func (cm *ConsensusModule) sendOnlyRpcAppendEntriesAsync(
	toServer ServerId,
	rpc *RpcAppendEntries,
	round uint64,
) {
	rpcAndCallback := func() {
		ctx, cancel := context.WithTimeout(cm.rpcCtx, cm.rpcTimeout)
		defer cancel()

		// Make the RPC call
		rpcReply, err := cm.rpcService.RpcAppendEntries(ctx, toServer, rpc)

		// If successful, send it back to the ConsensusModule.
		// A lost rpc is retried by the next heartbeat.
		if err == nil && rpcReply != nil {
			cm.safeProcessRpcReply_RpcAppendEntriesReply(toServer, round, rpc, rpcReply)
		}
	}
	go rpcAndCallback()
}

func (cm *ConsensusModule) safeProcessRpcReply_RpcAppendEntriesReply(
	fromPeer ServerId,
	round uint64,
	rpc *RpcAppendEntries,
	rpcReply *RpcAppendEntriesReply,
) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	if !cm.stopped {
		err := cm.passiveConsensusModule.RpcReply_RpcAppendEntriesReply(fromPeer, round, rpc, rpcReply)
		if err != nil {
			cm.shutdown(err)
		}
	}
}

// Implement SendOnlyRpcRequestVoteAsync to bridge to
// RpcService.RpcRequestVote() with a closure callback.
func (cm *ConsensusModule) sendOnlyRpcRequestVoteAsync(
	toServer ServerId,
	rpc *RpcRequestVote,
) {
	rpcAndCallback := func() {
		ctx, cancel := context.WithTimeout(cm.rpcCtx, cm.rpcTimeout)
		defer cancel()

		// Make the RPC call
		rpcReply, err := cm.rpcService.RpcRequestVote(ctx, toServer, rpc)

		// If successful, send it back to the ConsensusModule
		if err == nil && rpcReply != nil {
			cm.safeProcessRpcReply_RpcRequestVoteReply(toServer, rpc, rpcReply)
		}
	}
	go rpcAndCallback()
}

func (cm *ConsensusModule) safeProcessRpcReply_RpcRequestVoteReply(
	fromPeer ServerId,
	rpc *RpcRequestVote,
	rpcReply *RpcRequestVoteReply,
) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	if !cm.stopped {
		err := cm.passiveConsensusModule.RpcReply_RpcRequestVoteReply(fromPeer, rpc, rpcReply)
		if err != nil {
			cm.shutdown(err)
		}
	}
}

func (cm *ConsensusModule) safeTick() {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	if !cm.stopped {
		err := cm.passiveConsensusModule.Tick()
		if err != nil {
			cm.shutdown(err)
		}
	}
}

// Called by the election timer on its own goroutine.
func (cm *ConsensusModule) safeElectionTimeout(generation uint64) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	if !cm.stopped {
		err := cm.passiveConsensusModule.ElectionTimeout(generation)
		if err != nil {
			cm.shutdown(err)
		}
	}
}

// Called from the Committer's goroutine, which must not wait for itself to stop.
func (cm *ConsensusModule) committerFatalError(err error) {
	go func() {
		cm.mutex.Lock()
		defer cm.mutex.Unlock()

		cm.shutdown(err)
	}()
}

// Shutdown the ConsensusModule.
// The given error, if not nil, is recorded as the reason.
func (cm *ConsensusModule) shutdown(err error) {
	if cm.stopped {
		return
	}
	cm.stopped = true
	cm.stopError = err
	if err != nil {
		cm.logger.Println("[raft] stopping on error:", err)
		if goErr, ok := err.(*errors.Error); ok {
			cm.logger.Println(goErr.ErrorStack())
		}
	}

	// Tell the ticker to stop
	if cm.ticker != nil {
		cm.ticker.StopAsync()
	}
	// Cancel outstanding rpcs
	cm.rpcCancel()
	cm.passiveConsensusModule.Stop()
	cm.committer.StopSync()
}
