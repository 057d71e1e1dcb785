package consensus

import (
	"fmt"
	"log"
	"time"

	"github.com/go-errors/errors"

	. "github.com/divtxt/raftcore"
	"github.com/divtxt/raftcore/config"
	"github.com/divtxt/raftcore/consensus/candidate"
	"github.com/divtxt/raftcore/consensus/follower"
	"github.com/divtxt/raftcore/consensus/leader"
	"github.com/divtxt/raftcore/internal"
	"github.com/divtxt/raftcore/logindex"
	"github.com/divtxt/raftcore/membership"
	"github.com/divtxt/raftcore/util"
)

// PassiveConsensusModule is the Raft state machine of a single server.
//
// It has no goroutines and no lock of its own: the caller must serialize
// all calls, including the ElectionTimeout calls triggered by the timer.
type PassiveConsensusModule struct {
	// ===== the following fields meant to be immutable

	// -- External components
	RaftPersistentState         RaftPersistentState
	log                         Log
	committer                   internal.ICommitter
	sendOnlyRpcRequestVoteAsync internal.SendOnlyRpcRequestVoteAsync
	aeSender                    internal.IAppendEntriesSender
	logger                      *log.Logger

	// -- Config
	thisServerId ServerId
	options      config.Options

	// ===== the following fields are mutable

	// -- Membership
	membership  *membership.Manager
	ClusterInfo *config.ClusterInfo

	// -- State - for all servers
	serverState ServerState

	// commitIndex is the index of highest log entry known to be committed
	// (initialized to 0, increases monotonically)
	commitIndex            *logindex.WatchedIndex
	electionTimeoutChooser *util.ElectionTimeoutChooser
	ElectionTimer          *util.ElectionTimer

	// -- State - for followers only
	FollowerVolatileState *follower.FollowerVolatileState

	// -- State - for candidates only
	CandidateVolatileState *candidate.CandidateVolatileState

	// -- State - for leaders only
	LeaderVolatileState     *leader.LeaderVolatileState
	round                   uint64
	readRequests            []*readRequest
	pendingMembershipChange chan error
}

// NewPassiveConsensusModule creates a PassiveConsensusModule in FOLLOWER state.
//
// The configuration in effect is the latest one in the log, falling back to
// the given bootstrap configuration. Every change to commitIndex is passed
// on to the committer.
//
// onElectionTimeout is called by the election timer on its own goroutine and
// is expected to call ElectionTimeout with the same generation.
func NewPassiveConsensusModule(
	raftPersistentState RaftPersistentState,
	log Log,
	commitIndex *logindex.WatchedIndex,
	committer internal.ICommitter,
	sendOnlyRpcRequestVoteAsync internal.SendOnlyRpcRequestVoteAsync,
	aeSender internal.IAppendEntriesSender,
	bootstrap config.Configuration,
	thisServerId ServerId,
	electionTimeoutLow time.Duration,
	onElectionTimeout func(generation uint64),
	options config.Options,
	logger *log.Logger,
) (*PassiveConsensusModule, error) {
	// Param checks
	if raftPersistentState == nil {
		return nil, errors.New("'raftPersistentState' cannot be nil")
	}
	if log == nil {
		return nil, errors.New("'log' cannot be nil")
	}
	if commitIndex == nil {
		return nil, errors.New("'commitIndex' cannot be nil")
	}
	if committer == nil {
		return nil, errors.New("'committer' cannot be nil")
	}
	if sendOnlyRpcRequestVoteAsync == nil {
		return nil, errors.New("'sendOnlyRpcRequestVoteAsync' cannot be nil")
	}
	if aeSender == nil {
		return nil, errors.New("'aeSender' cannot be nil")
	}
	if electionTimeoutLow.Nanoseconds() <= 0 {
		return nil, errors.New("electionTimeoutLow must be greater than zero")
	}
	if onElectionTimeout == nil {
		return nil, errors.New("'onElectionTimeout' cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("'logger' cannot be nil")
	}

	// #6-p3s1: a server always uses the latest configuration in its log
	mm, err := membership.NewManager(bootstrap)
	if err != nil {
		return nil, err
	}
	err = mm.RebuildFromLog(log)
	if err != nil {
		return nil, err
	}
	clusterInfo, err := config.NewClusterInfo(mm.Latest().Configuration, thisServerId)
	if err != nil {
		return nil, err
	}

	pcm := &PassiveConsensusModule{
		// -- External components
		RaftPersistentState:         raftPersistentState,
		log:                         log,
		committer:                   committer,
		sendOnlyRpcRequestVoteAsync: sendOnlyRpcRequestVoteAsync,
		aeSender:                    aeSender,
		logger:                      logger,

		// -- Config
		thisServerId: thisServerId,
		options:      options,

		// -- Membership
		membership:  mm,
		ClusterInfo: clusterInfo,

		// -- State - for all servers
		// #5.2-p1s2: When servers start up, they begin as followers
		serverState:            FOLLOWER,
		commitIndex:            commitIndex,
		electionTimeoutChooser: util.NewElectionTimeoutChooser(electionTimeoutLow),
		ElectionTimer:          util.NewElectionTimer(onElectionTimeout),

		FollowerVolatileState: follower.NewFollowerVolatileState(0),
	}

	commitIndex.AddListener(func(_, new LogIndex) error {
		return committer.CommitAsync(new)
	})

	return pcm, nil
}

// Start the election timer.
func (cm *PassiveConsensusModule) Start() {
	cm.restartElectionTimer()
}

// Stop the election timer and fail requests waiting on leadership.
func (cm *PassiveConsensusModule) Stop() {
	cm.ElectionTimer.Stop()
	cm.failLeaderRequests(ErrStopped)
}

// Get the current server state.
func (cm *PassiveConsensusModule) GetServerState() ServerState {
	return cm.serverState
}

// Set the current server state.
// Validates the server state before setting.
func (cm *PassiveConsensusModule) setServerState(serverState ServerState) {
	if serverState != FOLLOWER && serverState != CANDIDATE && serverState != LEADER {
		panic(fmt.Sprintf("FATAL: unknown ServerState: %v", serverState))
	}
	if cm.serverState != serverState {
		cm.logger.Println(
			"[raft] setServerState:",
			cm.serverState,
			"->",
			serverState,
		)
		cm.serverState = serverState
	}
}

// Get the current term.
func (cm *PassiveConsensusModule) GetCurrentTerm() TermNo {
	return cm.RaftPersistentState.GetCurrentTerm()
}

// Get the current commitIndex value.
func (cm *PassiveConsensusModule) GetCommitIndex() LogIndex {
	return cm.commitIndex.UnsafeGet()
}

// Get the ServerId of the leader of the current term if known, or 0 if not.
func (cm *PassiveConsensusModule) GetLeaderId() ServerId {
	switch cm.serverState {
	case LEADER:
		return cm.thisServerId
	case FOLLOWER:
		return cm.FollowerVolatileState.GetLeader()
	}
	return 0
}

// Get the cluster configuration in effect.
func (cm *PassiveConsensusModule) GetConfiguration() config.Configuration {
	return cm.ClusterInfo.GetConfiguration()
}

// Set the current commitIndex value.
// Checks that it is does not reduce.
func (cm *PassiveConsensusModule) setCommitIndex(commitIndex LogIndex) error {
	if commitIndex < cm.commitIndex.UnsafeGet() {
		return errors.Errorf(
			"FATAL: setCommitIndex to %v < current commitIndex %v",
			commitIndex,
			cm.commitIndex.UnsafeGet(),
		)
	}
	iole, err := cm.log.GetIndexOfLastEntry()
	if err != nil {
		return err
	}
	if commitIndex > iole {
		return errors.Errorf(
			"FATAL: setCommitIndex to %v > current indexOfLastEntry %v",
			commitIndex,
			iole,
		)
	}
	err = cm.commitIndex.UnsafeSet(commitIndex)
	if err != nil {
		return err
	}

	cm.membership.DiscardCommittedHistory(commitIndex)
	if cm.serverState == LEADER {
		err = cm.advanceMembershipIfPossible()
		if err != nil {
			return err
		}
	}
	if cm.serverState == LEADER {
		return cm.checkReadRequests()
	}
	return nil
}

// AppendCommand appends the given serialized command to the Raft log.
//
// The returned channel gets the result of applying the command once it is
// committed, or is closed if the entry is overwritten by another leader.
//
// #RFS-L2: If command received from client: append entry to local log,
// respond after entry applied to state machine (#5.3)
func (cm *PassiveConsensusModule) AppendCommand(command Command) (<-chan CommandResult, error) {
	if cm.serverState != LEADER {
		return nil, ErrNotLeader
	}

	termNo := cm.RaftPersistentState.GetCurrentTerm()
	li, err := cm.log.AppendEntry(NewCommandEntry(termNo, command))
	if err != nil {
		return nil, err
	}
	crc, err := cm.committer.RegisterListener(li)
	if err != nil {
		return nil, err
	}

	// #RFS-L3.0: If last log index >= nextIndex for a follower: send
	// AppendEntries RPC with log entries starting at nextIndex
	err = cm.sendAppendEntriesToAllPeers(false)
	if err != nil {
		return nil, err
	}
	// Needed for a single server cluster.
	err = cm.advanceCommitIndexIfPossible()
	if err != nil {
		return nil, err
	}
	return crc, nil
}

// ElectionTimeout is called when the election timer with the given
// generation expires.
//
// An expiry for a timer that has since been restarted or stopped is ignored.
func (cm *PassiveConsensusModule) ElectionTimeout(generation uint64) error {
	if !cm.ElectionTimer.IsCurrentGeneration(generation) {
		return nil
	}

	switch cm.serverState {
	case FOLLOWER:
		// #RFS-F2: If election timeout elapses without receiving
		// AppendEntries RPC from current leader or granting vote
		// to candidate: convert to candidate
		// #5.2-p1s5: If a follower receives no communication over a period
		// of time called the election timeout, then it assumes there is no
		// viable leader and begins an election to choose a new leader.
		fallthrough
	case CANDIDATE:
		// #RFS-C4: If election timeout elapses: start new election
		// #5.2-p5s2: When this happens, each candidate will time out and
		// start a new election by incrementing its term and initiating
		// another round of RequestVote RPCs.
		if !cm.ClusterInfo.IsVoter() {
			cm.logger.Println("[raft] Election timeout - not a voting member, not starting an election")
			cm.restartElectionTimer()
			return nil
		}
		cm.logger.Println("[raft] Election timeout - starting a new election")
		return cm.becomeCandidateAndBeginElection()
	}
	return nil
}

// Tick is called at the heartbeat interval.
//
// A leader starts a new heartbeat round and sends AppendEntries to all peers.
func (cm *PassiveConsensusModule) Tick() error {
	if cm.serverState != LEADER {
		return nil
	}
	cm.round++
	// #RFS-L1b: repeat during idle periods to prevent election timeouts (#5.2)
	// #RFS-L3.0: If last log index >= nextIndex for a follower: send
	// AppendEntries RPC with log entries starting at nextIndex
	return cm.sendAppendEntriesToAllPeers(false)
}

func (cm *PassiveConsensusModule) restartElectionTimer() {
	cm.ElectionTimer.RestartWithDuration(
		cm.electionTimeoutChooser.ChooseRandomElectionTimeout(),
	)
}

func (cm *PassiveConsensusModule) becomeCandidateAndBeginElection() error {
	// #RFS-C1: On conversion to candidate, start election:
	// Increment currentTerm; Vote for self; Send RequestVote RPCs
	// to all other servers; Reset election timer
	// #5.2-p2s1: To begin an election, a follower increments its
	// current term and transitions to candidate state.
	// #5.2-p2s2: It then votes for itself and issues RequestVote RPCs
	// in parallel to each of the other servers in the cluster.
	newTerm := cm.RaftPersistentState.GetCurrentTerm() + 1
	err := cm.RaftPersistentState.SetCurrentTermAndVotedFor(newTerm, cm.thisServerId)
	if err != nil {
		return err
	}
	cm.CandidateVolatileState = candidate.NewCandidateVolatileState(cm.ClusterInfo)
	cm.FollowerVolatileState.SetLeader(0)
	cm.logger.Println("[raft] becomeCandidateAndBeginElection: newTerm =", newTerm)
	cm.setServerState(CANDIDATE)

	lastLogIndex, lastLogTerm, err := GetIndexAndTermOfLastEntry(cm.log)
	if err != nil {
		return err
	}
	err = cm.ClusterInfo.ForEachPeer(
		func(serverId ServerId) error {
			rpcRequestVote := &RpcRequestVote{newTerm, cm.thisServerId, lastLogIndex, lastLogTerm}
			cm.sendOnlyRpcRequestVoteAsync(serverId, rpcRequestVote)
			return nil
		},
	)
	if err != nil {
		return err
	}
	cm.restartElectionTimer()

	// *** SOLO ***
	// A single server cluster wins the election immediately since it has all the votes.
	// The election is not skipped since it increases the current term.
	if cm.CandidateVolatileState.HasQuorum(cm.ClusterInfo) {
		cm.logger.Println("[raft] have quorum with own vote - won election!")
		return cm.becomeLeader()
	}
	return nil
}

func (cm *PassiveConsensusModule) becomeLeader() error {
	cm.ElectionTimer.Stop()
	iole, err := cm.log.GetIndexOfLastEntry()
	if err != nil {
		return err
	}
	cm.LeaderVolatileState, err = leader.NewLeaderVolatileState(cm.ClusterInfo, iole, cm.aeSender)
	if err != nil {
		return err
	}
	cm.CandidateVolatileState = nil
	cm.round = 0
	cm.logger.Println(
		"[raft] becomeLeader: iole =", iole, ", commitIndex =", cm.commitIndex.UnsafeGet(),
	)
	cm.setServerState(LEADER)

	if cm.options.AppendNoOpOnElection {
		termNo := cm.RaftPersistentState.GetCurrentTerm()
		_, err = cm.log.AppendEntry(NewNoOpEntry(termNo))
		if err != nil {
			return err
		}
	}

	// #RFS-L1a: Upon election: send initial empty AppendEntries RPCs (heartbeat)
	// to each server;
	err = cm.sendAppendEntriesToAllPeers(true)
	if err != nil {
		return err
	}
	err = cm.advanceCommitIndexIfPossible()
	if err != nil {
		return err
	}
	if cm.serverState == LEADER {
		return cm.advanceMembershipIfPossible()
	}
	return nil
}

func (cm *PassiveConsensusModule) becomeFollowerWithTerm(newTerm TermNo) error {
	currentTerm := cm.RaftPersistentState.GetCurrentTerm()
	if newTerm < currentTerm {
		return errors.Errorf(
			"FATAL: becomeFollowerWithTerm: newTerm=%v < currentTerm=%v", newTerm, currentTerm,
		)
	}
	if cm.serverState == FOLLOWER && currentTerm == newTerm {
		// Nothing to change!
		return nil
	}
	cm.logger.Println("[raft] becomeFollowerWithTerm: newTerm =", newTerm)
	if newTerm > currentTerm {
		err := cm.RaftPersistentState.SetCurrentTerm(newTerm)
		if err != nil {
			return err
		}
		cm.FollowerVolatileState.SetLeader(0)
	}
	if cm.serverState == LEADER {
		cm.failLeaderRequests(ErrNotLeader)
		cm.LeaderVolatileState = nil
	}
	cm.CandidateVolatileState = nil
	cm.setServerState(FOLLOWER)
	if !cm.ElectionTimer.IsRunning() {
		cm.restartElectionTimer()
	}
	return nil
}

// -- leader code

func (cm *PassiveConsensusModule) sendAppendEntriesToAllPeers(empty bool) error {
	currentTerm := cm.RaftPersistentState.GetCurrentTerm()
	commitIndex := cm.commitIndex.UnsafeGet()
	//
	return cm.ClusterInfo.ForEachPeer(
		func(serverId ServerId) error {
			fm, err := cm.LeaderVolatileState.GetFollowerManager(serverId)
			if err != nil {
				return err
			}
			return fm.SendAppendEntriesToPeerAsync(
				empty,
				currentTerm,
				commitIndex,
				cm.round,
			)
		},
	)
}

// #RFS-L4: If there exists an N such that N > commitIndex, a majority
// of matchIndex[i] >= N, and log[N].term == currentTerm:
// set commitIndex = N (#5.3, #5.4)
func (cm *PassiveConsensusModule) advanceCommitIndexIfPossible() error {
	commitIndex := cm.commitIndex.UnsafeGet()
	newerCommitIndex, err := leader.FindNewerCommitIndex(
		cm.ClusterInfo,
		cm.LeaderVolatileState,
		cm.log,
		cm.RaftPersistentState.GetCurrentTerm(),
		commitIndex,
	)
	if err != nil {
		return err
	}
	if newerCommitIndex != 0 && newerCommitIndex > commitIndex {
		err = cm.setCommitIndex(newerCommitIndex)
		if err != nil {
			return err
		}
	}
	return nil
}

// Close channels of requests that need this server to stay leader.
func (cm *PassiveConsensusModule) failLeaderRequests(err error) {
	for _, rr := range cm.readRequests {
		close(rr.ch)
	}
	cm.readRequests = nil
	if cm.pendingMembershipChange != nil {
		cm.pendingMembershipChange <- err
		cm.pendingMembershipChange = nil
	}
}

// Wrapper for the call to Log.SetEntriesAfterIndex()
func (cm *PassiveConsensusModule) setEntriesAfterIndex(li LogIndex, entries []LogEntry) error {
	commitIndex := cm.commitIndex.UnsafeGet()
	// Check that we're not trying to rewind past commitIndex
	if li < commitIndex {
		return errors.Errorf(
			"FATAL: setEntriesAfterIndex(%d, ...) but commitIndex=%d", li, commitIndex,
		)
	}
	return cm.log.SetEntriesAfterIndex(li, entries)
}
