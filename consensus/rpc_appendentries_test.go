package consensus

import (
	"reflect"
	"testing"

	. "github.com/divtxt/raftcore"
	"github.com/divtxt/raftcore/config"
	"github.com/divtxt/raftcore/testdata"
)

func makeAEWithTerm(term TermNo, prevLogIndex LogIndex, prevLogTerm TermNo) *RpcAppendEntries {
	return &RpcAppendEntries{term, 102, prevLogIndex, prevLogTerm, []LogEntry{}, 0}
}

func testAppendEntriesReply(
	t *testing.T,
	mcm *managedConsensusModule,
	from ServerId,
	ae *RpcAppendEntries,
	expectedReply *RpcAppendEntriesReply,
) {
	t.Helper()
	reply, err := mcm.pcm.Rpc_RpcAppendEntries(from, ae)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(reply, expectedReply) {
		t.Fatal(reply, expectedReply)
	}
}

func testLogTerms(t *testing.T, mcm *managedConsensusModule, expectedTerms []TermNo) {
	t.Helper()
	iole, err := mcm.log.GetIndexOfLastEntry()
	if err != nil {
		t.Fatal(err)
	}
	if iole != LogIndex(len(expectedTerms)) {
		t.Fatal(iole, expectedTerms)
	}
	for i, expectedTerm := range expectedTerms {
		termNo, err := mcm.log.GetTermAtIndex(LogIndex(i + 1))
		if err != nil {
			t.Fatal(err)
		}
		if termNo != expectedTerm {
			t.Fatal(i+1, termNo, expectedTerm)
		}
	}
}

// 1. Reply false if term < currentTerm (#5.1)
func TestCM_RpcAE_LeaderTermLessThanCurrentTerm(t *testing.T) {
	for _, setup := range []func(*testing.T) *managedConsensusModule{
		func(t *testing.T) *managedConsensusModule {
			mcm, _ := testSetupMCM_Follower_Figure7LeaderLine(t)
			return mcm
		},
		func(t *testing.T) *managedConsensusModule {
			mcm, _ := testSetupMCM_Candidate_Figure7LeaderLine(t)
			return mcm
		},
		func(t *testing.T) *managedConsensusModule {
			mcm, _ := testSetupMCM_Leader_Figure7LeaderLine(t)
			return mcm
		},
	} {
		mcm := setup(t)
		serverTerm := mcm.pcm.RaftPersistentState.GetCurrentTerm()
		serverState := mcm.pcm.GetServerState()
		generation := mcm.pcm.ElectionTimer.GetGeneration()

		testAppendEntriesReply(
			t, mcm, 102,
			makeAEWithTerm(serverTerm-1, 10, 6),
			&RpcAppendEntriesReply{Term: serverTerm, Success: false},
		)

		if mcm.pcm.GetServerState() != serverState {
			t.Fatal()
		}
		if mcm.pcm.RaftPersistentState.GetCurrentTerm() != serverTerm {
			t.Fatal()
		}
		// no timer reset
		if mcm.pcm.ElectionTimer.GetGeneration() != generation {
			t.Fatal()
		}
		testLogTerms(t, mcm, testdata.TestUtil_MakeFigure7LeaderLineTerms())
	}
}

// 2. Reply false if log doesn't contain an entry at prevLogIndex whose
// term matches prevLogTerm (#5.3)
func TestCM_RpcAE_PrevLogIndexAfterLastEntry(t *testing.T) {
	mcm, _ := testSetupMCM_Follower_Figure7LeaderLine(t)

	testAppendEntriesReply(
		t, mcm, 102,
		makeAEWithTerm(8, 11, 6),
		&RpcAppendEntriesReply{Term: 8, Success: false, ConflictIndex: 11},
	)

	// the rpc is from a legitimate leader
	if mcm.pcm.GetServerState() != FOLLOWER {
		t.Fatal()
	}
	if mcm.pcm.GetCurrentTerm() != 8 {
		t.Fatal()
	}
	if mcm.pcm.GetLeaderId() != 102 {
		t.Fatal()
	}
	testLogTerms(t, mcm, testdata.TestUtil_MakeFigure7LeaderLineTerms())
}

func TestCM_RpcAE_PrevLogTermMismatch(t *testing.T) {
	mcm, _ := testSetupMCM_Follower_Figure7LeaderLine(t)

	// local term at index 10 is 6, and the run of term 6 starts at index 8
	testAppendEntriesReply(
		t, mcm, 102,
		makeAEWithTerm(8, 10, 5),
		&RpcAppendEntriesReply{Term: 8, Success: false, ConflictTerm: 6, ConflictIndex: 8},
	)

	// term 1 starts at the first index
	testAppendEntriesReply(
		t, mcm, 102,
		makeAEWithTerm(8, 3, 2),
		&RpcAppendEntriesReply{Term: 8, Success: false, ConflictTerm: 1, ConflictIndex: 1},
	)

	testLogTerms(t, mcm, testdata.TestUtil_MakeFigure7LeaderLineTerms())
	mcm.mc.CheckCalls(nil)
}

// 4. Append any new entries not already in the log
// 5. If leaderCommit > commitIndex, set commitIndex = min(leaderCommit,
// index of last new entry)
func TestCM_RpcAE_AppendNewEntriesAndCommit(t *testing.T) {
	mcm, _ := testSetupMCM_Follower_Figure7LeaderLine(t)
	generation := mcm.pcm.ElectionTimer.GetGeneration()

	ae := &RpcAppendEntries{
		8, 102, 10, 6,
		[]LogEntry{
			NewCommandEntry(8, Command("c11")),
			NewCommandEntry(8, Command("c12")),
		},
		11,
	}
	testAppendEntriesReply(t, mcm, 102, ae, &RpcAppendEntriesReply{Term: 8, Success: true})

	testLogTerms(t, mcm, []TermNo{1, 1, 1, 4, 4, 5, 5, 6, 6, 6, 8, 8})
	le, err := mcm.log.GetEntryAtIndex(12)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(le, NewCommandEntry(8, Command("c12"))) {
		t.Fatal(le)
	}
	if mcm.pcm.GetCommitIndex() != 11 {
		t.Fatal(mcm.pcm.GetCommitIndex())
	}
	mcm.mc.CheckCalls([]mockCommitterCall{
		{"CommitAsync", 11},
	})

	// #RFS-F2: (paraphrasing) AppendEntries RPC from current leader should
	// prevent election timeout
	if mcm.pcm.ElectionTimer.GetGeneration() == generation {
		t.Fatal()
	}
}

// 3. If an existing entry conflicts with a new one (same index
// but different terms), delete the existing entry and all that
// follow it (#5.3)
func TestCM_RpcAE_MatchingEntriesAreNotTruncated(t *testing.T) {
	mcm, _ := testSetupMCM_Follower_Figure7LeaderLine(t)

	// a delayed rpc with entries already in the log
	ae := &RpcAppendEntries{
		8, 102, 5, 4,
		[]LogEntry{
			NewCommandEntry(5, Command("c6")),
			NewCommandEntry(5, Command("c7")),
		},
		0,
	}
	testAppendEntriesReply(t, mcm, 102, ae, &RpcAppendEntriesReply{Term: 8, Success: true})

	testLogTerms(t, mcm, testdata.TestUtil_MakeFigure7LeaderLineTerms())
	mcm.mc.CheckCalls(nil)
}

func TestCM_RpcAE_ConflictingEntriesAreTruncated(t *testing.T) {
	mcm, _ := testSetupMCM_Follower_Figure7LeaderLine(t)

	ae := &RpcAppendEntries{
		8, 102, 5, 4,
		[]LogEntry{
			NewCommandEntry(5, Command("c6")),
			NewCommandEntry(8, Command("x7")),
		},
		0,
	}
	testAppendEntriesReply(t, mcm, 102, ae, &RpcAppendEntriesReply{Term: 8, Success: true})

	testLogTerms(t, mcm, []TermNo{1, 1, 1, 4, 4, 5, 8})
	le, err := mcm.log.GetEntryAtIndex(7)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(le, NewCommandEntry(8, Command("x7"))) {
		t.Fatal(le)
	}
	// listeners for the discarded entries are dropped
	mcm.mc.CheckCalls([]mockCommitterCall{
		{"RemoveListenersAfterIndex", 6},
	})
}

func TestCM_RpcAE_TruncatingCommittedEntriesIsFatal(t *testing.T) {
	mcm, _ := testSetupMCM_Follower_Figure7LeaderLine(t)
	err := mcm.pcm.setCommitIndex(8)
	if err != nil {
		t.Fatal(err)
	}

	ae := &RpcAppendEntries{
		8, 102, 5, 4,
		[]LogEntry{
			NewCommandEntry(8, Command("x6")),
		},
		0,
	}
	_, err = mcm.pcm.Rpc_RpcAppendEntries(102, ae)
	if err == nil || err.Error() != "FATAL: setEntriesAfterIndex(5, ...) but commitIndex=8" {
		t.Fatal(err)
	}
}

func TestCM_RpcAE_CommitIndexLimitedToLastNewEntry(t *testing.T) {
	mcm, _ := testSetupMCM_Follower_Figure7LeaderLine(t)

	ae := &RpcAppendEntries{
		8, 102, 3, 1,
		[]LogEntry{
			NewCommandEntry(4, Command("c4")),
		},
		9,
	}
	testAppendEntriesReply(t, mcm, 102, ae, &RpcAppendEntriesReply{Term: 8, Success: true})

	// entries after the last new entry may not match the leader
	if mcm.pcm.GetCommitIndex() != 4 {
		t.Fatal(mcm.pcm.GetCommitIndex())
	}
	mcm.mc.CheckCalls([]mockCommitterCall{
		{"CommitAsync", 4},
	})

	// an older leaderCommit changes nothing
	ae = &RpcAppendEntries{8, 102, 10, 6, []LogEntry{}, 2}
	testAppendEntriesReply(t, mcm, 102, ae, &RpcAppendEntriesReply{Term: 8, Success: true})
	if mcm.pcm.GetCommitIndex() != 4 {
		t.Fatal(mcm.pcm.GetCommitIndex())
	}
	mcm.mc.CheckCalls(nil)
}

// #5.2-p4s2: If the leader’s term (included in its RPC) is at least as
// large as the candidate’s current term, then the candidate recognizes
// the leader as legitimate and returns to follower state.
func TestCM_RpcAE_CandidateBecomesFollower(t *testing.T) {
	mcm, _ := testSetupMCM_Candidate_Figure7LeaderLine(t)
	serverTerm := mcm.pcm.RaftPersistentState.GetCurrentTerm()

	testAppendEntriesReply(
		t, mcm, 103,
		&RpcAppendEntries{serverTerm, 103, 10, 6, []LogEntry{}, 0},
		&RpcAppendEntriesReply{Term: serverTerm, Success: true},
	)

	if mcm.pcm.GetServerState() != FOLLOWER {
		t.Fatal()
	}
	if mcm.pcm.RaftPersistentState.GetCurrentTerm() != serverTerm {
		t.Fatal()
	}
	// the vote for self in this term stays
	if mcm.pcm.RaftPersistentState.GetVotedFor() != testdata.ThisServerId {
		t.Fatal()
	}
	if mcm.pcm.GetLeaderId() != 103 {
		t.Fatal()
	}
	if mcm.pcm.CandidateVolatileState != nil {
		t.Fatal()
	}
	if !mcm.pcm.ElectionTimer.IsRunning() {
		t.Fatal()
	}
}

func TestCM_RpcAE_LeaderWithHigherTermBecomesFollower(t *testing.T) {
	mcm, _ := testSetupMCM_Leader_Figure7LeaderLine(t)
	if mcm.pcm.ElectionTimer.IsRunning() {
		t.Fatal()
	}

	testAppendEntriesReply(
		t, mcm, 103,
		&RpcAppendEntries{9, 103, 10, 6, []LogEntry{}, 0},
		&RpcAppendEntriesReply{Term: 9, Success: true},
	)

	if mcm.pcm.GetServerState() != FOLLOWER {
		t.Fatal()
	}
	if mcm.pcm.RaftPersistentState.GetCurrentTerm() != 9 {
		t.Fatal()
	}
	if mcm.pcm.RaftPersistentState.GetVotedFor() != 0 {
		t.Fatal()
	}
	if mcm.pcm.LeaderVolatileState != nil {
		t.Fatal()
	}
	if !mcm.pcm.ElectionTimer.IsRunning() {
		t.Fatal()
	}
}

func TestCM_RpcAE_LeaderWithSameTermIsFatal(t *testing.T) {
	mcm, _ := testSetupMCM_Leader_Figure7LeaderLine(t)

	_, err := mcm.pcm.Rpc_RpcAppendEntries(102, makeAEWithTerm(8, 10, 6))
	if err == nil ||
		err.Error() != "FATAL: two leaders with same term - got AppendEntries from: 102 with term: 8" {
		t.Fatal(err)
	}
}

func TestCM_RpcAE_FromSelfIsFatal(t *testing.T) {
	mcm, _ := testSetupMCM_Follower_Figure7LeaderLine(t)

	_, err := mcm.pcm.Rpc_RpcAppendEntries(testdata.ThisServerId, makeAEWithTerm(8, 10, 6))
	if err == nil || err.Error() != "FATAL: from server has same serverId: 101" {
		t.Fatal(err)
	}
}

// #6-p3s1: a server always uses the latest configuration in its log,
// regardless of whether the entry is committed.
func TestCM_RpcAE_ConfigurationEntryTakesEffectAndRollsBack(t *testing.T) {
	mcm, _ := testSetupMCM_Follower_Figure7LeaderLine(t)
	bootstrap := config.NewConfiguration(testdata.AllServerIds...)

	joint, err := bootstrap.ToJoint([]ServerId{101, 102, 103, 106})
	if err != nil {
		t.Fatal(err)
	}
	entry, err := config.NewConfigurationEntry(8, joint)
	if err != nil {
		t.Fatal(err)
	}

	testAppendEntriesReply(
		t, mcm, 102,
		&RpcAppendEntries{8, 102, 10, 6, []LogEntry{entry}, 0},
		&RpcAppendEntriesReply{Term: 8, Success: true},
	)
	if !mcm.pcm.GetConfiguration().Equal(joint) {
		t.Fatal(mcm.pcm.GetConfiguration())
	}
	if !mcm.pcm.ClusterInfo.IsPeer(106) {
		t.Fatal()
	}

	// a new leader overwrites the uncommitted configuration entry
	testAppendEntriesReply(
		t, mcm, 103,
		&RpcAppendEntries{9, 103, 10, 6, []LogEntry{NewCommandEntry(9, Command("c11"))}, 0},
		&RpcAppendEntriesReply{Term: 9, Success: true},
	)
	if !mcm.pcm.GetConfiguration().Equal(bootstrap) {
		t.Fatal(mcm.pcm.GetConfiguration())
	}
	if mcm.pcm.ClusterInfo.IsPeer(106) {
		t.Fatal()
	}
	mcm.mc.CheckCalls([]mockCommitterCall{
		{"RemoveListenersAfterIndex", 10},
	})
}
