package follower

import (
	. "github.com/divtxt/raftcore"
)

// Volatile state on followers
type FollowerVolatileState struct {
	// Current leader as seen from AppendEntries in the current term,
	// 0 if not known.
	leader ServerId
}

func NewFollowerVolatileState(leader ServerId) *FollowerVolatileState {
	return &FollowerVolatileState{leader}
}

func (fvs *FollowerVolatileState) GetLeader() ServerId {
	return fvs.leader
}

// SetLeader records the leader, returning true if it changed.
func (fvs *FollowerVolatileState) SetLeader(leader ServerId) bool {
	if fvs.leader == leader {
		return false
	}
	fvs.leader = leader
	return true
}
