package consensus

import (
	"github.com/go-errors/errors"

	. "github.com/divtxt/raftcore"
	"github.com/divtxt/raftcore/config"
)

// ChangeMembership starts changing the voting members of the cluster to the
// given servers using joint consensus.
//
// The returned channel gets nil once the new configuration is committed, or
// an error if this server stops being the leader first.
//
// #6-p3s2: ... once the joint consensus has been committed, the system
// then transitions to the new configuration.
func (cm *PassiveConsensusModule) ChangeMembership(newServers []ServerId) (<-chan error, error) {
	if cm.serverState != LEADER {
		return nil, ErrNotLeader
	}
	commitIndex := cm.commitIndex.UnsafeGet()
	if cm.pendingMembershipChange != nil || !cm.membership.IsLatestCommitted(commitIndex) {
		return nil, errors.New(ErrMembershipChangeInProgress)
	}
	joint, err := cm.membership.Latest().Configuration.ToJoint(newServers)
	if err != nil {
		return nil, err
	}

	ch := make(chan error, 1)
	cm.pendingMembershipChange = ch

	// #6-p4s1: When the leader receives a request to change the
	// configuration from C_old to C_new, it stores the configuration for
	// joint consensus (C_old,new in the figure) as a log entry and
	// replicates that entry using the mechanisms described previously.
	err = cm.appendConfiguration(joint)
	if err != nil {
		return nil, err
	}
	err = cm.sendAppendEntriesToAllPeers(false)
	if err != nil {
		return nil, err
	}
	err = cm.advanceCommitIndexIfPossible()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// Append a configuration entry and switch to it.
func (cm *PassiveConsensusModule) appendConfiguration(c config.Configuration) error {
	termNo := cm.RaftPersistentState.GetCurrentTerm()
	entry, err := config.NewConfigurationEntry(termNo, c)
	if err != nil {
		return err
	}
	li, err := cm.log.AppendEntry(entry)
	if err != nil {
		return err
	}
	err = cm.membership.AppendedAt(li, c)
	if err != nil {
		return err
	}
	return cm.configurationChanged()
}

// Switch to the latest configuration in the log.
func (cm *PassiveConsensusModule) configurationChanged() error {
	latest := cm.membership.Latest()
	clusterInfo, err := config.NewClusterInfo(latest.Configuration, cm.thisServerId)
	if err != nil {
		return err
	}
	cm.ClusterInfo = clusterInfo
	cm.logger.Println("[raft] configuration:", latest.Configuration, "from index", latest.Index)

	if cm.serverState == LEADER {
		iole, err := cm.log.GetIndexOfLastEntry()
		if err != nil {
			return err
		}
		return cm.LeaderVolatileState.SyncFollowerManagers(clusterInfo, iole)
	}
	return nil
}

// Take the next membership step once the latest configuration is committed.
//
// A committed joint configuration is followed by the new configuration.
// A leader that is not part of a committed configuration steps down.
func (cm *PassiveConsensusModule) advanceMembershipIfPossible() error {
	if !cm.membership.IsLatestCommitted(cm.commitIndex.UnsafeGet()) {
		return nil
	}
	latest := cm.membership.Latest()

	if latest.Configuration.IsJoint() {
		// #6-p4s4: Once C_old,new has been committed, ... it is now safe for
		// the leader to create a log entry describing C_new and replicate it
		// to the cluster.
		// The entry goes out with the next AppendEntries to each peer.
		cm.logger.Println("[raft] joint configuration committed - moving to", latest.Configuration.ToFinal())
		err := cm.appendConfiguration(latest.Configuration.ToFinal())
		if err != nil {
			return err
		}
		return cm.advanceCommitIndexIfPossible()
	}

	if cm.pendingMembershipChange != nil {
		cm.pendingMembershipChange <- nil
		cm.pendingMembershipChange = nil
	}

	// #6-p6s4: ... the leader steps down (returns to follower state) once
	// it has committed the C_new log entry.
	if !cm.ClusterInfo.IsVoter() {
		cm.logger.Println("[raft] not in committed configuration - stepping down")
		return cm.becomeFollowerWithTerm(cm.RaftPersistentState.GetCurrentTerm())
	}
	return nil
}
