package raft

// GetIndexAndTermOfLastEntry is a helper to get the index and term of the
// last entry of the given log.
//
// Returns 0, 0 for an empty log.
func GetIndexAndTermOfLastEntry(log LogReadOnly) (LogIndex, TermNo, error) {
	lastLogIndex, err := log.GetIndexOfLastEntry()
	if err != nil {
		return 0, 0, err
	}
	var lastLogTerm TermNo = 0
	if lastLogIndex > 0 {
		lastLogTerm, err = log.GetTermAtIndex(lastLogIndex)
		if err != nil {
			return 0, 0, err
		}
	}
	return lastLogIndex, lastLogTerm, nil
}

// IsLogAtLeastAsUpToDate compares the last entries of two logs.
//
// #5.4.1-p3s1: Raft determines which of two logs is more up-to-date by
// comparing the index and term of the last entries in the logs.
func IsLogAtLeastAsUpToDate(
	lastIndex LogIndex,
	lastTerm TermNo,
	otherLastIndex LogIndex,
	otherLastTerm TermNo,
) bool {
	if lastTerm != otherLastTerm {
		// #5.4.1-p3s2: If the logs have last entries with different terms, then
		// the log with the later term is more up-to-date.
		return lastTerm > otherLastTerm
	}
	// #5.4.1-p3s3: If the logs end with the same term, then whichever log is
	// longer is more up-to-date.
	return lastIndex >= otherLastIndex
}
