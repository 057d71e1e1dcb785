package config

import (
	"time"

	"github.com/go-errors/errors"
)

type TimeSettings struct {
	// Interval for the leader to send heartbeats.
	TickerDuration time.Duration

	// Election timeout low value - 2x this value is used as high value.
	ElectionTimeoutLow time.Duration

	// Timeout for each outgoing RPC call.
	RpcTimeout time.Duration
}

// Check values of a TimeSettings value:
//
//    tickerDuration  must be greater than zero.
//    electionTimeout must be greater than tickerDuration.
//    rpcTimeout      must be greater than zero.
//
// These are just basic sanity checks and currently don't include the
// softer usefulness checks recommended by the raft protocol.
func ValidateTimeSettings(timeSettings TimeSettings) error {
	if timeSettings.TickerDuration.Nanoseconds() <= 0 {
		return errors.Errorf("TickerDuration must be greater than zero")
	}
	if timeSettings.ElectionTimeoutLow.Nanoseconds() <= timeSettings.TickerDuration.Nanoseconds() {
		return errors.Errorf("ElectionTimeoutLow must be greater than TickerDuration")
	}
	if timeSettings.RpcTimeout.Nanoseconds() <= 0 {
		return errors.Errorf("RpcTimeout must be greater than zero")
	}

	return nil
}

// Options are behavior switches for the ConsensusModule.
type Options struct {
	// Append a no-op entry when elected leader, so that entries from earlier
	// terms commit without waiting for a new client command.
	AppendNoOpOnElection bool
}

func DefaultOptions() Options {
	return Options{
		AppendNoOpOnElection: true,
	}
}
