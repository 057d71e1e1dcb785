package config

import (
	"encoding/json"
	"fmt"

	"github.com/go-errors/errors"

	. "github.com/divtxt/raftcore"
)

// A Configuration is the set of voting servers of a Raft cluster.
//
// When NewServers is nil the configuration is stable and Servers are the voters.
// Otherwise it is a joint configuration (C_old,new) used during a membership
// change: Servers is C_old, NewServers is C_new, and every decision needs a
// separate majority of both.
//
// Configurations are stored in the log as EntryConfiguration entries and take
// effect on a server as soon as the entry is in its log.
type Configuration struct {
	Servers    []ServerId `json:"servers"`
	NewServers []ServerId `json:"newServers,omitempty"`
}

// NewConfiguration creates a stable configuration with the given servers.
func NewConfiguration(servers ...ServerId) Configuration {
	return Configuration{Servers: servers}
}

// Check if this is a joint configuration.
func (c Configuration) IsJoint() bool {
	return c.NewServers != nil
}

// Validate checks that each server list is non-empty, has no zero ServerId
// and has no duplicates.
func (c Configuration) Validate() error {
	err := validateServerIds("Servers", c.Servers)
	if err != nil {
		return err
	}
	if c.IsJoint() {
		return validateServerIds("NewServers", c.NewServers)
	}
	return nil
}

func validateServerIds(name string, serverIds []ServerId) error {
	if len(serverIds) < 1 {
		return errors.Errorf("%s must have at least 1 element", name)
	}
	seen := make(map[ServerId]bool, len(serverIds))
	for _, serverId := range serverIds {
		if serverId == 0 {
			return errors.Errorf("%s contains 0", name)
		}
		if seen[serverId] {
			return errors.Errorf("%s contains duplicate value: %v", name, serverId)
		}
		seen[serverId] = true
	}
	return nil
}

// Contains checks if the given server is a voter in this configuration.
// For a joint configuration that means being in either set.
func (c Configuration) Contains(serverId ServerId) bool {
	return containsServerId(c.Servers, serverId) || containsServerId(c.NewServers, serverId)
}

func containsServerId(serverIds []ServerId, serverId ServerId) bool {
	// XXX: brute forcing for now - at what size does a map/set become more efficient?
	for _, s := range serverIds {
		if s == serverId {
			return true
		}
	}
	return false
}

// AllServers returns the union of both sets: Servers in order followed by
// the NewServers that are not also in Servers.
func (c Configuration) AllServers() []ServerId {
	all := make([]ServerId, 0, len(c.Servers)+len(c.NewServers))
	all = append(all, c.Servers...)
	for _, s := range c.NewServers {
		if !containsServerId(c.Servers, s) {
			all = append(all, s)
		}
	}
	return all
}

// ToJoint returns the joint configuration for moving from this stable
// configuration to the given servers.
func (c Configuration) ToJoint(newServers []ServerId) (Configuration, error) {
	if c.IsJoint() {
		return Configuration{}, errors.New(ErrMembershipChangeInProgress)
	}
	joint := Configuration{
		Servers:    append([]ServerId(nil), c.Servers...),
		NewServers: append([]ServerId{}, newServers...),
	}
	err := joint.Validate()
	if err != nil {
		return Configuration{}, err
	}
	if SameServers(c.Servers, newServers) {
		return Configuration{}, errors.New(ErrMembershipUnchanged)
	}
	return joint, nil
}

// ToFinal returns the stable configuration that this joint configuration
// moves to (C_new).
func (c Configuration) ToFinal() Configuration {
	return Configuration{Servers: append([]ServerId(nil), c.NewServers...)}
}

// Equal checks if two configurations have the same sets.
func (c Configuration) Equal(o Configuration) bool {
	if c.IsJoint() != o.IsJoint() {
		return false
	}
	return SameServers(c.Servers, o.Servers) && SameServers(c.NewServers, o.NewServers)
}

func (c Configuration) String() string {
	if c.IsJoint() {
		return fmt.Sprintf("{old: %v, new: %v}", c.Servers, c.NewServers)
	}
	return fmt.Sprintf("%v", c.Servers)
}

// SameServers checks if the two lists hold the same ServerIds, ignoring order.
func SameServers(a, b []ServerId) bool {
	if len(a) != len(b) {
		return false
	}
	for _, s := range a {
		if !containsServerId(b, s) {
			return false
		}
	}
	return true
}

// ToCommand serializes the configuration for storing in a log entry.
func (c Configuration) ToCommand() (Command, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, errors.Wrap(err, 0)
	}
	return Command(data), nil
}

// NewConfigurationEntry creates an EntryConfiguration log entry.
func NewConfigurationEntry(termNo TermNo, c Configuration) (LogEntry, error) {
	command, err := c.ToCommand()
	if err != nil {
		return LogEntry{}, err
	}
	return LogEntry{termNo, EntryConfiguration, command}, nil
}

// ConfigurationFromEntry deserializes the configuration held in an
// EntryConfiguration log entry.
func ConfigurationFromEntry(entry LogEntry) (Configuration, error) {
	if entry.EntryType != EntryConfiguration {
		return Configuration{}, errors.Errorf("not a configuration entry: %v", entry.EntryType)
	}
	var c Configuration
	err := json.Unmarshal(entry.Command, &c)
	if err != nil {
		return Configuration{}, errors.WrapPrefix(err, "bad configuration entry", 0)
	}
	err = c.Validate()
	if err != nil {
		return Configuration{}, err
	}
	return c, nil
}
