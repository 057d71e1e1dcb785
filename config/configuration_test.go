package config_test

import (
	"reflect"
	"testing"

	. "github.com/divtxt/raftcore"
	"github.com/divtxt/raftcore/config"
)

func TestConfiguration_ToJointAndFinal(t *testing.T) {
	c := config.NewConfiguration(1, 2, 3)
	if c.IsJoint() {
		t.Fatal()
	}

	joint, err := c.ToJoint([]ServerId{2, 3, 4})
	if err != nil {
		t.Fatal(err)
	}
	if !joint.IsJoint() {
		t.Fatal()
	}
	if !joint.Contains(1) || !joint.Contains(4) || joint.Contains(5) {
		t.Fatal(joint)
	}
	if !reflect.DeepEqual(joint.AllServers(), []ServerId{1, 2, 3, 4}) {
		t.Fatal(joint.AllServers())
	}
	if joint.String() != "{old: [1 2 3], new: [2 3 4]}" {
		t.Fatal(joint.String())
	}

	final := joint.ToFinal()
	if final.IsJoint() || !final.Equal(config.NewConfiguration(4, 3, 2)) {
		t.Fatal(final)
	}

	// Only one change at a time
	_, err = joint.ToJoint([]ServerId{5})
	if !IsErrMembershipChangeInProgress(err) {
		t.Fatal(err)
	}

	// No change
	_, err = c.ToJoint([]ServerId{3, 1, 2})
	if err == nil || err.Error() != ErrMembershipUnchanged.Error() {
		t.Fatal(err)
	}

	// Bad new servers
	_, err = c.ToJoint([]ServerId{})
	if err == nil || err.Error() != "NewServers must have at least 1 element" {
		t.Fatal(err)
	}
}

func TestConfiguration_Equal(t *testing.T) {
	a := config.NewConfiguration(1, 2, 3)
	if !a.Equal(config.NewConfiguration(3, 2, 1)) {
		t.Fatal()
	}
	if a.Equal(config.NewConfiguration(1, 2)) {
		t.Fatal()
	}
	if a.Equal(config.Configuration{[]ServerId{1, 2, 3}, []ServerId{1, 2, 3}}) {
		t.Fatal()
	}
}

func TestConfiguration_Entry(t *testing.T) {
	joint := config.Configuration{[]ServerId{1, 2, 3}, []ServerId{4, 5, 6}}

	entry, err := config.NewConfigurationEntry(5, joint)
	if err != nil {
		t.Fatal(err)
	}
	if entry.TermNo != 5 || entry.EntryType != EntryConfiguration {
		t.Fatal(entry)
	}
	if string(entry.Command) != `{"servers":[1,2,3],"newServers":[4,5,6]}` {
		t.Fatal(string(entry.Command))
	}

	c, err := config.ConfigurationFromEntry(entry)
	if err != nil {
		t.Fatal(err)
	}
	if !c.Equal(joint) {
		t.Fatal(c)
	}

	// A stable configuration stays stable
	entry, err = config.NewConfigurationEntry(5, config.NewConfiguration(7))
	if err != nil {
		t.Fatal(err)
	}
	c, err = config.ConfigurationFromEntry(entry)
	if err != nil {
		t.Fatal(err)
	}
	if c.IsJoint() || !c.Equal(config.NewConfiguration(7)) {
		t.Fatal(c)
	}

	// Errors
	_, err = config.ConfigurationFromEntry(NewCommandEntry(5, Command("c1")))
	if err == nil || err.Error() != "not a configuration entry: EntryCommand" {
		t.Fatal(err)
	}
	_, err = config.ConfigurationFromEntry(LogEntry{5, EntryConfiguration, Command("{")})
	if err == nil {
		t.Fatal()
	}
	_, err = config.ConfigurationFromEntry(LogEntry{5, EntryConfiguration, Command(`{"servers":[]}`)})
	if err == nil || err.Error() != "Servers must have at least 1 element" {
		t.Fatal(err)
	}
}
