package committer

import (
	"reflect"
	"sync"
	"testing"
	"time"

	. "github.com/divtxt/raftcore"
	"github.com/divtxt/raftcore/config"
	"github.com/divtxt/raftcore/internal"
	"github.com/divtxt/raftcore/log"
	"github.com/divtxt/raftcore/testdata"
	"github.com/divtxt/raftcore/testhelpers"
)

type fatalErrors struct {
	mutex sync.Mutex
	errs  []error
}

func (fe *fatalErrors) handler(err error) {
	fe.mutex.Lock()
	defer fe.mutex.Unlock()
	fe.errs = append(fe.errs, err)
}

func (fe *fatalErrors) get() []error {
	fe.mutex.Lock()
	defer fe.mutex.Unlock()
	return fe.errs
}

// Create a Committer whose goroutine is replaced by the TriggeredRunner test mode.
func newTestCommitter(
	t *testing.T,
	l LogReadOnly,
	sm StateMachine,
) (*Committer, *fatalErrors) {
	fe := &fatalErrors{}
	c := NewCommitter(l, sm, fe.handler)
	c.applier.StopSync()
	c.applier.TestHelperFakeRestart()
	return c, fe
}

// #RFS-A1: If commitIndex > lastApplied: increment lastApplied, apply
// log[lastApplied] to state machine (#5.3)
func TestCommitter(t *testing.T) {
	iml := log.TestUtil_NewInMemoryLog_WithFigure7LeaderLine(testdata.MaxEntriesPerAppendEntry)

	dsm := testhelpers.NewDummyStateMachine(3)

	committerImpl, fe := newTestCommitter(t, iml, dsm)
	var committer internal.ICommitter = committerImpl

	if committerImpl.GetLastApplied() != 3 {
		t.Fatal(committerImpl.GetLastApplied())
	}

	// CommitAsync should trigger run that drives commits
	err := committer.CommitAsync(4)
	if err != nil {
		t.Fatal(err)
	}
	if !committerImpl.applier.TestHelperRunOnceIfTriggerPending() {
		t.Fatal()
	}
	if dsm.GetLastApplied() != 4 {
		t.Fatal()
	}
	// Only entries after lastApplied should be applied.
	if !dsm.AppliedCommandsEqual(4) {
		t.Fatal()
	}

	// Registering for committed index should be an error
	_, err = committer.RegisterListener(4)
	if err.Error() != "FATAL: logIndex=4 is <= commitIndex=4" {
		t.Fatal(err)
	}

	// Registering past the end of the log should be an error
	_, err = committer.RegisterListener(11)
	if err.Error() != "FATAL: logIndex=11 is > current iole=10" {
		t.Fatal(err)
	}

	// Register for new notifications.
	// Intentionally not registering for some indexes to test that gaps are allowed.
	// We're cheating a bit here in this test since these entries are already in the log.
	crc6, err := committer.RegisterListener(6)
	if err != nil {
		t.Fatal(err)
	}
	crc8, err := committer.RegisterListener(8)
	if err != nil {
		t.Fatal(err)
	}
	crc9, err := committer.RegisterListener(9)
	if err != nil {
		t.Fatal(err)
	}
	crc10, err := committer.RegisterListener(10)
	if err != nil {
		t.Fatal(err)
	}
	testhelpers.AssertWillBlock(crc6)
	testhelpers.AssertWillBlock(crc8)
	testhelpers.AssertWillBlock(crc9)
	testhelpers.AssertWillBlock(crc10)

	// Trying to register for an older index should be an error
	_, err = committer.RegisterListener(7)
	if err.Error() != "FATAL: logIndex=7 is <= highestRegisteredIndex=10" {
		t.Fatal(err)
	}

	// Advancing commitIndex by multiple values should drive as many commits
	// and notify relevant listeners with the results.
	applied8 := committerImpl.RegisterAppliedListener(8)
	testhelpers.AssertWillBlock(applied8)
	err = committer.CommitAsync(8)
	if err != nil {
		t.Fatal(err)
	}
	if !committerImpl.applier.TestHelperRunOnceIfTriggerPending() {
		t.Fatal()
	}
	if dsm.GetLastApplied() != 8 || committerImpl.GetLastApplied() != 8 {
		t.Fatal()
	}
	testhelpers.AssertIsClosed(applied8)
	if !dsm.AppliedCommandsEqual(4, 5, 6, 7, 8) {
		t.Fatal()
	}
	if v := testhelpers.GetCommandResult(crc6); v != "rc6" {
		t.Fatal(v)
	}
	if v := testhelpers.GetCommandResult(crc8); v != "rc8" {
		t.Fatal(v)
	}
	testhelpers.AssertWillBlock(crc9)
	testhelpers.AssertWillBlock(crc10)

	// Regressing commitIndex should be an error
	err = committer.CommitAsync(7)
	if err.Error() != "FATAL: commitIndex=7 is < current commitIndex=8" {
		t.Fatal(err)
	}

	// Commit past the end of the log should be an error
	err = committer.CommitAsync(11)
	if err.Error() != "FATAL: commitIndex=11 is > current iole=10" {
		t.Fatal(err)
	}

	// Remove below commitIndex should be an error
	err = committer.RemoveListenersAfterIndex(7)
	if err.Error() != "FATAL: afterIndex=7 is < commitIndex=8" {
		t.Fatal(err)
	}

	// Remove should close only relevant listeners
	err = committer.RemoveListenersAfterIndex(9)
	if err != nil {
		t.Fatal(err)
	}
	testhelpers.AssertWillBlock(crc9)
	testhelpers.AssertIsClosed(crc10)

	// Should now be allowed to register listeners after the remove index
	_, err = committer.RegisterListener(9)
	if err.Error() != "FATAL: logIndex=9 is <= highestRegisteredIndex=9" {
		t.Fatal(err)
	}
	crc10b, err := committer.RegisterListener(10)
	if err != nil {
		t.Fatal(err)
	}
	testhelpers.AssertWillBlock(crc9)
	testhelpers.AssertWillBlock(crc10b)

	// Advancing commitIndex should drive new commits.
	err = committer.CommitAsync(9)
	if err != nil {
		t.Fatal(err)
	}
	err = committer.CommitAsync(10)
	if err != nil {
		t.Fatal(err)
	}
	if !committerImpl.applier.TestHelperRunOnceIfTriggerPending() {
		t.Fatal()
	}
	// Both triggers collapsed into one run
	if committerImpl.applier.TestHelperRunOnceIfTriggerPending() {
		t.Fatal()
	}
	if dsm.GetLastApplied() != 10 {
		t.Fatal()
	}
	if !dsm.AppliedCommandsEqual(4, 5, 6, 7, 8, 9, 10) {
		t.Fatal()
	}
	if v := testhelpers.GetCommandResult(crc9); v != "rc9" {
		t.Fatal(v)
	}
	if v := testhelpers.GetCommandResult(crc10b); v != "rc10" {
		t.Fatal(v)
	}

	if len(fe.get()) != 0 {
		t.Fatal(fe.get())
	}
}

// Entries that are not commands are not given to the state machine.
func TestCommitter_NonCommandEntries(t *testing.T) {
	iml := log.NewInMemoryLog(testdata.MaxEntriesPerAppendEntry)
	configEntry, err := config.NewConfigurationEntry(1, config.NewConfiguration(101, 102, 103))
	if err != nil {
		t.Fatal(err)
	}
	for _, entry := range []LogEntry{
		NewCommandEntry(1, testhelpers.DummyCommand(1)),
		NewNoOpEntry(2),
		configEntry,
		NewCommandEntry(2, testhelpers.DummyCommand(4)),
	} {
		_, err = iml.AppendEntry(entry)
		if err != nil {
			t.Fatal(err)
		}
	}

	dsm := testhelpers.NewDummyStateMachine(0)
	c, fe := newTestCommitter(t, iml, dsm)

	var crcs []<-chan CommandResult
	for li := LogIndex(1); li <= 4; li++ {
		crc, err := c.RegisterListener(li)
		if err != nil {
			t.Fatal(err)
		}
		crcs = append(crcs, crc)
	}

	err = c.CommitAsync(4)
	if err != nil {
		t.Fatal(err)
	}
	if !c.applier.TestHelperRunOnceIfTriggerPending() {
		t.Fatal()
	}

	if c.GetLastApplied() != 4 {
		t.Fatal(c.GetLastApplied())
	}
	if !reflect.DeepEqual(dsm.GetAppliedIndexes(), []LogIndex{1, 4}) {
		t.Fatal(dsm.GetAppliedIndexes())
	}
	expected := []CommandResult{"rc1", nil, nil, "rc4"}
	for i, crc := range crcs {
		if v := testhelpers.GetCommandResult(crc); v != expected[i] {
			t.Fatal(i, v)
		}
	}
	if len(fe.get()) != 0 {
		t.Fatal(fe.get())
	}
}

// A committed index that disappeared from the log is fatal.
func TestCommitter_FatalErrorWhenLogShrinks(t *testing.T) {
	iml := log.TestUtil_NewInMemoryLog_WithTerms([]TermNo{1, 1, 1, 1, 1}, 3)
	dsm := testhelpers.NewDummyStateMachine(0)
	c, fe := newTestCommitter(t, iml, dsm)

	err := c.CommitAsync(5)
	if err != nil {
		t.Fatal(err)
	}
	err = iml.TruncateFrom(3)
	if err != nil {
		t.Fatal(err)
	}
	if !c.applier.TestHelperRunOnceIfTriggerPending() {
		t.Fatal()
	}

	errs := fe.get()
	if len(errs) != 1 || errs[0].Error() != "FATAL: no entries after lastApplied=2 but commitIndex=5" {
		t.Fatal(errs)
	}
	if !dsm.AppliedCommandsEqual(1, 2) {
		t.Fatal(dsm.GetAppliedCommands())
	}

	// Stopped after a fatal error
	c.mutex.Lock()
	stopped := c.stopped
	c.mutex.Unlock()
	if !stopped {
		t.Fatal()
	}
}

// The real goroutine applies commits and stops.
func TestCommitter_Goroutine(t *testing.T) {
	iml := log.TestUtil_NewInMemoryLog_WithTerms([]TermNo{1, 1, 2}, 3)
	dsm := testhelpers.NewDummyStateMachine(0)
	fe := &fatalErrors{}
	c := NewCommitter(iml, dsm, fe.handler)

	crc3, err := c.RegisterListener(3)
	if err != nil {
		t.Fatal(err)
	}
	err = c.CommitAsync(3)
	if err != nil {
		t.Fatal(err)
	}

	v := testhelpers.AssertGetsValueWithin(crc3, time.Second)
	if v != "rc3" {
		t.Fatal(v)
	}
	<-c.RegisterAppliedListener(3)

	c.StopSync()
	c.StopSync()

	if !dsm.AppliedCommandsEqual(1, 2, 3) {
		t.Fatal(dsm.GetAppliedCommands())
	}
}
