package log

import (
	"bytes"
	"reflect"
	"testing"

	. "github.com/divtxt/raftcore"
)

// Helper
func TestCommandEquals(c Command, s string) bool {
	return bytes.Equal(c, Command(s))
}

// Blackbox test.
// Send a Log with 10 entries with terms as shown in Figure 7, leader line,
// and a maxEntries of 3 for GetEntriesAfterIndex.
// Entries should be Command("c1"), Command("c2"), etc.
func BlackboxTest_Log(t *testing.T, log Log) {
	// Initial data tests
	iole, err := log.GetIndexOfLastEntry()
	if err != nil {
		t.Fatal(err)
	}
	if iole != 10 {
		t.Fatal(iole)
	}
	term, err := log.GetTermAtIndex(10)
	if err != nil {
		t.Fatal(err)
	}
	if term != 6 {
		t.Fatal(term)
	}
	// index 0 is the empty log sentinel
	term, err = log.GetTermAtIndex(0)
	if err != nil || term != 0 {
		t.Fatal(term, err)
	}
	_, err = log.GetTermAtIndex(11)
	if err == nil {
		t.Fatal()
	}

	// get entry test
	le, err := log.GetEntryAtIndex(10)
	if err != nil {
		t.Fatal(err)
	}
	if le.TermNo != 6 || le.EntryType != EntryCommand {
		t.Fatal(le)
	}
	if !TestCommandEquals(le.Command, "c10") {
		t.Fatal(le.Command)
	}
	_, err = log.GetEntryAtIndex(0)
	if err == nil {
		t.Fatal()
	}
	_, err = log.GetEntryAtIndex(11)
	if err == nil {
		t.Fatal()
	}

	// get entries test - limited to maxEntries
	entries, err := log.GetEntriesAfterIndex(3)
	if err != nil {
		t.Fatal(err)
	}
	expected := []LogEntry{
		NewCommandEntry(4, Command("c4")),
		NewCommandEntry(4, Command("c5")),
		NewCommandEntry(5, Command("c6")),
	}
	if !reflect.DeepEqual(entries, expected) {
		t.Fatal(entries)
	}
	entries, err = log.GetEntriesAfterIndex(9)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(entries, []LogEntry{NewCommandEntry(6, Command("c10"))}) {
		t.Fatal(entries)
	}
	entries, err = log.GetEntriesAfterIndex(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatal(entries)
	}
	_, err = log.GetEntriesAfterIndex(11)
	if err == nil {
		t.Fatal()
	}

	var logEntries []LogEntry

	// set test - invalid index
	logEntries = []LogEntry{NewCommandEntry(8, Command("c12"))}
	err = log.SetEntriesAfterIndex(11, logEntries)
	if err == nil {
		t.Fatal()
	}

	// set test - no replacing
	logEntries = []LogEntry{NewCommandEntry(7, Command("c11")), NewCommandEntry(8, Command("c12"))}
	err = log.SetEntriesAfterIndex(10, logEntries)
	if err != nil {
		t.Fatal(err)
	}
	iole, err = log.GetIndexOfLastEntry()
	if err != nil {
		t.Fatal(err)
	}
	if iole != 12 {
		t.Fatal(iole)
	}
	le, err = log.GetEntryAtIndex(12)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(le, NewCommandEntry(8, Command("c12"))) {
		t.Fatal(le)
	}

	// set test - partial replacing
	logEntries = []LogEntry{
		NewCommandEntry(7, Command("c11")),
		NewCommandEntry(9, Command("c12")),
		NewCommandEntry(9, Command("c13'")),
	}
	err = log.SetEntriesAfterIndex(10, logEntries)
	if err != nil {
		t.Fatal(err)
	}
	iole, err = log.GetIndexOfLastEntry()
	if err != nil {
		t.Fatal(err)
	}
	if iole != 13 {
		t.Fatal(iole)
	}
	le, err = log.GetEntryAtIndex(12)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(le, NewCommandEntry(9, Command("c12"))) {
		t.Fatal(le)
	}

	// append test
	li, err := log.AppendEntry(NewCommandEntry(8, Command("c14")))
	if err != nil {
		t.Fatal(err)
	}
	if li != 14 {
		t.Fatal(li)
	}
	iole, err = log.GetIndexOfLastEntry()
	if err != nil {
		t.Fatal(err)
	}
	if iole != 14 {
		t.Fatal(iole)
	}
	le, err = log.GetEntryAtIndex(14)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(le, NewCommandEntry(8, Command("c14"))) {
		t.Fatal(le)
	}

	// append test - other entry types
	li, err = log.AppendEntry(NewNoOpEntry(9))
	if err != nil {
		t.Fatal(err)
	}
	if li != 15 {
		t.Fatal(li)
	}
	le, err = log.GetEntryAtIndex(15)
	if err != nil {
		t.Fatal(err)
	}
	if le.TermNo != 9 || le.EntryType != EntryNoOp || len(le.Command) != 0 {
		t.Fatal(le)
	}

	// truncate test
	err = log.TruncateFrom(12)
	if err != nil {
		t.Fatal(err)
	}
	iole, err = log.GetIndexOfLastEntry()
	if err != nil {
		t.Fatal(err)
	}
	if iole != 11 {
		t.Fatal(iole)
	}
	err = log.TruncateFrom(0)
	if err == nil {
		t.Fatal()
	}

	// set test - no new entries with empty slice
	logEntries = []LogEntry{}
	err = log.SetEntriesAfterIndex(3, logEntries)
	if err != nil {
		t.Fatal(err)
	}
	iole, err = log.GetIndexOfLastEntry()
	if err != nil {
		t.Fatal(err)
	}
	if iole != 3 {
		t.Fatal(iole)
	}
	le, err = log.GetEntryAtIndex(3)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(le, NewCommandEntry(1, Command("c3"))) {
		t.Fatal(le)
	}
}
