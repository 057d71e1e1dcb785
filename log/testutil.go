package log

import (
	"strconv"

	. "github.com/divtxt/raftcore"
	"github.com/divtxt/raftcore/testdata"
)

// Make an InMemoryLog with 10 entries with terms as shown in Figure 7, leader line.
// Commands will be Command("c1"), Command("c2"), etc.
func TestUtil_NewInMemoryLog_WithFigure7LeaderLine(maxEntriesPerAppendEntry uint64) *InMemoryLog {
	figure7LeaderLine := testdata.TestUtil_MakeFigure7LeaderLineTerms()
	return TestUtil_NewInMemoryLog_WithTerms(figure7LeaderLine, maxEntriesPerAppendEntry)
}

// Make an InMemoryLog with entries with given terms.
// Commands will be Command("c1"), Command("c2"), etc.
func TestUtil_NewInMemoryLog_WithTerms(
	logTerms []TermNo,
	maxEntriesPerAppendEntry uint64,
) *InMemoryLog {
	inmem_log := NewInMemoryLog(maxEntriesPerAppendEntry)
	TestUtil_AppendEntriesWithTerms(inmem_log, logTerms)
	return inmem_log
}

// Append command entries with the given terms to the given log.
// Commands will be Command("cN") where N is the index of the entry.
func TestUtil_AppendEntriesWithTerms(log Log, logTerms []TermNo) {
	for _, term := range logTerms {
		iole, err := log.GetIndexOfLastEntry()
		if err != nil {
			panic(err)
		}
		command := Command("c" + strconv.Itoa(int(iole)+1))
		_, err = log.AppendEntry(NewCommandEntry(term, command))
		if err != nil {
			panic(err)
		}
	}
}

// Get the terms of all the entries in the given log.
func TestUtil_GetLogTerms(log LogReadOnly) []TermNo {
	iole, err := log.GetIndexOfLastEntry()
	if err != nil {
		panic(err)
	}
	terms := make([]TermNo, 0, iole)
	for li := LogIndex(1); li <= iole; li++ {
		term, err := log.GetTermAtIndex(li)
		if err != nil {
			panic(err)
		}
		terms = append(terms, term)
	}
	return terms
}
