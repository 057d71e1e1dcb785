package log

import (
	"fmt"

	. "github.com/divtxt/raftcore"
)

func indexAfterLastEntryPrefix(method string, li, iole LogIndex) string {
	return fmt.Sprintf("%s(): li=%v > iole=%v", method, li, iole)
}
