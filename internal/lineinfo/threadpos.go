package lineinfo

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ThreadPos is the wire form shared by the trace log: a thread id, whether
// it is stopped Before or Middle (or, on malformed input, After) a line,
// and the FileLine it is at (nil meaning "no source position").
type ThreadPos struct {
	Tid      int
	LineLoc  LineLoc
	FileLine *FileLine
}

func (t ThreadPos) String() string {
	return fmt.Sprintf("%d %s %s", t.Tid, t.LineLoc, NullableFileLine(t.FileLine))
}

var logPattern = regexp.MustCompile(`^(\d+)\s+([=>-])\s+(None|(.+):(\d+))\s*$`)

// ParseThreadPos parses one trace-log line of the form
// "<tid> ('='|'>'|'-') (None|<file>:<line>)". It returns ok=false if the
// line does not match the grammar at all (not even a malformed LineLoc);
// a LineLoc of After is returned as data so callers can reject it as an
// InvalidLogRecord per spec, rather than having the parser silently drop it.
func ParseThreadPos(line string) (ThreadPos, bool) {
	line = strings.TrimSpace(line)
	m := logPattern.FindStringSubmatch(line)
	if m == nil {
		return ThreadPos{}, false
	}
	tid, err := strconv.Atoi(m[1])
	if err != nil {
		return ThreadPos{}, false
	}
	loc, ok := ParseLineLoc(m[2])
	if !ok {
		return ThreadPos{}, false
	}
	var fl *FileLine
	if m[3] != "None" {
		line, err := strconv.Atoi(m[5])
		if err != nil {
			return ThreadPos{}, false
		}
		fl = &FileLine{Filename: m[4], Line: line}
	}
	return ThreadPos{Tid: tid, LineLoc: loc, FileLine: fl}, true
}
