// Package lineinfo holds the frozen line table and the position model both
// the Tracer and the Replayer resolve threads against.
package lineinfo

import (
	"fmt"

	"github.com/rb130/gdb-trace/internal/pathutil"
)

// FileLine is a breakable source point. Equality and ordering use only
// (Filename, Line); Address is metadata carried along for convenience.
type FileLine struct {
	Filename string
	Line     int
	Address  uint64
}

// Equal compares a FileLine on (Filename, Line) only, per the invariant in
// the data model.
func (f FileLine) Equal(other FileLine) bool {
	return f.Filename == other.Filename && f.Line == other.Line
}

// Less orders FileLines by (Filename, Line).
func (f FileLine) Less(other FileLine) bool {
	if f.Filename != other.Filename {
		return f.Filename < other.Filename
	}
	return f.Line < other.Line
}

// RelativeTo returns a copy of f with Filename rewritten relative to base.
func (f FileLine) RelativeTo(base string) FileLine {
	rel, err := pathutil.RelativeTo(f.Filename, base)
	if err != nil {
		return f
	}
	return FileLine{Filename: rel, Line: f.Line, Address: f.Address}
}

func (f FileLine) String() string {
	return fmt.Sprintf("%s:%d", f.Filename, f.Line)
}

// NullableFileLine formats either "None" or the FileLine, matching the
// trace log's wire form.
func NullableFileLine(f *FileLine) string {
	if f == nil {
		return "None"
	}
	return f.String()
}
