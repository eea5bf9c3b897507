package replayer

import (
	"fmt"
	"time"

	"github.com/rb130/gdb-trace/internal/lineinfo"
	"github.com/rb130/gdb-trace/internal/pathutil"
)

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// resolveAbsLocation renders a srcdir-relative FileLine as the
// "<abs-path>:<line>" string the debugger's breakpoint-location syntax
// expects.
func resolveAbsLocation(fl lineinfo.FileLine, srcdir string) string {
	abs := pathutil.JoinUnderSrcdir(srcdir, fl.Filename)
	return fmt.Sprintf("%s:%d", abs, fl.Line)
}
