package replayer

import (
	"bufio"
	"os"

	"github.com/rb130/gdb-trace/internal/lineinfo"
)

// ReadLog loads a trace.log file, skipping any line that does not parse as
// a ThreadPos at all (blank lines, stray debugger chatter); a line that
// parses but carries LineLoc.After is kept so ProcessOne can reject it as
// an InvalidLogRecord instead of the reader silently discarding it.
func ReadLog(path string) ([]lineinfo.ThreadPos, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []lineinfo.ThreadPos
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		tpos, ok := lineinfo.ParseThreadPos(scanner.Text())
		if !ok {
			continue
		}
		out = append(out, tpos)
	}
	return out, scanner.Err()
}

// Run replays every recorded line in order, stopping at the first error
// ProcessOne returns.
func (r *Replayer) Run(logPath string) error {
	lines, err := ReadLog(logPath)
	if err != nil {
		return err
	}
	for _, tpos := range lines {
		if err := r.ProcessOne(tpos); err != nil {
			return err
		}
	}
	return nil
}
