package lineinfo

import "github.com/rb130/gdb-trace/internal/adapter"

// ThreadPosition switches to thread, walks its frames from newest to
// oldest, and returns the first frame whose (file, line) exactly matches an
// entry in the line table, together with the 0-based depth at which it was
// found. If no frame matches, it returns a Position with a nil FileLine and
// the depth of the oldest frame searched.
func ThreadPosition(dbg adapter.Debugger, thread adapter.Thread, table *LineTable) (Position, int) {
	if thread == nil || !thread.IsValid() {
		return Position{}, 0
	}
	if !dbg.SwitchThread(thread.GlobalNum()) {
		return Position{}, 0
	}

	frame, err := dbg.NewestFrame()
	if err != nil || frame == nil {
		return Position{}, 0
	}

	pc := frame.PC()
	depth := 0
	for frame != nil {
		if file, line, ok := frame.FindSourceLocation(); ok {
			if fl, found := table.Lookup(file, line); found {
				return Position{FileLine: &fl, PC: pc}, depth
			}
		}
		older, ok := frame.Older()
		if !ok {
			break
		}
		frame = older
		depth++
	}
	return Position{FileLine: nil, PC: pc}, depth
}
