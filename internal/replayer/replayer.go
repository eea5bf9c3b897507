// Package replayer drives an inferior through a previously recorded
// trace.log, forcing it down the exact same thread interleaving and
// emitting the PC each thread reached at every Before-transition so a
// downstream reconstruction can correlate the two runs.
package replayer

import (
	"bufio"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/rb130/gdb-trace/internal/adapter"
	"github.com/rb130/gdb-trace/internal/lineinfo"
)

// runResult classifies the outcome of one debugger command issued on behalf
// of the thread currently being replayed.
type runResult int

const (
	runSuccess runResult = iota
	runTimeout
	runClone
	runExit
	runError
)

// threadInfo tracks one recorded thread's current and most recently
// completed position, mirroring the teacher-independent original's
// ThreadInfo.
type threadInfo struct {
	current      lineinfo.ThreadPos
	lastFinished *lineinfo.FileLine
	lastTarget   *lineinfo.FileLine
}

func (ti *threadInfo) moveTo(tpos lineinfo.ThreadPos, last bool) {
	if last {
		ti.lastFinished = ti.current.FileLine
	} else {
		ti.lastFinished = nil
	}
	ti.current = tpos
}

func (ti *threadInfo) intoMiddle() {
	ti.current.LineLoc = lineinfo.Middle
}

// InvalidLogRecord is returned by ProcessOne when a recorded line names
// LineLoc.After, which the format never legitimately produces.
type InvalidLogRecord struct {
	Line lineinfo.ThreadPos
}

func (e *InvalidLogRecord) Error() string {
	return fmt.Sprintf("invalid line_loc in recorded line: %s", e.Line)
}

// Replayer is the replay-side state machine (spec §4.4).
type Replayer struct {
	dbg         adapter.Debugger
	table       *lineinfo.LineTable
	srcdir      string
	stepTimeout float64

	cmd  []string
	base uint64

	threads map[int]*threadInfo
	curInfo *threadInfo
	curTid  int

	out *bufio.Writer
	f   *os.File

	log *logrus.Entry
}

// New constructs a Replayer. StepTimeout is in seconds, matching the
// recorded config's "steptime" field. The line table is loaded lazily by
// Start, once the executable's debug info is actually available.
func New(dbg adapter.Debugger, srcdir string, stepTimeout float64, log *logrus.Entry) *Replayer {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Replayer{
		dbg:         dbg,
		srcdir:      srcdir,
		stepTimeout: stepTimeout,
		threads:     make(map[int]*threadInfo),
		log:         log.WithField("component", "replayer"),
	}
}

// Start loads the executable, applies the required options, freezes the
// line table, resolves the load base address, and seeds thread 1.
func (r *Replayer) Start(cmd []string) error {
	r.cmd = cmd
	if err := r.dbg.LoadExecutable(cmd[0]); err != nil {
		return err
	}
	if err := r.dbg.SetArgs(cmd[1:]); err != nil {
		return err
	}
	if err := r.dbg.ApplyStandardOptions(); err != nil {
		return err
	}
	if err := r.dbg.Start(); err != nil {
		return err
	}

	table, err := lineinfo.LoadLineTable(r.dbg, r.srcdir)
	if err != nil {
		return err
	}
	r.table = table

	if err := r.dbg.InstallCloneCatchpoint(); err != nil {
		return err
	}
	for _, sig := range []string{"SIGSEGV", "SIGILL", "SIGABRT"} {
		if err := r.dbg.HandleSignal(sig, false, true); err != nil {
			return err
		}
	}

	base, ok, err := r.dbg.LoadBaseAddress(cmd[0])
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("failed to resolve load base address for %s", cmd[0])
	}
	r.base = base

	r.addNewThread()
	return nil
}

// Open creates the PC-log output file the replayer appends to.
func (r *Replayer) Open(outPath string) error {
	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	r.f = f
	r.out = bufio.NewWriter(f)
	return nil
}

// Close flushes and closes the PC-log output file.
func (r *Replayer) Close() error {
	if r.out != nil {
		r.out.Flush()
	}
	if r.f != nil {
		return r.f.Close()
	}
	return nil
}

// addNewThread discovers exactly one inferior thread not yet known to the
// Replayer (the sole discovery mechanism: a clone-syscall catchpoint hit),
// and seeds its ThreadInfo from its current resolved position.
func (r *Replayer) addNewThread() {
	for _, thread := range r.dbg.ListThreads() {
		tid := thread.GlobalNum()
		if _, known := r.threads[tid]; known {
			continue
		}
		pos, _ := lineinfo.ThreadPosition(r.dbg, thread, r.table)
		loc := lineinfo.Middle
		if pos.AtLineBegin() {
			loc = lineinfo.Before
		}
		var fl *lineinfo.FileLine
		if pos.FileLine != nil {
			rel := pos.FileLine.RelativeTo(r.srcdir)
			fl = &rel
		}
		r.threads[tid] = &threadInfo{current: lineinfo.ThreadPos{Tid: tid, LineLoc: loc, FileLine: fl}}
		return
	}
}

func (r *Replayer) insideClone() bool {
	frame, err := r.dbg.NewestFrame()
	if err != nil || frame == nil {
		return false
	}
	return frame.Name() == "clone"
}

// breakPosition resolves where a breakpoint at file_line would actually
// bind, normalized back to srcdir-relative — the oracle ProcessOne uses for
// every equality check between a recorded and a current position.
func (r *Replayer) breakPosition(fl *lineinfo.FileLine) *lineinfo.FileLine {
	if fl == nil {
		return nil
	}
	resolved, ok := r.table.BreakPosition(*fl, r.srcdir)
	if !ok {
		return nil
	}
	return &resolved
}

func sameFileLine(a, b *lineinfo.FileLine) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// ProcessOne replays one recorded ThreadPos, issuing whatever debugger
// commands are needed to bring the named thread to that position.
func (r *Replayer) ProcessOne(tpos lineinfo.ThreadPos) error {
	if tpos.LineLoc == lineinfo.After {
		return &InvalidLogRecord{Line: tpos}
	}

	info, ok := r.threads[tpos.Tid]
	if !ok {
		return fmt.Errorf("unknown thread %d in recorded log", tpos.Tid)
	}
	r.curInfo = info
	r.curTid = tpos.Tid

	if !r.dbg.IsLive() {
		return nil
	}
	if !r.dbg.SwitchThread(tpos.Tid) {
		if tpos.FileLine == nil || info.current.FileLine == nil {
			return nil
		}
		return fmt.Errorf("cannot switch to thread %d", tpos.Tid)
	}

	if info.current.LineLoc == lineinfo.After {
		return &InvalidLogRecord{Line: info.current}
	}

	curMatch := sameFileLine(r.breakPosition(tpos.FileLine), info.current.FileLine)
	lastTarget := info.lastTarget
	info.lastTarget = tpos.FileLine

	switch info.current.LineLoc {
	case lineinfo.Before:
		switch tpos.LineLoc {
		case lineinfo.Before:
			if curMatch {
				if lastTarget != nil && tpos.FileLine != nil &&
					lastTarget.Filename == tpos.FileLine.Filename &&
					lastTarget.Line < tpos.FileLine.Line {
					return nil
				}
			}
			return r.runUntil(tpos.FileLine)
		case lineinfo.Middle:
			if sameFileLine(tpos.FileLine, info.lastFinished) {
				return nil
			}
			if curMatch {
				return r.runNext()
			}
			return r.runUntilAndNext(tpos.FileLine)
		}
	case lineinfo.Middle:
		switch tpos.LineLoc {
		case lineinfo.Before:
			return r.runUntil(tpos.FileLine)
		case lineinfo.Middle:
			if curMatch {
				return r.runFinish()
			}
			return r.runUntilAndNext(tpos.FileLine)
		}
	}
	return nil
}

func (r *Replayer) appendAnswer(addr uint64, have bool) {
	var rendered string
	if !have {
		rendered = "0x0"
	} else {
		rendered = fmt.Sprintf("%#x", addr-r.base)
	}
	fmt.Fprintf(r.out, "%d: %s\n", r.curTid, rendered)
	r.out.Flush()
}

// runGdbCmd is the shared wrapper every replay primitive issues its
// command through: it detects exit, clone-catchpoint hits (discovering the
// new thread and stepping past the trap), and timeouts uniformly.
func (r *Replayer) runGdbCmd(cmd string) runResult {
	thread := r.dbg.SelectedThread()
	if thread == nil || !thread.IsValid() {
		return runExit
	}

	res, _, err := r.dbg.ExecuteWithTimeout(cmd, secondsToDuration(r.stepTimeout))
	if err != nil && res != adapter.Timeout {
		r.log.WithError(err).Debug("command returned an error")
		return runError
	}
	if res == adapter.Timeout {
		return runTimeout
	}

	if r.insideClone() {
		r.dbg.ExecuteWithTimeout("stepi", secondsToDuration(r.stepTimeout))
		r.addNewThread()
		r.dbg.SwitchThread(thread.GlobalNum())
		return runClone
	}
	if !thread.IsValid() {
		return runExit
	}
	return runSuccess
}

func (r *Replayer) runUntil(fl *lineinfo.FileLine) error {
	if fl == nil {
		return r.runUntilExit()
	}
	// A recorded target past the last entry of the whole line table (e.g.
	// the source changed between record and replay) resolves to no table
	// entry at all; a literal breakpoint there would never fire, so treat it
	// the same as a nil target. A target past the last breakable line of a
	// file that is not last in the table resolves to the next file's first
	// entry instead.
	resolved := r.breakPosition(fl)
	if resolved == nil {
		return r.runUntilExit()
	}
	info := r.curInfo

	absLoc := resolveAbsLocation(*resolved, r.srcdir)
	bp, err := r.dbg.SetBreakpoint(absLoc, true, true, true)
	if err != nil {
		return err
	}
	defer func() {
		if bp.IsValid() {
			bp.Delete()
		}
	}()

	for {
		res := r.runGdbCmd("continue")
		switch res {
		case runClone:
			r.appendAnswer(0, false)
			continue
		case runTimeout:
			return fmt.Errorf("timeout without hitting breakpoint %s", fl)
		case runExit, runError:
			r.appendAnswer(0, false)
			info.moveTo(lineinfo.ThreadPos{Tid: info.current.Tid, LineLoc: lineinfo.Middle}, false)
			return nil
		case runSuccess:
			pc, _ := r.dbg.ReadRegister("pc")
			r.appendAnswer(pc, true)
			thread := r.dbg.SelectedThread()
			tpos, _ := lineinfo.ThreadPosition(r.dbg, thread, r.table)
			var rel *lineinfo.FileLine
			if tpos.FileLine != nil {
				r2 := tpos.FileLine.RelativeTo(r.srcdir)
				rel = &r2
			}
			info.moveTo(lineinfo.ThreadPos{Tid: info.current.Tid, LineLoc: lineinfo.Before, FileLine: rel}, true)
			return nil
		}
	}
}

func (r *Replayer) runUntilExit() error {
	info := r.curInfo
	for {
		res := r.runGdbCmd("continue")
		r.appendAnswer(0, false)
		if res == runExit || res == runError {
			break
		}
	}
	info.moveTo(lineinfo.ThreadPos{Tid: info.current.Tid, LineLoc: lineinfo.Middle}, false)
	return nil
}

func (r *Replayer) runNext() error {
	info := r.curInfo
	res := r.runGdbCmd("next")
	switch res {
	case runClone, runTimeout:
		r.appendAnswer(0, false)
		info.intoMiddle()
	case runExit, runError:
		r.appendAnswer(0, false)
		info.moveTo(lineinfo.ThreadPos{Tid: info.current.Tid, LineLoc: lineinfo.Middle}, false)
	case runSuccess:
		thread := r.dbg.SelectedThread()
		tpos, level := lineinfo.ThreadPosition(r.dbg, thread, r.table)
		if level != 0 {
			return fmt.Errorf("next landed %d frames deep, expected 0", level)
		}
		r.appendAnswer(tpos.PC, true)
		var rel *lineinfo.FileLine
		if tpos.FileLine != nil {
			r2 := tpos.FileLine.RelativeTo(r.srcdir)
			rel = &r2
		}
		info.moveTo(lineinfo.ThreadPos{Tid: info.current.Tid, LineLoc: lineinfo.Before, FileLine: rel}, true)
	}
	return nil
}

func (r *Replayer) runFinish() error {
	info := r.curInfo
	res := r.runGdbCmd("finish")
	switch res {
	case runClone, runExit, runError:
		r.appendAnswer(0, false)
	case runTimeout:
		// matches the original: a timed-out finish leaves the thread's
		// recorded position untouched and emits no PC-log line.
	case runSuccess:
		thread := r.dbg.SelectedThread()
		tpos, level := lineinfo.ThreadPosition(r.dbg, thread, r.table)
		if level == 0 {
			r.appendAnswer(tpos.PC, true)
			var rel *lineinfo.FileLine
			if tpos.FileLine != nil {
				r2 := tpos.FileLine.RelativeTo(r.srcdir)
				rel = &r2
			}
			info.moveTo(lineinfo.ThreadPos{Tid: info.current.Tid, LineLoc: lineinfo.Before, FileLine: rel}, true)
		}
	}
	return nil
}

func (r *Replayer) runUntilAndNext(fl *lineinfo.FileLine) error {
	if err := r.runUntil(fl); err != nil {
		return err
	}
	if fl != nil {
		return r.runNext()
	}
	return nil
}
