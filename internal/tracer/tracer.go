// Package tracer drives a multithreaded inferior forward one source line at
// a time under a randomized scheduler, escaping hot loops by entropy
// detection, and emits a line-buffered trace log of the interleaving it
// observed.
package tracer

import (
	"bufio"
	"fmt"
	"math"
	"math/rand"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rb130/gdb-trace/internal/adapter"
	"github.com/rb130/gdb-trace/internal/lineinfo"
)

// Options configures a Tracer. All magic numbers the design notes flagged
// are surfaced here, with the documented defaults.
type Options struct {
	Cmd           []string
	Srcdir        string
	StepTimeout   time.Duration
	LogPath       string
	BlacklistPath string

	// LoopThreshold is the entropy threshold (in nats, compared against
	// log(LoopThreshold)) below which a thread is declared to be looping.
	LoopThreshold float64
	// EscapeProbability is the chance, once a loop is detected, that the
	// Tracer actually attempts to blacklist the enclosing function.
	EscapeProbability float64
	// OnlyMultithread: when exactly one live thread remains, use `continue`
	// instead of single-line stepping.
	OnlyMultithread bool
	// GoDeeper, when >= 0, is the probability of choosing `step` over `next`
	// for a freshly created thread's first step (unset/-1 disables the
	// distinction: every thread is always stepped into, matching the
	// default variant).
	GoDeeper float64
}

// DefaultOptions returns the documented defaults for the tunables the
// design notes call out as previously-hardcoded magic numbers.
func DefaultOptions() Options {
	return Options{
		StepTimeout:       time.Second,
		LoopThreshold:     20,
		EscapeProbability: 0.2,
		GoDeeper:          -1,
	}
}

const (
	defaultSchedWeight = 1.0
	dropSchedWeight    = 0.1
)

type threadInfo struct {
	thread      adapter.Thread
	globalNum   int
	schedWeight float64
	position    lineinfo.Position
}

// Tracer is the forward-recording state machine (spec §4.3).
type Tracer struct {
	dbg   adapter.Debugger
	opts  Options
	table *lineinfo.LineTable

	threads []*threadInfo
	newTids map[int]bool
	pending safeCounter

	posCounts map[int]*posCount
	blacklist *blacklist

	logFile   *os.File
	logWriter *bufio.Writer
	lastInfo  *threadInfo

	rng *rand.Rand
	log *logrus.Entry
}

// New constructs a Tracer against an already-built Debugger. The caller is
// responsible for having loaded the executable onto dbg only if it wants to
// reuse a session across components; Start() performs the full startup
// sequence itself when given a fresh adapter.
func New(dbg adapter.Debugger, opts Options, log *logrus.Entry) *Tracer {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Tracer{
		dbg:       dbg,
		opts:      opts,
		newTids:   make(map[int]bool),
		posCounts: make(map[int]*posCount),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		log:       log.WithField("component", "tracer"),
	}
}

// Start loads the executable, applies the required debugger options,
// freezes the line table, and registers the initial thread and the clone
// catchpoint handler.
func (t *Tracer) Start() error {
	if err := t.dbg.LoadExecutable(t.opts.Cmd[0]); err != nil {
		return err
	}
	if err := t.dbg.SetArgs(t.opts.Cmd[1:]); err != nil {
		return err
	}
	if err := t.dbg.ApplyStandardOptions(); err != nil {
		return err
	}
	if err := t.dbg.Start(); err != nil {
		return err
	}

	table, err := lineinfo.LoadLineTable(t.dbg, t.opts.Srcdir)
	if err != nil {
		return err
	}
	t.table = table

	bl, err := newBlacklist(t.opts.BlacklistPath)
	if err != nil {
		return err
	}
	t.blacklist = bl

	f, err := os.Create(t.opts.LogPath)
	if err != nil {
		return err
	}
	t.logFile = f
	t.logWriter = bufio.NewWriter(f)

	t.initThreads()

	if err := t.dbg.InstallCloneCatchpoint(); err != nil {
		return err
	}
	t.dbg.OnNewThread(func() { t.pending.add(1) })

	return nil
}

func (t *Tracer) initThreads() {
	thread := t.dbg.SelectedThread()
	pos, _ := lineinfo.ThreadPosition(t.dbg, thread, t.table)
	info := &threadInfo{thread: thread, globalNum: thread.GlobalNum(), schedWeight: defaultSchedWeight, position: pos}
	t.threads = append(t.threads, info)
	t.lastInfo = info
	t.posCounts[info.globalNum] = newPosCount()
}

// handleNewThreads drains the pending-new-thread counter, absorbing every
// thread the debugger reported since the last tick.
func (t *Tracer) handleNewThreads() {
	if t.pending.fetch() <= 0 {
		return
	}
	known := make(map[int]bool, len(t.threads))
	for _, info := range t.threads {
		if info.thread.IsValid() {
			known[info.globalNum] = true
		}
	}
	for _, thread := range t.dbg.ListThreads() {
		tid := thread.GlobalNum()
		if known[tid] {
			continue
		}
		pos, _ := lineinfo.ThreadPosition(t.dbg, thread, t.table)
		info := &threadInfo{thread: thread, globalNum: tid, schedWeight: defaultSchedWeight, position: pos}
		t.threads = append(t.threads, info)
		t.newTids[tid] = true
		t.posCounts[tid] = newPosCount()
		t.pending.add(-1)
	}
}

// randomThread picks a thread index by weighted random choice over
// sched_weight.
func (t *Tracer) randomThread() int {
	total := 0.0
	for _, info := range t.threads {
		total += info.schedWeight
	}
	if total <= 0 {
		return 0
	}
	r := t.rng.Float64() * total
	for i, info := range t.threads {
		r -= info.schedWeight
		if r <= 0 {
			return i
		}
	}
	return len(t.threads) - 1
}

// Step runs one scheduler tick: it picks a thread and attempts to advance
// it by one source line, adjusting its scheduling weight on success or
// failure. It returns false only when the inferior has no live threads
// left.
func (t *Tracer) Step() bool {
	for {
		if !t.dbg.IsLive() {
			return false
		}
		t.handleNewThreads()
		idx := t.randomThread()
		info := t.threads[idx]
		if !info.thread.IsValid() {
			info.schedWeight = 0
			continue
		}
		if t.tryStep(idx) {
			info.schedWeight = defaultSchedWeight
		} else {
			info.schedWeight *= dropSchedWeight
		}
		t.lastInfo = info
		return true
	}
}

// tryStep selects and executes the minimal next debugger command for the
// chosen thread, then drains any intermediate Middle stops until the thread
// either reaches a line boundary or dies/times out.
func (t *Tracer) tryStep(idx int) bool {
	info := t.threads[idx]
	t.dbg.SwitchThread(info.globalNum)

	cmd := t.chooseCommand(info)
	delete(t.newTids, info.globalNum)

	if res, _, _ := t.dbg.ExecuteWithTimeout(cmd, t.opts.StepTimeout); res != adapter.Success {
		info.position, _ = lineinfo.ThreadPosition(t.dbg, info.thread, t.table)
		return false
	}

	for {
		if !info.thread.IsValid() {
			return false
		}
		pos, level := lineinfo.ThreadPosition(t.dbg, info.thread, t.table)
		info.position = pos
		if pos.AtLineBegin() {
			return true
		}
		t.lastInfo = info
		t.updateLog()

		var followOn []string
		switch {
		case pos.FileLine == nil:
			followOn = []string{"step"}
		case level > 0:
			followOn = repeatCmd("finish", level)
		default:
			followOn = []string{"step"}
		}

		for _, c := range followOn {
			if !info.thread.IsValid() {
				return false
			}
			if res, _, _ := t.dbg.ExecuteWithTimeout(c, t.opts.StepTimeout); res != adapter.Success {
				info.position, _ = lineinfo.ThreadPosition(t.dbg, info.thread, t.table)
				return false
			}
		}
	}
}

func repeatCmd(cmd string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = cmd
	}
	return out
}

func (t *Tracer) chooseCommand(info *threadInfo) string {
	anyOtherLive := false
	for _, other := range t.threads {
		if other != info && other.thread.IsValid() {
			anyOtherLive = true
			break
		}
	}
	if !anyOtherLive {
		if t.opts.OnlyMultithread {
			return "continue"
		}
		return t.steppingCommand(info)
	}
	if t.inBlacklist(info) {
		return "finish"
	}
	if t.detectLoop(info.globalNum) && t.rng.Float64() < t.opts.EscapeProbability {
		if t.addBlacklist(info) {
			return "finish"
		}
		return t.steppingCommand(info)
	}
	return t.steppingCommand(info)
}

// steppingCommand is the single-line-advance command chooseCommand falls
// back to once the blacklist/loop checks don't force "finish". A freshly
// created thread is stepped into with probability GoDeeper when that's
// configured (>= 0); otherwise every thread is always stepped into.
func (t *Tracer) steppingCommand(info *threadInfo) string {
	if t.opts.GoDeeper >= 0 && t.newTids[info.globalNum] {
		if t.rng.Float64() < t.opts.GoDeeper {
			return "step"
		}
		return "next"
	}
	return "step"
}

func (t *Tracer) inBlacklist(info *threadInfo) bool {
	if !info.position.AtLineBegin() {
		return false
	}
	fl := info.position.FileLine
	return t.blacklist.contains(fl.Filename, fl.Line)
}

// detectLoop computes the Shannon entropy of the thread's recent-position
// multiset; if the window holds at least 100 samples and the entropy is
// strictly below log(LoopThreshold), the thread is looping and its window
// is cleared atomically with the declaration.
func (t *Tracer) detectLoop(tid int) bool {
	pc := t.posCounts[tid]
	if pc == nil || pc.num < 100 {
		return false
	}
	entropy := 0.0
	for _, v := range pc.values() {
		p := float64(v) / float64(pc.num)
		entropy += -p * math.Log(p)
	}
	if entropy >= math.Log(t.opts.LoopThreshold) {
		return false
	}
	pc.clear()
	return true
}

// addBlacklist records every line of the enclosing function as skippable,
// provided the thread is at a line boundary, the frame is not main, and the
// frame's block can be resolved. It returns false (without modifying any
// state) whenever those preconditions fail.
func (t *Tracer) addBlacklist(info *threadInfo) bool {
	if !info.position.AtLineBegin() {
		return false
	}
	fl := info.position.FileLine
	frame, err := t.dbg.NewestFrame()
	if err != nil {
		return false
	}
	if frame.Name() == "main" {
		return false
	}
	block, ok := frame.Block()
	if !ok {
		return false
	}
	lines := t.table.LinesInRange(fl.Filename, block.Start, block.End)
	if len(lines) == 0 {
		return false
	}

	relFilename := fl.RelativeTo(t.opts.Srcdir).Filename
	if err := t.blacklist.add(fl.Filename, relFilename, lines); err != nil {
		t.log.WithError(err).Warn("failed to persist blacklist entry")
	}
	if name := frame.Name(); name != "" {
		if err := t.dbg.SkipFunction(name); err != nil {
			t.log.WithError(err).Warn("failed to install skip rule")
		}
	}
	return true
}

// updateLog emits one trace-log record for the last thread that was acted
// on, flushing immediately so an external tail-er sees it right away.
func (t *Tracer) updateLog() {
	info := t.lastInfo
	if info == nil {
		return
	}

	var loc lineinfo.LineLoc
	var fl *lineinfo.FileLine
	if !info.thread.IsValid() {
		loc = lineinfo.Middle
	} else {
		if info.position.AtLineBegin() {
			loc = lineinfo.Before
		} else {
			loc = lineinfo.Middle
		}
		if info.position.FileLine != nil {
			rel := info.position.FileLine.RelativeTo(t.opts.Srcdir)
			fl = &rel
		}
	}

	tpos := lineinfo.ThreadPos{Tid: info.globalNum, LineLoc: loc, FileLine: fl}
	str := tpos.String()
	fmt.Fprintln(t.logWriter, str)
	t.logWriter.Flush()

	if pc := t.posCounts[info.globalNum]; pc != nil {
		pc.addNew(str)
	}
}

// Run drives Step/updateLog to completion and closes the log files.
func (t *Tracer) Run() error {
	defer t.closeFiles()
	for t.Step() {
		t.updateLog()
	}
	return nil
}

func (t *Tracer) closeFiles() {
	if t.logWriter != nil {
		t.logWriter.Flush()
	}
	if t.logFile != nil {
		t.logFile.Close()
	}
	if t.blacklist != nil {
		t.blacklist.close()
	}
}
