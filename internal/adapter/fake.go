package adapter

import (
	"fmt"
	"sync"
	"time"
)

// FakeStop is one scripted stopping point for a thread: a resolved source
// location (or none, when HasLine is false) plus the flags a single step
// command can produce (thread death, entry into the clone syscall).
type FakeStop struct {
	File    string
	Line    int
	PC      uint64
	HasLine bool
	Exited  bool
	Clone   bool
}

// FakeScript is one thread's scripted run: its starting stop, then one
// FakeStop consumed by each subsequent Execute/ExecuteWithTimeout call that
// selects this thread, in order. Once a script has run out of stops, every
// further stepping command on that thread returns Failed with an error, and
// the thread stays at its last stop.
type FakeScript struct {
	Start FakeStop
	Steps []FakeStop
}

// Fake is a scriptable Debugger used by the test suite to exercise the
// Tracer and Replayer state machines deterministically, without a live GDB
// session or compiled executable — the second Debugger implementation the
// design notes call for.
type Fake struct {
	mu sync.Mutex

	scripts  map[int]*FakeScript
	cursor   map[int]int
	current  map[int]FakeStop
	order    []int // insertion order, used to enumerate threads
	selected int

	newThreadCBs []func()
	breakpoints  []*fakeBreakpoint

	LineTable string
	BaseAddr  uint64
	BaseOK    bool

	// TimeoutOn, when set, makes ExecuteWithTimeout report a Timeout the
	// next time the named command runs on the given thread, once.
	TimeoutOn map[Trigger]bool
	// ErrorOn, mirrors TimeoutOn for DebuggerError.
	ErrorOn map[Trigger]bool

	Log []string // every command issued, for assertions
}

// Trigger names one (thread, command) pair TimeoutOn/ErrorOn can key off.
type Trigger struct {
	Tid int
	Cmd string
}

// FakeTrigger builds a Trigger for use as a TimeoutOn/ErrorOn map key.
func FakeTrigger(tid int, cmd string) Trigger {
	return Trigger{Tid: tid, Cmd: cmd}
}

// NewFake builds an empty Fake with no scripted threads; use AddThread to
// populate it before use.
func NewFake() *Fake {
	return &Fake{
		scripts:   make(map[int]*FakeScript),
		cursor:    make(map[int]int),
		current:   make(map[int]FakeStop),
		TimeoutOn: make(map[Trigger]bool),
		ErrorOn:   make(map[Trigger]bool),
	}
}

// ScriptFor returns the live FakeScript for tid, so a test can append
// additional scripted steps after the thread has already been created.
func (f *Fake) ScriptFor(tid int) *FakeScript {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scripts[tid]
}

// AddThread registers a new scripted thread and returns its global id
// (1-based, matching GDB's own numbering).
func (f *Fake) AddThread(script FakeScript) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	tid := len(f.order) + 1
	f.scripts[tid] = &script
	f.cursor[tid] = 0
	f.current[tid] = script.Start
	f.order = append(f.order, tid)
	if f.selected == 0 {
		f.selected = tid
	}
	for _, cb := range f.newThreadCBs {
		cb()
	}
	return tid
}

func (f *Fake) LoadExecutable(string) error        { return nil }
func (f *Fake) SetArgs([]string) error              { return nil }
func (f *Fake) Start() error                        { return nil }
func (f *Fake) Quit() error                         { return nil }
func (f *Fake) ApplyStandardOptions() error         { return nil }
func (f *Fake) InstallCloneCatchpoint() error       { return nil }
func (f *Fake) SkipFunction(string) error           { return nil }
func (f *Fake) HandleSignal(string, bool, bool) error { return nil }
func (f *Fake) LineTableDump() (string, error)      { return f.LineTable, nil }

func (f *Fake) LoadBaseAddress(string) (uint64, bool, error) {
	return f.BaseAddr, f.BaseOK, nil
}

func (f *Fake) OnNewThread(cb func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.newThreadCBs = append(f.newThreadCBs, cb)
}

func (f *Fake) SelectedThread() Thread {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.selected == 0 {
		return nil
	}
	return &fakeThread{fake: f, num: f.selected}
}

func (f *Fake) ListThreads() []Thread {
	f.mu.Lock()
	defer f.mu.Unlock()
	threads := make([]Thread, 0, len(f.order))
	for _, tid := range f.order {
		threads = append(threads, &fakeThread{fake: f, num: tid})
	}
	return threads
}

func (f *Fake) SwitchThread(globalNum int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.scripts[globalNum]; !ok {
		return false
	}
	f.selected = globalNum
	return true
}

func (f *Fake) IsLive() bool {
	for _, t := range f.ListThreads() {
		if t.IsValid() {
			return true
		}
	}
	return false
}

func (f *Fake) isValid(tid int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, ok := f.current[tid]
	return ok && !cur.Exited
}

func (f *Fake) NewestFrame() (Frame, error) {
	f.mu.Lock()
	tid := f.selected
	cur, ok := f.current[tid]
	f.mu.Unlock()
	if !ok || cur.Exited {
		return nil, fmt.Errorf("adapter: no live frame for thread %d", tid)
	}
	name := ""
	if cur.Clone {
		name = "clone"
	}
	return &fakeFrame{name: name, pc: cur.PC, file: cur.File, line: cur.Line, hasLine: cur.HasLine}, nil
}

func (f *Fake) ReadRegister(name string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur := f.current[f.selected]
	return cur.PC, nil
}

func (f *Fake) ReadMemory(addr uint64, n int) ([]byte, error) { return make([]byte, n), nil }
func (f *Fake) WriteMemory(uint64, []byte) error              { return nil }

func (f *Fake) SetBreakpoint(location string, internal, temporary, silent bool) (Breakpoint, error) {
	bp := &fakeBreakpoint{location: location}
	f.mu.Lock()
	f.breakpoints = append(f.breakpoints, bp)
	f.mu.Unlock()
	return bp, nil
}

func (f *Fake) Execute(cmd string) (string, error) {
	result, _, err := f.ExecuteWithTimeout(cmd, 0)
	if result == Failed {
		return "", err
	}
	return "", nil
}

// ExecuteWithTimeout advances the selected thread's script cursor by one
// step for stepping-style commands (step/next/finish/continue); any other
// command (option setters, "skip foo", and so on) is a no-op success.
func (f *Fake) ExecuteWithTimeout(cmd string, _ time.Duration) (ExecResult, string, error) {
	f.mu.Lock()
	tid := f.selected
	f.Log = append(f.Log, fmt.Sprintf("%d:%s", tid, cmd))
	trigger := Trigger{Tid: tid, Cmd: cmd}
	if f.TimeoutOn[trigger] {
		delete(f.TimeoutOn, trigger)
		f.mu.Unlock()
		return Timeout, "", ErrTimeout
	}
	if f.ErrorOn[trigger] {
		delete(f.ErrorOn, trigger)
		f.mu.Unlock()
		return Failed, "", fmt.Errorf("fake: scripted error on %q", cmd)
	}

	stepping := cmd == "step" || cmd == "next" || cmd == "finish" || cmd == "continue"
	if !stepping {
		f.mu.Unlock()
		return Success, "", nil
	}

	script := f.scripts[tid]
	idx := f.cursor[tid]
	if script == nil || idx >= len(script.Steps) {
		f.mu.Unlock()
		return Failed, "", fmt.Errorf("fake: thread %d script exhausted at %q", tid, cmd)
	}
	next := script.Steps[idx]
	f.cursor[tid] = idx + 1
	f.current[tid] = next
	f.mu.Unlock()
	return Success, "", nil
}

type fakeThread struct {
	fake *Fake
	num  int
}

func (t *fakeThread) GlobalNum() int { return t.num }
func (t *fakeThread) IsValid() bool  { return t.fake.isValid(t.num) }

type fakeFrame struct {
	name    string
	pc      uint64
	file    string
	line    int
	hasLine bool
}

func (f *fakeFrame) Name() string { return f.name }
func (f *fakeFrame) PC() uint64   { return f.pc }
func (f *fakeFrame) FindSourceLocation() (string, int, bool) {
	return f.file, f.line, f.hasLine
}
func (f *fakeFrame) Block() (Block, bool)   { return Block{}, false }
func (f *fakeFrame) Older() (Frame, bool)   { return nil, false }

type fakeBreakpoint struct {
	location string
	deleted  bool
}

func (b *fakeBreakpoint) Delete() error { b.deleted = true; return nil }
func (b *fakeBreakpoint) IsValid() bool { return !b.deleted }
