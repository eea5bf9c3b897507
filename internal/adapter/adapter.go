package adapter

import "time"

// Thread is an opaque handle to one inferior thread known to the debugger.
type Thread interface {
	GlobalNum() int
	IsValid() bool
}

// Block describes the address range of the function a frame belongs to.
// The Tracer's blacklist construction uses Start/End to list a skipped
// function's lines from the line table; Lines is not filled in by the
// adapters in this package.
type Block struct {
	FunctionName string
	Start, End   uint64
	Lines        []int
}

// Frame is one entry of a thread's call stack.
type Frame interface {
	Name() string
	PC() uint64
	// FindSourceLocation resolves this frame's (file, line) via the
	// debugger's own symbolic address lookup; ok is false when the frame
	// has no associated source line (e.g. library code with no debug info).
	FindSourceLocation() (filename string, line int, ok bool)
	// Block returns the enclosing function's block, when resolvable.
	Block() (Block, bool)
	// Older returns the next frame up the stack, or ok=false at the
	// outermost frame.
	Older() (Frame, bool)
}

// Breakpoint is a handle to a breakpoint installed in the debugger.
type Breakpoint interface {
	Delete() error
	IsValid() bool
}

// Debugger is the narrow synchronous interface the core drives the host
// debugger through. It never retries on its own; callers classify failures
// via the ExecResult returned by ExecuteWithTimeout.
type Debugger interface {
	LoadExecutable(path string) error
	SetArgs(argv []string) error
	Start() error
	Quit() error
	// ApplyStandardOptions installs the option set the core requires once at
	// start (follow-fork=parent, scheduler-locking=on, and so on).
	ApplyStandardOptions() error

	// Execute runs a debugger command to completion with no timeout.
	Execute(cmd string) (string, error)
	// ExecuteWithTimeout runs cmd, delivering a cooperative interrupt to the
	// debugger if it has not completed within timeout. output is only
	// meaningful when result == Success.
	ExecuteWithTimeout(cmd string, timeout time.Duration) (result ExecResult, output string, err error)

	SelectedThread() Thread
	ListThreads() []Thread
	SwitchThread(globalNum int) bool
	// IsLive reports whether any inferior thread is still valid.
	IsLive() bool

	NewestFrame() (Frame, error)

	ReadRegister(name string) (uint64, error)
	ReadMemory(addr uint64, n int) ([]byte, error)
	WriteMemory(addr uint64, data []byte) error

	SetBreakpoint(location string, internal, temporary, silent bool) (Breakpoint, error)

	// LoadBaseAddress resolves the load address of the named executable
	// image; ok is false when the debugger cannot resolve it.
	LoadBaseAddress(path string) (addr uint64, ok bool, err error)

	InstallCloneCatchpoint() error
	// OnNewThread registers a callback invoked (from the debugger's own
	// goroutine) whenever a new inferior thread is observed.
	OnNewThread(cb func())
	SkipFunction(name string) error

	// HandleSignal configures how the inferior's delivery of sig is
	// reported to the driver (used by the Replayer to let SIGSEGV/SIGILL/
	// SIGABRT reach the inferior's own handling undisturbed).
	HandleSignal(sig string, stop, pass bool) error

	// LineTableDump returns the raw "maintenance info line-table" style
	// dump the line-table loader parses.
	LineTableDump() (string, error)
}
