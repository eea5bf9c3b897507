package adapter

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	gdbmi "github.com/cyrus-and/gdb"
	"github.com/sirupsen/logrus"
)

// MI is the production Debugger implementation, driving a real GDB process
// over its machine-interface protocol via github.com/cyrus-and/gdb — the
// same session wrapper the teacher project uses to talk to GDB.
type MI struct {
	session *gdbmi.Gdb
	log     *logrus.Entry

	mu            sync.Mutex
	newThreadCBs  []func()
	knownThreads  map[int]bool
	selectedThread int
}

// NewMI spawns `gdb -q -nx <extra...> --interpreter=mi2` and wires up
// notification dispatch. extra is placed before the interpreter flag,
// mirroring the teacher's own gdbArgs construction (quiet, no init files,
// machine interface last).
func NewMI(gdbPath string, extra []string, log *logrus.Entry) (*MI, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	m := &MI{
		log:          log.WithField("component", "adapter"),
		knownThreads: make(map[int]bool),
	}
	args := append([]string{gdbPath, "-q", "-nx"}, extra...)
	args = append(args, "--interpreter=mi2")

	session, err := gdbmi.NewCmd(args, m.onNotification)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDebuggerUnavailable, err)
	}
	m.session = session
	return m, nil
}

func (m *MI) onNotification(notification map[string]interface{}) {
	class, _ := notification["class"].(string)
	switch class {
	case "thread-created":
		m.mu.Lock()
		cbs := append([]func(){}, m.newThreadCBs...)
		m.mu.Unlock()
		for _, cb := range cbs {
			cb()
		}
	case "stopped":
		reason, _ := notification["payload"].(map[string]interface{})["reason"].(string)
		m.log.WithField("reason", reason).Debug("inferior stopped")
	}
}

func (m *MI) OnNewThread(cb func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.newThreadCBs = append(m.newThreadCBs, cb)
}

func (m *MI) LoadExecutable(path string) error {
	_, err := m.mi("file-exec-and-symbols", path)
	return err
}

func (m *MI) SetArgs(argv []string) error {
	quoted := make([]string, len(argv))
	for i, a := range argv {
		quoted[i] = strconv.Quote(a)
	}
	_, err := m.console("set args " + strings.Join(quoted, " "))
	return err
}

func (m *MI) Start() error {
	if _, err := m.console("set startup-with-shell on"); err != nil {
		return err
	}
	if _, err := m.console("set non-stop off"); err != nil {
		return err
	}
	_, err := m.mi("exec-run", "--start")
	return err
}

func (m *MI) Quit() error {
	_, err := m.session.Exit()
	return err
}

// console runs an arbitrary CLI-syntax command by wrapping it in an MI
// console interpreter-exec, exactly the idiom the teacher's own
// sendGdbCommand helper used for raw CLI strings over the MI channel.
func (m *MI) console(cmd string) (map[string]interface{}, error) {
	return m.session.Send("interpreter-exec", "console", strconv.Quote(cmd))
}

func (m *MI) mi(operation string, args ...string) (map[string]interface{}, error) {
	return m.session.Send(operation, args...)
}

func (m *MI) Execute(cmd string) (string, error) {
	result, err := m.console(cmd)
	if err != nil {
		return "", &DebuggerError{Cmd: cmd, Err: err}
	}
	return formatPayload(result), nil
}

func (m *MI) ExecuteWithTimeout(cmd string, timeout time.Duration) (ExecResult, string, error) {
	type outcome struct {
		out string
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		out, err := m.Execute(cmd)
		done <- outcome{out, err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case o := <-done:
		if o.err != nil {
			return Failed, "", o.err
		}
		return Success, o.out, nil
	case <-timer.C:
		if err := m.session.Interrupt(); err != nil {
			m.log.WithError(err).Warn("failed to deliver cooperative interrupt")
		}
		<-done // absorb the now-interrupted command so the session stays in sync
		return Timeout, "", ErrTimeout
	}
}

func formatPayload(result map[string]interface{}) string {
	if result == nil {
		return ""
	}
	if payload, ok := result["payload"]; ok {
		return fmt.Sprintf("%v", payload)
	}
	return ""
}

func (m *MI) SelectedThread() Thread {
	result, err := m.mi("thread-info")
	if err != nil {
		return nil
	}
	payload, _ := result["payload"].(map[string]interface{})
	idStr, _ := payload["current-thread-id"].(string)
	id, err := strconv.Atoi(idStr)
	if err != nil {
		return nil
	}
	return &miThread{adapter: m, num: id}
}

func (m *MI) ListThreads() []Thread {
	result, err := m.mi("thread-info")
	if err != nil {
		return nil
	}
	payload, _ := result["payload"].(map[string]interface{})
	list, _ := payload["threads"].([]interface{})
	threads := make([]Thread, 0, len(list))
	for _, raw := range list {
		t, _ := raw.(map[string]interface{})
		idStr, _ := t["id"].(string)
		id, err := strconv.Atoi(idStr)
		if err != nil {
			continue
		}
		state, _ := t["state"].(string)
		threads = append(threads, &miThread{adapter: m, num: id, validHint: state != "exited"})
	}
	return threads
}

func (m *MI) SwitchThread(globalNum int) bool {
	_, err := m.mi("thread-select", strconv.Itoa(globalNum))
	if err != nil {
		return false
	}
	m.mu.Lock()
	m.selectedThread = globalNum
	m.mu.Unlock()
	return true
}

func (m *MI) IsLive() bool {
	for _, t := range m.ListThreads() {
		if t.IsValid() {
			return true
		}
	}
	return false
}

func (m *MI) NewestFrame() (Frame, error) {
	result, err := m.mi("stack-list-frames")
	if err != nil {
		return nil, &DebuggerError{Cmd: "stack-list-frames", Err: err}
	}
	payload, _ := result["payload"].(map[string]interface{})
	stack, _ := payload["stack"].([]interface{})
	frames := make([]*miFrame, 0, len(stack))
	for _, raw := range stack {
		entry, _ := raw.(map[string]interface{})
		frame, _ := entry["frame"].(map[string]interface{})
		frames = append(frames, frameFromMI(m, frame))
	}
	for i := range frames {
		if i+1 < len(frames) {
			frames[i].older = frames[i+1]
		}
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("adapter: no frames")
	}
	return frames[0], nil
}

func frameFromMI(m *MI, frame map[string]interface{}) *miFrame {
	name, _ := frame["func"].(string)
	addrStr, _ := frame["addr"].(string)
	pc, _ := strconv.ParseUint(strings.TrimPrefix(addrStr, "0x"), 16, 64)
	file, _ := frame["fullname"].(string)
	lineStr, _ := frame["line"].(string)
	line, _ := strconv.Atoi(lineStr)
	return &miFrame{
		adapter: m,
		name:    name,
		pc:      pc,
		file:    file,
		line:    line,
		hasLine: file != "" && line != 0,
	}
}

func (m *MI) ReadRegister(name string) (uint64, error) {
	result, err := m.mi("data-evaluate-expression", "$"+name)
	if err != nil {
		return 0, &DebuggerError{Cmd: "data-evaluate-expression $" + name, Err: err}
	}
	payload, _ := result["payload"].(map[string]interface{})
	value, _ := payload["value"].(string)
	value = strings.TrimSpace(value)
	if idx := strings.Index(value, " "); idx > 0 {
		value = value[:idx]
	}
	value = strings.TrimPrefix(value, "0x")
	v, err := strconv.ParseUint(value, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("adapter: could not parse register value %q: %w", value, err)
	}
	return v, nil
}

func (m *MI) ReadMemory(addr uint64, n int) ([]byte, error) {
	result, err := m.mi("data-read-memory-bytes", fmt.Sprintf("0x%x", addr), strconv.Itoa(n))
	if err != nil {
		return nil, &DebuggerError{Cmd: "data-read-memory-bytes", Err: err}
	}
	payload, _ := result["payload"].(map[string]interface{})
	memory, _ := payload["memory"].([]interface{})
	if len(memory) == 0 {
		return nil, fmt.Errorf("adapter: empty memory read at 0x%x", addr)
	}
	block, _ := memory[0].(map[string]interface{})
	contents, _ := block["contents"].(string)
	out := make([]byte, 0, len(contents)/2)
	for i := 0; i+1 < len(contents); i += 2 {
		b, err := strconv.ParseUint(contents[i:i+2], 16, 8)
		if err != nil {
			return nil, err
		}
		out = append(out, byte(b))
	}
	return out, nil
}

func (m *MI) WriteMemory(addr uint64, data []byte) error {
	hex := make([]byte, len(data)*2)
	const digits = "0123456789abcdef"
	for i, b := range data {
		hex[i*2] = digits[b>>4]
		hex[i*2+1] = digits[b&0xf]
	}
	_, err := m.mi("data-write-memory-bytes", fmt.Sprintf("0x%x", addr), string(hex))
	if err != nil {
		return &DebuggerError{Cmd: "data-write-memory-bytes", Err: err}
	}
	return nil
}

func (m *MI) SetBreakpoint(location string, internal, temporary, silent bool) (Breakpoint, error) {
	args := []string{}
	if temporary {
		args = append(args, "-t")
	}
	args = append(args, location)
	result, err := m.mi("break-insert", args...)
	if err != nil {
		return nil, &DebuggerError{Cmd: "break-insert " + location, Err: err}
	}
	payload, _ := result["payload"].(map[string]interface{})
	bkpt, _ := payload["bkpt"].(map[string]interface{})
	number, _ := bkpt["number"].(string)
	return &miBreakpoint{adapter: m, number: number}, nil
}

func (m *MI) LoadBaseAddress(path string) (uint64, bool, error) {
	result, err := m.console("info proc mappings")
	if err != nil {
		return 0, false, &DebuggerError{Cmd: "info proc mappings", Err: err}
	}
	text := formatPayload(result)
	base := firstHexBeforeSubstring(text, path)
	if base == 0 {
		return 0, false, nil
	}
	return base, true, nil
}

func firstHexBeforeSubstring(text, needle string) uint64 {
	for _, line := range strings.Split(text, "\\n") {
		if !strings.Contains(line, needle) {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		v, err := strconv.ParseUint(strings.TrimPrefix(fields[0], "0x"), 16, 64)
		if err == nil {
			return v
		}
	}
	return 0
}

func (m *MI) InstallCloneCatchpoint() error {
	_, err := m.console("catch syscall clone")
	if err != nil {
		return &DebuggerError{Cmd: "catch syscall clone", Err: err}
	}
	return nil
}

func (m *MI) SkipFunction(name string) error {
	_, err := m.console("skip " + name)
	if err != nil {
		return &DebuggerError{Cmd: "skip " + name, Err: err}
	}
	return nil
}

func (m *MI) HandleSignal(sig string, stop, pass bool) error {
	stopWord, passWord := "stop", "pass"
	if !stop {
		stopWord = "nostop"
	}
	if !pass {
		passWord = "nopass"
	}
	_, err := m.console(fmt.Sprintf("handle %s %s %s", sig, stopWord, passWord))
	if err != nil {
		return &DebuggerError{Cmd: "handle " + sig, Err: err}
	}
	return nil
}

func (m *MI) LineTableDump() (string, error) {
	result, err := m.console("maintenance info line-table")
	if err != nil {
		return "", &DebuggerError{Cmd: "maintenance info line-table", Err: err}
	}
	return formatPayload(result), nil
}

// ApplyStandardOptions installs the option set §4.1 requires once at start.
func (m *MI) ApplyStandardOptions() error {
	cmds := []string{
		"set follow-fork-mode parent",
		"set detach-on-fork off",
		"set follow-exec-mode new",
		"set scheduler-locking on",
		"set schedule-multiple on",
		"set print finish off",
		"set pagination off",
		"set step-mode off",
	}
	for _, c := range cmds {
		if _, err := m.console(c); err != nil {
			return &DebuggerError{Cmd: c, Err: err}
		}
	}
	return nil
}

type miThread struct {
	adapter   *MI
	num       int
	validHint bool
}

func (t *miThread) GlobalNum() int { return t.num }

func (t *miThread) IsValid() bool {
	for _, other := range t.adapter.ListThreads() {
		if other.GlobalNum() == t.num {
			return true
		}
	}
	return false
}

type miFrame struct {
	adapter *MI
	name    string
	pc      uint64
	file    string
	line    int
	hasLine bool
	older   *miFrame
}

func (f *miFrame) Name() string { return f.name }
func (f *miFrame) PC() uint64   { return f.pc }

func (f *miFrame) FindSourceLocation() (string, int, bool) {
	return f.file, f.line, f.hasLine
}

// Block resolves the [start, end) PC range of the frame's enclosing
// function by disassembling it. The upper bound is approximate (the start
// address of the last decoded instruction plus one byte) since MI exposes
// no direct "function size" query; callers only use it to
// select entries from the already-loaded line table, where this is
// sufficient in practice.
func (f *miFrame) Block() (Block, bool) {
	if f.name == "" {
		return Block{}, false
	}
	result, err := f.adapter.console("disassemble " + f.name)
	if err != nil {
		return Block{}, false
	}
	text := formatPayload(result)
	var start, end uint64
	first := true
	for _, line := range strings.Split(text, "\\n") {
		idx := strings.Index(line, "0x")
		if idx == -1 {
			continue
		}
		field := strings.Fields(line[idx:])
		if len(field) == 0 {
			continue
		}
		addr, err := strconv.ParseUint(strings.TrimPrefix(field[0], "0x"), 16, 64)
		if err != nil {
			continue
		}
		if first {
			start = addr
			first = false
		}
		if addr > end {
			end = addr
		}
	}
	if first {
		return Block{}, false
	}
	return Block{FunctionName: f.name, Start: start, End: end + 1}, true
}

func (f *miFrame) Older() (Frame, bool) {
	if f.older == nil {
		return nil, false
	}
	return f.older, true
}

type miBreakpoint struct {
	adapter *MI
	number  string
	deleted bool
}

func (b *miBreakpoint) Delete() error {
	if b.deleted {
		return nil
	}
	_, err := b.adapter.mi("break-delete", b.number)
	b.deleted = err == nil
	return err
}

func (b *miBreakpoint) IsValid() bool {
	return !b.deleted
}
