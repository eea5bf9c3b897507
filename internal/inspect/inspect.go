// Package inspect provides the interactive REPL a human runs against a
// live debugger session; the inspect subcommand starts a fresh session for
// it, separate from any trace or replay run. The prompt
// loop is adapted from the teacher's debuggerLoop: a readline prompt with a
// fixed command vocabulary, colored status lines, and a raw command escape
// hatch, rewired here to drive an adapter.Debugger directly instead of
// dispatching DBGp requests.
package inspect

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/fatih/color"

	"github.com/rb130/gdb-trace/internal/adapter"
)

// stepTimeout bounds interactive step/next/continue commands; ExecuteWithTimeout
// has no "no limit" sentinel (a zero duration fires immediately), so the REPL
// picks a generous fixed budget instead.
const stepTimeout = 30 * time.Second

const helpText = `commands:
  s            single-step the selected thread
  n            step-over (next) the selected thread
  c            continue the selected thread
  bt           print the selected thread's frame names, newest first
  threads      list known threads and which is selected
  thread <n>   switch the selected thread to global thread number n
  - <cmd>      send <cmd> to the debugger verbatim and print its output
  q            quit
  h            this help text`

// REPL drives one interactive session against dbg.
type REPL struct {
	dbg adapter.Debugger
	rl  *readline.Instance
}

// New builds a REPL with its own readline instance and history file.
func New(dbg adapter.Debugger, historyFile string) (*REPL, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:      "(gdb-trace) ",
		HistoryFile: historyFile,
	})
	if err != nil {
		return nil, err
	}
	return &REPL{dbg: dbg, rl: rl}, nil
}

// Close releases the readline instance.
func (r *REPL) Close() error {
	return r.rl.Close()
}

// Run reads commands until EOF, an interrupt, or "q".
func (r *REPL) Run() {
	color.Yellow("h <enter> for the command list")
	for {
		line, err := r.rl.Readline()
		if err == io.EOF || err == readline.ErrInterrupt {
			color.Yellow("exiting")
			return
		} else if err != nil {
			color.Red("readline error: %v", err)
			return
		}

		line = strings.TrimSpace(line)
		switch {
		case line == "":
			continue
		case line == "q":
			color.Yellow("exiting")
			return
		case line == "h":
			fmt.Println(helpText)
		case line == "s":
			r.step("step")
		case line == "n":
			r.step("next")
		case line == "c":
			r.step("continue")
		case line == "bt":
			r.backtrace()
		case line == "threads":
			r.listThreads()
		case strings.HasPrefix(line, "thread "):
			r.switchThread(strings.TrimSpace(strings.TrimPrefix(line, "thread ")))
		case strings.HasPrefix(line, "-"):
			cmd := strings.TrimSpace(strings.TrimPrefix(line, "-"))
			out, err := r.dbg.Execute(cmd)
			if err != nil {
				color.Red("error: %v", err)
				continue
			}
			fmt.Println(out)
		default:
			color.Red("unrecognized command %q, h for help", line)
		}
	}
}

func (r *REPL) step(cmd string) {
	res, _, err := r.dbg.ExecuteWithTimeout(cmd, stepTimeout)
	if err != nil {
		color.Red("%s: %v", cmd, err)
		return
	}
	if res != adapter.Success {
		color.Red("%s: %v", cmd, res)
		return
	}
	color.Green("%s ok", cmd)
}

func (r *REPL) backtrace() {
	frame, err := r.dbg.NewestFrame()
	if err != nil {
		color.Red("bt: %v", err)
		return
	}
	depth := 0
	for frame != nil {
		fmt.Printf("#%d %s\n", depth, frame.Name())
		older, ok := frame.Older()
		if !ok {
			break
		}
		frame = older
		depth++
	}
}

func (r *REPL) listThreads() {
	selected := r.dbg.SelectedThread()
	for _, th := range r.dbg.ListThreads() {
		marker := " "
		if selected != nil && th.GlobalNum() == selected.GlobalNum() {
			marker = "*"
		}
		fmt.Printf("%s %d (valid=%v)\n", marker, th.GlobalNum(), th.IsValid())
	}
}

func (r *REPL) switchThread(arg string) {
	n, err := strconv.Atoi(arg)
	if err != nil {
		color.Red("thread: %q is not a number", arg)
		return
	}
	if !r.dbg.SwitchThread(n) {
		color.Red("thread: could not switch to %d", n)
		return
	}
	color.Green("switched to thread %d", n)
}
