package replayer

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rb130/gdb-trace/internal/adapter"
	"github.com/rb130/gdb-trace/internal/lineinfo"
)

const testBase = uint64(0x400000)

// buildReplayer wires a Replayer against a Fake debugger and a line table
// loaded from a synthetic "maintenance info line-table" dump, exercising
// the real LoadLineTable parser instead of hand-building a LineTable.
// Addresses in offsets are relative to testBase so appendAnswer's
// pc-minus-load-base arithmetic never underflows.
func buildReplayer(t *testing.T, srcFile string, lines []int, offsets []uint64) (*Replayer, *adapter.Fake, string) {
	t.Helper()
	srcdir := t.TempDir()
	absFile := filepath.Join(srcdir, srcFile)
	require.NoError(t, os.WriteFile(absFile, []byte("// generated\n"), 0o644))

	dump := fmt.Sprintf("objfile: /bin/prog\nsymtab: %s ((struct x))\nINDEX  LINE   ADDRESS\n", absFile)
	for i, line := range lines {
		dump += fmt.Sprintf("%d      %d     0x%x\n", i, line, testBase+offsets[i])
	}

	fake := adapter.NewFake()
	fake.LineTable = dump
	fake.BaseAddr = testBase
	fake.BaseOK = true
	fake.AddThread(adapter.FakeScript{
		Start: adapter.FakeStop{File: absFile, Line: lines[0], PC: testBase + offsets[0], HasLine: true},
	})

	r := New(fake, srcdir, 1.0, nil)
	require.NoError(t, r.Start([]string{"/bin/prog"}))

	outPath := filepath.Join(t.TempDir(), "pc.log")
	require.NoError(t, r.Open(outPath))
	t.Cleanup(func() { r.Close() })

	return r, fake, outPath
}

func relFL(name string, line int) *lineinfo.FileLine {
	return &lineinfo.FileLine{Filename: name, Line: line}
}

func TestProcessOneRejectsAfterOnTheRecordedLine(t *testing.T) {
	r, _, _ := buildReplayer(t, "a.c", []int{10, 11, 12}, []uint64{0x1000, 0x1010, 0x1020})

	err := r.ProcessOne(lineinfo.ThreadPos{Tid: 1, LineLoc: lineinfo.After})
	require.Error(t, err)
	var invalid *InvalidLogRecord
	assert.ErrorAs(t, err, &invalid)
}

func TestProcessOneUnknownThreadErrors(t *testing.T) {
	r, _, _ := buildReplayer(t, "a.c", []int{10}, []uint64{0x1000})
	err := r.ProcessOne(lineinfo.ThreadPos{Tid: 99, LineLoc: lineinfo.Before, FileLine: relFL("a.c", 10)})
	assert.Error(t, err)
}

func TestProcessOneBeforeToBeforeIssuesRunUntil(t *testing.T) {
	r, fake, outPath := buildReplayer(t, "a.c", []int{10, 11, 12}, []uint64{0x1000, 0x1010, 0x1020})

	script := fake.ScriptFor(1)
	script.Steps = append(script.Steps, adapter.FakeStop{
		File: filepath.Join(r.srcdir, "a.c"), Line: 12, PC: testBase + 0x1020, HasLine: true,
	})

	require.NoError(t, r.ProcessOne(lineinfo.ThreadPos{Tid: 1, LineLoc: lineinfo.Before, FileLine: relFL("a.c", 12)}))

	info := r.threads[1]
	assert.Equal(t, lineinfo.Before, info.current.LineLoc)
	require.NotNil(t, info.current.FileLine)
	assert.Equal(t, "a.c", info.current.FileLine.Filename)
	assert.Equal(t, 12, info.current.FileLine.Line)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, "1: 0x1020\n", string(data))
}

func TestProcessOneMissingLineFallsBackToRunUntilExit(t *testing.T) {
	r, fake, outPath := buildReplayer(t, "a.c", []int{10}, []uint64{0x1000})

	script := fake.ScriptFor(1)
	script.Steps = append(script.Steps, adapter.FakeStop{Exited: true})

	// a.c:999 is past the last breakable line, so break_position resolves
	// to none and the Before->Before branch degrades to run_until_exit.
	require.NoError(t, r.ProcessOne(lineinfo.ThreadPos{Tid: 1, LineLoc: lineinfo.Before, FileLine: relFL("a.c", 999)}))

	info := r.threads[1]
	assert.Equal(t, lineinfo.Middle, info.current.LineLoc)
	assert.Nil(t, info.current.FileLine)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, "1: 0x0\n", string(data))
}

func TestProcessOneTimeoutDuringRunUntilErrors(t *testing.T) {
	r, fake, _ := buildReplayer(t, "a.c", []int{10, 11}, []uint64{0x1000, 0x1010})
	fake.TimeoutOn[adapter.FakeTrigger(1, "continue")] = true

	err := r.ProcessOne(lineinfo.ThreadPos{Tid: 1, LineLoc: lineinfo.Before, FileLine: relFL("a.c", 11)})
	assert.Error(t, err)
}

func TestProcessOneMiddleMiddleSameLocationRunsFinish(t *testing.T) {
	r, fake, outPath := buildReplayer(t, "a.c", []int{10, 11}, []uint64{0x1000, 0x1010})
	info := r.threads[1]
	info.current = lineinfo.ThreadPos{Tid: 1, LineLoc: lineinfo.Middle, FileLine: relFL("a.c", 10)}

	script := fake.ScriptFor(1)
	script.Steps = append(script.Steps, adapter.FakeStop{
		File: filepath.Join(r.srcdir, "a.c"), Line: 10, PC: testBase + 0x1000, HasLine: true,
	})

	require.NoError(t, r.ProcessOne(lineinfo.ThreadPos{Tid: 1, LineLoc: lineinfo.Middle, FileLine: relFL("a.c", 10)}))
	assert.Contains(t, fake.Log, "1:finish")

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, "1: 0x1000\n", string(data))
}
