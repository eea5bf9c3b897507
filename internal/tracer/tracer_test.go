package tracer

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rb130/gdb-trace/internal/adapter"
	"github.com/rb130/gdb-trace/internal/lineinfo"
)

func newTestTracer(t *testing.T, dbg adapter.Debugger, table *lineinfo.LineTable) *Tracer {
	t.Helper()
	opts := DefaultOptions()
	opts.Srcdir = "/src"
	opts.LogPath = filepath.Join(t.TempDir(), "trace.log")
	opts.BlacklistPath = filepath.Join(t.TempDir(), "blacklist.txt")

	tr := New(dbg, opts, nil)
	tr.table = table

	bl, err := newBlacklist(opts.BlacklistPath)
	require.NoError(t, err)
	tr.blacklist = bl
	t.Cleanup(func() { bl.close() })
	return tr
}

func TestDetectLoopRequiresMinimumSamples(t *testing.T) {
	tr := newTestTracer(t, adapter.NewFake(), nil)
	tr.posCounts[1] = newPosCount()
	for i := 0; i < 99; i++ {
		tr.posCounts[1].addNew("x")
	}
	assert.False(t, tr.detectLoop(1), "fewer than 100 samples must never declare a loop")
}

func TestDetectLoopStrictlyLessThanThreshold(t *testing.T) {
	tr := newTestTracer(t, adapter.NewFake(), nil)
	tr.posCounts[1] = newPosCount()
	for i := 0; i < 150; i++ {
		tr.posCounts[1].addNew("x.c:10")
	}
	// Single repeated value: entropy is 0, well below log(20).
	assert.True(t, tr.detectLoop(1))
	assert.Empty(t, tr.posCounts[1].values(), "detecting a loop clears the window")
}

func TestDetectLoopEntropyExactlyAtThresholdIsNotALoop(t *testing.T) {
	tr := newTestTracer(t, adapter.NewFake(), nil)
	// A uniform distribution over N symbols has entropy exactly log(N);
	// picking LoopThreshold == N reproduces the boundary the invariant names.
	tr.opts.LoopThreshold = 4
	pc := newPosCount()
	tr.posCounts[1] = pc
	for i := 0; i < 100; i++ {
		pc.addNew(symbolFor(i % 4))
	}
	assert.False(t, tr.detectLoop(1), "entropy exactly at log(threshold) must not count as a loop")
}

func symbolFor(i int) string {
	return string(rune('a' + i))
}

func TestChooseCommandUsesContinueWhenAloneAndOnlyMultithread(t *testing.T) {
	fake := adapter.NewFake()
	fake.AddThread(adapter.FakeScript{Start: adapter.FakeStop{File: "/src/a.c", Line: 1, HasLine: true}})
	tr := newTestTracer(t, fake, nil)
	tr.opts.OnlyMultithread = true
	info := &threadInfo{thread: &solitaryThread{}, globalNum: 1, schedWeight: 1}
	tr.threads = []*threadInfo{info}
	assert.Equal(t, "continue", tr.chooseCommand(info))
}

func TestChooseCommandStepsWhenAloneByDefault(t *testing.T) {
	fake := adapter.NewFake()
	fake.AddThread(adapter.FakeScript{Start: adapter.FakeStop{File: "/src/a.c", Line: 1, HasLine: true}})
	tr := newTestTracer(t, fake, nil)
	info := &threadInfo{thread: &solitaryThread{}, globalNum: 1, schedWeight: 1}
	tr.threads = []*threadInfo{info}
	assert.Equal(t, "step", tr.chooseCommand(info))
}

func TestChooseCommandHonorsGoDeeperForFreshThread(t *testing.T) {
	fake := adapter.NewFake()
	fake.AddThread(adapter.FakeScript{Start: adapter.FakeStop{File: "/src/a.c", Line: 1, HasLine: true}})
	fake.AddThread(adapter.FakeScript{Start: adapter.FakeStop{File: "/src/a.c", Line: 1, HasLine: true}})
	tr := newTestTracer(t, fake, nil)
	tr.opts.GoDeeper = 0 // probability 0: a fresh thread always gets "next"

	info := &threadInfo{thread: &solitaryThread{}, globalNum: 1, schedWeight: 1}
	other := &threadInfo{thread: &solitaryThread{}, globalNum: 2, schedWeight: 1}
	tr.threads = []*threadInfo{info, other}
	tr.newTids[1] = true

	assert.Equal(t, "next", tr.chooseCommand(info))
}

type solitaryThread struct{}

func (solitaryThread) GlobalNum() int { return 1 }
func (solitaryThread) IsValid() bool  { return true }

func TestChooseCommandHonorsBlacklist(t *testing.T) {
	fake := adapter.NewFake()
	fake.AddThread(adapter.FakeScript{Start: adapter.FakeStop{File: "/src/a.c", Line: 1, HasLine: true}})
	fake.AddThread(adapter.FakeScript{Start: adapter.FakeStop{File: "/src/a.c", Line: 1, HasLine: true}})
	tr := newTestTracer(t, fake, nil)

	fl := &lineinfo.FileLine{Filename: "/src/a.c", Line: 10, Address: 0x10}
	require.NoError(t, tr.blacklist.add(fl.Filename, "a.c", []int{10}))

	info := &threadInfo{
		thread:      &solitaryThread{},
		globalNum:   1,
		schedWeight: 1,
		position:    lineinfo.Position{FileLine: fl, PC: 0x10},
	}
	other := &threadInfo{thread: &solitaryThread{}, globalNum: 2, schedWeight: 1}
	tr.threads = []*threadInfo{info, other}

	assert.Equal(t, "finish", tr.chooseCommand(info))
}
