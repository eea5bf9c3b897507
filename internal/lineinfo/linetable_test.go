package lineinfo

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTable(entries ...FileLine) *LineTable {
	sorted := append([]FileLine{}, entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Less(sorted[j]) })
	return &LineTable{entries: sorted}
}

func TestLineTableLookupExact(t *testing.T) {
	table := buildTable(
		FileLine{Filename: "/src/a.c", Line: 10, Address: 0x100},
		FileLine{Filename: "/src/a.c", Line: 20, Address: 0x200},
	)
	fl, ok := table.Lookup("/src/a.c", 20)
	require.True(t, ok)
	assert.Equal(t, uint64(0x200), fl.Address)

	_, ok = table.Lookup("/src/a.c", 15)
	assert.False(t, ok)
}

func TestBreakPositionIsMonotone(t *testing.T) {
	srcdir := "/src"
	table := buildTable(
		FileLine{Filename: "/src/a.c", Line: 10, Address: 0x100},
		FileLine{Filename: "/src/a.c", Line: 20, Address: 0x200},
		FileLine{Filename: "/src/a.c", Line: 30, Address: 0x300},
	)

	resolved, ok := table.BreakPosition(FileLine{Filename: "a.c", Line: 15}, srcdir)
	require.True(t, ok)
	assert.Equal(t, 20, resolved.Line)
	assert.Equal(t, "a.c", resolved.Filename)

	resolved, ok = table.BreakPosition(FileLine{Filename: "a.c", Line: 20}, srcdir)
	require.True(t, ok)
	assert.Equal(t, 20, resolved.Line)

	_, ok = table.BreakPosition(FileLine{Filename: "a.c", Line: 31}, srcdir)
	assert.False(t, ok)
}

func TestLinesInRange(t *testing.T) {
	table := buildTable(
		FileLine{Filename: "/src/a.c", Line: 1, Address: 0x10},
		FileLine{Filename: "/src/a.c", Line: 2, Address: 0x20},
		FileLine{Filename: "/src/a.c", Line: 3, Address: 0x30},
		FileLine{Filename: "/src/b.c", Line: 1, Address: 0x20},
	)
	lines := table.LinesInRange("/src/a.c", 0x10, 0x30)
	assert.ElementsMatch(t, []int{1, 2}, lines)
}
