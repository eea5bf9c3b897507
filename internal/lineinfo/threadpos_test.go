package lineinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseThreadPosRoundTrip(t *testing.T) {
	cases := []ThreadPos{
		{Tid: 1, LineLoc: Before, FileLine: &FileLine{Filename: "main.c", Line: 12}},
		{Tid: 2, LineLoc: Middle, FileLine: &FileLine{Filename: "a/b.c", Line: 7}},
		{Tid: 3, LineLoc: Before, FileLine: nil},
	}
	for _, want := range cases {
		line := want.String()
		got, ok := ParseThreadPos(line)
		require.True(t, ok, "line %q should parse", line)
		assert.Equal(t, want.Tid, got.Tid)
		assert.Equal(t, want.LineLoc, got.LineLoc)
		if want.FileLine == nil {
			assert.Nil(t, got.FileLine)
		} else {
			require.NotNil(t, got.FileLine)
			assert.Equal(t, *want.FileLine, *got.FileLine)
		}
	}
}

func TestParseThreadPosRejectsGarbage(t *testing.T) {
	for _, line := range []string{"", "not a line", "1 = ", "x = None"} {
		_, ok := ParseThreadPos(line)
		assert.False(t, ok, "line %q should not parse", line)
	}
}

func TestParseThreadPosKeepsAfterAsData(t *testing.T) {
	tpos, ok := ParseThreadPos("5 - None")
	require.True(t, ok)
	assert.Equal(t, After, tpos.LineLoc)
}
