package tracer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlacklistKeyedByAbsoluteFilename(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blacklist.txt")
	bl, err := newBlacklist(path)
	require.NoError(t, err)

	require.NoError(t, bl.add("/src/pkg/loop.c", "pkg/loop.c", []int{10, 11, 12}))
	require.NoError(t, bl.close())

	assert.True(t, bl.contains("/src/pkg/loop.c", 11))
	assert.False(t, bl.contains("/src/pkg/loop.c", 99))
	assert.False(t, bl.contains("pkg/loop.c", 11), "contains must be queried with the absolute form")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "pkg/loop.c: [10, 11, 12]")
}
