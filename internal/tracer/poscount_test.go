package tracer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPosCountRingBufferEvictsOldest(t *testing.T) {
	pc := newPosCount()
	for i := 0; i < recentCount; i++ {
		pc.addNew("a")
	}
	assert.Equal(t, recentCount, pc.num)
	assert.Equal(t, []int{recentCount}, pc.values())

	pc.addNew("b")
	assert.Equal(t, recentCount, pc.num, "window stays capped")
	assert.ElementsMatch(t, []int{recentCount - 1, 1}, pc.values())
}

func TestPosCountClear(t *testing.T) {
	pc := newPosCount()
	pc.addNew("a")
	pc.addNew("b")
	pc.clear()
	assert.Equal(t, 0, pc.num)
	assert.Empty(t, pc.values())
}
