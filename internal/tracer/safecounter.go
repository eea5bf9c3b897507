package tracer

import "sync"

// safeCounter absorbs the host debugger's new-thread notifications, which
// arrive on the debugger's own goroutine; the scheduler drains it at the
// top of every tick. Mirrors the teacher's own SafeInt.
type safeCounter struct {
	mu  sync.Mutex
	val int
}

func (c *safeCounter) add(delta int) {
	c.mu.Lock()
	c.val += delta
	c.mu.Unlock()
}

func (c *safeCounter) fetch() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.val
}
