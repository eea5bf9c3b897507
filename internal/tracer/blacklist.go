package tracer

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"sync"
)

// blacklist tracks filename -> set<line> of source points the Tracer has
// decided to skip, mirrored durably to a blacklist file so a later
// inspection of the run can see which functions were skipped and why.
type blacklist struct {
	mu     sync.Mutex
	lines  map[string]map[int]bool
	writer *bufio.Writer
	file   *os.File
}

func newBlacklist(path string) (*blacklist, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &blacklist{
		lines:  make(map[string]map[int]bool),
		writer: bufio.NewWriter(f),
		file:   f,
	}, nil
}

// add records lines under absFilename — the Tracer's internal, absolute
// FileLine representation, matching what contains() is later queried with —
// and appends one line to the durable blacklist file using relFilename
// (srcdir-relative, for a human reading blacklist.txt):
// "<relative_path>: [<line>, <line>, ...]".
func (b *blacklist) add(absFilename, relFilename string, lines []int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	set, ok := b.lines[absFilename]
	if !ok {
		set = make(map[int]bool)
		b.lines[absFilename] = set
	}
	for _, l := range lines {
		set[l] = true
	}

	sorted := append([]int{}, lines...)
	sort.Ints(sorted)
	if _, err := fmt.Fprintf(b.writer, "%s: %s\n", relFilename, formatIntList(sorted)); err != nil {
		return err
	}
	return b.writer.Flush()
}

// contains reports whether (filename, line) — filename in the Tracer's
// internal absolute representation — has already been blacklisted.
func (b *blacklist) contains(filename string, line int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.lines[filename]
	if !ok {
		return false
	}
	return set[line]
}

func (b *blacklist) close() error {
	if err := b.writer.Flush(); err != nil {
		return err
	}
	return b.file.Close()
}

func formatIntList(vals []int) string {
	out := "["
	for i, v := range vals {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%d", v)
	}
	return out + "]"
}
