package lineinfo

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rb130/gdb-trace/internal/adapter"
	"github.com/rb130/gdb-trace/internal/pathutil"
)

// LineTable is the global, frozen, sorted, deduplicated set of breakable
// (file, line, address) triples restricted to the configured source
// directory.
type LineTable struct {
	entries []FileLine
}

var (
	symtabLine = regexp.MustCompile(`symtab: (.*?) \(\(struct`)
	objfileLine = regexp.MustCompile(`^objfile: `)
	indexLine   = regexp.MustCompile(`^INDEX `)
)

// LoadLineTable queries the debugger's internal line-table dump and keeps
// only entries whose source file exists on disk and lies under srcdir.
// END/zero line sentinels are dropped. The result is sorted and
// deduplicated on (Filename, Line).
func LoadLineTable(dbg adapter.Debugger, srcdir string) (*LineTable, error) {
	absSrcdir, err := pathutil.AbsSrcdir(srcdir)
	if err != nil {
		return nil, err
	}
	dump, err := dbg.LineTableDump()
	if err != nil {
		return nil, err
	}

	byKey := make(map[FileLine]FileLine)
	var curFile string
	var listing bool

	for _, line := range strings.Split(dump, "\n") {
		if line == "" {
			continue
		}
		switch {
		case objfileLine.MatchString(line):
			curFile, listing = "", false
		case strings.HasPrefix(line, "symtab: "):
			m := symtabLine.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			file := m[1]
			if !pathutil.Contains(absSrcdir, file) {
				curFile = ""
				continue
			}
			curFile = file
		case indexLine.MatchString(line):
			listing = true
		case listing:
			fields := strings.Fields(line)
			if len(fields) < 3 {
				continue
			}
			lineNumStr, addrStr := fields[1], fields[2]
			if lineNumStr == "END" || lineNumStr == "0" {
				continue
			}
			lineNum, err := strconv.Atoi(lineNumStr)
			if err != nil {
				continue
			}
			addr, err := strconv.ParseUint(strings.TrimPrefix(addrStr, "0x"), 16, 64)
			if err != nil {
				continue
			}
			if curFile == "" {
				continue
			}
			fl := FileLine{Filename: curFile, Line: lineNum, Address: addr}
			key := FileLine{Filename: fl.Filename, Line: fl.Line}
			if existing, ok := byKey[key]; !ok || fl.Address < existing.Address {
				byKey[key] = fl
			}
		}
	}

	entries := make([]FileLine, 0, len(byKey))
	for _, fl := range byKey {
		entries = append(entries, fl)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Less(entries[j]) })

	return &LineTable{entries: entries}, nil
}

// Entries exposes the frozen, sorted table (read-only use expected).
func (t *LineTable) Entries() []FileLine { return t.entries }

// Lookup returns the exact (Filename, Line) match, if any.
func (t *LineTable) Lookup(filename string, line int) (FileLine, bool) {
	key := FileLine{Filename: filename, Line: line}
	i := sort.Search(len(t.entries), func(i int) bool { return !t.entries[i].Less(key) })
	if i < len(t.entries) && t.entries[i].Equal(key) {
		return t.entries[i], true
	}
	return FileLine{}, false
}

// BreakPosition takes a FileLine expressed relative to srcdir (the
// Replayer's internal representation, matching the trace log wire format),
// joins it back against srcdir, and returns the smallest table entry that
// is >= that key under the (Filename, Line) ordering — normalized back to
// srcdir-relative — or ok=false past the end of the table.
//
// This is the canonical "what would a breakpoint at file:line actually
// bind to" oracle the Replayer uses for every equality check between a
// recorded and a current position. It is monotone by construction
// (sort.Search over a sorted slice).
func (t *LineTable) BreakPosition(relFileLine FileLine, srcdir string) (FileLine, bool) {
	abs := pathutil.JoinUnderSrcdir(srcdir, relFileLine.Filename)
	key := FileLine{Filename: abs, Line: relFileLine.Line}
	i := sort.Search(len(t.entries), func(i int) bool { return !t.entries[i].Less(key) })
	if i >= len(t.entries) {
		return FileLine{}, false
	}
	return t.entries[i].RelativeTo(srcdir), true
}

// LinesInRange returns every line in the table whose Address falls within
// [start, end), used by the Tracer to enumerate a skipped function's lines
// for the blacklist dump.
func (t *LineTable) LinesInRange(filename string, start, end uint64) []int {
	var lines []int
	for _, e := range t.entries {
		if e.Filename == filename && e.Address >= start && e.Address < end {
			lines = append(lines, e.Line)
		}
	}
	return lines
}
