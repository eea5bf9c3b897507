// Package pathutil holds the one-off path normalization helpers the core
// relies on to convert FileLine paths between absolute form and form
// relative to the configured source directory.
package pathutil

import (
	"os"
	"path/filepath"
	"strings"
)

// AbsSrcdir returns srcdir as a cleaned absolute path with a trailing
// separator, matching the convention the line-table loader and the
// containment check both expect.
func AbsSrcdir(srcdir string) (string, error) {
	abs, err := filepath.Abs(srcdir)
	if err != nil {
		return "", err
	}
	if !strings.HasSuffix(abs, string(os.PathSeparator)) {
		abs += string(os.PathSeparator)
	}
	return abs, nil
}

// Contains reports whether filename (expected absolute) is inside the
// directory tree rooted at absSrcdir, and that the file actually exists on
// disk. absSrcdir must already end in a path separator (see AbsSrcdir).
func Contains(absSrcdir, filename string) bool {
	if info, err := os.Stat(filename); err != nil || info.IsDir() {
		return false
	}
	abs, err := filepath.Abs(filename)
	if err != nil {
		return false
	}
	return strings.HasPrefix(abs, absSrcdir)
}

// RelativeTo converts an absolute path to one relative to base. base should
// be an absolute directory path (with or without trailing separator).
func RelativeTo(path, base string) (string, error) {
	b, err := filepath.Abs(base)
	if err != nil {
		return "", err
	}
	p, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.Rel(b, p)
}

// JoinUnderSrcdir resolves a (possibly already srcdir-relative) path
// against srcdir the same way the replayer does when turning a recorded,
// normalized FileLine back into the absolute path the debugger expects.
func JoinUnderSrcdir(srcdir, relOrAbs string) string {
	if filepath.IsAbs(relOrAbs) {
		return filepath.Clean(relOrAbs)
	}
	return filepath.Clean(filepath.Join(srcdir, relOrAbs))
}
