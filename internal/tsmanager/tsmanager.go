// Package tsmanager implements the stateless timestamp check: given a
// classpath entry's recorded mtime (and, for directory
// entries, a specific class's recorded mtime), stat the file on disk and
// report whether it has changed.
package tsmanager

import (
	"os"
	"path/filepath"
	"strings"
)

// Protocol distinguishes the two classpath entry kinds §4.6 stamps
// differently: directory entries are stamped per-class, archive entries
// once for the whole archive.
type Protocol int

const (
	ProtocolDirectory Protocol = iota
	ProtocolArchive
)

// Entry is the minimal classpath-entry shape the timestamp check needs.
// The classpath manager owns the full ClasspathEntryItem; this is the
// slice of it tsmanager actually reads.
type Entry struct {
	Path      string
	Protocol  Protocol
	Timestamp int64 // recorded mtime in Unix nanoseconds; -1 if the entry did not exist when recorded
}

// Result is the outcome of a Check call.
type Result int

const (
	Unchanged Result = iota
	Disappeared
	DoesNotExist
	Changed
)

func (r Result) String() string {
	switch r {
	case Unchanged:
		return "unchanged"
	case Disappeared:
		return "disappeared"
	case DoesNotExist:
		return "does-not-exist"
	case Changed:
		return "changed"
	default:
		return "unknown"
	}
}

// classFilePath turns an internal-form class name ("com/foo/Bar") into the
// path of its .class file relative to a directory classpath entry.
func classFilePath(className string) string {
	className = strings.TrimPrefix(className, "/")
	return className + ".class"
}

func statMTime(path string) (int64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return -1, nil
		}
		return 0, err
	}
	return fi.ModTime().UnixNano(), nil
}

// Check stats the file backing entry and compares it against the recorded
// timestamp. For a directory entry with a non-empty className, the
// specific class file is stamped and classTimestamp (not entry.Timestamp)
// is the recorded value to compare against — a directory entry's own
// Timestamp field is meaningless, since directories are never stamped as
// a whole.
//
// Callers must not use a Watcher's "likely stale" hint in place of this
// call, only to decide whether it's worth calling it sooner.
func Check(entry Entry, className string, classTimestamp int64) (Result, int64, error) {
	path := entry.Path
	test := entry.Timestamp
	if entry.Protocol == ProtocolDirectory && className != "" {
		path = filepath.Join(entry.Path, classFilePath(className))
		test = classTimestamp
	}

	current, err := statMTime(path)
	if err != nil {
		return DoesNotExist, 0, err
	}

	if current == -1 {
		if test == -1 {
			return DoesNotExist, -1, nil
		}
		return Disappeared, -1, nil
	}
	if current == test {
		return Unchanged, current, nil
	}
	return Changed, current, nil
}
