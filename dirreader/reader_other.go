//go:build windows || plan9 || js

package dirreader

import (
	"io"
	"io/fs"
	"os"

	"github.com/danie-dejager/bfs/ioq"
)

// readBatch mirrors reader_unix_other.go's batching constant.
const readBatch = 256

// otherReader backs platforms with neither *at(2) syscalls nor a raw fd
// concept ioq can hand across package boundaries (windows, plan9, js).
// ioq represents an "open directory" as a synthetic int handle backed by
// an *os.File in its own table; Fd() here always reports -1 since there
// is no real descriptor to offer the FD cache.
type otherReader struct {
	f       *os.File
	entries []os.DirEntry
	idx     int
	done    bool
}

// OpenAt ignores dirfd/name in favor of fullPath, same rationale as
// reader_unix_other.go.
func OpenAt(dirfd int, name string, fullPath string) (Reader, error) {
	f, err := os.Open(fullPath)
	if err != nil {
		return nil, err
	}
	return &otherReader{f: f}, nil
}

// FromFD resolves the synthetic handle ioq's OPEN request returned back to
// the *os.File it was registered against, so the directory isn't reopened.
func FromFD(fd int, fullPath string) (Reader, error) {
	f, ok := ioq.LookupHandle(fd)
	if !ok {
		return nil, os.ErrClosed
	}
	return &otherReader{f: f}, nil
}

func typeFromMode(mode fs.FileMode) EntryType {
	switch {
	case mode&fs.ModeSymlink != 0:
		return TypeSymlink
	case mode.IsDir():
		return TypeDir
	case mode.IsRegular():
		return TypeRegular
	default:
		return TypeOther
	}
}

func (r *otherReader) Next() (Entry, error) {
	for {
		if r.idx >= len(r.entries) {
			if r.done {
				return Entry{}, io.EOF
			}
			ents, err := r.f.ReadDir(readBatch)
			if err != nil && err != io.EOF {
				return Entry{}, err
			}
			if len(ents) == 0 {
				r.done = true
				return Entry{}, io.EOF
			}
			r.entries = ents
			r.idx = 0
			continue
		}
		e := r.entries[r.idx]
		r.idx++
		name := e.Name()
		if name == "." || name == ".." {
			continue
		}
		return Entry{Name: name, Type: typeFromMode(e.Type())}, nil
	}
}

func (r *otherReader) Fd() int { return -1 }

// Close does not close the handle (ownership passes to the caller, via
// ioq's CLOSE request releasing it from the handle table); there is
// nothing else to release.
func (r *otherReader) Close() error { return nil }
