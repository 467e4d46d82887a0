//go:build unix && !linux

package dirreader

import (
	"io"
	"io/fs"
	"os"
)

// readBatch is how many entries unixOtherReader asks the standard library
// for per refill; large enough that a typical directory drains in one or
// two calls, small enough not to over-read a huge one.
const readBatch = 256

// unixOtherReader backs non-Linux POSIX platforms (darwin, the BSDs,
// solaris/illumos). These expose a real fd via os.File but have no
// portable getdents wrapper in the standard library, so entries come from
// (*os.File).ReadDir instead of a raw syscall; the fd itself is still
// genuine and still handed back to the caller afterward, same contract as
// the Linux reader.
type unixOtherReader struct {
	f       *os.File
	entries []os.DirEntry
	idx     int
	done    bool
}

// OpenAt has no *at(2) equivalent available through the standard library
// on these platforms, so it resolves fullPath directly (spec §4.1
// "fallback platforms synthesize full paths").
func OpenAt(dirfd int, name string, fullPath string) (Reader, error) {
	f, err := os.Open(fullPath)
	if err != nil {
		return nil, err
	}
	return &unixOtherReader{f: f}, nil
}

// FromFD wraps a directory fd the caller already obtained, instead of
// reopening it.
func FromFD(fd int, fullPath string) (Reader, error) {
	return &unixOtherReader{f: os.NewFile(uintptr(fd), fullPath)}, nil
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

func (r *unixOtherReader) Next() (Entry, error) {
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

func (r *unixOtherReader) Fd() int { return int(r.f.Fd()) }

// Close does not close the underlying fd (ownership passes to the
// caller, spec invariant 1); there is nothing else to release.
func (r *unixOtherReader) Close() error { return nil }
