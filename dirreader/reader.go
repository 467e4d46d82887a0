// Package dirreader wraps the platform directory-iteration primitive
// behind a uniform interface (spec §4.5): open_from(fd, name), next(),
// close(). On Linux it bypasses libc's buffered readdir(3) and reads
// getdents64(2) directly so the type hint in d_type is available without a
// stat; other platforms use the standard library's directory iteration and
// take the type hint from os.DirEntry.Type().
package dirreader

import "io"

// EntryType mirrors the handful of d_type values bftw actually needs to
// make a descend/no-descend decision without a stat.
type EntryType uint8

// Entry types a Reader can report without the caller stat-ing.
const (
	TypeUnknown EntryType = iota
	TypeRegular
	TypeDir
	TypeSymlink
	TypeOther
)

// Entry is one name returned by a directory stream, together with its
// type hint if the platform could supply one for free.
type Entry struct {
	Name string
	Type EntryType
}

// ErrEOF is returned by Next when the stream is exhausted; it is io.EOF so
// callers can use the standard idiom.
var ErrEOF = io.EOF

// Reader reads directory entries one at a time. It is not safe for
// concurrent use — spec §5 places the directory reader entirely on the
// consumer side of the engine.
type Reader interface {
	// Next returns the next entry, or io.EOF once the stream is
	// exhausted (spec §3 "sealed flag set when readdir has returned
	// EOF").
	Next() (Entry, error)
	// Fd returns the underlying directory file descriptor so the caller
	// can hand it to the FD cache once reading completes, or -1 if the
	// platform has no such descriptor to offer (see reader_other.go).
	Fd() int
	// Close releases the stream's resources. Safe to call after EOF;
	// Close does not also close Fd() — ownership of the descriptor
	// passes to the caller per spec invariant 1 ("no descriptor leaked
	// on any error path").
	Close() error
}
