//go:build linux

package dirreader

import (
	"encoding/binary"
	"io"

	"golang.org/x/sys/unix"
)

// direntBufSize is sized to hold a few hundred typical dirents per
// getdents64 call without over-allocating per open directory; the reader
// refills on demand so a larger directory just calls getdents64 more
// often rather than needing a bigger buffer.
const direntBufSize = 16 * 1024

// linuxReader reads getdents64(2) directly, matching spec §4.5's
// instruction to bypass libc's buffered iteration where the raw syscall
// yields measurable savings (true on Linux; not attempted elsewhere).
type linuxReader struct {
	fd   int
	buf  [direntBufSize]byte
	n    int // valid bytes in buf
	pos  int // read position within buf
	done bool
}

// OpenAt opens the directory named name relative to dirfd (AT_FDCWD for a
// root path), matching spec §4.1 "Path construction": only the base name
// crosses the wire, the parent FD provides the anchor. fullPath is
// accepted for API symmetry with the non-openat fallback and is unused
// here.
func OpenAt(dirfd int, name string, fullPath string) (Reader, error) {
	fd, err := unix.Openat(dirfd, name, unix.O_RDONLY|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	return &linuxReader{fd: fd}, nil
}

// FromFD wraps a directory fd that the caller already obtained (via ioq's
// OPEN request), instead of opening it a second time. fullPath is accepted
// for signature symmetry with the other platform builds and is unused
// here.
func FromFD(fd int, fullPath string) (Reader, error) {
	return &linuxReader{fd: fd}, nil
}

// fill refills buf from the kernel, returning io.EOF once getdents64
// reports no more bytes (spec §3 "sealed flag set when readdir has
// returned EOF").
func (r *linuxReader) fill() error {
	n, err := unix.Getdents(r.fd, r.buf[:])
	if err != nil {
		return err
	}
	if n == 0 {
		r.done = true
		return io.EOF
	}
	r.n = n
	r.pos = 0
	return nil
}

// linux_dirent64 layout (see getdents64(2)):
//
//	u64 d_ino;
//	s64 d_off;
//	u16 d_reclen;
//	u8  d_type;
//	char d_name[];
const (
	direntInoOff    = 0
	direntOffOff    = 8
	direntReclenOff = 16
	direntTypeOff   = 18
	direntNameOff   = 19
)

func typeFromDType(dt byte) EntryType {
	switch dt {
	case unix.DT_REG:
		return TypeRegular
	case unix.DT_DIR:
		return TypeDir
	case unix.DT_LNK:
		return TypeSymlink
	case unix.DT_UNKNOWN:
		return TypeUnknown
	default:
		return TypeOther
	}
}

// Next returns the next directory entry, skipping "." and "..", and
// refilling from the kernel as needed.
func (r *linuxReader) Next() (Entry, error) {
	for {
		if r.pos >= r.n {
			if r.done {
				return Entry{}, io.EOF
			}
			if err := r.fill(); err != nil {
				return Entry{}, err
			}
			continue
		}
		rec := r.buf[r.pos:r.n]
		reclen := binary.LittleEndian.Uint16(rec[direntReclenOff : direntReclenOff+2])
		if int(reclen) == 0 || int(reclen) > len(rec) {
			// Corrupt or truncated record; stop rather than read
			// past the buffer.
			r.done = true
			return Entry{}, io.EOF
		}
		dtype := rec[direntTypeOff]
		nameBytes := rec[direntNameOff:reclen]
		// d_name is NUL-terminated within its reclen padding.
		nameEnd := 0
		for nameEnd < len(nameBytes) && nameBytes[nameEnd] != 0 {
			nameEnd++
		}
		name := string(nameBytes[:nameEnd])
		r.pos += int(reclen)
		if name == "." || name == ".." {
			continue
		}
		return Entry{Name: name, Type: typeFromDType(dtype)}, nil
	}
}

func (r *linuxReader) Fd() int { return r.fd }

func (r *linuxReader) Close() error {
	// Fd ownership passes to the caller (spec invariant 1); Close only
	// releases the read buffer, which has nothing to free in Go, so this
	// is a no-op kept for interface symmetry and future use (e.g. if the
	// buffer were pooled).
	return nil
}
