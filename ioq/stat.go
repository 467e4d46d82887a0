package ioq

// Stat is the subset of stat(2) fields the engine actually consults
// (device+inode for symlink-loop detection per spec §8, mode/size/nlink
// for everything else a caller's lazy Entry.Stat() might want). Keeping
// this as our own small cross-platform struct, rather than exposing
// golang.org/x/sys/unix.Stat_t directly on the cross-platform Result type,
// keeps ioq's public API compiling on platforms x/sys/unix does not cover
// (Windows, plan9, js), where the requests are served by os.Stat/os.Lstat
// on the full path instead — see syscalls_unix.go / syscalls_other.go.
type Stat struct {
	Dev   uint64
	Ino   uint64
	Mode  uint32
	Size  int64
	Nlink uint64
}

// IsDir reports whether Mode's type bits indicate a directory.
func (s *Stat) IsDir() bool { return s.Mode&sIFMT == sIFDIR }

// IsSymlink reports whether Mode's type bits indicate a symbolic link.
func (s *Stat) IsSymlink() bool { return s.Mode&sIFMT == sIFLNK }

// IsRegular reports whether Mode's type bits indicate a regular file.
func (s *Stat) IsRegular() bool { return s.Mode&sIFMT == sIFREG }

// POSIX file-type bits, stable across the unix platforms this module
// targets; kept local so this file has no platform-specific import.
const (
	sIFMT  = 0170000
	sIFDIR = 0040000
	sIFLNK = 0120000
	sIFREG = 0100000
)
