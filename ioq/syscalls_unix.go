//go:build !windows && !plan9 && !js

package ioq

import "golang.org/x/sys/unix"

// AtFDCWD and AtSymlinkNoFollow let callers outside this package (bftw's
// root bootstrap and entry classification) build requests without
// importing x/sys/unix themselves, per stat.go's rationale for keeping
// ioq's public surface buildable on platforms x/sys/unix doesn't cover.
const (
	AtFDCWD          = unix.AT_FDCWD
	AtSymlinkNoFollow = unix.AT_SYMLINK_NOFOLLOW
)

func doOpen(req *Request) (fd int, err error) {
	return unix.Openat(req.ParentFD, req.Name, unix.O_RDONLY|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
}

func doStat(req *Request) (*Stat, error) {
	var st unix.Stat_t
	if err := unix.Fstatat(req.ParentFD, req.Name, &st, req.Flags); err != nil {
		return nil, err
	}
	return statFromUnix(&st), nil
}

func statFromUnix(st *unix.Stat_t) *Stat {
	return &Stat{
		Dev:   uint64(st.Dev),
		Ino:   uint64(st.Ino),
		Mode:  uint32(st.Mode),
		Size:  int64(st.Size),
		Nlink: uint64(st.Nlink),
	}
}

func doClose(fd int) error {
	return unix.Close(fd)
}

// StatAt performs a single synchronous stat against an already-open
// directory fd, bypassing the queue. Used by the fdcache fast path of a
// lazily materialized Entry.Stat() (see bftw's makeFastStatFn): cheap when the
// parent directory's descriptor is still cached, never attempted once it
// has been evicted.
func StatAt(dirfd int, name string, fullPath string, flags int) (*Stat, error) {
	var st unix.Stat_t
	if err := unix.Fstatat(dirfd, name, &st, flags); err != nil {
		return nil, err
	}
	return statFromUnix(&st), nil
}

// StatPath performs a single synchronous stat by full path, bypassing both
// the queue and any fd. This is the fallback (and the only mechanism for
// root arguments) for Entry.Stat(): it must keep working even long after
// the directory fd that originally resolved this entry has been closed or
// evicted, since callers are free to call Entry.Stat() at any point up to
// and including after Walk has returned.
func StatPath(path string, follow bool) (*Stat, error) {
	var (
		st  unix.Stat_t
		err error
	)
	if follow {
		err = unix.Stat(path, &st)
	} else {
		err = unix.Lstat(path, &st)
	}
	if err != nil {
		return nil, err
	}
	return statFromUnix(&st), nil
}
