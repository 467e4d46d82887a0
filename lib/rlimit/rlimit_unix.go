//go:build !windows && !plan9 && !js

// Package rlimit raises the process's RLIMIT_NOFILE soft limit to its hard
// limit where permitted, matching spec §6 ("on startup the soft
// RLIMIT_NOFILE is raised to the hard limit where permitted") and spec §9's
// note that this adjustment is a caller concern, not something the core
// does for itself.
package rlimit

import (
	"golang.org/x/sys/unix"
)

// Reserve is subtracted from the raised limit before fdcache derives its
// soft capacity, leaving headroom for stdio, the ioq's own bookkeeping
// descriptors, and whatever the host process opens outside the traversal.
const Reserve = 16

// RaiseNoFile raises RLIMIT_NOFILE's soft limit to the hard limit and
// returns the resulting (soft, hard) pair. If the raise fails (e.g. no
// permission), it returns the limit as found, unmodified, and a nil error:
// failing to raise the limit is not itself fatal, it just leaves less
// headroom for the FD cache.
func RaiseNoFile() (soft, hard uint64, err error) {
	var rlim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlim); err != nil {
		return 0, 0, err
	}
	soft, hard = rlim.Cur, rlim.Max
	if rlim.Cur >= rlim.Max {
		return soft, hard, nil
	}
	raised := rlim
	raised.Cur = raised.Max
	if err := unix.Setrlimit(unix.RLIMIT_NOFILE, &raised); err != nil {
		// Not fatal: keep going with whatever we already had.
		return soft, hard, nil
	}
	return raised.Cur, raised.Max, nil
}

// Capacity returns a sensible FD-cache soft capacity derived from the
// current RLIMIT_NOFILE, leaving Reserve descriptors for the rest of the
// process per spec §4.4 ("Soft capacity is the process's RLIMIT_NOFILE
// minus a reserve for the rest of the program").
func Capacity() (int, error) {
	soft, _, err := RaiseNoFile()
	if err != nil {
		return 0, err
	}
	cap := int(soft) - Reserve
	if cap < 1 {
		cap = 1
	}
	return cap, nil
}
