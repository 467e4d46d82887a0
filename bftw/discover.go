package bftw

import (
	"io"

	"github.com/danie-dejager/bfs/dirreader"
	"github.com/danie-dejager/bfs/fs/fserrors"
	"github.com/danie-dejager/bfs/ioq"
	"github.com/danie-dejager/bfs/pathbuf"
)

// discoverRoot bootstraps a root argument into the discovery pipeline. A
// root's type is never known in advance, so it always takes the stat path
// (spec §4.1 "Root handling"); the outcome of "it's actually a leaf file"
// falls naturally out of the same decision tree a directory child goes
// through.
func (w *walker) discoverRoot(path string) {
	st := &subtree{fd: -1}
	st.pathBuf = pathbuf.NewRoot(path)
	st.entry = &Entry{Name: path, Depth: 0, Type: TypeUnknown, path: path}

	follow := w.followsAt(0)
	st.entry.statFn = lazyStatFn(path, follow)

	flags := ioq.AtSymlinkNoFollow
	if follow {
		flags = 0
	}
	req := w.q.NewRequest(ioq.OpStat)
	req.ParentFD = ioq.AtFDCWD
	req.Name = path
	req.FullPath = path
	req.Flags = flags
	req.Owner = st
	if err := w.submitBlocking(req); err != nil {
		w.terminate(st, err)
	}
}

// discoverChild is called once per name yielded by a subtree's directory
// stream. Entries whose type is unambiguous and not a followed symlink are
// definite leaves and fire immediately; everything else needs a stat
// before the engine can decide leaf vs. directory (and, for directories,
// learn the device/inode mount policy and cycle detection both need).
func (w *walker) discoverChild(parent *subtree, name string, hint EntryType) {
	depth := parent.entry.Depth + 1
	follow := w.followsAt(depth)
	needsStat := hint == TypeUnknown || hint == TypeDir || (hint == TypeSymlink && follow)

	if !needsStat {
		path := parent.pathBuf.Push(name)
		e := &Entry{Parent: parent.entry, Name: name, Depth: depth, Type: hint, path: path}
		e.statFn = w.makeFastStatFn(parent, name, path, false)
		if w.cfg.Flags&FlagForceStat != 0 {
			e.Stat()
		}
		ctrl := w.fireIfVisible(e, Leaf)
		parent.pathBuf.Pop()
		if ctrl == Stop {
			w.stopped = true
		}
		return
	}

	childBuf := parent.pathBuf.Child(name)
	st := &subtree{parent: parent, fd: -1, pathBuf: childBuf}
	st.entry = &Entry{Parent: parent.entry, Name: name, Depth: depth, Type: hint, path: childBuf.String()}
	parent.pendingChildren++

	flags := ioq.AtSymlinkNoFollow
	if follow {
		flags = 0
	}
	st.entry.statFn = w.makeFastStatFn(parent, name, st.entry.path, follow)

	req := w.q.NewRequest(ioq.OpStat)
	req.ParentFD = parent.fd
	req.Name = name
	req.FullPath = st.entry.path
	req.Flags = flags
	req.Owner = st
	if err := w.submitBlocking(req); err != nil {
		w.terminate(st, err)
		return
	}
	parent.outstandingAsyncOps++
}

// makeFastStatFn returns the lazy Entry.Stat() closure for a non-root
// entry: try the parent's cached fd first (cheap, openat-relative) and
// fall back to a full-path stat if the fd has since been evicted or the
// parent subtree never kept one around. This is the fdcache's reason for
// existing on the read side: without it every lazy Stat() would have to
// re-resolve the whole path from scratch.
func (w *walker) makeFastStatFn(parent *subtree, name, path string, follow bool) func() (*ioq.Stat, error) {
	flags := ioq.AtSymlinkNoFollow
	if follow {
		flags = 0
	}
	return func() (*ioq.Stat, error) {
		if fd, ok := w.cache.Acquire(parent); ok {
			defer w.cache.Release(parent)
			return ioq.StatAt(fd, name, path, flags)
		}
		return ioq.StatPath(path, follow)
	}
}

// lazyStatFn is the root-entry variant: there is no parent subtree fd to
// try, so it always takes the full-path route.
func lazyStatFn(path string, follow bool) func() (*ioq.Stat, error) {
	return func() (*ioq.Stat, error) { return ioq.StatPath(path, follow) }
}

// submitOpen issues the OPEN request for a directory candidate that has
// already been stat-resolved and cleared to descend into, resolving the
// name relative to its parent's fd while the parent subtree still holds
// it. A root, or a child whose parent's fd has already been handed to the
// FD cache, is opened by its full path relative to AT_FDCWD instead.
func (w *walker) submitOpen(st *subtree) error {
	var (
		parentFD int
		name     string
	)
	if st.parent != nil && st.parent.fd >= 0 {
		parentFD = st.parent.fd
		name = st.entry.Name
	} else {
		parentFD = ioq.AtFDCWD
		name = st.entry.path
	}
	req := w.q.NewRequest(ioq.OpOpen)
	req.ParentFD = parentFD
	req.Name = name
	req.FullPath = st.entry.path
	req.Owner = st
	if err := w.submitBlocking(req); err != nil {
		return err
	}
	w.inFlightOpens++
	if st.parent != nil {
		st.parent.outstandingAsyncOps++
	}
	return nil
}

// beginOpen is the frontier dispatch's entry point: every subtree popped
// off the frontier is, by construction, one submitOpen previously decided
// to descend into.
func (w *walker) beginOpen(st *subtree) {
	if err := w.submitOpen(st); err != nil {
		w.terminate(st, err)
	}
}

// retryOpen resubmits the OPEN after an EMFILE/ENFILE-triggered eviction
// (spec §4.1 "forcibly evicts an unpinned FD ... and retries once").
func (w *walker) retryOpen(st *subtree) {
	if err := w.submitOpen(st); err != nil {
		w.terminate(st, err)
	}
}

// readSubtree drains a subtree's directory stream to completion (or to a
// mid-stream error) in one synchronous pass, matching spec §4.1's ordering
// guarantee that once a subtree's readdir begins its remaining entries are
// emitted contiguously — there is no point at which another subtree's
// discovery work interleaves with this one.
func (w *walker) readSubtree(st *subtree, reader dirreader.Reader) {
	for {
		ent, err := reader.Next()
		if err != nil {
			// A mid-stream readdir error always seals the subtree at the
			// point it occurred; RECOVER only controls whether that error
			// becomes visible on the subtree's own entry, versus a silent
			// partial listing (spec §7's taxonomy leaves this engine-level
			// choice to the RECOVER flag rather than to a fixed rule).
			if err != io.EOF && w.cfg.Flags&FlagRecover != 0 {
				st.entry.Err = fserrors.FsError(err)
			}
			break
		}
		w.discoverChild(st, ent.Name, ent.Type)
		if w.stopped {
			break
		}
	}
	reader.Close()
	w.sealSubtree(st)
}
