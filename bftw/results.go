package bftw

import (
	"syscall"

	"github.com/danie-dejager/bfs/dirreader"
	"github.com/danie-dejager/bfs/fs"
	"github.com/danie-dejager/bfs/fs/fserrors"
	"github.com/danie-dejager/bfs/ioq"
)

// handleResult routes a drained completion to its owning subtree.
func (w *walker) handleResult(res *ioq.Result) {
	st, ok := res.Req.Owner.(*subtree)
	if !ok || st == nil {
		return
	}
	switch res.Req.Op {
	case ioq.OpStat:
		w.handleStatResult(st, res)
	case ioq.OpOpen:
		w.handleOpenResult(st, res)
	}
}

// handleStatResult processes the stat every directory candidate (and
// every root) goes through before the engine knows whether it is actually
// a directory, and if so whether mount policy or a symlink cycle forbids
// descending into it.
func (w *walker) handleStatResult(st *subtree, res *ioq.Result) {
	if st.parent != nil {
		st.parent.outstandingAsyncOps--
		w.releaseFdIfReady(st.parent)
	}

	if res.Err != nil {
		w.terminate(st, res.Err)
		return
	}

	stat := res.Stat
	if !stat.IsDir() {
		w.resolveLeaf(st, stat)
		return
	}

	st.entry.Type = TypeDir
	st.entry.stat, st.entry.statDone = stat, true
	st.dev, st.ino, st.devInoKnown = stat.Dev, stat.Ino, true

	if w.cfg.FollowPolicy != FollowPhysical {
		if w.cycleDetected(st) {
			w.terminate(st, syscall.ELOOP)
			return
		}
		st.ancestry = appendAncestry(st.parent, st.dev, st.ino)
	}

	if st.parent == nil && !w.rootDevKnown {
		w.rootDev, w.rootDevKnown = st.dev, true
	}

	if reason, blocked := w.descentBlocked(st); blocked {
		if reason == reasonUpperBound {
			w.sawBeyondUpper = true
		}
		w.terminate(st, nil)
		return
	}

	w.fr.push(st)
}

// resolveLeaf handles a discovered name whose stat came back non-directory
// (an ambiguous hint that turned out to be a regular file, a symlink that
// wasn't followed into a directory, or a followed symlink to a
// non-directory target). It was provisionally given a subtree at
// discovery time; that subtree is discarded without ever being opened.
func (w *walker) resolveLeaf(st *subtree, stat *ioq.Stat) {
	switch {
	case stat.IsSymlink():
		st.entry.Type = TypeSymlink
	case stat.IsRegular():
		st.entry.Type = TypeRegular
	default:
		st.entry.Type = TypeOther
	}
	// The STAT that resolved this entry's type already has its buffer in
	// hand; cache it instead of forcing Entry.Stat() to issue a second,
	// redundant one later.
	st.entry.stat, st.entry.statDone = stat, true
	ctrl := w.fireIfVisible(st.entry, Leaf)
	if ctrl == Stop {
		w.stopped = true
	}
	if st.pathBuf != nil {
		st.pathBuf.Release()
		st.pathBuf = nil
	}
	parent := st.parent
	if parent != nil {
		parent.childCompleted()
		w.maybeDestroy(parent)
	}
}

// handleOpenResult processes the OPEN completion for a directory subtree
// that passed every descend check. This is where a directory's pre-order
// callback actually fires (spec open question, resolved in DESIGN.md):
// deferred until here so an open failure can be attached to the one and
// only visit the directory gets, rather than requiring a second visit.
func (w *walker) handleOpenResult(st *subtree, res *ioq.Result) {
	w.inFlightOpens--
	if st.parent != nil {
		st.parent.outstandingAsyncOps--
		w.releaseFdIfReady(st.parent)
	}

	if res.Err != nil {
		if fserrors.IsTransient(res.Err) && !st.retriedOpen {
			st.retriedOpen = true
			if w.cache.EvictOne() {
				fs.Debugf("bftw", "open %s: %v, evicted a cached fd and retrying", st.entry.path, res.Err)
				w.retryOpen(st)
				return
			}
		}
		w.terminate(st, res.Err)
		return
	}

	fs.Debugf("bftw", "opened %s", st.entry.path)
	st.preFired = true
	ctrl := w.fireIfVisible(st.entry, PreOrder)
	if ctrl == Stop {
		w.stopped = true
	}
	honorPrune := ctrl == Prune && w.cfg.Flags&FlagHonorPrune != 0
	if w.stopped || honorPrune {
		st.fd = res.FD
		w.sealSubtree(st)
		return
	}

	reader, err := dirreader.FromFD(res.FD, st.entry.path)
	if err != nil {
		st.fd = res.FD
		w.terminate(st, err)
		return
	}
	st.fd = res.FD
	w.readSubtree(st, reader)
}

// terminate ends a subtree's involvement without ever reading its
// directory stream: a stat error, an open error, a depth/mount/upperBound
// skip (err == nil in that case), or a reader-construction failure. If
// the subtree's pre-order hasn't fired yet, this is its only visit.
func (w *walker) terminate(st *subtree, err error) {
	if err != nil && st.entry.Err == nil {
		st.entry.Err = fserrors.FsError(err)
	}
	if !st.preFired {
		st.preFired = true
		ctrl := w.fireIfVisible(st.entry, PreOrder)
		if ctrl == Stop {
			w.stopped = true
		}
	}
	w.sealSubtree(st)
}

// sealSubtree marks a subtree as having no more entries to contribute (its
// own directory fully read, or never going to be read at all), releases
// what can safely be released right away, and checks whether the whole
// subtree is now destroyable.
func (w *walker) sealSubtree(st *subtree) {
	fs.Debugf("bftw", "sealed %s", st.entry.path)
	st.sealed = true
	if st.pathBuf != nil {
		st.pathBuf.Release()
		st.pathBuf = nil
	}
	w.releaseFdIfReady(st)
	w.maybeDestroy(st)
}

// releaseFdIfReady hands st's descriptor to the FD cache as soon as no
// further request will reference it as a ParentFD — which only requires
// sealed && outstandingAsyncOps == 0, independent of whether grandchildren
// are still pending (those reference their own parent, not this one).
func (w *walker) releaseFdIfReady(st *subtree) {
	if st.sealed && st.outstandingAsyncOps == 0 && st.fd >= 0 {
		w.cache.Put(st, st.fd)
		st.fd = -1
	}
}

// maybeDestroy implements spec invariant 3: a subtree is destroyed once
// sealed, every child subtree has itself been destroyed, and no async op
// still references its fd. Destruction fires the deferred post-order visit
// (if configured) and cascades one level up, since a parent's own
// destruction depends on every child's.
func (w *walker) maybeDestroy(st *subtree) {
	if st == nil || !st.destroyed() {
		return
	}
	if w.cfg.Flags&FlagPostOrder != 0 && !st.postFired {
		st.postFired = true
		ctrl := w.fireIfVisible(st.entry, PostOrder)
		if ctrl == Stop {
			w.stopped = true
		}
	}
	parent := st.parent
	if parent != nil {
		parent.childCompleted()
		w.maybeDestroy(parent)
	}
}

// abandon drops a frontier entry that will never be opened because a
// callback already returned Stop. No callback has fired for it yet and
// none will (spec: once stopped, traversal halts without visiting
// anything further); its ancestors' bookkeeping still needs to unwind so
// any post-order visits already in progress for them complete correctly.
func (w *walker) abandon(st *subtree) {
	st.sealed = true
	if st.pathBuf != nil {
		st.pathBuf.Release()
		st.pathBuf = nil
	}
	w.maybeDestroy(st)
}

type descendBlockReason int

const (
	reasonNone descendBlockReason = iota
	reasonMaxDepth
	reasonMount
	reasonUpperBound
)

// descentBlocked decides whether a directory that passed its stat should
// still be opened and read, or merely reported: spec §6's MaxDepth, mount
// policy, and (for IDS/EDS) the current pass's upperBound can each forbid
// descending without that being an error.
func (w *walker) descentBlocked(st *subtree) (descendBlockReason, bool) {
	depth := st.entry.Depth
	if w.cfg.MaxDepth >= 0 && depth >= w.cfg.MaxDepth {
		return reasonMaxDepth, true
	}
	if reason, blocked := w.mountBlocked(st); blocked {
		return reason, true
	}
	if depth >= w.upperBound {
		return reasonUpperBound, true
	}
	return reasonNone, false
}

func (w *walker) mountBlocked(st *subtree) (descendBlockReason, bool) {
	switch w.cfg.MountPolicy {
	case MountNoCross:
		if st.parent != nil && st.parent.devInoKnown && st.dev != st.parent.dev {
			return reasonMount, true
		}
	case MountSameFSAsRoot:
		if w.rootDevKnown && st.dev != w.rootDev {
			return reasonMount, true
		}
	}
	return reasonNone, false
}

// cycleDetected walks the materialized ancestor chain (device+inode of
// every directory from the nearest root down to st's parent) looking for
// a match with st itself, the symlink-loop check spec §8 requires under
// -H/-L.
func (w *walker) cycleDetected(st *subtree) bool {
	if st.parent == nil {
		return false
	}
	for _, a := range st.parent.ancestry {
		if a.dev == st.dev && a.ino == st.ino {
			return true
		}
	}
	return false
}

func appendAncestry(parent *subtree, dev, ino uint64) []devIno {
	var base []devIno
	if parent != nil {
		base = parent.ancestry
	}
	chain := make([]devIno, len(base)+1)
	copy(chain, base)
	chain[len(base)] = devIno{dev: dev, ino: ino}
	return chain
}
