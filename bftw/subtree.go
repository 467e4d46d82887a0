package bftw

import (
	"github.com/danie-dejager/bfs/dirreader"
	"github.com/danie-dejager/bfs/pathbuf"
)

// devIno identifies a directory for the ancestor-chain cycle check spec
// §8 requires under -L/comfollow ("cycle detection uses device+inode of
// each directory on the ancestor chain").
type devIno struct {
	dev, ino uint64
}

// subtree is the book-keeping record for a directory being processed
// (spec §3 "Subtree"). It is touched only by the consumer goroutine
// (spec §5), so it needs no internal synchronization.
type subtree struct {
	entry  *Entry
	parent *subtree

	fd       int // -1 once handed to the FD cache, not yet open, or never opened
	pathBuf  *pathbuf.Buffer
	ancestry []devIno // ancestor chain, only populated under FollowComFollow/FollowLogical

	dev, ino   uint64
	devInoKnown bool

	reader dirreader.Reader

	sealed            bool
	pendingChildren    int
	completedChildren  int
	outstandingAsyncOps int

	preFired  bool
	postFired bool

	// retriedOpen marks that this subtree's OPEN has already been
	// retried once after an FD-exhaustion eviction (spec §4.1: "retries
	// once").
	retriedOpen bool
}

// childCompleted records that one of s's children (a leaf that resolved,
// or a subtree that was destroyed) has finished contributing to the
// traversal: spec §3's "completed children" counter alongside the still-
// pending one, kept in lockstep so pendingChildren + completedChildren is
// always the number of children s has ever had.
func (s *subtree) childCompleted() {
	s.pendingChildren--
	s.completedChildren++
}

// refs implements spec invariant 3: "pending_children + (sealed ? 0 : 1)
// + outstanding_async_ops". Nothing in the module calls it at present;
// the engine tracks destruction via destroyed()'s explicit check rather
// than recomputing this on every mutation.
func (s *subtree) refs() int {
	sealedTerm := 1
	if s.sealed {
		sealedTerm = 0
	}
	return s.pendingChildren + sealedTerm + s.outstandingAsyncOps
}

// destroyed reports whether this subtree has met every condition spec §3
// requires before destruction: "sealed AND all children complete AND
// refcount drops to zero".
func (s *subtree) destroyed() bool {
	return s.sealed && s.pendingChildren == 0 && s.outstandingAsyncOps == 0
}
