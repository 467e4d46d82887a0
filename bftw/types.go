// Package bftw implements the parallel breadth-first traversal engine:
// a single consumer goroutine that dispatches open/stat work to an ioq
// queue, drains completions in order, and invokes a user callback once
// per visited entry, per the contract of spec §4.1 and §6.
//
// No callback is ever invoked on a worker goroutine (spec §5); the only
// cross-goroutine data is the ioq queue itself.
package bftw

import (
	"github.com/danie-dejager/bfs/dirreader"
	"github.com/danie-dejager/bfs/ioq"
)

// EntryType classifies a directory entry without requiring a stat,
// mirroring dirreader.EntryType.
type EntryType = dirreader.EntryType

// Entry types (re-exported for callers that only import bftw).
const (
	TypeUnknown = dirreader.TypeUnknown
	TypeRegular = dirreader.TypeRegular
	TypeDir     = dirreader.TypeDir
	TypeSymlink = dirreader.TypeSymlink
	TypeOther   = dirreader.TypeOther
)

// VisitKind says which of the (at most two) callback invocations for an
// entry this is (spec §3: "pre-order for directories, leaf for files,
// post-order for directories if requested").
type VisitKind uint8

// Visit kinds.
const (
	Leaf VisitKind = iota
	PreOrder
	PostOrder
)

func (v VisitKind) String() string {
	switch v {
	case Leaf:
		return "leaf"
	case PreOrder:
		return "pre-order"
	case PostOrder:
		return "post-order"
	default:
		return "unknown"
	}
}

// Control is the callback's continuation instruction (spec §4.1 "Callback
// control codes").
type Control int

// Control codes.
const (
	Continue Control = iota
	Prune
	Stop
)

// Flags is a bitset of the behavior toggles named in spec §6.
type Flags uint32

// Engine flags.
const (
	// FlagPostOrder makes the engine emit a second, post-order visit for
	// every directory once its subtree is exhausted.
	FlagPostOrder Flags = 1 << iota
	// FlagHonorPrune makes the engine act on a callback's Prune return;
	// without it Prune is treated as Continue. Named distinctly from the
	// callback's own Prune control code per spec §6's "PRUNE (honor
	// callback PRUNE)" being a property of the *engine configuration*,
	// not of the callback contract.
	FlagHonorPrune
	// FlagRecover makes a readdir error mid-stream surface as the
	// subtree's Err (partial directory + error) instead of silently
	// sealing the subtree at the point the error occurred.
	FlagRecover
	// FlagForceStat forces every entry's stat buffer to be fetched
	// eagerly instead of lazily on first Entry.Stat() call.
	FlagForceStat
	// FlagSort is accepted for API compatibility with spec §6 but is a
	// no-op in the core: sorting is layered above bftw by the caller
	// buffering one directory's worth of entries (spec §1 Non-goals:
	// "does not sort results").
	FlagSort
)

// Strategy selects the traversal order (spec §4.1).
type Strategy int

// Strategies.
const (
	StrategyBFS Strategy = iota
	StrategyDFS
	StrategyIDS
	StrategyEDS
)

// IOBackend selects which ioq.Queue implementation Walk constructs (spec
// §4.3: "the choice is made once at construction").
type IOBackend int

// I/O backends.
const (
	// BackendThreadPool dispatches each request to one of nthreads worker
	// goroutines as soon as a slot is free. The default.
	BackendThreadPool IOBackend = iota
	// BackendRing coalesces up to RingBatchSize submissions per dispatch
	// wave (spec §4.3's software substitute for io_uring batching).
	BackendRing
)

// MountPolicy controls whether traversal crosses filesystem mount
// boundaries (spec §6).
type MountPolicy int

// Mount policies.
const (
	MountCrossing MountPolicy = iota
	MountNoCross
	MountSameFSAsRoot
)

// FollowPolicy controls symlink following (spec §6).
type FollowPolicy int

// Follow policies.
const (
	FollowPhysical  FollowPolicy = iota // -P: never follow
	FollowComFollow                     // -H: follow symlinks given on the command line only
	FollowLogical                       // -L: follow all symlinks
)

// Config is the traversal engine's configuration (spec §6 "bftw(config,
// callback)").
type Config struct {
	Paths        []string
	Flags        Flags
	Strategy     Strategy
	NThreads     int
	MountPolicy  MountPolicy
	FollowPolicy FollowPolicy
	MinDepth     int // entries shallower than this are not delivered to the callback
	MaxDepth     int // <0 means unlimited; entries at or beyond this depth are not descended into

	// FDCacheCapacity bounds how many directory descriptors the engine
	// keeps open at once (spec §4.4). Raising RLIMIT_NOFILE and deriving a
	// capacity from it is a caller concern (lib/rlimit, wired by cmd/bfs),
	// not something Walk does for itself; 0 falls back to a conservative
	// default sized off NThreads.
	FDCacheCapacity int

	// IOBackend selects the ioq.Queue implementation. Zero value is
	// BackendThreadPool.
	IOBackend IOBackend
	// RingBatchSize is the batch size passed to ioq.NewRing when IOBackend
	// is BackendRing. <1 defaults to NThreads.
	RingBatchSize int
}

// UnlimitedDepth is Config.MaxDepth's sentinel for "no limit".
const UnlimitedDepth = -1

// Callback is invoked once per visited entry (spec §6). It may call
// Entry.Stat(), which triggers a lazy stat if one hasn't already happened.
type Callback func(*Entry) Control

// Entry is one file or directory encountered during traversal (spec §3).
type Entry struct {
	Parent *Entry
	Name   string
	Depth  int
	Type   EntryType
	Visit  VisitKind
	Err    error

	path      string
	statFn    func() (*ioq.Stat, error)
	stat      *ioq.Stat
	statErr   error
	statDone  bool
}

// Path returns the entry's full path, exactly as constructed from the
// root argument plus the chain of child names (spec §4.1 "Path
// construction").
func (e *Entry) Path() string { return e.path }

// Stat returns the entry's stat buffer, fetching it synchronously on
// first use if it was not already forced by FlagForceStat (spec §3 entry
// attribute: "lazily materialized stat buffer").
func (e *Entry) Stat() (*ioq.Stat, error) {
	if e.statDone {
		return e.stat, e.statErr
	}
	e.statDone = true
	if e.statFn == nil {
		return nil, nil
	}
	e.stat, e.statErr = e.statFn()
	return e.stat, e.statErr
}

// WalkResult is bftw.Walk's return value describing how the traversal
// ended.
type WalkResult struct {
	// Stopped is true if a callback ever returned Stop.
	Stopped bool
	// Visited counts every callback invocation (pre+post+leaf).
	Visited int
}
