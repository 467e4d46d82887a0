package bftw

import (
	"context"
	"math"
	"runtime"

	"github.com/danie-dejager/bfs/fdcache"
	"github.com/danie-dejager/bfs/fs"
	"github.com/danie-dejager/bfs/ioq"
)

// walker holds all state for one bftw.Walk call. Everything here is
// touched only by the single consumer goroutine running Walk (spec §5);
// the only thing shared with worker goroutines is w.q itself.
type walker struct {
	cfg Config
	cb  Callback

	q     *ioq.Queue
	cache *fdcache.Cache[*subtree]
	fr    *frontier

	nthreads      int
	maxInFlight   int
	inFlightOpens int
	outstanding   int // requests submitted to q, completion not yet processed

	// pendingSeq and buffered restore admission order across completions
	// that race on the worker pool (spec §1: "strict ordering guarantees
	// ... despite out-of-order worker completion"; spec §5: "across
	// unrelated subtrees the order is the engine's dispatch order").
	// pendingSeq holds the Seq of every OPEN/STAT submitted, oldest first;
	// a completion is only handed to handleResult once it reaches the
	// front. OpClose is fire-and-forget and never appears here, since it
	// never produces a Result to wait for.
	pendingSeq []uint64
	buffered   map[uint64]*ioq.Result

	lowerBound     int
	upperBound     int
	sawBeyondUpper bool

	rootDev      uint64
	rootDevKnown bool

	stopped bool
	visited int
}

// Walk runs one traversal of cfg.Paths, invoking cb once per visited entry
// (spec §6 "bftw(config, callback)"). It returns once the frontier, every
// in-flight request, and (for IDS/EDS) every deepening pass have drained.
func Walk(cfg Config, cb Callback) (WalkResult, error) {
	nthreads := cfg.NThreads
	if nthreads < 1 {
		nthreads = 1
	}
	capacity := 4*nthreads + 1

	var (
		q   *ioq.Queue
		err error
	)
	switch cfg.IOBackend {
	case BackendRing:
		batchSize := cfg.RingBatchSize
		if batchSize < 1 {
			batchSize = nthreads
		}
		q, err = ioq.NewRing(capacity, nthreads, batchSize)
	default:
		q, err = ioq.New(capacity, nthreads)
	}
	if err != nil {
		return WalkResult{}, err
	}
	defer q.Close()

	// DFS admits at most one in-flight OPEN, and drive only dispatches it
	// once no request at all is outstanding: the LIFO frontier only gives
	// strict depth-first preorder (spec property 4) if a sibling subtree
	// is never opened before every child of the branch currently being
	// descended has been classified and pushed. BFS/IDS/EDS have no such
	// per-branch ordering requirement, so they keep the wider pipeline.
	maxInFlight := 2*nthreads + 1
	if cfg.Strategy == StrategyDFS {
		maxInFlight = 1
	}

	w := &walker{
		cfg:         cfg,
		cb:          cb,
		q:           q,
		fr:          newFrontier(cfg.Strategy == StrategyDFS),
		nthreads:    nthreads,
		maxInFlight: maxInFlight,
		buffered:    make(map[uint64]*ioq.Result),
	}
	fdCapacity := cfg.FDCacheCapacity
	if fdCapacity < 1 {
		fdCapacity = 4*nthreads + 16
	}
	w.cache = fdcache.New[*subtree](fdCapacity, w.closeCached)
	defer w.cache.CloseAll()

	switch cfg.Strategy {
	case StrategyIDS, StrategyEDS:
		lower, upper := 0, 1
		for {
			w.beginPass(lower, upper)
			w.runPass()
			if w.stopped {
				break
			}
			if !w.sawBeyondUpper {
				break
			}
			// A pass delivers depths lower..upper inclusive (directories at
			// depth upper are reported but not opened), so the next pass
			// starts one level deeper.
			lower = upper + 1
			if cfg.Strategy == StrategyIDS {
				upper++
			} else {
				upper *= 2
			}
		}
	default:
		w.beginPass(0, math.MaxInt)
		w.runPass()
	}

	return WalkResult{Stopped: w.stopped, Visited: w.visited}, nil
}

// closeCached is fdcache's Closer: eviction and final cleanup both route
// through ioq's fire-and-forget CLOSE request so neither ever blocks the
// consumer goroutine on a syscall (spec §4.2). Submission is retried on
// ErrFull instead of dropping the request and leaking the fd (spec
// invariant 1: "no descriptor is leaked on any error path"). Unlike
// submitBlocking, it cannot retry by blocking on drainOne: a CLOSE is
// fire-and-forget and produces no Result, so if ErrFull is purely a
// submission-ring backlog (e.g. CloseAll closing more cached fds than the
// ring's capacity, with no OPEN/STAT outstanding to ever complete),
// waiting for a completion would block forever. An opportunistic
// non-blocking drain plus a scheduler yield handles both causes of
// ErrFull: completion backpressure (drainOne(false) relieves it when one
// is ready) and pure submission backlog (the yield gives the worker pool
// goroutines, which drain the submission ring independently of
// completions for CLOSE, a chance to catch up).
func (w *walker) closeCached(fd int) {
	req := w.q.NewRequest(ioq.OpClose)
	req.FD = fd
	for {
		err := w.q.Submit(req)
		if err == nil {
			return
		}
		if err != ioq.ErrFull {
			fs.Debugf("bftw", "dropping close of fd %d: %v", fd, err)
			return
		}
		if !w.drainOne(false) {
			runtime.Gosched()
		}
	}
}

// beginPass resets the per-pass frontier and depth window. visited,
// stopped, and the fd cache all persist across IDS/EDS passes within one
// Walk call.
func (w *walker) beginPass(lower, upper int) {
	w.fr = newFrontier(w.cfg.Strategy == StrategyDFS)
	w.lowerBound = lower
	w.upperBound = upper
	w.sawBeyondUpper = false
	w.inFlightOpens = 0
}

// runPass seeds the frontier with the configured roots and drains it to
// completion, dispatching OPENs up to maxInFlight and processing
// completions as they arrive (spec §4.1's main loop).
func (w *walker) runPass() {
	for _, p := range w.cfg.Paths {
		w.discoverRoot(p)
	}
	w.drive()
}

// drive is the engine's central dispatch loop.
func (w *walker) drive() {
	for {
		if w.stopped {
			for {
				st, ok := w.fr.pop()
				if !ok {
					break
				}
				w.abandon(st)
			}
		} else {
			for w.inFlightOpens < w.maxInFlight && (w.cfg.Strategy != StrategyDFS || w.outstanding == 0) {
				st, ok := w.fr.pop()
				if !ok {
					break
				}
				w.beginOpen(st)
			}
		}
		if w.outstanding == 0 && w.fr.empty() {
			return
		}
		if w.outstanding == 0 {
			// Frontier work remains but nothing is in flight; go back and
			// dispatch it rather than wait on an idle queue.
			continue
		}
		w.drainOne(true)
	}
}

// submitBlocking submits req, retrying against completions already in
// flight if the queue reports ErrFull (spec §4.2: "the consumer is
// expected to drain completions and retry"). Every successful submission
// increments w.outstanding and, for OPEN/STAT, records req.Seq as the next
// completion deliverReady must wait for; callers must not double-count.
func (w *walker) submitBlocking(req *ioq.Request) error {
	for {
		err := w.q.Submit(req)
		if err != ioq.ErrFull {
			if err == nil {
				w.outstanding++
				if req.Op != ioq.OpClose {
					w.pendingSeq = append(w.pendingSeq, req.Seq)
				}
			}
			return err
		}
		if !w.drainOne(true) {
			return err
		}
	}
}

// drainOne processes at least one raw completion (blocking if block is
// true and none is immediately available), then delivers every completion
// that has become ready in admission order. Returns false only if nothing
// was available and block was false.
func (w *walker) drainOne(block bool) bool {
	if !w.takeCompletion(block) {
		return false
	}
	w.deliverReady()
	return true
}

// takeCompletion pulls exactly one raw completion off the queue and
// buffers it by sequence number, without invoking any callback yet.
func (w *walker) takeCompletion(block bool) bool {
	res, ok := w.q.Poll()
	if !ok {
		if !block {
			return false
		}
		var err error
		res, err = w.q.Wait(context.Background())
		if err != nil {
			return false
		}
	}
	w.outstanding--
	w.buffered[res.Req.Seq] = res
	return true
}

// deliverReady hands every buffered completion to handleResult in
// admission order, stopping as soon as the next awaited sequence number
// hasn't arrived yet: spec §1's ordering guarantee despite out-of-order
// worker completion, and spec §5's "across unrelated subtrees the order
// is the engine's dispatch order" (dispatch order is exactly the order
// submitBlocking recorded in pendingSeq).
func (w *walker) deliverReady() {
	for len(w.pendingSeq) > 0 {
		seq := w.pendingSeq[0]
		res, ok := w.buffered[seq]
		if !ok {
			return
		}
		delete(w.buffered, seq)
		w.pendingSeq = w.pendingSeq[1:]
		w.handleResult(res)
		w.q.PutResult(res)
	}
}

// followsAt reports whether a symlink encountered at depth should be
// dereferenced for traversal purposes: -L follows everywhere, -H follows
// only the root arguments themselves (spec §6 "-H/-L").
func (w *walker) followsAt(depth int) bool {
	switch w.cfg.FollowPolicy {
	case FollowLogical:
		return true
	case FollowComFollow:
		return depth == 0
	default:
		return false
	}
}

// fireIfVisible invokes the callback unless depth is suppressed by
// MinDepth or (during an IDS/EDS pass) by the current lowerBound — an
// entry below lowerBound was already delivered on an earlier, shallower
// pass (spec open question on IDS/EDS × POST_ORDER, resolved in
// DESIGN.md).
func (w *walker) fireIfVisible(e *Entry, visit VisitKind) Control {
	if w.stopped {
		return Continue
	}
	e.Visit = visit
	if e.Depth < w.cfg.MinDepth || e.Depth < w.lowerBound {
		return Continue
	}
	w.visited++
	return w.cb(e)
}
