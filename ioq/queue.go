package ioq

import (
	"context"
	"sync/atomic"

	"github.com/danie-dejager/bfs/fs/fserrors"
)

// backend is satisfied by threadPool and ringBackend; Queue delegates to
// whichever was chosen at construction (spec §4.3: "the choice is made
// once at construction").
type backend interface {
	submit(*Request) error
	poll() (*Result, bool)
	wait(ctx context.Context) (*Result, error)
	cancel()
	close() error
	newRequest() *Request
	putResult(*Result)
}

// Queue is the bounded MPSC/SPSC I/O work queue of spec §4.2.
type Queue struct {
	b   backend
	seq atomic.Uint64
}

// New constructs a thread-pool-backed Queue with the given capacity (max
// outstanding submissions/completions) and nthreads workers. Returns a
// fatal error (spec §7's "fatal" class) if the parameters can't produce a
// working queue.
func New(capacity, nthreads int) (*Queue, error) {
	if capacity < 1 || nthreads < 1 {
		return nil, fserrors.NewFatal(errInvalidQueueParams(capacity, nthreads))
	}
	return &Queue{b: newThreadPool(capacity, nthreads)}, nil
}

// NewRing constructs a Queue using the batched ring backend of spec §4.3,
// coalescing up to batchSize submissions per dispatch wave.
func NewRing(capacity, nthreads, batchSize int) (*Queue, error) {
	if capacity < 1 || nthreads < 1 {
		return nil, fserrors.NewFatal(errInvalidQueueParams(capacity, nthreads))
	}
	return &Queue{b: newRingBackend(capacity, nthreads, batchSize)}, nil
}

type invalidQueueParamsError struct {
	capacity, nthreads int
}

func errInvalidQueueParams(capacity, nthreads int) error {
	return &invalidQueueParamsError{capacity, nthreads}
}

func (e *invalidQueueParamsError) Error() string {
	return "ioq: capacity and nthreads must both be >= 1"
}

// NewRequest returns a Request drawn from the queue's recycled pool
// (spec §4.2: "request and completion objects are recycled from a
// pre-sized pool owned by the queue") with the next monotonic sequence
// number already assigned (spec §3: "sequence numbers are globally
// monotonic").
func (q *Queue) NewRequest(op Op) *Request {
	req := q.b.newRequest()
	*req = Request{Op: op, Seq: q.seq.Add(1)}
	return req
}

// Submit enqueues req. Non-blocking: returns ErrFull if the submission
// ring is at capacity, in which case the consumer is expected to drain
// completions (Poll/Wait) before retrying, per spec §4.2.
func (q *Queue) Submit(req *Request) error {
	return q.b.submit(req)
}

// Poll returns a completion if one is ready, without blocking.
func (q *Queue) Poll() (*Result, bool) {
	return q.b.poll()
}

// Wait blocks until a completion is available, ctx is done, or the queue
// has drained after Cancel.
func (q *Queue) Wait(ctx context.Context) (*Result, error) {
	return q.b.wait(ctx)
}

// PutResult returns a drained Result to the queue's pool once the
// consumer is done with it.
func (q *Queue) PutResult(res *Result) {
	q.b.putResult(res)
}

// Cancel signals all workers to exit after draining (spec §4.2).
func (q *Queue) Cancel() {
	q.b.cancel()
}

// Close drains outstanding fire-and-forget CLOSE requests, joins all
// workers, and releases the queue. Call after Cancel (or directly, if the
// traversal finished normally without needing early cancellation).
func (q *Queue) Close() error {
	return q.b.close()
}
