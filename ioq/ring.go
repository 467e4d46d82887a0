package ioq

import (
	"context"
	"sync"

	"github.com/danie-dejager/bfs/fs"
)

// ringBackend implements spec §4.3's optional "ring" backend: submissions
// are coalesced and flushed together rather than executed one at a time
// as they arrive, either once batchSize submissions have queued up or once
// poll/wait is called while the completion side is empty.
//
// Caveat, disclosed rather than hidden (see DESIGN.md): nothing in this
// module's retrieved reference corpus binds an io_uring package, so this
// is a *software* batching backend — it still coalesces dispatch the way
// spec §4.3 describes, but the "one syscall" the spec imagines for a real
// kernel ring is, here, one wave of concurrent syscalls bounded by
// nthreads, not a single io_uring_enter(2). Semantics are identical from
// the consumer's point of view, which is the contract spec §4.3 actually
// requires ("semantics must be identical to the thread-pool backend from
// the consumer's point of view").
type ringBackend struct {
	batchSize int
	sem       chan struct{} // bounds concurrent in-flight syscalls to nthreads

	mu      sync.Mutex
	pending []*Request
	closed  bool

	completeCh chan *Result
	cancelCh   chan struct{}
	cancelOnce sync.Once

	inFlight sync.WaitGroup // batches dispatched but not yet fully completed
	closeWG  sync.WaitGroup

	reqPool sync.Pool
	resPool sync.Pool
}

func newRingBackend(capacity, nthreads, batchSize int) *ringBackend {
	if batchSize < 1 {
		batchSize = 1
	}
	rb := &ringBackend{
		batchSize:  batchSize,
		sem:        make(chan struct{}, nthreads),
		completeCh: make(chan *Result, capacity),
		cancelCh:   make(chan struct{}),
	}
	rb.reqPool.New = func() any { return new(Request) }
	rb.resPool.New = func() any { return new(Result) }
	return rb
}

func (rb *ringBackend) submit(req *Request) error {
	rb.mu.Lock()
	if rb.closed {
		rb.mu.Unlock()
		return ErrFull
	}
	if req.Op == OpClose {
		// Fire-and-forget requests are never worth batching: they have
		// no result to coalesce around, so dispatch immediately.
		rb.closeWG.Add(1)
		rb.mu.Unlock()
		rb.dispatchOne(req)
		return nil
	}
	rb.pending = append(rb.pending, req)
	flush := len(rb.pending) >= rb.batchSize
	rb.mu.Unlock()
	if flush {
		rb.flush()
	}
	return nil
}

// flush dispatches every currently pending submission as one batch: one
// wave of up to nthreads concurrent syscalls, matching the batching rule
// of spec §4.3 without pretending to be a single kernel syscall.
func (rb *ringBackend) flush() {
	rb.mu.Lock()
	batch := rb.pending
	rb.pending = nil
	rb.mu.Unlock()
	for _, req := range batch {
		rb.inFlight.Add(1)
		r := req
		go func() {
			defer rb.inFlight.Done()
			rb.dispatchOne(r)
		}()
	}
}

func (rb *ringBackend) dispatchOne(req *Request) {
	select {
	case rb.sem <- struct{}{}:
		defer func() { <-rb.sem }()
	case <-rb.cancelCh:
		if req.Op == OpClose {
			rb.closeWG.Done()
		}
		return
	}
	switch req.Op {
	case OpClose:
		if err := doClose(req.FD); err != nil {
			fs.Debugf("ioq", "close fd %d failed: %v", req.FD, err)
		}
		rb.closeWG.Done()
		rb.reqPool.Put(req)
	case OpOpen:
		res := rb.resPool.Get().(*Result)
		*res = Result{Req: req}
		res.FD, res.Err = doOpen(req)
		rb.deliver(res)
	case OpStat:
		res := rb.resPool.Get().(*Result)
		*res = Result{Req: req}
		res.Stat, res.Err = doStat(req)
		rb.deliver(res)
	}
}

func (rb *ringBackend) deliver(res *Result) {
	select {
	case rb.completeCh <- res:
	case <-rb.cancelCh:
	}
}

func (rb *ringBackend) poll() (*Result, bool) {
	select {
	case res, ok := <-rb.completeCh:
		if ok {
			return res, true
		}
		return nil, false
	default:
	}
	// Completion ring is empty: flush per the batching rule so pending
	// submissions aren't stranded waiting for the ring to fill.
	rb.flush()
	select {
	case res, ok := <-rb.completeCh:
		return res, ok
	default:
		return nil, false
	}
}

func (rb *ringBackend) wait(ctx context.Context) (*Result, error) {
	select {
	case res, ok := <-rb.completeCh:
		if ok {
			return res, nil
		}
		return nil, context.Canceled
	default:
	}
	rb.flush()
	select {
	case res, ok := <-rb.completeCh:
		if !ok {
			return nil, context.Canceled
		}
		return res, nil
	case <-rb.cancelCh:
		select {
		case res, ok := <-rb.completeCh:
			if ok {
				return res, nil
			}
		default:
		}
		return nil, context.Canceled
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (rb *ringBackend) cancel() {
	rb.cancelOnce.Do(func() { close(rb.cancelCh) })
}

func (rb *ringBackend) close() error {
	rb.mu.Lock()
	rb.closed = true
	rb.mu.Unlock()
	rb.flush()
	rb.inFlight.Wait()
	rb.cancel()
	rb.closeWG.Wait()
	close(rb.completeCh)
	return nil
}

func (rb *ringBackend) newRequest() *Request {
	return rb.reqPool.Get().(*Request)
}

func (rb *ringBackend) putResult(res *Result) {
	*res = Result{}
	rb.resPool.Put(res)
}
