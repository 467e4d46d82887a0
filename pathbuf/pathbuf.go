// Package pathbuf implements the engine's incremental path construction
// (spec §4.1 "Path construction"): one mutable buffer per in-progress
// subtree, built by copying the parent subtree's already-materialized
// prefix exactly once (the "shared prefix reuse" of spec §2's component
// table) and then repeatedly appending/truncating just the current
// child's name as readdir yields each entry.
//
// Buffers are backed by pooled byte slices (the same get/put-a-slice shape
// as the teacher's connection pools, e.g. backend/smb/filepool.go) so a
// deep, wide traversal does not allocate a new backing array per
// directory.
package pathbuf

import "sync"

var bufPool = sync.Pool{
	New: func() any {
		b := make([]byte, 0, 256)
		return &b
	},
}

// Buffer holds one subtree's path prefix plus, transiently, the current
// child's suffix between Push and Pop.
type Buffer struct {
	buf  *[]byte
	base int // length of this subtree's own immutable prefix
}

// NewRoot creates the path buffer for a root argument, exactly as given by
// the caller (no cleaning, no cwd-join: spec roots are used verbatim).
func NewRoot(root string) *Buffer {
	bp := bufPool.Get().(*[]byte)
	*bp = append((*bp)[:0], root...)
	return &Buffer{buf: bp, base: len(root)}
}

// Child derives the path buffer for a subtree rooted at name, a child of
// the subtree owning b. The parent's prefix bytes are copied once; from
// then on the child buffer is independent and mutated only via its own
// Push/Pop.
func (b *Buffer) Child(name string) *Buffer {
	bp := bufPool.Get().(*[]byte)
	nb := (*bp)[:0]
	nb = append(nb, (*b.buf)[:b.base]...)
	if len(nb) > 0 && nb[len(nb)-1] != '/' {
		nb = append(nb, '/')
	}
	nb = append(nb, name...)
	*bp = nb
	return &Buffer{buf: bp, base: len(nb)}
}

// Push appends name as a transient suffix onto this subtree's prefix and
// returns the resulting path. The caller must call Pop before the next
// Push or before using b for anything else — exactly one child name may
// be live on a Buffer at a time, matching the engine processing readdir
// entries one at a time on the single consumer goroutine (spec §5).
func (b *Buffer) Push(name string) string {
	nb := (*b.buf)[:b.base]
	if len(nb) > 0 && nb[len(nb)-1] != '/' {
		nb = append(nb, '/')
	}
	nb = append(nb, name...)
	*b.buf = nb
	return string(nb)
}

// Pop truncates back to this subtree's own prefix.
func (b *Buffer) Pop() {
	*b.buf = (*b.buf)[:b.base]
}

// String returns this subtree's own path (without any pushed child
// suffix).
func (b *Buffer) String() string {
	return string((*b.buf)[:b.base])
}

// Release returns the backing array to the pool. Call once the owning
// subtree no longer needs its path (bftw does so when the subtree is
// sealed, since each child copies the prefix it needs); using b afterwards
// is undefined.
func (b *Buffer) Release() {
	if b.buf == nil {
		return
	}
	bufPool.Put(b.buf)
	b.buf = nil
}
