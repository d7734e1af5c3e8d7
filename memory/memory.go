// Package memory provides the paged allocators backing expression evaluation
// and the per-task scratch and varlen strands. A PagePool is the process-wide page source; a
// LifoResource draws pages from it and hands out allocations in strict LIFO
// order with checkpoint/rewind, which replaces scope-exit cleanup at the
// evaluator call sites.
package memory

import (
	"sync"
)

// PageSize is the size of one pooled page in bytes.
const PageSize = 2 * 1024 * 1024

// PagePool is the only shared allocator in the engine. Per-task LIFO
// resources draw whole pages from it and return them on release.
type PagePool struct {
	pool sync.Pool
}

// NewPagePool creates a page pool.
func NewPagePool() *PagePool {
	p := &PagePool{}
	p.pool.New = func() any {
		return make([]byte, PageSize)
	}
	return p
}

// Acquire takes one page from the pool.
func (p *PagePool) Acquire() []byte {
	return p.pool.Get().([]byte)
}

// Release returns a page to the pool.
func (p *PagePool) Release(page []byte) {
	if cap(page) != PageSize {
		return
	}
	p.pool.Put(page[:PageSize]) //nolint:staticcheck
}

// Checkpoint marks a position in a LifoResource. Rewinding to it frees every
// allocation made after the mark was taken.
type Checkpoint struct {
	page   int
	offset int
}

// LifoResource is a LIFO paged memory resource. Allocations never move;
// deallocation happens only by rewinding to a checkpoint or by End.
type LifoResource struct {
	pool   *PagePool
	pages  [][]byte
	page   int // index of the active page, -1 before the first allocation
	offset int // next free byte within the active page
}

// NewLifoResource creates a resource drawing from the given pool.
func NewLifoResource(pool *PagePool) *LifoResource {
	return &LifoResource{pool: pool, page: -1}
}

// Allocate returns a fresh byte slice of the given length carved from the
// current page. Requests larger than a page get a dedicated slice outside
// the pool.
func (r *LifoResource) Allocate(n int) []byte {
	if n > PageSize {
		return make([]byte, n)
	}
	if r.page < 0 || r.offset+n > PageSize {
		r.grow()
	}
	buf := r.pages[r.page][r.offset : r.offset+n : r.offset+n]
	r.offset += n
	return buf
}

// AllocateString copies s into resource-owned memory.
func (r *LifoResource) AllocateString(s string) []byte {
	buf := r.Allocate(len(s))
	copy(buf, s)
	return buf
}

func (r *LifoResource) grow() {
	r.page++
	if r.page == len(r.pages) {
		r.pages = append(r.pages, r.pool.Acquire())
	}
	r.offset = 0
}

// Save takes a checkpoint at the current position.
func (r *LifoResource) Save() Checkpoint {
	return Checkpoint{page: r.page, offset: r.offset}
}

// Rewind returns the resource to a previously saved checkpoint. Pages
// allocated after the checkpoint stay attached for reuse.
func (r *LifoResource) Rewind(c Checkpoint) {
	r.page = c.page
	r.offset = c.offset
}

// Used reports the bytes currently allocated.
func (r *LifoResource) Used() int {
	if r.page < 0 {
		return 0
	}
	return r.page*PageSize + r.offset
}

// End releases every page back to the pool. The resource is reusable after.
func (r *LifoResource) End() {
	for _, p := range r.pages {
		r.pool.Release(p)
	}
	r.pages = nil
	r.page = -1
	r.offset = 0
}
