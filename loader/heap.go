package loader

import (
	"math"
	"sort"
	"sync"

	"github.com/wippyai/emjs"
	"github.com/wippyai/emjs/errors"
	"github.com/wippyai/emjs/wasm"
)

const minAlign uint32 = 8

type block struct {
	addr uint32
	size uint32
}

// Heap is a first-fit allocator over the linear memory above __heap_base.
// Freed blocks are coalesced; memory grows a page at a time when the bump
// pointer passes the end.
type Heap struct {
	mu   sync.Mutex
	mem  GrowableMemory
	base uint32
	top  uint32
	free []block // sorted by addr
	live map[uint32]uint32
}

// NewHeap creates a heap whose first block starts at base.
func NewHeap(mem GrowableMemory, base uint32) *Heap {
	base = alignUp(base, minAlign)
	return &Heap{
		mem:  mem,
		base: base,
		top:  base,
		live: make(map[uint32]uint32),
	}
}

// Alloc reserves size bytes aligned to align, which must be a power of two.
// Alignments below 8 are raised to 8.
func (h *Heap) Alloc(size, align uint32) (uint32, error) {
	if align < minAlign {
		align = minAlign
	}
	if align&(align-1) != 0 {
		return 0, errors.InvalidInput(errors.PhaseRuntime, "alignment must be a power of two")
	}
	if size == 0 {
		size = 1
	}
	if size > math.MaxUint32-minAlign {
		return 0, errors.AllocationFailed(errors.PhaseRuntime, size, align)
	}
	size = alignUp(size, minAlign)

	h.mu.Lock()
	defer h.mu.Unlock()

	for i, b := range h.free {
		ptr := alignUp(b.addr, align)
		if ptr < b.addr || uint64(ptr)+uint64(size) > uint64(b.addr)+uint64(b.size) {
			continue
		}
		h.free = append(h.free[:i], h.free[i+1:]...)
		if ptr > b.addr {
			h.insertFree(block{addr: b.addr, size: ptr - b.addr})
		}
		if end := b.addr + b.size; ptr+size < end {
			h.insertFree(block{addr: ptr + size, size: end - ptr - size})
		}
		h.live[ptr] = size
		return ptr, nil
	}

	ptr := alignUp(h.top, align)
	end := uint64(ptr) + uint64(size)
	if ptr < h.top || end > math.MaxUint32 {
		return 0, errors.AllocationFailed(errors.PhaseRuntime, size, align)
	}
	if err := h.ensure(uint32(end)); err != nil {
		return 0, err
	}
	if ptr > h.top {
		h.insertFree(block{addr: h.top, size: ptr - h.top})
	}
	h.top = uint32(end)
	h.live[ptr] = size
	return ptr, nil
}

// Free releases a block returned by Alloc. Unknown pointers are ignored.
func (h *Heap) Free(ptr uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()

	size, ok := h.live[ptr]
	if !ok {
		Logger().Debug("free of unknown pointer")
		return
	}
	delete(h.live, ptr)
	h.insertFree(block{addr: ptr, size: size})

	if n := len(h.free); n > 0 && h.free[n-1].addr+h.free[n-1].size == h.top {
		h.top = h.free[n-1].addr
		h.free = h.free[:n-1]
	}
}

// Live returns the number of outstanding allocations.
func (h *Heap) Live() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.live)
}

// InUse returns the number of bytes held by outstanding allocations.
func (h *Heap) InUse() uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	var n uint32
	for _, size := range h.live {
		n += size
	}
	return n
}

// Base returns the lowest address the heap hands out.
func (h *Heap) Base() uint32 {
	return h.base
}

func (h *Heap) ensure(end uint32) error {
	size := h.mem.Size()
	if end <= size {
		return nil
	}
	pages := (end - size + wasm.PageSize - 1) / wasm.PageSize
	if _, ok := h.mem.Grow(pages); !ok {
		return errors.New(errors.PhaseRuntime, errors.KindAllocation).
			Detail("grow memory by %d page(s)", pages).
			Build()
	}
	return nil
}

// insertFree adds b to the free list, merging with adjacent blocks.
func (h *Heap) insertFree(b block) {
	i := sort.Search(len(h.free), func(i int) bool { return h.free[i].addr > b.addr })
	h.free = append(h.free, block{})
	copy(h.free[i+1:], h.free[i:])
	h.free[i] = b

	if i+1 < len(h.free) && h.free[i].addr+h.free[i].size == h.free[i+1].addr {
		h.free[i].size += h.free[i+1].size
		h.free = append(h.free[:i+1], h.free[i+2:]...)
	}
	if i > 0 && h.free[i-1].addr+h.free[i-1].size == h.free[i].addr {
		h.free[i-1].size += h.free[i].size
		h.free = append(h.free[:i], h.free[i+1:]...)
	}
}

func alignUp(v, align uint32) uint32 {
	return (v + align - 1) &^ (align - 1)
}

var _ emjs.Allocator = (*Heap)(nil)
