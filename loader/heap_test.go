package loader

import (
	stderrors "errors"
	"testing"

	"github.com/wippyai/emjs/wasm"
)

type sliceMemory struct {
	buf      []byte
	maxPages uint32
}

func newSliceMemory(pages uint32) *sliceMemory {
	return &sliceMemory{buf: make([]byte, pages*wasm.PageSize), maxPages: 16}
}

func (m *sliceMemory) Read(offset, length uint32) ([]byte, error) {
	if uint64(offset)+uint64(length) > uint64(len(m.buf)) {
		return nil, errOutOfRange
	}
	return m.buf[offset : offset+length], nil
}

func (m *sliceMemory) Write(offset uint32, data []byte) error {
	if uint64(offset)+uint64(len(data)) > uint64(len(m.buf)) {
		return errOutOfRange
	}
	copy(m.buf[offset:], data)
	return nil
}

func (m *sliceMemory) ReadU32(offset uint32) (uint32, error) {
	b, err := m.Read(offset, 4)
	if err != nil {
		return 0, err
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, nil
}

func (m *sliceMemory) WriteU32(offset, v uint32) error {
	return m.Write(offset, []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)})
}

func (m *sliceMemory) ReadCString(offset uint32) ([]byte, error) {
	return readCString(m, offset)
}

func (m *sliceMemory) Size() uint32 { return uint32(len(m.buf)) }

func (m *sliceMemory) Grow(delta uint32) (uint32, bool) {
	prev := uint32(len(m.buf)) / wasm.PageSize
	if prev+delta > m.maxPages {
		return prev, false
	}
	m.buf = append(m.buf, make([]byte, delta*wasm.PageSize)...)
	return prev, true
}

var errOutOfRange = stderrors.New("out of range")

func TestHeap_AllocAlignment(t *testing.T) {
	h := NewHeap(newSliceMemory(1), 1030)
	if h.Base() != 1032 {
		t.Fatalf("Base = %d, want 1032", h.Base())
	}

	tests := []struct {
		size, align uint32
	}{
		{1, 1}, {13, 8}, {64, 16}, {3, 64}, {0, 8},
	}
	for _, tt := range tests {
		ptr, err := h.Alloc(tt.size, tt.align)
		if err != nil {
			t.Fatalf("Alloc(%d, %d): %v", tt.size, tt.align, err)
		}
		want := tt.align
		if want < minAlign {
			want = minAlign
		}
		if ptr%want != 0 || ptr < h.Base() {
			t.Errorf("Alloc(%d, %d) = %d, misaligned", tt.size, tt.align, ptr)
		}
	}
	if h.Live() != len(tests) {
		t.Errorf("Live = %d, want %d", h.Live(), len(tests))
	}

	if _, err := h.Alloc(8, 12); err == nil {
		t.Error("non power-of-two alignment should fail")
	}
}

func TestHeap_ReuseAndCoalesce(t *testing.T) {
	h := NewHeap(newSliceMemory(1), 1024)

	a, _ := h.Alloc(16, 8)
	b, _ := h.Alloc(16, 8)
	c, _ := h.Alloc(16, 8)
	if a != 1024 || b != 1040 || c != 1056 {
		t.Fatalf("bump order = %d %d %d", a, b, c)
	}

	h.Free(a)
	h.Free(b)
	d, err := h.Alloc(32, 8)
	if err != nil {
		t.Fatal(err)
	}
	if d != a {
		t.Errorf("coalesced block not reused: got %d, want %d", d, a)
	}

	h.Free(c)
	h.Free(d)
	if h.Live() != 0 || h.InUse() != 0 {
		t.Errorf("Live = %d InUse = %d after freeing all", h.Live(), h.InUse())
	}
	if e, _ := h.Alloc(8, 8); e != 1024 {
		t.Errorf("heap should shrink back to base, got %d", e)
	}

	h.Free(99999)
}

func TestHeap_Grow(t *testing.T) {
	mem := newSliceMemory(1)
	h := NewHeap(mem, wasm.PageSize-16)

	ptr, err := h.Alloc(100, 8)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if mem.Size() != 2*wasm.PageSize {
		t.Errorf("memory size = %d, want two pages", mem.Size())
	}
	if err := mem.Write(ptr, make([]byte, 100)); err != nil {
		t.Errorf("allocated block not writable: %v", err)
	}

	if _, err := h.Alloc(64*wasm.PageSize, 8); err == nil {
		t.Error("allocation past the memory limit should fail")
	}
}

func TestReadCString(t *testing.T) {
	mem := newSliceMemory(1)
	long := make([]byte, 700)
	for i := range long {
		long[i] = 'x'
	}
	_ = mem.Write(100, append([]byte("hello"), 0))
	_ = mem.Write(200, append(long, 0))

	got, err := mem.ReadCString(100)
	if err != nil || string(got) != "hello" {
		t.Errorf("ReadCString = %q, %v", got, err)
	}
	got, err = mem.ReadCString(200)
	if err != nil || len(got) != 700 {
		t.Errorf("chunked read = %d bytes, %v", len(got), err)
	}

	for i := range mem.buf[wasm.PageSize-4:] {
		mem.buf[wasm.PageSize-4+i] = 'y'
	}
	if _, err := mem.ReadCString(wasm.PageSize - 4); err == nil {
		t.Error("unterminated string should fail")
	}
	if _, err := mem.ReadCString(wasm.PageSize); err == nil {
		t.Error("offset past the end should fail")
	}
}
