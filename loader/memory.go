package loader

import (
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/emjs"
	"github.com/wippyai/emjs/errors"
)

// GrowableMemory is linear memory that can be extended by whole pages.
type GrowableMemory interface {
	emjs.Memory
	emjs.MemorySizer
	Grow(deltaPages uint32) (previousPages uint32, ok bool)
}

// wazeroMemory wraps wazero memory to implement GrowableMemory
type wazeroMemory struct {
	mem api.Memory
}

func (m *wazeroMemory) Read(offset uint32, length uint32) ([]byte, error) {
	data, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, errors.OutOfBounds(errors.PhaseRuntime, "read", offset, length)
	}
	return data, nil
}

func (m *wazeroMemory) Write(offset uint32, data []byte) error {
	if !m.mem.Write(offset, data) {
		return errors.OutOfBounds(errors.PhaseRuntime, "write", offset, uint32(len(data)))
	}
	return nil
}

func (m *wazeroMemory) ReadU32(offset uint32) (uint32, error) {
	val, ok := m.mem.ReadUint32Le(offset)
	if !ok {
		return 0, errors.OutOfBounds(errors.PhaseRuntime, "read u32", offset, 4)
	}
	return val, nil
}

func (m *wazeroMemory) WriteU32(offset uint32, value uint32) error {
	if !m.mem.WriteUint32Le(offset, value) {
		return errors.OutOfBounds(errors.PhaseRuntime, "write u32", offset, 4)
	}
	return nil
}

func (m *wazeroMemory) ReadCString(offset uint32) ([]byte, error) {
	return readCString(m, offset)
}

func (m *wazeroMemory) Size() uint32 {
	if m.mem == nil {
		return 0
	}
	return m.mem.Size()
}

func (m *wazeroMemory) Grow(deltaPages uint32) (uint32, bool) {
	return m.mem.Grow(deltaPages)
}

const cstringChunk = 256

// readCString scans forward from offset in chunks until a NUL byte.
func readCString(m GrowableMemory, offset uint32) ([]byte, error) {
	size := m.Size()
	if offset >= size {
		return nil, errors.OutOfBounds(errors.PhaseRuntime, "read string", offset, 0)
	}
	var out []byte
	for pos := offset; pos < size; {
		n := uint32(cstringChunk)
		if size-pos < n {
			n = size - pos
		}
		chunk, err := m.Read(pos, n)
		if err != nil {
			return nil, err
		}
		for i, c := range chunk {
			if c == 0 {
				return append(out, chunk[:i]...), nil
			}
		}
		out = append(out, chunk...)
		pos += n
	}
	return nil, errors.InvalidData(errors.PhaseRuntime, "", "string is not NUL-terminated")
}

var _ GrowableMemory = (*wazeroMemory)(nil)
