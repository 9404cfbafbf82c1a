package emjs

// Memory is the linear memory of an instantiated module as seen by the host.
type Memory interface {
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
	ReadU32(offset uint32) (uint32, error)
	WriteU32(offset uint32, value uint32) error
	// ReadCString reads bytes from offset up to, not including, the first NUL.
	ReadCString(offset uint32) ([]byte, error)
}

// MemorySizer provides the current size of linear memory in bytes.
type MemorySizer interface {
	Size() uint32
}

// Allocator hands out and releases blocks of linear memory.
type Allocator interface {
	Alloc(size, align uint32) (uint32, error)
	Free(ptr uint32)
}
