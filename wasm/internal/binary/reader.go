package binary

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// ErrOverflow is returned when a LEB128 value exceeds its type.
var ErrOverflow = errors.New("leb128: overflow")

// Reader decodes WebAssembly primitives from an in-memory buffer.
type Reader struct {
	data []byte
	pos  int
}

// NewReader creates a Reader over data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Position returns the current byte offset.
func (r *Reader) Position() int {
	return r.pos
}

// Len returns the number of unread bytes.
func (r *Reader) Len() int {
	return len(r.data) - r.pos
}

// ReadByte reads a single byte.
func (r *Reader) ReadByte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, io.ErrUnexpectedEOF
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

// ReadBytes returns the next n bytes. The slice aliases the input.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 || n > r.Len() {
		return nil, r.wrapError(io.ErrUnexpectedEOF)
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// Slice returns data[start:end] of the underlying buffer.
func (r *Reader) Slice(start, end int) []byte {
	return r.data[start:end]
}

// ReadU32 reads an unsigned LEB128 uint32.
func (r *Reader) ReadU32() (uint32, error) {
	var result uint32
	var shift uint
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		result |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
		if shift >= 35 {
			return 0, r.wrapError(ErrOverflow)
		}
	}
}

// ErrCount is returned when a vector count exceeds the unread bytes.
var ErrCount = errors.New("vector count exceeds remaining input")

// ReadCount reads a vector element count. Every element occupies at least
// one byte, so a count larger than the unread input is rejected before
// callers size anything from it.
func (r *Reader) ReadCount() (uint32, error) {
	n, err := r.ReadU32()
	if err != nil {
		return 0, err
	}
	if uint64(n) > uint64(r.Len()) {
		return 0, r.wrapError(fmt.Errorf("%w: %d > %d", ErrCount, n, r.Len()))
	}
	return n, nil
}

// ReadS32 reads a signed LEB128 int32.
func (r *Reader) ReadS32() (int32, error) {
	v, err := r.readSigned(35)
	return int32(v), err
}

// ReadS64 reads a signed LEB128 int64.
func (r *Reader) ReadS64() (int64, error) {
	return r.readSigned(70)
}

func (r *Reader) readSigned(limit uint) (int64, error) {
	var result int64
	var shift uint
	var b byte
	var err error
	for {
		b, err = r.ReadByte()
		if err != nil {
			return 0, err
		}
		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
		if shift >= limit {
			return 0, r.wrapError(ErrOverflow)
		}
	}
	if shift < 64 && b&0x40 != 0 {
		result |= ^int64(0) << shift
	}
	return result, nil
}

// ReadName reads a length-prefixed UTF-8 name.
func (r *Reader) ReadName() (string, error) {
	data, err := r.ReadVec()
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", r.wrapError(errors.New("invalid UTF-8 in name"))
	}
	return string(data), nil
}

// ReadVec reads a length-prefixed byte vector.
func (r *Reader) ReadVec() ([]byte, error) {
	n, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	return r.ReadBytes(int(n))
}

// ReadU32LE reads a little-endian uint32.
func (r *Reader) ReadU32LE() (uint32, error) {
	buf, err := r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf), nil
}

func (r *Reader) wrapError(err error) error {
	return fmt.Errorf("at position %d: %w", r.pos, err)
}

// ParseError carries the section and offset of a decoding failure.
type ParseError struct {
	Err      error
	Section  string
	Position int
}

func (e *ParseError) Error() string {
	if e.Section != "" {
		return fmt.Sprintf("wasm: %s at position %d: %v", e.Section, e.Position, e.Err)
	}
	return fmt.Sprintf("wasm: at position %d: %v", e.Position, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// WrapError creates a ParseError at the current position.
func (r *Reader) WrapError(section string, err error) error {
	return &ParseError{
		Position: r.pos,
		Section:  section,
		Err:      err,
	}
}
