package binary

import (
	"bytes"
	"encoding/binary"
)

// Writer accumulates WebAssembly binary encodings.
type Writer struct {
	buf bytes.Buffer
}

// NewWriter creates a new Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Bytes returns the written bytes.
func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

// Len returns the number of bytes written.
func (w *Writer) Len() int {
	return w.buf.Len()
}

// Byte writes a single byte.
func (w *Writer) Byte(b byte) {
	w.buf.WriteByte(b)
}

// WriteBytes writes a byte slice as is.
func (w *Writer) WriteBytes(data []byte) {
	w.buf.Write(data)
}

// WriteU32 writes an unsigned LEB128 uint32.
func (w *Writer) WriteU32(v uint32) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		w.buf.WriteByte(b)
		if v == 0 {
			return
		}
	}
}

// WriteS32 writes a signed LEB128 int32.
func (w *Writer) WriteS32(v int32) {
	w.WriteS64(int64(v))
}

// WriteS64 writes a signed LEB128 int64.
func (w *Writer) WriteS64(v int64) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		done := (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0)
		if !done {
			b |= 0x80
		}
		w.buf.WriteByte(b)
		if done {
			return
		}
	}
}

// WriteName writes a length-prefixed UTF-8 name.
func (w *Writer) WriteName(s string) {
	w.WriteU32(uint32(len(s)))
	w.buf.WriteString(s)
}

// WriteVec writes a length-prefixed byte vector.
func (w *Writer) WriteVec(data []byte) {
	w.WriteU32(uint32(len(data)))
	w.buf.Write(data)
}

// WriteU32LE writes a little-endian uint32.
func (w *Writer) WriteU32LE(v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	w.buf.Write(buf[:])
}
