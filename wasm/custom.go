package wasm

import "github.com/wippyai/emjs/wasm/internal/binary"

// Decoder reads LEB128 integers, bytes and names from a custom section
// payload.
type Decoder struct {
	r *binary.Reader
}

// NewDecoder creates a Decoder over data.
func NewDecoder(data []byte) *Decoder {
	return &Decoder{r: binary.NewReader(data)}
}

// Byte reads one byte.
func (d *Decoder) Byte() (byte, error) {
	return d.r.ReadByte()
}

// U32 reads an unsigned LEB128 uint32.
func (d *Decoder) U32() (uint32, error) {
	return d.r.ReadU32()
}

// Count reads a vector element count, rejecting one larger than the
// unread input.
func (d *Decoder) Count() (uint32, error) {
	return d.r.ReadCount()
}

// Name reads a length-prefixed UTF-8 string.
func (d *Decoder) Name() (string, error) {
	return d.r.ReadName()
}

// Bytes reads a length-prefixed byte vector.
func (d *Decoder) Bytes() ([]byte, error) {
	b, err := d.r.ReadVec()
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), b...), nil
}

// Len returns the number of unread bytes.
func (d *Decoder) Len() int {
	return d.r.Len()
}

// Err wraps err with the decoder position and the given section name.
func (d *Decoder) Err(section string, err error) error {
	return d.r.WrapError(section, err)
}
