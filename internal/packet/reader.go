// Package packet reads and writes big-endian wire formats.
package packet

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

var networkOrder = binary.BigEndian

// A Reader consumes fields from a received packet. Reads past the end of the
// packet return zero values and set a sticky error, so a parser can read a
// whole header and check Err once.
type Reader struct {
	buffer []byte
	offset int
	err    error
}

func NewReader(buffer []byte) *Reader {
	return &Reader{buffer: buffer}
}

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if err := r.CheckRemaining(n); err != nil {
		r.err = err
		r.offset = len(r.buffer)
		return nil
	}
	v := r.buffer[r.offset : r.offset+n]
	r.offset += n
	return v
}

func (r *Reader) ReadByte() byte {
	if v := r.take(1); v != nil {
		return v[0]
	}
	return 0
}

func (r *Reader) ReadUint16() uint16 {
	if v := r.take(2); v != nil {
		return networkOrder.Uint16(v)
	}
	return 0
}

func (r *Reader) ReadUint32() uint32 {
	if v := r.take(4); v != nil {
		return networkOrder.Uint32(v)
	}
	return 0
}

func (r *Reader) ReadSlice(n int) []byte {
	return r.take(n)
}

func (r *Reader) Skip(n int) {
	r.take(n)
}

func (r *Reader) ReadRemaining() []byte {
	return r.take(r.Remaining())
}

// Return the number of bytes left in the buffer.
func (r *Reader) Remaining() int {
	return len(r.buffer) - r.offset
}

func (r *Reader) CheckRemaining(needed int) error {
	if needed < 0 || r.Remaining() < needed {
		return errors.Errorf("%d bytes remaining, %d needed", r.Remaining(), needed)
	}
	return nil
}

// Err returns the first short read, if any.
func (r *Reader) Err() error {
	return r.err
}
