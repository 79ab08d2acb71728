package packet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadWrite(t *testing.T) {
	w := NewWriterSize(4)
	w.WriteByte(0x80)
	w.WriteUint16(0x1234)
	w.WriteUint32(0xdeadbeef)
	w.WriteSlice([]byte("abc"))
	w.ZeroPad(2)
	require.Equal(t, 12, w.Length())

	r := NewReader(w.Bytes())
	assert.Equal(t, byte(0x80), r.ReadByte())
	assert.Equal(t, uint16(0x1234), r.ReadUint16())
	assert.Equal(t, uint32(0xdeadbeef), r.ReadUint32())
	assert.Equal(t, []byte("abc"), r.ReadSlice(3))
	assert.Equal(t, 2, r.Remaining())
	assert.Equal(t, []byte{0, 0}, r.ReadRemaining())
	assert.NoError(t, r.Err())
}

func TestShortRead(t *testing.T) {
	r := NewReader([]byte{1, 2, 3})
	assert.Equal(t, uint16(0x0102), r.ReadUint16())
	assert.Zero(t, r.ReadUint32())
	assert.Error(t, r.Err())

	// The error is sticky.
	assert.Zero(t, r.ReadByte())
	assert.Zero(t, r.Remaining())
	assert.Error(t, r.Err())
}
