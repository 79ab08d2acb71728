package rtp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanikai/vidlink/internal/packet"
)

var (
	sps = []byte{0x67, 0x42, 0x00, 0x1e}
	pps = []byte{0x68, 0xce, 0x38, 0x80}
	idr = []byte{0x65, 0x88, 0x84, 0x00, 0x33, 0x44, 0x55}
)

func annexB(nalus ...[]byte) []byte {
	var b []byte
	for _, n := range nalus {
		b = append(b, startCode...)
		b = append(b, n...)
	}
	return b
}

func rtpPacket(seq uint16, payload []byte) []byte {
	h := Header{PayloadType: 96, Sequence: seq, Timestamp: 3000, SSRC: 0xcafe}
	return h.Marshal(payload)
}

func stapA(nalus ...[]byte) []byte {
	w := packet.NewWriterSize(64)
	w.WriteByte(naluTypeSTAP_A | 0x60)
	for _, n := range nalus {
		w.WriteUint16(uint16(len(n)))
		w.WriteSlice(n)
	}
	return w.Bytes()
}

// Splits nalu into FU-A fragments carrying at most size bytes each.
func fuA(nalu []byte, size int) [][]byte {
	var frags [][]byte
	body := nalu[1:]
	for i := 0; i < len(body); i += size {
		end := i + size
		header := nalu[0] & 0x1f
		if i == 0 {
			header |= 0x80
		}
		if end >= len(body) {
			end = len(body)
			header |= 0x40
		}
		frag := []byte{nalu[0]&0xe0 | naluTypeFU_A, header}
		frags = append(frags, append(frag, body[i:end]...))
	}
	return frags
}

func TestParseHeader(t *testing.T) {
	h := Header{Marker: true, PayloadType: 96, Sequence: 7, Timestamp: 9000, SSRC: 1, CSRC: []uint32{2}}
	got, payload, err := Parse(h.Marshal([]byte{1, 2, 3}))
	require.NoError(t, err)
	assert.Equal(t, h, got)
	assert.Equal(t, []byte{1, 2, 3}, payload)
}

func TestParseErrors(t *testing.T) {
	_, _, err := Parse([]byte{0x80, 96})
	assert.Error(t, err)

	pkt := rtpPacket(1, []byte{0x65})
	pkt[0] = 0x40
	_, _, err = Parse(pkt)
	assert.Equal(t, errBadVersion(1), err)

	// Padding longer than the payload.
	pkt = rtpPacket(1, []byte{0x65, 9})
	pkt[0] |= 0x20
	_, _, err = Parse(pkt)
	assert.Error(t, err)
}

func TestParseExtensionAndPadding(t *testing.T) {
	w := packet.NewWriterSize(32)
	w.WriteByte(0x80 | 0x20 | 0x10)
	w.WriteByte(96)
	w.WriteUint16(1)
	w.WriteUint32(0)
	w.WriteUint32(0xcafe)
	w.WriteUint16(0xbede) // extension profile
	w.WriteUint16(1)      // one word
	w.WriteUint32(0)
	w.WriteSlice(idr)
	w.ZeroPad(1)
	w.WriteByte(2) // two bytes of padding

	_, payload, err := Parse(w.Bytes())
	require.NoError(t, err)
	assert.Equal(t, idr, payload)
}

func TestDepacketizeSingleAndSTAP(t *testing.T) {
	var d Depacketizer

	out, err := d.Depacketize(rtpPacket(10, stapA(sps, pps)))
	require.NoError(t, err)
	assert.Equal(t, annexB(sps, pps), out)

	out, err = d.Depacketize(rtpPacket(11, idr))
	require.NoError(t, err)
	assert.Equal(t, annexB(idr), out)
	assert.Zero(t, d.Lost)
}

func TestDepacketizeFragments(t *testing.T) {
	var d Depacketizer
	var got []byte
	for i, frag := range fuA(idr, 2) {
		out, err := d.Depacketize(rtpPacket(uint16(100+i), frag))
		require.NoError(t, err)
		got = append(got, out...)
	}
	assert.Equal(t, annexB(idr), got)
}

func TestDepacketizeLossDropsFragment(t *testing.T) {
	var d Depacketizer
	frags := fuA(idr, 2)
	require.Len(t, frags, 3)

	out, err := d.Depacketize(rtpPacket(1, frags[0]))
	require.NoError(t, err)
	assert.Empty(t, out)

	// Middle fragment lost.
	out, err = d.Depacketize(rtpPacket(3, frags[2]))
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, uint64(1), d.Lost)

	// The stream recovers on the next unit.
	out, err = d.Depacketize(rtpPacket(4, idr))
	require.NoError(t, err)
	assert.Equal(t, annexB(idr), out)
}

func TestDepacketizeFiltersPayloadType(t *testing.T) {
	d := Depacketizer{PayloadType: 97}
	out, err := d.Depacketize(rtpPacket(1, idr))
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestDepacketizeInterleavedUnsupported(t *testing.T) {
	var d Depacketizer
	_, err := d.Depacketize(rtpPacket(1, []byte{naluTypeFU_B, 0x85, 0, 0}))
	assert.Error(t, err)
}
