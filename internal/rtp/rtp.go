// Package rtp receives H.264 video carried over RTP.
package rtp

import (
	"fmt"

	errors "golang.org/x/xerrors"

	"github.com/lanikai/vidlink/internal/logging"
	"github.com/lanikai/vidlink/internal/packet"
)

var log = logging.DefaultLogger.WithTag("rtp")

// RTP Data Transfer Protocol, as defined in RFC 3550 Section 5.

const (
	// RFC 3550 defines RTP version 2.
	rtpVersion = 2

	rtpHeaderSize = 12
)

type errBadVersion byte

func (e errBadVersion) Error() string {
	return fmt.Sprintf("invalid RTP version: %d", byte(e))
}

// An RTP packet consists of a fixed 12-byte header, zero or more 32-bit CSRC
// identifiers, an optional header extension, then the payload.
// See https://tools.ietf.org/html/rfc3550#section-5.1
//
//	 0                   1                   2                   3
//	 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|V=2|P|X|  CC   |M|     PT      |       sequence number         |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                           timestamp                           |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|           synchronization source (SSRC) identifier            |
//	+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+
//	|            contributing source (CSRC) identifiers             |
//	|                             ....                              |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
type Header struct {
	Marker      bool
	PayloadType byte
	Sequence    uint16
	Timestamp   uint32
	SSRC        uint32
	CSRC        []uint32
}

// Parse an RTP packet, returning its header and payload. Header extensions
// and padding are skipped.
func Parse(buf []byte) (h Header, payload []byte, err error) {
	r := packet.NewReader(buf)
	if err := r.CheckRemaining(rtpHeaderSize); err != nil {
		return h, nil, errors.Errorf("short buffer: %w", err)
	}

	b := r.ReadByte()
	if version := b >> 6; version != rtpVersion {
		return h, nil, errBadVersion(version)
	}
	padding := b&0x20 != 0
	extension := b&0x10 != 0
	csrcCount := int(b & 0x0f)

	b = r.ReadByte()
	h.Marker = b&0x80 != 0
	h.PayloadType = b & 0x7f
	h.Sequence = r.ReadUint16()
	h.Timestamp = r.ReadUint32()
	h.SSRC = r.ReadUint32()
	for i := 0; i < csrcCount; i++ {
		h.CSRC = append(h.CSRC, r.ReadUint32())
	}

	if extension {
		// See https://tools.ietf.org/html/rfc3550#section-5.3.1
		r.Skip(2)
		r.Skip(4 * int(r.ReadUint16()))
	}
	payload = r.ReadRemaining()
	if err := r.Err(); err != nil {
		return h, nil, errors.Errorf("short buffer: %w", err)
	}

	if padding {
		if len(payload) == 0 || int(payload[len(payload)-1]) > len(payload) {
			return h, nil, errors.New("invalid RTP padding")
		}
		payload = payload[:len(payload)-int(payload[len(payload)-1])]
	}
	return h, payload, nil
}

// Marshal the header followed by payload.
func (h *Header) Marshal(payload []byte) []byte {
	w := packet.NewWriterSize(rtpHeaderSize + 4*len(h.CSRC) + len(payload))
	w.WriteByte(rtpVersion<<6 | byte(len(h.CSRC))&0x0f)
	b := h.PayloadType & 0x7f
	if h.Marker {
		b |= 0x80
	}
	w.WriteByte(b)
	w.WriteUint16(h.Sequence)
	w.WriteUint32(h.Timestamp)
	w.WriteUint32(h.SSRC)
	for _, c := range h.CSRC {
		w.WriteUint32(c)
	}
	w.WriteSlice(payload)
	return w.Bytes()
}
