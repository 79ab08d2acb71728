package rtp

import (
	errors "golang.org/x/xerrors"

	"github.com/lanikai/vidlink/internal/media/h264"
	"github.com/lanikai/vidlink/internal/packet"
)

// RTP depacketization of H.264 video streams.
// See [RFC 6184](https://tools.ietf.org/html/rfc6184).

const (
	// NAL unit types. See https://tools.ietf.org/html/rfc6184#section-5.2
	naluTypeSTAP_A = 24
	naluTypeSTAP_B = 25
	naluTypeMTAP16 = 26
	naluTypeMTAP24 = 27
	naluTypeFU_A   = 28
	naluTypeFU_B   = 29
)

var startCode = []byte{0, 0, 0, 1}

// A Depacketizer turns RTP packets carrying H.264 in single NAL unit or
// non-interleaved mode back into an Annex B byte stream. Packets must arrive
// in order; a sequence gap in the middle of a fragmented unit discards that
// unit. Not safe for concurrent use.
type Depacketizer struct {
	// Payload type to accept, or 0 for any.
	PayloadType byte

	started bool
	ssrc    uint32
	next    uint16

	// NAL unit being reassembled from FU-A fragments, without start code.
	fragment []byte

	out []byte

	Lost uint64
}

// Depacketize returns the Annex B bytes carried by one RTP packet. The result
// is valid until the next call.
func (d *Depacketizer) Depacketize(buf []byte) ([]byte, error) {
	h, payload, err := Parse(buf)
	if err != nil {
		return nil, err
	}
	if d.PayloadType != 0 && h.PayloadType != d.PayloadType {
		return nil, nil
	}

	if !d.started || h.SSRC != d.ssrc {
		if d.started {
			log.Info("SSRC changed from %08x to %08x", d.ssrc, h.SSRC)
		}
		d.started = true
		d.ssrc = h.SSRC
		d.fragment = d.fragment[:0]
	} else if h.Sequence != d.next {
		lost := uint64(h.Sequence - d.next)
		if lost > 0x8000 {
			log.Debug("Dropping late packet %d", h.Sequence)
			return nil, nil
		}
		d.Lost += lost
		log.Debug("Lost %d packets before %d", lost, h.Sequence)
		if len(d.fragment) > 0 {
			log.Debug("Discarding %d bytes of fragmented unit", len(d.fragment))
			d.fragment = d.fragment[:0]
		}
	}
	d.next = h.Sequence + 1

	d.out = d.out[:0]
	if len(payload) == 0 {
		return nil, nil
	}

	switch typ := payload[0] & 0x1f; typ {
	case naluTypeSTAP_A:
		// See https://tools.ietf.org/html/rfc6184#section-5.7.1
		r := packet.NewReader(payload[1:])
		for r.Remaining() > 0 {
			nalu := r.ReadSlice(int(r.ReadUint16()))
			if err := r.Err(); err != nil {
				return nil, errors.Errorf("truncated STAP-A: %w", err)
			}
			d.appendNALU(nalu)
		}

	case naluTypeFU_A:
		// See https://tools.ietf.org/html/rfc6184#section-5.8
		if len(payload) < 2 {
			return nil, errors.New("truncated FU-A")
		}
		indicator, header := payload[0], payload[1]
		start, end := header&0x80 != 0, header&0x40 != 0
		if start {
			d.fragment = append(d.fragment[:0], indicator&0xe0|header&0x1f)
		} else if len(d.fragment) == 0 {
			// Missed the start of this unit.
			return nil, nil
		}
		d.fragment = append(d.fragment, payload[2:]...)
		if end {
			d.appendNALU(d.fragment)
			d.fragment = d.fragment[:0]
		}

	case naluTypeSTAP_B, naluTypeMTAP16, naluTypeMTAP24, naluTypeFU_B:
		return nil, errors.Errorf("interleaved packetization (type %d) not supported", typ)

	default:
		// See https://tools.ietf.org/html/rfc6184#section-5.6
		d.appendNALU(payload)
	}
	return d.out, nil
}

func (d *Depacketizer) appendNALU(nalu h264.NALU) {
	if !nalu.Valid() {
		return
	}
	d.out = append(d.out, startCode...)
	d.out = append(d.out, nalu...)
}
