package source

import (
	"context"

	"github.com/lanikai/vidlink/internal/rtp"
)

// An rtpSource receives H.264 over RTP (RFC 6184) on a UDP port, as sent by
// most vehicle camera encoders, and feeds the depacketized Annex B stream.
type rtpSource struct {
	*udpSource
	depacketizer rtp.Depacketizer
}

func openRTP(addr string) (Source, error) {
	src, err := openUDP(addr)
	if err != nil {
		return nil, err
	}
	return &rtpSource{udpSource: src.(*udpSource)}, nil
}

func init() {
	RegisterSourceType("rtp", openRTP)
}

func (s *rtpSource) Run(ctx context.Context, feed func([]byte)) error {
	return s.udpSource.Run(ctx, func(pkt []byte) {
		b, err := s.depacketizer.Depacketize(pkt)
		if err != nil {
			log.Debug("Dropping RTP packet: %v", err)
			return
		}
		if len(b) > 0 {
			feed(b)
		}
	})
}
