package media

import (
	"time"

	"github.com/lanikai/vidlink/internal/codec"
)

// A Chunk is one decodable access unit: the NAL units of a coded slice,
// preceded by any parameter sets and SEI that arrived ahead of it. Each
// payload is a single NAL unit with a 4-byte Annex B start code.
//
// Chunks own their payload memory and must not be modified once emitted.
type Chunk struct {
	Payloads [][]byte
	PTS      time.Duration
	Flags    codec.Flags
}

// Len returns the total payload size in bytes.
func (c *Chunk) Len() int {
	n := 0
	for _, p := range c.Payloads {
		n += len(p)
	}
	return n
}

func (c *Chunk) IsEndOfStream() bool {
	return c.Flags.Has(codec.FlagEndOfStream)
}
