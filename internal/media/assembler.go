//////////////////////////////////////////////////////////////////////////////
//
// Access unit assembly for H.264 Annex B byte streams
//
// Copyright 2019 Lanikai Labs LLC. All rights reserved.
//
//////////////////////////////////////////////////////////////////////////////

package media

import (
	"bytes"
	"sync"
	"time"

	"github.com/lanikai/vidlink/internal/codec"
	"github.com/lanikai/vidlink/internal/media/h264"
)

const (
	defaultFrameRate   = 30
	defaultMaxUnitSize = 4 * 1024 * 1024

	// Non-VCL units held while waiting for a slice. A stream that never sends
	// a slice would otherwise grow the pending group without bound.
	maxPendingUnits = 32
)

var (
	h264StartCode = []byte{0, 0, 1}
	chunkPrefix   = []byte{0, 0, 0, 1}
)

type AssemblerConfig struct {
	// Frames per second, used to derive presentation timestamps. Defaults to 30.
	FrameRate int

	// Largest NAL unit accepted. A unit that grows past this without a
	// terminating start code is dropped. Defaults to 4 MiB.
	MaxUnitSize int
}

type AssemblerStats struct {
	Units        uint64 // well-formed NAL units parsed
	Chunks       uint64 // chunks emitted
	DroppedUnits uint64 // malformed or orphaned NAL units
	DroppedBytes uint64 // bytes discarded while resynchronizing
}

// An Assembler turns an Annex B byte stream, delivered in arbitrarily sized
// pieces, into Chunks. A NAL unit is complete once the start code following it
// has arrived, so the last unit of a push is always carried over to the next.
// Safe for concurrent use.
type Assembler struct {
	cfg      AssemblerConfig
	interval time.Duration

	mu sync.Mutex

	// Carry-over. When synced, buf holds the body of the current unit (the
	// bytes after its start code).
	buf    []byte
	synced bool

	// Offset into buf already searched for the next start code.
	scanned int

	pending      [][]byte
	pendingFlags codec.Flags

	frames int64
	stats  AssemblerStats
}

func NewAssembler(cfg AssemblerConfig) *Assembler {
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = defaultFrameRate
	}
	if cfg.MaxUnitSize <= 0 {
		cfg.MaxUnitSize = defaultMaxUnitSize
	}
	return &Assembler{
		cfg:      cfg,
		interval: time.Second / time.Duration(cfg.FrameRate),
	}
}

// Assemble appends b to the carry-over and returns every chunk completed by
// it, in stream order. It returns nil if no chunk is complete yet.
func (a *Assembler) Assemble(b []byte) []*Chunk {
	if len(b) == 0 {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	data := append(a.buf, b...)
	off := 0
	var chunks []*Chunk

	for {
		if !a.synced {
			i := bytes.Index(data[off:], h264StartCode)
			if i < 0 {
				// Trailing zeros may begin a start code.
				tail := data[off:]
				keep := len(tail) - len(bytes.TrimRight(tail, "\x00"))
				if keep > 3 {
					keep = 3
				}
				a.stats.DroppedBytes += uint64(len(tail) - keep)
				off = len(data) - keep
				break
			}
			if lead := leadingGarbage(data[off : off+i]); lead > 0 {
				log.Debug("Resynchronized after %d bytes", lead)
				a.stats.DroppedBytes += uint64(lead)
			}
			off += i + len(h264StartCode)
			a.synced = true
			a.scanned = 0
		}

		i := bytes.Index(data[off+a.scanned:], h264StartCode)
		if i < 0 {
			body := len(data) - off
			if body > a.cfg.MaxUnitSize {
				log.Warn("Dropping %d byte unit without boundary", body)
				a.stats.DroppedUnits++
				a.stats.DroppedBytes += uint64(body)
				off = len(data)
				a.synced = false
				a.scanned = 0
				break
			}
			if a.scanned = body - 2; a.scanned < 0 {
				a.scanned = 0
			}
			break
		}

		end := off + a.scanned + i
		if c := a.push(bytes.TrimRight(data[off:end], "\x00")); c != nil {
			chunks = append(chunks, c)
		}
		off = end + len(h264StartCode)
		a.scanned = 0
	}

	// Move the unconsumed tail to the front. Chunks never alias buf.
	a.buf = append(data[:0], data[off:]...)
	return chunks
}

// Bytes before a start code, excluding the zeros that belong to a 4-byte
// start code or trailing_zero_8bits.
func leadingGarbage(b []byte) int {
	return len(bytes.TrimRight(b, "\x00"))
}

func (a *Assembler) push(nal []byte) *Chunk {
	unit := h264.NALU(nal)
	if !unit.Valid() {
		a.stats.DroppedUnits++
		a.stats.DroppedBytes += uint64(len(nal))
		return nil
	}
	a.stats.Units++

	seg := make([]byte, len(chunkPrefix)+len(nal))
	copy(seg, chunkPrefix)
	copy(seg[len(chunkPrefix):], nal)

	if !unit.IsVCL() {
		if unit.Type() == h264.TypeFillerData {
			return nil
		}
		if len(a.pending) == maxPendingUnits {
			log.Warn("Discarding %d units not followed by a slice", len(a.pending))
			a.stats.DroppedUnits += uint64(len(a.pending))
			a.pending = a.pending[:0]
			a.pendingFlags = 0
		}
		if unit.IsParameterSet() {
			a.pendingFlags |= codec.FlagCodecConfig
		}
		a.pending = append(a.pending, seg)
		return nil
	}

	flags := a.pendingFlags
	if unit.IsKeyFrame() {
		flags |= codec.FlagKeyFrame
	}
	c := &Chunk{
		Payloads: append(a.pending, seg),
		PTS:      a.pts(),
		Flags:    flags,
	}
	a.pending = nil
	a.pendingFlags = 0
	a.frames++
	a.stats.Chunks++
	return c
}

func (a *Assembler) pts() time.Duration {
	return time.Duration(a.frames) * a.interval
}

// EndOfStream returns an empty chunk flagged end-of-stream, which tells the
// decoder to flush.
func (a *Assembler) EndOfStream() *Chunk {
	a.mu.Lock()
	defer a.mu.Unlock()
	return &Chunk{PTS: a.pts(), Flags: codec.FlagEndOfStream}
}

// Reset discards all carry-over so nothing leaks into the next stream.
func (a *Assembler) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.buf = nil
	a.synced = false
	a.scanned = 0
	a.pending = nil
	a.pendingFlags = 0
	a.frames = 0
}

func (a *Assembler) Stats() AssemblerStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}
