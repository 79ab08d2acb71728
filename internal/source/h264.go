package source

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"time"

	"github.com/lanikai/vidlink/internal/media/h264"
)

const (
	naluBufferInitialSize = 16 * 1024
	naluBufferMaximumSize = 4 * 1024 * 1024

	// Recordings carry no timing, so slices are paced at this rate.
	h264FileFrameRate = 30
)

var annexBStartCode = []byte{0, 0, 0, 1}

// Raw H.264 recording with NALUs separated by Annex B start codes. Each NALU
// is fed with a fresh 4-byte start code, and slices are paced in real time.
type h264File struct {
	in       io.ReadCloser
	scanner  *bufio.Scanner
	interval time.Duration
}

func newH264File(in io.ReadCloser, frameRate int) *h264File {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, naluBufferInitialSize), naluBufferMaximumSize)
	scanner.Split(splitNALU)
	var interval time.Duration
	if frameRate > 0 {
		interval = time.Second / time.Duration(frameRate)
	}
	return &h264File{
		in:       in,
		scanner:  scanner,
		interval: interval,
	}
}

func openH264(filename string) (Source, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	log.Info("Opened %s", filename)
	return newH264File(f, h264FileFrameRate), nil
}

func init() {
	RegisterSourceType("h264", openH264)
}

func (r *h264File) Run(ctx context.Context, feed func([]byte)) error {
	next := time.Now()
	var out []byte
	for r.scanner.Scan() {
		nalu := h264.NALU(r.scanner.Bytes())
		if len(nalu) == 0 {
			continue
		}

		if nalu.IsVCL() && r.interval > 0 {
			if err := sleepUntil(ctx, next); err != nil {
				return nil
			}
			next = next.Add(r.interval)
		}

		out = append(append(out[:0], annexBStartCode...), nalu...)
		feed(out)
	}
	if err := r.scanner.Err(); err != nil {
		return err
	}

	// The final NALU only completes once another start code arrives.
	feed(annexBStartCode)
	return nil
}

func (r *h264File) Close() error {
	return r.in.Close()
}

// Splits NAL units on H.264 Annex B start codes. At EOF the remaining bytes
// are the last NAL unit.
func splitNALU(data []byte, atEOF bool) (advance int, nalu []byte, err error) {
	i := bytes.Index(data, annexBStartCode[1:])

	switch {
	case i == -1:
		if atEOF && len(data) > 0 {
			return len(data), bytes.TrimRight(data, "\x00"), nil
		}
		// No start code found. Wait for more data.
		return 0, nil, nil
	case i == 0:
		// 3-byte start code at data[0].
		return 3, nil, nil
	default:
		// Next start code found at index i. Zeros before it belong to a
		// 4-byte start code or are trailing_zero_8bits.
		return i + 3, bytes.TrimRight(data[:i], "\x00"), nil
	}
}

func sleepUntil(ctx context.Context, t time.Time) error {
	d := time.Until(t)
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
