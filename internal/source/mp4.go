package source

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/nareix/joy4/av"
	"github.com/nareix/joy4/codec/h264parser"
	"github.com/nareix/joy4/format/mp4"
	"github.com/pkg/errors"
)

// An MP4 recording replayed as an Annex B byte stream at its own timing.
type mp4File struct {
	file    *os.File
	demuxer *mp4.Demuxer

	// Index of the H.264 stream, and its parameter sets.
	video int
	info  h264parser.CodecData
}

func openMP4(filename string) (Source, error) {
	log.Info("Opening file %s", filename)
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	demuxer := mp4.NewDemuxer(file)
	codecs, err := demuxer.Streams()
	if err != nil {
		file.Close()
		return nil, err
	}

	for i, cd := range codecs {
		if cd.Type() != av.H264 {
			log.Debug("Skipping %v stream", cd.Type())
			continue
		}
		info := cd.(h264parser.CodecData)
		log.Info("%v stream: %dx%d", info.Type(), info.Width(), info.Height())
		return &mp4File{
			file:    file,
			demuxer: demuxer,
			video:   i,
			info:    info,
		}, nil
	}

	file.Close()
	return nil, errors.Errorf("no H.264 stream in %s", filename)
}

func init() {
	RegisterSourceType("mp4", openMP4)
}

func (f *mp4File) Run(ctx context.Context, feed func([]byte)) error {
	// Wall clock time of the first packet.
	var start time.Time
	var out []byte

	for {
		pkt, err := f.demuxer.ReadPacket()
		if err == io.EOF {
			feed(annexBStartCode)
			return nil
		} else if err != nil {
			return errors.Wrapf(err, "read %s", f.file.Name())
		}
		if int(pkt.Idx) != f.video {
			continue
		}

		if start.IsZero() {
			start = time.Now().Add(-pkt.Time)
		} else if err := sleepUntil(ctx, start.Add(pkt.Time)); err != nil {
			return nil
		}

		out = out[:0]
		if pkt.IsKeyFrame {
			// Send SPS and PPS along with key frame.
			out = appendNALU(out, f.info.SPS())
			out = appendNALU(out, f.info.PPS())
		}
		nalus, _ := h264parser.SplitNALUs(pkt.Data)
		for _, nalu := range nalus {
			out = appendNALU(out, nalu)
		}
		feed(out)
	}
}

func appendNALU(b, nalu []byte) []byte {
	return append(append(b, annexBStartCode...), nalu...)
}

func (f *mp4File) Close() error {
	return f.file.Close()
}
