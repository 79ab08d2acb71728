// Package metrics exposes decode pipeline counters to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lanikai/vidlink/internal/media"
)

const namespace = "vidlink"

type Pipeline struct {
	Sessions        prometheus.Counter
	ChunksSubmitted prometheus.Counter
	ChunksDropped   prometheus.Counter
	FramesDecoded   prometheus.Counter
	DecodeErrors    prometheus.Counter
	InputBytes      prometheus.Counter
	Decoding        prometheus.Gauge
}

func NewPipeline() *Pipeline {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decoder",
			Name:      name,
			Help:      help,
		})
	}
	return &Pipeline{
		Sessions:        counter("sessions_total", "Decode sessions started."),
		ChunksSubmitted: counter("chunks_submitted_total", "Access units queued to the decoder."),
		ChunksDropped:   counter("chunks_dropped_total", "Access units the decoder did not accept."),
		FramesDecoded:   counter("frames_total", "Output buffers drained from the decoder."),
		DecodeErrors:    counter("errors_total", "Sessions ended by a decode failure."),
		InputBytes:      counter("input_bytes_total", "Bytes fed while a session was accepting input."),
		Decoding: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "decoder",
			Name:      "active",
			Help:      "1 while a decode session is active.",
		}),
	}
}

// Register adds the pipeline collectors, plus assembler counters read from
// stats at scrape time, to reg.
func (p *Pipeline) Register(reg prometheus.Registerer, stats func() media.AssemblerStats) error {
	assembler := func(name, help string, field func(media.AssemblerStats) uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "assembler",
			Name:      name,
			Help:      help,
		}, func() float64 {
			return float64(field(stats()))
		})
	}

	collectors := []prometheus.Collector{
		p.Sessions, p.ChunksSubmitted, p.ChunksDropped, p.FramesDecoded,
		p.DecodeErrors, p.InputBytes, p.Decoding,
		assembler("units_total", "Well-formed NAL units parsed.",
			func(s media.AssemblerStats) uint64 { return s.Units }),
		assembler("chunks_total", "Access units emitted.",
			func(s media.AssemblerStats) uint64 { return s.Chunks }),
		assembler("dropped_units_total", "Malformed or orphaned NAL units.",
			func(s media.AssemblerStats) uint64 { return s.DroppedUnits }),
		assembler("dropped_bytes_total", "Bytes discarded while resynchronizing.",
			func(s media.AssemblerStats) uint64 { return s.DroppedBytes }),
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
