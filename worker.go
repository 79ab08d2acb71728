package vidlink

import (
	"github.com/lanikai/vidlink/internal/codec"
	"github.com/lanikai/vidlink/internal/notify"
)

// dequeue drains decoded output for one session until end-of-stream, a
// decoder fault, or cancellation by teardown.
func (m *Manager) dequeue(s *session) {
	defer close(s.done)

	log.Debug("[%s] Starting dequeue worker", s.id)
	err := m.drain(s)

	if s.ctx.Err() != nil {
		// Torn down from outside, which has already reported the end.
		log.Debug("[%s] Dequeue worker cancelled", s.id)
		return
	}
	if err != nil {
		log.Error("[%s] Decoding error: %v", s.id, err)
	}

	m.mu.Lock()
	m.teardown(s, err != nil)
	m.mu.Unlock()
}

func (m *Manager) drain(s *session) error {
	for {
		info, err := s.codec.DequeueOutputBuffer(s.ctx)
		if err != nil {
			return err
		}

		// Always hand the buffer back so the decoder never runs dry.
		if err := s.codec.ReleaseOutputBuffer(info.Index, info.Size != 0); err != nil {
			return err
		}
		m.metrics.FramesDecoded.Inc()

		if s.firstFrame.CompareAndSwap(false, true) {
			log.Info("[%s] Received first decoded frame of size %d", s.id, info.Size)
			m.notify.Post(notify.Started)
		}

		if info.Flags.Has(codec.FlagEndOfStream) {
			log.Info("[%s] Received end of stream flag.", s.id)
			return nil
		}
	}
}
