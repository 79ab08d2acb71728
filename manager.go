//////////////////////////////////////////////////////////////////////////////
//
// Manager feeds a vehicle video link into a decoder session
//
// Copyright 2019 Lanikai Labs LLC. All rights reserved.
//
//////////////////////////////////////////////////////////////////////////////

package vidlink

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lanikai/vidlink/internal/codec"
	"github.com/lanikai/vidlink/internal/media"
	"github.com/lanikai/vidlink/internal/metrics"
	"github.com/lanikai/vidlink/internal/notify"
)

type State int32

const (
	// No session.
	Idle State = iota

	// Start is creating the decoder.
	Starting

	// Decoding, and fed bytes are passed to the decoder.
	Accepting

	// Input closed and end-of-stream queued; waiting for the decoder to drain.
	Flushing

	// Input closed, but the decoder did not take the end-of-stream buffer.
	// The next Feed retries it.
	FlushPending
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Accepting:
		return "accepting"
	case Flushing:
		return "flushing"
	case FlushPending:
		return "flush-pending"
	default:
		return "unknown"
	}
}

// A session owns one decoder handle from Start until teardown.
type session struct {
	id    string
	codec codec.Codec

	// Cancelled on teardown. The dequeue worker treats cancellation as a
	// request to exit quietly.
	ctx    context.Context
	cancel context.CancelFunc

	// Set once, by the first output buffer.
	firstFrame atomic.Bool

	// Closed when the dequeue worker exits.
	done chan struct{}
}

type listenerBox struct {
	l Listener
}

// Manager runs at most one decode session at a time. Start, Feed and Stop
// may be called from any goroutine.
type Manager struct {
	cfg     Config
	asm     *media.Assembler
	metrics *metrics.Pipeline
	notify  *notify.Dispatcher

	state    atomic.Int32
	sess     atomic.Pointer[session]
	listener atomic.Pointer[listenerBox]

	// Serializes Start, Stop and teardown. Feed never takes it, and nothing
	// blocks on the decoder while holding it.
	mu sync.Mutex
}

func NewManager(cfg Config) (*Manager, error) {
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	m := &Manager{
		cfg: cfg,
		asm: media.NewAssembler(media.AssemblerConfig{
			FrameRate:   cfg.FrameRate,
			MaxUnitSize: cfg.MaxUnitSize,
		}),
		metrics: metrics.NewPipeline(),
	}
	m.notify = notify.New(m.deliver)
	return m, nil
}

// RegisterMetrics exposes the decode pipeline counters on reg.
func (m *Manager) RegisterMetrics(reg prometheus.Registerer) error {
	return m.metrics.Register(reg, m.asm.Stats)
}

func (m *Manager) State() State {
	return State(m.state.Load())
}

// Decoding reports whether a session is active.
func (m *Manager) Decoding() bool {
	return m.State() != Idle
}

// Start begins a session that decodes onto surface. If a session is already
// active, Start does nothing.
func (m *Manager) Start(surface codec.Surface, l Listener) error {
	if surface == nil {
		return ErrNoSurface
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.state.CompareAndSwap(int32(Idle), int32(Starting)) {
		log.Debug("Already %v, ignoring start", m.State())
		return nil
	}

	log.Info("Starting decoding...")
	m.asm.Reset()
	m.setListener(l)

	s, err := m.newSession(surface)
	if err != nil {
		m.state.Store(int32(Idle))
		return err
	}

	m.sess.Store(s)
	m.metrics.Sessions.Inc()
	m.metrics.Decoding.Set(1)
	m.state.Store(int32(Accepting))

	go m.dequeue(s)
	return nil
}

func (m *Manager) newSession(surface codec.Surface) (*session, error) {
	c, err := m.cfg.Codecs(m.cfg.MimeType)
	if err != nil {
		return nil, errors.Wrap(err, "create decoder")
	}

	format := codec.Format{
		MimeType: m.cfg.MimeType,
		Width:    m.cfg.Width,
		Height:   m.cfg.Height,
	}
	if err := c.Configure(format, surface); err != nil {
		c.Release()
		return nil, errors.Wrap(err, "configure decoder")
	}
	if err := c.Start(); err != nil {
		c.Release()
		return nil, errors.Wrap(err, "start decoder")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		id:     uuid.New().String()[:8],
		codec:  c,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	log.Info("[%s] Decoding %s at %dx%d", s.id, format.MimeType, format.Width, format.Height)
	return s, nil
}

// Feed passes inbound stream bytes to the active session. Without an active
// session it does nothing. Access units the decoder cannot take are dropped.
func (m *Manager) Feed(b []byte) {
	switch State(m.state.Load()) {
	case Accepting:
		s := m.sess.Load()
		if s == nil {
			return
		}
		m.metrics.InputBytes.Add(float64(len(b)))
		for _, chunk := range m.asm.Assemble(b) {
			if m.submit(s, chunk) {
				m.metrics.ChunksSubmitted.Inc()
			} else {
				m.metrics.ChunksDropped.Inc()
			}
		}

	case FlushPending:
		if m.state.CompareAndSwap(int32(FlushPending), int32(Flushing)) {
			if s := m.sess.Load(); s != nil {
				log.Debug("[%s] Sending end of stream data.", s.id)
				m.flush(s)
			}
		}
	}
}

// Write implements io.Writer on top of Feed. It never fails.
func (m *Manager) Write(p []byte) (int, error) {
	m.Feed(p)
	return len(p), nil
}

// Stop ends the active session. If the decoder has produced output, input is
// closed and the decoder drains to end-of-stream; otherwise the session is
// torn down at once. l is told when the session has ended, immediately if
// there was none.
func (m *Manager) Stop(l Listener) {
	log.Info("Stopping input data processing...")
	m.setListener(l)

	m.mu.Lock()
	s := m.sess.Load()
	if s == nil {
		m.mu.Unlock()
		m.notify.Post(notify.Ended)
		return
	}

	if !s.firstFrame.Load() {
		// A decoder that has not produced anything may never drain.
		log.Info("[%s] No frame decoded yet, stopping immediately", s.id)
		m.teardown(s, false)
		m.mu.Unlock()
		return
	}

	closed := m.state.CompareAndSwap(int32(Accepting), int32(Flushing))
	m.mu.Unlock()

	if closed {
		m.flush(s)
	}
}

// Close tears down any active session and stops event delivery once every
// pending event has been delivered.
func (m *Manager) Close() error {
	m.mu.Lock()
	if s := m.sess.Load(); s != nil {
		m.teardown(s, false)
	}
	m.mu.Unlock()

	return m.notify.Close()
}

// flush queues end-of-stream; on failure the next Feed retries.
func (m *Manager) flush(s *session) {
	if m.submit(s, m.asm.EndOfStream()) {
		return
	}
	if m.state.CompareAndSwap(int32(Flushing), int32(FlushPending)) {
		log.Debug("[%s] End of stream not accepted, will retry", s.id)
	}
}

// submit copies chunk into a decoder input buffer and queues it, blocking
// until an input buffer is free. It reports whether the decoder took it.
func (m *Manager) submit(s *session, chunk *media.Chunk) bool {
	if chunk == nil || s == nil || s.codec == nil {
		return false
	}

	index, buf, err := s.codec.DequeueInputBuffer(s.ctx)
	if err != nil {
		log.Debug("[%s] No input buffer: %v", s.id, err)
		return false
	}

	if size := chunk.Len(); size > len(buf) {
		log.Warn("[%s] Dropping %d byte access unit, input buffer holds %d", s.id, size, len(buf))
		// Hand the buffer back empty.
		if err := s.codec.QueueInputBuffer(index, 0, chunk.PTS, 0); err != nil {
			log.Debug("[%s] %v", s.id, err)
		}
		return false
	}

	n := 0
	for _, p := range chunk.Payloads {
		n += copy(buf[n:], p)
	}

	if err := s.codec.QueueInputBuffer(index, n, chunk.PTS, chunk.Flags); err != nil {
		log.Error("[%s] Queue input buffer: %v", s.id, err)
		return false
	}
	return true
}

// teardown stops and releases the session's decoder and reports the end of
// the session. Only the first call for a session has any effect. Must be
// called with m.mu held.
func (m *Manager) teardown(s *session, failed bool) {
	if m.sess.Load() != s {
		return
	}

	m.state.Store(int32(Idle))
	m.sess.Store(nil)
	s.cancel()

	if err := s.codec.Stop(); err != nil {
		log.Error("[%s] Error while stopping decoder: %v", s.id, err)
	}
	s.codec.Release()
	m.asm.Reset()
	m.metrics.Decoding.Set(0)

	if failed {
		m.metrics.DecodeErrors.Inc()
		m.notify.Post(notify.Error)
	}
	m.notify.Post(notify.Ended)
	log.Info("[%s] Decoding ended", s.id)
}

func (m *Manager) setListener(l Listener) {
	m.listener.Store(&listenerBox{l})
}

// deliver runs on the dispatcher goroutine and addresses whichever listener
// is current at delivery time.
func (m *Manager) deliver(e notify.Event) {
	box := m.listener.Load()
	if box == nil || box.l == nil {
		return
	}

	switch e {
	case notify.Started:
		box.l.OnDecodingStarted()
	case notify.Error:
		box.l.OnDecodingError()
	case notify.Ended:
		box.l.OnDecodingEnded()
	}
}
