package vidlink

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"

	"github.com/lanikai/vidlink/internal/codec"
	"github.com/lanikai/vidlink/internal/notify"
)

type queuedInput struct {
	data  []byte
	pts   time.Duration
	flags codec.Flags
}

type fakeOutput struct {
	info codec.BufferInfo
	err  error
}

// fakeCodec hands out a single input buffer that never runs out, and emits
// output buffers only when the test pushes them (or when end-of-stream is
// queued).
type fakeCodec struct {
	mu            sync.Mutex
	configureErr  error
	inputFailures int
	stopped       bool
	released      bool
	inputs        []queuedInput
	renders       []bool

	slot     []byte
	outputs  chan fakeOutput
	stop     chan struct{}
	stopOnce sync.Once
}

func newFakeCodec() *fakeCodec {
	return &fakeCodec{
		slot:    make([]byte, 1024),
		outputs: make(chan fakeOutput, 16),
		stop:    make(chan struct{}),
	}
}

func (f *fakeCodec) Configure(codec.Format, codec.Surface) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.configureErr
}

func (f *fakeCodec) Start() error { return nil }

func (f *fakeCodec) Stop() error {
	f.stopOnce.Do(func() { close(f.stop) })
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
	return nil
}

func (f *fakeCodec) Release() {
	f.mu.Lock()
	f.released = true
	f.mu.Unlock()
}

func (f *fakeCodec) DequeueInputBuffer(ctx context.Context) (int, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped || f.released {
		return -1, nil, xerrors.Errorf("dequeue input: %w", codec.ErrIllegalState)
	}
	if f.inputFailures > 0 {
		f.inputFailures--
		return -1, nil, xerrors.Errorf("input queue full: %w", codec.ErrIllegalState)
	}
	return 0, f.slot, nil
}

func (f *fakeCodec) QueueInputBuffer(index, size int, pts time.Duration, flags codec.Flags) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped {
		return codec.ErrIllegalState
	}
	f.inputs = append(f.inputs, queuedInput{append([]byte(nil), f.slot[:size]...), pts, flags})
	if flags.Has(codec.FlagEndOfStream) {
		f.outputs <- fakeOutput{info: codec.BufferInfo{Index: 1, Flags: codec.FlagEndOfStream}}
	}
	return nil
}

func (f *fakeCodec) DequeueOutputBuffer(ctx context.Context) (codec.BufferInfo, error) {
	select {
	case out := <-f.outputs:
		return out.info, out.err
	case <-ctx.Done():
		return codec.BufferInfo{}, ctx.Err()
	case <-f.stop:
		return codec.BufferInfo{}, codec.ErrIllegalState
	}
}

func (f *fakeCodec) ReleaseOutputBuffer(index int, render bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.renders = append(f.renders, render)
	return nil
}

func (f *fakeCodec) failInputs(n int) {
	f.mu.Lock()
	f.inputFailures = n
	f.mu.Unlock()
}

func (f *fakeCodec) queued() []queuedInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]queuedInput(nil), f.inputs...)
}

func (f *fakeCodec) isReleased() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.released
}

// recorder is a Listener that keeps every event it receives.
type recorder struct {
	mu     sync.Mutex
	events []notify.Event
	ch     chan notify.Event
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan notify.Event, 16)}
}

func (r *recorder) record(e notify.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	r.ch <- e
}

func (r *recorder) OnDecodingStarted() { r.record(notify.Started) }
func (r *recorder) OnDecodingError()   { r.record(notify.Error) }
func (r *recorder) OnDecodingEnded()   { r.record(notify.Ended) }

func (r *recorder) waitFor(t *testing.T, want notify.Event) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case e := <-r.ch:
			if e == want {
				return
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %v event", want)
		}
	}
}

func (r *recorder) all() []notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Event(nil), r.events...)
}

var testSurface = codec.SurfaceFunc(func([]byte, codec.BufferInfo) error { return nil })

func newTestManager(t *testing.T, fake *fakeCodec) (*Manager, *int32) {
	var created int32
	m, err := NewManager(Config{
		Codecs: func(string) (codec.Codec, error) {
			atomic.AddInt32(&created, 1)
			return fake, nil
		},
	})
	require.NoError(t, err)
	return m, &created
}

// Stream of one IDR and one P slice, terminated so both are complete.
var testStream = []byte{
	0, 0, 0, 1, 0x67, 0x42, 0x00, 0x1e,
	0, 0, 0, 1, 0x65, 0x88, 0x84,
	0, 0, 0, 1, 0x41, 0x9a, 0x02,
	0, 0, 0, 1,
}

func TestStartRequiresSurface(t *testing.T) {
	m, created := newTestManager(t, newFakeCodec())
	defer m.Close()

	err := m.Start(nil, newRecorder())
	assert.Equal(t, ErrNoSurface, errors.Cause(err))
	assert.Equal(t, Idle, m.State())
	assert.Zero(t, *created)
}

func TestStartFailureReleasesDecoder(t *testing.T) {
	fake := newFakeCodec()
	fake.configureErr = errors.New("no such surface")
	m, _ := newTestManager(t, fake)
	defer m.Close()

	err := m.Start(testSurface, newRecorder())
	assert.Error(t, err)
	assert.Equal(t, Idle, m.State())
	assert.True(t, fake.isReleased())
}

func TestConcurrentStartHasOneWinner(t *testing.T) {
	fake := newFakeCodec()
	m, created := newTestManager(t, fake)
	defer m.Close()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, m.Start(testSurface, newRecorder()))
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(created))
	assert.Equal(t, Accepting, m.State())
}

func TestFeedSubmitsAccessUnits(t *testing.T) {
	fake := newFakeCodec()
	m, _ := newTestManager(t, fake)
	defer m.Close()

	// Ignored without a session.
	m.Feed(testStream)
	assert.Empty(t, fake.queued())

	require.NoError(t, m.Start(testSurface, newRecorder()))
	for _, b := range testStream {
		m.Feed([]byte{b})
	}

	inputs := fake.queued()
	require.Len(t, inputs, 2)
	assert.Equal(t, testStream[:15], inputs[0].data)
	assert.Equal(t, codec.FlagKeyFrame|codec.FlagCodecConfig, inputs[0].flags)
	assert.Equal(t, testStream[15:22], inputs[1].data)
	assert.Equal(t, time.Second/30, inputs[1].pts)
}

func TestHardStopBeforeFirstFrame(t *testing.T) {
	fake := newFakeCodec()
	m, _ := newTestManager(t, fake)

	r := newRecorder()
	require.NoError(t, m.Start(testSurface, r))
	m.Feed(testStream)

	s := m.sess.Load()
	m.Stop(r)

	assert.Equal(t, Idle, m.State())
	assert.True(t, fake.isReleased())

	// The worker exits without reporting anything itself.
	select {
	case <-s.done:
	case <-time.After(2 * time.Second):
		t.Fatal("dequeue worker did not exit")
	}

	m.Feed(testStream)
	require.NoError(t, m.Close())
	assert.Equal(t, []notify.Event{notify.Ended}, r.all())
}

func TestGracefulStopRetriesEndOfStream(t *testing.T) {
	fake := newFakeCodec()
	m, _ := newTestManager(t, fake)

	r := newRecorder()
	require.NoError(t, m.Start(testSurface, r))
	fake.outputs <- fakeOutput{info: codec.BufferInfo{Index: 0, Size: 12}}
	r.waitFor(t, notify.Started)

	// The decoder will not take the end-of-stream buffer the first time.
	fake.failInputs(1)
	m.Stop(r)
	assert.Equal(t, FlushPending, m.State())

	// Any further input is discarded, but the flush is retried.
	m.Feed(testStream)
	r.waitFor(t, notify.Ended)

	require.NoError(t, m.Close())
	assert.Equal(t, []notify.Event{notify.Started, notify.Ended}, r.all())
	assert.Equal(t, Idle, m.State())
	assert.True(t, fake.isReleased())

	inputs := fake.queued()
	require.Len(t, inputs, 1)
	assert.True(t, inputs[0].flags.Has(codec.FlagEndOfStream))
	assert.Empty(t, inputs[0].data)

	// First output rendered, empty end-of-stream output not.
	assert.Equal(t, []bool{true, false}, fake.renders)
}

func TestGracefulStopDrains(t *testing.T) {
	fake := newFakeCodec()
	m, _ := newTestManager(t, fake)

	r := newRecorder()
	require.NoError(t, m.Start(testSurface, r))
	fake.outputs <- fakeOutput{info: codec.BufferInfo{Index: 0, Size: 12}}
	r.waitFor(t, notify.Started)

	m.Stop(r)
	r.waitFor(t, notify.Ended)

	// A second stop finds no session and reports the end again.
	m.Stop(r)
	require.NoError(t, m.Close())
	assert.Equal(t, []notify.Event{notify.Started, notify.Ended, notify.Ended}, r.all())
}

func TestStopWhileIdle(t *testing.T) {
	m, _ := newTestManager(t, newFakeCodec())

	r := newRecorder()
	m.Stop(r)
	r.waitFor(t, notify.Ended)

	require.NoError(t, m.Close())
	assert.Equal(t, []notify.Event{notify.Ended}, r.all())
}

func TestDequeueFaultReportsErrorThenEnded(t *testing.T) {
	fake := newFakeCodec()
	m, _ := newTestManager(t, fake)

	r := newRecorder()
	require.NoError(t, m.Start(testSurface, r))
	fake.outputs <- fakeOutput{err: errors.New("decoder crashed")}
	r.waitFor(t, notify.Ended)

	require.NoError(t, m.Close())
	assert.Equal(t, []notify.Event{notify.Error, notify.Ended}, r.all())
	assert.Equal(t, Idle, m.State())
	assert.True(t, fake.isReleased())
}

func TestStopSwapsListener(t *testing.T) {
	fake := newFakeCodec()
	m, _ := newTestManager(t, fake)

	first, second := newRecorder(), newRecorder()
	require.NoError(t, m.Start(testSurface, first))
	m.Stop(second)

	require.NoError(t, m.Close())
	assert.Empty(t, first.all())
	assert.Equal(t, []notify.Event{notify.Ended}, second.all())
}

func TestRestartAfterStop(t *testing.T) {
	var fakes []*fakeCodec
	m, err := NewManager(Config{
		Codecs: func(string) (codec.Codec, error) {
			fake := newFakeCodec()
			fakes = append(fakes, fake)
			return fake, nil
		},
	})
	require.NoError(t, err)
	defer m.Close()

	r := newRecorder()
	require.NoError(t, m.Start(testSurface, r))
	m.Stop(r)
	r.waitFor(t, notify.Ended)

	require.NoError(t, m.Start(testSurface, r))
	assert.Equal(t, Accepting, m.State())
	require.Len(t, fakes, 2)
	assert.True(t, fakes[0].isReleased())
	assert.False(t, fakes[1].isReleased())
}

func TestRegisterMetrics(t *testing.T) {
	m, _ := newTestManager(t, newFakeCodec())
	defer m.Close()
	assert.NoError(t, m.RegisterMetrics(prometheus.NewRegistry()))
}

func TestWriteFeeds(t *testing.T) {
	fake := newFakeCodec()
	m, _ := newTestManager(t, fake)
	defer m.Close()

	require.NoError(t, m.Start(testSurface, nil))
	n, err := m.Write(testStream)
	assert.NoError(t, err)
	assert.Equal(t, len(testStream), n)
	assert.Len(t, fake.queued(), 2)
}
