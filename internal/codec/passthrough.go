//////////////////////////////////////////////////////////////////////////////
//
// In-process H.264 codec
//
// Copyright 2019 Lanikai Labs LLC. All rights reserved.
//
//////////////////////////////////////////////////////////////////////////////

package codec

import (
	"context"
	"sync"
	"time"

	"github.com/golang/groupcache/lru"
	"github.com/nareix/joy4/codec/h264parser"
	errors "golang.org/x/xerrors"
)

const (
	defaultSlots    = 4
	defaultSlotSize = 1024 * 1024

	// Distinct SPS payloads remembered by a codec. Streams normally repeat a
	// single SPS before every key frame.
	spsCacheSize = 8
)

type codecState int

const (
	stateUninitialized codecState = iota
	stateConfigured
	stateRunning
	stateStopped
	stateReleased
)

func (s codecState) String() string {
	return [...]string{"uninitialized", "configured", "running", "stopped", "released"}[s]
}

type PassthroughOptions struct {
	// Number of input and output buffers. Defaults to 4.
	Slots int

	// Capacity of each input buffer, in bytes. Defaults to 1 MiB.
	SlotSize int
}

type queuedInput struct {
	index int
	size  int
	pts   time.Duration
	flags Flags
}

// Passthrough is a Codec that runs the decoder buffer protocol in-process. It
// validates access units, tracks stream geometry from the SPS, and presents
// every rendered access unit to the configured Surface unchanged. It stands
// in for a hardware decoder on hosts without one.
type Passthrough struct {
	slots    int
	slotSize int

	mu      sync.Mutex
	state   codecState
	format  Format
	surface Surface

	in      [][]byte
	inOwned []bool
	freeIn  chan int
	queued  chan queuedInput

	out      [][]byte
	outInfo  []BufferInfo
	outOwned []bool
	freeOut  chan int
	ready    chan int

	stopped chan struct{}
	done    chan struct{}

	// Touched only by the decode goroutine.
	spsCache *lru.Cache
}

func NewPassthrough(opts PassthroughOptions) *Passthrough {
	if opts.Slots <= 0 {
		opts.Slots = defaultSlots
	}
	if opts.SlotSize <= 0 {
		opts.SlotSize = defaultSlotSize
	}
	return &Passthrough{
		slots:    opts.Slots,
		slotSize: opts.SlotSize,
		spsCache: lru.New(spsCacheSize),
	}
}

func init() {
	Register(MimeTypeAVC, func(string) (Codec, error) {
		return NewPassthrough(PassthroughOptions{}), nil
	})
}

func (c *Passthrough) stateError(op string) error {
	return errors.Errorf("%s while %v: %w", op, c.state, ErrIllegalState)
}

func (c *Passthrough) Configure(format Format, surface Surface) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != stateUninitialized && c.state != stateConfigured {
		return c.stateError("configure")
	}
	if format.MimeType != MimeTypeAVC {
		return errors.Errorf("passthrough codec cannot decode %q", format.MimeType)
	}

	c.format = format
	c.surface = surface
	c.state = stateConfigured
	return nil
}

func (c *Passthrough) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != stateConfigured {
		return c.stateError("start")
	}

	c.in = make([][]byte, c.slots)
	c.out = make([][]byte, c.slots)
	c.inOwned = make([]bool, c.slots)
	c.outOwned = make([]bool, c.slots)
	c.outInfo = make([]BufferInfo, c.slots)
	c.freeIn = make(chan int, c.slots)
	c.freeOut = make(chan int, c.slots)
	c.queued = make(chan queuedInput, c.slots)
	c.ready = make(chan int, c.slots)
	for i := 0; i < c.slots; i++ {
		c.in[i] = make([]byte, c.slotSize)
		c.out[i] = make([]byte, c.slotSize)
		c.freeIn <- i
		c.freeOut <- i
	}

	c.stopped = make(chan struct{})
	c.done = make(chan struct{})
	c.state = stateRunning
	go c.decodeLoop(c.stopped, c.done)

	log.Debug("Passthrough codec started: %s %dx%d, %d slots",
		c.format.MimeType, c.format.Width, c.format.Height, c.slots)
	return nil
}

// Stop unblocks every pending dequeue call and waits for the decode goroutine.
func (c *Passthrough) Stop() error {
	c.mu.Lock()
	switch c.state {
	case stateRunning:
	case stateConfigured, stateStopped:
		c.mu.Unlock()
		return nil
	default:
		err := c.stateError("stop")
		c.mu.Unlock()
		return err
	}
	c.state = stateStopped
	close(c.stopped)
	done := c.done
	c.mu.Unlock()

	<-done
	return nil
}

func (c *Passthrough) Release() {
	c.Stop()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = stateReleased
	c.surface = nil
	c.in, c.out = nil, nil
}

// Format returns the configured format, with geometry updated from the most
// recent SPS seen in the stream.
func (c *Passthrough) Format() Format {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.format
}

func (c *Passthrough) running(op string) (stopped chan struct{}, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateRunning {
		return nil, c.stateError(op)
	}
	return c.stopped, nil
}

func (c *Passthrough) DequeueInputBuffer(ctx context.Context) (int, []byte, error) {
	stopped, err := c.running("dequeue input")
	if err != nil {
		return -1, nil, err
	}

	select {
	case index := <-c.freeIn:
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.state != stateRunning {
			return -1, nil, c.stateError("dequeue input")
		}
		c.inOwned[index] = true
		return index, c.in[index], nil
	case <-ctx.Done():
		return -1, nil, ctx.Err()
	case <-stopped:
		return -1, nil, errors.Errorf("dequeue input: %w", ErrIllegalState)
	}
}

func (c *Passthrough) QueueInputBuffer(index, size int, pts time.Duration, flags Flags) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != stateRunning {
		return c.stateError("queue input")
	}
	if index < 0 || index >= c.slots || !c.inOwned[index] {
		return errors.Errorf("queue input %d: %w", index, ErrBadIndex)
	}
	if size < 0 || size > c.slotSize {
		return errors.Errorf("queue input %d: size %d exceeds buffer capacity %d", index, size, c.slotSize)
	}

	c.inOwned[index] = false
	// Cannot block: at most c.slots inputs are outstanding.
	c.queued <- queuedInput{index, size, pts, flags}
	return nil
}

func (c *Passthrough) DequeueOutputBuffer(ctx context.Context) (BufferInfo, error) {
	stopped, err := c.running("dequeue output")
	if err != nil {
		return BufferInfo{Index: -1}, err
	}

	select {
	case index := <-c.ready:
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.state != stateRunning {
			return BufferInfo{Index: -1}, c.stateError("dequeue output")
		}
		c.outOwned[index] = true
		return c.outInfo[index], nil
	case <-ctx.Done():
		return BufferInfo{Index: -1}, ctx.Err()
	case <-stopped:
		return BufferInfo{Index: -1}, errors.Errorf("dequeue output: %w", ErrIllegalState)
	}
}

func (c *Passthrough) ReleaseOutputBuffer(index int, render bool) error {
	c.mu.Lock()
	if c.state != stateRunning {
		err := c.stateError("release output")
		c.mu.Unlock()
		return err
	}
	if index < 0 || index >= c.slots || !c.outOwned[index] {
		c.mu.Unlock()
		return errors.Errorf("release output %d: %w", index, ErrBadIndex)
	}
	c.outOwned[index] = false
	info := c.outInfo[index]
	data := c.out[index][:info.Size]
	surface := c.surface
	c.mu.Unlock()

	if render && surface != nil {
		if err := surface.Present(data, info); err != nil {
			log.Warn("Surface rejected frame at %v: %v", info.PTS, err)
		}
	}

	c.freeOut <- index
	return nil
}

func (c *Passthrough) decodeLoop(stopped <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		var input queuedInput
		select {
		case <-stopped:
			return
		case input = <-c.queued:
		}

		data := c.in[input.index][:input.size]
		c.inspect(data)

		var index int
		select {
		case <-stopped:
			return
		case index = <-c.freeOut:
		}

		n := copy(c.out[index], data)
		c.mu.Lock()
		c.outInfo[index] = BufferInfo{
			Index: index,
			Size:  n,
			PTS:   input.pts,
			Flags: input.flags,
		}
		c.mu.Unlock()

		c.freeIn <- input.index
		c.ready <- index
	}
}

// inspect tracks the coded frame size announced by each SPS.
func (c *Passthrough) inspect(data []byte) {
	if len(data) == 0 {
		return
	}
	nalus, _ := h264parser.SplitNALUs(data)
	for _, nalu := range nalus {
		if len(nalu) == 0 || nalu[0]&0x1f != 7 {
			continue
		}

		key := string(nalu)
		if _, seen := c.spsCache.Get(key); seen {
			continue
		}
		info, err := h264parser.ParseSPS(nalu)
		if err != nil {
			log.Debug("Ignoring unparseable SPS: %v", err)
			continue
		}
		c.spsCache.Add(key, info)

		c.mu.Lock()
		if int(info.Width) != c.format.Width || int(info.Height) != c.format.Height {
			log.Info("Stream geometry %dx%d (configured %dx%d)",
				info.Width, info.Height, c.format.Width, c.format.Height)
			c.format.Width = int(info.Width)
			c.format.Height = int(info.Height)
		}
		c.mu.Unlock()
	}
}
