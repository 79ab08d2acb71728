// Package notify delivers decode lifecycle events to a handler from a single
// goroutine, in the order they were posted.
package notify

import (
	"sync"

	"github.com/lanikai/vidlink/internal/logging"
)

var log = logging.DefaultLogger.WithTag("notify")

type Event int

const (
	Started Event = iota
	Error
	Ended
)

func (e Event) String() string {
	switch e {
	case Started:
		return "started"
	case Error:
		return "error"
	case Ended:
		return "ended"
	default:
		return "unknown"
	}
}

// A Dispatcher owns one delivery goroutine. Post never blocks, so it may be
// called from the handler itself, from a codec worker, or under a caller's
// lock. Handlers never run concurrently with each other.
type Dispatcher struct {
	handler func(Event)

	mu     sync.Mutex
	queue  []Event
	closed bool

	// Signalled (non-blocking, capacity 1) when the queue becomes non-empty.
	wake chan struct{}

	// Closed when the delivery goroutine exits.
	terminated chan struct{}
}

func New(handler func(Event)) *Dispatcher {
	d := &Dispatcher{
		handler:    handler,
		wake:       make(chan struct{}, 1),
		terminated: make(chan struct{}),
	}
	go d.run()
	return d
}

// Post queues an event for delivery. Posting after Close is a no-op.
func (d *Dispatcher) Post(e Event) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		log.Debug("Dropping %v event posted after close", e)
		return
	}
	d.queue = append(d.queue, e)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) run() {
	defer close(d.terminated)

	for range d.wake {
		for {
			d.mu.Lock()
			if len(d.queue) == 0 {
				closed := d.closed
				d.mu.Unlock()
				if closed {
					return
				}
				break
			}
			e := d.queue[0]
			d.queue = d.queue[1:]
			d.mu.Unlock()

			d.handler(e)
		}
	}
}

// Close delivers every event already posted, then stops the delivery
// goroutine. Close must not be called from the handler.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.terminated
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
	<-d.terminated
	return nil
}
