package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrQueueFull is returned by Dispatcher.Publish when the queue has no room.
var ErrQueueFull = errors.New("event queue full")

// ResultFunc is an optional callback invoked after each delivery attempt.
type ResultFunc func(ev Event, err error)

// Dispatcher queues events and delivers them to the next Publisher from a
// single goroutine, so delivery order matches Publish order and callers never
// wait on the downstream broker.
type Dispatcher struct {
	next    Publisher
	queue   chan Event
	timeout time.Duration
	logger  *zap.Logger

	onResult ResultFunc

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewDispatcher creates a Dispatcher with room for size queued events. Each
// delivery is bounded by timeout (default 5s).
func NewDispatcher(next Publisher, size int, timeout time.Duration, logger *zap.Logger) *Dispatcher {
	if size <= 0 {
		size = 1024
	}
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{
		next:    next,
		queue:   make(chan Event, size),
		timeout: timeout,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// SetResultFunc configures the delivery callback. Call before Start.
func (d *Dispatcher) SetResultFunc(fn ResultFunc) {
	d.onResult = fn
}

// Start launches the delivery goroutine.
func (d *Dispatcher) Start() {
	go d.run()
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for ev := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		err := d.next.Publish(ctx, ev)
		cancel()
		if err != nil {
			d.logger.Warn("event delivery failed",
				zap.String("id", ev.ID),
				zap.String("type", ev.Type),
				zap.Error(err),
			)
		}
		if d.onResult != nil {
			d.onResult(ev, err)
		}
	}
}

// Publish implements Publisher. It enqueues ev without blocking.
func (d *Dispatcher) Publish(_ context.Context, ev Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return errors.New("dispatcher closed")
	}
	select {
	case d.queue <- ev:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting events and waits until queued events are delivered
// or ctx expires.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
