package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Queue accepts rendered events for delivery. Enqueue never reports
// delivery failures to the caller.
type Queue interface {
	Enqueue(events ...Event)
}

// DefaultQueueSize is the Dispatcher buffer used when none is configured.
const DefaultQueueSize = 256

// Dispatcher delivers events to a sink on a background goroutine.
type Dispatcher struct {
	sink    Sink
	logger  *slog.Logger
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan Event
	done   chan struct{}
}

// NewDispatcher starts a dispatcher with a bounded buffer. timeout limits each
// delivery; zero means 30 seconds.
func NewDispatcher(sink Sink, size int, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		sink:    sink,
		logger:  logger,
		timeout: timeout,
		queue:   make(chan Event, size),
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

// Enqueue buffers events. When the buffer is full or the dispatcher is closed
// the event is dropped with a warning.
func (d *Dispatcher) Enqueue(events ...Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, e := range events {
		if d.closed {
			d.logger.Warn("notification dropped, dispatcher closed", "id", e.ID, "kind", e.Kind)
			continue
		}
		select {
		case d.queue <- e:
		default:
			d.logger.Warn("notification dropped, queue full", "id", e.ID, "kind", e.Kind, "recipient", e.Recipient)
		}
	}
}

// Close stops accepting events and waits until queued ones are delivered or
// ctx ends.
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

func (d *Dispatcher) run() {
	defer close(d.done)
	for e := range d.queue {
		deliver(d.sink, d.logger, d.timeout, e)
	}
}

// SyncDispatcher delivers events inline. Failures are logged like the
// asynchronous dispatcher's.
type SyncDispatcher struct {
	Sink   Sink
	Logger *slog.Logger
}

func (d SyncDispatcher) Enqueue(events ...Event) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	for _, e := range events {
		deliver(d.Sink, logger, 30*time.Second, e)
	}
}

func deliver(sink Sink, logger *slog.Logger, timeout time.Duration, e Event) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("notification sink panicked", "id", e.ID, "kind", e.Kind, "recipient", e.Recipient, "panic", r)
		}
	}()

	if err := sink.Notify(ctx, e); err != nil {
		logger.Error("notification failed", "id", e.ID, "kind", e.Kind, "recipient", e.Recipient, "error", err)
		return
	}
	logger.Debug("notification sent", "id", e.ID, "kind", e.Kind, "recipient", e.Recipient)
}

// Discard is a Queue that drops every event.
var Discard Queue = discard{}

type discard struct{}

func (discard) Enqueue(...Event) {}
