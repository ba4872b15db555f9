// Package notify fans ledger events out to off-process observers.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/odyssey-erp/marketledger/internal/ledger"
)

const (
	defaultBuffer   = 1024
	deliveryTimeout = 5 * time.Second
)

// Sink delivers a single event to one observer.
type Sink interface {
	Deliver(ctx context.Context, evt ledger.Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, evt ledger.Event) error

// Deliver implements Sink.
func (f SinkFunc) Deliver(ctx context.Context, evt ledger.Event) error {
	return f(ctx, evt)
}

// Named labels a sink for logging.
type Named struct {
	Name string
	Sink Sink
}

// Dispatcher implements ledger.Notifier. Notify never blocks: events are
// queued in emission order and delivered by a single goroutine. When the
// queue is full the event is dropped and counted; drops are logged from the
// delivery goroutine, never from Notify, which runs under the ledger lock.
type Dispatcher struct {
	logger *slog.Logger
	sinks  []Named
	events chan ledger.Event

	mu      sync.RWMutex
	closed  bool
	done    chan struct{}
	dropped atomic.Uint64
	// reported is only touched by the delivery goroutine.
	reported uint64
}

// NewDispatcher starts a dispatcher delivering to sinks. buffer <= 0 selects
// the default queue size.
func NewDispatcher(logger *slog.Logger, buffer int, sinks ...Named) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	d := &Dispatcher{
		logger: logger,
		sinks:  sinks,
		events: make(chan ledger.Event, buffer),
		done:   make(chan struct{}),
	}
	go d.loop()
	return d
}

// Notify queues evt for delivery.
func (d *Dispatcher) Notify(_ context.Context, evt ledger.Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.dropped.Add(1)
		return
	}
	select {
	case d.events <- evt:
	default:
		d.dropped.Add(1)
	}
}

// Dropped reports how many events were discarded.
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

// Close stops accepting events and waits for queued ones to be delivered or
// for ctx to expire.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.events)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) loop() {
	defer close(d.done)
	for evt := range d.events {
		for _, s := range d.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
			if err := s.Sink.Deliver(ctx, evt); err != nil {
				d.logger.Warn("deliver ledger event",
					slog.String("sink", s.Name),
					slog.String("event_id", evt.ID),
					slog.Any("error", err),
				)
			}
			cancel()
		}
		d.reportDrops()
	}
}

func (d *Dispatcher) reportDrops() {
	total := d.dropped.Load()
	if total == d.reported {
		return
	}
	d.logger.Warn("ledger events dropped",
		slog.Uint64("dropped", total-d.reported),
		slog.Uint64("dropped_total", total),
	)
	d.reported = total
}
