package auth

import (
	"context"
	"sync"
	"sync/atomic"
)

// DefaultDispatcherBuffer is used when NewDispatcher gets a non-positive size.
const DefaultDispatcherBuffer = 256

// Dispatcher forwards activity events to a sink on a background goroutine.
// Record never blocks: events are dropped and counted when the buffer is full.
type Dispatcher struct {
	sink      ActivitySink
	logger    Logger
	metrics   Metrics
	ch        chan ActivityEvent
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

// DispatcherOption configures a Dispatcher before its worker starts.
type DispatcherOption func(*Dispatcher)

// DispatcherLogger sets the logger used for sink failures.
func DispatcherLogger(logger Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// DispatcherMetrics reports dropped events.
func DispatcherMetrics(metrics Metrics) DispatcherOption {
	return func(d *Dispatcher) {
		d.metrics = normalizeMetrics(metrics)
	}
}

func NewDispatcher(sink ActivitySink, buffer int, opts ...DispatcherOption) *Dispatcher {
	if buffer <= 0 {
		buffer = DefaultDispatcherBuffer
	}

	d := &Dispatcher{
		sink:    normalizeActivitySink(sink),
		logger:  defLogger{},
		metrics: noopMetrics{},
		ch:      make(chan ActivityEvent, buffer),
		done:    make(chan struct{}),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.ch:
			d.deliver(event)
		case <-d.done:
			for {
				select {
				case event := <-d.ch:
					d.deliver(event)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(event ActivityEvent) {
	if err := d.sink.Record(context.Background(), event); err != nil {
		d.logger.Warn("activity sink failed for %s: %v", event, err)
	}
}

// Record implements ActivitySink.
func (d *Dispatcher) Record(_ context.Context, event ActivityEvent) error {
	if d == nil || d.closed.Load() {
		return nil
	}

	select {
	case d.ch <- event:
	case <-d.done:
	default:
		d.dropped.Add(1)
		d.metrics.EventsDropped(1)
	}
	return nil
}

// Close stops accepting events and drains the buffer.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
