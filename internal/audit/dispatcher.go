package audit

import (
	"context"
	"sync"
	"sync/atomic"
)

// Config controls dispatcher buffering behavior.
//
// BestEffort lists event types emitted from the request gate. They are
// enqueued only when the buffer has room, whatever DropIfFull says, so a slow
// sink never adds latency to Authenticate.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	BestEffort []string
}

// Stats is a point-in-time view of dispatcher throughput.
type Stats struct {
	Delivered        uint64
	Dropped          uint64
	DroppedGate      uint64
	DroppedCancelled uint64
}

// Dispatcher asynchronously forwards audit events to a sink on one worker.
//
// A nil *Dispatcher is valid and discards everything.
type Dispatcher struct {
	sink       Sink
	dropIfFull bool
	bestEffort map[string]struct{}

	// mu orders sends against Close so nothing is sent on a closed queue.
	mu       sync.RWMutex
	closed   bool
	queue    chan Event
	finished chan struct{}

	delivered        atomic.Uint64
	dropped          atomic.Uint64
	droppedGate      atomic.Uint64
	droppedCancelled atomic.Uint64
}

// NewDispatcher starts the worker. It returns nil when cfg.Enabled is false.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		sink:       sink,
		dropIfFull: cfg.DropIfFull,
		bestEffort: make(map[string]struct{}, len(cfg.BestEffort)),
		queue:      make(chan Event, cfg.BufferSize),
		finished:   make(chan struct{}),
	}
	for _, eventType := range cfg.BestEffort {
		d.bestEffort[eventType] = struct{}{}
	}

	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer close(d.finished)
	for event := range d.queue {
		d.sink.Emit(context.Background(), event)
		d.delivered.Add(1)
	}
}

// Emit queues event.
//
// Gate events and, with DropIfFull, every event are dropped when the buffer
// is full. Other events wait for buffer space or ctx cancellation.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	if _, gate := d.bestEffort[event.EventType]; gate {
		select {
		case d.queue <- event:
		default:
			d.droppedGate.Add(1)
		}
		return
	}

	if d.dropIfFull {
		select {
		case d.queue <- event:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.queue <- event:
	case <-ctx.Done():
		d.droppedCancelled.Add(1)
	}
}

// Close stops accepting events, drains the buffer into the sink and waits
// for the worker. It is safe to call more than once.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}

	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	<-d.finished
}

// Dropped returns the number of events discarded for any reason.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load() + d.droppedGate.Load() + d.droppedCancelled.Load()
}

// Stats returns delivery and drop counters by cause.
func (d *Dispatcher) Stats() Stats {
	if d == nil {
		return Stats{}
	}
	return Stats{
		Delivered:        d.delivered.Load(),
		Dropped:          d.dropped.Load(),
		DroppedGate:      d.droppedGate.Load(),
		DroppedCancelled: d.droppedCancelled.Load(),
	}
}
