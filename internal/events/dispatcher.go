package events

import (
	"context"
	"log"
	"sync"
	"time"

	"kasirledger/backend/internal/metrics"
)

type Sink interface {
	Name() string
	Deliver(ctx context.Context, event Event) error
}

const defaultDeliveryTimeout = 3 * time.Second

// Dispatcher is a bounded queue drained by Run into every sink in order.
type Dispatcher struct {
	queue           chan Event
	sinks           []Sink
	deliveryTimeout time.Duration

	// mu orders the stopped check and queue send in Publish against stop.
	mu        sync.RWMutex
	stopped   bool
	closing   chan struct{}
	closeOnce sync.Once
	done      chan struct{}
}

func NewDispatcher(size int, sinks ...Sink) *Dispatcher {
	if size < 1 {
		size = 1
	}
	return &Dispatcher{
		queue:           make(chan Event, size),
		sinks:           sinks,
		deliveryTimeout: defaultDeliveryTimeout,
		closing:         make(chan struct{}),
		done:            make(chan struct{}),
	}
}

// Publish queues the event or drops it when the queue is full or the
// dispatcher is closing.
func (d *Dispatcher) Publish(event Event) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.stopped {
		log.Printf("[events] WARN: dispatcher closed, dropping %s %s", event.Type, event.EntityID)
		metrics.EventsDropped.WithLabelValues(string(event.Type)).Inc()
		return false
	}

	select {
	case d.queue <- event:
		metrics.EventsPublished.WithLabelValues(string(event.Type)).Inc()
		return true
	default:
		log.Printf("[events] WARN: queue full (%d), dropping %s %s", cap(d.queue), event.Type, event.EntityID)
		metrics.EventsDropped.WithLabelValues(string(event.Type)).Inc()
		return false
	}
}

// Run delivers queued events until ctx ends or Close is called, then
// drains what is left and returns.
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.done)

	for {
		select {
		case <-ctx.Done():
			d.stop()
			d.drain()
			return
		case <-d.closing:
			d.stop()
			d.drain()
			return
		case event := <-d.queue:
			d.deliver(event)
		}
	}
}

// stop waits out in-flight Publish calls, so nothing can enter the queue
// after the final drain starts.
func (d *Dispatcher) stop() {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
}

func (d *Dispatcher) drain() {
	for {
		select {
		case event := <-d.queue:
			d.deliver(event)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(event Event) {
	for _, sink := range d.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), d.deliveryTimeout)
		err := sink.Deliver(ctx, event)
		cancel()
		if err != nil {
			log.Printf("[events] WARN: sink=%s event=%s type=%s: %v", sink.Name(), event.ID, event.Type, err)
			metrics.EventDeliveryFailures.WithLabelValues(sink.Name()).Inc()
		}
	}
}

// Close stops accepting events and waits for Run to drain the queue.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.stop()
	d.closeOnce.Do(func() { close(d.closing) })

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) Pending() int {
	return len(d.queue)
}
