package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrBroadcasterClosed is returned by Publish after Close.
var ErrBroadcasterClosed = errors.New("broadcaster closed")

type queued struct {
	event Event
	flush chan struct{}
}

// Broadcaster is the single delivery path for outbound events. Publish
// appends to an unbounded FIFO queue and never blocks or drops; one
// goroutine drains the queue and hands each event to every subscriber in
// order, so subscribers observe events in the order they were published.
type Broadcaster struct {
	mu      sync.Mutex
	queue   []queued
	wake    chan struct{}
	done    chan struct{}
	stopped chan struct{}
	closed  bool

	subsMu sync.RWMutex
	subs   map[uint64]Publisher
	nextID uint64
}

// NewBroadcaster creates a broadcaster delivering to the given publishers and
// starts its delivery goroutine.
func NewBroadcaster(publishers ...Publisher) *Broadcaster {
	b := &Broadcaster{
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		subs:    make(map[uint64]Publisher),
	}
	for _, p := range publishers {
		b.Subscribe(p)
	}
	go b.run()
	return b
}

// Subscribe adds a publisher to the fan-out set and returns a function that
// removes it.
func (b *Broadcaster) Subscribe(p Publisher) func() {
	b.subsMu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = p
	b.subsMu.Unlock()

	return func() {
		b.subsMu.Lock()
		delete(b.subs, id)
		b.subsMu.Unlock()
	}
}

// SubscriberCount returns the number of subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.subsMu.RLock()
	defer b.subsMu.RUnlock()
	return len(b.subs)
}

// Publish enqueues an event for delivery.
func (b *Broadcaster) Publish(ctx context.Context, event Event) error {
	return b.enqueue(queued{event: event})
}

// PublishAsync enqueues an event for delivery.
func (b *Broadcaster) PublishAsync(event Event) {
	if err := b.enqueue(queued{event: event}); err != nil {
		slog.Debug("[Events] Publish after close", "type", event.Type(), "call_id", event.CallID())
	}
}

func (b *Broadcaster) enqueue(item queued) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBroadcasterClosed
	}
	b.queue = append(b.queue, item)
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
	return nil
}

// Flush waits until every event published before the call has been handed
// to all subscribers.
func (b *Broadcaster) Flush(ctx context.Context) error {
	marker := make(chan struct{})
	if err := b.enqueue(queued{flush: marker}); err != nil {
		return nil
	}
	select {
	case <-marker:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending returns the number of queued, undelivered items.
func (b *Broadcaster) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Close delivers what is already queued, stops the delivery goroutine and
// closes all subscribers.
func (b *Broadcaster) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		<-b.stopped
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	close(b.done)
	<-b.stopped

	b.subsMu.Lock()
	subs := b.subs
	b.subs = make(map[uint64]Publisher)
	b.subsMu.Unlock()

	var lastErr error
	for _, p := range subs {
		if err := p.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func (b *Broadcaster) run() {
	defer close(b.stopped)
	for {
		b.drain()
		select {
		case <-b.wake:
		case <-b.done:
			b.drain()
			return
		}
	}
}

func (b *Broadcaster) drain() {
	for {
		b.mu.Lock()
		if len(b.queue) == 0 {
			b.mu.Unlock()
			return
		}
		item := b.queue[0]
		b.queue[0] = queued{}
		b.queue = b.queue[1:]
		b.mu.Unlock()

		if item.flush != nil {
			close(item.flush)
			continue
		}
		b.deliver(item.event)
	}
}

func (b *Broadcaster) deliver(event Event) {
	b.subsMu.RLock()
	subs := make([]Publisher, 0, len(b.subs))
	for _, p := range b.subs {
		subs = append(subs, p)
	}
	b.subsMu.RUnlock()

	for _, p := range subs {
		if err := p.Publish(context.Background(), event); err != nil {
			slog.Warn("[Events] Subscriber failed", "type", event.Type(), "call_id", event.CallID(), "error", err)
		}
	}
}
