package events

import (
	"sync"
	"time"
)

// EventBus is a channel-based pub-sub event bus with a single writer (the
// iteration controller). Supports topic-based subscriptions and SubscribeAll
// for cross-topic consumption.
//
// Each subscriber owns a bounded queue. A slow or disconnected subscriber
// never blocks the publisher: on overflow the oldest unread events are
// dropped and a GapEvent is delivered in their place, so the consumer knows
// context was lost rather than silently missing transitions.
type EventBus struct {
	mu      sync.RWMutex
	subs    map[string][]*subscriber // topic -> subscribers
	allSubs []*subscriber            // subscribers to all topics
	closed  bool
}

type subscriber struct {
	ch      chan Event
	pending int // Drops not yet reported via a GapEvent; publisher-owned
}

// NewEventBus creates a new event bus.
func NewEventBus() *EventBus {
	return &EventBus{
		subs: make(map[string][]*subscriber),
	}
}

// Subscribe creates a subscription to a specific topic.
// Returns a read-only channel that receives events published to that topic.
// bufSize determines the queue bound (defaults to 256 if <= 0).
func (b *EventBus) Subscribe(topic string, bufSize int) <-chan Event {
	sub := newSubscriber(bufSize)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(sub.ch)
		return sub.ch
	}

	b.subs[topic] = append(b.subs[topic], sub)
	return sub.ch
}

// SubscribeAll creates a subscription to ALL topics.
// bufSize determines the queue bound (defaults to 256 if <= 0).
func (b *EventBus) SubscribeAll(bufSize int) <-chan Event {
	sub := newSubscriber(bufSize)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(sub.ch)
		return sub.ch
	}

	b.allSubs = append(b.allSubs, sub)
	return sub.ch
}

// Unsubscribe removes a subscription and closes its channel. No-op for
// channels the bus does not own.
func (b *EventBus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	for topic, subs := range b.subs {
		for i, sub := range subs {
			if sub.ch == ch {
				b.subs[topic] = append(subs[:i], subs[i+1:]...)
				close(sub.ch)
				return
			}
		}
	}
	for i, sub := range b.allSubs {
		if sub.ch == ch {
			b.allSubs = append(b.allSubs[:i], b.allSubs[i+1:]...)
			close(sub.ch)
			return
		}
	}
}

func newSubscriber(bufSize int) *subscriber {
	if bufSize <= 0 {
		bufSize = 256
	}
	return &subscriber{ch: make(chan Event, bufSize)}
}

// Publish sends an event to all subscribers of the given topic and to all
// SubscribeAll channels. Never blocks.
func (b *EventBus) Publish(topic string, event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, sub := range b.subs[topic] {
		sub.deliver(event)
	}
	for _, sub := range b.allSubs {
		sub.deliver(event)
	}
}

// deliver enqueues event, evicting the oldest entries on overflow and
// substituting a gap marker. Only the single publisher calls deliver, so the
// evict/enqueue sequence cannot interleave with another producer.
func (sub *subscriber) deliver(event Event) {
	// Report drops recorded on earlier publishes before anything newer.
	if sub.pending > 0 {
		select {
		case sub.ch <- GapEvent{Dropped: sub.pending, Timestamp: time.Now()}:
			sub.pending = 0
		default:
		}
	}

	select {
	case sub.ch <- event:
		return
	default:
	}

	// Queue full: evict the two oldest entries to make room for a gap marker
	// plus the event.
	for i := 0; i < 2; i++ {
		select {
		case old := <-sub.ch:
			if gap, ok := old.(GapEvent); ok {
				sub.pending += gap.Dropped
			} else {
				sub.pending++
			}
		default:
		}
	}

	select {
	case sub.ch <- GapEvent{Dropped: sub.pending, Timestamp: time.Now()}:
		sub.pending = 0
	default:
	}
	select {
	case sub.ch <- event:
	default:
		sub.pending++
	}
}

// Close closes the event bus and all subscriber channels.
// Safe to call multiple times (idempotent).
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, subs := range b.subs {
		for _, sub := range subs {
			close(sub.ch)
		}
	}
	for _, sub := range b.allSubs {
		close(sub.ch)
	}
}
