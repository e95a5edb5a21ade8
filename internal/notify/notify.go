// Package notify implements the Notification Bus (C9): an in-process
// publish/subscribe hub for agent and metrics updates. Grounded directly
// on arkeep-io/arkeep/server/internal/websocket.Hub's single-writer event
// loop: register/unregister channels serialize membership changes,
// Publish only enqueues the event, the loop's delivery step takes a short
// read-lock to copy the target set then sends outside the lock, and a
// full subscriber channel causes that subscriber to be dropped rather
// than blocking the publisher.
package notify

import (
	"context"
	"sync"

	"github.com/0x00K1/arcp/internal/telemetry"
)

// Topic names the event classes spec.md §4.5 defines.
type Topic string

const (
	TopicAgent   Topic = "agent"
	TopicMetrics Topic = "metrics"
)

// EventKind names the registry mutation that produced an Event.
type EventKind string

const (
	EventRegistered   EventKind = "registered"
	EventUnregistered EventKind = "unregistered"
	EventHeartbeat    EventKind = "heartbeat"
	EventMetrics      EventKind = "metrics_updated"
)

// Event is the payload delivered to subscribers.
type Event struct {
	Topic   Topic
	Kind    EventKind
	AgentID string
	Data    any
}

const subscriberBuffer = 32

// Subscriber is an opaque handle a caller holds to receive events and to
// unsubscribe. The channel is closed by the hub when the subscriber is
// dropped, so a ranging consumer sees a clean EOF rather than a deadlock.
type Subscriber struct {
	id     uint64
	topics map[Topic]struct{}
	ch     chan Event
}

// Events returns the channel to range over for delivered events.
func (s *Subscriber) Events() <-chan Event { return s.ch }

// Bus is the pub/sub hub. Construct with New and start Run in its own
// goroutine before calling Publish/Subscribe.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[uint64]*Subscriber
	byTopic     map[Topic]map[uint64]*Subscriber

	register   chan *Subscriber
	unregister chan uint64
	publishCh  chan Event
	nextID     uint64
	stopped    chan struct{}
}

// New constructs an idle Bus. Call Run in a goroutine to start it.
func New() *Bus {
	return &Bus{
		subscribers: make(map[uint64]*Subscriber),
		byTopic:     make(map[Topic]map[uint64]*Subscriber),
		register:    make(chan *Subscriber, 16),
		unregister:  make(chan uint64, 16),
		publishCh:   make(chan Event, 256),
		stopped:     make(chan struct{}),
	}
}

// Run starts the hub's event loop; it exits when ctx is cancelled.
func (b *Bus) Run(ctx context.Context) {
	defer close(b.stopped)
	for {
		select {
		case sub := <-b.register:
			b.mu.Lock()
			b.subscribers[sub.id] = sub
			for topic := range sub.topics {
				if b.byTopic[topic] == nil {
					b.byTopic[topic] = make(map[uint64]*Subscriber)
				}
				b.byTopic[topic][sub.id] = sub
			}
			b.mu.Unlock()

		case id := <-b.unregister:
			b.mu.Lock()
			if sub, ok := b.subscribers[id]; ok {
				delete(b.subscribers, id)
				for topic := range sub.topics {
					delete(b.byTopic[topic], id)
					if len(b.byTopic[topic]) == 0 {
						delete(b.byTopic, topic)
					}
				}
				close(sub.ch)
			}
			b.mu.Unlock()

		case evt := <-b.publishCh:
			b.deliver(evt)

		case <-ctx.Done():
			b.mu.Lock()
			for _, sub := range b.subscribers {
				close(sub.ch)
			}
			b.subscribers = make(map[uint64]*Subscriber)
			b.byTopic = make(map[Topic]map[uint64]*Subscriber)
			b.mu.Unlock()
			return
		}
	}
}

func (b *Bus) deliver(evt Event) {
	b.mu.RLock()
	targets := b.byTopic[evt.Topic]
	subs := make([]*Subscriber, 0, len(targets))
	for _, s := range targets {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	for _, s := range subs {
		select {
		case s.ch <- evt:
		default:
			telemetry.NotifyDroppedTotal.WithLabelValues(string(evt.Topic)).Inc()
			select {
			case b.unregister <- s.id:
			default:
			}
		}
	}
}

// Publish is non-blocking from the caller's perspective: the event is
// handed to the hub's own queue, never sent directly to subscribers, so
// a slow subscriber cannot stall the publisher (a registry mutation).
func (b *Bus) Publish(evt Event) {
	select {
	case b.publishCh <- evt:
	default:
		// Publish queue itself is saturated; drop rather than block the
		// calling mutation, per spec.md §5's backpressure rule.
	}
}

// Subscribe registers a new subscriber for the given topics and returns
// its handle. Call Unsubscribe when done to free hub resources.
func (b *Bus) Subscribe(topics ...Topic) *Subscriber {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.mu.Unlock()

	set := make(map[Topic]struct{}, len(topics))
	for _, t := range topics {
		set[t] = struct{}{}
	}
	sub := &Subscriber{id: id, topics: set, ch: make(chan Event, subscriberBuffer)}
	b.register <- sub
	return sub
}

// Unsubscribe removes sub from the hub and closes its channel.
func (b *Bus) Unsubscribe(sub *Subscriber) {
	b.unregister <- sub.id
}

// SubscriberCount reports the number of currently connected subscribers,
// used for /public/stats reporting.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
