// Package eventbus provides the broadcast channel that carries focus
// and session lifecycle events from the router to its subscribers.
//
// The bus is single-producer, multi-consumer.  Publishing never blocks:
// a subscriber whose buffer is full loses the event, and a closed bus
// drops everything.  Delivery is best-effort by contract — consumers
// that need a complete picture should read the router/registry state
// directly instead of replaying events.
package eventbus

import (
	"sync"
	"time"
)

// Kind identifies what a routing event describes.
type Kind string

const (
	// KindFocusChanged is emitted on every focus mutation, including
	// clearing focus (empty SessionID).
	KindFocusChanged Kind = "focusChanged"

	// KindBlockDeactivated is emitted when a session leaves service
	// and its routing state has been purged.
	KindBlockDeactivated Kind = "blockDeactivated"
)

// Event is an immutable record of a single routing transition.
type Event struct {
	Kind      Kind      `json:"kind"`
	SessionID string    `json:"sessionId"`
	ContextID string    `json:"contextId,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// subscriberBuffer is the per-subscriber channel capacity.  Consumers
// that fall further behind than this lose events.
const subscriberBuffer = 100

// Metrics is a point-in-time view of bus activity.
type Metrics struct {
	EventsPublished   int64 `json:"events_published"`
	EventsDelivered   int64 `json:"events_delivered"`
	EventsDropped     int64 `json:"events_dropped"`
	SubscribersActive int   `json:"subscribers_active"`
	SubscribersTotal  int64 `json:"subscribers_total"`
}

// Bus fans events out to every current subscriber.
type Bus struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	closed bool

	published int64
	delivered int64
	dropped   int64
	subsTotal int64
}

// New returns an open bus with no subscribers.
func New() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a consumer and returns its event channel plus an
// unsubscribe function.  Unsubscribing closes the channel; it is safe
// to call more than once and after Close.  Subscribing to a closed bus
// yields an already-closed channel.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.subsTotal++

	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, unsub
}

// Publish delivers ev to every subscriber without blocking.  Events
// sent to a full subscriber buffer are dropped for that subscriber,
// and publishing on a closed bus is a silent no-op.  A zero Timestamp
// is stamped with the current time.
func (b *Bus) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	b.published++
	for _, ch := range b.subs {
		select {
		case ch <- ev:
			b.delivered++
		default:
			b.dropped++
		}
	}
}

// PublishFocusChanged emits a focusChanged event.  An empty sessionID
// means focus was cleared.
func (b *Bus) PublishFocusChanged(sessionID, contextID, message string) {
	b.Publish(Event{
		Kind:      KindFocusChanged,
		SessionID: sessionID,
		ContextID: contextID,
		Message:   message,
	})
}

// PublishBlockDeactivated emits a blockDeactivated event.
func (b *Bus) PublishBlockDeactivated(sessionID, message string) {
	b.Publish(Event{
		Kind:      KindBlockDeactivated,
		SessionID: sessionID,
		Message:   message,
	})
}

// Close shuts the bus down and closes every subscriber channel.
// Closure is terminal: later publishes are dropped and later
// subscriptions receive closed channels.  Close is idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

// SubscriberCount returns the number of active subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Metrics returns a snapshot of the bus counters.
func (b *Bus) Metrics() Metrics {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Metrics{
		EventsPublished:   b.published,
		EventsDelivered:   b.delivered,
		EventsDropped:     b.dropped,
		SubscribersActive: len(b.subs),
		SubscribersTotal:  b.subsTotal,
	}
}
