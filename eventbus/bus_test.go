package eventbus

import (
	"sync"
	"testing"
	"time"
)

func TestBusPublishSubscribe(t *testing.T) {
	bus := New()
	defer bus.Close()

	events, unsub := bus.Subscribe()
	defer unsub()

	bus.PublishFocusChanged("sess-123", "ctx-1", "previous: none")

	select {
	case ev := <-events:
		if ev.Kind != KindFocusChanged {
			t.Errorf("expected KindFocusChanged, got %v", ev.Kind)
		}
		if ev.SessionID != "sess-123" {
			t.Errorf("expected session sess-123, got %v", ev.SessionID)
		}
		if ev.ContextID != "ctx-1" {
			t.Errorf("expected context ctx-1, got %v", ev.ContextID)
		}
		if ev.Timestamp.IsZero() {
			t.Error("expected timestamp to be stamped")
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}
}

func TestBusMultipleSubscribers(t *testing.T) {
	bus := New()
	defer bus.Close()

	events1, unsub1 := bus.Subscribe()
	defer unsub1()

	events2, unsub2 := bus.Subscribe()
	defer unsub2()

	bus.Publish(Event{Kind: KindBlockDeactivated, SessionID: "sess-456"})

	var wg sync.WaitGroup
	wg.Add(2)

	received := make([]bool, 2)

	go func() {
		defer wg.Done()
		select {
		case <-events1:
			received[0] = true
		case <-time.After(100 * time.Millisecond):
		}
	}()

	go func() {
		defer wg.Done()
		select {
		case <-events2:
			received[1] = true
		case <-time.After(100 * time.Millisecond):
		}
	}()

	wg.Wait()

	if !received[0] || !received[1] {
		t.Errorf("not all subscribers received event: %v", received)
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := New()
	defer bus.Close()

	events, unsub := bus.Subscribe()

	unsub()

	select {
	case _, ok := <-events:
		if ok {
			t.Error("expected channel to be closed")
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout - channel not closed")
	}
}

func TestBusUnsubscribeTwice(t *testing.T) {
	bus := New()
	defer bus.Close()

	_, unsub := bus.Subscribe()
	unsub()
	unsub() // must not panic
}

func TestBusClose(t *testing.T) {
	bus := New()

	events1, _ := bus.Subscribe()
	events2, _ := bus.Subscribe()

	bus.Close()
	bus.Close() // idempotent

	select {
	case _, ok := <-events1:
		if ok {
			t.Error("expected channel 1 to be closed")
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout - channel 1 not closed")
	}

	select {
	case _, ok := <-events2:
		if ok {
			t.Error("expected channel 2 to be closed")
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout - channel 2 not closed")
	}
}

func TestBusPublishAfterClose(t *testing.T) {
	bus := New()
	bus.Close()

	// Must not panic and must not count.
	bus.PublishFocusChanged("sess-1", "", "")

	if got := bus.Metrics().EventsPublished; got != 0 {
		t.Errorf("expected 0 events published after close, got %d", got)
	}
}

func TestBusSubscribeAfterClose(t *testing.T) {
	bus := New()
	bus.Close()

	events, unsub := bus.Subscribe()
	defer unsub()

	select {
	case _, ok := <-events:
		if ok {
			t.Error("expected closed channel from closed bus")
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout - channel not closed")
	}
}

func TestBusSubscriberCount(t *testing.T) {
	bus := New()
	defer bus.Close()

	if bus.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers, got %d", bus.SubscriberCount())
	}

	_, unsub1 := bus.Subscribe()
	if bus.SubscriberCount() != 1 {
		t.Errorf("expected 1 subscriber, got %d", bus.SubscriberCount())
	}

	_, unsub2 := bus.Subscribe()
	if bus.SubscriberCount() != 2 {
		t.Errorf("expected 2 subscribers, got %d", bus.SubscriberCount())
	}

	unsub1()
	if bus.SubscriberCount() != 1 {
		t.Errorf("expected 1 subscriber after unsub, got %d", bus.SubscriberCount())
	}

	unsub2()
	if bus.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers after unsub, got %d", bus.SubscriberCount())
	}
}

func TestBusNonBlocking(t *testing.T) {
	bus := New()
	defer bus.Close()

	// Subscribe but never read.
	_, _ = bus.Subscribe()

	// Fill the buffer.
	for i := 0; i < subscriberBuffer; i++ {
		bus.PublishFocusChanged("sess-fill", "", "")
	}

	// Publishing past the buffer must not block.
	done := make(chan bool)
	go func() {
		for i := 0; i < 10; i++ {
			bus.PublishFocusChanged("sess-overflow", "", "")
		}
		done <- true
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("publish blocked with full subscriber buffer")
	}
}

func TestBusMetrics(t *testing.T) {
	bus := New()
	defer bus.Close()

	m := bus.Metrics()
	if m.EventsPublished != 0 {
		t.Errorf("expected 0 events published, got %d", m.EventsPublished)
	}
	if m.SubscribersActive != 0 {
		t.Errorf("expected 0 active subscribers, got %d", m.SubscribersActive)
	}

	events, unsub := bus.Subscribe()

	m = bus.Metrics()
	if m.SubscribersActive != 1 {
		t.Errorf("expected 1 active subscriber, got %d", m.SubscribersActive)
	}
	if m.SubscribersTotal != 1 {
		t.Errorf("expected 1 total subscriber, got %d", m.SubscribersTotal)
	}

	bus.PublishBlockDeactivated("sess-1", "deactivated")
	<-events

	m = bus.Metrics()
	if m.EventsPublished != 1 {
		t.Errorf("expected 1 event published, got %d", m.EventsPublished)
	}
	if m.EventsDelivered != 1 {
		t.Errorf("expected 1 event delivered, got %d", m.EventsDelivered)
	}
	if m.EventsDropped != 0 {
		t.Errorf("expected 0 events dropped, got %d", m.EventsDropped)
	}

	unsub()
	m = bus.Metrics()
	if m.SubscribersActive != 0 {
		t.Errorf("expected 0 active subscribers after unsub, got %d", m.SubscribersActive)
	}
	if m.SubscribersTotal != 1 {
		t.Errorf("expected 1 total subscriber, got %d", m.SubscribersTotal)
	}
}

func TestBusMetricsDropped(t *testing.T) {
	bus := New()
	defer bus.Close()

	// Subscribe but never read.
	_, _ = bus.Subscribe()

	for i := 0; i < subscriberBuffer+10; i++ {
		bus.PublishFocusChanged("sess-1", "", "")
	}

	m := bus.Metrics()
	if m.EventsPublished != int64(subscriberBuffer+10) {
		t.Errorf("expected %d events published, got %d", subscriberBuffer+10, m.EventsPublished)
	}
	if m.EventsDelivered != int64(subscriberBuffer) {
		t.Errorf("expected %d events delivered (buffer size), got %d", subscriberBuffer, m.EventsDelivered)
	}
	if m.EventsDropped != 10 {
		t.Errorf("expected 10 events dropped, got %d", m.EventsDropped)
	}
}
