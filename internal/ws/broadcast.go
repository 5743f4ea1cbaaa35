package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"

	"switchboard/eventbus"
	"switchboard/focus"
	"switchboard/internal/metrics"
	"switchboard/session"
	"switchboard/util"
)

// clientBuffer is the per-client send queue depth.  A client that
// falls further behind than this is disconnected.
const clientBuffer = 64

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func newClient(conn *websocket.Conn) *client {
	c := &client{
		conn: conn,
		send: make(chan []byte, clientBuffer),
	}
	go c.writePump()
	return c
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *client) close() {
	close(c.send)
}

// Feed fans routing events out to every connected websocket client.
// Delivery is best-effort end to end: the bus drops events for a full
// subscriber buffer, and the feed drops clients that cannot drain
// their send queue.  Clients resynchronize from the snapshot they
// receive on connect.
type Feed struct {
	registry *session.Registry
	router   *focus.Router
	bus      *eventbus.Bus
	logger   *util.Logger
	metrics  *metrics.Collector

	mu      sync.Mutex
	clients map[*client]bool
}

// NewFeed returns a feed with no clients.  Run must be started for
// events to flow; AddClient works without it.
func NewFeed(registry *session.Registry, router *focus.Router, bus *eventbus.Bus, logger *util.Logger, m *metrics.Collector) *Feed {
	return &Feed{
		registry: registry,
		router:   router,
		bus:      bus,
		logger:   logger,
		metrics:  m,
		clients:  make(map[*client]bool),
	}
}

// Run subscribes to the bus and forwards every event to the connected
// clients until ctx is cancelled or the bus closes.
func (f *Feed) Run(ctx context.Context) {
	events, unsub := f.bus.Subscribe()
	defer unsub()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Kind == eventbus.KindFocusChanged {
				f.metrics.FocusChanged()
			}
			f.broadcast(Message{Type: MsgEvent, Payload: ev})
		}
	}
}

// AddClient registers conn and queues the initial state snapshot.
// Registration and the snapshot send share one critical section, so
// the snapshot is always the first frame the client receives.
func (f *Feed) AddClient(conn *websocket.Conn) *client {
	c := newClient(conn)

	snap := Message{
		Type: MsgSnapshot,
		Payload: SnapshotPayload{
			Sessions: f.registry.List(),
			Focus:    f.router.Snapshot(),
		},
	}
	data, err := json.Marshal(snap)
	if err != nil {
		f.logger.Error("feed: marshal snapshot: %v", err)
		data = nil
	}

	f.mu.Lock()
	f.clients[c] = true
	if data != nil {
		// The queue is fresh and only reachable through f.clients;
		// with clientBuffer slots free this send cannot block.
		c.send <- data
	}
	f.mu.Unlock()
	return c
}

// RemoveClient unregisters c and stops its write pump.  Removing a
// client twice is a no-op.
func (f *Feed) RemoveClient(c *client) {
	f.mu.Lock()
	f.dropLocked(c)
	f.mu.Unlock()
}

// dropLocked removes c from the set and closes its send queue.  The
// caller must hold f.mu: closing under the same lock that guards the
// sends in broadcast and AddClient is what keeps a send from ever
// hitting a closed queue.
func (f *Feed) dropLocked(c *client) {
	if _, ok := f.clients[c]; ok {
		delete(f.clients, c)
		c.close()
	}
}

// broadcast queues msg on every client without blocking.  Clients with
// a full queue are dropped; a dead consumer must not stall the rest.
// The whole fan-out runs under f.mu so that no queue can be closed
// between the membership check and the send; since the sends never
// block, the critical section stays bounded.
func (f *Feed) broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		f.logger.Error("feed: marshal: %v", err)
		return
	}

	f.mu.Lock()
	for c := range f.clients {
		select {
		case c.send <- data:
		default:
			f.logger.Verbose("feed: dropping slow client %s", c.conn.RemoteAddr())
			f.dropLocked(c)
		}
	}
	f.mu.Unlock()
}

// ClientCount returns the number of connected feed clients.
func (f *Feed) ClientCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}
