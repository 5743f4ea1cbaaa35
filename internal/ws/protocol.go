package ws

import (
	"switchboard/focus"
	"switchboard/session"
)

// MessageType discriminates the frames pushed over the event feed.
type MessageType string

const (
	// MsgSnapshot carries the full daemon state.  Every client gets
	// one on connect.
	MsgSnapshot MessageType = "snapshot"

	// MsgEvent carries a single routing event as published on the bus.
	MsgEvent MessageType = "event"
)

// Message is the envelope for every feed frame.
type Message struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload"`
}

// SnapshotPayload is the state dump behind a MsgSnapshot frame.  The
// feed is best-effort, so clients resynchronize from this rather than
// replaying missed events.
type SnapshotPayload struct {
	Sessions []session.Snapshot `json:"sessions"`
	Focus    focus.Snapshot     `json:"focus"`
}
