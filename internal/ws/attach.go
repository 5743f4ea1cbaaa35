package ws

import (
	"io"
	"net/http"

	"github.com/gorilla/websocket"

	sberr "switchboard/internal/errors"
	"switchboard/session"
	"switchboard/tunnel"
)

// wsStream adapts a websocket connection to the io.Reader/io.Writer
// pair the streaming transport wants.  Reads concatenate incoming
// frames; a clean close frame reads as EOF.  Writes emit one binary
// frame per call.
type wsStream struct {
	conn  *websocket.Conn
	frame io.Reader
}

func (s *wsStream) Read(p []byte) (int, error) {
	for {
		if s.frame == nil {
			_, r, err := s.conn.NextReader()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return 0, io.EOF
				}
				return 0, err
			}
			s.frame = r
		}
		n, err := s.frame.Read(p)
		if err == io.EOF {
			s.frame = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (s *wsStream) Write(p []byte) (int, error) {
	if err := s.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// handleAttach upgrades the request and splices the websocket onto the
// session's transport as a raw byte pipe.  Only stream-capable handles
// (socket sessions) support this; command-oriented sessions get 409.
// The transport is spent when the exchange ends, so the session is
// retired afterwards.
func (s *Server) handleAttach(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := s.registry.Get(id); !ok {
		s.fail(w, &sberr.UnknownSessionError{ID: id})
		return
	}

	h := s.handleFor(id)
	if h == nil {
		http.Error(w, "session has no live transport", http.StatusConflict)
		return
	}
	streamer, ok := h.(tunnel.Streamer)
	if !ok {
		http.Error(w, "session is not a byte-stream transport", http.StatusConflict)
		return
	}

	upgrader := websocket.Upgrader{CheckOrigin: s.checkOrigin}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Verbose("attach %s: upgrade: %v", id, err)
		return
	}
	// Closing the websocket also unblocks the stream's input reader.
	defer conn.Close()

	s.logger.Info("session %s: attached from %s", id, r.RemoteAddr)
	pipe := &wsStream{conn: conn}
	streamErr := streamer.Stream(r.Context(), pipe, pipe)

	s.retireStreamed(id, streamErr)
	s.logger.Info("session %s: detached", id)
}

// retireStreamed walks a session whose transport was consumed by an
// attach out of service: stopped after a clean exchange, error after a
// broken one.
func (s *Server) retireStreamed(id string, streamErr error) {
	s.takeHandle(id)

	if streamErr != nil {
		s.logger.Warn("session %s: stream ended: %v", id, streamErr)
		s.metrics.RecordError(streamErr.Error())
		if err := s.registry.Transition(id, session.StateError); err == nil {
			s.metrics.SessionEnded()
		}
		return
	}

	if err := s.registry.Transition(id, session.StateStopping); err != nil {
		s.logger.Debug("session %s: %v", id, err)
		return
	}
	if err := s.registry.Transition(id, session.StateStopped); err != nil {
		s.logger.Debug("session %s: %v", id, err)
		return
	}
	s.metrics.SessionEnded()
}
