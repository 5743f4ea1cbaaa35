package tunnel

import (
	"context"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"switchboard/config"
	sberr "switchboard/internal/errors"
	"switchboard/internal/metrics"
	"switchboard/util"
)

// replyIdleWindow is how long a socket handle keeps reading after the
// first response bytes arrive.  A quiet gap this long ends the reply.
const replyIdleWindow = 200 * time.Millisecond

// SocketConnector establishes sessions over a raw stream socket: TCP
// to host:port, or a unix socket when the profile host is a path.
type SocketConnector struct {
	Timeout        time.Duration
	CommandTimeout time.Duration

	Logger  *util.Logger
	Metrics *metrics.Collector
}

// Establish dials the socket and returns a handle that speaks a
// line-oriented request/response exchange over it.
func (c *SocketConnector) Establish(ctx context.Context, p config.Profile) (Handle, error) {
	network, addr, err := socketTarget(p)
	if err != nil {
		return nil, err
	}

	timeout := c.Timeout
	if timeout == 0 {
		timeout = config.DefaultConnTimeout
	}

	c.Logger.Debug("socket: dialing %s %s", network, addr)
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, sberr.Wrap("dial", addr, err)
	}

	cmdTimeout := c.CommandTimeout
	if cmdTimeout == 0 {
		cmdTimeout = config.DefaultCommandTimeout
	}

	return &socketHandle{
		conn:           conn,
		addr:           addr,
		commandTimeout: cmdTimeout,
		logger:         c.Logger,
		metrics:        c.Metrics,
		alive:          true,
	}, nil
}

// socketTarget maps a profile onto a dialable network/address pair.
// A host beginning with "/" names a unix socket path.
func socketTarget(p config.Profile) (network, addr string, err error) {
	if p.Host == "" {
		return "", "", &sberr.ConfigError{
			Field:   "profile.host",
			Message: "required",
		}
	}
	if strings.HasPrefix(p.Host, "/") {
		return "unix", p.Host, nil
	}
	if p.Port < 1 || p.Port > 65535 {
		return "", "", &sberr.ConfigError{
			Field:   "profile.port",
			Value:   p.Port,
			Message: "out of range 1-65535",
		}
	}
	return "tcp", util.FormatAddr(p.Host, p.Port), nil
}

// socketHandle drives one stream connection.  Commands are written as
// lines; the reply is whatever the peer sends back before the idle
// window elapses, the deadline passes, or the peer closes.
type socketHandle struct {
	conn           net.Conn
	addr           string
	commandTimeout time.Duration
	logger         *util.Logger
	metrics        *metrics.Collector

	ioMu sync.Mutex // serializes Execute exchanges

	mu      sync.Mutex
	alive   bool
	closed  bool
	onClose func()
}

// Execute writes the command as one line and collects the reply.  A
// peer that stays silent until the deadline yields empty output rather
// than an error; silence is legal for fire-and-forget protocols.
func (h *socketHandle) Execute(ctx context.Context, command string) (string, error) {
	if !h.Alive() {
		return "", sberr.ErrHandleClosed
	}

	h.ioMu.Lock()
	defer h.ioMu.Unlock()

	deadline := time.Now().Add(h.commandTimeout)
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}

	h.logger.Debug("socket %s: send %q", h.addr, command)
	h.conn.SetWriteDeadline(deadline)
	n, err := h.conn.Write(append([]byte(command), '\n'))
	h.metrics.BytesSent(int64(n))
	if err != nil {
		h.markDead()
		return "", sberr.Wrap("write", h.addr, err)
	}

	bufp := util.GetBuf()
	defer util.PutBuf(bufp)
	buf := *bufp

	var out []byte
	gotReply := false
	for {
		if gotReply {
			h.conn.SetReadDeadline(time.Now().Add(replyIdleWindow))
		} else {
			h.conn.SetReadDeadline(deadline)
		}

		n, err := h.conn.Read(buf)
		if n > 0 {
			out = append(out, buf[:n]...)
			h.metrics.BytesReceived(int64(n))
			gotReply = true
		}
		if err == nil {
			continue
		}

		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return string(out), nil
		}
		if err == io.EOF {
			h.markDead()
			return string(out), nil
		}
		h.markDead()
		return string(out), sberr.Wrap("read", h.addr, err)
	}
}

// Stream turns the handle into a raw byte pipe between the peer and
// the given reader/writer pair.  The exchange runs until the peer
// closes, ctx is cancelled, or r fails; the connection is closed on
// return and the handle is spent.  Ending a session this way is a
// deliberate close, so the OnClose callback does not fire.
func (h *socketHandle) Stream(ctx context.Context, r io.Reader, w io.Writer) error {
	if !h.Alive() {
		return sberr.ErrHandleClosed
	}

	h.ioMu.Lock()
	defer h.ioMu.Unlock()

	h.logger.Debug("socket %s: streaming", h.addr)
	h.conn.SetDeadline(time.Time{}) // drop any leftover Execute deadline
	err := util.BidirectionalCopy(ctx, h.conn, r, w)
	h.Close() //nolint:errcheck // copy already tore the conn down
	if err != nil {
		return sberr.Wrap("stream", h.addr, err)
	}
	return nil
}

// Alive reports whether the socket is still usable.
func (h *socketHandle) Alive() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.alive
}

// Addr returns the dialed address.
func (h *socketHandle) Addr() string { return h.addr }

// OnClose registers fn to run once if the peer closes the socket.  A
// handle whose peer already hung up fires fn immediately; registering
// after a deliberate Close does nothing.
func (h *socketHandle) OnClose(fn func()) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	if !h.alive {
		// Died between Establish and registration.  Fire outside the
		// lock: fn may call back into Close.
		h.mu.Unlock()
		fn()
		return
	}
	h.onClose = fn
	h.mu.Unlock()
}

// Close tears the socket down.  In-flight Execute calls unblock with
// an error.
func (h *socketHandle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.alive = false
	h.onClose = nil
	h.mu.Unlock()

	return h.conn.Close()
}

// markDead records an unexpected transport death and fires the close
// callback exactly once.
func (h *socketHandle) markDead() {
	h.mu.Lock()
	if h.closed || !h.alive {
		h.mu.Unlock()
		return
	}
	h.alive = false
	fn := h.onClose
	h.onClose = nil
	h.mu.Unlock()

	h.conn.Close()
	if fn != nil {
		fn()
	}
}
