package tunnel

import (
	"context"
	"net"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"switchboard/config"
	sberr "switchboard/internal/errors"
	"switchboard/internal/metrics"
	"switchboard/util"
)

// SSHConnector establishes remote-shell sessions over SSH, backed by
// golang.org/x/crypto/ssh.
type SSHConnector struct {
	// Timeout bounds the TCP dial and SSH handshake.
	Timeout time.Duration

	// CommandTimeout bounds one Execute call when the caller's
	// context carries no deadline of its own.
	CommandTimeout time.Duration

	Logger  *util.Logger
	Metrics *metrics.Collector
}

// Establish dials the host, completes the handshake, and returns a
// handle that runs each command in a fresh SSH session.
func (c *SSHConnector) Establish(ctx context.Context, p config.Profile) (Handle, error) {
	if err := ValidateProfile(p); err != nil {
		return nil, err
	}

	authMethods, err := BuildAuthMethods(p)
	if err != nil {
		return nil, sberr.WrapAuth("auth", p.Host, p.Port, err)
	}

	hkCallback, err := hostKeyCallback(p)
	if err != nil {
		return nil, sberr.WrapAuth("hostkey", p.Host, p.Port, err)
	}

	timeout := c.Timeout
	if timeout == 0 {
		timeout = config.DefaultConnTimeout
	}

	sshCfg := &ssh.ClientConfig{
		User:            p.User,
		Auth:            authMethods,
		HostKeyCallback: hkCallback,
		Timeout:         timeout,
	}

	addr := p.Addr()
	c.Logger.Debug("ssh: dialing %s as %s", addr, p.User)

	// Use a context-aware TCP dial so callers can cancel.
	dialer := net.Dialer{Timeout: timeout}
	tcpConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, sberr.Wrap("dial", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(tcpConn, addr, sshCfg)
	if err != nil {
		tcpConn.Close()
		return nil, sberr.WrapAuth("handshake", p.Host, p.Port, err)
	}

	h := &sshHandle{
		client:         ssh.NewClient(sshConn, chans, reqs),
		addr:           addr,
		commandTimeout: c.commandTimeout(),
		logger:         c.Logger,
		metrics:        c.Metrics,
		alive:          true,
	}
	go h.monitor()

	return h, nil
}

func (c *SSHConnector) commandTimeout() time.Duration {
	if c.CommandTimeout == 0 {
		return config.DefaultCommandTimeout
	}
	return c.CommandTimeout
}

// sshHandle runs commands over one SSH client connection.  Each
// Execute opens a fresh session so commands cannot wedge each other.
type sshHandle struct {
	client         *ssh.Client
	addr           string
	commandTimeout time.Duration
	logger         *util.Logger
	metrics        *metrics.Collector

	mu      sync.Mutex
	alive   bool
	closed  bool
	onClose func()
}

// Execute runs one command and returns its combined output.  A
// non-zero exit from the remote command is not a transport failure;
// the output carries whatever the command printed.
func (h *sshHandle) Execute(ctx context.Context, command string) (string, error) {
	h.mu.Lock()
	client, alive := h.client, h.alive
	h.mu.Unlock()

	if !alive || client == nil {
		return "", sberr.ErrHandleClosed
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.commandTimeout)
		defer cancel()
	}

	sess, err := client.NewSession()
	if err != nil {
		h.markDead()
		return "", sberr.Wrap("session", h.addr, err)
	}
	defer sess.Close()

	h.logger.Debug("ssh %s: exec %q", h.addr, command)
	h.metrics.BytesSent(int64(len(command)))

	type result struct {
		out []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := sess.CombinedOutput(command)
		done <- result{out, err}
	}()

	select {
	case <-ctx.Done():
		sess.Close()
		return "", ctx.Err()
	case r := <-done:
		h.metrics.BytesReceived(int64(len(r.out)))
		if r.err != nil {
			if _, ok := r.err.(*ssh.ExitError); ok {
				return string(r.out), nil
			}
			return string(r.out), sberr.Wrap("exec", h.addr, r.err)
		}
		return string(r.out), nil
	}
}

// Alive reports whether the SSH connection is still up.
func (h *sshHandle) Alive() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.alive
}

// Addr returns the host:port the handle is connected to.
func (h *sshHandle) Addr() string { return h.addr }

// OnClose registers fn to run once if the connection drops.  A
// connection that dropped before registration fires fn immediately;
// registering after a deliberate Close does nothing.
func (h *sshHandle) OnClose(fn func()) {
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

// Close shuts down the SSH connection.
func (h *sshHandle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.alive = false
	client := h.client
	h.client = nil
	h.mu.Unlock()

	if client != nil {
		return client.Close()
	}
	return nil
}

// monitor blocks until the SSH connection closes.  An unexpected drop
// flips the alive flag and fires the registered callback.
func (h *sshHandle) monitor() {
	h.mu.Lock()
	client := h.client
	h.mu.Unlock()
	if client == nil {
		return
	}

	err := client.Wait()

	h.mu.Lock()
	wasClosed := h.closed
	h.alive = false
	fn := h.onClose
	h.onClose = nil
	h.mu.Unlock()

	if wasClosed {
		return
	}
	if err != nil {
		h.logger.Debug("ssh %s: connection lost: %v", h.addr, err)
	} else {
		h.logger.Debug("ssh %s: connection closed", h.addr)
	}
	if fn != nil {
		fn()
	}
}

// markDead flips the handle dead after a transport-level failure and
// fires the close callback.
func (h *sshHandle) markDead() {
	h.mu.Lock()
	if h.closed || !h.alive {
		h.mu.Unlock()
		return
	}
	h.alive = false
	fn := h.onClose
	h.onClose = nil
	client := h.client
	h.client = nil
	h.mu.Unlock()

	if client != nil {
		client.Close()
	}
	if fn != nil {
		fn()
	}
}
