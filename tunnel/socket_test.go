package tunnel

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"switchboard/config"
	sberr "switchboard/internal/errors"
	"switchboard/util"
)

// startLineServer listens on the given network/address and runs handle
// once per accepted connection. The listener is closed when the test ends.
func startLineServer(t *testing.T, network, addr string, handle func(net.Conn, *bufio.Reader)) net.Listener {
	t.Helper()
	ln, err := net.Listen(network, addr)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				handle(c, bufio.NewReader(c))
			}(conn)
		}
	}()
	return ln
}

func echoHandler(c net.Conn, r *bufio.Reader) {
	for {
		line, err := r.ReadString('\n')
		if line != "" {
			c.Write([]byte("echo: " + line))
		}
		if err != nil {
			return
		}
	}
}

func testSocketConnector() *SocketConnector {
	return &SocketConnector{
		Timeout:        time.Second,
		CommandTimeout: 2 * time.Second,
		Logger:         util.NewLogger(0),
	}
}

func TestSocketExecute_RoundTrip(t *testing.T) {
	ln := startLineServer(t, "tcp", "127.0.0.1:0", echoHandler)
	port := ln.Addr().(*net.TCPAddr).Port

	h, err := testSocketConnector().Establish(context.Background(), config.Profile{Host: "127.0.0.1", Port: port})
	if err != nil {
		t.Fatalf("Establish failed: %v", err)
	}
	defer h.Close()

	out, err := h.Execute(context.Background(), "status")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !strings.Contains(out, "echo: status") {
		t.Errorf("Execute output = %q, want echo of the command", out)
	}
	if !h.Alive() {
		t.Error("handle should still be alive after a round trip")
	}
}

func TestSocketExecute_SilentPeer(t *testing.T) {
	ln := startLineServer(t, "tcp", "127.0.0.1:0", func(c net.Conn, r *bufio.Reader) {
		r.ReadString('\n')
		time.Sleep(2 * time.Second)
	})
	port := ln.Addr().(*net.TCPAddr).Port

	h, err := testSocketConnector().Establish(context.Background(), config.Profile{Host: "127.0.0.1", Port: port})
	if err != nil {
		t.Fatalf("Establish failed: %v", err)
	}
	defer h.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	out, err := h.Execute(ctx, "fire-and-forget")
	if err != nil {
		t.Fatalf("a silent peer should not be an error, got %v", err)
	}
	if out != "" {
		t.Errorf("output = %q, want empty", out)
	}
	if !h.Alive() {
		t.Error("handle should survive a reply timeout")
	}
}

func TestSocketExecute_PeerCloseFiresOnClose(t *testing.T) {
	ln := startLineServer(t, "tcp", "127.0.0.1:0", func(c net.Conn, r *bufio.Reader) {
		r.ReadString('\n')
	})
	port := ln.Addr().(*net.TCPAddr).Port

	h, err := testSocketConnector().Establish(context.Background(), config.Profile{Host: "127.0.0.1", Port: port})
	if err != nil {
		t.Fatalf("Establish failed: %v", err)
	}
	defer h.Close()

	closed := make(chan struct{})
	h.OnClose(func() { close(closed) })

	if _, err := h.Execute(context.Background(), "quit"); err != nil {
		t.Fatalf("clean EOF should not be an error, got %v", err)
	}

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("OnClose was not fired after the peer hung up")
	}
	if h.Alive() {
		t.Error("handle should be dead after the peer hung up")
	}
	if _, err := h.Execute(context.Background(), "x"); !sberr.Is(err, sberr.ErrHandleClosed) {
		t.Errorf("Execute on a dead handle = %v, want ErrHandleClosed", err)
	}
}

func TestSocketOnClose_RegisteredAfterDeath(t *testing.T) {
	ln := startLineServer(t, "tcp", "127.0.0.1:0", func(c net.Conn, r *bufio.Reader) {
		r.ReadString('\n')
	})
	port := ln.Addr().(*net.TCPAddr).Port

	h, err := testSocketConnector().Establish(context.Background(), config.Profile{Host: "127.0.0.1", Port: port})
	if err != nil {
		t.Fatalf("Establish failed: %v", err)
	}
	defer h.Close()

	// The peer hangs up while no callback is registered yet.
	if _, err := h.Execute(context.Background(), "quit"); err != nil {
		t.Fatalf("clean EOF should not be an error, got %v", err)
	}
	if h.Alive() {
		t.Fatal("handle should be dead after the peer hung up")
	}

	// Registration on the dead handle fires right away; the death must
	// be reported no matter when the listener shows up.
	fired := false
	h.OnClose(func() { fired = true })
	if !fired {
		t.Error("OnClose on an already-dead handle should fire immediately")
	}
}

func TestSocketClose_Deliberate(t *testing.T) {
	ln := startLineServer(t, "tcp", "127.0.0.1:0", echoHandler)
	port := ln.Addr().(*net.TCPAddr).Port

	h, err := testSocketConnector().Establish(context.Background(), config.Profile{Host: "127.0.0.1", Port: port})
	if err != nil {
		t.Fatalf("Establish failed: %v", err)
	}

	fired := false
	h.OnClose(func() { fired = true })

	if err := h.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}
	if fired {
		t.Error("a deliberate Close must not fire OnClose")
	}
	if h.Alive() {
		t.Error("closed handle should not report alive")
	}

	// Late registration after a deliberate Close is inert too.
	h.OnClose(func() { fired = true })
	if fired {
		t.Error("OnClose registered after Close must not fire")
	}
}

func TestSocketStream_HalfCloseEndsExchange(t *testing.T) {
	ln := startLineServer(t, "tcp", "127.0.0.1:0", echoHandler)
	port := ln.Addr().(*net.TCPAddr).Port

	h, err := testSocketConnector().Establish(context.Background(), config.Profile{Host: "127.0.0.1", Port: port})
	if err != nil {
		t.Fatalf("Establish failed: %v", err)
	}

	fired := false
	h.OnClose(func() { fired = true })

	s, ok := h.(Streamer)
	if !ok {
		t.Fatal("socket handle should implement Streamer")
	}

	var out bytes.Buffer
	if err := s.Stream(context.Background(), strings.NewReader("one\ntwo\n"), &out); err != nil {
		t.Fatalf("Stream failed: %v", err)
	}

	got := out.String()
	if !strings.Contains(got, "echo: one") || !strings.Contains(got, "echo: two") {
		t.Errorf("stream output = %q, want echoes of both lines", got)
	}
	if h.Alive() {
		t.Error("handle should be spent after Stream returns")
	}
	if fired {
		t.Error("Stream's own teardown must not fire OnClose")
	}
}

func TestSocketStream_DeadHandle(t *testing.T) {
	ln := startLineServer(t, "tcp", "127.0.0.1:0", echoHandler)
	port := ln.Addr().(*net.TCPAddr).Port

	h, err := testSocketConnector().Establish(context.Background(), config.Profile{Host: "127.0.0.1", Port: port})
	if err != nil {
		t.Fatalf("Establish failed: %v", err)
	}
	h.Close()

	err = h.(Streamer).Stream(context.Background(), strings.NewReader(""), io.Discard)
	if !sberr.Is(err, sberr.ErrHandleClosed) {
		t.Errorf("Stream on a dead handle = %v, want ErrHandleClosed", err)
	}
}

func TestSocketEstablish_UnixSocket(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix sockets are not available on windows")
	}
	sock := filepath.Join(t.TempDir(), "ctl.sock")
	startLineServer(t, "unix", sock, echoHandler)

	h, err := testSocketConnector().Establish(context.Background(), config.Profile{Host: sock})
	if err != nil {
		t.Fatalf("Establish failed: %v", err)
	}
	defer h.Close()

	out, err := h.Execute(context.Background(), "ping")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !strings.Contains(out, "echo: ping") {
		t.Errorf("Execute output = %q", out)
	}
	if h.Addr() != sock {
		t.Errorf("Addr() = %q, want %q", h.Addr(), sock)
	}
}

func TestSocketEstablish_Refused(t *testing.T) {
	port, err := util.FindFreePort()
	if err != nil {
		t.Fatalf("FindFreePort failed: %v", err)
	}
	_, err = testSocketConnector().Establish(context.Background(), config.Profile{Host: "127.0.0.1", Port: port})
	if err == nil {
		t.Fatal("expected a dial error against a closed port")
	}
	var ne *sberr.NetworkError
	if !sberr.As(err, &ne) {
		t.Fatalf("error = %T, want *NetworkError", err)
	}
}

func TestSocketTarget(t *testing.T) {
	tests := []struct {
		name        string
		profile     config.Profile
		wantNetwork string
		wantAddr    string
		wantErr     bool
	}{
		{"tcp host and port", config.Profile{Host: "db.internal", Port: 6379}, "tcp", "db.internal:6379", false},
		{"unix path", config.Profile{Host: "/run/app.sock"}, "unix", "/run/app.sock", false},
		{"missing host", config.Profile{Port: 6379}, "", "", true},
		{"zero port", config.Profile{Host: "db.internal"}, "", "", true},
		{"port out of range", config.Profile{Host: "db.internal", Port: 70000}, "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			network, addr, err := socketTarget(tt.profile)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if !sberr.IsConfig(err) {
					t.Errorf("error = %v, want ConfigError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("socketTarget failed: %v", err)
			}
			if network != tt.wantNetwork || addr != tt.wantAddr {
				t.Errorf("socketTarget = (%q, %q), want (%q, %q)", network, addr, tt.wantNetwork, tt.wantAddr)
			}
		})
	}
}
