package errors

import (
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
	"testing"
)

func TestUnknownSessionError_Format(t *testing.T) {
	err := &UnknownSessionError{ID: "a1b2c3"}
	want := `unknown session "a1b2c3"`
	if got := err.Error(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestInvalidTransitionError_Format(t *testing.T) {
	err := &InvalidTransitionError{ID: "a1b2c3", From: "running", To: "idle"}
	want := "session a1b2c3: invalid transition running -> idle"
	if got := err.Error(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestNetworkError_Format(t *testing.T) {
	tests := []struct {
		name string
		err  NetworkError
		want string
	}{
		{
			name: "retryable",
			err:  NetworkError{Op: "dial", Addr: "example.com:80", Err: io.EOF, Retryable: true},
			want: "dial example.com:80: EOF (retryable)",
		},
		{
			name: "non-retryable",
			err:  NetworkError{Op: "probe", Addr: ":8080", Err: fmt.Errorf("connection refused")},
			want: "probe :8080: connection refused",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNetworkError_Unwrap(t *testing.T) {
	err := &NetworkError{Op: "dial", Addr: "x", Err: io.EOF}
	if !Is(err, io.EOF) {
		t.Error("should unwrap to io.EOF")
	}
}

func TestAuthError_Format(t *testing.T) {
	tests := []struct {
		name string
		err  *AuthError
		want string
	}{
		{
			name: "with host",
			err:  WrapAuth("handshake", "bastion.example.com", 22, fmt.Errorf("permission denied")),
			want: "auth handshake bastion.example.com:22: permission denied",
		},
		{
			name: "without host",
			err:  WrapAuth("parse-key", "", 0, fmt.Errorf("no PEM block")),
			want: "auth parse-key: no PEM block",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAuthError_Unwrap(t *testing.T) {
	inner := fmt.Errorf("auth fail")
	err := WrapAuth("handshake", "host", 22, inner)
	if !Is(err, inner) {
		t.Error("should unwrap to inner error")
	}
}

func TestConfigError_Format(t *testing.T) {
	tests := []struct {
		name string
		err  ConfigError
		want string
	}{
		{
			name: "with value and hint",
			err: ConfigError{
				Field:   "port",
				Value:   99999,
				Message: "out of range 1-65535",
				Hint:    "use a port between 1 and 65535",
			},
			want: "config port=99999: out of range 1-65535\n  hint: use a port between 1 and 65535",
		},
		{
			name: "missing value no hint",
			err: ConfigError{
				Field:   "host",
				Message: "required",
			},
			want: "config host: required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("got:\n%s\nwant:\n%s", got, tt.want)
			}
		})
	}
}

func TestWrap(t *testing.T) {
	inner := fmt.Errorf("connection refused")
	err := Wrap("dial", "10.0.0.1:22", inner)

	if err.Op != "dial" || err.Addr != "10.0.0.1:22" {
		t.Errorf("wrong fields: Op=%q Addr=%q", err.Op, err.Addr)
	}
	if !Is(err, inner) {
		t.Error("should unwrap to inner error")
	}
}

func TestKindPredicates(t *testing.T) {
	unknown := &UnknownSessionError{ID: "x"}
	invalid := &InvalidTransitionError{ID: "x", From: "idle", To: "stopped"}
	auth := WrapAuth("handshake", "h", 22, io.EOF)
	config := &ConfigError{Field: "host", Message: "required"}

	tests := []struct {
		name string
		pred func(error) bool
		err  error
		want bool
	}{
		{"unknown session", IsUnknownSession, unknown, true},
		{"unknown session wrapped", IsUnknownSession, fmt.Errorf("op: %w", unknown), true},
		{"unknown session mismatch", IsUnknownSession, invalid, false},
		{"invalid transition", IsInvalidTransition, invalid, true},
		{"auth", IsAuth, auth, true},
		{"auth mismatch", IsAuth, config, false},
		{"config", IsConfig, config, true},
		{"nil", IsUnknownSession, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.pred(tt.err); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"retryable network", &NetworkError{Op: "dial", Addr: "x", Err: io.EOF, Retryable: true}, true},
		{"non-retryable network", &NetworkError{Op: "dial", Addr: "x", Err: io.EOF, Retryable: false}, false},
		{"auth never retryable", WrapAuth("handshake", "h", 22, io.EOF), false},
		{"config never retryable", &ConfigError{Field: "host", Message: "required"}, false},
		{"plain error", fmt.Errorf("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClassifyRetryable_NetOpError(t *testing.T) {
	opErr := &net.OpError{
		Op:  "dial",
		Net: "tcp",
		Err: &net.DNSError{IsTemporary: true},
	}
	if !classifyRetryable(opErr) {
		t.Error("temporary OpError should be retryable")
	}
}

func TestClassifyRetryable_ConnRefused(t *testing.T) {
	opErr := &net.OpError{
		Op:  "dial",
		Net: "tcp",
		Err: os.NewSyscallError("connect", syscall.ECONNREFUSED),
	}
	if !classifyRetryable(opErr) {
		t.Error("connection refused should be retryable")
	}
}

func TestClassifyRetryable_Timeout(t *testing.T) {
	if !classifyRetryable(&net.DNSError{IsTimeout: true}) {
		t.Error("timeout should be retryable")
	}
}

func TestSentinels(t *testing.T) {
	// Verify sentinel errors are distinct.
	sentinels := []error{
		ErrNotConnected, ErrHandleClosed, ErrCircuitOpen,
	}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i != j && Is(a, b) {
				t.Errorf("sentinel %d and %d should not match", i, j)
			}
		}
	}
}
