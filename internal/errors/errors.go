// Package errors provides domain-specific error types for switchboard.
//
// These types carry structured context (session id, lifecycle edge,
// operation, address, retryability) that lets callers decide how to
// handle failures and gives better diagnostics than plain string
// wrapping.  The registry raises exactly UnknownSessionError and
// InvalidTransitionError; the transport collaborator raises AuthError,
// ConfigError, and NetworkError.  Focus and binding operations never
// raise at all.
package errors

import (
	"errors"
	"fmt"
	"net"
	"syscall"
)

// ── Sentinel errors ──────────────────────────────────────────────────

var (
	ErrNotConnected = errors.New("not connected")
	ErrHandleClosed = errors.New("session handle is closed")
	ErrCircuitOpen  = errors.New("circuit breaker is open")
)

// ── Structured error types ───────────────────────────────────────────

// UnknownSessionError means an operation referenced a session id the
// registry never created or has already removed.
type UnknownSessionError struct {
	ID string // the session id that was looked up
}

func (e *UnknownSessionError) Error() string {
	return fmt.Sprintf("unknown session %q", e.ID)
}

// InvalidTransitionError means a requested lifecycle change violates
// the allowed state graph.  The instance's state is unchanged.
type InvalidTransitionError struct {
	ID   string // session id
	From string // current state name
	To   string // requested state name
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("session %s: invalid transition %s -> %s", e.ID, e.From, e.To)
}

// AuthError represents a credential failure against a remote host:
// unparseable or missing key material, a rejected handshake, or an
// unreachable agent.
type AuthError struct {
	Op   string // "parse-key", "agent", "handshake", "hostkey"
	Host string
	Port int
	Err  error
}

func (e *AuthError) Error() string {
	if e.Host == "" {
		return fmt.Sprintf("auth %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("auth %s %s:%d: %v", e.Op, e.Host, e.Port, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// ConfigError represents an invalid configuration or profile value.
type ConfigError struct {
	Field   string      // field name ("host", "port", "key")
	Value   interface{} // the invalid value (nil if missing)
	Message string      // human-readable explanation
	Hint    string      // suggestion for the user (optional)
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config %s", e.Field)
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	msg += ": " + e.Message
	if e.Hint != "" {
		msg += "\n  hint: " + e.Hint
	}
	return msg
}

// NetworkError represents a socket-level failure.
type NetworkError struct {
	Op        string // operation: "dial", "read", "write", "probe"
	Addr      string // network address involved
	Err       error  // underlying error
	Retryable bool   // whether the caller should retry
}

func (e *NetworkError) Error() string {
	s := fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
	if e.Retryable {
		s += " (retryable)"
	}
	return s
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ── Constructors ─────────────────────────────────────────────────────

// Wrap creates a NetworkError, automatically detecting retryability
// from the underlying error.
func Wrap(op, addr string, err error) *NetworkError {
	return &NetworkError{
		Op:        op,
		Addr:      addr,
		Err:       err,
		Retryable: classifyRetryable(err),
	}
}

// WrapAuth creates an AuthError.
func WrapAuth(op, host string, port int, err error) *AuthError {
	return &AuthError{Op: op, Host: host, Port: port, Err: err}
}

// ── Classification helpers ───────────────────────────────────────────

// IsUnknownSession reports whether err is an UnknownSessionError.
func IsUnknownSession(err error) bool {
	var ue *UnknownSessionError
	return errors.As(err, &ue)
}

// IsInvalidTransition reports whether err is an InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var te *InvalidTransitionError
	return errors.As(err, &te)
}

// IsAuth reports whether err is credential-related.
func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// IsConfig reports whether err is a configuration/profile problem.
func IsConfig(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsRetryable reports whether err is worth retrying.  Auth and config
// failures never are; network failures are classified individually.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if IsAuth(err) || IsConfig(err) {
		return false
	}
	var ne *NetworkError
	if errors.As(err, &ne) {
		return ne.Retryable
	}
	return classifyRetryable(err)
}

// classifyRetryable inspects standard library error types.
func classifyRetryable(err error) bool {
	if err == nil {
		return false
	}
	// Timeouts are always worth another attempt.
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	// Refused or reset connections usually mean the peer is
	// restarting.
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	// net.OpError with Temporary() hint
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Temporary() //nolint:staticcheck // Temporary is deprecated but still useful
	}
	// DNS errors
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Temporary() //nolint:staticcheck
	}
	return false
}

// ── Re-exports for convenience ───────────────────────────────────────
//
// These allow callers to use switchboard/internal/errors as a drop-in
// replacement for the standard library in common operations.

// As is [errors.As].
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Is is [errors.Is].
func Is(err, target error) bool { return errors.Is(err, target) }

// New is [errors.New].
func New(text string) error { return errors.New(text) }

// Unwrap is [errors.Unwrap].
func Unwrap(err error) error { return errors.Unwrap(err) }

// Join is [errors.Join].
func Join(errs ...error) error { return errors.Join(errs...) }
