// Package tunnel establishes and drives the transports that back
// switchboard sessions: SSH remote shells, raw TCP or unix sockets,
// and local shell processes.  The session core never touches this
// package; the application shell establishes a Handle here and feeds
// only lifecycle outcomes back into the registry.
package tunnel

import (
	"context"
	"io"

	"switchboard/config"
	sberr "switchboard/internal/errors"
)

// Connector establishes connections for one transport kind.
type Connector interface {
	// Establish opens the transport described by the profile and
	// returns a live handle.  Failures are reported as AuthError
	// (credential material rejected), ConfigError (malformed
	// profile), or NetworkError (socket-level failure).
	Establish(ctx context.Context, profile config.Profile) (Handle, error)
}

// Handle is a live, established connection a session runs commands
// over.  Implementations are safe for concurrent use.
type Handle interface {
	// Execute runs one command and returns its combined output.
	Execute(ctx context.Context, command string) (string, error)

	// Alive reports whether the underlying transport is still up.
	Alive() bool

	// Addr returns a printable form of the remote endpoint.
	Addr() string

	// OnClose registers fn to run once if the transport dies
	// underneath the handle.  If the transport already died before
	// registration, fn runs immediately.  A deliberate Close does not
	// fire it, and registering after Close does nothing.
	OnClose(fn func())

	// Close tears down the transport.  Closing twice is a no-op.
	Close() error
}

// Streamer is the optional raw-stream capability of a handle: instead
// of discrete command exchanges, the transport is driven as one
// uninterpreted byte pipe.  Socket handles implement it; command-
// oriented handles do not.
type Streamer interface {
	// Stream pipes r into the transport and the transport back into w
	// until either side closes or ctx is cancelled.  The handle is
	// spent afterwards: the underlying connection is closed on return
	// and later Execute calls fail with ErrHandleClosed.
	Stream(ctx context.Context, r io.Reader, w io.Writer) error
}

// ValidateProfile checks a connection profile without touching the
// network.  It enforces the fields every remote transport needs: a
// host, a username, a port inside the valid range, and — when inline
// key material is supplied — a blob that is recognizable as a private
// key container.
func ValidateProfile(p config.Profile) error {
	if p.Host == "" {
		return &sberr.ConfigError{
			Field:   "profile.host",
			Message: "required",
		}
	}
	if p.User == "" {
		return &sberr.ConfigError{
			Field:   "profile.user",
			Message: "required",
		}
	}
	if p.Port < 1 || p.Port > 65535 {
		return &sberr.ConfigError{
			Field:   "profile.port",
			Value:   p.Port,
			Message: "out of range 1-65535",
		}
	}
	if p.KeyData != "" && !looksLikePrivateKey([]byte(p.KeyData)) {
		return &sberr.ConfigError{
			Field:   "profile.key_data",
			Message: "not recognizable as a private key",
			Hint:    "expected a PEM block or base64-wrapped PEM",
		}
	}
	return nil
}
