package util

import (
	"context"
	"errors"
	"io"
	"net"
)

// DefaultBufSize is the standard buffer size for stream I/O (32 KiB).
const DefaultBufSize = 32 * 1024

// closeWriter is the half-close capability of TCP and unix sockets.
type closeWriter interface {
	CloseWrite() error
}

// BidirectionalCopy shuffles bytes between a session transport and an
// arbitrary reader/writer pair (a client's input feed and output sink)
// until the transport closes, the input reaches EOF and the peer
// finishes answering, or the context is cancelled.  The transport is
// closed on return; a handle driven through here is spent afterwards.
//
// The input side may be wedged in a Read on a source only the caller
// can close (a websocket, stdin).  BidirectionalCopy does not wait for
// it: the caller must close r's source after the call returns to
// release that goroutine.
func BidirectionalCopy(ctx context.Context, conn io.ReadWriteCloser, r io.Reader, w io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	connDone := make(chan error, 1)
	inputDone := make(chan error, 1)

	// transport → client output
	go func() {
		bufp := GetBuf()
		defer PutBuf(bufp)
		_, err := io.CopyBuffer(w, conn, *bufp)
		connDone <- err
		cancel()
	}()

	// client input → transport
	go func() {
		bufp := GetBuf()
		defer PutBuf(bufp)
		_, err := io.CopyBuffer(conn, r, *bufp)
		// Half-close the write side so the peer sees EOF on its read
		// while we keep draining whatever it still has to send.
		if cw, ok := conn.(closeWriter); ok {
			cw.CloseWrite() //nolint:errcheck
		}
		inputDone <- err
		// Only cancel on real errors; normal input EOF must not tear
		// the transport down before the peer finishes sending.
		if err != nil {
			cancel()
		}
	}()

	<-ctx.Done()
	conn.Close() // unblock the transport read

	errs := []error{<-connDone}
	select {
	case err := <-inputDone:
		errs = append(errs, err)
	default:
		// Input reader still blocked; its error is unobservable here.
	}

	for _, err := range errs {
		if err != nil && !isHarmless(err) {
			return err
		}
	}
	return nil
}

// isHarmless returns true for errors that are expected during shutdown.
func isHarmless(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	// net.OpError wrapping "use of closed network connection"
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return errors.Is(opErr.Err, net.ErrClosed)
	}
	return false
}
