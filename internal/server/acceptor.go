// ABOUTME: TLS accept stream: raw listener in, handshake-complete conns out
// ABOUTME: Handshake failures are per-item; listener failures end the stream

package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"
)

// HandshakeError reports a TLS handshake failure on one accepted connection.
// It does not terminate the accept stream.
type HandshakeError struct {
	RemoteAddr net.Addr
	Err        error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("tls handshake with %s failed: %v", e.RemoteAddr, e.Err)
}

func (e *HandshakeError) Unwrap() error {
	return e.Err
}

// TLSIncoming turns a raw listening socket into a stream of
// handshake-complete TLS connections. It handles one connection at a time:
// accept, then handshake, then hand the connection out. Run multiple
// instances over a shared listener for concurrent handshakes.
//
// A TLSIncoming is owned by a single consumer; Next must not be called
// concurrently.
type TLSIncoming struct {
	listener         net.Listener
	config           *tls.Config
	handshakeTimeout time.Duration
	logger           *slog.Logger

	// fatal holds the listener error that ended the stream, if any.
	fatal error
}

// NewTLSIncoming wraps listener with the given TLS configuration.
// handshakeTimeout bounds each handshake; zero means no bound beyond the
// caller's context.
func NewTLSIncoming(listener net.Listener, config *tls.Config, handshakeTimeout time.Duration) *TLSIncoming {
	return &TLSIncoming{
		listener:         listener,
		config:           config,
		handshakeTimeout: handshakeTimeout,
		logger:           slog.Default().With("component", "tls-accept"),
	}
}

// Next returns the next handshake-complete connection.
//
// A *HandshakeError closes the offending connection and leaves the stream
// usable: the following call starts a fresh accept cycle. Any other error is
// a listener failure and is terminal; every later call returns it without
// touching the listener. Cancel the stream by closing the listener (Close),
// which unblocks a pending accept.
func (in *TLSIncoming) Next(ctx context.Context) (*tls.Conn, error) {
	if in.fatal != nil {
		return nil, in.fatal
	}

	raw, err := in.listener.Accept()
	if err != nil {
		in.fatal = err
		return nil, err
	}

	hsCtx := ctx
	if in.handshakeTimeout > 0 {
		var cancel context.CancelFunc
		hsCtx, cancel = context.WithTimeout(ctx, in.handshakeTimeout)
		defer cancel()
	}

	conn := tls.Server(raw, in.config)
	if err := conn.HandshakeContext(hsCtx); err != nil {
		remote := raw.RemoteAddr()
		raw.Close()
		return nil, &HandshakeError{RemoteAddr: remote, Err: err}
	}

	return conn, nil
}

// Close closes the underlying listener, unblocking a pending Next.
func (in *TLSIncoming) Close() error {
	return in.listener.Close()
}

// Addr returns the listener's address.
func (in *TLSIncoming) Addr() net.Addr {
	return in.listener.Addr()
}

// Listener adapts the stream to a net.Listener for use with http.Server.
// Handshake failures are logged and skipped; only listener failures
// propagate to the server's accept loop.
func (in *TLSIncoming) Listener() net.Listener {
	return &tlsListener{in: in}
}

type tlsListener struct {
	in *TLSIncoming
}

func (l *tlsListener) Accept() (net.Conn, error) {
	for {
		conn, err := l.in.Next(context.Background())
		if err == nil {
			return conn, nil
		}
		var hsErr *HandshakeError
		if errors.As(err, &hsErr) {
			l.in.logger.Debug("tls handshake failed", "remote", hsErr.RemoteAddr, "error", hsErr.Err)
			continue
		}
		return nil, err
	}
}

func (l *tlsListener) Close() error {
	return l.in.Close()
}

func (l *tlsListener) Addr() net.Addr {
	return l.in.Addr()
}
