// ABOUTME: HTTPS front end wiring the TLS accept stream to per-conn pipelines
// ABOUTME: Builds one pipeline per connection via the factory

package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// connHandlerKey carries the per-connection handler in the connection's base
// context.
type connHandlerKey struct{}

// Server serves authenticated HTTPS traffic: it pulls handshake-complete
// connections from a TLSIncoming stream and dispatches each connection's
// requests to a pipeline built by the factory.
type Server struct {
	incoming *TLSIncoming
	factory  *Factory
	logger   *slog.Logger
}

// NewServer creates a server over the given accept stream and factory.
func NewServer(incoming *TLSIncoming, factory *Factory) *Server {
	return &Server{
		incoming: incoming,
		factory:  factory,
		logger:   slog.Default().With("component", "server"),
	}
}

// Serve accepts and serves connections until ctx is cancelled or the
// listener fails. On cancellation it drains in-flight requests before
// returning.
func (s *Server) Serve(ctx context.Context) error {
	httpSrv := &http.Server{
		Handler: http.HandlerFunc(s.dispatch),
		ConnContext: func(ctx context.Context, c net.Conn) context.Context {
			return context.WithValue(ctx, connHandlerKey{}, s.factory.Build())
		},
		ErrorLog: slog.NewLogLogger(s.logger.Handler(), slog.LevelDebug),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("shutdown did not drain cleanly", "error", err)
		}
	}()

	s.logger.Info("serving", "addr", s.incoming.Addr())
	err := httpSrv.Serve(s.incoming.Listener())
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// dispatch routes a request to the handler bound to its connection.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request) {
	handler, ok := r.Context().Value(connHandlerKey{}).(http.Handler)
	if !ok {
		s.logger.Error("no handler bound to connection")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	handler.ServeHTTP(w, r)
}
