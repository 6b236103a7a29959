// Package server runs the HTTP listener until its context is cancelled and
// then drains in-flight requests.
package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// DefaultShutdownTimeout bounds how long Serve waits for open requests.
const DefaultShutdownTimeout = 5 * time.Second

// Server hosts a handler. The priority poll loop holds requests open, so
// ReadHeaderTimeout is the only server-side deadline.
type Server struct {
	addr            string
	handler         http.Handler
	logger          *log.Entry
	shutdownTimeout time.Duration
}

// New creates a server for addr.
func New(addr string, handler http.Handler, logger *log.Entry) *Server {
	if logger == nil {
		logger = log.WithField("component", "server")
	}
	return &Server{addr: addr, handler: handler, logger: logger, shutdownTimeout: DefaultShutdownTimeout}
}

// ListenAndServe listens on the configured address and serves until ctx is
// cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", s.addr)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully. It returns nil after a clean shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.WithField("addr", ln.Addr().String()).Info("http server listening")
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "serve http")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		s.logger.Info("shutting down http server")
		return errors.Wrap(httpServer.Shutdown(shutdownCtx), "shutdown http")
	})
	return g.Wait()
}
