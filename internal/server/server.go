// Package server serves the compiled test bundle to the browser workers.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vizard/internal/common"
)

const maxPort = 65535

// Server is a static file server bound to the first free local port
type Server struct {
	logger   arbor.ILogger
	root     string
	server   *http.Server
	listener net.Listener
	done     chan struct{}
}

// New creates a server for the files under root
func New(logger arbor.ILogger, root string) *Server {
	s := &Server{
		logger: logger,
		root:   root,
	}

	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.Dir(root)))

	s.server = &http.Server{
		Handler:      s.withMiddleware(mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start binds the first free port at or above port and serves in the
// background. Port 0 lets the OS pick.
func (s *Server) Start(port int) error {
	listener, err := listenFrom(port)
	if err != nil {
		return err
	}
	s.listener = listener
	s.done = make(chan struct{})

	s.logger.Info().
		Str("address", s.URL()).
		Str("root", s.root).
		Msg("Static server starting")

	common.SafeGo(s.logger, "staticServer", func() {
		defer close(s.done)
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Static server failed")
		}
	})
	return nil
}

func listenFrom(port int) (net.Listener, error) {
	if port == 0 {
		return net.Listen("tcp", "127.0.0.1:0")
	}
	var lastErr error
	for p := port; p <= maxPort; p++ {
		listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", p))
		if err == nil {
			return listener, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("no free port at or above %d: %w", port, lastErr)
}

// Port returns the bound port (0 before Start)
func (s *Server) Port() int {
	if s.listener == nil {
		return 0
	}
	return s.listener.Addr().(*net.TCPAddr).Port
}

// URL returns the base URL of the server
func (s *Server) URL() string {
	return fmt.Sprintf("http://127.0.0.1:%d", s.Port())
}

// WaitReady polls until the server answers or ctx is done
func (s *Server) WaitReady(ctx context.Context) error {
	client := &http.Client{Timeout: time.Second}
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, s.URL()+"/", nil)
		if err != nil {
			return err
		}
		if resp, err := client.Do(req); err == nil {
			resp.Body.Close()
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("static server not ready: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// Shutdown stops the server. Safe to call when Start failed or was never called.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.listener == nil {
		return nil
	}

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	<-s.done

	s.logger.Debug().Msg("Static server stopped")
	return nil
}
