package admin

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 5 * time.Second

// Server serves the admin API and the metrics endpoint
type Server struct {
	httpServer *http.Server
	listener   net.Listener
}

// NewServer binds address:port and registers the admin routes. Port 0 picks a
// free port.
func NewServer(address string, port int, secret string, handlers *AdminHandlers) (*Server, error) {
	mux := http.NewServeMux()
	RegisterRoutes(mux, handlers, secret)

	listener, err := net.Listen("tcp", net.JoinHostPort(address, fmt.Sprint(port)))
	if err != nil {
		return nil, fmt.Errorf("failed to listen for admin API: %w", err)
	}

	return &Server{
		httpServer: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		listener: listener,
	}, nil
}

// Addr returns the bound address
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Start serves requests in a background goroutine
func (s *Server) Start() {
	go func() {
		log.Info().Str("addr", s.Addr()).Msg("Admin server listening")
		if err := s.httpServer.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Admin server failed")
		}
	}()
}

// Stop gracefully shuts the server down
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}
