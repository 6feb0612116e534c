package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const Endpoint = "/metrics"

// Server exposes a prometheus registry on /metrics.
type Server struct {
	logger   zerolog.Logger
	endpoint string
	server   *http.Server

	mux      sync.Mutex
	listener net.Listener
}

// NewServer serves gatherer on host:port. Port 0 picks a free port.
func NewServer(logger zerolog.Logger, gatherer prometheus.Gatherer, host string, port int) *Server {
	mux := http.NewServeMux()
	mux.Handle(Endpoint, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return &Server{
		logger:   logger.With().Str("component", "metrics-server").Logger(),
		endpoint: net.JoinHostPort(host, strconv.Itoa(port)),
		server:   &http.Server{Handler: mux},
	}
}

// Start binds the listen address and serves in the background. Bind errors
// are returned to the caller.
func (s *Server) Start() error {
	s.mux.Lock()
	defer s.mux.Unlock()

	if s.listener != nil {
		return nil
	}

	listener, err := net.Listen("tcp", s.endpoint)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.endpoint, err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("error serving metrics server")
		}
	}()

	s.logger.Info().
		Str("address", listener.Addr().String()).
		Str("endpoint", Endpoint).
		Msg("metrics server started")
	return nil
}

// Addr returns the bound address once started, the configured one before.
func (s *Server) Addr() string {
	s.mux.Lock()
	defer s.mux.Unlock()

	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.endpoint
}

func (s *Server) Stop(ctx context.Context) error {
	s.mux.Lock()
	defer s.mux.Unlock()

	if s.listener == nil {
		return nil
	}
	s.listener = nil

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down metrics server: %w", err)
	}
	return nil
}
