package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"

	"github.com/zeroknots/lazyaccount/metrics"
)

// Server serves the JSON-RPC APIs over HTTP.
type Server struct {
	logger    zerolog.Logger
	collector metrics.Collector
	timeouts  rpc.HTTPTimeouts

	mux      sync.Mutex
	endpoint string
	rpc      *rpc.Server
	server   *http.Server
	listener net.Listener
}

func NewServer(logger zerolog.Logger, collector metrics.Collector, timeouts rpc.HTTPTimeouts) *Server {
	return &Server{
		logger:    logger.With().Str("component", "api-server").Logger(),
		collector: collector,
		timeouts:  timeouts,
	}
}

// EnableRPC registers the APIs on a fresh JSON-RPC handler.
func (s *Server) EnableRPC(apis []rpc.API) error {
	s.mux.Lock()
	defer s.mux.Unlock()

	if s.rpc != nil {
		return fmt.Errorf("JSON-RPC over HTTP is already enabled")
	}

	srv := rpc.NewServer()
	for _, api := range apis {
		if err := srv.RegisterName(api.Namespace, api.Service); err != nil {
			return fmt.Errorf("failed to register %s API: %w", api.Namespace, err)
		}
	}

	s.rpc = srv
	return nil
}

func (s *Server) SetListenAddr(host string, port int) error {
	s.mux.Lock()
	defer s.mux.Unlock()

	if s.listener != nil {
		return fmt.Errorf("server already started on %s", s.listener.Addr())
	}

	s.endpoint = net.JoinHostPort(host, strconv.Itoa(port))
	return nil
}

// ListenAddr returns the address the server listens on once started.
func (s *Server) ListenAddr() string {
	s.mux.Lock()
	defer s.mux.Unlock()

	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.endpoint
}

func (s *Server) Start() error {
	s.mux.Lock()
	defer s.mux.Unlock()

	if s.rpc == nil {
		return fmt.Errorf("no APIs enabled")
	}
	if s.endpoint == "" {
		return fmt.Errorf("listen address is not set")
	}
	if s.listener != nil {
		return nil
	}

	listener, err := net.Listen("tcp", s.endpoint)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.endpoint, err)
	}

	s.listener = listener
	s.server = &http.Server{
		Handler:           metrics.NewRequestTimer(s.rpc, s.collector, LazyNamespace+"_"),
		ReadTimeout:       s.timeouts.ReadTimeout,
		ReadHeaderTimeout: s.timeouts.ReadHeaderTimeout,
		WriteTimeout:      s.timeouts.WriteTimeout,
		IdleTimeout:       s.timeouts.IdleTimeout,
	}

	go func(server *http.Server) {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("API server failed")
		}
	}(s.server)

	s.logger.Info().Str("endpoint", listener.Addr().String()).Msg("JSON-RPC over HTTP enabled")
	return nil
}

func (s *Server) Stop() {
	s.mux.Lock()
	defer s.mux.Unlock()

	if s.listener == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error().Err(err).Msg("failed to shut down API server")
	}
	s.rpc.Stop()

	s.logger.Info().Str("endpoint", s.listener.Addr().String()).Msg("API server stopped")
	s.listener = nil
	s.server = nil
}
