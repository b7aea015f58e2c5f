package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

// Server ties the hub to its HTTP surface
type Server struct {
	cfg      ServerConfig
	log      *zap.Logger
	metrics  *Metrics
	hub      *Hub
	upgrader websocket.Upgrader
}

// NewServer validates the config and wires a hub, metrics and upgrader
func NewServer(cfg ServerConfig, log *zap.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	metrics := NewMetrics()
	return &Server{
		cfg:      cfg,
		log:      log,
		metrics:  metrics,
		hub:      NewHub(cfg, log.Named("hub"), metrics),
		upgrader: newUpgrader(cfg),
	}, nil
}

// Hub exposes the core, mainly for statistics
func (s *Server) Hub() *Hub { return s.hub }

// Run listens on the configured address and serves until ctx is cancelled
func (s *Server) Run(ctx context.Context) error {
	lc := net.ListenConfig{Control: reuseAddr}
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the hub and the HTTP server on ln under one errgroup. Either
// failing, or ctx ending, stops both.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	g, ctx := errgroup.WithContext(ctx)
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.HandshakeTimeout,
	}

	g.Go(func() error {
		return s.hub.Run(ctx)
	})

	g.Go(func() error {
		return monitorListenOverflows(ctx, s.log)
	})

	g.Go(func() error {
		logListenBacklog(s.log, ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		// hijacked websocket connections are closed by the hub, not Shutdown
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// FinalStats returns the statistics logged at shutdown
func (s *Server) FinalStats() Stats {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	st, _ := s.hub.Stats(ctx)
	return st
}
