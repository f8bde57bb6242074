// Package webhook is the inbound HTTP side of the bridge: the game server
// posts notifications here and operators fetch the invite page.
package webhook

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	rtsup "gamebridge/internal/runtime/supervisor"
	logx "gamebridge/pkg/logx"
)

type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Server runs the HTTP listener under a restart loop.
type Server struct {
	cfg     Config
	handler http.Handler
	log     logx.Logger

	mu    sync.Mutex
	srv   *http.Server
	ln    net.Listener
	sup     *rtsup.Supervisor
	ready   chan struct{}
	closing bool
}

func NewServer(cfg Config, h http.Handler, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 60 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	return &Server{cfg: cfg, handler: h, log: log, ready: make(chan struct{})}
}

// Start binds the listener and serves in the background. A bind failure
// is returned directly; later serve failures are retried with backoff.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.sup != nil {
		s.mu.Unlock()
		return nil
	}
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.ln = ln
	s.closing = false
	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log.With(logx.String("comp", "webhook"))))
	sup := s.sup
	s.mu.Unlock()

	sup.GoRestart("http.serve", s.serveOnce,
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
	)
	return nil
}

// Addr is the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

func (s *Server) serveOnce(ctx context.Context) error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return nil
	}
	ln := s.ln
	if ln == nil {
		// the previous listener died with the previous run
		var err error
		ln, err = net.Listen("tcp", s.cfg.Addr)
		if err != nil {
			s.mu.Unlock()
			return err
		}
		s.ln = ln
	}
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: s.cfg.ReadTimeout,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.srv = srv
	s.mu.Unlock()

	select {
	case <-s.ready:
	default:
		close(s.ready)
	}
	s.log.Info("webhook listening", logx.String("addr", ln.Addr().String()))

	err := srv.Serve(ln)

	s.mu.Lock()
	if s.srv == srv {
		s.srv = nil
		s.ln = nil
	}
	closing := s.closing
	s.mu.Unlock()

	if closing || ctx.Err() != nil {
		return nil
	}
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return errors.New("webhook server exited unexpectedly")
	}
	return err
}

// Ready is closed once the first Serve call is about to run.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Stop drains in-flight requests, bounded by ctx and the shutdown timeout.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	sup := s.sup
	srv := s.srv
	ln := s.ln
	s.sup = nil
	s.closing = sup != nil
	s.mu.Unlock()
	if sup == nil {
		return nil
	}

	sctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()
	var err error
	if srv != nil {
		err = srv.Shutdown(sctx)
	} else if ln != nil {
		_ = ln.Close()
	}
	if werr := sup.Stop(sctx); werr != nil && err == nil {
		err = werr
	}
	s.log.Info("webhook stopped")
	return err
}
