package main

import (
	"errors"
	"io"
	"net"
	"net/http"
	"sync"

	"github.com/danmuck/framebridge/internal/config"
	"github.com/danmuck/framebridge/internal/lifecycle"
	"github.com/danmuck/framebridge/internal/observability"
	"github.com/danmuck/framebridge/internal/pathmap"
	"github.com/danmuck/framebridge/internal/router"
	"github.com/danmuck/framebridge/internal/window"
	"github.com/rs/zerolog"
)

// transport is a window that can report its own end and be closed.
type transport interface {
	window.Window
	io.Closer
	Done() <-chan struct{}
}

type connection struct {
	bridge *lifecycle.Bridge
	win    transport
}

// server mounts one bridge per connected embedded document.
type server struct {
	cfg    config.HostConfig
	host   *router.Router
	mapper pathmap.Mapper
	log    zerolog.Logger

	mu    sync.Mutex
	conns map[*connection]struct{}
}

func newServer(cfg config.HostConfig, host *router.Router, mapper pathmap.Mapper, logger zerolog.Logger) *server {
	return &server{
		cfg:    cfg,
		host:   host,
		mapper: mapper,
		log:    logger,
		conns:  make(map[*connection]struct{}),
	}
}

func (s *server) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.WebSocketPath, s.serveBridge)
	if s.cfg.MetricsPath != "" {
		mux.Handle(s.cfg.MetricsPath, observability.Handler())
	}
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}

func (s *server) serveBridge(w http.ResponseWriter, r *http.Request) {
	ws, err := window.Accept(w, r, s.cfg.Trust(), s.log)
	if err != nil {
		s.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("embedded frame rejected")
		return
	}
	s.mount(ws, r.RemoteAddr)
}

// serveStreams mounts a bridge for every connection accepted on ln
// until ln is closed.
func (s *server) serveStreams(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		s.mount(window.NewStream(conn, s.log), "unix:"+ln.Addr().String())
	}
}

func (s *server) mount(win transport, remote string) {
	logger := s.log.With().Str("remote", remote).Logger()
	b, err := lifecycle.New(func() window.Window { return win }, s.host, lifecycle.Options{
		Config: s.cfg.BridgeConfig(&logger),
		Mapper: s.mapper,
	})
	if err == nil {
		err = b.Mount()
	}
	if err != nil {
		logger.Error().Err(err).Msg("bridge mount failed")
		_ = win.Close()
		return
	}

	conn := &connection{bridge: b, win: win}
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
	logger.Info().Str("channel", b.Channel().ID().String()).Msg("embedded frame mounted")

	go func() {
		<-win.Done()
		s.release(conn)
		logger.Info().Msg("embedded frame unmounted")
	}()
}

func (s *server) release(conn *connection) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	conn.bridge.Unmount()
	_ = conn.win.Close()
}

func (s *server) mounted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *server) closeAll() {
	s.mu.Lock()
	conns := make([]*connection, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		s.release(c)
	}
}
