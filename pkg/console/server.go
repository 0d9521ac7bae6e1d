// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package console serves the lycaon capability interfaces over TCP and,
// optionally, websockets.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yeetrun/lycaon/pkg/caprpc"
	"github.com/yeetrun/lycaon/pkg/layers"
	"github.com/yeetrun/lycaon/pkg/lycaon"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"tailscale.com/logtail/backoff"
	"tailscale.com/util/set"
)

const (
	transportTCP       = "tcp"
	transportWebSocket = "websocket"
)

// Server accepts console connections and runs one session per connection.
type Server struct {
	cfg       Config
	log       *zap.Logger
	metrics   *Metrics
	bootstrap caprpc.Server
	closers   []io.Closer

	ln      net.Listener
	httpLn  net.Listener
	httpSrv *http.Server

	ctx       context.Context
	cancel    context.CancelFunc
	waitGroup sync.WaitGroup
	stopOnce  sync.Once

	sessions struct {
		mu sync.Mutex
		s  set.HandleSet[*session]
	}
}

type session struct {
	id        string
	remote    string
	transport string
	rwc       io.Closer
	started   time.Time
}

// SessionInfo describes an open session.
type SessionInfo struct {
	ID        string
	Remote    string
	Transport string
	Started   time.Time
}

// NewServer builds a server from cfg. It opens the layer store but does
// not bind any address; call Listen and Serve.
func NewServer(cfg *Config, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Server{
		cfg:     *cfg,
		log:     log,
		metrics: NewMetrics(),
	}
	store, err := s.openStore()
	if err != nil {
		return nil, err
	}
	svc := layers.NewService(store, layers.ServiceOptions{
		ReportSize: cfg.ReportLayerSize,
		Logger:     log.Named("layers"),
	})
	s.bootstrap = lycaon.NewBootstrap(svc, log.Named("rpc"))
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s, nil
}

func (s *Server) openStore() (layers.Store, error) {
	switch s.cfg.LayerBackend {
	case BackendContainerd:
		st, err := layers.NewContainerdStore(s.cfg.ContainerdSocket, s.cfg.ContainerdNamespace, s.log.Named("containerd"))
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, st)
		return st, nil
	default:
		return layers.NewFilesystemStore(s.cfg.DataDir, s.log.Named("layers")), nil
	}
}

// Metrics returns the server's metrics.
func (s *Server) Metrics() *Metrics { return s.metrics }

// Listen binds the console address and, if configured, the HTTP address.
// Failures are returned as *StartupError.
func (s *Server) Listen() error {
	lc := net.ListenConfig{Control: listenControl}
	addr := s.cfg.Addr()
	ln, err := lc.Listen(s.ctx, "tcp", addr)
	if err != nil {
		return &StartupError{Addr: addr, Err: err}
	}
	s.ln = ln
	if s.cfg.HTTPAddr != "" {
		hln, err := lc.Listen(s.ctx, "tcp", s.cfg.HTTPAddr)
		if err != nil {
			ln.Close()
			return &StartupError{Addr: s.cfg.HTTPAddr, Err: err}
		}
		s.httpLn = hln
		s.httpSrv = &http.Server{
			Handler:           s.HTTPHandler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
	}
	s.log.Info("starting console", zap.Stringer("addr", ln.Addr()))
	if s.httpLn != nil {
		s.log.Info("starting http listener", zap.Stringer("addr", s.httpLn.Addr()))
	}
	return nil
}

// Addr returns the bound console address. It is nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// HTTPAddr returns the bound HTTP address, or nil if HTTP is disabled.
func (s *Server) HTTPAddr() net.Addr {
	if s.httpLn == nil {
		return nil
	}
	return s.httpLn.Addr()
}

// Serve accepts connections until ctx is done or Shutdown is called.
// Connection failures never end the accept loop.
func (s *Server) Serve(ctx context.Context) error {
	if s.ln == nil {
		return errors.New("console: Serve called before Listen")
	}
	stop := context.AfterFunc(ctx, s.stop)
	defer stop()

	var g errgroup.Group
	g.Go(s.acceptLoop)
	if s.httpSrv != nil {
		g.Go(func() error {
			if err := s.httpSrv.Serve(s.httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve http: %w", err)
			}
			return nil
		})
	}
	return g.Wait()
}

// ListenAndServe is Listen followed by Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

func (s *Server) acceptLoop() error {
	bo := backoff.NewBackoff("console-accept", s.log.Sugar().Infof, 5*time.Second)
	for {
		nc, err := s.ln.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Warn("accept failed", zap.Error(err))
			bo.BackOff(s.ctx, err)
			continue
		}
		bo.BackOff(s.ctx, nil)
		if tc, ok := nc.(*net.TCPConn); ok {
			if err := tc.SetNoDelay(true); err != nil {
				s.log.Debug("set nodelay", zap.Error(err))
			}
		}
		s.startSession(nc, nc.RemoteAddr().String(), transportTCP)
	}
}

// startSession serves rwc on its own goroutine. It closes rwc and reports
// false once the server is stopping. The check and waitGroup.Go happen
// under sessions.mu, which stop takes after cancelling, so Shutdown never
// waits while a session can still be added.
func (s *Server) startSession(rwc io.ReadWriteCloser, remote, transport string) bool {
	ss := &s.sessions
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if s.ctx.Err() != nil {
		rwc.Close()
		return false
	}
	s.waitGroup.Go(func() {
		s.serveSession(rwc, remote, transport)
	})
	return true
}

// serveSession runs the capability protocol on rwc until the peer leaves
// or the server stops. Errors end only this session.
func (s *Server) serveSession(rwc io.ReadWriteCloser, remote, transport string) {
	sess := &session{
		id:        uuid.NewString(),
		remote:    remote,
		transport: transport,
		rwc:       rwc,
		started:   time.Now(),
	}
	log := s.log.With(zap.String("session", sess.id), zap.String("remote", remote))
	h := s.addSession(sess)
	defer s.removeSession(h)
	s.metrics.sessionOpened(transport)
	defer s.metrics.sessionClosed()

	log.Info("session started", zap.String("transport", transport))
	err := caprpc.Serve(s.ctx, rwc, caprpc.Options{
		Bootstrap:   s.bootstrap,
		Logger:      log,
		CallTimeout: s.cfg.RequestTimeout,
		Observer:    s.metrics,
	})
	if err != nil {
		log.Warn("session ended", zap.Error(err))
		return
	}
	log.Info("session ended", zap.Duration("duration", time.Since(sess.started)))
}

func (s *Server) addSession(sess *session) set.Handle {
	ss := &s.sessions
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if s.ctx.Err() != nil {
		// stop already closed the other sessions.
		sess.rwc.Close()
	}
	return ss.s.Add(sess)
}

func (s *Server) removeSession(h set.Handle) {
	ss := &s.sessions
	ss.mu.Lock()
	defer ss.mu.Unlock()
	delete(ss.s, h)
}

// Sessions returns the open sessions.
func (s *Server) Sessions() []SessionInfo {
	ss := &s.sessions
	ss.mu.Lock()
	defer ss.mu.Unlock()
	out := make([]SessionInfo, 0, len(ss.s))
	for _, sess := range ss.s {
		out = append(out, SessionInfo{
			ID:        sess.id,
			Remote:    sess.remote,
			Transport: sess.transport,
			Started:   sess.started,
		})
	}
	return out
}

// stop closes the listeners and every open session.
func (s *Server) stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		if s.ln != nil {
			s.ln.Close()
		}
		if s.httpSrv != nil {
			s.httpSrv.Close()
		}
		ss := &s.sessions
		ss.mu.Lock()
		for _, sess := range ss.s {
			sess.rwc.Close()
		}
		ss.mu.Unlock()
	})
}

// Shutdown stops the server and waits for all sessions to end.
func (s *Server) Shutdown() {
	s.stop()
	s.waitGroup.Wait()
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			s.log.Warn("close store", zap.Error(err))
		}
	}
	s.closers = nil
}
