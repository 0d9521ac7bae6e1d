// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package console

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yeetrun/lycaon/pkg/caprpc"
	"go.uber.org/zap"
)

// HTTPHandler serves metrics, a health check and the capability protocol
// over websockets at /rpc.
func (s *Server) HTTPHandler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Group(func(r chi.Router) {
		r.Use(s.compressResponses)
		r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte("ok\n"))
		})
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
	})
	// The websocket upgrade needs the raw ResponseWriter.
	r.Get("/rpc", s.handleRPCWebSocket)
	return r
}

func (s *Server) handleRPCWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.ctx.Err() != nil {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	conn, err := caprpc.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	if !s.startSession(caprpc.NewWebSocketStream(conn), r.RemoteAddr, transportWebSocket) {
		s.log.Debug("websocket session refused during shutdown", zap.String("remote", r.RemoteAddr))
	}
}
