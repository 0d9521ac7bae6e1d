// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package console

import (
	"compress/gzip"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
)

const (
	encodingZstd = "zstd"
	encodingGzip = "gzip"
)

// selectEncoding picks the response encoding for an Accept-Encoding header,
// preferring zstd over gzip on equal quality. It returns "" for identity.
func selectEncoding(accept string) string {
	q := map[string]float64{}
	for _, part := range strings.Split(accept, ",") {
		name, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		name = strings.TrimSpace(name)
		weight := 1.0
		if v, ok := strings.CutPrefix(strings.TrimSpace(params), "q="); ok {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				weight = f
			}
		}
		switch name {
		case encodingZstd, encodingGzip:
			q[name] = weight
		case "*":
			for _, enc := range []string{encodingZstd, encodingGzip} {
				if _, ok := q[enc]; !ok {
					q[enc] = weight
				}
			}
		}
	}
	best, bestQ := "", 0.0
	for _, enc := range []string{encodingZstd, encodingGzip} {
		if w, ok := q[enc]; ok && w > bestQ {
			best, bestQ = enc, w
		}
	}
	return best
}

type compressWriter struct {
	http.ResponseWriter
	w           io.WriteCloser
	encoding    string
	wroteHeader bool
}

func (cw *compressWriter) WriteHeader(code int) {
	if cw.wroteHeader {
		return
	}
	cw.wroteHeader = true
	h := cw.ResponseWriter.Header()
	h.Set("Content-Encoding", cw.encoding)
	h.Add("Vary", "Accept-Encoding")
	h.Del("Content-Length")
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *compressWriter) Write(p []byte) (int, error) {
	if !cw.wroteHeader {
		cw.WriteHeader(http.StatusOK)
	}
	return cw.w.Write(p)
}

// compressResponses encodes responses with zstd or gzip when the client
// accepts it. The request's Accept-Encoding is cleared so inner handlers
// do not compress a second time.
func (s *Server) compressResponses(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		enc := selectEncoding(r.Header.Get("Accept-Encoding"))
		if enc == "" {
			next.ServeHTTP(w, r)
			return
		}
		var (
			zw  io.WriteCloser
			err error
		)
		switch enc {
		case encodingZstd:
			zw, err = zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedFastest))
		default:
			zw = gzip.NewWriter(w)
		}
		if err != nil {
			s.log.Debug("response encoder", zap.String("encoding", enc), zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}
		r.Header.Del("Accept-Encoding")
		cw := &compressWriter{ResponseWriter: w, w: zw, encoding: enc}
		next.ServeHTTP(cw, r)
		if err := zw.Close(); err != nil {
			s.log.Debug("close response encoder", zap.Error(err))
		}
	})
}
