// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package console

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap/zaptest"
)

func TestSelectEncoding(t *testing.T) {
	tests := []struct {
		accept string
		want   string
	}{
		{"", ""},
		{"identity", ""},
		{"gzip", "gzip"},
		{"gzip, zstd", "zstd"},
		{"zstd;q=0.5, gzip", "gzip"},
		{"zstd;q=0, gzip;q=0", ""},
		{"*", "zstd"},
		{"gzip;q=1, *;q=0.1", "gzip"},
		{"br, deflate", ""},
	}
	for _, tt := range tests {
		if got := selectEncoding(tt.accept); got != tt.want {
			t.Errorf("selectEncoding(%q) = %q, want %q", tt.accept, got, tt.want)
		}
	}
}

func TestCompressResponses(t *testing.T) {
	s := &Server{log: zaptest.NewLogger(t)}
	body := strings.Repeat("lycaon_sessions_active 1\n", 100)
	var innerAccept string
	h := s.compressResponses(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		innerAccept = r.Header.Get("Accept-Encoding")
		w.Header().Set("Content-Length", "2500")
		io.WriteString(w, body)
	}))

	for _, enc := range []string{"gzip", "zstd"} {
		t.Run(enc, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
			req.Header.Set("Accept-Encoding", enc)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if innerAccept != "" {
				t.Fatalf("inner handler saw Accept-Encoding %q", innerAccept)
			}
			if got := rec.Header().Get("Content-Encoding"); got != enc {
				t.Fatalf("Content-Encoding = %q, want %q", got, enc)
			}
			if rec.Header().Get("Content-Length") != "" {
				t.Fatal("Content-Length kept on a compressed response")
			}
			var r io.Reader
			switch enc {
			case "gzip":
				gr, err := gzip.NewReader(rec.Body)
				if err != nil {
					t.Fatalf("gzip.NewReader: %v", err)
				}
				r = gr
			case "zstd":
				zr, err := zstd.NewReader(rec.Body)
				if err != nil {
					t.Fatalf("zstd.NewReader: %v", err)
				}
				defer zr.Close()
				r = zr
			}
			got, err := io.ReadAll(r)
			if err != nil {
				t.Fatalf("ReadAll: %v", err)
			}
			if string(got) != body {
				t.Fatalf("decoded body mismatch: got %d bytes, want %d", len(got), len(body))
			}
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get("Content-Encoding") != "" || rec.Body.String() != body {
		t.Fatal("response without Accept-Encoding was altered")
	}
}
