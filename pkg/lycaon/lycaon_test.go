// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lycaon

import (
	"context"
	"errors"
	"math"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/yeetrun/lycaon/pkg/caprpc"
	"github.com/yeetrun/lycaon/pkg/layers"
	"go.uber.org/zap/zaptest"
)

func newTestClient(t *testing.T, root string) *Client {
	t.Helper()
	log := zaptest.NewLogger(t)
	svc := layers.NewService(layers.NewFilesystemStore(root, log), layers.ServiceOptions{Logger: log})
	boot := NewBootstrap(svc, log)

	cc, sc := net.Pipe()
	srvErr := make(chan error, 1)
	go func() {
		c, err := caprpc.NewConn(context.Background(), sc, caprpc.Options{Side: caprpc.SideServer, Bootstrap: boot, Logger: log.Named("server")})
		if err == nil {
			t.Cleanup(func() { c.Close() })
		}
		srvErr <- err
	}()
	conn, err := caprpc.NewConn(context.Background(), cc, caprpc.Options{Side: caprpc.SideClient})
	if err != nil {
		t.Fatalf("client NewConn: %v", err)
	}
	if err := <-srvErr; err != nil {
		t.Fatalf("server NewConn: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return NewClient(conn)
}

func putLayer(t *testing.T, root, digest string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(layers.CanonicalPath(layers.SHA256, digest)))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte("blob"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestMessageInterfaceGet(t *testing.T) {
	c := newTestClient(t, t.TempDir())
	ctx := context.Background()
	m, err := c.MessageInterface(ctx)
	if err != nil {
		t.Fatalf("MessageInterface: %v", err)
	}
	for _, n := range []int64{0, -1, 42, math.MinInt64, math.MaxInt64} {
		got, err := m.Get(ctx, n)
		if err != nil {
			t.Fatalf("Get(%d): %v", n, err)
		}
		if diff := cmp.Diff(Message{Text: "Hello There", Number: n}, got); diff != "" {
			t.Errorf("Get(%d) mismatch (-want +got):\n%s", n, diff)
		}
	}
}

func TestMessageInterfacesAreIndependent(t *testing.T) {
	c := newTestClient(t, t.TempDir())
	ctx := context.Background()
	a, err := c.MessageInterface(ctx)
	if err != nil {
		t.Fatalf("MessageInterface: %v", err)
	}
	b, err := c.MessageInterface(ctx)
	if err != nil {
		t.Fatalf("MessageInterface: %v", err)
	}
	if a.cap.ID() == b.cap.ID() {
		t.Fatalf("both message interfaces share capability %d", a.cap.ID())
	}
	a.Release()
	got, err := b.Get(ctx, 7)
	if err != nil {
		t.Fatalf("Get after releasing sibling: %v", err)
	}
	if got.Number != 7 || got.Text != Greeting {
		t.Fatalf("Get = %+v", got)
	}
}

func TestLayerInterface(t *testing.T) {
	root := t.TempDir()
	putLayer(t, root, "deadbeef")
	c := newTestClient(t, root)
	ctx := context.Background()
	l, err := c.LayerInterface(ctx)
	if err != nil {
		t.Fatalf("LayerInterface: %v", err)
	}

	tests := []struct {
		name  string
		layer Layer
		want  LayerResult
	}{
		{"present", Layer{Algorithm: layers.SHA256, Digest: DigestPtr("deadbeef"), Name: "x", Repo: "y"}, LayerResult{Exists: true, Length: layers.PlaceholderLength}},
		{"absent", Layer{Algorithm: layers.SHA256, Digest: DigestPtr("0000"), Name: "x", Repo: "y"}, LayerResult{Exists: false, Length: layers.PlaceholderLength}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := l.LayerExists(ctx, tt.layer)
			if err != nil {
				t.Fatalf("LayerExists: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("LayerExists mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLayerExistsLargeRequest(t *testing.T) {
	root := t.TempDir()
	putLayer(t, root, "deadbeef")
	c := newTestClient(t, root)
	ctx := context.Background()
	l, err := c.LayerInterface(ctx)
	if err != nil {
		t.Fatalf("LayerInterface: %v", err)
	}
	// Well above the default pack threshold, so the params travel packed.
	layer := Layer{Digest: DigestPtr("deadbeef"), Name: "layer.tar.gz", Repo: strings.Repeat("library/alpine/", 400)}
	got, err := l.LayerExists(ctx, layer)
	if err != nil {
		t.Fatalf("LayerExists: %v", err)
	}
	if diff := cmp.Diff(LayerResult{Exists: true, Length: layers.PlaceholderLength}, got); diff != "" {
		t.Fatalf("LayerExists mismatch (-want +got):\n%s", diff)
	}
	m, err := c.MessageInterface(ctx)
	if err != nil {
		t.Fatalf("MessageInterface after large request: %v", err)
	}
	if msg, err := m.Get(ctx, 3); err != nil || msg.Number != 3 {
		t.Fatalf("Get after large request = %+v, %v", msg, err)
	}
}

func TestLayerExistsRejectsNonOCIDigest(t *testing.T) {
	root := t.TempDir()
	for _, d := range []string{"dead.beef", "dead+beef"} {
		putLayer(t, root, d)
	}
	c := newTestClient(t, root)
	ctx := context.Background()
	l, err := c.LayerInterface(ctx)
	if err != nil {
		t.Fatalf("LayerInterface: %v", err)
	}
	for _, d := range []string{"dead.beef", "dead+beef"} {
		_, err := l.LayerExists(ctx, Layer{Digest: DigestPtr(d)})
		var exc *caprpc.Exception
		if !errors.As(err, &exc) || exc.Type != caprpc.Failed {
			t.Fatalf("LayerExists(%q) err = %v, want failed exception", d, err)
		}
	}
}

func TestLayerInterfaceRequestErrors(t *testing.T) {
	root := t.TempDir()
	// data/layers as a regular file turns every stat into ENOTDIR.
	if err := os.MkdirAll(filepath.Join(root, "data"), 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "data", "layers"), nil, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	c := newTestClient(t, root)
	ctx := context.Background()
	l, err := c.LayerInterface(ctx)
	if err != nil {
		t.Fatalf("LayerInterface: %v", err)
	}

	tests := []struct {
		name  string
		layer Layer
	}{
		{"missing digest", Layer{Name: "x", Repo: "y"}},
		{"empty digest", Layer{Digest: DigestPtr("")}},
		{"traversal", Layer{Digest: DigestPtr("../../secret")}},
		{"unknown algorithm", Layer{Algorithm: 9, Digest: DigestPtr("deadbeef")}},
		{"filesystem failure", Layer{Digest: DigestPtr("deadbeef")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.LayerExists(ctx, tt.layer)
			var exc *caprpc.Exception
			if !errors.As(err, &exc) || exc.Type != caprpc.Failed {
				t.Fatalf("LayerExists err = %v, want failed exception", err)
			}
		})
	}
	// The connection survives request errors.
	m, err := c.MessageInterface(ctx)
	if err != nil {
		t.Fatalf("MessageInterface after errors: %v", err)
	}
	if _, err := m.Get(ctx, 1); err != nil {
		t.Fatalf("Get after errors: %v", err)
	}
}

func TestLayerExistsWithoutLayer(t *testing.T) {
	svc := NewLayerService(layers.NewService(layers.NewFilesystemStore(t.TempDir(), nil), layers.ServiceOptions{}), nil)
	call, err := caprpc.NewCall(InterfaceLayer, MethodLayerExists, LayerExistsParams{})
	if err != nil {
		t.Fatalf("NewCall: %v", err)
	}
	_, err = svc.Dispatch(context.Background(), call)
	var re *caprpc.RequestError
	if !errors.As(err, &re) || !errors.Is(err, layers.ErrMissingDigest) {
		t.Fatalf("Dispatch err = %v, want RequestError wrapping ErrMissingDigest", err)
	}
}

func TestBootstrapDispatch(t *testing.T) {
	boot := NewBootstrap(layers.NewService(layers.NewFilesystemStore(t.TempDir(), nil), layers.ServiceOptions{}), nil)
	ctx := context.Background()

	call, _ := caprpc.NewCall(InterfaceRoot, MethodGetMessageInterface, nil)
	m1, err := boot.Dispatch(ctx, call)
	if err != nil {
		t.Fatalf("getMessageInterface: %v", err)
	}
	m2, _ := boot.Dispatch(ctx, call)
	if m1.(*MessageService) == m2.(*MessageService) {
		t.Fatal("getMessageInterface returned the same instance twice")
	}

	call, _ = caprpc.NewCall(InterfaceRoot, MethodGetLayerInterface, nil)
	l1, err := boot.Dispatch(ctx, call)
	if err != nil {
		t.Fatalf("getLayerInterface: %v", err)
	}
	l2, _ := boot.Dispatch(ctx, call)
	if l1.(*LayerService) != l2.(*LayerService) {
		t.Fatal("getLayerInterface did not return the shared instance")
	}

	call, _ = caprpc.NewCall(InterfaceRoot, "getSomethingElse", nil)
	if _, err := boot.Dispatch(ctx, call); err == nil {
		t.Fatal("unknown method succeeded")
	}
}
