// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package layers

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zaptest"
)

func writeLayer(t *testing.T, root, encoded string, data []byte) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(CanonicalPath(SHA256, encoded)))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestFilesystemStoreStat(t *testing.T) {
	root := t.TempDir()
	writeLayer(t, root, "deadbeef", []byte("layer bytes"))
	s := NewFilesystemStore(root, zaptest.NewLogger(t))
	ctx := context.Background()

	info, err := s.Stat(ctx, LayerRef{Algorithm: SHA256, Digest: "deadbeef"})
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if !info.Exists || info.Size != int64(len("layer bytes")) {
		t.Fatalf("Stat = %+v", info)
	}

	info, err = s.Stat(ctx, LayerRef{Algorithm: SHA256, Digest: "0000"})
	if err != nil {
		t.Fatalf("Stat missing: %v", err)
	}
	if info.Exists {
		t.Fatal("missing layer reported as existing")
	}
}

func TestFilesystemStoreDirectoryIsNotALayer(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, filepath.FromSlash(CanonicalPath(SHA256, "cafe")))
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	info, err := NewFilesystemStore(root, nil).Stat(context.Background(), LayerRef{Digest: "cafe"})
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Exists {
		t.Fatal("directory reported as layer")
	}
}

func TestFilesystemStoreResourceError(t *testing.T) {
	root := t.TempDir()
	// A regular file where the layers directory should be makes stat fail
	// with ENOTDIR rather than ENOENT.
	if err := os.MkdirAll(filepath.Join(root, "data"), 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "data", "layers"), nil, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	_, err := NewFilesystemStore(root, nil).Stat(context.Background(), LayerRef{Digest: "deadbeef"})
	var re *ResourceError
	if !errors.As(err, &re) {
		t.Fatalf("Stat err = %v, want *ResourceError", err)
	}
	if re.Path != "data/layers/sha256:deadbeef" {
		t.Errorf("ResourceError.Path = %q", re.Path)
	}
}

func TestFilesystemStoreCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewFilesystemStore(t.TempDir(), nil).Stat(ctx, LayerRef{Digest: "deadbeef"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("Stat err = %v, want context.Canceled", err)
	}
}
