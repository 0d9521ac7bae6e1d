// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package layers

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// Info describes what a store knows about a layer.
type Info struct {
	Exists bool
	Size   int64
}

// Store answers existence queries for content-addressed layers.
type Store interface {
	// Stat reports whether the layer addressed by ref is present. A layer
	// that is absent is not an error. Any other failure is returned as a
	// *ResourceError.
	Stat(ctx context.Context, ref LayerRef) (Info, error)
}

// FilesystemStore implements Store using files under a root directory laid
// out as <root>/data/layers/<algorithm>:<digest>.
type FilesystemStore struct {
	rootDir string
	log     *zap.Logger
}

var _ Store = (*FilesystemStore)(nil)

// NewFilesystemStore returns a store rooted at rootDir. An empty rootDir
// means the working directory.
func NewFilesystemStore(rootDir string, log *zap.Logger) *FilesystemStore {
	if rootDir == "" {
		rootDir = "."
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &FilesystemStore{rootDir: rootDir, log: log}
}

// Root returns the directory the store resolves canonical paths against.
func (s *FilesystemStore) Root() string { return s.rootDir }

func (s *FilesystemStore) layerPath(ref LayerRef) string {
	return filepath.Join(s.rootDir, filepath.FromSlash(ref.Path()))
}

// Stat checks for a regular file at the layer's canonical path.
func (s *FilesystemStore) Stat(ctx context.Context, ref LayerRef) (Info, error) {
	if err := ctx.Err(); err != nil {
		return Info{}, err
	}
	path := s.layerPath(ref)
	s.log.Debug("path constructed", zap.String("path", path))
	st, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Info{}, nil
		}
		return Info{}, &ResourceError{Path: ref.Path(), Err: err}
	}
	if !st.Mode().IsRegular() {
		return Info{}, nil
	}
	return Info{Exists: true, Size: st.Size()}, nil
}
