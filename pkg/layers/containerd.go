// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package layers

import (
	"context"
	"errors"
	"fmt"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/content"
	"github.com/containerd/errdefs"
	"github.com/opencontainers/go-digest"
	"go.uber.org/zap"
)

// DefaultContainerdNamespace is the namespace Docker registers content in.
const DefaultContainerdNamespace = "moby"

// ContainerdStore implements Store using containerd's content store. The
// daemon must use the containerd image store for layers to be visible.
type ContainerdStore struct {
	client       *containerd.Client
	contentStore contentInfoStore
	log          *zap.Logger
}

type contentInfoStore interface {
	Info(ctx context.Context, dg digest.Digest) (content.Info, error)
}

var _ Store = (*ContainerdStore)(nil)

// NewContainerdStore connects to the containerd socket at sock.
func NewContainerdStore(sock, namespace string, log *zap.Logger) (*ContainerdStore, error) {
	if namespace == "" {
		namespace = DefaultContainerdNamespace
	}
	client, err := containerd.New(sock, containerd.WithDefaultNamespace(namespace))
	if err != nil {
		return nil, fmt.Errorf("create containerd client: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ContainerdStore{
		client:       client,
		contentStore: client.ContentStore(),
		log:          log,
	}, nil
}

// Close closes the containerd client connection.
func (s *ContainerdStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// Stat looks the layer up by digest in the content store.
func (s *ContainerdStore) Stat(ctx context.Context, ref LayerRef) (Info, error) {
	if s.contentStore == nil {
		return Info{}, &ResourceError{Path: ref.Path(), Err: errors.New("content store unavailable")}
	}
	dg := ref.Algorithm.Digest(ref.Digest)
	s.log.Debug("path constructed", zap.String("path", ref.Path()), zap.Stringer("digest", dg))
	info, err := s.contentStore.Info(ctx, dg)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return Info{}, nil
		}
		return Info{}, &ResourceError{Path: ref.Path(), Err: fmt.Errorf("get content info from containerd: %w", err)}
	}
	return Info{Exists: true, Size: info.Size}, nil
}
