// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package layers

import (
	"context"
	"errors"
	"testing"

	"github.com/containerd/containerd/content"
	"github.com/containerd/errdefs"
	"github.com/opencontainers/go-digest"
	"go.uber.org/zap"
)

type fakeContentStore struct {
	infos map[digest.Digest]content.Info
	errs  map[digest.Digest]error
}

func (f *fakeContentStore) Info(_ context.Context, dg digest.Digest) (content.Info, error) {
	if err, ok := f.errs[dg]; ok {
		return content.Info{}, err
	}
	if info, ok := f.infos[dg]; ok {
		return info, nil
	}
	return content.Info{}, errdefs.ErrNotFound
}

func TestContainerdStoreStat(t *testing.T) {
	present := SHA256.Digest("deadbeef")
	broken := SHA256.Digest("baadf00d")
	s := &ContainerdStore{
		contentStore: &fakeContentStore{
			infos: map[digest.Digest]content.Info{
				present: {Digest: present, Size: 99},
			},
			errs: map[digest.Digest]error{
				broken: errors.New("connection refused"),
			},
		},
		log: zap.NewNop(),
	}
	ctx := context.Background()

	info, err := s.Stat(ctx, LayerRef{Digest: "deadbeef"})
	if err != nil {
		t.Fatalf("Stat present: %v", err)
	}
	if !info.Exists || info.Size != 99 {
		t.Fatalf("Stat present = %+v", info)
	}

	info, err = s.Stat(ctx, LayerRef{Digest: "0000"})
	if err != nil {
		t.Fatalf("Stat missing: %v", err)
	}
	if info.Exists {
		t.Fatal("missing content reported as existing")
	}

	_, err = s.Stat(ctx, LayerRef{Digest: "baadf00d"})
	var re *ResourceError
	if !errors.As(err, &re) {
		t.Fatalf("Stat broken err = %v, want *ResourceError", err)
	}
}

func TestContainerdStoreUnavailable(t *testing.T) {
	s := &ContainerdStore{log: zap.NewNop()}
	_, err := s.Stat(context.Background(), LayerRef{Digest: "deadbeef"})
	var re *ResourceError
	if !errors.As(err, &re) {
		t.Fatalf("Stat err = %v, want *ResourceError", err)
	}
}
