// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package layers

import (
	"context"

	"go.uber.org/zap"
)

// PlaceholderLength is reported as the layer length unless the service is
// configured to report real sizes. Clients must not rely on it.
const PlaceholderLength uint64 = 1337

// Result is the answer to an existence query.
type Result struct {
	Exists bool
	Length uint64
}

// ServiceOptions configures a Service.
type ServiceOptions struct {
	// ReportSize makes LayerExists return the stored size instead of
	// PlaceholderLength.
	ReportSize bool
	Logger     *zap.Logger
}

// Service answers layer existence queries. It holds no per-request state
// and is safe for concurrent use.
type Service struct {
	store      Store
	reportSize bool
	log        *zap.Logger
}

func NewService(store Store, opts ServiceOptions) *Service {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:      store,
		reportSize: opts.ReportSize,
		log:        log,
	}
}

// LayerExists reports whether the layer addressed by ref is stored. The
// address is derived from the algorithm and digest alone.
func (s *Service) LayerExists(ctx context.Context, ref LayerRef) (Result, error) {
	if err := ValidateDigest(ref.Algorithm, ref.Digest); err != nil {
		return Result{}, err
	}
	info, err := s.store.Stat(ctx, ref)
	if err != nil {
		return Result{}, err
	}
	res := Result{Exists: info.Exists, Length: PlaceholderLength}
	if s.reportSize {
		res.Length = 0
		if info.Exists && info.Size > 0 {
			res.Length = uint64(info.Size)
		}
	}
	s.log.Debug("layer checked",
		zap.String("repo", ref.Repo),
		zap.String("name", ref.Name),
		zap.String("path", ref.Path()),
		zap.Bool("exists", res.Exists))
	return res, nil
}
