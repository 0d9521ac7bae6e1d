// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package layers

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingDigest indicates a request without a digest.
	ErrMissingDigest = errors.New("missing digest")
	// ErrInvalidDigest indicates a digest with characters outside the OCI grammar.
	ErrInvalidDigest = errors.New("invalid digest")
	// ErrUnknownAlgorithm indicates an algorithm this store cannot address.
	ErrUnknownAlgorithm = errors.New("unknown digest algorithm")
)

// ResourceError reports a storage failure other than the layer being
// absent, such as a permission error.
type ResourceError struct {
	Path string
	Err  error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("check layer %s: %v", e.Path, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }
