// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package layers maps layer metadata to content-addressed storage and
// answers existence queries against it.
package layers

import (
	"fmt"
	"strings"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// LayersDir is the directory, relative to the store root, that holds
// content-addressed layer blobs.
const LayersDir = "data/layers"

// Algorithm identifies the hash used to address a layer. The zero value is
// SHA256 so an unset algorithm on the wire means SHA256.
type Algorithm uint8

const (
	SHA256 Algorithm = iota
)

// ParseAlgorithm returns the Algorithm named by s, matching case-insensitively.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch strings.ToLower(s) {
	case "", "sha256":
		return SHA256, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, s)
}

// Prefix returns the filename prefix for a, or "" if a is unknown.
func (a Algorithm) Prefix() string {
	return a.digestAlgorithm().String()
}

func (a Algorithm) String() string {
	if p := a.Prefix(); p != "" {
		return p
	}
	return fmt.Sprintf("Algorithm(%d)", uint8(a))
}

// Valid reports whether a is a known algorithm.
func (a Algorithm) Valid() bool {
	return a.Prefix() != ""
}

func (a Algorithm) digestAlgorithm() digest.Algorithm {
	switch a {
	case SHA256:
		return digest.SHA256
	}
	return ""
}

// Digest returns the OCI digest for encoded under algorithm a.
func (a Algorithm) Digest(encoded string) digest.Digest {
	return digest.NewDigestFromEncoded(a.digestAlgorithm(), encoded)
}

// CanonicalPath returns the storage path of a layer. It depends only on the
// algorithm and the encoded digest; the repository and layer name never
// take part in addressing.
func CanonicalPath(a Algorithm, encoded string) string {
	return LayersDir + "/" + a.Digest(encoded).String()
}

// ValidateDigest checks that encoded can be used to build a storage path.
// It accepts any encoding the OCI digest grammar allows, which excludes
// path separators and dots.
func ValidateDigest(a Algorithm, encoded string) error {
	if !a.Valid() {
		return fmt.Errorf("%w: %v", ErrUnknownAlgorithm, a)
	}
	if encoded == "" {
		return ErrMissingDigest
	}
	if !digest.DigestRegexpAnchored.MatchString(a.Digest(encoded).String()) {
		return fmt.Errorf("%w: %q", ErrInvalidDigest, encoded)
	}
	return nil
}

// LayerRef identifies a layer in a request. Name and Repo are carried for
// logging and descriptors only.
type LayerRef struct {
	Algorithm Algorithm
	Digest    string
	Name      string
	Repo      string
}

// Path returns the canonical path of r.
func (r LayerRef) Path() string {
	return CanonicalPath(r.Algorithm, r.Digest)
}

// Descriptor returns an OCI descriptor for the layer.
func Descriptor(r LayerRef, size int64) ocispec.Descriptor {
	desc := ocispec.Descriptor{
		MediaType: ocispec.MediaTypeImageLayerGzip,
		Digest:    r.Algorithm.Digest(r.Digest),
		Size:      size,
	}
	if r.Name != "" {
		desc.Annotations = map[string]string{ocispec.AnnotationTitle: r.Name}
	}
	return desc
}
