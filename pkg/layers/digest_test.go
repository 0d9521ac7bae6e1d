// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package layers

import (
	"errors"
	"testing"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

func TestCanonicalPath(t *testing.T) {
	tests := []struct {
		digest string
		want   string
	}{
		{"deadbeef", "data/layers/sha256:deadbeef"},
		{"0000", "data/layers/sha256:0000"},
		{"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", "data/layers/sha256:e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"},
		{"", "data/layers/sha256:"},
	}
	for _, tt := range tests {
		if got := CanonicalPath(SHA256, tt.digest); got != tt.want {
			t.Errorf("CanonicalPath(SHA256, %q) = %q, want %q", tt.digest, got, tt.want)
		}
		if got := "data/layers/" + SHA256.Prefix() + ":" + tt.digest; got != tt.want {
			t.Errorf("prefix concatenation for %q = %q, want %q", tt.digest, got, tt.want)
		}
	}
}

func TestPathIgnoresRepoAndName(t *testing.T) {
	a := LayerRef{Algorithm: SHA256, Digest: "deadbeef", Name: "x", Repo: "y"}
	b := LayerRef{Algorithm: SHA256, Digest: "deadbeef", Name: "other", Repo: "library/nginx"}
	if a.Path() != b.Path() {
		t.Fatalf("paths differ: %q vs %q", a.Path(), b.Path())
	}
}

func TestParseAlgorithm(t *testing.T) {
	for _, s := range []string{"sha256", "SHA256", ""} {
		a, err := ParseAlgorithm(s)
		if err != nil || a != SHA256 {
			t.Errorf("ParseAlgorithm(%q) = %v, %v", s, a, err)
		}
	}
	if _, err := ParseAlgorithm("md5"); !errors.Is(err, ErrUnknownAlgorithm) {
		t.Errorf("ParseAlgorithm(md5) err = %v, want ErrUnknownAlgorithm", err)
	}
}

func TestValidateDigest(t *testing.T) {
	tests := []struct {
		alg     Algorithm
		digest  string
		wantErr error
	}{
		{SHA256, "deadbeef", nil},
		{SHA256, "0000", nil},
		{SHA256, "", ErrMissingDigest},
		{SHA256, "../../etc/passwd", ErrInvalidDigest},
		{SHA256, "abc/def", ErrInvalidDigest},
		{SHA256, "abc:def", ErrInvalidDigest},
		{Algorithm(7), "deadbeef", ErrUnknownAlgorithm},
	}
	for _, tt := range tests {
		err := ValidateDigest(tt.alg, tt.digest)
		if tt.wantErr == nil {
			if err != nil {
				t.Errorf("ValidateDigest(%v, %q) = %v", tt.alg, tt.digest, err)
			}
			continue
		}
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("ValidateDigest(%v, %q) = %v, want %v", tt.alg, tt.digest, err, tt.wantErr)
		}
	}
}

func TestDescriptor(t *testing.T) {
	desc := Descriptor(LayerRef{Algorithm: SHA256, Digest: "deadbeef", Name: "x"}, 42)
	if desc.MediaType != ocispec.MediaTypeImageLayerGzip {
		t.Errorf("MediaType = %q", desc.MediaType)
	}
	if desc.Digest.String() != "sha256:deadbeef" {
		t.Errorf("Digest = %q", desc.Digest)
	}
	if desc.Size != 42 {
		t.Errorf("Size = %d", desc.Size)
	}
	if desc.Annotations[ocispec.AnnotationTitle] != "x" {
		t.Errorf("Annotations = %v", desc.Annotations)
	}
}
