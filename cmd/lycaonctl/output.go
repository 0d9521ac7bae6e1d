// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"encoding/json"
	"fmt"
	"io"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/yeetrun/lycaon/pkg/layers"
	"github.com/yeetrun/lycaon/pkg/lycaon"
	"github.com/yeetrun/lycaon/pkg/tui"
	"gopkg.in/yaml.v3"
)

// annotationSizeUnreported marks descriptors built from a placeholder length.
// Their Size is 0.
const annotationSizeUnreported = "io.lycaon.layer.size.unreported"

const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

func validFormat(f string) bool {
	switch f {
	case formatText, formatJSON, formatYAML:
		return true
	}
	return false
}

type printer struct {
	w      io.Writer
	format string
	c      tui.Colorizer
}

func newPrinter(w io.Writer, format string) *printer {
	return &printer{w: w, format: format, c: tui.NewColorizer(w)}
}

// layerOutput is the structured form of a layer-exists answer. Descriptor
// is set only for layers that exist.
type layerOutput struct {
	Layer      string              `json:"layer" yaml:"layer"`
	Path       string              `json:"path" yaml:"path"`
	Result     lycaon.LayerResult  `json:"result" yaml:"result"`
	Descriptor *ocispec.Descriptor `json:"descriptor,omitempty" yaml:"descriptor,omitempty"`
}

type versionOutput struct {
	Protocol string `json:"protocol" yaml:"protocol"`
}

func (p *printer) structured(v any) (bool, error) {
	switch p.format {
	case formatJSON:
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(p.w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return true, err
		}
		return true, enc.Close()
	}
	return false, nil
}

func (p *printer) message(m lycaon.Message) error {
	if ok, err := p.structured(m); ok {
		return err
	}
	_, err := fmt.Fprintf(p.w, "%s %s\n", p.c.Bold(m.Text), p.c.Dim(fmt.Sprintf("(%d)", m.Number)))
	return err
}

func (p *printer) layer(ref layers.LayerRef, res lycaon.LayerResult) error {
	out := layerOutput{
		Layer:  ref.Algorithm.Digest(ref.Digest).String(),
		Path:   ref.Path(),
		Result: res,
	}
	unreported := res.Length == layers.PlaceholderLength
	if res.Exists {
		size := int64(res.Length)
		if unreported {
			size = 0
		}
		desc := layers.Descriptor(ref, size)
		if unreported {
			if desc.Annotations == nil {
				desc.Annotations = map[string]string{}
			}
			desc.Annotations[annotationSizeUnreported] = "true"
		}
		out.Descriptor = &desc
	}
	if ok, err := p.structured(out); ok {
		return err
	}
	if !res.Exists {
		_, err := fmt.Fprintf(p.w, "%s %s\n", p.c.Bad("missing"), out.Layer)
		return err
	}
	length := fmt.Sprintf("length=%d", res.Length)
	if unreported {
		length = "length=unreported"
	}
	_, err := fmt.Fprintf(p.w, "%s %s %s\n  media type: %s\n",
		p.c.Good("exists"), out.Layer, p.c.Dim(length),
		out.Descriptor.MediaType)
	return err
}

func (p *printer) version(protocol string) error {
	if ok, err := p.structured(versionOutput{Protocol: protocol}); ok {
		return err
	}
	_, err := fmt.Fprintf(p.w, "protocol %s\n", protocol)
	return err
}
