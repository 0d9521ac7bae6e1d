// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package lycaon defines the console's capability interfaces: the root
// interface handed to every connection, the message interface and the
// layer interface.
package lycaon

import "github.com/yeetrun/lycaon/pkg/layers"

const (
	// InterfaceRoot is the bootstrap interface.
	InterfaceRoot    = "lycaon.Lycaon"
	InterfaceMessage = "lycaon.MessageInterface"
	InterfaceLayer   = "lycaon.LayerInterface"

	MethodGetMessageInterface = "getMessageInterface"
	MethodGetLayerInterface   = "getLayerInterface"
	MethodGet                 = "get"
	MethodLayerExists         = "layerExists"
)

// Greeting is the text of every Message.
const Greeting = "Hello There"

type GetParams struct {
	Num int64 `cbor:"num"`
}

type Message struct {
	Text   string `cbor:"text" json:"text" yaml:"text"`
	Number int64  `cbor:"number" json:"number" yaml:"number"`
}

type GetResults struct {
	Msg Message `cbor:"msg"`
}

// Layer is the wire form of a layer reference. Digest is a pointer so an
// absent digest can be told apart from an empty one.
type Layer struct {
	Algorithm layers.Algorithm `cbor:"algorithm"`
	Digest    *string          `cbor:"digest,omitempty"`
	Name      string           `cbor:"name"`
	Repo      string           `cbor:"repo"`
}

type LayerExistsParams struct {
	Layer *Layer `cbor:"layer,omitempty"`
}

type LayerResult struct {
	Exists bool   `cbor:"exists" json:"exists" yaml:"exists"`
	Length uint64 `cbor:"length" json:"length" yaml:"length"`
}

type LayerExistsResults struct {
	Result LayerResult `cbor:"result"`
}
