// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package codecutil

import (
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// encMode uses Core Deterministic Encoding so identical values always
// produce identical frames.
var encMode cbor.EncMode

// decMode is used for protocol frames. Unknown fields are ignored so newer
// peers can add fields.
var decMode cbor.DecMode

// strictMode is used for call parameters. Unknown fields are rejected.
var strictMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codecutil: CBOR encoder initialization failed: " + err.Error())
	}

	opts := cbor.DecOptions{
		DefaultMapType:   reflect.TypeOf(map[string]any(nil)),
		MaxNestedLevels:  32,
		MaxArrayElements: 1 << 16,
		MaxMapPairs:      1 << 16,
	}
	decMode, err = opts.DecMode()
	if err != nil {
		panic("codecutil: CBOR decoder initialization failed: " + err.Error())
	}

	opts.ExtraReturnErrors = cbor.ExtraDecErrorUnknownField
	strictMode, err = opts.DecMode()
	if err != nil {
		panic("codecutil: CBOR strict decoder initialization failed: " + err.Error())
	}
}

// Encoder writes a stream of CBOR values.
type Encoder = cbor.Encoder

// Decoder reads a stream of CBOR values. Each value is self-delimiting, so
// no additional framing is needed on a byte stream.
type Decoder = cbor.Decoder

// Marshal encodes v to CBOR.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes data into v, ignoring unknown fields.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// UnmarshalStrict decodes data into v and fails on fields v does not have.
func UnmarshalStrict(data []byte, v any) error {
	return strictMode.Unmarshal(data, v)
}

func NewEncoder(w io.Writer) *Encoder {
	return encMode.NewEncoder(w)
}

func NewDecoder(r io.Reader) *Decoder {
	return decMode.NewDecoder(r)
}
