// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package codecutil

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// MaxUnpackedSize bounds the memory a single Unpack may allocate.
const MaxUnpackedSize = 64 << 20

var (
	zstdOnce sync.Once
	zstdEnc  *zstd.Encoder
	zstdDec  *zstd.Decoder
	zstdErr  error
)

func initZstd() {
	zstdEnc, zstdErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if zstdErr != nil {
		zstdErr = fmt.Errorf("failed to create zstd encoder: %w", zstdErr)
		return
	}
	zstdDec, zstdErr = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxUnpackedSize))
	if zstdErr != nil {
		zstdErr = fmt.Errorf("failed to create zstd decoder: %w", zstdErr)
	}
}

// Pack compresses src with zstd. The encoder and decoder are shared and
// safe for concurrent use through EncodeAll and DecodeAll.
func Pack(src []byte) ([]byte, error) {
	zstdOnce.Do(initZstd)
	if zstdErr != nil {
		return nil, zstdErr
	}
	return zstdEnc.EncodeAll(src, make([]byte, 0, len(src)/2)), nil
}

// Unpack reverses Pack.
func Unpack(src []byte) ([]byte, error) {
	zstdOnce.Do(initZstd)
	if zstdErr != nil {
		return nil, zstdErr
	}
	out, err := zstdDec.DecodeAll(src, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress payload: %w", err)
	}
	return out, nil
}
