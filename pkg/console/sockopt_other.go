// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !unix

package console

import "syscall"

func listenControl(network, address string, c syscall.RawConn) error {
	return nil
}
