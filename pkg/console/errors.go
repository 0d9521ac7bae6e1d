// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package console

import "fmt"

// StartupError reports a failure to resolve or bind a listen address. It
// is fatal: the console never accepts connections.
type StartupError struct {
	Addr string
	Err  error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("listen on %s: %v", e.Addr, e.Err)
}

func (e *StartupError) Unwrap() error { return e.Err }
