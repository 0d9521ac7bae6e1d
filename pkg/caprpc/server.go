// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package caprpc

import (
	"context"
	"fmt"

	"github.com/yeetrun/lycaon/pkg/codecutil"
)

// Server is a capability implementation. A Server returned as the result
// of Dispatch is exported to the caller as a new capability.
type Server interface {
	// InterfaceName is the interface the capability implements. Calls
	// naming a different interface fail with Unimplemented.
	InterfaceName() string
	// Dispatch runs a method. Calls on one connection are dispatched one
	// at a time, in arrival order.
	Dispatch(ctx context.Context, call *Call) (any, error)
}

// Call is an inbound method invocation.
type Call struct {
	Interface string
	Method    string

	params []byte
}

// NewCall builds a Call with pre-encoded params. It is mostly useful for
// exercising a Server without a connection.
func NewCall(iface, method string, params any) (*Call, error) {
	c := &Call{Interface: iface, Method: method}
	if params != nil {
		b, err := codecutil.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("encode params: %w", err)
		}
		c.params = b
	}
	return c, nil
}

// Params decodes the call parameters into v. Unknown fields are rejected.
// A decode failure is a *RequestError.
func (c *Call) Params(v any) error {
	if len(c.params) == 0 {
		return nil
	}
	if err := codecutil.UnmarshalStrict(c.params, v); err != nil {
		return &RequestError{Method: c.Method, Err: fmt.Errorf("decode params: %w", err)}
	}
	return nil
}
