// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package caprpc

import (
	"context"
	"errors"
	"fmt"
)

// ErrClosed is returned by calls on a connection that has shut down.
var ErrClosed = errors.New("connection closed")

// ExceptionType classifies a failed call.
type ExceptionType string

const (
	// Failed is a request-level failure. Retrying the same call will fail
	// the same way.
	Failed ExceptionType = "failed"
	// Overloaded means the call did not complete in time.
	Overloaded ExceptionType = "overloaded"
	// Disconnected means the connection broke before the call returned.
	Disconnected ExceptionType = "disconnected"
	// Unimplemented means the target does not have the method or interface.
	Unimplemented ExceptionType = "unimplemented"
)

// Exception is a failure carried on the wire, either in a Return or an
// Abort. On the calling side it is the error returned from the call.
type Exception struct {
	Type   ExceptionType `cbor:"1,keyasint"`
	Reason string        `cbor:"2,keyasint"`
}

func (e *Exception) Error() string {
	return fmt.Sprintf("remote exception (%s): %s", e.Type, e.Reason)
}

// RequestError is a failure caused by the request itself, such as
// malformed parameters. Servers return it from Dispatch; the peer receives
// a Failed exception and the connection stays usable.
type RequestError struct {
	Method string
	Err    error
}

func (e *RequestError) Error() string {
	if e.Method == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Method, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// ConnectionError is a transport or protocol failure. It ends the
// connection it occurred on and nothing else.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

var errUnimplemented = errors.New("unimplemented")

// Unimplementedf returns an error that is sent to the caller as an
// Unimplemented exception.
func Unimplementedf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errUnimplemented, fmt.Sprintf(format, args...))
}

// toException converts a Dispatch error into the exception sent on the
// wire.
func toException(err error) *Exception {
	var exc *Exception
	switch {
	case errors.As(err, &exc):
		return exc
	case errors.Is(err, errUnimplemented):
		return &Exception{Type: Unimplemented, Reason: err.Error()}
	case errors.Is(err, context.DeadlineExceeded):
		return &Exception{Type: Overloaded, Reason: err.Error()}
	case errors.Is(err, context.Canceled), errors.Is(err, ErrClosed):
		return &Exception{Type: Disconnected, Reason: err.Error()}
	}
	return &Exception{Type: Failed, Reason: err.Error()}
}

// ExceptionTypeOf returns the exception type err would be reported as.
func ExceptionTypeOf(err error) ExceptionType {
	return toException(err).Type
}
