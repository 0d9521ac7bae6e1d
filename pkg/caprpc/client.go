// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package caprpc

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/yeetrun/lycaon/pkg/codecutil"
)

// Client is a reference to a capability exported by the peer.
type Client struct {
	conn     *Conn
	id       CapID
	released atomic.Bool
}

// Bootstrap returns the peer's bootstrap capability.
func (c *Conn) Bootstrap() *Client {
	return &Client{conn: c, id: BootstrapID}
}

// ID returns the capability id on the peer.
func (cl *Client) ID() CapID { return cl.id }

// Call invokes method and decodes its results into results, which may be
// nil. Failures reported by the peer are returned as *Exception.
func (cl *Client) Call(ctx context.Context, iface, method string, params, results any) error {
	ret, err := cl.call(ctx, iface, method, params)
	if err != nil {
		return err
	}
	if ret.Cap != nil {
		cl.conn.releaseRemote(*ret.Cap)
		return fmt.Errorf("%s.%s returned a capability, not results", iface, method)
	}
	if results == nil || len(ret.Results) == 0 {
		return nil
	}
	data := ret.Results
	if ret.Packed {
		if data, err = codecutil.Unpack(data); err != nil {
			return fmt.Errorf("%s.%s: %w", iface, method, err)
		}
	}
	if err := codecutil.Unmarshal(data, results); err != nil {
		return fmt.Errorf("%s.%s: decode results: %w", iface, method, err)
	}
	return nil
}

// CallCapability invokes a method that returns a capability.
func (cl *Client) CallCapability(ctx context.Context, iface, method string, params any) (*Client, error) {
	ret, err := cl.call(ctx, iface, method, params)
	if err != nil {
		return nil, err
	}
	if ret.Cap == nil {
		return nil, fmt.Errorf("%s.%s returned no capability", iface, method)
	}
	return &Client{conn: cl.conn, id: *ret.Cap}, nil
}

// Release tells the peer this reference is no longer used. Calls on a
// released Client fail. Releasing the bootstrap capability is a no-op.
func (cl *Client) Release() {
	if cl.id == BootstrapID || cl.released.Swap(true) {
		return
	}
	cl.conn.releaseRemote(cl.id)
}

var errReleased = errors.New("capability released")

func (cl *Client) call(ctx context.Context, iface, method string, params any) (*Return, error) {
	if cl.released.Load() {
		return nil, errReleased
	}
	c := cl.conn
	cf := &CallFrame{
		Question:  QuestionID(c.nextQuestion.Add(1)),
		Target:    cl.id,
		Interface: iface,
		Method:    method,
	}
	if params != nil {
		b, err := codecutil.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: encode params: %w", iface, method, err)
		}
		cf.Params, cf.Packed = c.maybePack(b)
	}

	ch := make(chan *Return, 1)
	c.questions.Store(cf.Question, ch)
	if err := c.send(ctx, &Message{Type: MsgCall, Call: cf}); err != nil {
		c.questions.Delete(cf.Question)
		return nil, err
	}

	select {
	case ret := <-ch:
		if ret.Exception != nil {
			return nil, ret.Exception
		}
		return ret, nil
	case <-ctx.Done():
		c.questions.Delete(cf.Question)
		// The return may have raced with cancellation.
		select {
		case ret := <-ch:
			if ret.Cap != nil {
				c.releaseRemote(*ret.Cap)
			}
		default:
		}
		return nil, ctx.Err()
	case <-c.done:
		c.questions.Delete(cf.Question)
		return nil, c.closedErr()
	}
}

// releaseRemote queues a Release without blocking on a dead connection.
func (c *Conn) releaseRemote(id CapID) {
	select {
	case c.out <- releaseMessage(id):
	case <-c.done:
	}
}

func releaseMessage(id CapID) *Message {
	return &Message{Type: MsgRelease, Release: &Release{Cap: id}}
}
