// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lycaon

import (
	"context"

	"github.com/yeetrun/lycaon/pkg/caprpc"
)

// Client is a typed reference to a remote root capability.
type Client struct {
	cap *caprpc.Client
}

// NewClient wraps the bootstrap capability of conn.
func NewClient(conn *caprpc.Conn) *Client {
	return &Client{cap: conn.Bootstrap()}
}

func (c *Client) MessageInterface(ctx context.Context) (*MessageClient, error) {
	cl, err := c.cap.CallCapability(ctx, InterfaceRoot, MethodGetMessageInterface, nil)
	if err != nil {
		return nil, err
	}
	return &MessageClient{cap: cl}, nil
}

func (c *Client) LayerInterface(ctx context.Context) (*LayerClient, error) {
	cl, err := c.cap.CallCapability(ctx, InterfaceRoot, MethodGetLayerInterface, nil)
	if err != nil {
		return nil, err
	}
	return &LayerClient{cap: cl}, nil
}

type MessageClient struct {
	cap *caprpc.Client
}

func (m *MessageClient) Get(ctx context.Context, num int64) (Message, error) {
	var res GetResults
	if err := m.cap.Call(ctx, InterfaceMessage, MethodGet, GetParams{Num: num}, &res); err != nil {
		return Message{}, err
	}
	return res.Msg, nil
}

func (m *MessageClient) Release() { m.cap.Release() }

type LayerClient struct {
	cap *caprpc.Client
}

func (l *LayerClient) LayerExists(ctx context.Context, layer Layer) (LayerResult, error) {
	var res LayerExistsResults
	if err := l.cap.Call(ctx, InterfaceLayer, MethodLayerExists, LayerExistsParams{Layer: &layer}, &res); err != nil {
		return LayerResult{}, err
	}
	return res.Result, nil
}

func (l *LayerClient) Release() { l.cap.Release() }

// DigestPtr returns a pointer to d for building a Layer.
func DigestPtr(d string) *string { return &d }
