// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lycaon

import (
	"context"
	"errors"

	"github.com/yeetrun/lycaon/pkg/caprpc"
	"github.com/yeetrun/lycaon/pkg/layers"
	"go.uber.org/zap"
)

// Bootstrap is the root capability. It mints a new MessageService for
// every request and hands out one shared LayerService.
type Bootstrap struct {
	layer *LayerService
	log   *zap.Logger
}

var (
	_ caprpc.Server = (*Bootstrap)(nil)
	_ caprpc.Server = (*MessageService)(nil)
	_ caprpc.Server = (*LayerService)(nil)
)

func NewBootstrap(svc *layers.Service, log *zap.Logger) *Bootstrap {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bootstrap{
		layer: NewLayerService(svc, log),
		log:   log,
	}
}

func (b *Bootstrap) InterfaceName() string { return InterfaceRoot }

func (b *Bootstrap) Dispatch(ctx context.Context, call *caprpc.Call) (any, error) {
	switch call.Method {
	case MethodGetMessageInterface:
		b.log.Debug("returning the message interface")
		return NewMessageService(b.log), nil
	case MethodGetLayerInterface:
		b.log.Debug("returning the layer interface")
		return b.layer, nil
	}
	return nil, caprpc.Unimplementedf("%s.%s", InterfaceRoot, call.Method)
}

// MessageService answers echo requests.
type MessageService struct {
	log *zap.Logger
}

func NewMessageService(log *zap.Logger) *MessageService {
	if log == nil {
		log = zap.NewNop()
	}
	return &MessageService{log: log}
}

func (m *MessageService) InterfaceName() string { return InterfaceMessage }

func (m *MessageService) Dispatch(ctx context.Context, call *caprpc.Call) (any, error) {
	switch call.Method {
	case MethodGet:
		var p GetParams
		if err := call.Params(&p); err != nil {
			return nil, err
		}
		m.log.Info("received num", zap.Int64("num", p.Num))
		return GetResults{Msg: Message{Text: Greeting, Number: p.Num}}, nil
	}
	return nil, caprpc.Unimplementedf("%s.%s", InterfaceMessage, call.Method)
}

// LayerService exposes layers.Service as a capability. Digests must match
// the OCI encoded-digest grammar ([a-zA-Z0-9=_-]+), so a digest containing
// '.', '+' or a path separator fails the call even when a file with that
// name exists under the layers directory.
type LayerService struct {
	svc *layers.Service
	log *zap.Logger
}

func NewLayerService(svc *layers.Service, log *zap.Logger) *LayerService {
	if log == nil {
		log = zap.NewNop()
	}
	return &LayerService{svc: svc, log: log}
}

func (l *LayerService) InterfaceName() string { return InterfaceLayer }

func (l *LayerService) Dispatch(ctx context.Context, call *caprpc.Call) (any, error) {
	switch call.Method {
	case MethodLayerExists:
		var p LayerExistsParams
		if err := call.Params(&p); err != nil {
			return nil, err
		}
		if p.Layer == nil || p.Layer.Digest == nil {
			return nil, &caprpc.RequestError{Method: call.Method, Err: layers.ErrMissingDigest}
		}
		ref := layers.LayerRef{
			Algorithm: p.Layer.Algorithm,
			Digest:    *p.Layer.Digest,
			Name:      p.Layer.Name,
			Repo:      p.Layer.Repo,
		}
		res, err := l.svc.LayerExists(ctx, ref)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			// Storage failures are reported to the caller like any other
			// bad request.
			return nil, &caprpc.RequestError{Method: call.Method, Err: err}
		}
		return LayerExistsResults{Result: LayerResult{Exists: res.Exists, Length: res.Length}}, nil
	}
	return nil, caprpc.Unimplementedf("%s.%s", InterfaceLayer, call.Method)
}
