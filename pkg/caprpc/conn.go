// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package caprpc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/yeetrun/lycaon/pkg/codecutil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"tailscale.com/syncs"
)

const (
	DefaultPackThreshold    = 4096
	DefaultHandshakeTimeout = 10 * time.Second

	// outgoingQueue and incomingQueue bound the frames buffered between
	// the socket halves and the dispatcher.
	outgoingQueue = 64
	incomingQueue = 64
)

// Observer is told about every call a connection dispatches.
type Observer interface {
	ObserveCall(iface, method string, d time.Duration, err error)
}

// Options configures a Conn.
type Options struct {
	Side Side
	// Bootstrap is exported as BootstrapID. Clients usually leave it nil.
	Bootstrap Server
	Logger    *zap.Logger
	// CallTimeout bounds each inbound call. Zero means no limit.
	CallTimeout time.Duration
	// PackThreshold is the encoded size above which params and results
	// are zstd-packed, if the peer supports it. Zero means
	// DefaultPackThreshold; negative disables packing.
	PackThreshold int
	// HandshakeTimeout bounds the Hello exchange on transports that
	// support deadlines. Zero means DefaultHandshakeTimeout.
	HandshakeTimeout time.Duration
	Observer         Observer

	// version overrides ProtocolVersion in tests.
	version string
}

// Conn is one side of a two-party capability connection. Inbound frames
// are read and outbound frames are written by independent goroutines, and
// inbound calls run one at a time in arrival order.
type Conn struct {
	opts Options
	log  *zap.Logger
	rwc  io.ReadWriteCloser
	bw   *bufio.Writer
	enc  *codecutil.Encoder
	dec  *codecutil.Decoder

	peer Hello
	pack bool

	exports      syncs.Map[CapID, Server]
	numExports   atomic.Int64
	nextExport   atomic.Uint32
	questions    syncs.Map[QuestionID, chan *Return]
	nextQuestion atomic.Uint32

	out   chan *Message
	calls chan *CallFrame

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	err    error // valid once done is closed
}

// NewConn performs the handshake on rwc and starts serving it. The
// connection runs until ctx is cancelled, Close is called, the peer hangs
// up, or a protocol error occurs. rwc is closed in all cases.
func NewConn(ctx context.Context, rwc io.ReadWriteCloser, opts Options) (*Conn, error) {
	if opts.Side != SideClient && opts.Side != SideServer {
		return nil, fmt.Errorf("invalid side %d", opts.Side)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.PackThreshold == 0 {
		opts.PackThreshold = DefaultPackThreshold
	}
	if opts.HandshakeTimeout == 0 {
		opts.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if opts.version == "" {
		opts.version = ProtocolVersion
	}
	c := &Conn{
		opts:  opts,
		log:   opts.Logger,
		rwc:   rwc,
		bw:    bufio.NewWriter(rwc),
		dec:   codecutil.NewDecoder(bufio.NewReader(rwc)),
		out:   make(chan *Message, outgoingQueue),
		calls: make(chan *CallFrame, incomingQueue),
		done:  make(chan struct{}),
	}
	c.enc = codecutil.NewEncoder(c.bw)
	if opts.Bootstrap != nil {
		c.exports.Store(BootstrapID, opts.Bootstrap)
		c.numExports.Add(1)
	}

	if err := c.handshake(); err != nil {
		rwc.Close()
		return nil, err
	}
	c.log.Debug("handshake complete",
		zap.Stringer("side", opts.Side),
		zap.String("peer_version", c.peer.Version),
		zap.Bool("packing", c.pack))

	c.ctx, c.cancel = context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(c.ctx)
	g.Go(func() error { return c.readLoop(gctx) })
	g.Go(func() error { return c.writeLoop(gctx) })
	g.Go(func() error { return c.dispatchLoop(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		c.rwc.Close()
		return nil
	})
	go func() {
		c.finish(g.Wait())
	}()
	return c, nil
}

func (c *Conn) handshake() error {
	if d, ok := c.rwc.(interface{ SetDeadline(time.Time) error }); ok {
		if err := d.SetDeadline(time.Now().Add(c.opts.HandshakeTimeout)); err == nil {
			defer d.SetDeadline(time.Time{})
		}
	}
	hello := &Hello{Version: c.opts.version, Side: c.opts.Side, Codecs: []string{CodecZstd}}
	send := func() error {
		if err := c.writeMessage(&Message{Type: MsgHello, Hello: hello}); err != nil {
			return &ConnectionError{Op: "send hello", Err: err}
		}
		return nil
	}

	if c.opts.Side == SideClient {
		if err := send(); err != nil {
			return err
		}
	}
	peer, err := c.readHello()
	if err != nil {
		return err
	}
	if err := checkVersion(peer.Version); err != nil {
		_ = c.writeMessage(&Message{Type: MsgAbort, Abort: &Exception{Type: Failed, Reason: err.Error()}})
		return &ConnectionError{Op: "handshake", Err: err}
	}
	if c.opts.Side == SideServer {
		if err := send(); err != nil {
			return err
		}
	}
	c.peer = *peer
	for _, codec := range peer.Codecs {
		if codec == CodecZstd && c.opts.PackThreshold > 0 {
			c.pack = true
		}
	}
	return nil
}

func (c *Conn) readHello() (*Hello, error) {
	var m Message
	if err := c.dec.Decode(&m); err != nil {
		return nil, &ConnectionError{Op: "read hello", Err: err}
	}
	switch {
	case m.Type == MsgAbort && m.Abort != nil:
		return nil, &ConnectionError{Op: "handshake", Err: m.Abort}
	case m.Type != MsgHello || m.Hello == nil:
		return nil, &ConnectionError{Op: "handshake", Err: fmt.Errorf("expected hello, got %v", m.Type)}
	case m.Hello.Side == c.opts.Side:
		return nil, &ConnectionError{Op: "handshake", Err: fmt.Errorf("peer is also a %v", m.Hello.Side)}
	}
	return m.Hello, nil
}

// writeMessage encodes m and flushes. Only the handshake and writeLoop
// call it, never concurrently.
func (c *Conn) writeMessage(m *Message) error {
	if err := c.enc.Encode(m); err != nil {
		return err
	}
	return c.bw.Flush()
}

func (c *Conn) readLoop(ctx context.Context) error {
	for {
		var m Message
		if err := c.dec.Decode(&m); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return io.EOF
			}
			return &ConnectionError{Op: "read frame", Err: err}
		}
		if err := c.handleFrame(ctx, &m); err != nil {
			return err
		}
	}
}

func (c *Conn) handleFrame(ctx context.Context, m *Message) error {
	switch m.Type {
	case MsgCall:
		if m.Call == nil {
			return &ConnectionError{Op: "read frame", Err: errors.New("call frame without body")}
		}
		select {
		case c.calls <- m.Call:
		case <-ctx.Done():
			return ctx.Err()
		}
	case MsgReturn:
		if m.Return == nil {
			return &ConnectionError{Op: "read frame", Err: errors.New("return frame without body")}
		}
		ch, ok := c.questions.LoadAndDelete(m.Return.Answer)
		if !ok {
			// The caller gave up on this question.
			c.log.Debug("return for abandoned question", zap.Uint32("question", uint32(m.Return.Answer)))
			if m.Return.Cap != nil {
				return c.send(ctx, releaseMessage(*m.Return.Cap))
			}
			return nil
		}
		ch <- m.Return
	case MsgRelease:
		if m.Release == nil {
			return &ConnectionError{Op: "read frame", Err: errors.New("release frame without body")}
		}
		c.release(m.Release.Cap)
	case MsgAbort:
		exc := m.Abort
		if exc == nil {
			exc = &Exception{Type: Failed, Reason: "peer aborted"}
		}
		return &ConnectionError{Op: "peer abort", Err: exc}
	default:
		return &ConnectionError{Op: "read frame", Err: fmt.Errorf("unexpected %v frame", m.Type)}
	}
	return nil
}

func (c *Conn) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m := <-c.out:
			if err := c.enc.Encode(m); err != nil {
				return &ConnectionError{Op: "write frame", Err: err}
			}
			// Coalesce flushes while more frames are queued.
			if len(c.out) > 0 {
				continue
			}
			if err := c.bw.Flush(); err != nil {
				return &ConnectionError{Op: "write frame", Err: err}
			}
		}
	}
}

func (c *Conn) dispatchLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cf := <-c.calls:
			ret := c.dispatch(ctx, cf)
			if err := c.send(ctx, &Message{Type: MsgReturn, Return: ret}); err != nil {
				return err
			}
		}
	}
}

func (c *Conn) dispatch(ctx context.Context, cf *CallFrame) (ret *Return) {
	start := time.Now()
	ret = &Return{Answer: cf.Question}
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s.%s: %v", cf.Interface, cf.Method, r)
			ret = &Return{Answer: cf.Question, Exception: toException(err)}
		}
		if err != nil {
			c.log.Info("call failed",
				zap.String("interface", cf.Interface),
				zap.String("method", cf.Method),
				zap.Error(err))
		}
		if c.opts.Observer != nil {
			c.opts.Observer.ObserveCall(cf.Interface, cf.Method, time.Since(start), err)
		}
	}()

	var res any
	res, err = c.invoke(ctx, cf)
	if err == nil {
		err = c.fillReturn(ret, cf.Method, res)
	}
	if err != nil {
		ret.Results, ret.Cap, ret.Packed = nil, nil, false
		ret.Exception = toException(err)
	}
	return ret
}

func (c *Conn) invoke(ctx context.Context, cf *CallFrame) (any, error) {
	srv, ok := c.exports.Load(cf.Target)
	if !ok {
		return nil, &RequestError{Method: cf.Method, Err: fmt.Errorf("unknown capability %d", cf.Target)}
	}
	if cf.Interface != srv.InterfaceName() {
		return nil, Unimplementedf("capability %d implements %s, not %s", cf.Target, srv.InterfaceName(), cf.Interface)
	}
	params := cf.Params
	if cf.Packed {
		var err error
		if params, err = codecutil.Unpack(params); err != nil {
			return nil, &RequestError{Method: cf.Method, Err: err}
		}
	}
	if c.opts.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.CallTimeout)
		defer cancel()
	}
	res, err := srv.Dispatch(ctx, &Call{Interface: cf.Interface, Method: cf.Method, params: params})
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	return res, err
}

// fillReturn exports res if it is a capability and encodes it otherwise.
func (c *Conn) fillReturn(ret *Return, method string, res any) error {
	if srv, ok := res.(Server); ok {
		id := c.export(srv)
		ret.Cap = &id
		return nil
	}
	b, err := codecutil.Marshal(res)
	if err != nil {
		return &RequestError{Method: method, Err: fmt.Errorf("encode results: %w", err)}
	}
	ret.Results, ret.Packed = c.maybePack(b)
	return nil
}

func (c *Conn) export(srv Server) CapID {
	id := CapID(c.nextExport.Add(1))
	c.exports.Store(id, srv)
	c.numExports.Add(1)
	return id
}

func (c *Conn) release(id CapID) {
	if id == BootstrapID {
		return
	}
	if _, ok := c.exports.LoadAndDelete(id); ok {
		c.numExports.Add(-1)
	}
}

// NumExports returns the number of capabilities this side currently
// exports, including the bootstrap capability.
func (c *Conn) NumExports() int {
	return int(c.numExports.Load())
}

func (c *Conn) maybePack(b []byte) ([]byte, bool) {
	if !c.pack || len(b) <= c.opts.PackThreshold {
		return b, false
	}
	packed, err := codecutil.Pack(b)
	if err != nil || len(packed) >= len(b) {
		return b, false
	}
	return packed, true
}

// send queues m for the writer. It fails once ctx is done or the
// connection has finished.
func (c *Conn) send(ctx context.Context, m *Message) error {
	select {
	case c.out <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return c.closedErr()
	}
}

func (c *Conn) finish(err error) {
	switch {
	case c.ctx.Err() != nil:
		err = nil
	case errors.Is(err, io.EOF):
		err = nil
	case errors.Is(err, net.ErrClosed):
		err = nil
	}
	if err != nil {
		c.log.Warn("connection failed", zap.Error(err))
	} else {
		c.log.Debug("connection closed")
	}
	c.err = err
	close(c.done)
	c.cancel()
}

func (c *Conn) closedErr() error {
	if c.err != nil {
		return fmt.Errorf("%w: %w", ErrClosed, c.err)
	}
	return ErrClosed
}

// Peer returns the Hello the peer sent.
func (c *Conn) Peer() Hello { return c.peer }

// Done is closed when the connection has shut down.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Wait blocks until the connection shuts down. It returns nil if the peer
// hung up or the connection was closed locally, and the failure otherwise.
func (c *Conn) Wait() error {
	<-c.done
	return c.err
}

// Close shuts the connection down and waits for its goroutines to exit.
func (c *Conn) Close() error {
	c.cancel()
	<-c.done
	return nil
}

// Serve runs a server-side connection on rwc until it ends.
func Serve(ctx context.Context, rwc io.ReadWriteCloser, opts Options) error {
	opts.Side = SideServer
	c, err := NewConn(ctx, rwc, opts)
	if err != nil {
		return err
	}
	return c.Wait()
}

// Dial connects to a server at addr over TCP. ctx bounds the dial only;
// the connection lives until Close.
func Dial(ctx context.Context, addr string, opts Options) (*Conn, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	if tc, ok := nc.(*net.TCPConn); ok {
		tc.SetNoDelay(true)
	}
	opts.Side = SideClient
	return NewConn(context.Background(), nc, opts)
}
