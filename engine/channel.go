/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package engine

import (
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/jpillora/sizestr"
	"go.osspkg.com/errors"
	"go.osspkg.com/logx"

	"go.osspkg.com/reactor/codec"
	"go.osspkg.com/reactor/errs"
	"go.osspkg.com/reactor/internal"
	"go.osspkg.com/reactor/secure"
)

const readRounds = 16

type ChannelState int32

const (
	StateOpen ChannelState = iota
	StateClosing
	StateClosed
)

func (s ChannelState) String() string {
	switch s {
	case StateOpen:
		return "OPEN"
	case StateClosing:
		return "CLOSING"
	default:
		return "CLOSED"
	}
}

var channelSeq atomic.Uint64

// Binding is what a channel is built with at accept or connect time.
type Binding struct {
	Factory codec.ProtocolFactory
	Handler IOEventHandle
	// Secure wraps the byte stream in TLS when set.
	Secure secure.Transport
}

func (b Binding) validate(packet bool) error {
	if b.Factory == nil {
		return fmt.Errorf("engine: protocol factory is required")
	}
	if packet && b.Secure != nil {
		return fmt.Errorf("engine: secure transport is not supported on datagram channels")
	}
	return nil
}

// Channel is one connection pinned to one loop. Socket I/O and every unexported field
// except the atomics are touched only by the owning loop.
type Channel struct {
	id      uint64
	loop    *EventLoop
	sock    Socket
	packet  bool
	factory codec.ProtocolFactory
	decoder codec.Decoder
	encoder codec.Encoder
	handler IOEventHandle
	session *Session
	release func()

	state    atomic.Int32
	queue    *outboundQueue
	inflight *WriteFuture
	writing  bool
	flushing atomic.Bool
	flushFn  func()

	inbound []byte
	active  time.Time
	health  *LinkHealth

	tls      secure.Session
	client   bool
	protocol atomic.Pointer[string]

	readBytes    uint64
	writtenBytes uint64
}

func newChannel(l *EventLoop, sock Socket, b Binding, packet bool) (*Channel, error) {
	if err := b.validate(packet); err != nil {
		return nil, err
	}
	c := &Channel{
		id:      channelSeq.Add(1),
		loop:    l,
		sock:    sock,
		packet:  packet,
		factory: b.Factory,
		decoder: b.Factory.NewDecoder(),
		encoder: b.Factory.NewEncoder(),
		handler: b.Handler,
		queue:   newOutboundQueue(l.conf.QueueCapacity),
		health:  NewLinkHealth(l.conf.WeakWindow),
	}
	if c.handler == nil {
		c.handler = HandleAdaptor{}
	}
	c.session = newSession(c)
	c.flushFn = func() {
		c.flushing.Store(false)
		l.guard(c, c.flush)
	}

	if b.Secure != nil {
		s, err := b.Secure.NewSession(secure.Hooks{
			Output:      c.scheduleFlush,
			Plaintext:   func(p []byte) { c.exec(func() { c.ingest(p) }) },
			Established: func(p string) { c.exec(func() { c.established(p) }) },
			Error:       func(err error) { c.exec(func() { c.secureFailed(err) }) },
			Local:       sock.LocalAddr(),
			Remote:      sock.RemoteAddr(),
		})
		if err != nil {
			return nil, err
		}
		c.tls = s
		c.client = b.Secure.Role() == secure.RoleClient
	}
	return c, nil
}

func (c *Channel) ID() uint64           { return c.id }
func (c *Channel) Session() *Session    { return c.session }
func (c *Channel) Loop() *EventLoop     { return c.loop }
func (c *Channel) LocalAddr() net.Addr  { return c.sock.LocalAddr() }
func (c *Channel) RemoteAddr() net.Addr { return c.sock.RemoteAddr() }
func (c *Channel) State() ChannelState  { return ChannelState(c.state.Load()) }
func (c *Channel) IsWeak() bool         { return c.health.Weak() }
func (c *Channel) Pending() int         { return c.queue.len() }

func (c *Channel) Factory() codec.ProtocolFactory {
	return c.factory
}

// Protocol is the ALPN protocol agreed during the handshake.
func (c *Channel) Protocol() string {
	if p := c.protocol.Load(); p != nil {
		return *p
	}
	return ""
}

func (c *Channel) isOpen() bool {
	return c.State() == StateOpen
}

func (c *Channel) exec(fn func()) bool {
	return c.loop.Execute(func() { c.loop.guard(c, fn) })
}

// Offer queues an encoded future. Rejections fail the future on the calling goroutine.
func (c *Channel) Offer(f *WriteFuture) error {
	c.bindContinuations(f)
	if !c.isOpen() {
		err := errs.Closed("offer")
		f.fail(err)
		return err
	}
	if err := c.queue.push(f); err != nil {
		f.fail(err)
		return err
	}
	c.scheduleFlush()
	return nil
}

func (c *Channel) bindContinuations(f *WriteFuture) {
	if f.OnSuccess == nil {
		f.OnSuccess = func(msg any) {
			c.handler.OnFutureSent(c.session, msg)
		}
	}
	if f.OnFailure == nil {
		f.OnFailure = func(msg any, err error) {
			c.handler.OnExceptionCaught(c.session, msg, err, IOStateWrite)
		}
	}
}

func (c *Channel) scheduleFlush() {
	if !c.flushing.CompareAndSwap(false, true) {
		return
	}
	if !c.loop.Execute(c.flushFn) {
		c.flushing.Store(false)
	}
}

// Close is idempotent and safe from any goroutine. New offers are rejected at once,
// the socket is released on the owning loop.
func (c *Channel) Close() error {
	if !c.state.CompareAndSwap(int32(StateOpen), int32(StateClosing)) {
		return nil
	}
	c.exec(func() { c.closeNow(nil) })
	return nil
}

func (c *Channel) fd() int { return c.sock.FD() }

func (c *Channel) open() {
	if !c.isOpen() {
		c.abandon()
		return
	}
	if err := c.loop.attach(c, false); err != nil {
		c.exception(nil, errs.IO("register", err), IOStateRead)
		c.abandon()
		return
	}
	c.loop.channels[c.id] = c
	c.active = c.loop.now()

	logx.Debug("Channel opened", "id", c.id, "loop", c.loop.id, "remote", c.RemoteAddr(), "protocol", c.factory.ProtocolID())
	if l, ok := c.handler.(SessionEventListener); ok {
		l.OnOpened(c.session)
	}
	if c.tls != nil && c.client {
		c.tls.Start()
	}
}

// abandon releases a channel that never reached the poller.
func (c *Channel) abandon() {
	if ChannelState(c.state.Swap(int32(StateClosed))) == StateClosed {
		return
	}
	c.drain(errs.Closed("register"))
	if c.tls != nil {
		internal.LogErr("Channel secure close", c.tls.Close(), "id", c.id)
	}
	internal.LogErr("Channel close socket", c.sock.Close(), "id", c.id)
	c.session.release()
	if c.release != nil {
		c.release()
	}
}

func (c *Channel) onReadable() {
	buf := c.loop.readBuffer()
	for i := 0; i < readRounds && c.isOpen(); i++ {
		n, err := c.sock.Read(buf)
		if n > 0 {
			c.active = c.loop.now()
			c.readBytes += uint64(n)
			c.received(buf[:n])
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				c.closeNow(nil)
			} else {
				c.fail(nil, errs.IO("read", err), IOStateRead)
			}
			return
		}
		if n == 0 || (!c.packet && n < len(buf)) {
			return
		}
	}
}

func (c *Channel) received(b []byte) {
	if c.tls != nil {
		c.tls.Feed(b)
		return
	}
	c.ingest(b)
}

// ingest decodes what arrived and hands messages over in order. On a decode error the
// messages decoded before it are still delivered, then the channel closes.
func (c *Channel) ingest(b []byte) {
	if !c.isOpen() {
		return
	}

	if c.packet {
		msgs, _, err := c.factory.NewDecoder().Decode(b)
		c.deliver(msgs)
		if err != nil && c.isOpen() {
			c.exception(nil, errs.Decode(err), IOStateRead)
		}
		return
	}

	c.inbound = append(c.inbound, b...)
	msgs, consumed, err := c.decoder.Decode(c.inbound)
	c.deliver(msgs)
	if c.State() == StateClosed {
		return
	}
	c.inbound = internal.Compact(c.inbound, consumed)
	if err != nil {
		c.fail(nil, errs.Decode(err), IOStateRead)
	}
}

func (c *Channel) deliver(msgs []any) {
	now := c.loop.now()
	for _, msg := range msgs {
		if !c.isOpen() {
			return
		}
		f := &ReadFuture{Message: msg, ReceivedAt: now}
		if cm, ok := msg.(codec.Correlated); ok {
			f.CorrelationID, f.Correlated = cm.CorrelationID(), true
			if c.session.resolve(f.CorrelationID, msg) {
				continue
			}
		}
		c.handler.OnAccept(c.session, f)
	}
}

func (c *Channel) onWritable() {
	c.flush()
}

func (c *Channel) onFailure(err error) {
	c.fail(nil, err, IOStateHandle)
}

func (c *Channel) onShutdown() {
	c.closeNow(errs.ErrLoopStopped)
}

// check runs on the loop tick: weak link re-arm and idle timeout.
func (c *Channel) check() {
	if !c.isOpen() {
		return
	}
	now := c.loop.now()
	if c.inflight != nil && c.health.Check(now) {
		logx.Debug("Channel link weak", "id", c.id, "remote", c.RemoteAddr())
		c.rearm()
	}
	if idle := c.loop.conf.IdleTimeout; idle > 0 && now.Sub(c.active) > idle {
		c.fail(nil, errs.Timeout("idle"), IOStateRead)
	}
}

func (c *Channel) established(protocol string) {
	if !c.isOpen() {
		return
	}
	c.protocol.Store(&protocol)
	logx.Debug("Channel secured", "id", c.id, "remote", c.RemoteAddr(), "alpn", protocol)
	if l, ok := c.handler.(ProtocolListener); ok {
		l.OnProtocolNegotiated(c.session, protocol)
	}
	c.flush()
}

func (c *Channel) secureFailed(err error) {
	if c.State() == StateClosed {
		return
	}
	if errs.IsClosed(err) {
		c.closeNow(err)
		return
	}
	state := IOStateRead
	if c.tls.State() != secure.StateEstablished {
		state = IOStateHandshake
		c.flushAlert()
	}
	c.fail(nil, err, state)
}

// flushAlert makes one attempt to hand a pending TLS alert to the peer before closing.
func (c *Channel) flushAlert() {
	if c.inflight != nil {
		return
	}
	if raw := c.tls.Pending(); len(raw) > 0 {
		c.sock.Write(raw) //nolint: errcheck
	}
}

func (c *Channel) exception(msg any, err error, state IOState) {
	if e := protect(func() { c.handler.OnExceptionCaught(c.session, msg, err, state) }); e != nil {
		logx.Error("Channel exception handler", "err", e, "id", c.id)
	}
}

// fail reports err once and closes the channel.
func (c *Channel) fail(msg any, err error, state IOState) {
	if c.State() == StateClosed {
		return
	}
	c.exception(msg, err, state)
	c.closeNow(err)
}

func (c *Channel) drain(err error) {
	if f := c.inflight; f != nil {
		c.inflight = nil
		f.fail(err)
	}
	for _, f := range c.queue.close() {
		f.fail(err)
	}
}

func (c *Channel) closeNow(cause error) {
	if ChannelState(c.state.Swap(int32(StateClosed))) == StateClosed {
		return
	}

	c.drain(errs.Closed("close"))
	if c.tls != nil {
		internal.LogErr("Channel secure close", c.tls.Close(), "id", c.id)
	}
	c.loop.detach(c.fd())
	delete(c.loop.channels, c.id)
	sockErr := c.sock.Close()
	c.inbound = nil
	c.session.release()

	logx.Debug("Channel closed",
		"id", c.id,
		"remote", c.RemoteAddr(),
		"read", sizestr.ToString(int64(c.readBytes)),
		"written", sizestr.ToString(int64(c.writtenBytes)),
		"cause", cause,
	)
	internal.LogErr("Channel close socket", sockErr, "id", c.id)

	if l, ok := c.handler.(SessionEventListener); ok {
		if err := protect(func() { l.OnClosed(c.session) }); err != nil {
			logx.Error("Channel close handler", "err", err, "id", c.id)
		}
	}
	if c.release != nil {
		c.release()
	}
}
