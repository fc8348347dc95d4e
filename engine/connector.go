/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package engine

import (
	"context"

	"go.osspkg.com/errors"
	"go.osspkg.com/logx"
	"golang.org/x/sys/unix"

	"go.osspkg.com/reactor/errs"
	"go.osspkg.com/reactor/internal"
)

// connector is a pending non-blocking connect registered for write readiness.
type connector struct {
	group   *Group
	loop    *EventLoop
	sock    int
	network string
	binding Binding
	packet  bool
	done    func(*Session, error)
	stop    func() bool
	settled bool
}

// ConnectAsync starts a non-blocking connect and reports the result through done.
// done runs on the channel's loop, or on the caller when the connect fails early.
func (g *Group) ConnectAsync(ctx context.Context, network, address string, b Binding, done func(*Session, error)) {
	packet := network == internal.NetUDP
	if err := b.validate(packet); err != nil {
		done(nil, err)
		return
	}
	addr, err := internal.ResolveAddr(network, address)
	if err != nil {
		done(nil, errs.IO("resolve", err))
		return
	}
	family, sa, err := internal.ToSockaddr(network, addr)
	if err != nil {
		done(nil, errs.IO("resolve", err))
		return
	}

	typ := unix.SOCK_STREAM
	if packet {
		typ = unix.SOCK_DGRAM
	}
	fd, err := unix.Socket(family, typ|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		done(nil, errs.IO("socket", err))
		return
	}
	if network == internal.NetTCP {
		unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1) //nolint: errcheck
	}

	err = unix.Connect(fd, sa)
	switch {
	case err == nil:
		s, e := g.open(g.Next(), newFDSocket(fd, network), b, packet, false)
		done(s, e)
		return
	case errors.Is(err, unix.EINPROGRESS), errors.Is(err, unix.EINTR):
	default:
		internal.LogErr("Connector close socket", unix.Close(fd))
		done(nil, errs.IO("connect", err))
		return
	}

	c := &connector{
		group:   g,
		loop:    g.Next(),
		sock:    fd,
		network: network,
		binding: b,
		packet:  packet,
		done:    done,
	}
	if !c.loop.Execute(func() { c.loop.guard(c, func() { c.register(ctx) }) }) {
		internal.LogErr("Connector close socket", unix.Close(fd))
		done(nil, errs.New(errs.KindClosedChannel, "connect", errs.ErrLoopStopped))
	}
}

// Connect blocks until the connection is established, ctx bounds the attempt.
func (g *Group) Connect(ctx context.Context, network, address string, b Binding) (*Session, error) {
	type result struct {
		s   *Session
		err error
	}
	res := make(chan result, 1)
	g.ConnectAsync(ctx, network, address, b, func(s *Session, err error) {
		res <- result{s: s, err: err}
	})
	r := <-res
	return r.s, r.err
}

func (c *connector) fd() int     { return c.sock }
func (c *connector) onReadable() { c.onWritable() }

func (c *connector) register(ctx context.Context) {
	if c.settled {
		return
	}
	if c.loop.stopping.Load() {
		c.onShutdown()
		return
	}
	if err := c.loop.attach(c, true); err != nil {
		c.finish(nil, errs.IO("connect", err))
		return
	}
	c.stop = context.AfterFunc(ctx, func() {
		c.loop.Execute(func() { c.loop.guard(c, func() { c.expire(ctx.Err()) }) })
	})
}

func (c *connector) onWritable() {
	if c.settled {
		return
	}
	code, err := unix.GetsockoptInt(c.sock, unix.SOL_SOCKET, unix.SO_ERROR)
	switch {
	case err != nil:
		c.finish(nil, errs.IO("connect", err))
		return
	case code == int(unix.EINPROGRESS) || code == int(unix.EALREADY):
		return
	case code != 0:
		c.finish(nil, errs.IO("connect", unix.Errno(code)))
		return
	}

	c.settle()
	ch, err := c.group.newChannel(c.loop, newFDSocket(c.sock, c.network), c.binding, c.packet, false)
	if err != nil {
		c.done(nil, err)
		return
	}
	ch.open()
	if !ch.isOpen() {
		c.done(nil, errs.Closed("connect"))
		return
	}
	c.done(ch.session, nil)
}

func (c *connector) expire(err error) {
	if c.settled {
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		c.finish(nil, errs.Timeout("connect"))
		return
	}
	c.finish(nil, errs.IO("connect", err))
}

func (c *connector) onFailure(err error) {
	c.finish(nil, err)
}

func (c *connector) onShutdown() {
	c.finish(nil, errs.New(errs.KindClosedChannel, "connect", errs.ErrLoopStopped))
}

// settle takes the socket off the poller, the channel registers it again as its own.
func (c *connector) settle() {
	c.settled = true
	if c.stop != nil {
		c.stop()
	}
	c.loop.detach(c.sock)
}

func (c *connector) finish(s *Session, err error) {
	if c.settled {
		return
	}
	c.settle()
	if s == nil {
		internal.LogErr("Connector close socket", unix.Close(c.sock))
	}
	if err != nil {
		logx.Debug("Connector failed", "network", c.network, "err", err)
	}
	c.done(s, err)
}
