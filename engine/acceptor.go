/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package engine

import (
	"net"
	"sync/atomic"
	"time"

	"github.com/jpillora/backoff"
	"go.osspkg.com/logx"
	"golang.org/x/sys/unix"

	"go.osspkg.com/reactor/errs"
	"go.osspkg.com/reactor/internal"
)

// Listener is a bound non-blocking socket, see the listen package.
type Listener interface {
	FD() int
	Network() string
	Addr() net.Addr
	Close() error
}

// Acceptor drains the listen queue on loop 0 and spreads accepted channels over the group.
type Acceptor struct {
	group    *Group
	loop     *EventLoop
	ln       Listener
	binding  Binding
	backoff  *backoff.Backoff
	paused   bool
	closed   atomic.Bool
	accepted atomic.Uint64
	rejected atomic.Uint64
	done     chan struct{}
}

func (g *Group) Listen(ln Listener, b Binding) (*Acceptor, error) {
	if err := b.validate(false); err != nil {
		return nil, err
	}
	a := &Acceptor{
		group:   g,
		loop:    g.Loop(0),
		ln:      ln,
		binding: b,
		backoff: &backoff.Backoff{Min: 10 * time.Millisecond, Max: time.Second, Factor: 2, Jitter: true},
		done:    make(chan struct{}),
	}
	if !a.loop.Execute(func() { a.loop.guard(a, a.register) }) {
		return nil, errs.New(errs.KindBind, "accept", errs.ErrLoopStopped)
	}
	return a, nil
}

// ServePacket binds one datagram channel to the socket, the listener keeps the descriptor.
func (g *Group) ServePacket(ln Listener, b Binding) (*Session, error) {
	sock := newPacketSocket(ln.FD(), ln.Network(), false)
	return g.open(g.Loop(0), sock, b, true, false)
}

func (a *Acceptor) Addr() net.Addr        { return a.ln.Addr() }
func (a *Acceptor) Accepted() uint64      { return a.accepted.Load() }
func (a *Acceptor) Rejected() uint64      { return a.rejected.Load() }
func (a *Acceptor) Done() <-chan struct{} { return a.done }
func (a *Acceptor) fd() int               { return a.ln.FD() }
func (a *Acceptor) onWritable()           {}
func (a *Acceptor) onShutdown()           { a.shutdown() }

func (a *Acceptor) onFailure(err error) {
	logx.Error("Acceptor failure", "err", err, "addr", a.ln.Addr())
	a.shutdown()
}

func (a *Acceptor) register() {
	if a.closed.Load() {
		return
	}
	if a.loop.stopping.Load() {
		a.shutdown()
		return
	}
	if err := a.loop.attach(a, false); err != nil {
		logx.Error("Acceptor register", "err", err, "addr", a.ln.Addr())
		a.shutdown()
		return
	}
	logx.Debug("Acceptor listening", "addr", a.ln.Addr(), "loop", a.loop.id)
}

func (a *Acceptor) onReadable() {
	for !a.closed.Load() {
		nfd, _, err := unix.Accept4(a.ln.FD(), unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		switch err {
		case nil:
		case unix.EINTR, unix.ECONNABORTED:
			continue
		case unix.EAGAIN:
			a.backoff.Reset()
			return
		case unix.EMFILE, unix.ENFILE, unix.ENOBUFS, unix.ENOMEM:
			a.pause(err)
			return
		default:
			logx.Error("Acceptor accept", "err", err, "addr", a.ln.Addr())
			return
		}

		if !a.group.acquire() {
			a.rejected.Add(1)
			logx.Warn("Acceptor connection limit reached", "addr", a.ln.Addr(), "max_conns", a.group.conf.MaxConns)
			internal.LogErr("Acceptor close rejected", unix.Close(nfd))
			continue
		}
		if a.ln.Network() == internal.NetTCP {
			unix.SetsockoptInt(nfd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1) //nolint: errcheck
		}
		a.accepted.Add(1)

		sock := newFDSocket(nfd, a.ln.Network())
		if _, err = a.group.open(a.group.Next(), sock, a.binding, false, true); err != nil {
			internal.LogErr("Acceptor open channel", err, "remote", sock.RemoteAddr())
		}
	}
}

// pause takes the listener off the poller until the back-off delay passes,
// a level triggered poller would spin on a full descriptor table otherwise.
func (a *Acceptor) pause(err error) {
	d := a.backoff.Duration()
	logx.Warn("Acceptor paused", "err", err, "addr", a.ln.Addr(), "retry", d)
	a.loop.detach(a.ln.FD())
	a.paused = true
	time.AfterFunc(d, func() {
		a.loop.Execute(func() { a.loop.guard(a, a.resume) })
	})
}

func (a *Acceptor) resume() {
	if a.closed.Load() || !a.paused {
		return
	}
	a.paused = false
	a.register()
}

// Close stops accepting and closes the listener, open channels are not affected.
func (a *Acceptor) Close() error {
	if a.closed.Load() {
		return nil
	}
	if !a.loop.Execute(func() { a.loop.guard(a, a.shutdown) }) {
		a.shutdown()
	}
	return nil
}

func (a *Acceptor) shutdown() {
	if !a.closed.CompareAndSwap(false, true) {
		return
	}
	a.loop.detach(a.ln.FD())
	internal.LogErr("Acceptor close listener", a.ln.Close(), "addr", a.ln.Addr())
	close(a.done)
}
