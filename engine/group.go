/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package engine

import (
	"context"
	"sync/atomic"

	"go.osspkg.com/errors"
	"go.osspkg.com/logx"
	"go.osspkg.com/syncing"

	"go.osspkg.com/reactor/internal"
)

// Group is the fixed pool of event loops channels are spread over.
type Group struct {
	conf  Config
	loops []*EventLoop
	next  atomic.Uint64
	conns atomic.Int64
	sw    syncing.Switch
	wg    syncing.Group
}

func NewGroup(conf Config) (*Group, error) {
	conf.Default()
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	g := &Group{
		conf:  conf,
		loops: make([]*EventLoop, 0, conf.Loops),
		sw:    syncing.NewSwitch(),
		wg:    syncing.NewGroup(),
	}
	for i := 0; i < conf.Loops; i++ {
		l, err := NewEventLoop(i, &g.conf)
		if err != nil {
			var closeErr error
			for _, prev := range g.loops {
				closeErr = errors.Wrap(closeErr, prev.poller.Close())
			}
			return nil, errors.Wrap(err, closeErr)
		}
		g.loops = append(g.loops, l)
	}
	return g, nil
}

func (g *Group) Config() Config { return g.conf }
func (g *Group) Len() int       { return len(g.loops) }
func (g *Group) Conns() int64   { return g.conns.Load() }

func (g *Group) Loop(i int) *EventLoop {
	return g.loops[i%len(g.loops)]
}

// Next hands out loops round robin, a channel stays on its loop for life.
func (g *Group) Next() *EventLoop {
	return g.loops[(g.next.Add(1)-1)%uint64(len(g.loops))]
}

func (g *Group) Start(ctx context.Context) error {
	if !g.sw.On() {
		return ErrLoopRunning
	}
	for _, l := range g.loops {
		l := l
		g.wg.Background(func() {
			if err := l.Run(ctx); err != nil {
				logx.Error("Event loop exit", "err", err, "loop", l.ID())
			}
		})
	}
	logx.Debug("Event loops started", "count", len(g.loops))
	return nil
}

func (g *Group) Stop() {
	for _, l := range g.loops {
		l.Stop()
	}
}

func (g *Group) Wait() {
	g.wg.Wait()
}

func (g *Group) acquire() bool {
	limit := g.conf.MaxConns
	for {
		n := g.conns.Load()
		if limit > 0 && n >= limit {
			return false
		}
		if g.conns.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (g *Group) release() {
	g.conns.Add(-1)
}

func (g *Group) newChannel(l *EventLoop, sock Socket, b Binding, packet, counted bool) (*Channel, error) {
	c, err := newChannel(l, sock, b, packet)
	if err != nil {
		internal.LogErr("Channel create close socket", sock.Close())
		if counted {
			g.release()
		}
		return nil, err
	}
	if counted {
		c.release = g.release
	}
	return c, nil
}

// open creates the channel and registers it from any goroutine.
func (g *Group) open(l *EventLoop, sock Socket, b Binding, packet, counted bool) (*Session, error) {
	c, err := g.newChannel(l, sock, b, packet, counted)
	if err != nil {
		return nil, err
	}
	if err = l.Register(c); err != nil {
		return nil, err
	}
	return c.session, nil
}
