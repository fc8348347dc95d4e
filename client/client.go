/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package client

import (
	"context"
	"fmt"
	"net"

	"go.osspkg.com/algorithms/control"
	"go.osspkg.com/errors"
	"go.osspkg.com/logx"
	"go.osspkg.com/syncing"

	"go.osspkg.com/reactor/codec"
	"go.osspkg.com/reactor/engine"
	"go.osspkg.com/reactor/errs"
	"go.osspkg.com/reactor/internal"
	"go.osspkg.com/reactor/secure"
)

var ErrNotStarted = errors.New("client is not started")

// Client dials sessions to one address through its own loop group.
type Client struct {
	conf    Config
	binding engine.Binding
	group   *engine.Group
	tls     secure.Transport
	sem     control.Semaphore
	idle    *sessionPool
	sync    syncing.Switch
}

func New(conf Config, registry *codec.Registry, handler engine.IOEventHandle) (*Client, error) {
	conf.Default()
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	addr, err := conf.Resolve()
	if err != nil {
		return nil, fmt.Errorf("resolve address: %w", err)
	}
	conf.Address = addr.String()

	factory, err := registry.Lookup(conf.Protocol)
	if err != nil {
		return nil, err
	}

	cli := &Client{
		conf:    conf,
		binding: engine.Binding{Factory: factory, Handler: handler},
		sem:     control.NewSemaphore(conf.MaxConns),
		idle:    newSessionPool(int(conf.MaxConns)),
		sync:    syncing.NewSwitch(),
	}

	if conf.SSL != nil && conf.SSL.Enabled {
		ssl := *conf.SSL
		if len(ssl.ServerName) == 0 && conf.Network == internal.NetTCP {
			if host, _, e := net.SplitHostPort(conf.Address); e == nil {
				ssl.ServerName = host
			}
		}
		if cli.tls, err = secure.NewClient(&ssl); err != nil {
			return nil, fmt.Errorf("secure transport: %w", err)
		}
		cli.binding.Secure = cli.tls
	}

	if cli.group, err = engine.NewGroup(conf.Engine); err != nil {
		if cli.tls != nil {
			internal.LogErr("Client close secure transport", cli.tls.Close())
		}
		return nil, err
	}
	return cli, nil
}

func (v *Client) Start(ctx context.Context) error {
	if !v.sync.On() {
		return internal.ErrServAlreadyRunning
	}
	return v.group.Start(ctx)
}

// Dial opens a new session, dial_timeout bounds the connect and the handshake is not awaited.
func (v *Client) Dial(ctx context.Context) (*engine.Session, error) {
	if !v.sync.IsOn() {
		return nil, ErrNotStarted
	}
	ctx, cancel := context.WithTimeout(ctx, v.conf.DialTimeout)
	defer cancel()

	s, err := v.group.Connect(ctx, v.conf.Network, v.conf.Address, v.binding)
	if err != nil {
		logx.Warn("Client dial", "err", err, "network", v.conf.Network, "address", v.conf.Address)
		return nil, err
	}
	return s, nil
}

// Call sends req over an idle or new session and waits for the correlated reply.
// At most max_conns calls run at once.
func (v *Client) Call(ctx context.Context, req codec.Correlated) (any, error) {
	v.sem.Acquire()
	defer func() { v.sem.Release() }()

	s, ok := v.idle.getIdle()
	if !ok {
		var err error
		if s, err = v.Dial(ctx); err != nil {
			return nil, err
		}
	}

	resp, err := s.Request(ctx, req)
	if err != nil {
		// a late reply must not reach the next caller of this session
		if !errs.Is(err, errs.KindClosedChannel) {
			internal.LogErr("Client close session", s.Close(), "id", s.ID())
		}
		return nil, err
	}
	v.idle.putOrClose(s)
	return resp, nil
}

func (v *Client) Close() error {
	if !v.sync.Off() {
		return nil
	}
	v.idle.closeAll()
	v.group.Stop()
	v.group.Wait()
	if v.tls != nil {
		return v.tls.Close()
	}
	return nil
}
