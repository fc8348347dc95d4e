/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package server

import (
	"context"
	"fmt"
	"net"
	"os"

	"go.osspkg.com/errors"
	"go.osspkg.com/ioutils/fs"
	"go.osspkg.com/logx"
	"go.osspkg.com/syncing"

	"go.osspkg.com/reactor/address"
	"go.osspkg.com/reactor/codec"
	"go.osspkg.com/reactor/engine"
	"go.osspkg.com/reactor/internal"
	"go.osspkg.com/reactor/listen"
	"go.osspkg.com/reactor/secure"
)

// Server binds one listening socket and feeds accepted channels into its own loop group.
type Server struct {
	conf     Config
	registry *codec.Registry
	handler  engine.IOEventHandle

	group    *engine.Group
	socket   *listen.Socket
	acceptor *engine.Acceptor
	packet   *engine.Session
	tls      secure.Transport

	sync syncing.Switch
	wg   syncing.Group
	done chan struct{}
}

func New(conf Config, registry *codec.Registry, handler engine.IOEventHandle) *Server {
	return &Server{
		conf:     conf,
		registry: registry,
		handler:  handler,
		sync:     syncing.NewSwitch(),
		wg:       syncing.NewGroup(),
		done:     make(chan struct{}),
	}
}

// Addr is the bound address, nil before Listen.
func (v *Server) Addr() net.Addr {
	if v.socket == nil {
		return nil
	}
	return v.socket.Addr()
}

func (v *Server) Group() *engine.Group {
	return v.group
}

func (v *Server) ListenAndServe(ctx context.Context) error {
	if err := v.Listen(ctx); err != nil {
		return err
	}
	return v.Serve(ctx)
}

// Listen binds the socket and starts the loops, a bind failure is returned before anything runs.
func (v *Server) Listen(ctx context.Context) (err error) {
	if !v.sync.On() {
		return internal.ErrServAlreadyRunning
	}
	defer func() {
		if err != nil {
			v.close()
		}
	}()

	v.conf.Default()
	if err = v.conf.Validate(); err != nil {
		return err
	}
	factory, err := v.registry.Lookup(v.conf.Protocol)
	if err != nil {
		return err
	}

	switch v.conf.Network {
	case internal.NetTCP, internal.NetUDP:
		v.conf.Address = address.Normalize(v.conf.Address)
	case internal.NetUNIX:
		if fs.FileExist(v.conf.Address) {
			if err = os.Remove(v.conf.Address); err != nil {
				return errors.Wrapf(err, "fail clean socket file")
			}
		}
	}

	binding := engine.Binding{Factory: factory, Handler: v.handler}
	if v.conf.SSL != nil && v.conf.SSL.Enabled {
		if v.tls, err = secure.NewServer(v.conf.SSL); err != nil {
			return fmt.Errorf("secure transport: %w", err)
		}
		binding.Secure = v.tls
	}

	if v.socket, err = listen.New(v.conf.Network, v.conf.Address); err != nil {
		return err
	}
	if v.group, err = engine.NewGroup(v.conf.Engine); err != nil {
		return err
	}
	if err = v.group.Start(ctx); err != nil {
		return err
	}

	if v.socket.IsPacket() {
		if v.packet, err = v.group.ServePacket(v.socket, binding); err != nil {
			return err
		}
	} else {
		if v.acceptor, err = v.group.Listen(v.socket, binding); err != nil {
			return err
		}
	}

	logx.Info("Server started",
		"network", v.conf.Network,
		"address", v.socket.Addr(),
		"protocol", factory.ProtocolID(),
		"loops", v.group.Len(),
		"ssl", binding.Secure != nil,
	)
	return nil
}

// Serve blocks until ctx is done or Close is called, then stops the loops.
func (v *Server) Serve(ctx context.Context) error {
	if !v.sync.IsOn() {
		return fmt.Errorf("server is not listening")
	}
	select {
	case <-ctx.Done():
	case <-v.done:
	}
	v.close()
	return nil
}

func (v *Server) Close() error {
	v.close()
	return nil
}

func (v *Server) close() {
	if !v.sync.Off() {
		return
	}
	close(v.done)

	if v.acceptor != nil {
		internal.LogErr("Server close acceptor", v.acceptor.Close())
		<-v.acceptor.Done()
	}
	if v.packet != nil {
		internal.LogErr("Server close packet channel", v.packet.Close())
	}
	if v.group != nil {
		v.group.Stop()
		v.group.Wait()
	}
	if v.socket != nil {
		internal.LogErr("Server close socket", v.socket.Close())
		if v.conf.Network == internal.NetUNIX {
			internal.LogErr("Server remove socket file", os.Remove(v.conf.Address))
		}
	}
	if v.tls != nil {
		internal.LogErr("Server close secure transport", v.tls.Close())
	}

	logx.Info("Server stopped", "network", v.conf.Network, "address", v.conf.Address)
}
