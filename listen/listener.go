/*
 *  Copyright (c) 2024 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package listen

import (
	"fmt"
	"net"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"go.osspkg.com/reactor/errs"
	"go.osspkg.com/reactor/internal"
)

const backlog = unix.SOMAXCONN

// Socket is a bound non-blocking descriptor. Stream sockets are already listening,
// udp sockets are ready for recvfrom.
type Socket struct {
	fd      int
	network string
	addr    net.Addr
	closed  atomic.Bool
}

func New(network, address string) (*Socket, error) {
	if err := internal.IsPassableNetwork(network); err != nil {
		return nil, errs.Bind("listen", err)
	}
	addr, err := internal.ResolveAddr(network, address)
	if err != nil {
		return nil, errs.Bind("resolve", err)
	}
	family, sa, err := internal.ToSockaddr(network, addr)
	if err != nil {
		return nil, errs.Bind("resolve", err)
	}

	typ := unix.SOCK_STREAM
	if network == internal.NetUDP {
		typ = unix.SOCK_DGRAM
	}
	fd, err := unix.Socket(family, typ|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, errs.Bind("socket", err)
	}

	if err = setup(fd, network, family, sa); err != nil {
		unix.Close(fd) //nolint: errcheck
		return nil, errs.Bind(address, err)
	}

	s := &Socket{fd: fd, network: network, addr: addr}
	if local, e := unix.Getsockname(fd); e == nil {
		if v := internal.FromSockaddr(network, local); v != nil {
			s.addr = v
		}
	}
	return s, nil
}

func setup(fd int, network string, family int, sa unix.Sockaddr) error {
	if family != unix.AF_UNIX {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
			return fmt.Errorf("reuseaddr: %w", err)
		}
	}
	if family == unix.AF_INET6 {
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 0); err != nil {
			return fmt.Errorf("v6only: %w", err)
		}
	}
	if err := unix.Bind(fd, sa); err != nil {
		return fmt.Errorf("bind: %w", err)
	}
	if network == internal.NetUDP {
		return nil
	}
	if err := unix.Listen(fd, backlog); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}

func (s *Socket) FD() int         { return s.fd }
func (s *Socket) Network() string { return s.network }
func (s *Socket) Addr() net.Addr  { return s.addr }
func (s *Socket) IsPacket() bool  { return s.network == internal.NetUDP }
func (s *Socket) IsClosed() bool  { return s.closed.Load() }

func (s *Socket) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return unix.Close(s.fd)
}
