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

	"golang.org/x/sys/unix"

	"go.osspkg.com/reactor/internal"
)

// Socket is the non-blocking primitive under a channel. Read and Write return (0, nil)
// when the call would block, Read returns io.EOF once the peer is gone.
type Socket interface {
	FD() int
	Read(b []byte) (int, error)
	Write(b []byte) (int, error)
	Close() error
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
}

type fdSocket struct {
	fd     int
	local  net.Addr
	remote net.Addr
	closed atomic.Bool
}

func newFDSocket(fd int, network string) *fdSocket {
	s := &fdSocket{fd: fd}
	if sa, err := unix.Getsockname(fd); err == nil {
		s.local = internal.FromSockaddr(network, sa)
	}
	if sa, err := unix.Getpeername(fd); err == nil {
		s.remote = internal.FromSockaddr(network, sa)
	}
	return s
}

func (s *fdSocket) FD() int              { return s.fd }
func (s *fdSocket) LocalAddr() net.Addr  { return s.local }
func (s *fdSocket) RemoteAddr() net.Addr { return s.remote }

func (s *fdSocket) Read(b []byte) (int, error) {
	for {
		n, err := unix.Read(s.fd, b)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			return 0, nil
		case err != nil:
			return 0, err
		case n == 0 && len(b) > 0:
			return 0, io.EOF
		}
		return n, nil
	}
}

func (s *fdSocket) Write(b []byte) (int, error) {
	for {
		n, err := unix.Write(s.fd, b)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			return 0, nil
		case err != nil:
			return 0, err
		}
		return n, nil
	}
}

func (s *fdSocket) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return unix.Close(s.fd)
}

// packetSocket serves an unconnected datagram descriptor, replies go to the last sender.
type packetSocket struct {
	fd      int
	network string
	local   net.Addr
	peer    unix.Sockaddr
	remote  atomic.Pointer[addrBox]
	owned   bool
	closed  atomic.Bool
}

type addrBox struct {
	addr net.Addr
}

func newPacketSocket(fd int, network string, owned bool) *packetSocket {
	s := &packetSocket{fd: fd, network: network, owned: owned}
	if sa, err := unix.Getsockname(fd); err == nil {
		s.local = internal.FromSockaddr(network, sa)
	}
	return s
}

func (s *packetSocket) FD() int             { return s.fd }
func (s *packetSocket) LocalAddr() net.Addr { return s.local }
func (s *packetSocket) RemoteAddr() net.Addr {
	if v := s.remote.Load(); v != nil {
		return v.addr
	}
	return nil
}

func (s *packetSocket) Read(b []byte) (int, error) {
	for {
		n, from, err := unix.Recvfrom(s.fd, b, 0)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			return 0, nil
		case err != nil:
			return 0, err
		}
		if from != nil {
			s.peer = from
			s.remote.Store(&addrBox{addr: internal.FromSockaddr(s.network, from)})
		}
		return n, nil
	}
}

func (s *packetSocket) Write(b []byte) (int, error) {
	if s.peer == nil {
		return 0, fmt.Errorf("packet socket: no peer to reply to")
	}
	if len(b) > internal.UDPPacketSize {
		return 0, fmt.Errorf("packet socket: datagram of %d bytes exceeds %d", len(b), internal.UDPPacketSize)
	}
	for {
		err := unix.Sendto(s.fd, b, 0, s.peer)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			return 0, nil
		case err != nil:
			return 0, err
		}
		return len(b), nil
	}
}

func (s *packetSocket) Close() error {
	if !s.closed.CompareAndSwap(false, true) || !s.owned {
		return nil
	}
	return unix.Close(s.fd)
}
