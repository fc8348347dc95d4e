/*
 *  Copyright (c) 2024 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package internal

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

const (
	NetTCP  = "tcp"
	NetUDP  = "udp"
	NetUNIX = "unix"

	UDPPacketSize = 65507
)

func IsPassableNetwork(network string) error {
	switch network {
	case NetTCP, NetUDP, NetUNIX:
		return nil
	default:
		return fmt.Errorf("invalid network type, use: tcp, udp, unix")
	}
}

func ResolveAddr(network, address string) (net.Addr, error) {
	switch network {
	case NetTCP:
		return net.ResolveTCPAddr(network, address)
	case NetUDP:
		return net.ResolveUDPAddr(network, address)
	case NetUNIX:
		return net.ResolveUnixAddr(network, address)
	default:
		return nil, IsPassableNetwork(network)
	}
}

func ToSockaddr(network string, addr net.Addr) (family int, sa unix.Sockaddr, err error) {
	switch v := addr.(type) {
	case *net.TCPAddr:
		family, sa = ipSockaddr(v.IP, v.Port, v.Zone)
	case *net.UDPAddr:
		family, sa = ipSockaddr(v.IP, v.Port, v.Zone)
	case *net.UnixAddr:
		family, sa = unix.AF_UNIX, &unix.SockaddrUnix{Name: v.Name}
	default:
		err = fmt.Errorf("%s: unsupported address type %T", network, addr)
	}
	return
}

func ipSockaddr(ip net.IP, port int, zone string) (int, unix.Sockaddr) {
	if ip4 := ip.To4(); ip4 != nil || len(ip) == 0 {
		sa := &unix.SockaddrInet4{Port: port}
		if ip4 != nil {
			copy(sa.Addr[:], ip4)
		}
		return unix.AF_INET, sa
	}
	sa := &unix.SockaddrInet6{Port: port}
	copy(sa.Addr[:], ip.To16())
	if len(zone) > 0 {
		if ifi, err := net.InterfaceByName(zone); err == nil {
			sa.ZoneId = uint32(ifi.Index)
		}
	}
	return unix.AF_INET6, sa
}

func FromSockaddr(network string, sa unix.Sockaddr) net.Addr {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		ip := net.IPv4(v.Addr[0], v.Addr[1], v.Addr[2], v.Addr[3])
		if network == NetUDP {
			return &net.UDPAddr{IP: ip, Port: v.Port}
		}
		return &net.TCPAddr{IP: ip, Port: v.Port}
	case *unix.SockaddrInet6:
		ip := make(net.IP, net.IPv6len)
		copy(ip, v.Addr[:])
		if network == NetUDP {
			return &net.UDPAddr{IP: ip, Port: v.Port}
		}
		return &net.TCPAddr{IP: ip, Port: v.Port}
	case *unix.SockaddrUnix:
		return &net.UnixAddr{Name: v.Name, Net: NetUNIX}
	default:
		return nil
	}
}
