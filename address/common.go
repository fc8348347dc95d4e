/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package address

import (
	"net"
	"strconv"
	"strings"

	"go.osspkg.com/errors"
)

var (
	ErrResolveAddress = errors.New("resolve address")
)

// FreePort asks the kernel for an unused port on host.
func FreePort(network, host string) (string, error) {
	if len(host) == 0 {
		host = "127.0.0.1"
	}
	hostPort := net.JoinHostPort(host, "0")

	switch network {
	case "udp":
		c, err := net.ListenPacket("udp", hostPort)
		if err != nil {
			return hostPort, errors.Wrap(err, ErrResolveAddress)
		}
		v := c.LocalAddr().String()
		return v, c.Close()
	default:
		l, err := net.Listen("tcp", hostPort)
		if err != nil {
			return hostPort, errors.Wrap(err, ErrResolveAddress)
		}
		v := l.Addr().String()
		return v, l.Close()
	}
}

// WithPort builds a listen address from a host and a configured port, 0 keeps any port already in host.
func WithPort(host string, port int) string {
	if port <= 0 {
		return Normalize(host)
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	if len(host) == 0 {
		host = "0.0.0.0"
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// Normalize fills the missing parts of a listen address: empty host is the wildcard, empty port is 0
// (the kernel picks one). Unix socket paths are returned as is.
func Normalize(address string) string {
	if strings.Contains(address, "/") {
		return address
	}

	var host, port string

	switch true {
	case len(address) == 0:
		host = "127.0.0.1"

	case IsValidIP(address):
		host = address

	case address[0] == '[':
		if index := strings.IndexByte(address, ']'); index != -1 {
			host = address[1:index]
			port = strings.TrimPrefix(address[index+1:], ":")
		}

	case strings.Count(address, ":") == 1:
		index := strings.IndexByte(address, ':')
		host, port = address[:index], address[index+1:]

	default:
		host = address
	}

	if len(host) == 0 {
		host = "0.0.0.0"
	}
	if len(port) == 0 {
		port = "0"
	}

	return net.JoinHostPort(host, port)
}

func IsValidIP(ip string) bool {
	return net.ParseIP(ip) != nil
}
