/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package engine

import (
	"net"

	"go.osspkg.com/errors"

	"go.osspkg.com/reactor/errs"
	"go.osspkg.com/reactor/fd"
	"go.osspkg.com/reactor/internal"
)

// Attach moves an already connected conn into the group. The engine works on a
// private copy of the descriptor and conn is closed before Attach returns.
func (g *Group) Attach(conn net.Conn, b Binding) (*Session, error) {
	network := conn.LocalAddr().Network()
	switch network {
	case "tcp4", "tcp6":
		network = internal.NetTCP
	case "udp4", "udp6":
		network = internal.NetUDP
	case "unixgram", "unixpacket":
		network = internal.NetUNIX
	}
	if err := internal.IsPassableNetwork(network); err != nil {
		return nil, errs.IO("attach", errors.Wrap(err, conn.Close()))
	}

	packet := network == internal.NetUDP
	if err := b.validate(packet); err != nil {
		internal.LogErr("Attach close source conn", conn.Close())
		return nil, err
	}

	nfd, err := fd.Dup(conn)
	if err != nil {
		return nil, errs.IO("attach", errors.Wrap(err, conn.Close()))
	}
	internal.LogErr("Attach close source conn", conn.Close())

	return g.open(g.Next(), newFDSocket(nfd, network), b, packet, false)
}
