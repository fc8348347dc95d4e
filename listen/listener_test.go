/*
 *  Copyright (c) 2024 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package listen_test

import (
	"net"
	"path/filepath"
	"testing"

	"go.osspkg.com/casecheck"

	"go.osspkg.com/reactor/errs"
	"go.osspkg.com/reactor/listen"
)

func TestUnit_ListenTCP(t *testing.T) {
	s, err := listen.New("tcp", "127.0.0.1:0")
	casecheck.NoError(t, err)
	defer s.Close() //nolint: errcheck

	addr, ok := s.Addr().(*net.TCPAddr)
	casecheck.True(t, ok)
	casecheck.True(t, addr.Port > 0)
	casecheck.True(t, !s.IsPacket())

	conn, err := net.Dial("tcp", addr.String())
	casecheck.NoError(t, err)
	casecheck.NoError(t, conn.Close())

	casecheck.NoError(t, s.Close())
	casecheck.NoError(t, s.Close())
	casecheck.True(t, s.IsClosed())
}

func TestUnit_ListenUDPAndUnix(t *testing.T) {
	u, err := listen.New("udp", "127.0.0.1:0")
	casecheck.NoError(t, err)
	casecheck.True(t, u.IsPacket())
	casecheck.NoError(t, u.Close())

	path := filepath.Join(t.TempDir(), "r.sock")
	x, err := listen.New("unix", path)
	casecheck.NoError(t, err)
	casecheck.Equal(t, path, x.Addr().String())
	casecheck.NoError(t, x.Close())
}

func TestUnit_BindError(t *testing.T) {
	s, err := listen.New("tcp", "127.0.0.1:0")
	casecheck.NoError(t, err)
	defer s.Close() //nolint: errcheck

	_, err = listen.New("tcp", s.Addr().String())
	casecheck.True(t, errs.Is(err, errs.KindBind))

	_, err = listen.New("quic", "127.0.0.1:0")
	casecheck.True(t, errs.Is(err, errs.KindBind))
}
