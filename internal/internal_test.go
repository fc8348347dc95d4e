/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package internal_test

import (
	"crypto/tls"
	"net"
	"testing"
	"time"

	"go.osspkg.com/casecheck"

	"go.osspkg.com/reactor/internal"
)

func TestUnit_Compact(t *testing.T) {
	b := []byte("hello world")
	b = internal.Compact(b, 6)
	casecheck.Equal(t, "world", string(b))
	b = internal.Compact(b, 5)
	casecheck.Equal(t, 0, len(b))
	b = internal.Compact([]byte("abc"), 0)
	casecheck.Equal(t, "abc", string(b))
}

func TestUnit_CipherSuiteIDs(t *testing.T) {
	ids, err := internal.CipherSuiteIDs([]string{
		"TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256",
		"TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384",
	})
	casecheck.NoError(t, err)
	casecheck.Equal(t, []uint16{
		tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
		tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	}, ids)

	_, err = internal.CipherSuiteIDs([]string{"TLS_NOPE"})
	casecheck.True(t, err != nil)
}

func TestUnit_Sockaddr(t *testing.T) {
	addr := &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 8080}
	_, sa, err := internal.ToSockaddr(internal.NetTCP, addr)
	casecheck.NoError(t, err)
	back := internal.FromSockaddr(internal.NetTCP, sa)
	casecheck.Equal(t, "127.0.0.1:8080", back.String())

	addr6 := &net.UDPAddr{IP: net.ParseIP("::1"), Port: 53}
	_, sa, err = internal.ToSockaddr(internal.NetUDP, addr6)
	casecheck.NoError(t, err)
	casecheck.Equal(t, "[::1]:53", internal.FromSockaddr(internal.NetUDP, sa).String())
}

func TestUnit_NotZero(t *testing.T) {
	casecheck.Equal(t, 64*time.Millisecond, internal.NotZero(0, 64*time.Millisecond))
	casecheck.Equal(t, 5, internal.Clamp(10, 1, 5))
	casecheck.True(t, !internal.Expired(time.Now(), time.Time{}))
}
