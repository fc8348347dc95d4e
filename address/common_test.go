/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package address_test

import (
	"fmt"
	"regexp"
	"testing"

	"go.osspkg.com/casecheck"

	"go.osspkg.com/reactor/address"
)

func TestUnit_Normalize(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{addr: "", want: "127.0.0.1:0"},
		{addr: ":", want: "0.0.0.0:0"},
		{addr: ":123", want: "0.0.0.0:123"},
		{addr: "1.1.1.1", want: "1.1.1.1:0"},
		{addr: "1.1.1.1:123", want: "1.1.1.1:123"},
		{addr: "localhost:123", want: "localhost:123"},
		{addr: "::", want: "[::]:0"},
		{addr: "[::]:123", want: "[::]:123"},
		{addr: "/tmp/unix.sock", want: "/tmp/unix.sock"},
	}
	for i, tt := range tests {
		t.Run(fmt.Sprintf("[Case%d]=>'%s'", i, tt.addr), func(t *testing.T) {
			casecheck.Equal(t, tt.want, address.Normalize(tt.addr))
		})
	}
}

func TestUnit_WithPort(t *testing.T) {
	casecheck.Equal(t, "0.0.0.0:8080", address.WithPort("", 8080))
	casecheck.Equal(t, "127.0.0.1:9000", address.WithPort("127.0.0.1:1", 9000))
	casecheck.Equal(t, "[::1]:9000", address.WithPort("[::1]", 9000))
	casecheck.Equal(t, "10.0.0.1:0", address.WithPort("10.0.0.1", 0))
}

func TestUnit_FreePort(t *testing.T) {
	for _, network := range []string{"tcp", "udp"} {
		got, err := address.FreePort(network, "127.0.0.1")
		casecheck.NoError(t, err)
		ok, err := regexp.MatchString(`^127\.0\.0\.1:[0-9]+$`, got)
		casecheck.NoError(t, err)
		casecheck.True(t, ok, got)
	}
}
