/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package protodelim_test

import (
	"strings"
	"testing"

	"go.osspkg.com/casecheck"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"go.osspkg.com/reactor/codec/protodelim"
)

func TestUnit_RoundTrip(t *testing.T) {
	f := protodelim.NewFactory(func() proto.Message { return &wrapperspb.StringValue{} })
	enc, dec := f.NewEncoder(), f.NewDecoder()

	in := []*wrapperspb.StringValue{
		wrapperspb.String(""),
		wrapperspb.String("room-1"),
		wrapperspb.String(strings.Repeat("x", 300)),
	}

	var wire []byte
	for _, m := range in {
		b, err := enc.Encode(m)
		casecheck.NoError(t, err)
		wire = append(wire, b...)
	}

	half, consumed, err := dec.Decode(wire[:len(wire)-10])
	casecheck.NoError(t, err)
	casecheck.Equal(t, 2, len(half))

	rest, n, err := dec.Decode(wire[consumed:])
	casecheck.NoError(t, err)
	casecheck.Equal(t, len(wire)-consumed, n)
	casecheck.Equal(t, 1, len(rest))

	got := append(half, rest...)
	for i, m := range in {
		casecheck.True(t, proto.Equal(m, got[i].(proto.Message)))
	}
}

func TestUnit_TooLarge(t *testing.T) {
	f := protodelim.NewFactory(func() proto.Message { return &wrapperspb.StringValue{} })
	f.Max = 8
	_, err := f.NewEncoder().Encode(wrapperspb.String("0123456789"))
	casecheck.True(t, err != nil)

	_, _, err = f.NewDecoder().Decode([]byte{0x7f})
	casecheck.True(t, err != nil)
}
