/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package protodelim

import (
	"fmt"
	"io"

	"go.osspkg.com/errors"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"

	"go.osspkg.com/reactor/codec"
)

const ProtocolID = "protobuf"

var ErrTooLarge = errors.New("protodelim: message too large")

// Factory frames protobuf messages with a varint length prefix. New returns the empty message
// every inbound frame is unmarshalled into.
type Factory struct {
	New func() proto.Message
	Max int
}

func NewFactory(newMsg func() proto.Message) *Factory {
	return &Factory{New: newMsg, Max: 4 << 20}
}

func (f *Factory) ProtocolID() string        { return ProtocolID }
func (f *Factory) NewDecoder() codec.Decoder { return &decoder{f: f} }
func (f *Factory) NewEncoder() codec.Encoder { return &encoder{max: f.Max} }

type encoder struct {
	max int
}

func (e *encoder) Encode(msg any) ([]byte, error) {
	m, ok := msg.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("protodelim: %w: %T", codec.ErrUnsupportedType, msg)
	}
	size := proto.Size(m)
	if size > e.max {
		return nil, ErrTooLarge
	}
	b := protowire.AppendVarint(make([]byte, 0, protowire.SizeVarint(uint64(size))+size), uint64(size))
	return proto.MarshalOptions{}.MarshalAppend(b, m)
}

type decoder struct {
	f *Factory
}

func (d *decoder) Decode(buf []byte) ([]any, int, error) {
	var (
		msgs []any
		off  int
	)
	for off < len(buf) {
		size, n := protowire.ConsumeVarint(buf[off:])
		if n < 0 {
			if err := protowire.ParseError(n); errors.Is(err, io.ErrUnexpectedEOF) {
				return msgs, off, nil
			} else {
				return msgs, off, fmt.Errorf("protodelim: length: %w", err)
			}
		}
		if size > uint64(d.f.Max) {
			return msgs, off, ErrTooLarge
		}
		if uint64(len(buf)-off-n) < size {
			return msgs, off, nil
		}
		m := d.f.New()
		if err := proto.Unmarshal(buf[off+n:off+n+int(size)], m); err != nil {
			return msgs, off, fmt.Errorf("protodelim: unmarshal: %w", err)
		}
		msgs = append(msgs, m)
		off += n + int(size)
	}
	return msgs, off, nil
}
