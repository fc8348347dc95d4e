/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package line

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.osspkg.com/errors"

	"go.osspkg.com/reactor/codec"
)

const ProtocolID = "line"

var (
	ErrLineTooLong = errors.New("line: too long")
	ErrInvalidUTF8 = errors.New("line: invalid utf-8")
	ErrLineBreak   = errors.New("line: message contains a line break")
)

// Factory frames UTF-8 text by '\n', a trailing '\r' is dropped.
type Factory struct {
	max int
}

func NewFactory(maxLen int) *Factory {
	if maxLen <= 0 {
		maxLen = 64 << 10
	}
	return &Factory{max: maxLen}
}

func (f *Factory) ProtocolID() string        { return ProtocolID }
func (f *Factory) NewDecoder() codec.Decoder { return &decoder{max: f.max} }
func (f *Factory) NewEncoder() codec.Encoder { return encoder{} }

type encoder struct{}

func (encoder) Encode(msg any) ([]byte, error) {
	var s string
	switch v := msg.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	case fmt.Stringer:
		s = v.String()
	default:
		return nil, fmt.Errorf("line: %w: %T", codec.ErrUnsupportedType, msg)
	}
	// anything the decoder would strip or reject never reaches the wire
	if strings.ContainsRune(s, '\n') || strings.HasSuffix(s, "\r") {
		return nil, ErrLineBreak
	}
	if !utf8.ValidString(s) {
		return nil, ErrInvalidUTF8
	}
	return append([]byte(s), '\n'), nil
}

type decoder struct {
	max int
}

func (d *decoder) Decode(buf []byte) ([]any, int, error) {
	var (
		msgs []any
		off  int
	)
	for {
		i := bytes.IndexByte(buf[off:], '\n')
		if i < 0 {
			if len(buf)-off > d.max {
				return msgs, off, ErrLineTooLong
			}
			return msgs, off, nil
		}
		if i > d.max {
			return msgs, off, ErrLineTooLong
		}
		b := bytes.TrimSuffix(buf[off:off+i], []byte{'\r'})
		if !utf8.Valid(b) {
			return msgs, off, ErrInvalidUTF8
		}
		msgs = append(msgs, string(b))
		off += i + 1
	}
}
