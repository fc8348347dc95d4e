/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package frame

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"go.osspkg.com/errors"

	"go.osspkg.com/reactor/codec"
)

const ProtocolID = "frame"

var (
	ErrTooLarge  = errors.New("frame: payload too large")
	ErrMalformed = errors.New("frame: malformed body")
)

var _ codec.Correlated = (*Frame)(nil)

var encoderPool = sync.Pool{New: func() any {
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest)) //nolint: errcheck
	return enc
}}

// Frame is one request, response or notification. ID 0 means "not correlated".
type Frame struct {
	ID      uint64
	Service string
	Payload []byte
}

func NewRequest(service string, payload []byte) *Frame {
	return &Frame{Service: service, Payload: payload}
}

// Reply keeps the correlation of the request.
func (f *Frame) Reply(payload []byte) *Frame {
	return &Frame{ID: f.ID, Service: f.Service, Payload: payload}
}

func (f *Frame) CorrelationID() uint64      { return f.ID }
func (f *Frame) SetCorrelationID(id uint64) { f.ID = id }

func (f *Frame) Equal(o *Frame) bool {
	return f.ID == o.ID && f.Service == o.Service && bytes.Equal(f.Payload, o.Payload)
}

type Option func(*Factory)

// WithMaxPayload limits the body and the decompressed payload size.
func WithMaxPayload(n int) Option {
	return func(f *Factory) {
		if n > 0 && n <= longMaxLen {
			f.maxPayload = n
		}
	}
}

// WithCompression compresses payloads larger than threshold bytes with zstd.
func WithCompression(threshold int) Option {
	return func(f *Factory) {
		f.compressAbove = threshold
	}
}

type Factory struct {
	maxPayload    int
	compressAbove int
	decoders      *sync.Pool
}

func NewFactory(opts ...Option) *Factory {
	f := &Factory{maxPayload: 4 << 20, compressAbove: -1}
	for _, opt := range opts {
		opt(f)
	}
	// inflation stops at maxPayload, the decoder never allocates past it
	limit := uint64(f.maxPayload)
	f.decoders = &sync.Pool{New: func() any {
		dec, _ := zstd.NewReader(nil, //nolint: errcheck
			zstd.WithDecoderConcurrency(1),
			zstd.WithDecoderMaxMemory(limit),
		)
		return dec
	}}
	return f
}

func (f *Factory) ProtocolID() string { return ProtocolID }

func (f *Factory) NewDecoder() codec.Decoder {
	return &decoder{max: f.maxPayload, pool: f.decoders}
}

func (f *Factory) NewEncoder() codec.Encoder {
	return &encoder{max: f.maxPayload, compressAbove: f.compressAbove}
}

type encoder struct {
	max           int
	compressAbove int
}

func (e *encoder) Encode(msg any) ([]byte, error) {
	var fr *Frame
	switch v := msg.(type) {
	case *Frame:
		fr = v
	case Frame:
		fr = &v
	default:
		return nil, fmt.Errorf("frame: %w: %T", codec.ErrUnsupportedType, msg)
	}

	payload := fr.Payload
	compressed := e.compressAbove >= 0 && len(payload) > e.compressAbove
	if compressed {
		enc := encoderPool.Get().(*zstd.Encoder)
		payload = enc.EncodeAll(payload, nil)
		encoderPool.Put(enc)
	}

	body := make([]byte, 0, 2*binary.MaxVarintLen64+len(fr.Service)+len(payload))
	body = binary.AppendUvarint(body, fr.ID)
	body = binary.AppendUvarint(body, uint64(len(fr.Service)))
	body = append(body, fr.Service...)
	body = append(body, payload...)
	if len(body) > e.max {
		return nil, ErrTooLarge
	}

	out, err := appendHeader(make([]byte, 0, 4+len(body)), len(body), compressed)
	if err != nil {
		return nil, err
	}
	return append(out, body...), nil
}

type decoder struct {
	max  int
	pool *sync.Pool
}

func (d *decoder) Decode(buf []byte) ([]any, int, error) {
	var (
		msgs []any
		off  int
	)
	for {
		used, length, compressed, err := parseHeader(buf[off:])
		if err != nil {
			return msgs, off, err
		}
		if used == 0 {
			return msgs, off, nil
		}
		if length > d.max {
			return msgs, off, ErrTooLarge
		}
		if len(buf)-off < used+length {
			return msgs, off, nil
		}
		fr, err := d.parseBody(buf[off+used:off+used+length], compressed)
		if err != nil {
			return msgs, off, err
		}
		msgs = append(msgs, fr)
		off += used + length
	}
}

func (d *decoder) parseBody(body []byte, compressed bool) (*Frame, error) {
	id, n := binary.Uvarint(body)
	if n <= 0 {
		return nil, ErrMalformed
	}
	body = body[n:]
	slen, n := binary.Uvarint(body)
	if n <= 0 || slen > uint64(len(body)-n) {
		return nil, ErrMalformed
	}
	body = body[n:]
	fr := &Frame{ID: id, Service: string(body[:slen])}
	payload := body[slen:]

	if compressed {
		out, err := d.inflate(payload)
		if err != nil {
			return nil, err
		}
		fr.Payload = out
		return fr, nil
	}

	fr.Payload = make([]byte, len(payload))
	copy(fr.Payload, payload)
	return fr, nil
}

func (d *decoder) inflate(payload []byte) ([]byte, error) {
	var h zstd.Header
	if err := h.Decode(payload); err != nil {
		return nil, fmt.Errorf("frame: decompress: %w", err)
	}
	if h.HasFCS && h.FrameContentSize > uint64(d.max) {
		return nil, ErrTooLarge
	}

	dec := d.pool.Get().(*zstd.Decoder)
	out, err := dec.DecodeAll(payload, nil)
	d.pool.Put(dec)
	switch {
	case errors.Is(err, zstd.ErrDecoderSizeExceeded), errors.Is(err, zstd.ErrWindowSizeExceeded):
		return nil, ErrTooLarge
	case err != nil:
		return nil, fmt.Errorf("frame: decompress: %w", err)
	case len(out) > d.max:
		return nil, ErrTooLarge
	}
	return out, nil
}
