/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package errs

import (
	"fmt"
	"io"
	"strings"
	"syscall"

	"go.osspkg.com/errors"
)

type Kind uint8

const (
	KindUnknown Kind = iota
	KindClosedChannel
	KindBackpressure
	KindIO
	KindProtocolDecode
	KindHandshake
	KindBind
	KindTimeout
	KindProtocolEncode
)

func (k Kind) String() string {
	switch k {
	case KindClosedChannel:
		return "closed channel"
	case KindBackpressure:
		return "backpressure"
	case KindIO:
		return "io"
	case KindProtocolDecode:
		return "protocol decode"
	case KindHandshake:
		return "handshake"
	case KindBind:
		return "bind"
	case KindTimeout:
		return "timeout"
	case KindProtocolEncode:
		return "protocol encode"
	default:
		return "unknown"
	}
}

var (
	ErrClosedChannel  = errors.New("channel closed")
	ErrBackpressure   = errors.New("outbound queue over capacity")
	ErrTimeout        = errors.New("deadline exceeded")
	ErrLoopStopped    = errors.New("event loop stopped")
	ErrNotEstablished = errors.New("secure session not established")
)

// Error carries the failure kind through continuations instead of unwinding across the loop.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if len(e.Op) == 0 {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func Closed(op string) error {
	return &Error{Kind: KindClosedChannel, Op: op, Err: ErrClosedChannel}
}

func Backpressure(op string) error {
	return &Error{Kind: KindBackpressure, Op: op, Err: ErrBackpressure}
}

func IO(op string, err error) error {
	return New(KindIO, op, err)
}

func Decode(err error) error {
	return New(KindProtocolDecode, "decode", err)
}

func Encode(err error) error {
	return New(KindProtocolEncode, "encode", err)
}

func Handshake(op string, err error) error {
	return New(KindHandshake, op, err)
}

func Bind(op string, err error) error {
	return New(KindBind, op, err)
}

func Timeout(op string) error {
	return &Error{Kind: KindTimeout, Op: op, Err: ErrTimeout}
}

// KindOf walks the wrap chain and returns the first typed kind found.
func KindOf(err error) Kind {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Kind
		}
		switch v := err.(type) {
		case interface{ Unwrap() error }:
			err = v.Unwrap()
		case interface{ Unwrap() []error }:
			for _, item := range v.Unwrap() {
				if k := KindOf(item); k != KindUnknown {
					return k
				}
			}
			return KindUnknown
		default:
			return KindUnknown
		}
	}
	return KindUnknown
}

func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsClosed reports errors that only mean the peer or the descriptor went away.
func IsClosed(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) ||
		errors.Is(err, ErrClosedChannel) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EBADF) ||
		strings.Contains(err.Error(), "use of closed network connection") {
		return true
	}
	return false
}
