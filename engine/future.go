/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package engine

import (
	"sync/atomic"
	"time"
)

// WriteFuture is an encoded outbound message and its continuations. Exactly one of
// OnSuccess or OnFailure runs, on the owning loop unless the offer was rejected.
type WriteFuture struct {
	Message   any
	OnSuccess func(msg any)
	OnFailure func(msg any, err error)

	buf     []byte
	written int
	raw     bool
	done    atomic.Bool
}

func NewWriteFuture(msg any, payload []byte) *WriteFuture {
	return &WriteFuture{Message: msg, buf: payload}
}

func rawFuture(b []byte) *WriteFuture {
	return &WriteFuture{buf: b, raw: true}
}

func (f *WriteFuture) Payload() []byte { return f.buf }
func (f *WriteFuture) Written() int    { return f.written }
func (f *WriteFuture) Done() bool      { return f.done.Load() }

func (f *WriteFuture) pending() []byte {
	return f.buf[f.written:]
}

func (f *WriteFuture) remaining() int {
	return len(f.buf) - f.written
}

// replace swaps the payload for its wire form, only before the first byte is written.
func (f *WriteFuture) replace(b []byte) {
	f.buf, f.written = b, 0
}

func (f *WriteFuture) succeed() bool {
	if !f.done.CompareAndSwap(false, true) {
		return false
	}
	f.buf = nil
	if f.OnSuccess != nil {
		f.OnSuccess(f.Message)
	}
	return true
}

func (f *WriteFuture) fail(err error) bool {
	if !f.done.CompareAndSwap(false, true) {
		return false
	}
	f.buf = nil
	if f.OnFailure != nil {
		f.OnFailure(f.Message, err)
	}
	return true
}

// ReadFuture is one decoded inbound message.
type ReadFuture struct {
	Message       any
	CorrelationID uint64
	Correlated    bool
	ReceivedAt    time.Time
}
