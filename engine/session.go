/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package engine

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"go.osspkg.com/errors"

	"go.osspkg.com/reactor/codec"
	"go.osspkg.com/reactor/errs"
)

// Session is the application view of a channel. All methods are safe from any goroutine.
type Session struct {
	ch  *Channel
	seq atomic.Uint64

	mux        sync.Mutex
	waiters    map[uint64]chan any
	released   bool
	attachment any
	done       chan struct{}
}

func newSession(c *Channel) *Session {
	return &Session{ch: c, waiters: make(map[uint64]chan any), done: make(chan struct{})}
}

func (s *Session) ID() uint64           { return s.ch.id }
func (s *Session) Channel() *Channel    { return s.ch }
func (s *Session) LocalAddr() net.Addr  { return s.ch.LocalAddr() }
func (s *Session) RemoteAddr() net.Addr { return s.ch.RemoteAddr() }
func (s *Session) IsOpen() bool         { return s.ch.isOpen() }
func (s *Session) IsWeak() bool         { return s.ch.IsWeak() }
func (s *Session) Protocol() string     { return s.ch.Protocol() }
func (s *Session) ProtocolID() string   { return s.ch.factory.ProtocolID() }
func (s *Session) Close() error         { return s.ch.Close() }

// Done is closed once the channel has released its socket.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) Attachment() any {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.attachment
}

func (s *Session) SetAttachment(v any) {
	s.mux.Lock()
	s.attachment = v
	s.mux.Unlock()
}

// Flush encodes msg on the calling goroutine and offers it to the channel.
// Completion is reported to the handler through OnFutureSent or OnExceptionCaught.
func (s *Session) Flush(msg any) error {
	b, err := s.ch.encoder.Encode(msg)
	if err != nil {
		return s.encodeFailed(NewWriteFuture(msg, nil), err)
	}
	return s.ch.Offer(NewWriteFuture(msg, b))
}

// FlushFuture offers a caller built future, the message is encoded when no payload is set.
func (s *Session) FlushFuture(f *WriteFuture) error {
	if f.buf == nil && f.Message != nil {
		b, err := s.ch.encoder.Encode(f.Message)
		if err != nil {
			return s.encodeFailed(f, err)
		}
		f.buf = b
	}
	return s.ch.Offer(f)
}

// encodeFailed completes f like any other rejected offer.
func (s *Session) encodeFailed(f *WriteFuture, cause error) error {
	err := errs.Encode(fmt.Errorf("%T: %w", f.Message, cause))
	s.ch.bindContinuations(f)
	f.fail(err)
	return err
}

// Request sends req with a fresh correlation id and waits for the message carrying
// the same id. It blocks, so it must not be called from a handler callback.
func (s *Session) Request(ctx context.Context, req codec.Correlated) (any, error) {
	id := s.seq.Add(1)
	req.SetCorrelationID(id)

	wait := make(chan any, 1)
	if !s.await(id, wait) {
		return nil, errs.Closed("request")
	}
	defer s.forget(id)

	if err := s.Flush(req); err != nil {
		return nil, err
	}

	select {
	case msg, ok := <-wait:
		if !ok {
			return nil, errs.Closed("request")
		}
		return msg, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, errs.Timeout("request")
		}
		return nil, ctx.Err()
	}
}

func (s *Session) await(id uint64, wait chan any) bool {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.released {
		return false
	}
	s.waiters[id] = wait
	return true
}

func (s *Session) forget(id uint64) {
	s.mux.Lock()
	delete(s.waiters, id)
	s.mux.Unlock()
}

func (s *Session) resolve(id uint64, msg any) bool {
	s.mux.Lock()
	wait, ok := s.waiters[id]
	delete(s.waiters, id)
	s.mux.Unlock()

	if ok {
		wait <- msg
	}
	return ok
}

func (s *Session) release() {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.released {
		return
	}
	s.released = true
	for id, wait := range s.waiters {
		close(wait)
		delete(s.waiters, id)
	}
	close(s.done)
}

func typeName(v any) string {
	return fmt.Sprintf("%T", v)
}
