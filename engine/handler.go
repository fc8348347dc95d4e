/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package engine

import (
	"go.osspkg.com/logx"

	"go.osspkg.com/reactor/errs"
)

type IOState uint8

const (
	IOStateRead IOState = iota
	IOStateWrite
	IOStateHandle
	IOStateHandshake
)

func (s IOState) String() string {
	switch s {
	case IOStateRead:
		return "READ"
	case IOStateWrite:
		return "WRITE"
	case IOStateHandle:
		return "HANDLE"
	case IOStateHandshake:
		return "HANDSHAKE"
	default:
		return "UNKNOWN"
	}
}

type (
	// IOEventHandle receives every channel event on the owning loop goroutine.
	// Implementations must not block.
	IOEventHandle interface {
		OnAccept(s *Session, f *ReadFuture)
		OnExceptionCaught(s *Session, msg any, err error, state IOState)
		OnFutureSent(s *Session, msg any)
	}

	SessionEventListener interface {
		OnOpened(s *Session)
		OnClosed(s *Session)
	}

	ProtocolListener interface {
		OnProtocolNegotiated(s *Session, protocol string)
	}
)

// HandleAdaptor logs what the embedding handler does not override.
type HandleAdaptor struct{}

func (HandleAdaptor) OnAccept(s *Session, f *ReadFuture) {
	logx.Debug("Session message dropped", "id", s.ID(), "remote", s.RemoteAddr(), "type", typeName(f.Message))
}

func (HandleAdaptor) OnExceptionCaught(s *Session, msg any, err error, state IOState) {
	args := []any{"err", err, "id", s.ID(), "remote", s.RemoteAddr(), "state", state}
	if msg != nil {
		args = append(args, "type", typeName(msg))
	}
	if errs.IsClosed(err) {
		logx.Debug("Session exception", args...)
		return
	}
	logx.Warn("Session exception", args...)
}

func (HandleAdaptor) OnFutureSent(*Session, any) {}

func (HandleAdaptor) OnOpened(s *Session) {
	logx.Debug("Session opened", "id", s.ID(), "remote", s.RemoteAddr())
}

func (HandleAdaptor) OnClosed(s *Session) {
	logx.Debug("Session closed", "id", s.ID(), "remote", s.RemoteAddr())
}

// HandlerFunc adapts a plain function to IOEventHandle.
type HandlerFunc func(s *Session, f *ReadFuture)

func (fn HandlerFunc) OnAccept(s *Session, f *ReadFuture) { fn(s, f) }
func (HandlerFunc) OnExceptionCaught(s *Session, msg any, err error, state IOState) {
	HandleAdaptor{}.OnExceptionCaught(s, msg, err, state)
}
func (HandlerFunc) OnFutureSent(*Session, any) {}
