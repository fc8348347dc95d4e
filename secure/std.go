/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package secure

import (
	"context"
	"crypto/tls"
	"sync"
	"sync/atomic"
	"time"

	"go.osspkg.com/do"
	"go.osspkg.com/errors"

	"go.osspkg.com/reactor/errs"
)

const plaintextChunk = 16 << 10

type stdTransport struct {
	conf  *Config
	role  Role
	tls   *tls.Config
	store *keyStore
}

func newStdTransport(conf *Config, role Role, tc *tls.Config, store *keyStore) Transport {
	return &stdTransport{conf: conf, role: role, tls: tc, store: store}
}

func (t *stdTransport) Provider() Provider { return ProviderStandard }
func (t *stdTransport) Role() Role         { return t.role }

func (t *stdTransport) NewSession(hooks Hooks) (Session, error) {
	s := &stdSession{
		role:    t.role,
		hooks:   hooks,
		timeout: t.conf.HandshakeTimeout,
		policy:  t.conf.Negotiation,
		offered: len(t.conf.NextProtos) > 0,
	}
	s.pipe = newPipe(hooks.Local, hooks.Remote, hooks.Output)
	if t.role == RoleServer {
		s.conn = tls.Server(s.pipe, t.tls)
	} else {
		s.conn = tls.Client(s.pipe, t.tls)
	}
	return s, nil
}

func (t *stdTransport) Close() error {
	return closeStore(t.store)
}

// stdSession drives crypto/tls from a pump goroutine over an in-memory pipe.
// All ciphertext, handshake and application records alike, leaves through pipe.out in order.
type stdSession struct {
	role    Role
	hooks   Hooks
	timeout time.Duration
	policy  Negotiation
	offered bool

	pipe  *pipe
	conn  *tls.Conn
	state atomic.Int32
	proto atomic.Pointer[string]
	seal  sync.Mutex
}

func (s *stdSession) State() State {
	return State(s.state.Load())
}

func (s *stdSession) Protocol() string {
	if p := s.proto.Load(); p != nil {
		return *p
	}
	return ""
}

func (s *stdSession) Start() {
	if !s.state.CompareAndSwap(int32(StateNotStarted), int32(StateHandshaking)) {
		return
	}
	do.Async(s.pump)
}

func (s *stdSession) Feed(b []byte) {
	s.Start()
	s.pipe.Feed(b)
}

func (s *stdSession) Pending() []byte {
	s.Start()
	return s.pipe.Take()
}

func (s *stdSession) Seal(b []byte) ([]byte, error) {
	if s.State() != StateEstablished {
		return nil, errs.Handshake("seal", errs.ErrNotEstablished)
	}
	s.seal.Lock()
	defer s.seal.Unlock()
	if _, err := s.conn.Write(b); err != nil {
		return nil, errs.IO("seal", err)
	}
	return s.pipe.Take(), nil
}

func (s *stdSession) Close() error {
	if State(s.state.Swap(int32(StateClosed))) == StateClosed {
		return nil
	}
	return s.pipe.Close()
}

func (s *stdSession) pump() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	err := s.conn.HandshakeContext(ctx)
	cancel()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			s.fail(errs.Timeout("handshake"))
		} else {
			s.fail(errs.Handshake("handshake", err))
		}
		return
	}

	proto := s.conn.ConnectionState().NegotiatedProtocol
	if s.role == RoleClient && s.offered && len(proto) == 0 && s.policy == NegotiationFail {
		s.fail(errs.Handshake("alpn", ErrNoProtocolOverlap))
		return
	}
	s.proto.Store(&proto)

	if !s.state.CompareAndSwap(int32(StateHandshaking), int32(StateEstablished)) {
		return
	}
	if s.hooks.Established != nil {
		s.hooks.Established(proto)
	}

	buf := make([]byte, plaintextChunk)
	for {
		n, err := s.conn.Read(buf)
		if n > 0 && s.hooks.Plaintext != nil {
			b := make([]byte, n)
			copy(b, buf[:n])
			s.hooks.Plaintext(b)
		}
		if err != nil {
			if s.State() != StateClosed && s.hooks.Error != nil {
				s.hooks.Error(errs.IO("secure read", err))
			}
			return
		}
	}
}

func (s *stdSession) fail(err error) {
	if !s.state.CompareAndSwap(int32(StateHandshaking), int32(StateFailed)) {
		return
	}
	if s.hooks.Error != nil {
		s.hooks.Error(err)
	}
}
