/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package secure

import (
	"io"
	"net"
	"sync"
	"time"
)

type pipeAddr struct{}

func (pipeAddr) Network() string { return "secure" }
func (pipeAddr) String() string  { return "secure" }

// pipe is the record transport seen by crypto/tls. Ciphertext from the socket is fed in,
// ciphertext produced by the TLS engine is collected for the flusher.
type pipe struct {
	mux    sync.Mutex
	cond   *sync.Cond
	in     []byte
	out    []byte
	closed bool

	onOutput func()
	local    net.Addr
	remote   net.Addr
}

func newPipe(local, remote net.Addr, onOutput func()) *pipe {
	if local == nil {
		local = pipeAddr{}
	}
	if remote == nil {
		remote = pipeAddr{}
	}
	p := &pipe{onOutput: onOutput, local: local, remote: remote}
	p.cond = sync.NewCond(&p.mux)
	return p
}

func (p *pipe) Feed(b []byte) {
	if len(b) == 0 {
		return
	}
	p.mux.Lock()
	if !p.closed {
		p.in = append(p.in, b...)
		p.cond.Signal()
	}
	p.mux.Unlock()
}

func (p *pipe) Take() []byte {
	p.mux.Lock()
	defer p.mux.Unlock()
	b := p.out
	p.out = nil
	return b
}

func (p *pipe) Read(b []byte) (int, error) {
	p.mux.Lock()
	defer p.mux.Unlock()
	for len(p.in) == 0 && !p.closed {
		p.cond.Wait()
	}
	if len(p.in) == 0 {
		return 0, io.EOF
	}
	n := copy(b, p.in)
	p.in = p.in[n:]
	if len(p.in) == 0 {
		p.in = nil
	}
	return n, nil
}

func (p *pipe) Write(b []byte) (int, error) {
	p.mux.Lock()
	if p.closed {
		p.mux.Unlock()
		return 0, net.ErrClosed
	}
	p.out = append(p.out, b...)
	p.mux.Unlock()

	if p.onOutput != nil {
		p.onOutput()
	}
	return len(b), nil
}

func (p *pipe) Close() error {
	p.mux.Lock()
	p.closed = true
	p.cond.Broadcast()
	p.mux.Unlock()
	return nil
}

func (p *pipe) LocalAddr() net.Addr              { return p.local }
func (p *pipe) RemoteAddr() net.Addr             { return p.remote }
func (p *pipe) SetDeadline(time.Time) error      { return nil }
func (p *pipe) SetReadDeadline(time.Time) error  { return nil }
func (p *pipe) SetWriteDeadline(time.Time) error { return nil }
