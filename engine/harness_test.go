/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package engine_test

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.osspkg.com/reactor/engine"
	"go.osspkg.com/reactor/epoll"
	"go.osspkg.com/reactor/errs"
)

const testFD = 7

type fakePoller struct {
	mux    sync.Mutex
	calls  []string
	events chan epoll.Event
	wakeup chan struct{}
	closed atomic.Bool
}

func newFakePoller() *fakePoller {
	return &fakePoller{
		events: make(chan epoll.Event, 64),
		wakeup: make(chan struct{}, 1),
	}
}

func (p *fakePoller) record(format string, args ...any) error {
	if p.closed.Load() {
		return epoll.ErrClosed
	}
	p.mux.Lock()
	p.calls = append(p.calls, fmt.Sprintf(format, args...))
	p.mux.Unlock()
	return nil
}

func (p *fakePoller) Add(fd int, write bool) error { return p.record("add %d %t", fd, write) }
func (p *fakePoller) Mod(fd int, write bool) error { return p.record("mod %d %t", fd, write) }
func (p *fakePoller) Del(fd int) error            { return p.record("del %d", fd) }

func (p *fakePoller) Wait(events []epoll.Event, timeout time.Duration) (int, error) {
	if p.closed.Load() {
		return 0, epoll.ErrClosed
	}
	select {
	case e := <-p.events:
		events[0] = e
		return 1, nil
	case <-p.wakeup:
		return 0, nil
	case <-time.After(timeout):
		return 0, nil
	}
}

func (p *fakePoller) Wake() error {
	select {
	case p.wakeup <- struct{}{}:
	default:
	}
	return nil
}

func (p *fakePoller) Close() error {
	p.closed.Store(true)
	return nil
}

func (p *fakePoller) Calls() []string {
	p.mux.Lock()
	defer p.mux.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *fakePoller) Has(call string) bool {
	return p.Count(call) > 0
}

func (p *fakePoller) Count(call string) int {
	n := 0
	for _, c := range p.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

// scriptSocket accepts at most limits[i] bytes on the i-th write, -1 or an exhausted
// script accepts everything.
type scriptSocket struct {
	mux    sync.Mutex
	limits []int
	writes []int
	out    []byte
	in     [][]byte
	eof    bool
	closed int
}

func (s *scriptSocket) FD() int              { return testFD }
func (s *scriptSocket) LocalAddr() net.Addr  { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 1000} }
func (s *scriptSocket) RemoteAddr() net.Addr { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 2000} }

func (s *scriptSocket) Read(b []byte) (int, error) {
	s.mux.Lock()
	defer s.mux.Unlock()
	if len(s.in) == 0 {
		if s.eof {
			return 0, io.EOF
		}
		return 0, nil
	}
	n := copy(b, s.in[0])
	if n == len(s.in[0]) {
		s.in = s.in[1:]
	} else {
		s.in[0] = s.in[0][n:]
	}
	return n, nil
}

func (s *scriptSocket) Write(b []byte) (int, error) {
	s.mux.Lock()
	defer s.mux.Unlock()
	n := len(b)
	if len(s.limits) > 0 {
		if l := s.limits[0]; l >= 0 && l < n {
			n = l
		}
		if len(s.limits) > 1 {
			s.limits = s.limits[1:]
		}
	}
	s.writes = append(s.writes, n)
	s.out = append(s.out, b[:n]...)
	return n, nil
}

func (s *scriptSocket) Close() error {
	s.mux.Lock()
	s.closed++
	s.mux.Unlock()
	return nil
}

func (s *scriptSocket) Feed(b []byte) {
	s.mux.Lock()
	s.in = append(s.in, b)
	s.mux.Unlock()
}

func (s *scriptSocket) Written() ([]byte, []int) {
	s.mux.Lock()
	defer s.mux.Unlock()
	return append([]byte(nil), s.out...), append([]int(nil), s.writes...)
}

func (s *scriptSocket) Closed() int {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.closed
}

type recorder struct {
	engine.HandleAdaptor

	mux      sync.Mutex
	accepted []any
	errors   []error
	states   []engine.IOState
	sent     []any
	opened   int
	closed   int
}

func (r *recorder) OnAccept(_ *engine.Session, f *engine.ReadFuture) {
	r.mux.Lock()
	r.accepted = append(r.accepted, f.Message)
	r.mux.Unlock()
}

func (r *recorder) OnExceptionCaught(_ *engine.Session, _ any, err error, state engine.IOState) {
	r.mux.Lock()
	r.errors = append(r.errors, err)
	r.states = append(r.states, state)
	r.mux.Unlock()
}

func (r *recorder) OnFutureSent(_ *engine.Session, msg any) {
	r.mux.Lock()
	r.sent = append(r.sent, msg)
	r.mux.Unlock()
}

func (r *recorder) OnOpened(*engine.Session) {
	r.mux.Lock()
	r.opened++
	r.mux.Unlock()
}

func (r *recorder) OnClosed(*engine.Session) {
	r.mux.Lock()
	r.closed++
	r.mux.Unlock()
}

func (r *recorder) Snapshot() (accepted []any, errors []error, sent int, closed int) {
	r.mux.Lock()
	defer r.mux.Unlock()
	return append([]any(nil), r.accepted...), append([]error(nil), r.errors...), len(r.sent), r.closed
}

func (r *recorder) Kinds() []errs.Kind {
	r.mux.Lock()
	defer r.mux.Unlock()
	result := make([]errs.Kind, 0, len(r.errors))
	for _, err := range r.errors {
		result = append(result, errs.KindOf(err))
	}
	return result
}

type testLoop struct {
	loop   *engine.EventLoop
	poller *fakePoller
	conf   *engine.Config
	cancel context.CancelFunc
	done   chan error
}

func startLoop(t *testing.T, conf engine.Config) *testLoop {
	t.Helper()
	p := newFakePoller()
	tl := &testLoop{poller: p, conf: &conf, done: make(chan error, 1)}
	tl.loop = engine.NewLoopWithPoller(0, tl.conf, p)

	ctx, cancel := context.WithCancel(context.Background())
	tl.cancel = cancel
	go func() { tl.done <- tl.loop.Run(ctx) }()
	t.Cleanup(tl.Stop)
	return tl
}

func (tl *testLoop) Stop() {
	tl.cancel()
	<-tl.loop.Done()
}

func (tl *testLoop) Open(t *testing.T, sock engine.Socket, b engine.Binding) *engine.Channel {
	t.Helper()
	c, err := engine.NewChannelForTest(tl.loop, sock, b, false)
	if err != nil {
		t.Fatalf("new channel: %v", err)
	}
	if err = tl.loop.Register(c); err != nil {
		t.Fatalf("register: %v", err)
	}
	waitFor(t, func() bool { return tl.poller.Has(fmt.Sprintf("add %d false", sock.FD())) })
	return c
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}
