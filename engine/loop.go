/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.osspkg.com/errors"
	"go.osspkg.com/logx"
	"go.osspkg.com/syncing"

	"go.osspkg.com/reactor/epoll"
	"go.osspkg.com/reactor/errs"
	"go.osspkg.com/reactor/internal"
)

var ErrLoopRunning = errors.New("event loop already running")

// handle is anything registered on a poller: channels, acceptors, pending connects.
type handle interface {
	fd() int
	onReadable()
	onWritable()
	onFailure(err error)
	onShutdown()
}

// EventLoop owns one poller and every handle registered on it. All handle
// methods run on the loop goroutine.
type EventLoop struct {
	id     int
	conf   *Config
	poller epoll.Poller
	events []epoll.Event

	handles  map[int]handle
	channels map[uint64]*Channel

	tasks    *taskQueue
	batch    []func()
	awake    atomic.Bool
	stopping atomic.Bool
	sw       syncing.Switch
	done     chan struct{}

	clock    time.Time
	lastTick time.Time
	tickRate time.Duration
	rbuf     *internal.Bytes
}

func NewEventLoop(id int, conf *Config) (*EventLoop, error) {
	p, err := epoll.New(conf.CountEvents)
	if err != nil {
		return nil, err
	}
	return newEventLoop(id, conf, p), nil
}

func newEventLoop(id int, conf *Config, p epoll.Poller) *EventLoop {
	return &EventLoop{
		id:       id,
		conf:     conf,
		poller:   p,
		events:   make([]epoll.Event, conf.CountEvents),
		handles:  make(map[int]handle, 128),
		channels: make(map[uint64]*Channel, 128),
		tasks:    newTaskQueue(),
		sw:       syncing.NewSwitch(),
		done:     make(chan struct{}),
		clock:    time.Now(),
		tickRate: min(conf.WaitInterval, conf.WeakWindow),
	}
}

func (l *EventLoop) ID() int { return l.id }

// Run blocks until Stop is called or ctx is done.
func (l *EventLoop) Run(ctx context.Context) error {
	if !l.sw.On() {
		return ErrLoopRunning
	}
	defer close(l.done)

	stop := context.AfterFunc(ctx, l.Stop)
	defer stop()

	l.rbuf = internal.ReadPool.Get()
	defer internal.ReadPool.Put(l.rbuf)
	if len(l.rbuf.Slice) < l.conf.ReadBuffer {
		l.rbuf.Slice = make([]byte, l.conf.ReadBuffer)
	}

	logx.Debug("Event loop started", "loop", l.id)
	defer logx.Debug("Event loop stopped", "loop", l.id)

	var err error
	for !l.stopping.Load() {
		var n int
		n, err = l.poller.Wait(l.events, l.conf.WaitInterval)
		if err != nil {
			logx.Error("Event loop wait", "err", err, "loop", l.id)
			break
		}
		l.awake.Store(false)
		l.clock = time.Now()

		for i := 0; i < n; i++ {
			l.dispatch(l.events[i])
		}
		l.runTasks()
		l.tick()
	}

	l.shutdown()
	return err
}

// Stop is safe to call from any goroutine, pending tasks still run during shutdown.
func (l *EventLoop) Stop() {
	if l.stopping.CompareAndSwap(false, true) {
		l.wake()
	}
}

func (l *EventLoop) Done() <-chan struct{} {
	return l.done
}

// Execute queues fn to run on the loop goroutine and wakes the loop.
func (l *EventLoop) Execute(fn func()) bool {
	if !l.tasks.push(fn) {
		return false
	}
	if l.awake.CompareAndSwap(false, true) {
		l.wake()
	}
	return true
}

func (l *EventLoop) wake() {
	if err := l.poller.Wake(); err != nil && !errors.Is(err, epoll.ErrClosed) {
		logx.Error("Event loop wakeup", "err", err, "loop", l.id)
	}
}

// Register pins the channel to this loop, the poller registration happens on the loop.
func (l *EventLoop) Register(c *Channel) error {
	if l.Execute(func() { l.guard(c, c.open) }) {
		return nil
	}
	c.abandon()
	return errs.New(errs.KindClosedChannel, "register", errs.ErrLoopStopped)
}

func (l *EventLoop) now() time.Time {
	return l.clock
}

func (l *EventLoop) readBuffer() []byte {
	return l.rbuf.Slice[:l.conf.ReadBuffer]
}

func (l *EventLoop) attach(h handle, write bool) error {
	if err := l.poller.Add(h.fd(), write); err != nil {
		return err
	}
	l.handles[h.fd()] = h
	return nil
}

func (l *EventLoop) detach(fd int) {
	if _, ok := l.handles[fd]; !ok {
		return
	}
	delete(l.handles, fd)
	if err := l.poller.Del(fd); err != nil && !errors.Is(err, epoll.ErrClosed) {
		internal.LogErr("Event loop deregister", err, "loop", l.id, "fd", fd)
	}
}

func (l *EventLoop) setWrite(fd int, on bool) error {
	return l.poller.Mod(fd, on)
}

func (l *EventLoop) dispatch(e epoll.Event) {
	h, ok := l.handles[e.FD]
	if !ok {
		return
	}
	l.guard(h, func() {
		if e.Readable || e.Hangup {
			h.onReadable()
		}
		if e.Writable && l.handles[e.FD] == h {
			h.onWritable()
		}
	})
}

func (l *EventLoop) runTasks() {
	l.batch = l.tasks.drain(l.batch[:0])
	for i, fn := range l.batch {
		l.batch[i] = nil
		if err := protect(fn); err != nil {
			logx.Error("Event loop task", "err", err, "loop", l.id)
		}
	}
}

func (l *EventLoop) tick() {
	if l.clock.Sub(l.lastTick) < l.tickRate {
		return
	}
	l.lastTick = l.clock
	for _, c := range l.channels {
		l.guard(c, c.check)
	}
}

func (l *EventLoop) shutdown() {
	for _, h := range l.handles {
		if err := protect(h.onShutdown); err != nil {
			logx.Error("Event loop shutdown", "err", err, "loop", l.id, "fd", h.fd())
		}
	}
	for _, fn := range l.tasks.close() {
		if err := protect(fn); err != nil {
			logx.Error("Event loop task", "err", err, "loop", l.id)
		}
	}
	for _, c := range l.channels {
		protect(c.onShutdown) //nolint: errcheck
	}
	internal.LogErr("Event loop close poller", l.poller.Close(), "loop", l.id)
}

// guard runs fn for h, a panic closes h only.
func (l *EventLoop) guard(h handle, fn func()) {
	err := protect(fn)
	if err == nil {
		return
	}
	logx.Error("Event loop handle panic", "err", err, "loop", l.id, "fd", h.fd())
	if err = protect(func() { h.onFailure(errs.IO("panic", err)) }); err != nil {
		logx.Error("Event loop handle failure", "err", err, "loop", l.id, "fd", h.fd())
	}
}

func protect(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	fn()
	return nil
}
