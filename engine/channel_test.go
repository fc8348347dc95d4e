/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package engine_test

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.osspkg.com/casecheck"

	"go.osspkg.com/reactor/codec/line"
	"go.osspkg.com/reactor/engine"
	"go.osspkg.com/reactor/epoll"
	"go.osspkg.com/reactor/errs"
)

func TestUnit_ChannelOrderUnderConcurrentOffers(t *testing.T) {
	tl := startLoop(t, engine.Config{})
	sock := &scriptSocket{}
	rec := &recorder{}
	c := tl.Open(t, sock, engine.Binding{Factory: line.NewFactory(0), Handler: rec})

	const (
		writers = 3
		count   = 200
	)
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < count; i++ {
				casecheck.NoError(t, c.Session().Flush(fmt.Sprintf("w%d-%d", w, i)))
			}
		}(w)
	}
	wg.Wait()

	waitFor(t, func() bool {
		_, _, sent, _ := rec.Snapshot()
		return sent == writers*count
	})

	out, _ := sock.Written()
	lines := strings.Split(strings.TrimSuffix(string(out), "\n"), "\n")
	casecheck.Equal(t, writers*count, len(lines))

	next := make([]int, writers)
	for _, l := range lines {
		var w, i int
		_, err := fmt.Sscanf(l, "w%d-%d", &w, &i)
		casecheck.NoError(t, err)
		casecheck.Equal(t, next[w], i)
		next[w]++
	}
}

func TestUnit_ChannelPartialWrite(t *testing.T) {
	tl := startLoop(t, engine.Config{})
	sock := &scriptSocket{limits: []int{400, -1}}
	rec := &recorder{}
	c := tl.Open(t, sock, engine.Binding{Factory: line.NewFactory(0), Handler: rec})

	payload := bytes.Repeat([]byte{'x'}, 1000)
	casecheck.NoError(t, c.Offer(engine.NewWriteFuture("big", payload)))

	waitFor(t, func() bool { return tl.poller.Has(fmt.Sprintf("mod %d true", testFD)) })
	_, writes := sock.Written()
	casecheck.Equal(t, []int{400}, writes)
	_, _, sent, _ := rec.Snapshot()
	casecheck.Equal(t, 0, sent)

	tl.poller.events <- epoll.Event{FD: testFD, Writable: true}

	waitFor(t, func() bool {
		_, _, sent, _ := rec.Snapshot()
		return sent == 1
	})
	out, writes := sock.Written()
	casecheck.Equal(t, []int{400, 600}, writes)
	casecheck.Equal(t, payload, out)
	waitFor(t, func() bool { return tl.poller.Has(fmt.Sprintf("mod %d false", testFD)) })
}

func TestUnit_ChannelCloseFailsPending(t *testing.T) {
	tl := startLoop(t, engine.Config{})
	sock := &scriptSocket{limits: []int{0}}
	rec := &recorder{}
	c := tl.Open(t, sock, engine.Binding{Factory: line.NewFactory(0), Handler: rec})

	var mux sync.Mutex
	var success atomic.Int32
	failures := map[string][]error{}
	offer := func(name string) {
		f := engine.NewWriteFuture(name, []byte(name+"\n"))
		f.OnSuccess = func(any) { success.Add(1) }
		f.OnFailure = func(msg any, err error) {
			mux.Lock()
			failures[msg.(string)] = append(failures[msg.(string)], err)
			mux.Unlock()
		}
		casecheck.NoError(t, c.Offer(f))
	}
	offer("first")
	offer("second")

	waitFor(t, func() bool { return tl.poller.Has(fmt.Sprintf("mod %d true", testFD)) })
	casecheck.NoError(t, c.Close())
	casecheck.NoError(t, c.Close())

	waitFor(t, func() bool { return c.State() == engine.StateClosed })
	_, _, _, closed := rec.Snapshot()
	casecheck.Equal(t, 1, closed)
	casecheck.Equal(t, 1, sock.Closed())
	casecheck.Equal(t, int32(0), success.Load())

	mux.Lock()
	defer mux.Unlock()
	casecheck.Equal(t, 2, len(failures))
	for _, name := range []string{"first", "second"} {
		casecheck.Equal(t, 1, len(failures[name]))
		casecheck.True(t, errs.Is(failures[name][0], errs.KindClosedChannel))
	}
}

func TestUnit_ChannelDecodeFailure(t *testing.T) {
	tl := startLoop(t, engine.Config{})
	sock := &scriptSocket{}
	rec := &recorder{}
	c := tl.Open(t, sock, engine.Binding{Factory: line.NewFactory(0), Handler: rec})

	sock.Feed([]byte("one\ntwo\n\xff\xfe\nthree\n"))
	tl.poller.events <- epoll.Event{FD: testFD, Readable: true}

	waitFor(t, func() bool { return c.State() == engine.StateClosed })
	accepted, errors, _, closed := rec.Snapshot()
	casecheck.Equal(t, []any{"one", "two"}, accepted)
	casecheck.Equal(t, 1, len(errors))
	casecheck.Equal(t, []errs.Kind{errs.KindProtocolDecode}, rec.Kinds())
	casecheck.Equal(t, 1, closed)
	casecheck.Equal(t, 1, sock.Closed())
}

func TestUnit_ChannelSplitMessages(t *testing.T) {
	tl := startLoop(t, engine.Config{})
	sock := &scriptSocket{}
	rec := &recorder{}
	tl.Open(t, sock, engine.Binding{Factory: line.NewFactory(0), Handler: rec})

	sock.Feed([]byte("hel"))
	tl.poller.events <- epoll.Event{FD: testFD, Readable: true}
	sock.Feed([]byte("lo\nwor"))
	tl.poller.events <- epoll.Event{FD: testFD, Readable: true}
	sock.Feed([]byte("ld\n"))
	tl.poller.events <- epoll.Event{FD: testFD, Readable: true}

	waitFor(t, func() bool {
		accepted, _, _, _ := rec.Snapshot()
		return len(accepted) == 2
	})
	accepted, _, _, _ := rec.Snapshot()
	casecheck.Equal(t, []any{"hello", "world"}, accepted)
}

func TestUnit_ChannelPeerClosed(t *testing.T) {
	tl := startLoop(t, engine.Config{})
	sock := &scriptSocket{eof: true}
	rec := &recorder{}
	c := tl.Open(t, sock, engine.Binding{Factory: line.NewFactory(0), Handler: rec})

	tl.poller.events <- epoll.Event{FD: testFD, Readable: true, Hangup: true}

	waitFor(t, func() bool { return c.State() == engine.StateClosed })
	_, errors, _, closed := rec.Snapshot()
	casecheck.Equal(t, 0, len(errors))
	casecheck.Equal(t, 1, closed)
	casecheck.True(t, tl.poller.Has(fmt.Sprintf("del %d", testFD)))
}

func TestUnit_ChannelOfferAfterClose(t *testing.T) {
	tl := startLoop(t, engine.Config{})
	sock := &scriptSocket{}
	c := tl.Open(t, sock, engine.Binding{Factory: line.NewFactory(0), Handler: &recorder{}})
	casecheck.NoError(t, c.Close())

	var failed error
	f := engine.NewWriteFuture("late", []byte("late\n"))
	f.OnFailure = func(_ any, err error) { failed = err }

	err := c.Offer(f)
	casecheck.True(t, errs.Is(err, errs.KindClosedChannel))
	casecheck.True(t, errs.Is(failed, errs.KindClosedChannel))
	casecheck.True(t, f.Done())

	err = c.Session().Flush("again")
	casecheck.True(t, errs.Is(err, errs.KindClosedChannel))
}

func TestUnit_ChannelBackpressure(t *testing.T) {
	conf := engine.Config{QueueCapacity: 2}
	conf.Default()
	loop := engine.NewLoopWithPoller(0, &conf, newFakePoller())
	c, err := engine.NewChannelForTest(loop, &scriptSocket{}, engine.Binding{Factory: line.NewFactory(0)}, false)
	casecheck.NoError(t, err)

	casecheck.NoError(t, c.Session().Flush("a"))
	casecheck.NoError(t, c.Session().Flush("b"))
	err = c.Session().Flush("c")
	casecheck.True(t, errs.Is(err, errs.KindBackpressure))
	casecheck.Equal(t, 2, c.Pending())
}

func TestUnit_ChannelIdleTimeout(t *testing.T) {
	tl := startLoop(t, engine.Config{
		WaitInterval: 5 * time.Millisecond,
		WeakWindow:   5 * time.Millisecond,
		IdleTimeout:  20 * time.Millisecond,
	})
	rec := &recorder{}
	c := tl.Open(t, &scriptSocket{}, engine.Binding{Factory: line.NewFactory(0), Handler: rec})

	waitFor(t, func() bool { return c.State() == engine.StateClosed })
	casecheck.Equal(t, []errs.Kind{errs.KindTimeout}, rec.Kinds())
}

func TestUnit_ChannelHandlerPanic(t *testing.T) {
	tl := startLoop(t, engine.Config{})
	sock := &scriptSocket{}
	var closed atomic.Bool
	h := &panicHandler{closed: &closed}
	c := tl.Open(t, sock, engine.Binding{Factory: line.NewFactory(0), Handler: h})

	sock.Feed([]byte("boom\n"))
	tl.poller.events <- epoll.Event{FD: testFD, Readable: true}

	waitFor(t, func() bool { return c.State() == engine.StateClosed })
	casecheck.True(t, closed.Load())

	other := &scriptSocket{}
	o, err := engine.NewChannelForTest(tl.loop, other, engine.Binding{Factory: line.NewFactory(0)}, false)
	casecheck.NoError(t, err)
	casecheck.NoError(t, tl.loop.Register(o))
	waitFor(t, func() bool { return tl.poller.Count(fmt.Sprintf("add %d false", testFD)) == 2 })
	casecheck.Equal(t, engine.StateOpen, o.State())
}

type panicHandler struct {
	engine.HandleAdaptor
	closed *atomic.Bool
}

func (h *panicHandler) OnAccept(*engine.Session, *engine.ReadFuture) {
	panic("handler bug")
}

func (h *panicHandler) OnClosed(*engine.Session) {
	h.closed.Store(true)
}

func TestUnit_ChannelEncodeFailure(t *testing.T) {
	tl := startLoop(t, engine.Config{})
	sock := &scriptSocket{}
	rec := &recorder{}
	c := tl.Open(t, sock, engine.Binding{Factory: line.NewFactory(0), Handler: rec})

	var success, failure atomic.Int32
	var failed error
	f := &engine.WriteFuture{Message: 42}
	f.OnSuccess = func(any) { success.Add(1) }
	f.OnFailure = func(_ any, err error) {
		failure.Add(1)
		failed = err
	}

	err := c.Session().FlushFuture(f)
	casecheck.True(t, errs.Is(err, errs.KindProtocolEncode))
	casecheck.True(t, errs.Is(failed, errs.KindProtocolEncode))
	casecheck.True(t, f.Done())
	casecheck.Equal(t, int32(1), failure.Load())
	casecheck.Equal(t, int32(0), success.Load())

	err = c.Session().Flush(3.14)
	casecheck.True(t, errs.Is(err, errs.KindProtocolEncode))
	casecheck.Equal(t, []errs.Kind{errs.KindProtocolEncode}, rec.Kinds())

	casecheck.NoError(t, c.Session().Flush("still open"))
	waitFor(t, func() bool {
		_, _, sent, _ := rec.Snapshot()
		return sent == 1
	})
	casecheck.Equal(t, engine.StateOpen, c.State())
}

func TestUnit_ChannelWeakLink(t *testing.T) {
	tl := startLoop(t, engine.Config{
		WaitInterval: 5 * time.Millisecond,
		WeakWindow:   10 * time.Millisecond,
	})
	sock := &scriptSocket{limits: []int{0, -1}}
	rec := &recorder{}
	c := tl.Open(t, sock, engine.Binding{Factory: line.NewFactory(0), Handler: rec})

	casecheck.NoError(t, c.Session().Flush("stalled"))
	waitFor(t, func() bool { return c.Session().IsWeak() })
	waitFor(t, func() bool { return tl.poller.Count(fmt.Sprintf("mod %d true", testFD)) == 2 })
	_, _, sent, _ := rec.Snapshot()
	casecheck.Equal(t, 0, sent)
	casecheck.Equal(t, engine.StateOpen, c.State())

	tl.poller.events <- epoll.Event{FD: testFD, Writable: true}

	waitFor(t, func() bool {
		_, _, sent, _ := rec.Snapshot()
		return sent == 1
	})
	casecheck.True(t, !c.Session().IsWeak())
	out, writes := sock.Written()
	casecheck.Equal(t, []int{0, 8}, writes)
	casecheck.Equal(t, "stalled\n", string(out))
	waitFor(t, func() bool { return tl.poller.Has(fmt.Sprintf("mod %d false", testFD)) })
}
