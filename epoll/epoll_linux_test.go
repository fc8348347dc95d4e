/*
 *  Copyright (c) 2024 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

//go:build linux

package epoll_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prep/socketpair"
	"go.osspkg.com/casecheck"
	"go.osspkg.com/errors"

	"go.osspkg.com/reactor/epoll"
	"go.osspkg.com/reactor/fd"
)

func TestUnit_EpollReadWrite(t *testing.T) {
	p, err := epoll.New(16)
	casecheck.NoError(t, err)
	defer p.Close() //nolint: errcheck

	left, right, err := socketpair.New("unix")
	casecheck.NoError(t, err)
	defer left.Close()  //nolint: errcheck
	defer right.Close() //nolint: errcheck

	lfd, err := fd.ByConn(left)
	casecheck.NoError(t, err)
	casecheck.NoError(t, p.Add(lfd, false))

	events := make([]epoll.Event, 16)
	n, err := p.Wait(events, 10*time.Millisecond)
	casecheck.NoError(t, err)
	casecheck.Equal(t, 0, n)

	_, err = right.Write([]byte("x"))
	casecheck.NoError(t, err)
	n, err = p.Wait(events, time.Second)
	casecheck.NoError(t, err)
	casecheck.Equal(t, 1, n)
	casecheck.Equal(t, lfd, events[0].FD)
	casecheck.True(t, events[0].Readable)
	casecheck.True(t, !events[0].Writable)

	casecheck.NoError(t, p.Mod(lfd, true))
	n, err = p.Wait(events, time.Second)
	casecheck.NoError(t, err)
	casecheck.Equal(t, 1, n)
	casecheck.True(t, events[0].Writable)

	casecheck.NoError(t, p.Del(lfd))
}

func TestUnit_EpollWake(t *testing.T) {
	p, err := epoll.New(4)
	casecheck.NoError(t, err)
	defer p.Close() //nolint: errcheck

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = p.Wake()
	}()

	events := make([]epoll.Event, 4)
	start := time.Now()
	n, err := p.Wait(events, 5*time.Second)
	casecheck.NoError(t, err)
	casecheck.Equal(t, 0, n)
	casecheck.True(t, time.Since(start) < 4*time.Second)
}

func TestUnit_EpollWakeDuringClose(t *testing.T) {
	p, err := epoll.New(4)
	casecheck.NoError(t, err)

	var (
		wg      sync.WaitGroup
		stop    atomic.Bool
		unknown atomic.Int32
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for !stop.Load() {
				if err := p.Wake(); err != nil && !errors.Is(err, epoll.ErrClosed) {
					unknown.Add(1)
				}
			}
		}()
	}

	time.Sleep(5 * time.Millisecond)
	casecheck.NoError(t, p.Close())

	// descriptors released by Close are handed out again here
	left, right, err := socketpair.New("unix")
	casecheck.NoError(t, err)
	defer left.Close()  //nolint: errcheck
	defer right.Close() //nolint: errcheck

	time.Sleep(5 * time.Millisecond)
	stop.Store(true)
	wg.Wait()

	casecheck.Equal(t, int32(0), unknown.Load())
	casecheck.True(t, errors.Is(p.Wake(), epoll.ErrClosed))

	casecheck.NoError(t, left.SetReadDeadline(time.Now().Add(10*time.Millisecond)))
	n, _ := left.Read(make([]byte, 8)) //nolint: errcheck
	casecheck.Equal(t, 0, n)
}
