/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package engine_test

import (
	"context"
	"sync"
	"testing"

	"go.osspkg.com/casecheck"

	"go.osspkg.com/reactor/codec/line"
	"go.osspkg.com/reactor/engine"
	"go.osspkg.com/reactor/errs"
)

func TestUnit_LoopExecuteOrder(t *testing.T) {
	tl := startLoop(t, engine.Config{})

	var (
		mux sync.Mutex
		got []int
	)
	done := make(chan struct{})
	for i := 0; i < 100; i++ {
		i := i
		casecheck.True(t, tl.loop.Execute(func() {
			mux.Lock()
			got = append(got, i)
			mux.Unlock()
			if i == 99 {
				close(done)
			}
		}))
	}
	<-done

	mux.Lock()
	defer mux.Unlock()
	for i, v := range got {
		casecheck.Equal(t, i, v)
	}
}

func TestUnit_LoopTaskPanic(t *testing.T) {
	tl := startLoop(t, engine.Config{})

	done := make(chan struct{})
	tl.loop.Execute(func() { panic("task bug") })
	tl.loop.Execute(func() { close(done) })
	<-done
}

func TestUnit_LoopStop(t *testing.T) {
	tl := startLoop(t, engine.Config{})
	sock := &scriptSocket{}
	rec := &recorder{}
	c := tl.Open(t, sock, engine.Binding{Factory: line.NewFactory(0), Handler: rec})

	tl.Stop()
	casecheck.NoError(t, <-tl.done)
	casecheck.Equal(t, engine.StateClosed, c.State())
	casecheck.Equal(t, 1, sock.Closed())
	casecheck.True(t, tl.poller.closed.Load())

	casecheck.True(t, !tl.loop.Execute(func() {}))
	err := tl.loop.Run(context.Background())
	casecheck.True(t, err == engine.ErrLoopRunning)

	other, err := engine.NewChannelForTest(tl.loop, &scriptSocket{}, engine.Binding{Factory: line.NewFactory(0)}, false)
	casecheck.NoError(t, err)
	err = tl.loop.Register(other)
	casecheck.True(t, errs.Is(err, errs.KindClosedChannel))
	casecheck.Equal(t, engine.StateClosed, other.State())
}
