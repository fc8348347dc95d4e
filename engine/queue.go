/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package engine

import (
	"sync"

	"github.com/eapache/queue"

	"go.osspkg.com/reactor/errs"
)

// outboundQueue is the multi-producer side of a channel. Only the owning loop pops.
type outboundQueue struct {
	mux    sync.Mutex
	items  *queue.Queue
	limit  int
	closed bool
}

func newOutboundQueue(limit int) *outboundQueue {
	return &outboundQueue{items: queue.New(), limit: limit}
}

func (q *outboundQueue) push(f *WriteFuture) error {
	q.mux.Lock()
	defer q.mux.Unlock()

	switch {
	case q.closed:
		return errs.Closed("offer")
	case q.items.Length() >= q.limit:
		return errs.Backpressure("offer")
	}
	q.items.Add(f)
	return nil
}

func (q *outboundQueue) pop() (*WriteFuture, bool) {
	q.mux.Lock()
	defer q.mux.Unlock()

	if q.items.Length() == 0 {
		return nil, false
	}
	return q.items.Remove().(*WriteFuture), true
}

func (q *outboundQueue) len() int {
	q.mux.Lock()
	defer q.mux.Unlock()
	return q.items.Length()
}

// close rejects later pushes and hands back everything still queued, in order.
func (q *outboundQueue) close() []*WriteFuture {
	q.mux.Lock()
	defer q.mux.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	rest := make([]*WriteFuture, 0, q.items.Length())
	for q.items.Length() > 0 {
		rest = append(rest, q.items.Remove().(*WriteFuture))
	}
	return rest
}

type taskQueue struct {
	mux    sync.Mutex
	items  *queue.Queue
	closed bool
}

func newTaskQueue() *taskQueue {
	return &taskQueue{items: queue.New()}
}

func (q *taskQueue) push(fn func()) bool {
	q.mux.Lock()
	defer q.mux.Unlock()

	if q.closed {
		return false
	}
	q.items.Add(fn)
	return true
}

// drain appends the queued tasks to dst, tasks pushed while they run wait for the next pass.
func (q *taskQueue) drain(dst []func()) []func() {
	q.mux.Lock()
	defer q.mux.Unlock()

	for q.items.Length() > 0 {
		dst = append(dst, q.items.Remove().(func()))
	}
	return dst
}

func (q *taskQueue) close() []func() {
	q.mux.Lock()
	q.closed = true
	q.mux.Unlock()
	return q.drain(nil)
}
