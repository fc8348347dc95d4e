/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package engine

import (
	"go.osspkg.com/logx"

	"go.osspkg.com/reactor/errs"
	"go.osspkg.com/reactor/secure"
)

// flush writes queued futures in order. A short write keeps the future in flight and
// turns on write interest, the next writable event resumes it. At most flush_batch
// futures complete per pass before the channel yields to its loop neighbours.
func (c *Channel) flush() {
	for sent := 0; c.isOpen(); {
		if c.inflight == nil && !c.next() {
			c.interest(false)
			return
		}

		f := c.inflight
		if f.remaining() > 0 {
			n, err := c.sock.Write(f.pending())
			if err != nil {
				c.abort(f, errs.IO("write", err))
				return
			}
			if c.health.Observe(n, c.loop.now()) {
				logx.Debug("Channel link weak", "id", c.id, "remote", c.RemoteAddr())
				c.rearm()
			}
			if n > 0 {
				f.written += n
				c.writtenBytes += uint64(n)
				c.active = c.loop.now()
			}
			if f.remaining() > 0 {
				c.interest(true)
				return
			}
		}

		c.inflight = nil
		f.succeed()

		if sent++; sent >= c.loop.conf.FlushBatch {
			c.scheduleFlush()
			return
		}
	}
}

// next moves the following future in flight. Pending TLS records go first, application
// futures wait until the handshake is done and are sealed right before writing.
func (c *Channel) next() bool {
	if c.tls != nil {
		if raw := c.tls.Pending(); len(raw) > 0 {
			c.inflight = rawFuture(raw)
			return true
		}
		if c.tls.State() != secure.StateEstablished {
			return false
		}
	}

	f, ok := c.queue.pop()
	if !ok {
		return false
	}
	if c.tls != nil {
		wire, err := c.tls.Seal(f.pending())
		if err != nil {
			c.abort(f, err)
			return false
		}
		f.replace(wire)
	}
	c.inflight = f
	return true
}

// abort fails f with err and closes the channel, the failure is reported once.
func (c *Channel) abort(f *WriteFuture, err error) {
	if c.inflight == f {
		c.inflight = nil
	}
	if f.raw {
		c.fail(nil, err, IOStateWrite)
		return
	}
	f.fail(err)
	c.closeNow(err)
}

func (c *Channel) interest(write bool) {
	if c.writing == write || c.State() == StateClosed {
		return
	}
	if err := c.loop.setWrite(c.fd(), write); err != nil {
		c.fail(nil, errs.IO("poll", err), IOStateWrite)
		return
	}
	c.writing = write
}

// rearm registers write interest again even if it is already on.
func (c *Channel) rearm() {
	if c.State() == StateClosed {
		return
	}
	if err := c.loop.setWrite(c.fd(), true); err != nil {
		c.fail(nil, errs.IO("poll", err), IOStateWrite)
		return
	}
	c.writing = true
}
