/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package client

import (
	"go.osspkg.com/reactor/engine"
	"go.osspkg.com/reactor/internal"
)

// sessionPool keeps open sessions between calls, closed ones are dropped on the way in and out.
type sessionPool struct {
	c chan *engine.Session
}

func newSessionPool(size int) *sessionPool {
	return &sessionPool{c: make(chan *engine.Session, size)}
}

func (p *sessionPool) getIdle() (*engine.Session, bool) {
	for {
		select {
		case s := <-p.c:
			if !s.IsOpen() {
				continue
			}
			return s, true
		default:
			return nil, false
		}
	}
}

func (p *sessionPool) putOrClose(s *engine.Session) {
	if !s.IsOpen() {
		return
	}
	select {
	case p.c <- s:
	default:
		internal.LogErr("Client close extra session", s.Close(), "id", s.ID())
	}
}

func (p *sessionPool) closeAll() {
	for {
		select {
		case s := <-p.c:
			internal.LogErr("Client close idle session", s.Close(), "id", s.ID())
		default:
			return
		}
	}
}
