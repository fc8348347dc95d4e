/*
 *  Copyright (c) 2024 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package epoll

import (
	"time"

	"go.osspkg.com/errors"
)

var (
	ErrUnsupported = errors.New("epoll: platform not supported")
	ErrClosed      = errors.New("epoll: poller closed")
)

type (
	Event struct {
		FD       int
		Readable bool
		Writable bool
		Hangup   bool
	}

	// Poller is owned by one event loop. Only Wake and Close may be called from other goroutines.
	Poller interface {
		Add(fd int, write bool) error
		Mod(fd int, write bool) error
		Del(fd int) error
		Wait(events []Event, timeout time.Duration) (int, error)
		Wake() error
		Close() error
	}
)
