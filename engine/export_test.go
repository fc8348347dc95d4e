/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package engine

import (
	"go.osspkg.com/reactor/epoll"
)

func NewLoopWithPoller(id int, conf *Config, p epoll.Poller) *EventLoop {
	conf.Default()
	return newEventLoop(id, conf, p)
}

func NewChannelForTest(l *EventLoop, sock Socket, b Binding, packet bool) (*Channel, error) {
	return newChannel(l, sock, b, packet)
}
