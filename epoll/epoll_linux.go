/*
 *  Copyright (c) 2024 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

//go:build linux

package epoll

import (
	"encoding/binary"
	"sync"
	"sync/atomic"
	"time"

	"go.osspkg.com/errors"
	"golang.org/x/sys/unix"
)

const (
	readEvents  = unix.EPOLLIN | unix.EPOLLRDHUP | unix.EPOLLERR | unix.EPOLLHUP
	writeEvents = readEvents | unix.EPOLLOUT
)

type _epoll struct {
	fd     int
	wfd    int
	raw    []unix.EpollEvent
	closed atomic.Bool
	// wakers hold the read side, Close waits for them before releasing the eventfd
	mux sync.RWMutex
}

func New(countEvents int) (Poller, error) {
	if countEvents <= 0 {
		countEvents = 128
	}
	efd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	wfd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, errors.Wrap(err, unix.Close(efd))
	}
	err = unix.EpollCtl(efd, unix.EPOLL_CTL_ADD, wfd, &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wfd)})
	if err != nil {
		return nil, errors.Wrap(err, unix.Close(wfd), unix.Close(efd))
	}
	return &_epoll{
		fd:  efd,
		wfd: wfd,
		raw: make([]unix.EpollEvent, countEvents),
	}, nil
}

func mask(write bool) uint32 {
	if write {
		return writeEvents
	}
	return readEvents
}

func (v *_epoll) Add(fd int, write bool) error {
	return unix.EpollCtl(v.fd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{Events: mask(write), Fd: int32(fd)})
}

func (v *_epoll) Mod(fd int, write bool) error {
	return unix.EpollCtl(v.fd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{Events: mask(write), Fd: int32(fd)})
}

func (v *_epoll) Del(fd int) error {
	return unix.EpollCtl(v.fd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (v *_epoll) Wait(events []Event, timeout time.Duration) (int, error) {
	if v.closed.Load() {
		return 0, ErrClosed
	}
	limit := min(len(events), len(v.raw))
	n, err := unix.EpollWait(v.fd, v.raw[:limit], int(timeout/time.Millisecond))
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return 0, nil
		}
		return 0, err
	}

	count := 0
	for i := 0; i < n; i++ {
		ev := v.raw[i]
		if int(ev.Fd) == v.wfd {
			v.drainWake()
			continue
		}
		events[count] = Event{
			FD:       int(ev.Fd),
			Readable: ev.Events&(unix.EPOLLIN|unix.EPOLLRDHUP) != 0,
			Writable: ev.Events&unix.EPOLLOUT != 0,
			Hangup:   ev.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0,
		}
		count++
	}
	return count, nil
}

func (v *_epoll) drainWake() {
	var buf [8]byte
	for {
		if _, err := unix.Read(v.wfd, buf[:]); err != nil {
			return
		}
	}
}

func (v *_epoll) Wake() error {
	v.mux.RLock()
	defer v.mux.RUnlock()
	if v.closed.Load() {
		return ErrClosed
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	_, err := unix.Write(v.wfd, buf[:])
	if errors.Is(err, unix.EAGAIN) {
		return nil
	}
	return err
}

func (v *_epoll) Close() error {
	v.mux.Lock()
	defer v.mux.Unlock()
	if !v.closed.CompareAndSwap(false, true) {
		return nil
	}
	return errors.Wrap(unix.Close(v.wfd), unix.Close(v.fd))
}
