/*
 *  Copyright (c) 2024 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package fd

import (
	"fmt"
	"syscall"

	"go.osspkg.com/errors"
	"golang.org/x/sys/unix"
)

type rawConn interface {
	SyscallConn() (syscall.RawConn, error)
}

// ByConn returns the descriptor still owned by the Go runtime, it must not be closed by the caller.
func ByConn(c any) (int, error) {
	rc, ok := c.(rawConn)
	if !ok {
		return -1, fmt.Errorf("fd: %T has no syscall conn", c)
	}
	sc, err := rc.SyscallConn()
	if err != nil {
		return -1, err
	}
	v := -1
	if err = sc.Control(func(fd uintptr) { v = int(fd) }); err != nil {
		return -1, err
	}
	return v, nil
}

// Dup detaches a private non-blocking copy of the descriptor, the original conn can be closed afterwards.
func Dup(c any) (int, error) {
	v, err := ByConn(c)
	if err != nil {
		return -1, err
	}
	nfd, err := unix.Dup(v)
	if err != nil {
		return -1, fmt.Errorf("fd: dup: %w", err)
	}
	unix.CloseOnExec(nfd)
	if err = unix.SetNonblock(nfd, true); err != nil {
		return -1, errors.Wrap(fmt.Errorf("fd: set nonblock: %w", err), unix.Close(nfd))
	}
	return nfd, nil
}
