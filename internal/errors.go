/*
 *  Copyright (c) 2024 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package internal

import (
	"go.osspkg.com/errors"
	"go.osspkg.com/logx"

	"go.osspkg.com/reactor/errs"
)

var (
	ErrServAlreadyRunning = errors.New("server already running")
)

func LogErr(message string, err error, kv ...any) {
	if err == nil {
		return
	}
	args := append([]any{"err", err}, kv...)
	if errs.IsClosed(err) {
		logx.Debug(message, args...)
		return
	}
	logx.Warn(message, args...)
}
