/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package internal

import (
	"go.osspkg.com/ioutils/pool"
)

const ReadBufferSize = 64 << 10

var ReadPool = pool.New[*Bytes](func() *Bytes {
	return &Bytes{Slice: make([]byte, ReadBufferSize)}
})

type Bytes struct {
	Slice []byte
}

func (*Bytes) Reset() {}

// Compact moves the unconsumed tail to the front so the accumulation buffer does not grow forever.
func Compact(b []byte, consumed int) []byte {
	if consumed <= 0 {
		return b
	}
	if consumed >= len(b) {
		return b[:0]
	}
	n := copy(b, b[consumed:])
	return b[:n]
}
