/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package frame

import (
	"encoding/binary"

	"go.osspkg.com/errors"
)

// Header layout, big endian:
//
//	short (2B): bit15 compressed | bit14 reserved | bit13 ext=0 | bits12..0 length
//	long  (4B): bit31 compressed | bit30 reserved | bit29 ext=1 | bits28..0 length
const (
	shortMaxLen = (1 << 13) - 1
	longMaxLen  = (1 << 29) - 1

	flagCompressed = 1 << 15
	flagExt        = 1 << 13
)

var (
	errLengthOutOfRange = errors.New("frame: length out of range")
	errReservedBit      = errors.New("frame: reserved header bit set")
)

func appendHeader(dst []byte, length int, compressed bool) ([]byte, error) {
	if length < 0 || length > longMaxLen {
		return nil, errLengthOutOfRange
	}
	if length <= shortMaxLen {
		v := uint16(length)
		if compressed {
			v |= flagCompressed
		}
		return binary.BigEndian.AppendUint16(dst, v), nil
	}
	v := uint32(length) | 1<<29
	if compressed {
		v |= 1 << 31
	}
	return binary.BigEndian.AppendUint32(dst, v), nil
}

// parseHeader returns used == 0 when b does not hold the whole header yet.
func parseHeader(b []byte) (used, length int, compressed bool, err error) {
	if len(b) < 2 {
		return 0, 0, false, nil
	}
	v16 := binary.BigEndian.Uint16(b)
	if v16&(1<<14) != 0 {
		return 0, 0, false, errReservedBit
	}
	compressed = v16&flagCompressed != 0
	if v16&flagExt == 0 {
		return 2, int(v16 & shortMaxLen), compressed, nil
	}
	if len(b) < 4 {
		return 0, 0, false, nil
	}
	v32 := binary.BigEndian.Uint32(b)
	return 4, int(v32 & longMaxLen), compressed, nil
}
