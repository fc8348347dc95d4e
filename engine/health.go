/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package engine

import (
	"sync/atomic"
	"time"

	"go.osspkg.com/reactor/internal"
)

// LinkHealth flags a channel as weak when writes stall for longer than the window.
// Observe and Check run on the owning loop, Weak may be read from anywhere.
type LinkHealth struct {
	window   time.Duration
	deadline time.Time
	weak     atomic.Bool
	reported bool
}

func NewLinkHealth(window time.Duration) *LinkHealth {
	return &LinkHealth{window: internal.NotZero(window, DefaultWeakWindow)}
}

// Observe records a write attempt of n bytes. It returns true once per stall,
// the moment the link turns weak, so the caller can force write interest.
func (h *LinkHealth) Observe(n int, now time.Time) bool {
	if n > 0 {
		h.deadline = time.Time{}
		h.weak.Store(false)
		h.reported = false
		return false
	}
	if h.deadline.IsZero() {
		h.deadline = internal.Deadline(now, h.window)
		return false
	}
	return h.Check(now)
}

// Check promotes a pending stall to weak once the deadline passed.
func (h *LinkHealth) Check(now time.Time) bool {
	if !internal.Expired(now, h.deadline) {
		return false
	}
	h.weak.Store(true)
	if h.reported {
		return false
	}
	h.reported = true
	return true
}

func (h *LinkHealth) Weak() bool {
	return h.weak.Load()
}
