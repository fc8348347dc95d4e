/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package engine_test

import (
	"testing"
	"time"

	"go.osspkg.com/casecheck"

	"go.osspkg.com/reactor/engine"
)

func TestUnit_LinkHealth(t *testing.T) {
	h := engine.NewLinkHealth(50 * time.Millisecond)
	t0 := time.Unix(1700000000, 0)

	casecheck.True(t, !h.Observe(100, t0))
	casecheck.True(t, !h.Weak())

	casecheck.True(t, !h.Observe(0, t0))
	casecheck.True(t, !h.Observe(0, t0.Add(50*time.Millisecond)))
	casecheck.True(t, !h.Weak())

	casecheck.True(t, h.Observe(0, t0.Add(51*time.Millisecond)))
	casecheck.True(t, h.Weak())
	casecheck.True(t, !h.Observe(0, t0.Add(80*time.Millisecond)))
	casecheck.True(t, !h.Check(t0.Add(90*time.Millisecond)))
	casecheck.True(t, h.Weak())

	casecheck.True(t, !h.Observe(1, t0.Add(100*time.Millisecond)))
	casecheck.True(t, !h.Weak())

	casecheck.True(t, !h.Observe(0, t0.Add(200*time.Millisecond)))
	casecheck.True(t, h.Check(t0.Add(251*time.Millisecond)))
	casecheck.True(t, h.Weak())
}

func TestUnit_LinkHealthDefaultWindow(t *testing.T) {
	h := engine.NewLinkHealth(0)
	t0 := time.Unix(1700000000, 0)

	casecheck.True(t, !h.Observe(0, t0))
	casecheck.True(t, !h.Check(t0.Add(engine.DefaultWeakWindow)))
	casecheck.True(t, h.Check(t0.Add(engine.DefaultWeakWindow+time.Millisecond)))
}
