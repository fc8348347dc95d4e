/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package engine

import (
	"fmt"
	"runtime"
	"time"

	"go.osspkg.com/reactor/internal"
)

const (
	DefaultWaitInterval  = 100 * time.Millisecond
	DefaultCountEvents   = 128
	DefaultWeakWindow    = 64 * time.Millisecond
	DefaultQueueCapacity = 4096
	DefaultFlushBatch    = 64
	DefaultReadBuffer    = internal.ReadBufferSize
)

type Config struct {
	// Loops is the size of the event loop pool, defaults to the number of CPUs.
	Loops        int           `yaml:"loops,omitempty"`
	WaitInterval time.Duration `yaml:"wait_interval,omitempty"`
	CountEvents  int           `yaml:"count_events,omitempty"`
	// IdleTimeout closes channels without read or write progress, zero disables it.
	IdleTimeout   time.Duration `yaml:"idle_timeout,omitempty"`
	WeakWindow    time.Duration `yaml:"weak_window,omitempty"`
	QueueCapacity int           `yaml:"queue_capacity,omitempty"`
	FlushBatch    int           `yaml:"flush_batch,omitempty"`
	ReadBuffer    int           `yaml:"read_buffer,omitempty"`
	MaxConns      int64         `yaml:"max_conns,omitempty"`
}

func (c *Config) Default() {
	c.Loops = internal.NotZero(c.Loops, runtime.NumCPU())
	c.WaitInterval = internal.NotZero(c.WaitInterval, DefaultWaitInterval)
	c.CountEvents = internal.NotZero(c.CountEvents, DefaultCountEvents)
	c.WeakWindow = internal.NotZero(c.WeakWindow, DefaultWeakWindow)
	c.QueueCapacity = internal.NotZero(c.QueueCapacity, DefaultQueueCapacity)
	c.FlushBatch = internal.NotZero(c.FlushBatch, DefaultFlushBatch)
	c.ReadBuffer = internal.NotZero(c.ReadBuffer, DefaultReadBuffer)
}

func (c *Config) Validate() error {
	if c.Loops <= 0 {
		return fmt.Errorf("engine: loops must be positive")
	}
	if c.WaitInterval <= 0 || c.WaitInterval > time.Minute {
		return fmt.Errorf("engine: wait_interval out of range: %s", c.WaitInterval)
	}
	if c.CountEvents <= 0 {
		return fmt.Errorf("engine: count_events must be positive")
	}
	if c.QueueCapacity <= 0 || c.FlushBatch <= 0 || c.ReadBuffer <= 0 {
		return fmt.Errorf("engine: queue_capacity, flush_batch and read_buffer must be positive")
	}
	if c.IdleTimeout < 0 || c.MaxConns < 0 {
		return fmt.Errorf("engine: idle_timeout and max_conns must not be negative")
	}
	return nil
}
