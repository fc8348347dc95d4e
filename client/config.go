/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package client

import (
	"fmt"
	"time"

	"go.osspkg.com/reactor/engine"
	"go.osspkg.com/reactor/internal"
	"go.osspkg.com/reactor/secure"
)

const DefaultDialTimeout = 5 * time.Second

type Config struct {
	Network     string         `yaml:"network"`
	Address     string         `yaml:"address"`
	Protocol    string         `yaml:"protocol"`
	DialTimeout time.Duration  `yaml:"dial_timeout,omitempty"`
	MaxConns    uint64         `yaml:"max_conns,omitempty"`
	Engine      engine.Config  `yaml:"engine,omitempty"`
	SSL         *secure.Config `yaml:"ssl,omitempty"`
}

func (c *Config) Default() {
	if len(c.Network) == 0 {
		c.Network = internal.NetTCP
	}
	c.DialTimeout = internal.NotZero(c.DialTimeout, DefaultDialTimeout)
	c.MaxConns = internal.NotZero(c.MaxConns, 1)
	c.Engine.Loops = internal.NotZero(c.Engine.Loops, 1)
	c.Engine.Default()
}

func (c *Config) Validate() error {
	if len(c.Protocol) == 0 {
		return fmt.Errorf("client: protocol is required")
	}
	if c.SSL != nil && c.SSL.Enabled && c.Network == internal.NetUDP {
		return fmt.Errorf("client: ssl is not supported over udp")
	}
	return c.Engine.Validate()
}

func (c Config) Resolve() (addr fmt.Stringer, err error) {
	if err = internal.IsPassableNetwork(c.Network); err != nil {
		return nil, err
	}
	return internal.ResolveAddr(c.Network, c.Address)
}
