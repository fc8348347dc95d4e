/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package server

import (
	"fmt"

	"go.osspkg.com/reactor/engine"
	"go.osspkg.com/reactor/internal"
	"go.osspkg.com/reactor/secure"
)

type Config struct {
	Address  string         `yaml:"address"`
	Network  string         `yaml:"network"`
	Protocol string         `yaml:"protocol"`
	Engine   engine.Config  `yaml:"engine,omitempty"`
	SSL      *secure.Config `yaml:"ssl,omitempty"`
}

func (c *Config) Default() {
	if len(c.Network) == 0 {
		c.Network = internal.NetTCP
	}
	c.Engine.Default()
}

func (c *Config) Validate() error {
	if err := internal.IsPassableNetwork(c.Network); err != nil {
		return err
	}
	if len(c.Protocol) == 0 {
		return fmt.Errorf("server: protocol is required")
	}
	if c.SSL != nil && c.SSL.Enabled && c.Network == internal.NetUDP {
		return fmt.Errorf("server: ssl is not supported over udp")
	}
	return c.Engine.Validate()
}
