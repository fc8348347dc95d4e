/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package secure

import (
	"fmt"
	"time"

	"go.osspkg.com/reactor/internal"
)

type (
	// Provider selects the TLS engine strategy.
	Provider string
	// Negotiation is the policy applied when client and server share no ALPN protocol.
	Negotiation string
)

const (
	ProviderAuto     Provider = "auto"
	ProviderStandard Provider = "standard"
	ProviderNative   Provider = "native"

	NegotiationAccept Negotiation = "accept"
	NegotiationFail   Negotiation = "fail"

	DefaultHandshakeTimeout = 10 * time.Second
)

type Config struct {
	Enabled            bool          `yaml:"enabled"`
	Provider           Provider      `yaml:"provider,omitempty"`
	CertFile           string        `yaml:"cert_file,omitempty"`
	KeyFile            string        `yaml:"key_file,omitempty"`
	KeyPassword        string        `yaml:"key_password,omitempty"`
	CAFile             string        `yaml:"ca_file,omitempty"`
	CipherSuites       []string      `yaml:"cipher_suites,omitempty"`
	NextProtos         []string      `yaml:"next_protos,omitempty"`
	Negotiation        Negotiation   `yaml:"negotiation,omitempty"`
	ServerName         string        `yaml:"server_name,omitempty"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify,omitempty"`
	ClientAuth         bool          `yaml:"client_auth,omitempty"`
	HandshakeTimeout   time.Duration `yaml:"handshake_timeout,omitempty"`
	Watch              bool          `yaml:"watch,omitempty"`
	AutoGenerate       bool          `yaml:"auto_generate,omitempty"`
	Addresses          []string      `yaml:"addresses,omitempty"`
}

func (c *Config) Default() {
	if len(c.Provider) == 0 {
		c.Provider = ProviderAuto
	}
	if len(c.Negotiation) == 0 {
		c.Negotiation = NegotiationAccept
	}
	c.HandshakeTimeout = internal.NotZero(c.HandshakeTimeout, DefaultHandshakeTimeout)
}

func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderAuto, ProviderStandard, ProviderNative:
	default:
		return fmt.Errorf("secure: unknown provider %q, use: auto, standard, native", c.Provider)
	}
	switch c.Negotiation {
	case NegotiationAccept, NegotiationFail:
	default:
		return fmt.Errorf("secure: unknown negotiation policy %q, use: accept, fail", c.Negotiation)
	}
	if c.Watch && c.AutoGenerate {
		return fmt.Errorf("secure: watch requires certificate files")
	}
	if (len(c.CertFile) == 0) != (len(c.KeyFile) == 0) {
		return fmt.Errorf("secure: cert_file and key_file must be set together")
	}
	return nil
}
