/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package secure

import (
	"crypto/tls"
	"fmt"
)

// Select picks the first protocol of the server preference list the client also offered.
func Select(preference, offered []string) (string, bool) {
	for _, p := range preference {
		for _, o := range offered {
			if p == o {
				return p, true
			}
		}
	}
	return "", false
}

func negotiator(base *tls.Config, preference []string, policy Negotiation) func(*tls.ClientHelloInfo) (*tls.Config, error) {
	return func(hello *tls.ClientHelloInfo) (*tls.Config, error) {
		conf := base.Clone()
		conf.GetConfigForClient = nil

		selected, ok := Select(preference, hello.SupportedProtos)
		switch {
		case ok:
			conf.NextProtos = []string{selected}
		case policy == NegotiationFail:
			return nil, fmt.Errorf("%w: offered %q, supported %q", ErrNoProtocolOverlap, hello.SupportedProtos, preference)
		default:
			conf.NextProtos = nil
		}
		return conf, nil
	}
}
