/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package secure

import (
	"crypto/tls"
	"fmt"
	"net"

	"go.osspkg.com/errors"

	"go.osspkg.com/reactor/errs"
	"go.osspkg.com/reactor/internal"
)

var (
	ErrProviderUnavailable = errors.New("secure: provider is not available")
	ErrNoProtocolOverlap   = errors.New("secure: no application protocol in common")
	ErrNoServerCertificate = errors.New("secure: server requires a certificate")
)

type Role uint8

const (
	RoleServer Role = iota
	RoleClient
)

type State int32

const (
	StateNotStarted State = iota
	StateHandshaking
	StateEstablished
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "NOT_STARTED"
	case StateHandshaking:
		return "HANDSHAKING"
	case StateEstablished:
		return "ESTABLISHED"
	case StateFailed:
		return "FAILED"
	case StateClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

type (
	// Hooks are invoked from the session pump goroutine, callers must hop to their own loop.
	Hooks struct {
		// Output reports new ciphertext available through Session.Pending.
		Output func()
		// Plaintext delivers decrypted application bytes, the slice is owned by the callee.
		Plaintext func([]byte)
		// Established fires at most once with the negotiated protocol, possibly empty.
		Established func(protocol string)
		// Error reports a failed handshake or a broken record stream.
		Error func(error)

		Local  net.Addr
		Remote net.Addr
	}

	// Session is the per-channel TLS state machine, it never touches the socket.
	Session interface {
		State() State
		Start()
		Feed(ciphertext []byte)
		Pending() []byte
		Seal(plaintext []byte) ([]byte, error)
		Protocol() string
		Close() error
	}

	Transport interface {
		Provider() Provider
		Role() Role
		NewSession(hooks Hooks) (Session, error)
		Close() error
	}
)

type strategy func(conf *Config, role Role, tc *tls.Config, store *keyStore) Transport

// strategies lists the providers compiled into this build.
var strategies = map[Provider]strategy{
	ProviderStandard: newStdTransport,
}

func resolveProvider(p Provider) (Provider, error) {
	if len(p) == 0 || p == ProviderAuto {
		if _, ok := strategies[ProviderNative]; ok {
			return ProviderNative, nil
		}
		return ProviderStandard, nil
	}
	if _, ok := strategies[p]; !ok {
		return p, errs.Handshake("provider", fmt.Errorf("%w: %s", ErrProviderUnavailable, p))
	}
	return p, nil
}

func NewServer(conf *Config) (Transport, error) {
	return newTransport(conf, RoleServer)
}

func NewClient(conf *Config) (Transport, error) {
	return newTransport(conf, RoleClient)
}

func newTransport(conf *Config, role Role) (Transport, error) {
	if conf == nil {
		conf = &Config{}
	}
	c := *conf
	c.Default()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	provider, err := resolveProvider(c.Provider)
	if err != nil {
		return nil, err
	}
	tc, store, err := buildTLS(&c, role)
	if err != nil {
		return nil, errs.Handshake("config", err)
	}
	c.Provider = provider
	return strategies[provider](&c, role, tc, store), nil
}

func buildTLS(conf *Config, role Role) (*tls.Config, *keyStore, error) {
	tc := internal.DefaultTLSConfig()
	if len(conf.CipherSuites) > 0 {
		ids, err := internal.CipherSuiteIDs(conf.CipherSuites)
		if err != nil {
			return nil, nil, err
		}
		tc.CipherSuites = ids
	}

	var store *keyStore
	switch {
	case conf.AutoGenerate:
		cert, err := SelfSigned(conf.Addresses)
		if err != nil {
			return nil, nil, err
		}
		store = staticKeyStore(cert)
	case len(conf.CertFile) > 0:
		var err error
		if store, err = newKeyStore(conf.CertFile, conf.KeyFile, conf.KeyPassword); err != nil {
			return nil, nil, err
		}
		if conf.Watch {
			if err = store.Watch(); err != nil {
				return nil, nil, errors.Wrap(err, store.Close())
			}
		}
	case role == RoleServer:
		return nil, nil, ErrNoServerCertificate
	}

	if store != nil {
		if role == RoleServer {
			tc.GetCertificate = store.ServerCertificate
		} else {
			tc.GetClientCertificate = store.ClientCertificate
		}
	}

	if len(conf.CAFile) > 0 {
		pool, err := LoadCertPool(conf.CAFile)
		if err != nil {
			return nil, nil, errors.Wrap(err, closeStore(store))
		}
		if role == RoleServer {
			tc.ClientCAs = pool
		} else {
			tc.RootCAs = pool
		}
	}

	switch role {
	case RoleServer:
		if conf.ClientAuth {
			tc.ClientAuth = tls.RequireAndVerifyClientCert
			if tc.ClientCAs == nil {
				tc.ClientAuth = tls.RequireAnyClientCert
			}
		}
		if len(conf.NextProtos) > 0 {
			tc.NextProtos = append([]string(nil), conf.NextProtos...)
			tc.GetConfigForClient = negotiator(tc, conf.NextProtos, conf.Negotiation)
		}
	case RoleClient:
		tc.ServerName = conf.ServerName
		tc.InsecureSkipVerify = conf.InsecureSkipVerify
		tc.NextProtos = append([]string(nil), conf.NextProtos...)
	}

	return tc, store, nil
}

func closeStore(store *keyStore) error {
	if store == nil {
		return nil
	}
	return store.Close()
}
