/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package secure

import (
	"crypto"
	"crypto/dsa" //nolint: staticcheck
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"go.osspkg.com/errors"
)

var (
	ErrNoCertificate    = errors.New("secure: no CERTIFICATE block found")
	ErrNoPrivateKey     = errors.New("secure: no private key block found")
	ErrUnknownKey       = errors.New("secure: neither RSA, DSA nor EC worked")
	ErrPasswordRequired = errors.New("secure: key is encrypted, password required")
	ErrKeyMismatch      = errors.New("secure: private key does not match certificate")
	ErrDSAUnsupported   = errors.New("secure: DSA keys are not supported by the standard provider")
)

// ReadCertificates returns the DER chain in file order, leaf first.
func ReadCertificates(data []byte) ([][]byte, error) {
	var chain [][]byte
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		if _, err := x509.ParseCertificate(block.Bytes); err != nil {
			return nil, fmt.Errorf("secure: parse certificate #%d: %w", len(chain), err)
		}
		chain = append(chain, block.Bytes)
	}
	if len(chain) == 0 {
		return nil, ErrNoCertificate
	}
	return chain, nil
}

// ReadPrivateKey accepts PKCS#8 (plain or PBES2 encrypted) and the legacy
// PKCS#1, SEC1 and OpenSSL DSA blocks. The first key block wins.
func ReadPrivateKey(data []byte, password string) (crypto.PrivateKey, error) {
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			return nil, ErrNoPrivateKey
		}

		switch block.Type {
		case "ENCRYPTED PRIVATE KEY":
			if len(password) == 0 {
				return nil, ErrPasswordRequired
			}
			der, err := decryptPKCS8(block.Bytes, []byte(password))
			if err != nil {
				return nil, err
			}
			return probeKey(der)
		case "PRIVATE KEY":
			return probeKey(block.Bytes)
		case "RSA PRIVATE KEY":
			return x509.ParsePKCS1PrivateKey(block.Bytes)
		case "EC PRIVATE KEY":
			return x509.ParseECPrivateKey(block.Bytes)
		case "DSA PRIVATE KEY":
			return parseDSALegacy(block.Bytes)
		}
	}
}

var probes = []func([]byte) (crypto.PrivateKey, bool){
	probeRSA,
	probeDSA,
	probeEC,
}

func probeKey(der []byte) (crypto.PrivateKey, error) {
	for _, probe := range probes {
		if key, ok := probe(der); ok {
			return key, nil
		}
	}
	return nil, ErrUnknownKey
}

func probeRSA(der []byte) (crypto.PrivateKey, bool) {
	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		v, ok := key.(*rsa.PrivateKey)
		return v, ok
	}
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, true
	}
	return nil, false
}

func probeDSA(der []byte) (crypto.PrivateKey, bool) {
	key, err := parseDSA(der)
	if err != nil {
		return nil, false
	}
	return key, true
}

func probeEC(der []byte) (crypto.PrivateKey, bool) {
	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		switch v := key.(type) {
		case *ecdsa.PrivateKey:
			return v, true
		case ed25519.PrivateKey:
			return v, true
		}
		return nil, false
	}
	if key, err := x509.ParseECPrivateKey(der); err == nil {
		return key, true
	}
	return nil, false
}

func KeyPair(certPEM, keyPEM []byte, password string) (tls.Certificate, error) {
	chain, err := ReadCertificates(certPEM)
	if err != nil {
		return tls.Certificate{}, err
	}
	key, err := ReadPrivateKey(keyPEM, password)
	if err != nil {
		return tls.Certificate{}, err
	}
	if _, ok := key.(*dsa.PrivateKey); ok {
		return tls.Certificate{}, ErrDSAUnsupported
	}

	leaf, err := x509.ParseCertificate(chain[0])
	if err != nil {
		return tls.Certificate{}, err
	}
	if signer, ok := key.(crypto.Signer); ok {
		if pub, ok := leaf.PublicKey.(interface{ Equal(crypto.PublicKey) bool }); ok && !pub.Equal(signer.Public()) {
			return tls.Certificate{}, ErrKeyMismatch
		}
	}

	return tls.Certificate{
		Certificate: chain,
		PrivateKey:  key,
		Leaf:        leaf,
	}, nil
}

func LoadKeyPair(certFile, keyFile, password string) (tls.Certificate, error) {
	certPEM, err := os.ReadFile(certFile)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("secure: read cert: %w", err)
	}
	keyPEM, err := os.ReadFile(keyFile)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("secure: read key: %w", err)
	}
	cert, err := KeyPair(certPEM, keyPEM, password)
	if err != nil {
		return tls.Certificate{}, errors.Wrapf(err, "load %s", certFile)
	}
	return cert, nil
}

func LoadCertPool(caFile string) (*x509.CertPool, error) {
	b, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("secure: read ca: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(b) {
		return nil, fmt.Errorf("secure: %s: %w", caFile, ErrNoCertificate)
	}
	return pool, nil
}
