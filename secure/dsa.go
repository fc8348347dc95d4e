/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package secure

import (
	"crypto/dsa" //nolint: staticcheck
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"math/big"
)

var oidDSA = asn1.ObjectIdentifier{1, 2, 840, 10040, 4, 1}

type (
	pkcs8Info struct {
		Version    int
		Algo       pkix.AlgorithmIdentifier
		PrivateKey []byte
	}
	dssParams struct {
		P, Q, G *big.Int
	}
	opensslDSA struct {
		Version int
		P, Q, G *big.Int
		Y, X    *big.Int
	}
)

// parseDSA reads a PKCS#8 DSA key, the standard library only knows the public half.
func parseDSA(der []byte) (*dsa.PrivateKey, error) {
	var info pkcs8Info
	rest, err := asn1.Unmarshal(der, &info)
	if err != nil {
		return nil, err
	}
	if len(rest) > 0 {
		return nil, fmt.Errorf("dsa: trailing data")
	}
	if !info.Algo.Algorithm.Equal(oidDSA) {
		return nil, fmt.Errorf("dsa: unexpected algorithm %s", info.Algo.Algorithm)
	}

	var params dssParams
	if _, err = asn1.Unmarshal(info.Algo.Parameters.FullBytes, &params); err != nil {
		return nil, fmt.Errorf("dsa: params: %w", err)
	}
	x := new(big.Int)
	if _, err = asn1.Unmarshal(info.PrivateKey, &x); err != nil {
		return nil, fmt.Errorf("dsa: private value: %w", err)
	}
	return newDSA(params.P, params.Q, params.G, x)
}

func parseDSALegacy(der []byte) (*dsa.PrivateKey, error) {
	var k opensslDSA
	if _, err := asn1.Unmarshal(der, &k); err != nil {
		return nil, fmt.Errorf("dsa: %w", err)
	}
	key, err := newDSA(k.P, k.Q, k.G, k.X)
	if err != nil {
		return nil, err
	}
	if key.Y.Cmp(k.Y) != 0 {
		return nil, fmt.Errorf("dsa: public value does not match")
	}
	return key, nil
}

func newDSA(p, q, g, x *big.Int) (*dsa.PrivateKey, error) {
	if p == nil || q == nil || g == nil || x == nil ||
		p.Sign() <= 0 || q.Sign() <= 0 || g.Sign() <= 0 ||
		x.Sign() <= 0 || x.Cmp(q) >= 0 {
		return nil, fmt.Errorf("dsa: invalid parameters")
	}
	return &dsa.PrivateKey{
		PublicKey: dsa.PublicKey{
			Parameters: dsa.Parameters{P: p, Q: q, G: g},
			Y:          new(big.Int).Exp(g, x, p),
		},
		X: x,
	}, nil
}
