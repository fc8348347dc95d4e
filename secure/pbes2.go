/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package secure

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/des"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"hash"

	"go.osspkg.com/errors"
	"golang.org/x/crypto/pbkdf2"
)

var ErrIncorrectPassword = errors.New("secure: incorrect key password")

var (
	oidPBES2          = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 5, 13}
	oidPBKDF2         = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 5, 12}
	oidHMACWithSHA1   = asn1.ObjectIdentifier{1, 2, 840, 113549, 2, 7}
	oidHMACWithSHA256 = asn1.ObjectIdentifier{1, 2, 840, 113549, 2, 9}
	oidAES128CBC      = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 1, 2}
	oidAES192CBC      = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 1, 22}
	oidAES256CBC      = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 1, 42}
	oidDESEDE3CBC     = asn1.ObjectIdentifier{1, 2, 840, 113549, 3, 7}
)

type (
	encryptedPKCS8 struct {
		Algo          pkix.AlgorithmIdentifier
		EncryptedData []byte
	}
	pbes2Params struct {
		KeyDerivationFunc pkix.AlgorithmIdentifier
		EncryptionScheme  pkix.AlgorithmIdentifier
	}
	pbkdf2Params struct {
		Salt           []byte
		IterationCount int
		KeyLength      int                      `asn1:"optional"`
		PRF            pkix.AlgorithmIdentifier `asn1:"optional"`
	}
	blockCipher struct {
		keyLen int
		create func(key []byte) (cipher.Block, error)
	}
)

var ciphers = map[string]blockCipher{
	oidAES128CBC.String():  {keyLen: 16, create: aes.NewCipher},
	oidAES192CBC.String():  {keyLen: 24, create: aes.NewCipher},
	oidAES256CBC.String():  {keyLen: 32, create: aes.NewCipher},
	oidDESEDE3CBC.String(): {keyLen: 24, create: des.NewTripleDESCipher},
}

func prfHash(oid asn1.ObjectIdentifier) (func() hash.Hash, error) {
	switch {
	case len(oid) == 0, oid.Equal(oidHMACWithSHA1):
		return sha1.New, nil
	case oid.Equal(oidHMACWithSHA256):
		return sha256.New, nil
	default:
		return nil, fmt.Errorf("secure: unsupported pbkdf2 prf %s", oid)
	}
}

// decryptPKCS8 opens an EncryptedPrivateKeyInfo protected with PBES2/PBKDF2.
func decryptPKCS8(der, password []byte) ([]byte, error) {
	var info encryptedPKCS8
	if _, err := asn1.Unmarshal(der, &info); err != nil {
		return nil, fmt.Errorf("secure: encrypted key: %w", err)
	}
	if !info.Algo.Algorithm.Equal(oidPBES2) {
		return nil, fmt.Errorf("secure: unsupported key encryption %s", info.Algo.Algorithm)
	}

	var params pbes2Params
	if _, err := asn1.Unmarshal(info.Algo.Parameters.FullBytes, &params); err != nil {
		return nil, fmt.Errorf("secure: pbes2 params: %w", err)
	}
	if !params.KeyDerivationFunc.Algorithm.Equal(oidPBKDF2) {
		return nil, fmt.Errorf("secure: unsupported kdf %s", params.KeyDerivationFunc.Algorithm)
	}
	var kdf pbkdf2Params
	if _, err := asn1.Unmarshal(params.KeyDerivationFunc.Parameters.FullBytes, &kdf); err != nil {
		return nil, fmt.Errorf("secure: pbkdf2 params: %w", err)
	}
	h, err := prfHash(kdf.PRF.Algorithm)
	if err != nil {
		return nil, err
	}

	bc, ok := ciphers[params.EncryptionScheme.Algorithm.String()]
	if !ok {
		return nil, fmt.Errorf("secure: unsupported cipher %s", params.EncryptionScheme.Algorithm)
	}
	var iv []byte
	if _, err = asn1.Unmarshal(params.EncryptionScheme.Parameters.FullBytes, &iv); err != nil {
		return nil, fmt.Errorf("secure: cipher iv: %w", err)
	}
	if kdf.KeyLength > 0 && kdf.KeyLength != bc.keyLen {
		return nil, fmt.Errorf("secure: key length %d does not fit cipher", kdf.KeyLength)
	}

	block, err := bc.create(pbkdf2.Key(password, kdf.Salt, kdf.IterationCount, bc.keyLen, h))
	if err != nil {
		return nil, err
	}
	if len(iv) != block.BlockSize() || len(info.EncryptedData)%block.BlockSize() != 0 || len(info.EncryptedData) == 0 {
		return nil, fmt.Errorf("secure: malformed encrypted key")
	}

	out := make([]byte, len(info.EncryptedData))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, info.EncryptedData)
	return unpad(out, block.BlockSize())
}

func unpad(b []byte, size int) ([]byte, error) {
	n := int(b[len(b)-1])
	if n == 0 || n > size || n > len(b) {
		return nil, ErrIncorrectPassword
	}
	if !bytes.Equal(b[len(b)-n:], bytes.Repeat([]byte{byte(n)}, n)) {
		return nil, ErrIncorrectPassword
	}
	return b[:len(b)-n], nil
}
