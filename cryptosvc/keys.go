/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package cryptosvc implements spec.md §4.2's Crypto Services: long-term
// keypair load, digest computation, symmetric session-cipher encrypt/
// decrypt, the peer-key pinning contract, and the TLS context used by the
// TLS protocol variant.
package cryptosvc

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"

	"github.com/jimis/cfserverd/errcode"
)

// KeyPair is the daemon's long-term identity.
type KeyPair struct {
	Private *rsa.PrivateKey
	Public  *rsa.PublicKey
}

// LoadKeyPair reads a PEM-encoded RSA private key from disk and derives the
// public half. The original implementation's equivalent load happens once
// at startup; so does this one — there is no hot-reload of the long-term
// identity, only of ServerState (spec.md §4.9).
func LoadKeyPair(path string) (KeyPair, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return KeyPair{}, errcode.New(errcode.InternalInvariant, "read private key file", err)
	}

	block, _ := pem.Decode(raw)
	if block == nil {
		return KeyPair{}, errcode.New(errcode.InternalInvariant, "no PEM block in key file", nil)
	}

	var key *rsa.PrivateKey
	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err = x509.ParsePKCS1PrivateKey(block.Bytes)
	default:
		var k interface{}
		k, err = x509.ParsePKCS8PrivateKey(block.Bytes)
		if err == nil {
			rk, ok := k.(*rsa.PrivateKey)
			if !ok {
				return KeyPair{}, errcode.New(errcode.InternalInvariant, "key file does not hold an RSA key", nil)
			}
			key = rk
		}
	}
	if err != nil {
		return KeyPair{}, errcode.New(errcode.InternalInvariant, "parse private key", err)
	}

	return KeyPair{Private: key, Public: &key.PublicKey}, nil
}

// GenerateKeyPair creates a fresh long-term identity. Used by tests and by
// first-run bootstrap when no key file exists yet.
func GenerateKeyPair(bits int) (KeyPair, error) {
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return KeyPair{}, errcode.New(errcode.InternalInvariant, "generate RSA key", err)
	}
	return KeyPair{Private: key, Public: &key.PublicKey}, nil
}
