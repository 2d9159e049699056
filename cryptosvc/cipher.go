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

package cryptosvc

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/jimis/cfserverd/errcode"
)

// CipherTag identifies the negotiated session AEAD, sent as the first byte
// of every secure-verb ciphertext (spec.md §4.2, §6).
type CipherTag byte

const (
	// CipherAESGCM is AES-256-GCM, tag 'c'.
	CipherAESGCM CipherTag = 'c'
	// CipherChaCha20Poly1305 is tag 'x', offered for peers without AES-NI.
	CipherChaCha20Poly1305 CipherTag = 'x'
)

// SessionKeySize is the symmetric key length shared by both supported
// ciphers: 32 bytes (AES-256, and ChaCha20's only key size).
const SessionKeySize = 32

// nonceSize is the same for both AEADs this package wires up (GCM's default
// and chacha20poly1305's only size), so a single constant covers both.
const nonceSize = 12

func newAEAD(tag CipherTag, key []byte) (cipher.AEAD, error) {
	if len(key) != SessionKeySize {
		return nil, errcode.New(errcode.InternalInvariant, "session key must be 32 bytes", nil)
	}
	switch tag {
	case CipherAESGCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, errcode.New(errcode.InternalInvariant, "construct AES block cipher", err)
		}
		return cipher.NewGCM(block)
	case CipherChaCha20Poly1305:
		return chacha20poly1305.New(key)
	default:
		return nil, errcode.New(errcode.ProtocolUnsupportedCipher, "unrecognized cipher tag", nil)
	}
}

// Seal encrypts plaintext under the session key identified by tag, prefixing
// the tag byte and nonce to the returned ciphertext so Open needs nothing
// beyond the key to reverse it.
func Seal(tag CipherTag, key, plaintext, additionalData []byte) ([]byte, error) {
	aead, err := newAEAD(tag, key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, errcode.New(errcode.InternalInvariant, "generate nonce", err)
	}

	out := make([]byte, 0, 1+len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, byte(tag))
	out = append(out, nonce...)
	out = aead.Seal(out, nonce, plaintext, additionalData)
	return out, nil
}

// Open reverses Seal. The cipher tag is read from the first byte of sealed,
// so the caller does not need to know in advance which AEAD was negotiated.
func Open(key, sealed, additionalData []byte) ([]byte, error) {
	if len(sealed) < 1+nonceSize {
		return nil, errcode.New(errcode.ProtocolMalformed, "ciphertext too short", nil)
	}

	tag := CipherTag(sealed[0])
	aead, err := newAEAD(tag, key)
	if err != nil {
		return nil, err
	}

	nonce := sealed[1 : 1+nonceSize]
	ct := sealed[1+nonceSize:]

	plaintext, err := aead.Open(nil, nonce, ct, additionalData)
	if err != nil {
		return nil, errcode.New(errcode.IdentityKeyMismatch, "ciphertext did not authenticate", err)
	}
	return plaintext, nil
}
