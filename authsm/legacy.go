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

package authsm

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/binary"
	"math/big"
	"time"

	"github.com/jimis/cfserverd/conn"
	"github.com/jimis/cfserverd/cryptosvc"
	"github.com/jimis/cfserverd/errcode"
	"github.com/jimis/cfserverd/wire"
)

const authFrameTimeout = 30 * time.Second

// legacyAuthenticator is the only LegacyAuthenticator implementation; it
// runs the ten numbered steps of spec.md §4.6 directly against the
// Connection's wire.Transport.
type legacyAuthenticator struct{}

// NewLegacyAuthenticator returns the SAUTH state machine.
func NewLegacyAuthenticator() LegacyAuthenticator {
	return legacyAuthenticator{}
}

// Authenticate runs steps 2-10 of spec.md §4.6. step1 is the payload of the
// SAUTH request frame itself (the encryption flag byte followed by the
// client's nonce) — the dispatcher has already read that frame to learn
// the verb, so Authenticate takes it as an argument instead of reading it
// again.
func (legacyAuthenticator) Authenticate(c *conn.Connection, pinning cryptosvc.PinningStore, trust TrustPolicy, server cryptosvc.KeyPair, step1 []byte) error {
	if len(step1) < 1 {
		return errcode.New(errcode.ProtocolMalformed, "empty SAUTH step 1 payload", nil)
	}
	encryptedNonce := step1[0] == 'y'
	nonce := step1[1:]
	if len(nonce) > MaxWireInt {
		return errcode.New(errcode.TransportLengthOverflow, "client nonce exceeds maximum", nil)
	}

	var err error

	// Step 2: decrypt if needed, hash the plaintext nonce.
	plainNonce := nonce
	if encryptedNonce {
		plainNonce, err = rsa.DecryptPKCS1v15(rand.Reader, server.Private, nonce)
		if err != nil {
			return errcode.New(errcode.IdentityKeyMismatch, "decrypt client nonce", err)
		}
	}
	clientNonceHash := sha256.Sum256(plainNonce)

	// Step 3: client's public key as two length-prefixed big-integers.
	keyFrame, err := wire.ReadFrame(c.Transport, authFrameTimeout)
	if err != nil {
		return err
	}
	clientPub, err := decodeRSAPublicKey(keyFrame.Payload)
	if err != nil {
		return err
	}

	// Step 4: fingerprint + pinning-store consult.
	fingerprint := cryptosvc.KeyFingerprint(clientPub)
	key := cryptosvc.PinKey{Username: c.Username, IP: c.IP}
	stored, known := pinning.Lookup(key)
	switch {
	case !known:
		if !trust.TrustOnFirstUse(c.IP) {
			return errcode.New(errcode.IdentityUnknownKey, "unknown key and IP is not trusted for first use", nil)
		}
		c.Trust = true
		if err := pinning.Store(key, fingerprint); err != nil {
			return err
		}
	case stored != fingerprint:
		return errcode.New(errcode.IdentityKeyMismatch, "presented key does not match pinned key", nil)
	}
	c.KeyFingerprint = fingerprint

	// Step 5: echo the hash of the client's nonce.
	if err := wire.WriteFrame(c.Transport, wire.Frame{Flag: wire.Done, Payload: clientNonceHash[:]}); err != nil {
		return err
	}

	// Step 6: fresh server nonce, RSA-encrypted to the client's key.
	serverNonce := make([]byte, 32)
	if _, err := rand.Read(serverNonce); err != nil {
		return errcode.New(errcode.InternalInvariant, "generate server nonce", err)
	}
	serverNonceHash := sha256.Sum256(serverNonce)
	encryptedServerNonce, err := rsa.EncryptPKCS1v15(rand.Reader, clientPub, serverNonce)
	if err != nil {
		return errcode.New(errcode.InternalInvariant, "encrypt server nonce", err)
	}
	if err := wire.WriteFrame(c.Transport, wire.Frame{Flag: wire.Done, Payload: encryptedServerNonce}); err != nil {
		return err
	}

	// Step 7: if the client sent its nonce unencrypted, it has no way to
	// know the server's key yet, so offer it now.
	if !encryptedNonce {
		if err := wire.WriteFrame(c.Transport, wire.Frame{Flag: wire.Done, Payload: encodeRSAPublicKey(server.Public)}); err != nil {
			return err
		}
	}

	// Step 8-9: client proves it decrypted the server nonce.
	proofFrame, err := wire.ReadFrame(c.Transport, authFrameTimeout)
	if err != nil {
		return err
	}
	if !bytes.Equal(proofFrame.Payload, serverNonceHash[:]) {
		return errcode.New(errcode.IdentityKeyMismatch, "client failed to prove possession of its private key", nil)
	}

	// Step 10: encrypted session key + cipher tag.
	sessFrame, err := wire.ReadFrame(c.Transport, authFrameTimeout)
	if err != nil {
		return err
	}
	if len(sessFrame.Payload) < 1 {
		return errcode.New(errcode.ProtocolMalformed, "empty session key payload", nil)
	}
	cipherTag := sessFrame.Payload[0]
	sessionKey, err := rsa.DecryptPKCS1v15(rand.Reader, server.Private, sessFrame.Payload[1:])
	if err != nil {
		return errcode.New(errcode.IdentityKeyMismatch, "decrypt session key", err)
	}

	c.SessionKey = sessionKey
	c.CipherTag = cipherTag
	c.IDVerified = true
	c.RSAAuth = true
	return nil
}

func decodeRSAPublicKey(payload []byte) (*rsa.PublicKey, error) {
	n, rest, err := readLenPrefixed(payload)
	if err != nil {
		return nil, err
	}
	e, _, err := readLenPrefixed(rest)
	if err != nil {
		return nil, err
	}
	if len(e) > 4 {
		return nil, errcode.New(errcode.ProtocolMalformed, "RSA exponent too large", nil)
	}
	var exp int
	for _, b := range e {
		exp = exp<<8 | int(b)
	}
	pub := &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: exp}
	return pub, nil
}

func encodeRSAPublicKey(pub *rsa.PublicKey) []byte {
	n := pub.N.Bytes()
	var e [4]byte
	binary.BigEndian.PutUint32(e[:], uint32(pub.E))
	// trim leading zero bytes of the exponent for a compact wire form
	trimmed := e[:]
	for len(trimmed) > 1 && trimmed[0] == 0 {
		trimmed = trimmed[1:]
	}

	out := make([]byte, 0, 4+len(n)+4+len(trimmed))
	out = appendLenPrefixed(out, n)
	out = appendLenPrefixed(out, trimmed)
	return out
}

func readLenPrefixed(b []byte) (value, rest []byte, err error) {
	if len(b) < 4 {
		return nil, nil, errcode.New(errcode.ProtocolMalformed, "short length-prefixed field", nil)
	}
	n := binary.BigEndian.Uint32(b[0:4])
	if int(n) > MaxWireInt {
		return nil, nil, errcode.New(errcode.TransportLengthOverflow, "length-prefixed field exceeds maximum", nil)
	}
	if len(b) < 4+int(n) {
		return nil, nil, errcode.New(errcode.ProtocolMalformed, "truncated length-prefixed field", nil)
	}
	return b[4 : 4+n], b[4+n:], nil
}

func appendLenPrefixed(out, v []byte) []byte {
	var l [4]byte
	binary.BigEndian.PutUint32(l[:], uint32(len(v)))
	out = append(out, l[:]...)
	out = append(out, v...)
	return out
}
