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
	"crypto/rsa"
	"crypto/x509"

	"github.com/jimis/cfserverd/conn"
	"github.com/jimis/cfserverd/cryptosvc"
	"github.com/jimis/cfserverd/errcode"
)

// tlsAuthenticator implements the TLS variant's auth completion path: the
// handshake itself accepts any certificate (spec.md §4.2 — "accept any
// certificate at handshake time"), and trust is established here, after
// the handshake, by comparing the presented leaf's public key digest
// against the pinning store.
type tlsAuthenticator struct{}

// NewTLSAuthenticator returns the post-handshake pinning checker.
func NewTLSAuthenticator() TLSAuthenticator {
	return tlsAuthenticator{}
}

func (tlsAuthenticator) Authenticate(c *conn.Connection, pinning cryptosvc.PinningStore, trust TrustPolicy) error {
	raw := c.PeerCertificate()
	if raw == nil {
		return errcode.New(errcode.IdentityUnknownKey, "peer presented no certificate", nil)
	}

	leaf, err := x509.ParseCertificate(raw)
	if err != nil {
		return errcode.New(errcode.IdentityKeyMismatch, "parse peer certificate", err)
	}

	rsaPub, ok := leaf.PublicKey.(*rsa.PublicKey)
	if !ok {
		return errcode.New(errcode.IdentityKeyMismatch, "peer certificate does not carry an RSA key", nil)
	}

	fingerprint := cryptosvc.KeyFingerprint(rsaPub)
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
	c.IDVerified = true
	c.RSAAuth = true
	return nil
}
