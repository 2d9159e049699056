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

// Package authsm implements the two ways a connection becomes authenticated
// (spec.md §4.6, §9 STARTTLS/SAUTH decision): the legacy ten-step RSA
// challenge/response producing a session key, and the TLS variant's
// post-handshake public-key pinning check. Both paths end by setting the
// same Connection flags (IDVerified, RSAAuth, Trust), so callers above this
// package (the dispatcher) don't need to know which one ran.
package authsm

import (
	"github.com/jimis/cfserverd/conn"
	"github.com/jimis/cfserverd/cryptosvc"
)

// MaxWireInt is the declared maximum for any length-prefixed big-integer or
// nonce carried on the SAUTH wire, checked before any allocation (spec.md
// §4.6 "All length fields are validated against declared maxima before any
// allocation or decrypt").
const MaxWireInt = 4096

// TrustPolicy answers the per-IP trust questions SAUTH step 4 needs,
// sourced from ServerState's trust_keys list — kept as a narrow interface
// so authsm doesn't depend on the state package directly.
type TrustPolicy interface {
	// TrustOnFirstUse reports whether ip is configured to auto-accept an
	// unknown key on first contact (the trust_keys list).
	TrustOnFirstUse(ip string) bool

	// SkipIdentityVerify reports whether ip is listed in skipverify, in
	// which case CAUTH's IP/reverse-DNS check is bypassed and the
	// client's asserted hostname and username are trusted as given.
	SkipIdentityVerify(ip string) bool
}

// LegacyAuthenticator runs the SAUTH state machine for one connection. step1
// is the payload of the SAUTH request frame that triggered it (the
// dispatcher has already read that frame to learn the verb).
type LegacyAuthenticator interface {
	Authenticate(c *conn.Connection, pinning cryptosvc.PinningStore, trust TrustPolicy, server cryptosvc.KeyPair, step1 []byte) error
}

// TLSAuthenticator runs the TLS variant's post-handshake pinning check.
type TLSAuthenticator interface {
	Authenticate(c *conn.Connection, pinning cryptosvc.PinningStore, trust TrustPolicy) error
}
