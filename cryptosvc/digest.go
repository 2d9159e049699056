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
	"crypto/md5"  //nolint:gosec // legacy-compatible digest accepted for MD5/SMD5 tolerance only, spec.md §4.7
	"crypto/rsa"
	"crypto/sha256"
	"encoding/hex"
)

// KeyFingerprint is the canonical digest of a public key used for pinning
// (spec.md §4.2): SHA-256 over the modulus as unpadded big-endian bytes,
// followed by the public exponent as a 4-byte big-endian integer.
func KeyFingerprint(pub *rsa.PublicKey) string {
	h := sha256.New()
	h.Write(pub.N.Bytes())
	var eb [4]byte
	e := pub.E
	eb[0] = byte(e >> 24)
	eb[1] = byte(e >> 16)
	eb[2] = byte(e >> 8)
	eb[3] = byte(e)
	h.Write(eb[:])
	return hex.EncodeToString(h.Sum(nil))
}

// FileDigest is the canonical (>=256-bit) hash used for MD5/SMD5 content
// compare (spec.md §4.2, §4.7).
func FileDigest(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// LegacyFileDigest is the legacy-compatible hash accepted for the MD5/SMD5
// compare operation only, for tolerance while peers upgrade (spec.md §4.7).
func LegacyFileDigest(content []byte) string {
	sum := md5.Sum(content) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

// DigestsEqual reports whether a client-supplied digest matches either the
// canonical or legacy digest of local content, the "equal"/"not equal"
// tolerance rule of spec.md §4.7.
func DigestsEqual(clientDigest string, content []byte) bool {
	return clientDigest == FileDigest(content) || clientDigest == LegacyFileDigest(content)
}
