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

// Package errcode classifies the connection engine's errors by kind, the way
// the rest of the codebase classifies HTTP responses: a small numeric code,
// a human message, and an optional parent for hierarchy. It exists so a
// caller can ask "was this a Transport failure or an Authorization refusal"
// without string-matching, which is what spec.md §7 requires of the
// propagation policy (request-scoped recoverable errors vs. connection-
// tearing ones).
package errcode

import "sort"

// Kind is the taxonomy from spec.md §7. Each Kind maps to a disjoint range
// of Code values so a caller can bucket an unrecognized Code back to its
// Kind with a single range check.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindTransport
	KindProtocol
	KindIdentity
	KindAuthorization
	KindResource
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	case KindIdentity:
		return "identity"
	case KindAuthorization:
		return "authorization"
	case KindResource:
		return "resource"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Code is a numeric error code, grouped by Kind in blocks of 100 the way
// the teacher's error package groups HTTP-like status codes.
type Code uint16

const (
	Unknown Code = 0

	// Transport: 100-199
	TransportShortRead     Code = 100
	TransportShortWrite    Code = 101
	TransportFraming       Code = 102
	TransportHandshake     Code = 103
	TransportTimeout       Code = 104
	TransportClosed        Code = 105
	TransportLengthOverflow Code = 106

	// Protocol: 200-299
	ProtocolUnknownVerb   Code = 200
	ProtocolMalformed     Code = 201
	ProtocolLengthMismatch Code = 202
	ProtocolNullSessionKey Code = 203
	ProtocolBadState      Code = 204
	ProtocolUnsupportedCipher Code = 205

	// Identity: 300-399
	IdentityReverseDNSMismatch Code = 300
	IdentityIPMismatch         Code = 301
	IdentityUnknownKey         Code = 302
	IdentityKeyMismatch        Code = 303

	// Authorization: 400-499
	AuthzNoAdmitRule      Code = 400
	AuthzDenyMatched      Code = 401
	AuthzRequiresEncrypt  Code = 402
	AuthzUserNotAllowed   Code = 403
	AuthzRoleNotPermitted Code = 404

	// Resource: 500-599
	ResourceCapacity    Code = 500
	ResourceNotFound    Code = 501
	ResourceNotAbsolute Code = 502
	ResourceStatFailed  Code = 503

	// Internal: 600-699
	InternalInvariant Code = 600
)

var kindRanges = []struct {
	lo, hi Code
	kind   Kind
}{
	{100, 199, KindTransport},
	{200, 299, KindProtocol},
	{300, 399, KindIdentity},
	{400, 499, KindAuthorization},
	{500, 599, KindResource},
	{600, 699, KindInternal},
}

// KindOf returns the Kind a Code belongs to, or KindUnknown if the Code is
// outside every registered range.
func KindOf(c Code) Kind {
	i := sort.Search(len(kindRanges), func(i int) bool { return kindRanges[i].hi >= c })
	if i < len(kindRanges) && kindRanges[i].lo <= c && c <= kindRanges[i].hi {
		return kindRanges[i].kind
	}
	return KindUnknown
}

// Tears reports whether an error of this Code, per spec.md §7's propagation
// policy, must tear down the connection rather than just fail the current
// request. Identity, Transport, and Internal kinds tear down; Protocol,
// Authorization, and Resource kinds are recoverable at the request boundary.
func (c Code) Tears() bool {
	switch KindOf(c) {
	case KindTransport, KindIdentity, KindInternal:
		return true
	default:
		return false
	}
}
