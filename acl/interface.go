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

// Package acl implements the Access Control Evaluator: five rule kinds
// (path prefix, path exact, literal, class pattern, variable) evaluated
// against a connection's attested identity to produce a grant/deny and
// root-mapping decision for one request.
package acl

// Kind tags which matching semantics a Rule uses.
type Kind uint8

const (
	KindUnknown Kind = iota
	// KindPathPrefix matches when the subject is the rule's path or lies
	// strictly under it (a path separator immediately follows the prefix).
	KindPathPrefix
	// KindPathExact matches on byte-equality with the rule's path.
	KindPathExact
	// KindLiteral matches a named literal value by byte-equality.
	KindLiteral
	// KindClassPattern full-matches a regex against each candidate class
	// name.
	KindClassPattern
	// KindVariable matches a named variable by byte-equality, the same as
	// KindLiteral but drawn from the admit_vars/deny_vars lists.
	KindVariable
)

func (k Kind) String() string {
	switch k {
	case KindPathPrefix:
		return "path-prefix"
	case KindPathExact:
		return "path-exact"
	case KindLiteral:
		return "literal"
	case KindClassPattern:
		return "class-pattern"
	case KindVariable:
		return "variable"
	default:
		return "unknown"
	}
}

// Rule is one ACL entry. All five kinds share this shape; match semantics
// are dispatched on Kind rather than by separate types, matching the
// "tagged variant" shape the specification's redesign notes call for.
type Rule struct {
	Kind Kind

	// Pattern is the rule's path/literal/regex, interpreted per Kind.
	Pattern string

	AllowAddrs []string
	AllowRegex []string
	DenyAddrs  []string
	DenyRegex  []string

	MaprootAddrs []string
	MaprootRegex []string

	// RequiresEncrypt, when true, refuses the request outright unless the
	// current transport is encrypted (TLS, or a legacy connection carrying
	// a negotiated session cipher).
	RequiresEncrypt bool
}

// Identity is the caller-side input to an evaluation: the attested identity
// of the connection making the request.
type Identity struct {
	IP       string
	Hostname string
	Username string
	RSAAuth  bool
	Trust    bool
}

// Decision is an evaluator's output for one request.
type Decision struct {
	Grant    bool
	MapRoot  bool
}

// Evaluator evaluates one request's subject against a rule list, producing
// a Decision. One Evaluator instance is built per access-list kind
// (admit_paths, admit_vars, ...); the deny list for the same kind is
// supplied alongside the admit list at construction time.
type Evaluator interface {
	// Evaluate runs the full algorithm (subject normalization, admit-list
	// walk, deny-list walk, rsa_auth gate) for one subject against one
	// caller identity and transport-encryption flag.
	Evaluate(id Identity, subject string, candidateClasses []string, encrypted bool) Decision
}

// RoleAuthorizer grants or refuses a set of proposed classes for EXEC's
// --define argument, per the Role authorization rule of the evaluator
// (matches caller identity against a role rule's allow set for every
// proposed class).
type RoleAuthorizer interface {
	Authorize(id Identity, proposedClasses []string) bool
}
