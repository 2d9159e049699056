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

// Package protocol implements the Dispatcher: one request frame in, one
// reply (or continuation-flagged reply sequence) out, per spec.md §4.5.
// Every verb except CAUTH/SAUTH/STARTTLS/VERSION shares the same
// precondition checks and ACL gate; the verb table in this package is the
// single place that knowledge lives.
package protocol

import (
	"crypto/tls"

	"github.com/jimis/cfserverd/acl"
	"github.com/jimis/cfserverd/authsm"
	"github.com/jimis/cfserverd/conn"
	"github.com/jimis/cfserverd/cryptosvc"
	intlog "github.com/jimis/cfserverd/internal/log"
)

// Verb is one request's leading token. The secure ('S'-prefixed) form of a
// verb carries the same payload shape as its non-secure counterpart,
// encrypted under the connection's session key.
type Verb string

const (
	VerbCAUTH     Verb = "CAUTH"
	VerbSAUTH     Verb = "SAUTH"
	VerbGET       Verb = "GET"
	VerbSGET      Verb = "SGET"
	VerbOpenDir   Verb = "OPENDIR"
	VerbSOpenDir  Verb = "SOPENDIR"
	VerbSynch     Verb = "SYNCH"
	VerbSSynch    Verb = "SSYNCH"
	VerbMD5       Verb = "MD5"
	VerbSMD5      Verb = "SMD5"
	VerbVar       Verb = "VAR"
	VerbSVar      Verb = "SVAR"
	VerbContext   Verb = "CONTEXT"
	VerbSContext  Verb = "SCONTEXT"
	VerbQuery     Verb = "QUERY"
	VerbSQuery    Verb = "SQUERY"
	VerbExec      Verb = "EXEC"
	VerbVersion   Verb = "VERSION"
	VerbStartTLS  Verb = "STARTTLS"
	VerbSCallback Verb = "SCALLBACK"
)

// secure reports whether v is the 'S'-prefixed ciphertext form of a verb.
func (v Verb) secure() bool {
	switch v {
	case VerbSGET, VerbSOpenDir, VerbSSynch, VerbSMD5, VerbSVar, VerbSContext, VerbSQuery:
		return true
	default:
		return false
	}
}

// VarLookup answers VAR/SVAR: a named, server-computed literal value such
// as this host's key fingerprint or a serialized class list.
type VarLookup interface {
	Lookup(name string) (string, bool)
}

// ContextStore answers CONTEXT/SCONTEXT: the set of persisted class names
// matching a regex. Expired entries are purged as a side effect of the
// scan, per spec.md §4.8.
type ContextStore interface {
	MatchAndPurge(pattern string) ([]string, error)
}

// QueryRunner answers QUERY/SQUERY with an implementation-defined report,
// delegated entirely to an external collaborator (spec.md §4.8).
type QueryRunner interface {
	Query(name string) (string, error)
}

// CallbackQueue receives SCALLBACK's reverse-connect job requests, consumed
// later by callback.Worker (spec.md §4.8, §12 supplement).
type CallbackQueue interface {
	Enqueue(ip, hostname string) error
}

// UserPolicy answers whether a username may invoke EXEC.
type UserPolicy interface {
	AllowedUser(username string) bool
}

// RunCommand supplies the shell-level command EXEC invokes.
type RunCommand interface {
	Command() string
}

// Executor actually invokes the configured run-command with the classes
// proposed by EXEC's --define argument, once the ACL grant and Role
// authorization have both succeeded (spec.md §4.8, §4.9).
type Executor interface {
	Run(path string, classes []string) error
}

// ModuleVersion and ProtocolVersion are reported by VERSION (SPEC_FULL.md
// §12: "VERSION reply carries build metadata, not just a bare string").
const (
	ModuleVersion   = "1.0.0"
	ProtocolVersion = "1"
)

// Collaborators bundles every dependency the Dispatcher needs beyond the
// Connection and the request itself: the ACL evaluators (one per access-
// list kind) and the external collaborators of spec.md §4.8/§1.
type Collaborators struct {
	PathACL  acl.Evaluator
	VarACL   acl.Evaluator
	Roles    acl.RoleAuthorizer
	Vars     VarLookup
	Contexts ContextStore
	Queries  QueryRunner
	Calls    CallbackQueue
	Users    UserPolicy
	Runner   RunCommand
	Executor Executor

	ServerKey cryptosvc.KeyPair
	Pinning   cryptosvc.PinningStore
	Trust     authsm.TrustPolicy
	Legacy    authsm.LegacyAuthenticator
	TLSAuth   authsm.TLSAuthenticator
	TLSConfig *tls.Config

	// Logger receives the "REFUSAL of request from connecting host" log
	// line (spec.md §7) every time refuse writes a client-visible BAD:
	// reply. Nil is safe; only the log line is skipped.
	Logger intlog.Logger
}

// Dispatcher reads and handles exactly one request from a Connection.
type Dispatcher interface {
	Dispatch(c *conn.Connection) error
}
