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

// Package state holds ServerState, the process-wide configuration snapshot
// of spec.md §3, and Manager, the reload barrier and per-connection
// admission tracker of §4.4/§4.9. ServerState itself is immutable once
// built; Manager owns the only mutable process-wide bits (the live
// connection table, the active worker count, and the pointer swap that
// installs a freshly built ServerState at reload).
package state

import (
	"net"

	"github.com/jimis/cfserverd/acl"
)

// ServerState is one immutable configuration snapshot. A worker that reads
// a *ServerState from Manager.Current never sees it mutate out from under
// it; a reload builds a new one and swaps the pointer.
type ServerState struct {
	PathACL acl.Evaluator
	VarACL  acl.Evaluator
	Roles   acl.RoleAuthorizer

	Attackers    []string
	NonAttackers []string
	MultiConn    []string
	AllowUsers   []string
	TrustKeys    []string
	SkipVerify   []string
	AllowLegacy  []string

	RunCommand       string
	CipherPreference string
}

// Config is the raw material ServerState is built from: the access lists as
// ordered Rule sequences (spec.md §3's `admit_paths`/`deny_paths`/etc.) and
// the flat address/username lists. Build compiles the rule sequences into
// acl.Evaluator/RoleAuthorizer instances once, so per-request evaluation
// never re-parses a rule list.
type Config struct {
	AdmitPaths []acl.Rule
	DenyPaths  []acl.Rule
	AdmitVars  []acl.Rule
	DenyVars   []acl.Rule
	Roles      []acl.Rule

	Attackers    []string
	NonAttackers []string
	MultiConn    []string
	AllowUsers   []string
	TrustKeys    []string
	SkipVerify   []string
	AllowLegacy  []string

	RunCommand       string
	CipherPreference string
}

// Build compiles a Config into an immutable ServerState.
func Build(cfg Config) *ServerState {
	return &ServerState{
		PathACL:          acl.NewEvaluator(acl.KindPathPrefix, cfg.AdmitPaths, cfg.DenyPaths),
		VarACL:           acl.NewEvaluator(acl.KindLiteral, cfg.AdmitVars, cfg.DenyVars),
		Roles:            acl.NewRoleAuthorizer(cfg.Roles),
		Attackers:        cfg.Attackers,
		NonAttackers:     cfg.NonAttackers,
		MultiConn:        cfg.MultiConn,
		AllowUsers:       cfg.AllowUsers,
		TrustKeys:        cfg.TrustKeys,
		SkipVerify:       cfg.SkipVerify,
		AllowLegacy:      cfg.AllowLegacy,
		RunCommand:       cfg.RunCommand,
		CipherPreference: cfg.CipherPreference,
	}
}

// AllowedUser implements protocol.UserPolicy.
func (s *ServerState) AllowedUser(username string) bool {
	for _, u := range s.AllowUsers {
		if u == username {
			return true
		}
	}
	return false
}

// Command implements protocol.RunCommand.
func (s *ServerState) Command() string {
	return s.RunCommand
}

// TrustOnFirstUse implements authsm.TrustPolicy: ip is configured to
// auto-accept an unknown key the first time it connects when it is listed,
// literally or by CIDR, in trust_keys.
func (s *ServerState) TrustOnFirstUse(ip string) bool {
	return matchesAny(s.TrustKeys, ip)
}

// SkipIdentityVerify implements authsm.TrustPolicy: ip is listed, literally
// or by CIDR, in skipverify, so CAUTH's IP/reverse-DNS check is bypassed.
func (s *ServerState) SkipIdentityVerify(ip string) bool {
	return matchesAny(s.SkipVerify, ip)
}

// Lookup implements protocol.VarLookup with the small set of server-computed
// values spec.md §4.8 names as VAR's use case: the cipher preference and the
// configured run command, both already held on ServerState rather than
// recomputed per request.
func (s *ServerState) Lookup(name string) (string, bool) {
	switch name {
	case "cipher_preference":
		return s.CipherPreference, true
	case "run_command":
		return s.RunCommand, true
	default:
		return "", false
	}
}

// matchesAny reports whether ip equals one of entries verbatim, or falls
// inside one of entries parsed as a CIDR block.
func matchesAny(entries []string, ip string) bool {
	addr := net.ParseIP(ip)
	for _, e := range entries {
		if e == ip {
			return true
		}
		if _, cidr, err := net.ParseCIDR(e); err == nil && addr != nil && cidr.Contains(addr) {
			return true
		}
	}
	return false
}
