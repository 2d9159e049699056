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

package state

import "github.com/jimis/cfserverd/acl"

// The types in this file adapt Manager into every dispatcher-facing
// collaborator interface (acl.Evaluator, acl.RoleAuthorizer, and the
// narrow VarLookup/UserPolicy/RunCommand/TrustPolicy shapes consumed by
// protocol and authsm) without either package importing the other. Each
// method re-resolves Manager.Current() on every call instead of closing
// over one ServerState, so a reload (spec.md §4.9) takes effect for the
// very next request a worker handles — the dispatcher never has to hold a
// *Manager itself or know that reload exists.

type livePathACL struct{ mgr *Manager }

func (l livePathACL) Evaluate(id acl.Identity, subject string, candidateClasses []string, encrypted bool) acl.Decision {
	return l.mgr.Current().PathACL.Evaluate(id, subject, candidateClasses, encrypted)
}

type liveVarACL struct{ mgr *Manager }

func (l liveVarACL) Evaluate(id acl.Identity, subject string, candidateClasses []string, encrypted bool) acl.Decision {
	return l.mgr.Current().VarACL.Evaluate(id, subject, candidateClasses, encrypted)
}

type liveRoles struct{ mgr *Manager }

func (l liveRoles) Authorize(id acl.Identity, proposedClasses []string) bool {
	return l.mgr.Current().Roles.Authorize(id, proposedClasses)
}

type liveVars struct{ mgr *Manager }

func (l liveVars) Lookup(name string) (string, bool) {
	return l.mgr.Current().Lookup(name)
}

type liveUsers struct{ mgr *Manager }

func (l liveUsers) AllowedUser(username string) bool {
	return l.mgr.Current().AllowedUser(username)
}

type liveRunner struct{ mgr *Manager }

func (l liveRunner) Command() string {
	return l.mgr.Current().Command()
}

type liveTrust struct{ mgr *Manager }

func (l liveTrust) TrustOnFirstUse(ip string) bool {
	return l.mgr.Current().TrustOnFirstUse(ip)
}

func (l liveTrust) SkipIdentityVerify(ip string) bool {
	return l.mgr.Current().SkipIdentityVerify(ip)
}

// PathACL returns a reload-aware acl.Evaluator for path ACL decisions.
func (m *Manager) PathACL() acl.Evaluator { return livePathACL{m} }

// VarACL returns a reload-aware acl.Evaluator for literal/var ACL decisions.
func (m *Manager) VarACL() acl.Evaluator { return liveVarACL{m} }

// Roles returns a reload-aware acl.RoleAuthorizer.
func (m *Manager) Roles() acl.RoleAuthorizer { return liveRoles{m} }

// Vars returns a reload-aware VAR/SVAR lookup.
func (m *Manager) Vars() liveVars { return liveVars{m} }

// Users returns a reload-aware allow_users check.
func (m *Manager) Users() liveUsers { return liveUsers{m} }

// Runner returns a reload-aware EXEC run-command supplier.
func (m *Manager) Runner() liveRunner { return liveRunner{m} }

// Trust returns a reload-aware trust_keys/skipverify policy.
func (m *Manager) Trust() liveTrust { return liveTrust{m} }
