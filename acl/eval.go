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

package acl

// ruleList is the concrete Evaluator: an ordered admit list plus a deny
// list, both sharing one Kind. Path-kind lists normalize the subject before
// matching; literal/variable/class kinds use the subject as given.
type ruleList struct {
	kind  Kind
	admit []Rule
	deny  []Rule
}

// NewEvaluator builds an Evaluator for one access-list kind. admit is
// walked in declaration order (first match wins); deny is walked in full
// and any match overrides an earlier grant.
func NewEvaluator(kind Kind, admit, deny []Rule) Evaluator {
	return &ruleList{kind: kind, admit: admit, deny: deny}
}

func (rl *ruleList) Evaluate(id Identity, subject string, candidateClasses []string, encrypted bool) Decision {
	d := Decision{Grant: false, MapRoot: false}

	normalized := subject
	if rl.kind == KindPathPrefix || rl.kind == KindPathExact {
		normalized = normalizeSubjectPath(subject)
	}

	for _, r := range rl.admit {
		if !ruleMatchesSubject(r, normalized, candidateClasses) {
			continue
		}

		if r.RequiresEncrypt && !encrypted {
			d.Grant = false
			break
		}

		if matchesHostSet(id.IP, id.Hostname, r.MaprootAddrs, r.MaprootRegex) {
			d.MapRoot = true
		}
		if matchesHostSet(id.IP, id.Hostname, r.AllowAddrs, r.AllowRegex) {
			d.Grant = true
		}
		break
	}

	for _, r := range rl.deny {
		if ruleMatchesSubject(r, normalized, candidateClasses) &&
			matchesHostSet(id.IP, id.Hostname, r.DenyAddrs, r.DenyRegex) {
			d.Grant = false
		}
	}

	if !id.RSAAuth {
		d.MapRoot = false
	}

	return d
}

// ruleMatchesSubject applies matchesPattern for path/literal/variable kinds,
// or a full-match over every candidate class name for KindClassPattern
// (spec.md §4.3 step 4a: "regex full-match ... against each candidate class
// name").
func ruleMatchesSubject(r Rule, subject string, candidateClasses []string) bool {
	if r.Kind != KindClassPattern {
		return matchesPattern(r, subject)
	}
	for _, c := range candidateClasses {
		if matchesPattern(r, c) {
			return true
		}
	}
	return false
}

// roleAuthorizer implements RoleAuthorizer over an ordered set of role
// Rules: each proposed class must match some rule whose allow set contains
// the caller's identity (spec.md §4.3 "Role authorization").
type roleAuthorizer struct {
	rules []Rule
}

// NewRoleAuthorizer builds a RoleAuthorizer from the roles access list.
func NewRoleAuthorizer(rules []Rule) RoleAuthorizer {
	return &roleAuthorizer{rules: rules}
}

func (ra *roleAuthorizer) Authorize(id Identity, proposedClasses []string) bool {
	for _, class := range proposedClasses {
		granted := false
		for _, r := range ra.rules {
			if !matchesPattern(r, class) {
				continue
			}
			if matchesRoleIdentity(id, r.AllowAddrs) {
				granted = true
				break
			}
		}
		if !granted {
			return false
		}
	}
	return true
}
