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

import (
	"net"
	"path/filepath"
	"regexp"
	"strings"
)

// normalizeSubjectPath canonicalizes a path subject: the parent directory's
// symlinks are resolved, the leaf is left exactly as given (it may not
// exist, or may itself be a symlink the caller intends to act on), and the
// platform separator is normalized to '/'.
func normalizeSubjectPath(subject string) string {
	clean := filepath.Clean(subject)
	dir, base := filepath.Split(clean)
	if dir == "" {
		return filepath.ToSlash(clean)
	}
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		clean = filepath.Join(resolved, base)
	}
	return filepath.ToSlash(clean)
}

// matchesPattern reports whether subject matches rule's pattern under the
// rule's Kind-specific semantics (spec.md §4.3 step 4a).
func matchesPattern(r Rule, subject string) bool {
	switch r.Kind {
	case KindPathPrefix:
		if r.Pattern == "/" {
			return true
		}
		prefix := strings.TrimSuffix(r.Pattern, "/")
		if subject == prefix {
			return true
		}
		return strings.HasPrefix(subject, prefix) && len(subject) > len(prefix) && subject[len(prefix)] == '/'
	case KindPathExact:
		return subject == r.Pattern
	case KindLiteral, KindVariable:
		return subject == r.Pattern
	case KindClassPattern:
		re, err := regexp.Compile("^(?:" + r.Pattern + ")$")
		if err != nil {
			return false
		}
		return re.MatchString(subject)
	default:
		return false
	}
}

// matchesHostSet reports whether ip or hostname matches any of addrs
// (literal IP/CIDR/hostname) or any of regexes (full-match against ip or
// hostname).
func matchesHostSet(ip, hostname string, addrs, regexes []string) bool {
	for _, a := range addrs {
		if a == ip || a == hostname {
			return true
		}
		if _, cidr, err := net.ParseCIDR(a); err == nil {
			if parsed := net.ParseIP(ip); parsed != nil && cidr.Contains(parsed) {
				return true
			}
		}
	}
	for _, pat := range regexes {
		re, err := regexp.Compile("^(?:" + pat + ")$")
		if err != nil {
			continue
		}
		if re.MatchString(ip) || re.MatchString(hostname) {
			return true
		}
	}
	return false
}

// matchesRoleIdentity reports whether id matches one of a role rule's
// allow-set entries, which may name an ip, a hostname, "user@host",
// "user@ip", or a bare username (spec.md §4.3 "Role authorization").
func matchesRoleIdentity(id Identity, allow []string) bool {
	candidates := []string{
		id.IP,
		id.Hostname,
		id.Username,
		id.Username + "@" + id.Hostname,
		id.Username + "@" + id.IP,
	}
	for _, a := range allow {
		for _, c := range candidates {
			if a == c {
				return true
			}
		}
	}
	return false
}
