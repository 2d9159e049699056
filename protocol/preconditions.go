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

package protocol

import (
	"github.com/jimis/cfserverd/conn"
	"github.com/jimis/cfserverd/errcode"
)

// requiresIDVerified is every verb except the four spec.md §4.5 names
// explicitly: CAUTH, SAUTH, STARTTLS, VERSION.
func requiresIDVerified(v Verb) bool {
	switch v {
	case VerbCAUTH, VerbSAUTH, VerbStartTLS, VerbVersion:
		return false
	default:
		return true
	}
}

// checkPreconditions enforces spec.md §4.5's per-request invariants that
// don't depend on the ACL evaluation itself: id_verified, the EXEC-specific
// rsa_auth/allow_users gate, and the secure-verb null-session-key gate.
// ACL grant is checked separately by the verb handler, since only it knows
// the subject being evaluated.
func checkPreconditions(c *conn.Connection, v Verb, users UserPolicy) error {
	if requiresIDVerified(v) && !c.IDVerified {
		return errcode.New(errcode.ProtocolBadState, "verb requires a verified connection", nil)
	}

	if v == VerbExec {
		if !c.RSAAuth {
			return errcode.New(errcode.AuthzRequiresEncrypt, "EXEC requires rsa_auth", nil)
		}
		if users != nil && !users.AllowedUser(c.Username) {
			return errcode.New(errcode.AuthzUserNotAllowed, "username is not on allow_users", nil)
		}
	}

	if v.secure() && len(c.SessionKey) == 0 {
		return errcode.New(errcode.ProtocolNullSessionKey, "secure verb requires a negotiated session key", nil)
	}

	return nil
}
