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

package acl_test

import (
	"testing"

	"github.com/jimis/cfserverd/acl"
)

func TestPathPrefixGrantsSubtreeOnly(t *testing.T) {
	ev := acl.NewEvaluator(acl.KindPathPrefix, []acl.Rule{
		{Kind: acl.KindPathPrefix, Pattern: "/var/cfengine", AllowAddrs: []string{"10.0.0.1"}},
	}, nil)

	id := acl.Identity{IP: "10.0.0.1"}

	if d := ev.Evaluate(id, "/var/cfengine/inputs/promises.cf", nil, false); !d.Grant {
		t.Fatal("expected grant for path under the admitted prefix")
	}
	if d := ev.Evaluate(id, "/var/cfengineX/other", nil, false); d.Grant {
		t.Fatal("expected no grant: /var/cfengineX is a sibling, not a subtree")
	}
	if d := ev.Evaluate(id, "/var/cfengine", nil, false); !d.Grant {
		t.Fatal("expected grant for exact match of the prefix itself")
	}
}

func TestDenyOverridesAdmit(t *testing.T) {
	ev := acl.NewEvaluator(acl.KindPathPrefix,
		[]acl.Rule{{Kind: acl.KindPathPrefix, Pattern: "/var/cfengine", AllowAddrs: []string{"10.0.0.1"}}},
		[]acl.Rule{{Kind: acl.KindPathPrefix, Pattern: "/var/cfengine/secrets", DenyAddrs: []string{"10.0.0.1"}}},
	)

	id := acl.Identity{IP: "10.0.0.1"}
	d := ev.Evaluate(id, "/var/cfengine/secrets/key.pem", nil, false)
	if d.Grant {
		t.Fatal("expected deny list to override an earlier admit")
	}
}

func TestRequiresEncryptRefusesPlaintext(t *testing.T) {
	ev := acl.NewEvaluator(acl.KindPathExact, []acl.Rule{
		{Kind: acl.KindPathExact, Pattern: "/var/cfengine/secret.txt", AllowAddrs: []string{"10.0.0.1"}, RequiresEncrypt: true},
	}, nil)

	id := acl.Identity{IP: "10.0.0.1"}
	if d := ev.Evaluate(id, "/var/cfengine/secret.txt", nil, false); d.Grant {
		t.Fatal("expected refusal over a non-encrypted transport")
	}
	if d := ev.Evaluate(id, "/var/cfengine/secret.txt", nil, true); !d.Grant {
		t.Fatal("expected grant once the transport is encrypted")
	}
}

func TestMapRootRequiresRSAAuth(t *testing.T) {
	ev := acl.NewEvaluator(acl.KindPathPrefix, []acl.Rule{
		{Kind: acl.KindPathPrefix, Pattern: "/", AllowAddrs: []string{"10.0.0.1"}, MaprootAddrs: []string{"10.0.0.1"}},
	}, nil)

	unauth := acl.Identity{IP: "10.0.0.1", RSAAuth: false}
	if d := ev.Evaluate(unauth, "/etc/shadow", nil, false); d.MapRoot {
		t.Fatal("expected map_root to stay false without rsa_auth")
	}

	auth := acl.Identity{IP: "10.0.0.1", RSAAuth: true}
	if d := ev.Evaluate(auth, "/etc/shadow", nil, false); !d.MapRoot {
		t.Fatal("expected map_root once rsa_auth is set")
	}
}

func TestClassPatternMatchesAnyCandidate(t *testing.T) {
	ev := acl.NewEvaluator(acl.KindClassPattern, []acl.Rule{
		{Kind: acl.KindClassPattern, Pattern: "web.*", AllowAddrs: []string{"10.0.0.1"}},
	}, nil)

	id := acl.Identity{IP: "10.0.0.1"}
	d := ev.Evaluate(id, "unused", []string{"database_server", "webserver"}, false)
	if !d.Grant {
		t.Fatal("expected grant: one candidate class matches the pattern")
	}
}

func TestRoleAuthorizerRequiresEveryProposedClass(t *testing.T) {
	ra := acl.NewRoleAuthorizer([]acl.Rule{
		{Kind: acl.KindClassPattern, Pattern: "web.*", AllowAddrs: []string{"alice"}},
	})

	id := acl.Identity{Username: "alice"}
	if !ra.Authorize(id, []string{"webserver"}) {
		t.Fatal("expected authorization: proposed class matches alice's role rule")
	}
	if ra.Authorize(id, []string{"webserver", "database_server"}) {
		t.Fatal("expected refusal: database_server is not covered by any role rule")
	}
}
