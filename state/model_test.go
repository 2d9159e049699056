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

package state_test

import (
	"testing"

	"github.com/jimis/cfserverd/state"
)

func TestTrustOnFirstUseMatchesLiteralAndCIDR(t *testing.T) {
	st := state.Build(state.Config{
		TrustKeys: []string{"10.0.0.5", "192.168.1.0/24"},
	})

	if !st.TrustOnFirstUse("10.0.0.5") {
		t.Fatal("expected literal trust_keys entry to be trusted")
	}
	if !st.TrustOnFirstUse("192.168.1.42") {
		t.Fatal("expected CIDR trust_keys entry to cover this address")
	}
	if st.TrustOnFirstUse("10.0.0.6") {
		t.Fatal("expected an address outside trust_keys to be refused")
	}
}

func TestLookupAnswersKnownVarsOnly(t *testing.T) {
	st := state.Build(state.Config{
		CipherPreference: "c",
		RunCommand:       "/var/cfengine/bin/run",
	})

	if v, ok := st.Lookup("cipher_preference"); !ok || v != "c" {
		t.Fatalf("Lookup(cipher_preference) = %q, %v", v, ok)
	}
	if v, ok := st.Lookup("run_command"); !ok || v != "/var/cfengine/bin/run" {
		t.Fatalf("Lookup(run_command) = %q, %v", v, ok)
	}
	if _, ok := st.Lookup("unknown"); ok {
		t.Fatal("expected an unrecognized name to report ok=false")
	}
}
