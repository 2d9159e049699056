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

package conn_test

import (
	"net"
	"testing"

	"github.com/jimis/cfserverd/conn"
)

func TestScratchGrowsAndReuses(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c2.Close()
	c := conn.New(c1, "10.0.0.1")

	a := c.Scratch(16)
	if len(a) != 16 {
		t.Fatalf("len = %d, want 16", len(a))
	}
	b := c.Scratch(8)
	if len(b) != 8 {
		t.Fatalf("len = %d, want 8", len(b))
	}
}

func TestFlagsDefaultFalse(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c2.Close()
	c := conn.New(c1, "10.0.0.1")

	if c.IDVerified || c.RSAAuth || c.Trust || c.MapRoot {
		t.Fatal("expected all auth flags to default false on a fresh connection")
	}
	if c.Variant != conn.Classic {
		t.Fatal("expected conn.New to default to the Classic variant")
	}
}
